package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/trafficwatch/internal/duckdb"
	"github.com/tinytelemetry/trafficwatch/internal/logsource"
	"github.com/tinytelemetry/trafficwatch/internal/model"
	"github.com/tinytelemetry/trafficwatch/internal/notify"
	"github.com/tinytelemetry/trafficwatch/internal/socketrpc"
)

const (
	defaultBindHost            = "127.0.0.1"
	defaultTCPPort             = 4100
	defaultAPIPort             = 3100
	defaultMuxBufferSize       = DefaultMuxBuffer
	defaultQueryTimeout        = duckdb.DefaultQueryTimeout
	defaultInsertBatchSize     = duckdb.DefaultBatchSize
	defaultInsertFlushInterval = duckdb.DefaultFlushInterval
	defaultInsertFlushQueue    = duckdb.DefaultFlushQueueSize
	defaultRecordRetention     = 30 // days, 0 = disabled
	defaultBackupInterval      = 6 * time.Hour
	defaultBackupKeepLast      = 24
	defaultLogLevel            = "info"
	envPrefix                  = "TRAFFICWATCH"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	InputFile        string  `mapstructure:"input-file" yaml:"input-file"`
	StatsTimespan    int64   `mapstructure:"stats-timespan" yaml:"stats-timespan"`
	AlertWindow      int64   `mapstructure:"alert-window" yaml:"alert-window"`
	AlertThreshold   float64 `mapstructure:"alert-threshold" yaml:"alert-threshold"`
	DedupeSize       int     `mapstructure:"dedupe-size" yaml:"dedupe-size"`
	AbortOnMalformed bool    `mapstructure:"abort-on-malformed" yaml:"abort-on-malformed"`
	UTC              bool    `mapstructure:"utc" yaml:"utc"`
	Quiet            bool    `mapstructure:"quiet" yaml:"quiet"`
	KeepServing      bool    `mapstructure:"keep-serving" yaml:"keep-serving"`

	Host          string `mapstructure:"host" yaml:"host"`
	StdinEnabled  bool   `mapstructure:"stdin-enabled" yaml:"stdin-enabled"`
	TCPEnabled    bool   `mapstructure:"tcp-enabled" yaml:"tcp-enabled"`
	TCPPort       int    `mapstructure:"tcp-port" yaml:"tcp-port"`
	TCPAddr       string `mapstructure:"tcp-addr" yaml:"tcp-addr"`
	MuxBufferSize int    `mapstructure:"mux-buffer-size" yaml:"mux-buffer-size"`
	MaxLineSize   int    `mapstructure:"max-line-size" yaml:"max-line-size"`

	DBPath              string        `mapstructure:"db-path" yaml:"db-path"`
	QueryTimeout        time.Duration `mapstructure:"query-timeout" yaml:"query-timeout"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size" yaml:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval" yaml:"insert-flush-interval"`
	InsertFlushQueue    int           `mapstructure:"insert-flush-queue-size" yaml:"insert-flush-queue-size"`
	JournalEnabled      bool          `mapstructure:"journal-enabled" yaml:"journal-enabled"`
	JournalPath         string        `mapstructure:"journal-path" yaml:"journal-path"`
	RecordRetention     int           `mapstructure:"record-retention" yaml:"record-retention"`

	BackupEnabled        bool          `mapstructure:"backup-enabled" yaml:"backup-enabled"`
	BackupInterval       time.Duration `mapstructure:"backup-interval" yaml:"backup-interval"`
	BackupLocalDir       string        `mapstructure:"backup-local-dir" yaml:"backup-local-dir"`
	BackupKeepLast       int           `mapstructure:"backup-keep-last" yaml:"backup-keep-last"`
	BackupBucketURL      string        `mapstructure:"backup-bucket-url" yaml:"backup-bucket-url"`
	BackupS3Endpoint     string        `mapstructure:"backup-s3-endpoint" yaml:"backup-s3-endpoint"`
	BackupS3Region       string        `mapstructure:"backup-s3-region" yaml:"backup-s3-region"`
	BackupS3AccessKey    string        `mapstructure:"backup-s3-access-key" yaml:"backup-s3-access-key"`
	BackupS3SecretKey    string        `mapstructure:"backup-s3-secret-key" yaml:"backup-s3-secret-key"`
	BackupS3SessionToken string        `mapstructure:"backup-s3-session-token" yaml:"backup-s3-session-token"`
	BackupS3UseSSL       bool          `mapstructure:"backup-s3-use-ssl" yaml:"backup-s3-use-ssl"`
	BackupS3PathStyle    bool          `mapstructure:"backup-s3-path-style" yaml:"backup-s3-path-style"`

	APIEnabled     bool          `mapstructure:"api-enabled" yaml:"api-enabled"`
	APIPort        int           `mapstructure:"api-port" yaml:"api-port"`
	APIAddr        string        `mapstructure:"api-addr" yaml:"api-addr"`
	SocketEnabled  bool          `mapstructure:"socket-enabled" yaml:"socket-enabled"`
	SocketPath     string        `mapstructure:"socket-path" yaml:"socket-path"`
	WebhookURL     string        `mapstructure:"webhook-url" yaml:"webhook-url"`
	WebhookTimeout time.Duration `mapstructure:"webhook-timeout" yaml:"webhook-timeout"`

	LogLevel string `mapstructure:"log-level" yaml:"log-level"`
	LogFile  string `mapstructure:"log-file" yaml:"log-file"`

	ConfigPath string `mapstructure:"-" yaml:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	// A .env file in the working directory seeds the environment; real
	// environment variables win.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return cfg, fmt.Errorf("loading .env: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("input-file", "")
	v.SetDefault("stats-timespan", model.DefaultStatsTimespan)
	v.SetDefault("alert-window", model.DefaultAlertWindow)
	v.SetDefault("alert-threshold", model.DefaultAlertThreshold)
	v.SetDefault("dedupe-size", 0)
	v.SetDefault("abort-on-malformed", true)
	v.SetDefault("utc", false)
	v.SetDefault("quiet", false)
	v.SetDefault("keep-serving", false)
	v.SetDefault("host", defaultBindHost)
	v.SetDefault("stdin-enabled", true)
	v.SetDefault("tcp-enabled", false)
	v.SetDefault("tcp-port", defaultTCPPort)
	v.SetDefault("tcp-addr", "")
	v.SetDefault("mux-buffer-size", defaultMuxBufferSize)
	v.SetDefault("max-line-size", logsource.DefaultMaxLineSize)
	v.SetDefault("db-path", "")
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("insert-batch-size", defaultInsertBatchSize)
	v.SetDefault("insert-flush-interval", defaultInsertFlushInterval)
	v.SetDefault("insert-flush-queue-size", defaultInsertFlushQueue)
	v.SetDefault("journal-enabled", false)
	v.SetDefault("journal-path", filepath.Join(home, ".local", "state", "trafficwatch", "ingest.journal"))
	v.SetDefault("record-retention", defaultRecordRetention)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-local-dir", filepath.Join(home, ".local", "share", "trafficwatch", "backups"))
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)
	v.SetDefault("backup-bucket-url", "")
	v.SetDefault("backup-s3-endpoint", "")
	v.SetDefault("backup-s3-region", "us-east-1")
	v.SetDefault("backup-s3-access-key", "")
	v.SetDefault("backup-s3-secret-key", "")
	v.SetDefault("backup-s3-session-token", "")
	v.SetDefault("backup-s3-use-ssl", true)
	v.SetDefault("backup-s3-path-style", false)
	v.SetDefault("api-enabled", false)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("api-addr", "")
	v.SetDefault("socket-enabled", false)
	v.SetDefault("socket-path", socketrpc.DefaultSocketPath())
	v.SetDefault("webhook-url", "")
	v.SetDefault("webhook-timeout", notify.DefaultTimeout)
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-file", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "trafficwatch", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	} else {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.JournalPath = expandHome(cfg.JournalPath, home)
	cfg.BackupLocalDir = expandHome(cfg.BackupLocalDir, home)
	cfg.LogFile = expandHome(cfg.LogFile, home)

	if cfg.TCPAddr == "" {
		cfg.TCPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.TCPPort))
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}

	return cfg, cfg.validate()
}

// validate rejects settings the analyzer cannot run with. It is called again
// after command-line overrides are applied.
func (cfg appConfig) validate() error {
	if cfg.StatsTimespan <= 0 {
		return fmt.Errorf("invalid stats-timespan: %d (must be > 0)", cfg.StatsTimespan)
	}
	if cfg.AlertWindow <= 0 {
		return fmt.Errorf("invalid alert-window: %d (must be > 0)", cfg.AlertWindow)
	}
	if cfg.AlertThreshold <= 0 {
		return fmt.Errorf("invalid alert-threshold: %v (must be > 0)", cfg.AlertThreshold)
	}
	if cfg.DedupeSize < 0 {
		return fmt.Errorf("invalid dedupe-size: %d", cfg.DedupeSize)
	}
	if cfg.TCPPort <= 0 || cfg.TCPPort > 65535 {
		return fmt.Errorf("invalid tcp-port: %d", cfg.TCPPort)
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.MaxLineSize < 0 {
		return fmt.Errorf("invalid max-line-size: %d", cfg.MaxLineSize)
	}
	if cfg.RecordRetention < 0 {
		return fmt.Errorf("invalid record-retention: %d", cfg.RecordRetention)
	}
	if cfg.JournalEnabled && cfg.DBPath == "" {
		return fmt.Errorf("journal-enabled requires db-path")
	}
	if cfg.BackupEnabled {
		if cfg.BackupInterval <= 0 {
			return fmt.Errorf("invalid backup-interval: %s", cfg.BackupInterval)
		}
		if cfg.BackupKeepLast <= 0 {
			return fmt.Errorf("invalid backup-keep-last: %d", cfg.BackupKeepLast)
		}
		if cfg.DBPath == "" {
			return fmt.Errorf("backup-enabled requires db-path")
		}
		if cfg.BackupBucketURL != "" && (cfg.BackupS3AccessKey == "" || cfg.BackupS3SecretKey == "") {
			return fmt.Errorf("backup-s3-access-key and backup-s3-secret-key are required with backup-bucket-url")
		}
	}
	if cfg.WebhookURL != "" && cfg.WebhookTimeout <= 0 {
		return fmt.Errorf("invalid webhook-timeout: %s", cfg.WebhookTimeout)
	}
	return nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
