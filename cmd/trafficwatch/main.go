package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

// cliOverrides holds command-line values that take precedence over the config file.
type cliOverrides struct {
	inputFile      string
	statsTimespan  int64
	alertWindow    int64
	alertThreshold float64
	set            map[string]bool
}

func (o cliOverrides) apply(cfg *appConfig) {
	if o.inputFile != "" {
		cfg.InputFile = o.inputFile
	}
	if o.set["s"] {
		cfg.StatsTimespan = o.statsTimespan
	}
	if o.set["w"] {
		cfg.AlertWindow = o.alertWindow
	}
	if o.set["t"] {
		cfg.AlertThreshold = o.alertThreshold
	}
}

func main() {
	var configPath string
	var showVersion bool
	var printConfig bool
	var o cliOverrides

	fs := flag.NewFlagSet("trafficwatch", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: trafficwatch [flags] [input-file]\n\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/trafficwatch/config.yml)")
	fs.BoolVar(&showVersion, "version", false, "print version information")
	fs.BoolVar(&printConfig, "print-config", false, "print the effective configuration as YAML and exit")
	fs.Int64Var(&o.statsTimespan, "s", 0, "timespan in seconds for stats computation (default 10)")
	fs.Int64Var(&o.alertWindow, "w", 0, "time window in seconds for alerting (default 120)")
	fs.Float64Var(&o.alertThreshold, "t", 0, "average hits per second that trigger an alert (default 10)")
	_ = fs.Parse(os.Args[1:])

	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	if fs.NArg() > 1 {
		fs.Usage()
		os.Exit(2)
	}
	o.inputFile = fs.Arg(0)

	if showVersion {
		fmt.Printf("trafficwatch - HTTP access log monitor\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath)
	if err == nil {
		o.apply(&cfg)
		err = cfg.validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if printConfig {
		if err := writeConfigYAML(os.Stdout, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// writeConfigYAML dumps the effective configuration with secrets masked.
func writeConfigYAML(w io.Writer, cfg appConfig) error {
	if cfg.BackupS3SecretKey != "" {
		cfg.BackupS3SecretKey = "********"
	}
	if cfg.BackupS3SessionToken != "" {
		cfg.BackupS3SessionToken = "********"
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
