package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/trafficwatch/internal/backup"
	"github.com/tinytelemetry/trafficwatch/internal/duckdb"
	"github.com/tinytelemetry/trafficwatch/internal/httpserver"
	"github.com/tinytelemetry/trafficwatch/internal/ingest"
	"github.com/tinytelemetry/trafficwatch/internal/journal"
	"github.com/tinytelemetry/trafficwatch/internal/live"
	"github.com/tinytelemetry/trafficwatch/internal/model"
	"github.com/tinytelemetry/trafficwatch/internal/notify"
	"github.com/tinytelemetry/trafficwatch/internal/pipeline"
	"github.com/tinytelemetry/trafficwatch/internal/render"
	"github.com/tinytelemetry/trafficwatch/internal/socketrpc"
)

// runServer reads access logs from the configured inputs, reports traffic
// stats and alerts, and serves the optional read surfaces until the input is
// exhausted or a signal arrives.
func runServer(cfg appConfig) error {
	cleanupLogger, err := configureLogger(cfg)
	if err != nil {
		return err
	}
	defer cleanupLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go handleSignals(sigCh, cancel, cfg)

	arch, err := openArchive(cfg)
	if err != nil {
		return err
	}
	defer arch.Close()

	var recordSink ingest.RecordSink
	if arch.buffer != nil {
		recordSink = arch.buffer
	}
	processor, err := ingest.NewEnvelopeProcessor(recordSink, "", cfg.DedupeSize)
	if err != nil {
		return fmt.Errorf("failed to initialize processor: %w", err)
	}

	state := live.NewState(live.Options{Counters: processor.Counters})
	sinks := pipeline.MultiSink{state}

	loc := time.Local
	if cfg.UTC {
		loc = time.UTC
	}
	var renderer *render.Renderer
	if !cfg.Quiet {
		renderer = render.New(os.Stdout, loc)
		sinks = append(sinks, renderer)
	}
	if arch.store != nil {
		sinks = append(sinks, alertArchiveSink{store: arch.store})
	}
	var notifier *notify.WebhookNotifier
	if cfg.WebhookURL != "" {
		notifier, err = notify.NewWebhookNotifier(notify.Config{
			URL:      cfg.WebhookURL,
			Timeout:  cfg.WebhookTimeout,
			Location: loc,
		})
		if err != nil {
			return err
		}
		defer notifier.Close()
		sinks = append(sinks, notifier)
	}

	if cfg.APIEnabled {
		var archive model.ArchiveReader
		if arch.store != nil {
			archive = arch.store
		}
		apiServer := httpserver.NewServer(cfg.APIAddr, state, archive)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	if cfg.SocketEnabled {
		sockServer := socketrpc.NewServer(cfg.SocketPath, state)
		if err := sockServer.Start(); err != nil {
			log.Warn().Str("component", "server").Err(err).Msg("failed to start socket server")
		} else {
			defer sockServer.Stop()
		}
	}

	pl, err := pipeline.New(pipeline.Config{
		StatsTimespan:    cfg.StatsTimespan,
		AlertWindow:      cfg.AlertWindow,
		AlertThreshold:   cfg.AlertThreshold,
		AbortOnMalformed: cfg.AbortOnMalformed,
	}, sinks)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	sources, err := buildSources(gctx, buildInputPlugins(InputPluginConfig{
		InputFile:    cfg.InputFile,
		TCPEnabled:   cfg.TCPEnabled,
		TCPAddr:      cfg.TCPAddr,
		StdinEnabled: cfg.StdinEnabled,
		BufferSize:   cfg.MuxBufferSize,
		MaxLineSize:  cfg.MaxLineSize,
	}))
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return errors.New("no input: pass a log file, pipe data on stdin or enable tcp-enabled")
	}

	mux := NewSourceMultiplexer(gctx, sources, cfg.MuxBufferSize)
	mux.Start()
	defer mux.Stop()

	if renderer != nil {
		renderer.PrintSettings(render.Settings{
			InputFile:      describeInput(cfg, mux.Names()),
			StatsTimespan:  pl.StatsTimespan(),
			AlertWindow:    pl.AlertWindow(),
			AlertThreshold: pl.AlertThreshold(),
		})
	}
	printSurfaces(os.Stderr, cfg)

	records := make(chan model.LogRecord, cfg.MuxBufferSize)

	g.Go(func() error {
		defer close(records)
		if err := ingestLines(gctx, mux.Lines(), processor, records, sinks, cfg.AbortOnMalformed); err != nil {
			return err
		}
		if err := mux.Err(); err != nil {
			sinks.OnError(err)
			return fmt.Errorf("failed to read input: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return pl.Run(gctx, records)
	})

	runErr := g.Wait()
	mux.Stop()

	counters := processor.Counters()
	log.Info().
		Str("component", "server").
		Int64("parsed", counters.Parsed).
		Int64("skipped", counters.Skipped).
		Int64("failed", counters.Failed).
		Interface("sources", mux.Counts()).
		Msg("input finished")

	if runErr != nil {
		return runErr
	}

	if cfg.KeepServing && (cfg.APIEnabled || cfg.SocketEnabled) && ctx.Err() == nil {
		log.Info().Str("component", "server").Msg("input exhausted, serving results until interrupted")
		<-ctx.Done()
	}
	return nil
}

// ingestLines parses every line into a record and forwards it to the
// pipeline. Malformed lines abort the run when abort is set.
func ingestLines(ctx context.Context, lines <-chan model.IngestEnvelope, processor ingest.EnvelopeProcessor, out chan<- model.LogRecord, sink pipeline.Sink, abort bool) error {
	for env := range lines {
		res := processor.ProcessEnvelope(env)
		if res.Err != nil {
			sink.OnError(res.Err)
			if abort {
				return fmt.Errorf("failed to parse the log file: %w", res.Err)
			}
			continue
		}
		if res.Record == nil {
			continue
		}
		select {
		case out <- *res.Record:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// alertArchiveSink persists alert transitions into the archive.
type alertArchiveSink struct {
	store model.AlertStore
}

func (s alertArchiveSink) OnStats(*model.Stats) {}
func (s alertArchiveSink) OnError(error)        {}

func (s alertArchiveSink) OnAlert(t model.AlertTransition) {
	if err := s.store.RecordAlert(t); err != nil {
		log.Error().Str("component", "server").Str("alert_id", t.Alert.ID).Err(err).Msg("failed to archive alert")
	}
}

func handleSignals(sigCh <-chan os.Signal, cancel context.CancelFunc, cfg appConfig) {
	if _, ok := <-sigCh; !ok {
		return
	}
	fmt.Fprintln(os.Stderr, "\nShutting down gracefully... (press Ctrl+C again to force)")
	cancel()

	// Shutdown deadline starts now, not at boot.
	deadline := time.NewTimer(10 * time.Second)
	defer deadline.Stop()

	select {
	case <-sigCh:
		fmt.Fprintln(os.Stderr, "\nForce shutdown.")
	case <-deadline.C:
		fmt.Fprintln(os.Stderr, "Shutdown timed out, forcing exit.")
	}
	if cfg.SocketEnabled && cfg.SocketPath != "" {
		os.Remove(cfg.SocketPath)
	}
	os.Exit(1)
}

// archive bundles the storage components enabled by db-path.
type archive struct {
	store     *duckdb.Store
	journal   *journal.Journal
	buffer    *duckdb.InsertBuffer
	retention *duckdb.RetentionCleaner
	backups   *backup.Manager
}

func openArchive(cfg appConfig) (*archive, error) {
	a := &archive{}
	if cfg.DBPath == "" {
		return a, nil
	}

	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	a.store = store

	if cfg.JournalEnabled {
		a.journal, err = journal.Open(cfg.JournalPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open ingest journal: %w", err)
		}
		if err := replayUncommittedJournal(a.journal, store, cfg.InsertBatchSize); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to replay ingest journal: %w", err)
		}
	}

	a.buffer = duckdb.NewInsertBuffer(store, duckdb.InsertBufferConfig{
		BatchSize:      cfg.InsertBatchSize,
		FlushInterval:  cfg.InsertFlushInterval,
		FlushQueueSize: cfg.InsertFlushQueue,
		Journal:        a.journal,
	})

	a.retention = duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: cfg.RecordRetention,
	})

	a.backups, err = backup.NewManager(store, backup.Config{
		Enabled:        cfg.BackupEnabled,
		Interval:       cfg.BackupInterval,
		LocalDir:       cfg.BackupLocalDir,
		KeepLast:       cfg.BackupKeepLast,
		BucketURL:      cfg.BackupBucketURL,
		S3Endpoint:     cfg.BackupS3Endpoint,
		S3Region:       cfg.BackupS3Region,
		S3AccessKey:    cfg.BackupS3AccessKey,
		S3SecretKey:    cfg.BackupS3SecretKey,
		S3SessionToken: cfg.BackupS3SessionToken,
		S3UseSSL:       cfg.BackupS3UseSSL,
		S3PathStyle:    cfg.BackupS3PathStyle,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize backups: %w", err)
	}
	return a, nil
}

// Close stops the storage components in dependency order.
func (a *archive) Close() {
	if a.backups != nil {
		a.backups.Stop()
	}
	if a.retention != nil {
		a.retention.Stop()
	}
	if a.buffer != nil {
		a.buffer.Stop()
	}
	if a.journal != nil {
		_ = a.journal.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// replayUncommittedJournal inserts journaled records that never reached the
// store, committing each batch as it lands.
func replayUncommittedJournal(j *journal.Journal, store model.RecordWriter, batchSize int) error {
	if j == nil {
		return nil
	}
	if batchSize <= 0 {
		batchSize = defaultInsertBatchSize
	}

	batch := make([]*model.StoredRecord, 0, batchSize)
	batchMaxSeq := uint64(0)
	replayed := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.InsertRecordBatch(batch); err != nil {
			return err
		}
		if batchMaxSeq > 0 {
			if err := j.Commit(batchMaxSeq); err != nil {
				return err
			}
		}
		replayed += len(batch)
		batch = make([]*model.StoredRecord, 0, batchSize)
		batchMaxSeq = 0
		return nil
	}

	if err := j.Replay(func(seq uint64, record *model.StoredRecord) error {
		copied := *record
		batch = append(batch, &copied)
		if seq > batchMaxSeq {
			batchMaxSeq = seq
		}
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	}); err != nil {
		return err
	}

	if err := flush(); err != nil {
		return err
	}
	if replayed > 0 {
		log.Info().Str("component", "journal").Int("records", replayed).Msg("replayed uncommitted records")
	}
	return nil
}

func describeInput(cfg appConfig, names []string) string {
	if cfg.InputFile != "" {
		return cfg.InputFile
	}
	parts := make([]string, 0, len(names))
	for _, name := range names {
		if name == "tcp" {
			parts = append(parts, "tcp://"+cfg.TCPAddr)
			continue
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ", ")
}

// printSurfaces lists the enabled service surfaces. Nothing is printed for a
// plain one-shot file analysis.
func printSurfaces(w io.Writer, cfg appConfig) {
	if cfg.Quiet || !(cfg.APIEnabled || cfg.SocketEnabled || cfg.TCPEnabled || cfg.DBPath != "" || cfg.WebhookURL != "") {
		return
	}

	r := lipgloss.NewRenderer(w)
	dim := r.NewStyle().Foreground(lipgloss.Color("240"))
	green := r.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := r.NewStyle().Foreground(lipgloss.Color("39"))
	bold := r.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")
	row := func(enabled bool, label, value string) string {
		if !enabled {
			return fmt.Sprintf("    %s  %-14s %s", dot, label, dim.Render("disabled"))
		}
		return fmt.Sprintf("    %s  %-14s %s", check, label, cyan.Render(value))
	}

	lines := []string{
		"",
		bold.Render("    trafficwatch ") + dim.Render("v"+version),
		"",
		row(cfg.TCPEnabled, "TCP Ingest", cfg.TCPAddr),
		row(cfg.APIEnabled, "HTTP API", cfg.APIAddr),
		row(cfg.SocketEnabled, "Unix Socket", shortenPath(cfg.SocketPath)),
		row(cfg.DBPath != "", "Archive", shortenPath(cfg.DBPath)),
		row(cfg.BackupEnabled, "Snapshots", shortenPath(cfg.BackupLocalDir)),
		row(cfg.WebhookURL != "", "Webhook", cfg.WebhookURL),
		"",
	}
	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
