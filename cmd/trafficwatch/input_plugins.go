package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tinytelemetry/trafficwatch/internal/logsource"
	"github.com/tinytelemetry/trafficwatch/internal/tcpserver"
)

// NamedLogSource aliases the shared source abstraction to keep app-layer APIs explicit.
type NamedLogSource = logsource.LogSource

// InputSourcePlugin is a small plugin primitive for wiring log inputs.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (NamedLogSource, error)
}

// InputPluginConfig defines runtime input selection.
type InputPluginConfig struct {
	InputFile    string
	TCPEnabled   bool
	TCPAddr      string
	StdinEnabled bool
	BufferSize   int
	MaxLineSize  int
}

// buildInputPlugins registers the file, tcp and stdin inputs in that order.
// stdin is only considered when no input file is given.
func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	readerConf := logsource.ReaderConfig{BufferSize: cfg.BufferSize, MaxLineSize: cfg.MaxLineSize}
	return []InputSourcePlugin{
		fileInputPlugin{path: cfg.InputFile, conf: readerConf},
		tcpInputPlugin{addr: cfg.TCPAddr, enabled: cfg.TCPEnabled, maxLineSize: cfg.MaxLineSize},
		stdinInputPlugin{
			enabled: cfg.StdinEnabled && cfg.InputFile == "",
			piped:   stdinIsPiped,
			conf:    readerConf,
		},
	}
}

type fileInputPlugin struct {
	path string
	conf logsource.ReaderConfig
}

func (p fileInputPlugin) Name() string { return "file" }

func (p fileInputPlugin) Enabled() bool { return p.path != "" }

func (p fileInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	src, err := logsource.NewFileSource(ctx, p.path, p.conf)
	if err != nil {
		return nil, err
	}
	return src, nil
}

type tcpInputPlugin struct {
	addr        string
	enabled     bool
	maxLineSize int
}

func (p tcpInputPlugin) Name() string { return "tcp" }

func (p tcpInputPlugin) Enabled() bool { return p.enabled }

func (p tcpInputPlugin) Build(_ context.Context) (NamedLogSource, error) {
	server := tcpserver.NewServer(p.addr, tcpserver.ServerConfig{MaxLineSize: p.maxLineSize})
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start tcp server: %w", err)
	}
	return logsource.NewTCPSource(server), nil
}

type stdinInputPlugin struct {
	enabled bool
	piped   func() bool
	conf    logsource.ReaderConfig
}

func (p stdinInputPlugin) Name() string { return "stdin" }

func (p stdinInputPlugin) Enabled() bool {
	return p.enabled && p.piped != nil && p.piped()
}

func (p stdinInputPlugin) Build(ctx context.Context) (NamedLogSource, error) {
	return logsource.NewStdinSource(ctx, p.conf), nil
}

func stdinIsPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// buildSources builds every enabled plugin. A failing plugin aborts startup
// and stops the sources already built.
func buildSources(ctx context.Context, plugins []InputSourcePlugin) ([]NamedLogSource, error) {
	sources := make([]NamedLogSource, 0, len(plugins))
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			for _, built := range sources {
				built.Stop()
			}
			return nil, fmt.Errorf("input %q: %w", plugin.Name(), err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}
