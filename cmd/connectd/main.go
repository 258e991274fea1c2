// Package main implements the entry point for the Connect daemon.
// Connect is a script/process integration engine: it supervises worker
// scripts, ingests their telemetry into bounded stream buffers, and runs
// discrete scripts on demand, publishing state for a display layer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nominal-io/connect/config"
	"github.com/nominal-io/connect/engine"
	"github.com/nominal-io/connect/metric"
	"github.com/nominal-io/connect/script"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "connectd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting Connect engine",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	registry := metric.NewRegistry()
	eng, err := engine.New(engine.Deps{
		Config:  cfg,
		Logger:  logger,
		Metrics: registry.CoreMetrics(),
	})
	if err != nil {
		return fmt.Errorf("assemble engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)
	defer eng.Close()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		metricsServer := metric.NewServer(cfg.Metrics.Port, "/metrics", registry)
		slog.Info("Metrics server enabled", "address", metricsServer.Address())
		g.Go(func() error {
			return metricsServer.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			return metricsServer.Stop()
		})
	}

	state := script.InputState{
		InputValues:  map[string]string{},
		SliderValues: map[string]float32{},
	}

	if cliCfg.RunScripts {
		eng.ExecuteAll(state)
		logResults(eng)
	}

	if cliCfg.Stream && !eng.IsRunning() {
		eng.StartStreaming(state)
	}

	g.Go(func() error {
		return tickLoop(gctx, eng, cliCfg.Tick)
	})

	err = g.Wait()
	slog.Info("Shutdown complete")
	return err
}

// tickLoop drives the engine: each tick drains queued telemetry into the
// stream buffers and polls worker liveness, the same cadence a display
// layer's frame update would provide.
func tickLoop(ctx context.Context, eng *engine.Engine, tick time.Duration) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := eng.DrainAndRoute(); n > 0 {
				slog.Debug("Routed telemetry", "messages", n)
			}
			for _, st := range eng.PollProcessStatus() {
				slog.Debug("Worker status", "status", st.String())
			}
		}
	}
}

func logResults(eng *engine.Engine) {
	for key, result := range eng.Results() {
		switch r := result.(type) {
		case script.Scalar:
			slog.Info("Script result", "key", key, "value", string(r))
		case script.Table:
			slog.Info("Script result", "key", key, "columns", r.Columns, "rows", len(r.Rows))
		}
	}
}
