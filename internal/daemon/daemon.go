// Package daemon is the supervisor: it wires the components in startup
// order, owns the shutdown sequence, and translates signals and the
// shutdown command into one cancellation that propagates everywhere.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cathedral/nova/internal/audit"
	"github.com/cathedral/nova/internal/bridge"
	"github.com/cathedral/nova/internal/bus"
	"github.com/cathedral/nova/internal/config"
	"github.com/cathedral/nova/internal/engine"
	"github.com/cathedral/nova/internal/llm"
	"github.com/cathedral/nova/internal/otel"
	"github.com/cathedral/nova/internal/persistence"
	"github.com/cathedral/nova/internal/plugins"
	"github.com/cathedral/nova/internal/scheduler"
	"github.com/cathedral/nova/internal/server"
	"github.com/cathedral/nova/internal/telemetry"
	"github.com/cathedral/nova/internal/voice"
)

const drainTimeout = 5 * time.Second

// Run starts the daemon and blocks until ctx is canceled (signal) or a
// shutdown command arrives. A non-nil error means startup failed; the
// caller exits non-zero. A clean shutdown returns nil.
func Run(ctx context.Context, cfg config.Config, version string, quietLogs bool) error {
	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, logCloser, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, quietLogs)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "home", cfg.HomeDir, "version", version)

	requests, err := audit.Open(cfg.HomeDir)
	if err != nil {
		return fmt.Errorf("open request log: %w", err)
	}
	defer requests.Close()

	otelProvider, err := otel.Init(ctx, otel.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRate:  cfg.Telemetry.SampleRate,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer otelProvider.Shutdown(context.Background())

	metrics, err := otel.NewMetrics(otelProvider.Meter)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	eventBus := bus.NewWithLogger(logger)

	store, err := persistence.Open(cfg.DBPath, eventBus)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer store.Close()
	logger.Info("startup phase", "phase", "store_opened", "db", cfg.DBPath)

	br, err := bridge.New(cfg.BridgeDir, config.Sender, store, eventBus, logger)
	if err != nil {
		return fmt.Errorf("construct bridge: %w", err)
	}
	logger.Info("startup phase", "phase", "bridge_ready", "root", cfg.BridgeDir)

	registry := plugins.NewRegistry()
	registry.Register(plugins.NewOmniscientAnalysis(store))
	registry.Register(plugins.NewEvolutionTracker(store))
	registry.Register(plugins.NewQuantumInterface())

	speaker := voice.New(cfg.Voice.Enabled, cfg.Voice.Command, cfg.HomeDir, logger)
	correspondent := llm.New(cfg.AnthropicAPIKey, cfg.Anthropic.Model)

	eng, err := engine.New(ctx, engine.Config{
		Store:   store,
		Bridge:  br,
		Speaker: speaker,
		LLM:     correspondent,
		Plugins: registry,
		Bus:     eventBus,
		Logger:  logger,
		HomeDir: cfg.HomeDir,
		Rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	})
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}

	// One cancellation covers signals and the shutdown command.
	runCtx, shutdown := context.WithCancel(ctx)
	defer shutdown()

	dispatcher := server.NewDispatcher(eng, requests, logger, otelProvider.Tracer, metrics, shutdown)
	srv := server.NewServer(cfg.SocketPath, dispatcher, logger)
	if err := srv.Start(runCtx); err != nil {
		return fmt.Errorf("start socket server: %w", err)
	}
	logger.Info("startup phase", "phase", "socket_listening", "path", cfg.SocketPath)

	watcher := bridge.NewWatcher(br.InboxDir(), logger)
	var wake <-chan struct{}
	if err := watcher.Start(runCtx); err != nil {
		logger.Warn("bridge watcher unavailable, relying on poll interval", "error", err)
	} else {
		wake = watcher.Events()
	}

	sched, err := scheduler.New(scheduler.Config{
		Engine:             eng,
		Logger:             logger,
		HeartbeatInterval:  cfg.HeartbeatInterval(),
		EvolutionInterval:  cfg.EvolutionInterval(),
		BridgePollInterval: cfg.BridgePollInterval(),
		HeartbeatCron:      cfg.Schedule.Heartbeat,
		EvolutionCron:      cfg.Schedule.Evolution,
		Wake:               wake,
	})
	if err != nil {
		return fmt.Errorf("construct scheduler: %w", err)
	}
	sched.Start(runCtx)

	logger.Info("nova daemon awake",
		"socket", cfg.SocketPath,
		"voice", speaker.Available(),
		"llm", correspondent.Available(),
	)

	<-runCtx.Done()

	logger.Info("shutdown initiated")
	srv.Stop(drainTimeout)
	sched.Stop()
	if err := store.Close(); err != nil {
		logger.Warn("store close", "error", err)
	}
	logger.Info("nova daemon at rest")
	return nil
}
