package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kernel-sentinel/internal/api"
	"kernel-sentinel/internal/bus"
	"kernel-sentinel/internal/config"
	"kernel-sentinel/internal/kernel"
	"kernel-sentinel/internal/monitor"
	"kernel-sentinel/internal/publish"
	"kernel-sentinel/internal/storage"
	"kernel-sentinel/internal/timeout"
	"kernel-sentinel/internal/track"
)

func main() {
	// Structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	var cfg *config.Config
	var err error

	if _, statErr := os.Stat(configPath); statErr == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
		}
	} else {
		log.Info().Msg("no config file found, using defaults")
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics and the presentation channel
	metrics := monitor.NewMetrics()
	events := bus.New(log.Logger)

	// History storage (optional — the monitor runs without it)
	var db *storage.DB
	if cfg.Database.DSN != "" {
		db, err = storage.New(ctx, cfg.Database)
		if err != nil {
			log.Warn().Err(err).Msg("database unavailable, execution history disabled")
			db = nil
		} else {
			defer db.Close()
		}
	}

	var writer *storage.HistoryWriter
	if db != nil {
		writer = storage.NewHistoryWriter(db, 4096)
		writer.Start()
		defer writer.Flush(10 * time.Second)

		msgs, err := events.Subscribe(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to subscribe history consumer")
		}
		go storage.NewBusConsumer(writer).Run(msgs)
	}

	// Out-of-band webapp reporting (optional)
	var reporter *publish.WebappReporter
	if cfg.Report.URL != "" {
		reporter = publish.NewWebappReporter(log.Logger, cfg.Report.URL, cfg.Report.Timeout)
	}

	publisher := publish.New(log.Logger, events, reporter, metrics)

	var tracer *monitor.Tracer
	if cfg.Tracing.Enabled {
		tracer = monitor.NewTracer()
	}

	tracker := track.New(log.Logger, publisher, metrics, tracer)

	// Interrupt capability. Without a kernel PID, escalation still logs and
	// publishes but never signals anything.
	var interrupter timeout.Interrupter
	if cfg.Kernel.PID > 0 {
		interrupter = kernel.NewSignalInterrupter(log.Logger, cfg.Kernel.PID)
	} else {
		interrupter = kernel.NewNopInterrupter(log.Logger)
	}

	mon := timeout.New(timeout.Config{
		Enabled:          cfg.Monitor.Enabled,
		WarningThreshold: cfg.Monitor.WarningThreshold,
		TimeoutThreshold: cfg.Monitor.TimeoutThreshold,
		AutoInterrupt:    cfg.Monitor.AutoInterrupt,
	}, log.Logger, publisher, interrupter, metrics)

	hooks := kernel.NewHooks(log.Logger, tracker, mon, cfg.Kernel.VerboseTransport)

	server := api.NewServer(cfg, hooks, tracker, mon, db, events, metrics)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		// Stop any in-flight timers, then drain the channel so the history
		// consumer sees everything published before shutdown.
		mon.Disarm()
		if err := events.Close(); err != nil {
			log.Error().Err(err).Msg("event bus close error")
		}

		cancel()
	}()

	log.Info().
		Str("addr", cfg.Address()).
		Bool("db_enabled", db != nil).
		Bool("monitor_enabled", cfg.Monitor.Enabled).
		Bool("auto_interrupt", cfg.Monitor.AutoInterrupt).
		Int("kernel_pid", cfg.Kernel.PID).
		Msg("sentinel starting")

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}

	log.Info().Msg("sentinel stopped")
}
