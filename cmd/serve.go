package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextcampus/aula/internal/bus"
	"github.com/nextcampus/aula/internal/config"
	"github.com/nextcampus/aula/internal/engine"
	"github.com/nextcampus/aula/internal/escalate"
	"github.com/nextcampus/aula/internal/gateway"
	"github.com/nextcampus/aula/internal/store"
	"github.com/nextcampus/aula/internal/store/mem"
	"github.com/nextcampus/aula/internal/store/pg"
	"github.com/nextcampus/aula/internal/store/sqlite"
	"github.com/nextcampus/aula/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the conversation engine and webhook gateway",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}

	stores, err := openStores(cfg)
	if err != nil {
		log.Error("storage setup failed", "mode", cfg.Database.Mode, "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	var emitter bus.Emitter
	if cfg.Outbound.WebhookURL != "" {
		emitter = gateway.NewWebhookEmitter(cfg.Outbound.WebhookURL, cfg.Outbound.Token,
			time.Duration(cfg.Outbound.TimeoutSec)*time.Second)
	} else {
		emitter = gateway.NewLogEmitter(log)
	}

	var sink escalate.Sink
	if cfg.Escalations.WebhookURL != "" {
		sink = gateway.NewWebhookSink(cfg.Escalations.WebhookURL, cfg.Escalations.Token)
	}

	eng := engine.New(cfg, stores, emitter, engine.Options{
		EscalationSink: sink,
		Logger:         log,
	})
	eng.Start()

	stopWatch, err := config.Watch(cfgPath, eng.Reload)
	if err != nil {
		log.Warn("config watch unavailable", "error", err)
	} else {
		defer stopWatch()
	}

	srv := gateway.NewServer(cfg.Server, eng, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("gateway error", "error", err)
	}

	eng.Stop()
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTelemetry(flushCtx); err != nil {
		log.Warn("telemetry shutdown", "error", err)
	}
	log.Info("shutdown complete")
}

func openStores(cfg *config.Config) (*store.Stores, error) {
	switch cfg.Database.Mode {
	case "", "memory":
		return mem.NewStores(), nil
	case "sqlite":
		return sqlite.Open(config.ExpandHome(cfg.Database.SQLitePath))
	case "postgres":
		if cfg.Database.PostgresDSN == "" {
			return nil, fmt.Errorf("AULA_POSTGRES_DSN is not set")
		}
		return pg.Open(cfg.Database.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown database mode %q", cfg.Database.Mode)
	}
}
