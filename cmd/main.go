package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carvectf/canary/internal/adapters/eventlog"
	"github.com/carvectf/canary/internal/adapters/http/api"
	service "github.com/carvectf/canary/internal/app"
	"github.com/carvectf/canary/internal/config"
	"github.com/carvectf/canary/internal/domain/credentials"
	"github.com/carvectf/canary/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	bootHealthTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("canary: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Initialize logging; the level comes from LOG_LEVEL.
	if err := logger.Init(); err != nil {
		return err
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to sync logger: " + err.Error() + "\n")
		}
	}()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (competition.yaml -> env).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	comp, err := cfg.Select(os.Getenv("COMPETITION_NAME"))
	if err != nil {
		return err
	}
	log.Info(ctx, "loaded competition",
		logger.String("competition", comp.Name),
		logger.Int("teams", len(comp.Teams)),
		logger.Int("boxes", len(comp.Boxes)),
		logger.Int("checks", len(comp.Checks)),
	)

	// Connect the shared log store and gate startup on it.
	store := eventlog.NewRedisStore(eventlog.WithAddr(comp.Redis.Addr(), comp.Redis.DB))
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "closing log store failed", logger.Error(err))
		}
	}()

	bootCtx, cancel := context.WithTimeout(ctx, bootHealthTimeout)
	defer cancel()
	if err := store.Health(bootCtx); err != nil {
		return err
	}
	log.Info(ctx, "log store reachable", logger.String("addr", comp.Redis.Addr()))

	// Credentials live in the same store.
	creds := credentials.NewRedisProvider(store.Client(), comp.Name)

	// Start the supervisor.
	svc := service.New(comp, store, service.WithCredentials(creds))
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	// HTTP mux and routes.
	mux := http.NewServeMux()
	api.NewServer(svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	log.Info(ctx, "shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}
