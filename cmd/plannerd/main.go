// Command plannerd runs the travel planning service: HTTP API, planning
// pipeline, and the session store, wired from environment configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/djc-jpg/travel-planning-agent/core"
	"github.com/djc-jpg/travel-planning-agent/httpapi"
	"github.com/djc-jpg/travel-planning-agent/pipeline"
	"github.com/djc-jpg/travel-planning-agent/providers"
	"github.com/djc-jpg/travel-planning-agent/session"
	"github.com/djc-jpg/travel-planning-agent/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "plannerd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := core.NewConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger := core.NewSimpleLogger()

	set, err := providers.NewSet(cfg, logger)
	if err != nil {
		return fmt.Errorf("wire providers: %w", err)
	}

	p := pipeline.New(cfg, set, set.Cities())
	p.SetLogger(logger)

	store, err := newStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	metrics := telemetry.NewMetrics()
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.New(context.Background(), cfg.Telemetry, metrics, logger)
		if err != nil {
			return fmt.Errorf("start telemetry: %w", err)
		}
		defer provider.Shutdown(context.Background())
		p.SetTelemetry(provider)
		set.SetTelemetry(provider)
	}

	flags := core.NewFlagHolder(core.RuntimeFlags{EngineVersion: core.EngineVersion})
	api := httpapi.New(cfg, p, store, set, metrics, flags, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Planner listening", map[string]interface{}{
			"operation": "server_start",
			"port":      cfg.Port,
			"version":   core.EngineVersion,
		})
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("Shutting down", map[string]interface{}{
			"operation": "server_stop",
			"signal":    sig.String(),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// newStore picks Redis when a URL is configured, in-memory otherwise. The
// in-memory store is fine for a single instance; Redis is required for
// horizontal scaling.
func newStore(cfg *core.Config, logger core.Logger) (session.Store, error) {
	if cfg.Redis.URL != "" {
		return session.NewRedisStore(cfg.Redis.URL, session.Options{}, logger)
	}
	logger.Info("Using in-memory session store", map[string]interface{}{
		"operation": "store_memory",
	})
	return session.NewMemoryStore(session.Options{}), nil
}
