// main is the entry point of the overbyte network balancer.
// It tracks live game servers, assigns the least loaded one to new sessions
// and keeps the server history in SQLite.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/woozymasta/overbyte/internal/config"
	"github.com/woozymasta/overbyte/internal/logger"
	"github.com/woozymasta/overbyte/internal/maintenance"
	"github.com/woozymasta/overbyte/internal/metrics"
	"github.com/woozymasta/overbyte/internal/registry"
	"github.com/woozymasta/overbyte/internal/server"
	"github.com/woozymasta/overbyte/internal/storage"
)

func main() {
	cfg := config.ParseBalancer()

	logger.Setup(cfg.Logger)
	log.Info().Msg("Starting overbyte network balancer...")

	// Database
	var (
		store   *storage.Repository
		history server.HistoryStore
		pruner  maintenance.Pruner
	)
	if cfg.Storage.Path != "" {
		var err error
		store, err = storage.New(cfg.Storage.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing database")
			}
		}()
		history, pruner = store, store
	} else {
		log.Warn().Msg("Database path not set, server history disabled")
	}

	if maintenance.Run(cfg, pruner) {
		return
	}

	reg := registry.New(registry.Config{Staleness: cfg.Registry.Staleness})
	m := metrics.NewBalancer(metrics.BalancerSources{
		Servers: reg.Len,
		Online:  reg.Online,
		Players: reg.Players,
	})

	// Init server
	srv := server.NewBalancer(reg, history, m, cfg)
	reg.OnEvict(srv.RecordEviction)

	// Background queue
	srv.StartWorkers()

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		reg.Run(gctx, cfg.Registry.SweepInterval)
		return nil
	})

	// Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server failed")
	}

	// Stop workers (wait queue done)
	srv.StopWorkers()

	log.Info().Msg("Server exited")
}
