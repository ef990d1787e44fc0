// Command amasd runs the AMAS decision engine behind an HTTP API: submit
// learning events, inspect user state, and stream live decisions over a
// websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tutu-network/tutu/internal/api"
	"github.com/tutu-network/tutu/internal/config"
	"github.com/tutu-network/tutu/internal/domain"
	"github.com/tutu-network/tutu/internal/engine"
	"github.com/tutu-network/tutu/internal/store/memstore"
	"github.com/tutu-network/tutu/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[amasd] load config: %v", err)
	}

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		log.Fatalf("[amasd] open store: %v", err)
	}
	defer closeStore()

	engCfg := engine.DefaultConfig()
	engCfg.Bandit.Alpha = cfg.Engine.BanditAlpha
	engCfg.Bandit.Lambda = cfg.Engine.BanditLambda
	eng := engine.New(store, engCfg)

	server := api.NewServer(eng)
	server.EnableMetrics()

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[amasd] listening on %s (store=%s)", addr, cfg.Store.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Printf("[amasd] shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Fatalf("[amasd] server error: %v", err)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownGracePeriod())
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[amasd] graceful shutdown failed: %v", err)
		os.Exit(1)
	}
	log.Printf("[amasd] stopped")
}

func openStore(cfg config.StoreConfig) (domain.StateStore, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "amas.db"
		}
		db, err := sqlite.Open(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store %s: %w", dsn, err)
		}
		return db, func() {
			if err := db.Close(); err != nil {
				log.Printf("[amasd] error closing store: %v", err)
			}
		}, nil
	default:
		return memstore.New(), func() {}, nil
	}
}
