package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fleetvrp/internal/api"
	"fleetvrp/internal/buildinfo"
	"fleetvrp/internal/config"
	"fleetvrp/internal/events"
	"fleetvrp/internal/matrix"
	"fleetvrp/internal/planner"
	"fleetvrp/internal/store"
	"fleetvrp/internal/webhooks"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	flag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	st, closeStore, err := openStore(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	defer closeStore()

	broker := openBroker(cfg.Events)
	pl := planner.New(st, broker, webhooks.NewPublisher(st), matrix.NewCache(cfg.Server.MatrixCacheSize), cfg.Solver)
	srvDeps := api.NewServer(cfg, st, broker, pl)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srvDeps.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	// Start callback worker
	worker := webhooks.NewWorker(st, cfg.Callbacks.MaxAttempts, cfg.Callbacks.Timeout)
	worker.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		log.Printf("API listening addr=%s version=%s auth=%s", srv.Addr, buildinfo.Version, srvDeps.Auth.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown err=%v", err)
	}
	// let background solves record their outcome before the store closes
	pl.Wait()
	close(worker.Stop)
}

// openStore picks Postgres when DATABASE_URL is set, otherwise memory.
func openStore(cfg config.Storage) (store.Store, func(), error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Printf("store=memory")
		return store.NewMemory(), func() {}, nil
	}
	pg, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Migrate {
		if err := pg.MigrateDir(cfg.MigrationsDir); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
	}
	log.Printf("store=postgres migrate=%t", cfg.Migrate)
	return pg, func() { _ = pg.Close() }, nil
}

// openBroker uses Redis Pub/Sub when REDIS_URL is set so events reach every
// replica; a bad URL falls back to the in-process broker.
func openBroker(cfg config.Events) events.EventBroker {
	if cfg.RedisURL == "" {
		return events.NewBroker()
	}
	rb, err := events.NewRedisBroker(cfg.RedisURL)
	if err != nil {
		log.Printf("events: redis unavailable, using in-memory broker err=%v", err)
		return events.NewBroker()
	}
	log.Printf("events=redis")
	return rb
}
