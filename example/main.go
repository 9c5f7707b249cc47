// Example worker server: a JSON API served by a pool of recyclable
// workers with sessions, a shared cache, and health probes mounted
// around the pool. Sessions live in memory unless a Redis or Postgres
// URL is configured.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	bridge "github.com/freshwire/bridge"
	"github.com/freshwire/bridge/pkg/cache"
	"github.com/freshwire/bridge/pkg/config"
	"github.com/freshwire/bridge/pkg/db"
	"github.com/freshwire/bridge/pkg/health"
	"github.com/freshwire/bridge/pkg/logger"
	"github.com/freshwire/bridge/pkg/redis"
	"github.com/freshwire/bridge/pkg/session"
)

func main() {
	cfg, err := config.Load(os.Getenv("BRIDGE_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New("example")
	if cfg.Sentry.DSN != "" {
		log = logger.NewWithSentry(logger.SentryConfig{
			DSN:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		})
	}

	ctx := context.Background()

	// Session storage is config-driven: Postgres wins over Redis, and
	// without either URL sessions stay in process memory.
	var sessions session.Store = session.NewMemoryStore()
	checks := health.Checks{}
	runOpts := []bridge.RunOption{bridge.Logger(log)}

	switch {
	case cfg.DatabaseURL != "":
		pool, err := db.Connect(ctx, db.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			log.Error("postgres unavailable", slog.Any("error", err))
			os.Exit(1)
		}
		sessions = session.NewPostgresStore(pool)
		checks["postgres"] = db.Healthcheck(pool)
		runOpts = append(runOpts, bridge.ShutdownHook(db.Shutdown(pool)))
	case cfg.RedisURL != "":
		client, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			log.Error("redis unavailable", slog.Any("error", err))
			os.Exit(1)
		}
		sessions = session.NewRedisStore(client)
		checks["redis"] = redis.Healthcheck(client)
		runOpts = append(runOpts, bridge.ShutdownHook(redis.Shutdown(client)))
	}

	// One cache shared by all workers; sessions shared the same way.
	shared := cache.NewMemory[string](cache.WithDefaultTTL(10 * time.Minute))
	defer shared.Close()

	router := chi.NewRouter()
	router.Get("/greet", greet)
	router.Post("/echo", echo)

	p := bridge.NewPool(cfg.Workers,
		bridge.FromConfig(cfg),
		bridge.WithHandler(router),
		bridge.WithLogger(log),
		bridge.WithLogFlusher(func() { logger.Flush(2 * time.Second) }),
		bridge.WithSessionStore(sessions),
		bridge.WithPersistentComponent("cache", shared),
	)

	// Health probes answer directly, without consuming a worker.
	host := chi.NewRouter()
	host.Get("/health/live", health.LivenessHandler())
	host.Get("/health/ready", health.ReadinessHandler(checks))
	host.Mount("/", p)

	runOpts = append(runOpts, bridge.Handler(host))
	if err := bridge.Run(cfg.Address, p, runOpts...); err != nil {
		log.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func greet(w http.ResponseWriter, r *http.Request) {
	s := bridge.FromContext(r.Context())
	sess, err := s.EnsureSession()
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	visits := bridge.SessionValueOr(sess, "visits", 0) + 1
	sess.SetValue("visits", visits)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"hello":  "there",
		"visits": visits,
	})
}

func echo(w http.ResponseWriter, r *http.Request) {
	s := bridge.FromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.Request().Body)
}
