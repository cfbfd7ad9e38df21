package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/api"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/auth"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/config"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/runner"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/scheduler"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/store"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	st, closeStore, err := buildStore(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	eval := auth.NewEvaluator(st, cfg.Auth.MasterKey)
	hooks := webhook.NewDispatcher(st, cfg.Webhook.Timeout, cfg.Webhook.LogCap)
	run := runner.New(st, cfg.Runner.OpenDelay)

	sched, err := scheduler.New(cfg.Scheduler.Interval, run.Tick)
	if err != nil {
		log.Fatal(err)
	}
	sched.Start()

	handler := api.NewHandler(st, eval, hooks, sched)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: loggingMiddleware(api.Router(handler)),
	}

	go func() {
		slog.Info("crm backend listening",
			"addr", cfg.Server.Address,
			"store", cfg.Store.Backend,
			"tick", cfg.Scheduler.Interval.String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}

	sched.Stop()
	run.Close()
	hooks.Wait()
}

func buildStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := store.OpenPostgres(cfg.Store.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := pg.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	default:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddress,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		return store.NewRedisStore(rdb, cfg.Store.RedisPrefix), func() { _ = rdb.Close() }, nil
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
