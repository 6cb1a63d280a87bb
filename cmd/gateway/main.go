package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/promptforge/enhance-gateway/internal/agent"
	"github.com/promptforge/enhance-gateway/internal/auth"
	"github.com/promptforge/enhance-gateway/internal/config"
	"github.com/promptforge/enhance-gateway/internal/gateway"
	"github.com/promptforge/enhance-gateway/internal/ratelimit"
	"github.com/promptforge/enhance-gateway/internal/telemetry"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configPath, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if lvl := logLevel(loader.Config().Telemetry.LogLevel); lvl != slog.LevelInfo {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
		slog.SetDefault(logger)
	}

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()

	// Rate limit store: Redis when configured and reachable, otherwise
	// per-process memory.
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable, rate limits are per-process", "error", err)
		} else {
			logger.Info("redis connected")
			store = ratelimit.NewRedisStore(rdb)
		}
	}
	limiter := ratelimit.NewLimiter(store)

	metrics := telemetry.NewMetrics()

	var verifier auth.TokenVerifier
	if url := cfg.Auth.ResolvedJWKSURL(); url != "" {
		verifier = auth.NewJWKSVerifier(url, cfg.Auth.IssuerURL, cfg.Auth.JWKSTimeout)
	}
	resolver := auth.NewResolver(loader.Config, verifier)

	runtime := agent.NewCLIRuntime(loader.Config, logger)
	invoker := agent.NewInvoker(runtime, loader.Config, logger, metrics)

	handler := gateway.NewHandler(loader.Config, resolver, limiter, invoker, metrics, logger)

	r := chi.NewRouter()
	if cfg.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Handle("/metrics", promhttp.Handler())
	handler.Routes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
		// SSE responses stay open indefinitely, so only the read side is
		// bounded.
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", addr, "version", version, "model", cfg.Agent.Model)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b))
}
