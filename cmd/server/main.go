package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	authapi "github.com/framerate-dev/tokenvault/api/echo"
	"github.com/framerate-dev/tokenvault/cache"
	"github.com/framerate-dev/tokenvault/config"
	"github.com/framerate-dev/tokenvault/domain"
	"github.com/framerate-dev/tokenvault/internal/server"
	"github.com/framerate-dev/tokenvault/log"
	"github.com/framerate-dev/tokenvault/memstore"
	authmw "github.com/framerate-dev/tokenvault/middleware"
	"github.com/framerate-dev/tokenvault/mongodb"
	"github.com/framerate-dev/tokenvault/redisstore"
	"github.com/framerate-dev/tokenvault/services"
	"github.com/framerate-dev/tokenvault/tracing"
	"github.com/framerate-dev/tokenvault/workos"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger := log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "Starting tokenvault server...", map[string]interface{}{
		"http_port":       cfg.HTTPPort,
		"session_backend": cfg.SessionBackend,
		"log_level":       cfg.LogLevel,
	})

	tracerProvider, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err)
	}

	sessionRepo, healthCheck, err := buildSessionRepository(ctx, cfg)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize session storage", err)
	}

	if cfg.SessionCacheTTLSec > 0 {
		cached := cache.NewCachedSessionRepository(sessionRepo, time.Duration(cfg.SessionCacheTTLSec)*time.Second)
		defer cached.Close()
		sessionRepo = cached
	}

	exchanger, err := workos.NewClient(cfg.WorkOSClientID, workos.WithTokenURL(cfg.WorkOSTokenURL))
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize WorkOS client", err)
	}

	jwksURL := cfg.WorkOSJWKSURL
	if jwksURL == "" {
		jwksURL = fmt.Sprintf("https://api.workos.com/sso/jwks/%s", cfg.WorkOSClientID)
	}
	verifier := authmw.NewTokenVerifier(jwksURL)
	defer verifier.Close()

	authAPI := authapi.NewAuthAPI(
		services.NewRefreshService(sessionRepo, exchanger),
		services.NewSessionService(sessionRepo),
	)

	httpServer := server.NewHTTPServer(cfg, appLogger, authAPI, verifier, healthCheck)

	go func() {
		appLogger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(ctx, "HTTP server failed", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info(ctx, "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown failed", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "TracerProvider shutdown failed", err)
	}
	if cfg.SessionBackend == config.BackendMongo {
		mongodb.Close(shutdownCtx)
	}
	appLogger.Info(ctx, "Shutdown complete.")
}

// buildSessionRepository wires the configured storage backend and returns it
// together with the matching health check.
func buildSessionRepository(ctx context.Context, cfg *config.ServerConfig) (domain.SessionRepository, func(context.Context) error, error) {
	switch cfg.SessionBackend {
	case config.BackendMongo:
		if err := mongodb.Init(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
			return nil, nil, err
		}
		repo, err := mongodb.NewSessionRepositoryMongo(ctx, mongodb.DB())
		if err != nil {
			return nil, nil, err
		}
		return repo, mongodb.Ping, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, err
		}
		healthCheck := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return redisstore.NewSessionRepository(client, cfg.RedisKeyPrefix), healthCheck, nil

	default: // config.BackendMemory
		healthCheck := func(context.Context) error { return nil }
		return memstore.NewSessionRepository(), healthCheck, nil
	}
}
