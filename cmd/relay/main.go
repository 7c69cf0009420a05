package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	v1 "go-relay/cmd/relay/router/v1"
	"go-relay/internal/config"
	"go-relay/internal/infrastructure/database"
	presenceAdapter "go-relay/internal/infrastructure/presence/adapter"
	queueAdapter "go-relay/internal/infrastructure/queue/adapter"
	"go-relay/internal/infrastructure/realtime"
	"go-relay/internal/pkg/relay/application/task"
	"go-relay/internal/pkg/relay/application/usecase"
	repoAdapter "go-relay/internal/pkg/relay/persistence/repository/adapter"
	httpHandler "go-relay/internal/pkg/relay/presentation/http"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the external store on startup
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pool, err := database.Connect(connectCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	presence, err := presenceAdapter.NewRedisPresence(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer presence.Close()

	registry := realtime.NewRegistry()
	store := repoAdapter.NewPgRelayStore(pool)
	dispatchUC := usecase.NewDispatchEventUseCase(registry, store, logger)

	// Public server: websocket endpoint + health
	public := gin.Default()
	public.GET("/healthz", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		if err := presence.Ping(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK", "connections": registry.Len()})
	})
	v1.RegisterRoutes(public, pool, registry, presence, cfg.PresenceTTL, logger)

	// Trigger listener: loopback-only intake for the application tier
	trigger := gin.New()
	trigger.Use(gin.Recovery())
	httpHandler.RegisterTriggerRoutes(trigger, dispatchUC, logger)

	// Queue intake: same dispatch path, fed by background workers
	queueSrv, err := queueAdapter.NewAsynqServer(cfg.RedisURL, logger)
	if err != nil {
		log.Fatalf("failed to build queue server: %v", err)
	}
	task.RegisterDispatchEventTask(queueSrv, dispatchUC, logger)

	publicSrv := &http.Server{Addr: cfg.PublicAddr, Handler: public}
	triggerSrv := &http.Server{Addr: cfg.TriggerAddr, Handler: trigger}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("public server listening", "addr", cfg.PublicAddr)
		if err := publicSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("trigger listener bound", "addr", cfg.TriggerAddr)
		if err := triggerSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := queueSrv.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = publicSrv.Shutdown(shutdownCtx)
	_ = triggerSrv.Shutdown(shutdownCtx)
	_ = queueSrv.Stop(shutdownCtx)
	registry.Close(1001, "server shutdown")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
