package v1

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	pport "go-relay/internal/infrastructure/presence/port"
	"go-relay/internal/infrastructure/realtime"
	httpHandler "go-relay/internal/pkg/relay/presentation/http"
)

// RegisterRoutes mounts all version 1 API routes under /api/v1
func RegisterRoutes(r *gin.Engine, pool *pgxpool.Pool, registry *realtime.Registry, presence pport.Store, presenceTTL time.Duration, logger *slog.Logger) {
	v1 := r.Group("/api/v1")
	httpHandler.RegisterRoutes(v1, pool, registry, presence, presenceTTL, logger)
}
