package http

import (
	"log/slog"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	pport "go-relay/internal/infrastructure/presence/port"
	"go-relay/internal/infrastructure/realtime"
	"go-relay/internal/pkg/relay/application/usecase"
	repoAdapter "go-relay/internal/pkg/relay/persistence/repository/adapter"
	"go-relay/internal/pkg/relay/presentation/controller"
)

// RegisterRoutes mounts the client-facing websocket endpoint under the given
// router group.
func RegisterRoutes(g *gin.RouterGroup, pool *pgxpool.Pool, registry *realtime.Registry, presence pport.Store, presenceTTL time.Duration, logger *slog.Logger) {
	store := repoAdapter.NewPgRelayStore(pool)
	socketCtl := controller.NewSocketController(usecase.NewAuthenticateUseCase(store), registry, presence, presenceTTL, logger)

	// GET /ws -> websocket endpoint; the first frame is the credential
	g.GET("/ws", socketCtl.Handle())
}

// RegisterTriggerRoutes wires the loopback trigger listener: POST to /event
// (any suffix) or the root dispatches; everything else is a generic 400 so
// the application tier never mistakes a typo for success.
func RegisterTriggerRoutes(r *gin.Engine, dispatch *usecase.DispatchEventUseCase, logger *slog.Logger) {
	ctl := controller.NewTriggerController(dispatch, logger)

	r.POST("/", ctl.Handle())
	r.POST("/event", ctl.Handle())

	r.HandleMethodNotAllowed = true
	r.NoMethod(controller.BadRequest())
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method == nethttp.MethodPost && strings.HasPrefix(c.Request.URL.Path, "/event/") {
			ctl.Handle()(c)
			return
		}
		controller.BadRequest()(c)
	})
}
