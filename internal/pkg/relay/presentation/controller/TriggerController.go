package controller

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	relay "go-relay/internal/pkg/relay/application/domain"
	"go-relay/internal/pkg/relay/application/usecase"
)

const (
	maxTriggerBody  = 1 << 20
	dispatchTimeout = 5 * time.Second
)

// TriggerController accepts one-shot dispatch requests from the application
// tier over the loopback listener. The caller only learns whether the trigger
// was accepted, never whether delivery happened; a target that resolves to
// zero connections is still a success.
type TriggerController struct {
	dispatch *usecase.DispatchEventUseCase
	logger   *slog.Logger
}

func NewTriggerController(dispatch *usecase.DispatchEventUseCase, logger *slog.Logger) *TriggerController {
	return &TriggerController{dispatch: dispatch, logger: logger}
}

// Handle decodes the trigger body and hands it to the broadcaster.
func (ctl *TriggerController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxTriggerBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		trig, err := relay.DecodeTrigger(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), dispatchTimeout)
		defer cancel()

		delivered, err := ctl.dispatch.Execute(ctx, trig)
		if err != nil {
			// Best-effort: the trigger was well-formed, so the caller still
			// gets a success; only the relay log records the partial fan-out.
			ctl.logger.Error("trigger dispatch degraded", "event", trig.Event, "error", err)
		}
		ctl.logger.Debug("trigger dispatched", "event", trig.Event, "delivered", delivered)

		c.String(http.StatusOK, "OK")
	}
}

// BadRequest answers everything the trigger listener does not serve.
func BadRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
	}
}
