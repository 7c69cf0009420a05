package task

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	qport "go-relay/internal/infrastructure/queue/port"
	relay "go-relay/internal/pkg/relay/application/domain"
	"go-relay/internal/pkg/relay/application/usecase"
)

// DispatchEventTaskType is the queue task name for relay event dispatch.
// Background workers in the application tier enqueue this instead of calling
// the HTTP trigger listener.
const DispatchEventTaskType = "relay:event"

// dispatchEventPayload mirrors the HTTP trigger body so both intake channels
// share one wire shape.
type dispatchEventPayload struct {
	Event          string         `json:"event"`
	Data           map[string]any `json:"data,omitempty"`
	TargetUserID   string         `json:"target_user_id,omitempty"`
	ConversationID *int64         `json:"conversation_id,omitempty"`
}

// NewDispatchEventTask builds the queue task for a trigger.
func NewDispatchEventTask(trig relay.Trigger) (qport.Task, error) {
	payload, err := json.Marshal(dispatchEventPayload{
		Event:          trig.Event,
		Data:           trig.Data,
		TargetUserID:   trig.TargetUserID,
		ConversationID: trig.ConversationID,
	})
	if err != nil {
		return qport.Task{}, err
	}
	return qport.Task{Type: DispatchEventTaskType, Payload: payload}, nil
}

// RegisterDispatchEventTask binds the dispatch handler to the provided server.
// Malformed payloads are dropped, not retried; a retry cannot fix them.
func RegisterDispatchEventTask(srv qport.Server, dispatch *usecase.DispatchEventUseCase, logger *slog.Logger) {
	srv.Register(DispatchEventTaskType, func(ctx context.Context, t qport.Task) error {
		trig, err := relay.DecodeTrigger(t.Payload)
		if err != nil {
			logger.Warn("dropping malformed queue trigger", "error", err)
			return nil
		}

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		delivered, err := dispatch.Execute(ctx, trig)
		if err != nil {
			// roster lookup failed; deliveries that did not depend on it
			// already went out, so retrying would double-deliver
			logger.Error("queue trigger dispatch failed", "event", trig.Event, "error", err)
			return nil
		}
		logger.Debug("queue trigger dispatched", "event", trig.Event, "delivered", delivered)
		return nil
	})
}
