package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"go-relay/internal/infrastructure/realtime"
	relay "go-relay/internal/pkg/relay/application/domain"
	repository "go-relay/internal/pkg/relay/persistence/repository/port"
)

// ConnectionSource yields a snapshot of the live connection set. Satisfied by
// *realtime.Registry.
type ConnectionSource interface {
	All() []*realtime.Connection
}

// DispatchEventUseCase resolves a trigger into per-connection deliveries.
//
// Direct mode (TargetUserID set) is identity-addressed: every live connection
// bound to the principal receives the event regardless of its subscription
// filter, so delivery-status updates reach the author no matter which
// conversation they are viewing. Conversation mode consults the roster for
// user sessions; guest sessions are matched only against their own fixed
// binding, never the roster.
//
// Delivery is fire-and-forget: one connection's send failure is logged and
// never aborts the remaining deliveries or reaches the trigger's originator.
type DispatchEventUseCase struct {
	Registry ConnectionSource
	Roster   repository.RosterStore
	Logger   *slog.Logger
}

func NewDispatchEventUseCase(registry ConnectionSource, roster repository.RosterStore, logger *slog.Logger) *DispatchEventUseCase {
	return &DispatchEventUseCase{Registry: registry, Roster: roster, Logger: logger}
}

// Execute fans the trigger out and reports how many connections were reached.
// A trigger with no target selector resolves to zero deliveries and no error.
// A roster lookup failure is returned after guest-bound deliveries complete;
// callers log it and move on, per best-effort semantics.
func (uc *DispatchEventUseCase) Execute(ctx context.Context, trig relay.Trigger) (int, error) {
	payload, err := trig.Payload()
	if err != nil {
		return 0, fmt.Errorf("encode event payload: %w", err)
	}

	conns := uc.Registry.All()

	if trig.TargetUserID != "" {
		return uc.deliverDirect(conns, trig.TargetUserID, trig.Event, payload), nil
	}
	if trig.ConversationID == nil {
		return 0, nil
	}

	var rosterErr error
	roster, err := uc.Roster.RosterFor(ctx, *trig.ConversationID)
	if err != nil {
		rosterErr = fmt.Errorf("%w: %v", ErrPersistence, err)
		roster = nil
	}
	return uc.deliverConversation(conns, roster, *trig.ConversationID, trig.Event, payload), rosterErr
}

func (uc *DispatchEventUseCase) deliverDirect(conns []*realtime.Connection, userID, event string, payload []byte) int {
	delivered := 0
	for _, conn := range conns {
		if conn.Kind() != realtime.SessionUser || conn.UserID() != userID {
			continue
		}
		if uc.send(conn, event, payload) {
			delivered++
		}
	}
	return delivered
}

func (uc *DispatchEventUseCase) deliverConversation(conns []*realtime.Connection, roster map[string]struct{}, conversationID int64, event string, payload []byte) int {
	delivered := 0
	for _, conn := range conns {
		switch conn.Kind() {
		case realtime.SessionUser:
			if _, ok := roster[conn.UserID()]; !ok {
				continue
			}
		case realtime.SessionGuest:
			bound, ok := conn.Conversation()
			if !ok || bound != conversationID {
				continue
			}
		default:
			continue
		}
		if uc.send(conn, event, payload) {
			delivered++
		}
	}
	return delivered
}

func (uc *DispatchEventUseCase) send(conn *realtime.Connection, event string, payload []byte) bool {
	if err := conn.Send(payload); err != nil {
		uc.Logger.Warn("event delivery failed",
			"connection_id", conn.ID,
			"event", event,
			"error", err,
		)
		return false
	}
	return true
}
