package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-relay/internal/infrastructure/realtime"
	relay "go-relay/internal/pkg/relay/application/domain"
)

type fakeRoster struct {
	rosters map[int64][]string
	err     error
	calls   int
}

func (f *fakeRoster) RosterFor(_ context.Context, conversationID int64) (map[string]struct{}, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	roster := make(map[string]struct{})
	for _, id := range f.rosters[conversationID] {
		roster[id] = struct{}{}
	}
	return roster, nil
}

func userConn(t *testing.T, reg *realtime.Registry, userID string, conversationID *int64) *realtime.Connection {
	t.Helper()
	conn := realtime.NewConnection(nil)
	require.NoError(t, conn.PromoteUser(userID))
	require.NoError(t, conn.SetConversation(conversationID))
	reg.Register(conn)
	return conn
}

func guestConn(t *testing.T, reg *realtime.Registry, guestID string, conversationID int64) *realtime.Connection {
	t.Helper()
	conn := realtime.NewConnection(nil)
	require.NoError(t, conn.PromoteGuest(guestID, "call-1", conversationID))
	reg.Register(conn)
	return conn
}

func newDispatch(reg *realtime.Registry, roster *fakeRoster) *DispatchEventUseCase {
	return NewDispatchEventUseCase(reg, roster, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func conv(id int64) *int64 { return &id }

func TestDispatchDirectIgnoresSubscriptionFilter(t *testing.T) {
	reg := realtime.NewRegistry()
	roster := &fakeRoster{}
	userConn(t, reg, "U1", conv(1))
	userConn(t, reg, "U1", nil)
	userConn(t, reg, "U2", conv(1))
	guestConn(t, reg, "G1", 1)

	uc := newDispatch(reg, roster)
	delivered, err := uc.Execute(context.Background(), relay.Trigger{
		Event:        relay.EventStatusRead,
		Data:         map[string]any{},
		TargetUserID: "U1",
	})

	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.Zero(t, roster.calls, "direct delivery must not consult the roster")
}

func TestDispatchConversationBroadcast(t *testing.T) {
	reg := realtime.NewRegistry()
	roster := &fakeRoster{rosters: map[int64][]string{42: {"U1", "U2"}}}
	userConn(t, reg, "U1", conv(42))
	userConn(t, reg, "U2", nil) // in roster, not even subscribed
	userConn(t, reg, "U3", conv(42))
	guestConn(t, reg, "G1", 42)
	guestConn(t, reg, "G2", 43)
	reg.Register(realtime.NewConnection(nil)) // still unauthenticated

	uc := newDispatch(reg, roster)
	id := int64(42)
	delivered, err := uc.Execute(context.Background(), relay.Trigger{
		Event:          relay.EventMessageNew,
		Data:           map[string]any{"id": 7},
		ConversationID: &id,
	})

	require.NoError(t, err)
	// U1, U2 via roster; G1 via its fixed binding. U3 is subscribed but not
	// entitled, G2 is bound elsewhere, and the unauthenticated socket never
	// receives anything.
	assert.Equal(t, 3, delivered)
}

func TestDispatchWithoutTargetDeliversNothing(t *testing.T) {
	reg := realtime.NewRegistry()
	roster := &fakeRoster{}
	userConn(t, reg, "U1", conv(1))

	uc := newDispatch(reg, roster)
	delivered, err := uc.Execute(context.Background(), relay.Trigger{Event: "ping", Data: map[string]any{}})

	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Zero(t, roster.calls)
}

func TestDispatchRosterFailureStillReachesGuests(t *testing.T) {
	reg := realtime.NewRegistry()
	roster := &fakeRoster{err: errors.New("connection refused")}
	userConn(t, reg, "U1", conv(42))
	guestConn(t, reg, "G1", 42)

	uc := newDispatch(reg, roster)
	id := int64(42)
	delivered, err := uc.Execute(context.Background(), relay.Trigger{
		Event:          relay.EventCallSignal,
		Data:           map[string]any{},
		ConversationID: &id,
	})

	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 1, delivered)
}

func TestDispatchSkipsClosedConnections(t *testing.T) {
	reg := realtime.NewRegistry()
	roster := &fakeRoster{rosters: map[int64][]string{42: {"U1", "U2"}}}
	userConn(t, reg, "U1", conv(42))
	closed := userConn(t, reg, "U2", conv(42))
	closed.Close(websocket.CloseGoingAway, "gone")

	uc := newDispatch(reg, roster)
	id := int64(42)
	delivered, err := uc.Execute(context.Background(), relay.Trigger{
		Event:          relay.EventMessageNew,
		Data:           map[string]any{},
		ConversationID: &id,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
}
