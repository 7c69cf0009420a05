package task

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qport "go-relay/internal/infrastructure/queue/port"
	"go-relay/internal/infrastructure/realtime"
	relay "go-relay/internal/pkg/relay/application/domain"
	"go-relay/internal/pkg/relay/application/usecase"
)

type fakeQueueServer struct {
	handlers map[string]qport.Handler
}

func (f *fakeQueueServer) Register(taskType string, h qport.Handler) {
	if f.handlers == nil {
		f.handlers = make(map[string]qport.Handler)
	}
	f.handlers[taskType] = h
}

func (f *fakeQueueServer) Run(ctx context.Context) error  { <-ctx.Done(); return nil }
func (f *fakeQueueServer) Stop(ctx context.Context) error { return nil }

type staticRoster map[int64][]string

func (s staticRoster) RosterFor(_ context.Context, conversationID int64) (map[string]struct{}, error) {
	roster := make(map[string]struct{})
	for _, id := range s[conversationID] {
		roster[id] = struct{}{}
	}
	return roster, nil
}

func newHandler(t *testing.T, reg *realtime.Registry) qport.Handler {
	t.Helper()
	srv := &fakeQueueServer{}
	uc := usecase.NewDispatchEventUseCase(reg, staticRoster{42: {"U1"}}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	RegisterDispatchEventTask(srv, uc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h, ok := srv.handlers[DispatchEventTaskType]
	require.True(t, ok)
	return h
}

func TestDispatchEventTaskRoundTrip(t *testing.T) {
	reg := realtime.NewRegistry()
	conn := realtime.NewConnection(nil)
	require.NoError(t, conn.PromoteUser("U1"))
	reg.Register(conn)

	id := int64(42)
	qt, err := NewDispatchEventTask(relay.Trigger{
		Event:          relay.EventMessageNew,
		Data:           map[string]any{"id": 7},
		ConversationID: &id,
	})
	require.NoError(t, err)
	assert.Equal(t, DispatchEventTaskType, qt.Type)

	h := newHandler(t, reg)
	require.NoError(t, h(context.Background(), qt))
}

func TestDispatchEventTaskDropsMalformedPayload(t *testing.T) {
	h := newHandler(t, realtime.NewRegistry())

	err := h(context.Background(), qport.Task{Type: DispatchEventTaskType, Payload: []byte("not json")})
	assert.NoError(t, err, "malformed payloads must not be retried")
}
