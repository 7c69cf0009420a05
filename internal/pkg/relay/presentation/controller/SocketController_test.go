package controller

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-relay/internal/infrastructure/realtime"
	relay "go-relay/internal/pkg/relay/application/domain"
	"go-relay/internal/pkg/relay/application/usecase"
	repository "go-relay/internal/pkg/relay/persistence/repository/port"
)

type memoryTokenStore struct {
	mu     sync.Mutex
	users  map[string]string
	guests map[string]repository.GuestGrant
}

func (m *memoryTokenStore) ConsumeUserToken(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if userID, ok := m.users[token]; ok {
		delete(m.users, token)
		return userID, nil
	}
	return "", repository.ErrTokenNotFound
}

func (m *memoryTokenStore) ResolveGuestToken(_ context.Context, token string) (repository.GuestGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if grant, ok := m.guests[token]; ok {
		return grant, nil
	}
	return repository.GuestGrant{}, repository.ErrTokenNotFound
}

type relayFixture struct {
	registry *realtime.Registry
	store    *memoryTokenStore
	server   *httptest.Server
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &memoryTokenStore{
		users:  map[string]string{"abc123": "U1"},
		guests: map[string]repository.GuestGrant{"guest-token": {GuestID: "G1", GroupCallID: "C1", ConversationID: 42}},
	}
	registry := realtime.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctl := NewSocketController(usecase.NewAuthenticateUseCase(store), registry, nil, time.Minute, logger)

	r := gin.New()
	r.GET("/ws", ctl.Handle())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &relayFixture{registry: registry, store: store, server: srv}
}

func (f *relayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func writeFrame(t *testing.T, ws *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func TestSocketAuthAndSubscribe(t *testing.T) {
	f := newRelayFixture(t)
	ws := f.dial(t)

	writeFrame(t, ws, "abc123")
	ack := readFrame(t, ws)
	assert.Equal(t, "auth_ok", ack["type"])
	assert.Equal(t, "U1", ack["user_id"])

	writeFrame(t, ws, `{"type":"subscribe","conversation_id":42}`)
	sub := readFrame(t, ws)
	assert.Equal(t, "subscribed", sub["type"])
	assert.Equal(t, float64(42), sub["conversation_id"])

	writeFrame(t, ws, `{"type":"subscribe","conversation_id":null}`)
	sub = readFrame(t, ws)
	assert.Equal(t, "subscribed", sub["type"])
	assert.Nil(t, sub["conversation_id"])
}

func TestSocketStructuredAuthFrame(t *testing.T) {
	f := newRelayFixture(t)
	ws := f.dial(t)

	writeFrame(t, ws, `{"type":"auth","token":"abc123"}`)
	ack := readFrame(t, ws)
	assert.Equal(t, "auth_ok", ack["type"])
	assert.Equal(t, "U1", ack["user_id"])
}

func TestSocketGuestAuthHasFixedSubscription(t *testing.T) {
	f := newRelayFixture(t)
	ws := f.dial(t)

	writeFrame(t, ws, "guest-token")
	ack := readFrame(t, ws)
	assert.Equal(t, "auth_ok", ack["type"])
	assert.Equal(t, "G1", ack["guest_id"])
	assert.Equal(t, float64(42), ack["conversation_id"])

	// A guest subscribe is acknowledged with the fixed binding, unchanged.
	writeFrame(t, ws, `{"type":"subscribe","conversation_id":7}`)
	sub := readFrame(t, ws)
	assert.Equal(t, "subscribed", sub["type"])
	assert.Equal(t, float64(42), sub["conversation_id"])
}

func TestSocketTokenReplayIsRejected(t *testing.T) {
	f := newRelayFixture(t)

	first := f.dial(t)
	writeFrame(t, first, "abc123")
	require.Equal(t, "auth_ok", readFrame(t, first)["type"])

	second := f.dial(t)
	writeFrame(t, second, "abc123")
	reply := readFrame(t, second)
	assert.Equal(t, "auth_error", reply["type"])

	// The failed socket gets closed; the first session stays authenticated.
	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := second.ReadMessage()
	assert.Error(t, err)

	writeFrame(t, first, `{"type":"subscribe","conversation_id":1}`)
	assert.Equal(t, "subscribed", readFrame(t, first)["type"])
}

func TestSocketMalformedCredential(t *testing.T) {
	f := newRelayFixture(t)
	ws := f.dial(t)

	writeFrame(t, ws, strings.Repeat("a", 200))
	reply := readFrame(t, ws)
	assert.Equal(t, "auth_error", reply["type"])
}

func TestSocketUnknownFrameType(t *testing.T) {
	f := newRelayFixture(t)
	ws := f.dial(t)

	writeFrame(t, ws, "abc123")
	require.Equal(t, "auth_ok", readFrame(t, ws)["type"])

	writeFrame(t, ws, `{"type":"dance"}`)
	reply := readFrame(t, ws)
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, "unsupported_type", reply["code"])
}

func TestSocketReceivesDispatchedEvents(t *testing.T) {
	f := newRelayFixture(t)
	ws := f.dial(t)

	writeFrame(t, ws, "abc123")
	require.Equal(t, "auth_ok", readFrame(t, ws)["type"])

	roster := rosterFunc(func(conversationID int64) map[string]struct{} {
		return map[string]struct{}{"U1": {}}
	})
	dispatch := usecase.NewDispatchEventUseCase(f.registry, roster, slog.New(slog.NewTextHandler(io.Discard, nil)))

	id := int64(42)
	delivered, err := dispatch.Execute(context.Background(), relay.Trigger{
		Event:          "message.new",
		Data:           map[string]any{"id": 7},
		ConversationID: &id,
	})
	require.NoError(t, err)
	require.Equal(t, 1, delivered)

	event := readFrame(t, ws)
	assert.Equal(t, "message.new", event["type"])
	data, ok := event["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(7), data["id"])
	assert.Equal(t, float64(42), data["conversation_id"])
}

type rosterFunc func(conversationID int64) map[string]struct{}

func (fn rosterFunc) RosterFor(_ context.Context, conversationID int64) (map[string]struct{}, error) {
	return fn(conversationID), nil
}
