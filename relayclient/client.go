// Package relayclient is a Go client for the relay's websocket protocol:
// it authenticates with a token on connect, keeps the subscription across
// reconnects, and dispatches incoming events to registered handlers.
package relayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	writeWait      = 10 * time.Second
)

// ErrAuthFailed is returned by Run when the relay rejects the credential.
// Tokens are single-use, so reconnecting with the same one cannot succeed.
var ErrAuthFailed = errors.New("relayclient: authentication failed")

// Identity is the relay's auth_ok acknowledgment.
type Identity struct {
	UserID         string `json:"user_id"`
	GuestID        string `json:"guest_id"`
	ConversationID *int64 `json:"conversation_id"`
}

// Handler receives one decoded event frame.
type Handler func(event string, data json.RawMessage)

// Config carries the connection settings for a Client. Logger and OnConnect
// are optional.
type Config struct {
	URL       string // websocket endpoint, e.g. ws://localhost:8080/api/v1/ws
	Token     string
	Logger    *slog.Logger
	OnConnect func(Identity)
}

// Client maintains one relay connection, reconnecting with exponential
// backoff when it drops. Safe for concurrent use.
type Client struct {
	cfg Config

	mu           sync.Mutex
	conn         *websocket.Conn
	handlers     map[string]Handler
	catchAll     Handler
	subscription *int64
	subscribed   bool
}

// New constructs a Client. Run must be called to connect.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.Token == "" {
		return nil, errors.New("relayclient: URL and Token are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{cfg: cfg, handlers: make(map[string]Handler)}, nil
}

// On registers a handler for one event name.
func (c *Client) On(event string, h Handler) {
	c.mu.Lock()
	c.handlers[event] = h
	c.mu.Unlock()
}

// OnAny registers a fallback handler for events with no dedicated handler.
func (c *Client) OnAny(h Handler) {
	c.mu.Lock()
	c.catchAll = h
	c.mu.Unlock()
}

// Subscribe sets the conversation filter. The request is sent immediately
// when connected and re-sent after every reconnect.
func (c *Client) Subscribe(conversationID int64) error {
	c.mu.Lock()
	c.subscription = &conversationID
	c.subscribed = true
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return c.write(conn, map[string]any{"type": "subscribe", "conversation_id": conversationID})
}

// Unsubscribe clears the conversation filter.
func (c *Client) Unsubscribe() error {
	c.mu.Lock()
	c.subscription = nil
	c.subscribed = true
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return c.write(conn, map[string]any{"type": "subscribe", "conversation_id": nil})
}

// Run connects and serves events until ctx is canceled or authentication
// fails. Transport drops are retried with exponential backoff.
func (c *Client) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		authed, err := c.session(ctx)
		if errors.Is(err, ErrAuthFailed) {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if authed {
			backoff = initialBackoff
		}
		c.cfg.Logger.Warn("relay connection lost, reconnecting", "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

// session runs one connect-auth-read cycle. The returned bool reports
// whether authentication succeeded before the connection dropped.
func (c *Client) session(ctx context.Context) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	if err := c.write(conn, map[string]any{"type": "auth", "token": c.cfg.Token}); err != nil {
		return false, fmt.Errorf("send credential: %w", err)
	}

	identity, err := readAuthReply(conn)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.conn = conn
	sub, pending := c.subscription, c.subscribed
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	if pending {
		if err := c.write(conn, map[string]any{"type": "subscribe", "conversation_id": sub}); err != nil {
			return true, fmt.Errorf("resubscribe: %w", err)
		}
	}
	if c.cfg.OnConnect != nil {
		c.cfg.OnConnect(identity)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		c.dispatch(data)
	}
}

func readAuthReply(conn *websocket.Conn) (Identity, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return Identity{}, fmt.Errorf("read auth reply: %w", err)
	}

	var reply struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Identity
	}
	if err := json.Unmarshal(data, &reply); err != nil {
		return Identity{}, fmt.Errorf("decode auth reply: %w", err)
	}
	switch reply.Type {
	case "auth_ok":
		return reply.Identity, nil
	case "auth_error":
		return Identity{}, fmt.Errorf("%w: %s", ErrAuthFailed, reply.Message)
	default:
		return Identity{}, fmt.Errorf("unexpected auth reply %q", reply.Type)
	}
}

func (c *Client) dispatch(data []byte) {
	var frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
		c.cfg.Logger.Warn("dropping undecodable frame", "error", err)
		return
	}

	c.mu.Lock()
	h, ok := c.handlers[frame.Type]
	if !ok {
		h = c.catchAll
	}
	c.mu.Unlock()

	if h != nil {
		h(frame.Type, frame.Data)
	}
}

// write serializes concurrent writers; gorilla allows only one at a time.
func (c *Client) write(conn *websocket.Conn, frame any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
