package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 128
)

// SessionKind describes how far a connection has progressed through the
// credential exchange.
type SessionKind int

const (
	SessionUnauthenticated SessionKind = iota
	SessionUser
	SessionGuest
)

func (k SessionKind) String() string {
	switch k {
	case SessionUser:
		return "user"
	case SessionGuest:
		return "guest"
	default:
		return "unauthenticated"
	}
}

var (
	// ErrConnectionClosed is returned by Send after Close has been called.
	ErrConnectionClosed = errors.New("realtime: connection closed")
	// ErrAlreadyPromoted is returned when a second promotion is attempted.
	ErrAlreadyPromoted = errors.New("realtime: connection already promoted")
	// ErrFixedSubscription is returned when a guest tries to change its binding.
	ErrFixedSubscription = errors.New("realtime: guest subscription is fixed")
)

// Connection wraps a websocket and coordinates outbound writes via a buffered
// channel. It also carries the session state the relay needs for fan-out:
// every connection starts unauthenticated and is promoted exactly once, after
// which its identity is immutable for the connection's lifetime. Only the
// subscription filter of a user session may change afterwards.
type Connection struct {
	ID string

	ws     *websocket.Conn
	send   chan []byte
	once   sync.Once
	closed chan struct{}

	mu           sync.RWMutex
	kind         SessionKind
	userID       string
	guestID      string
	callID       string
	conversation *int64
	lastSeen     time.Time
}

// NewConnection constructs an unauthenticated Connection around ws.
func NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:       uuid.NewString(),
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		closed:   make(chan struct{}),
		lastSeen: time.Now(),
	}
}

// Start launches the write loop. It must be called exactly once per connection.
func (c *Connection) Start() {
	go c.writeLoop()
}

// PromoteUser transitions the connection to an authenticated user session.
func (c *Connection) PromoteUser(userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kind != SessionUnauthenticated {
		return ErrAlreadyPromoted
	}
	c.kind = SessionUser
	c.userID = userID
	return nil
}

// PromoteGuest transitions the connection to an authenticated guest session.
// The conversation binding set here is final.
func (c *Connection) PromoteGuest(guestID, callID string, conversationID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kind != SessionUnauthenticated {
		return ErrAlreadyPromoted
	}
	c.kind = SessionGuest
	c.guestID = guestID
	c.callID = callID
	c.conversation = &conversationID
	return nil
}

// SetConversation overwrites the subscription filter of a user session.
// Nil clears the filter.
func (c *Connection) SetConversation(conversationID *int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kind == SessionGuest {
		return ErrFixedSubscription
	}
	c.conversation = conversationID
	return nil
}

// Kind reports the current session kind.
func (c *Connection) Kind() SessionKind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kind
}

// UserID returns the bound principal identifier; empty unless kind is user.
func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// GuestID returns the bound guest identifier; empty unless kind is guest.
func (c *Connection) GuestID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.guestID
}

// CallID returns the owning group call identifier; empty unless kind is guest.
func (c *Connection) CallID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.callID
}

// Conversation returns the subscription filter, if any. For guest sessions
// this is the fixed binding established at promotion.
func (c *Connection) Conversation() (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conversation == nil {
		return 0, false
	}
	return *c.conversation, true
}

// Touch records liveness; called when a pong arrives.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// LastSeen returns the time of the last observed liveness signal.
func (c *Connection) LastSeen() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSeen
}

// Send enqueues payload for delivery. If the client is slow and the buffer is
// full, the connection is closed to keep backpressure bounded.
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}
	select {
	case <-c.closed:
		return ErrConnectionClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("realtime: send buffer exceeded")
	}
}

// Close terminates the connection and stops the write loop. Safe to call more
// than once.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		if c.ws == nil {
			return
		}
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// Done is closed when the connection has been closed.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}

func (c *Connection) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
