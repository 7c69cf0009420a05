package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	pport "go-relay/internal/infrastructure/presence/port"
	"go-relay/internal/infrastructure/realtime"
	relay "go-relay/internal/pkg/relay/application/domain"
	"go-relay/internal/pkg/relay/application/usecase"
)

const (
	defaultReadTimeout = 60 * time.Second
	presenceTimeout    = 2 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Tokens are single-use and minted per session, so origin checks add
		// nothing here; tighten if cookie auth ever appears.
		return true
	},
}

// SocketController handles the client-facing websocket endpoint: it runs the
// credential exchange on the first inbound frame, then serves subscribe
// requests until the client disconnects or the liveness deadline fires.
type SocketController struct {
	registry    *realtime.Registry
	authUC      *usecase.AuthenticateUseCase
	presence    pport.Store
	presenceTTL time.Duration
	logger      *slog.Logger
	readTimeout time.Duration
}

func NewSocketController(authUC *usecase.AuthenticateUseCase, registry *realtime.Registry, presence pport.Store, presenceTTL time.Duration, logger *slog.Logger) *SocketController {
	return &SocketController{
		registry:    registry,
		authUC:      authUC,
		presence:    presence,
		presenceTTL: presenceTTL,
		logger:      logger,
		readTimeout: defaultReadTimeout,
	}
}

// Handle upgrades the HTTP connection and processes frames until teardown.
func (ctl *SocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response.
			return
		}

		conn := realtime.NewConnection(ws)
		ctl.registry.Register(conn)
		conn.Start()
		defer func() {
			ctl.registry.Unregister(conn.ID)
			ctl.clearPresence(conn)
			conn.Close(websocket.CloseNormalClosure, "session closed")
		}()

		ws.SetReadLimit(1 << 20) // 1MB payload cap
		_ = ws.SetReadDeadline(time.Now().Add(ctl.readTimeout))
		ws.SetPongHandler(func(string) error {
			conn.Touch()
			ctl.refreshPresence(conn)
			return ws.SetReadDeadline(time.Now().Add(ctl.readTimeout))
		})

		if !ctl.authenticate(c.Request.Context(), ws, conn) {
			return
		}

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
					!errors.Is(err, websocket.ErrCloseSent) {
					// read deadline expiry lands here too: the liveness
					// monitor reaping an unresponsive peer
					ctl.logger.Debug("read loop ended", "connection_id", conn.ID, "error", err)
				}
				return
			}

			frame, err := relay.DecodeClientFrame(data)
			if err != nil {
				ctl.replyError(conn, "bad_request", "invalid payload")
				continue
			}

			switch frame.Type {
			case "subscribe":
				ctl.handleSubscribe(conn, frame)
			default:
				ctl.replyError(conn, "unsupported_type", "unknown frame type")
			}
		}
	}
}

// authenticate consumes the first inbound frame as the credential. Every
// failure path sends auth_error and closes; there is no retry on this socket.
func (ctl *SocketController) authenticate(ctx context.Context, ws *websocket.Conn, conn *realtime.Connection) bool {
	_, data, err := ws.ReadMessage()
	if err != nil {
		return false
	}

	token, err := relay.Credential(data)
	if err != nil {
		ctl.rejectAuth(conn, "invalid credential")
		return false
	}

	authCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := ctl.authUC.Execute(authCtx, usecase.AuthenticateInput{Token: token})
	if err != nil {
		if errors.Is(err, usecase.ErrPersistence) {
			ctl.logger.Error("credential lookup failed", "connection_id", conn.ID, "error", err)
		}
		ctl.rejectAuth(conn, "invalid or expired token")
		return false
	}

	if res.Guest != nil {
		if err := conn.PromoteGuest(res.Guest.GuestID, res.Guest.GroupCallID, res.Guest.ConversationID); err != nil {
			ctl.rejectAuth(conn, "invalid credential")
			return false
		}
		ctl.reply(conn, relay.NewAuthOKGuest(res.Guest.GuestID, res.Guest.ConversationID))
	} else {
		if err := conn.PromoteUser(res.UserID); err != nil {
			ctl.rejectAuth(conn, "invalid credential")
			return false
		}
		ctl.reply(conn, relay.NewAuthOKUser(res.UserID))
	}

	ctl.markPresence(conn)
	ctl.logger.Info("connection authenticated",
		"connection_id", conn.ID,
		"kind", conn.Kind().String(),
	)
	return true
}

// handleSubscribe overwrites the filter for user sessions. Guests are always
// re-acknowledged with their fixed binding; the request has no effect.
func (ctl *SocketController) handleSubscribe(conn *realtime.Connection, frame relay.ClientFrame) {
	if conn.Kind() == realtime.SessionGuest {
		bound, _ := conn.Conversation()
		ctl.reply(conn, relay.NewSubscribed(&bound))
		return
	}
	if err := conn.SetConversation(frame.ConversationID); err != nil {
		ctl.replyError(conn, "bad_request", err.Error())
		return
	}
	ctl.reply(conn, relay.NewSubscribed(frame.ConversationID))
}

func (ctl *SocketController) rejectAuth(conn *realtime.Connection, message string) {
	ctl.reply(conn, relay.NewAuthError(message))
	// Give the write loop a moment to flush the reply before the close frame.
	time.Sleep(50 * time.Millisecond)
	conn.Close(websocket.ClosePolicyViolation, "authentication failed")
}

func (ctl *SocketController) reply(conn *realtime.Connection, frame any) {
	if payload, err := json.Marshal(frame); err == nil {
		_ = conn.Send(payload)
	}
}

func (ctl *SocketController) replyError(conn *realtime.Connection, code string, message string) {
	ctl.reply(conn, relay.ErrorFrame{Type: "error", Code: code, Error: message})
}

// presenceID namespaces guests so they cannot collide with principal ids.
func presenceID(conn *realtime.Connection) string {
	switch conn.Kind() {
	case realtime.SessionUser:
		return conn.UserID()
	case realtime.SessionGuest:
		return "guest:" + conn.GuestID()
	default:
		return ""
	}
}

func (ctl *SocketController) markPresence(conn *realtime.Connection) {
	if ctl.presence == nil {
		return
	}
	id := presenceID(conn)
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := ctl.presence.MarkOnline(ctx, id, ctl.presenceTTL); err != nil {
		ctl.logger.Warn("presence mark failed", "principal", id, "error", err)
	}
}

func (ctl *SocketController) refreshPresence(conn *realtime.Connection) {
	if ctl.presence == nil {
		return
	}
	id := presenceID(conn)
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := ctl.presence.Refresh(ctx, id, ctl.presenceTTL); err != nil {
		ctl.logger.Warn("presence refresh failed", "principal", id, "error", err)
	}
}

// clearPresence removes the online mark unless another live connection still
// carries the same identity.
func (ctl *SocketController) clearPresence(conn *realtime.Connection) {
	if ctl.presence == nil {
		return
	}
	id := presenceID(conn)
	if id == "" {
		return
	}
	for _, other := range ctl.registry.All() {
		if other.ID != conn.ID && presenceID(other) == id {
			return
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	if err := ctl.presence.MarkOffline(ctx, id); err != nil {
		ctl.logger.Warn("presence clear failed", "principal", id, "error", err)
	}
}
