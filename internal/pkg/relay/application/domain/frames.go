package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// maxTokenLen bounds a bare credential frame. Structured auth frames carry
// the same bound on the token field itself.
const maxTokenLen = 128

type authFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Credential extracts the token from the first client frame. Two shapes are
// accepted: a bare token string (length-bounded, no braces) or a JSON object
// carrying a token field. Everything else fails closed.
func Credential(data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: empty frame", ErrBadCredential)
	}

	if trimmed[0] == '{' {
		var f authFrame
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBadCredential, err)
		}
		if f.Token == "" || len(f.Token) > maxTokenLen {
			return "", fmt.Errorf("%w: missing or oversized token", ErrBadCredential)
		}
		return f.Token, nil
	}

	if len(trimmed) > maxTokenLen || bytes.ContainsAny(trimmed, "{}") {
		return "", fmt.Errorf("%w: malformed bare token", ErrBadCredential)
	}
	return string(trimmed), nil
}

// ClientFrame is a post-auth inbound frame, decoded as a tagged variant.
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID *int64 `json:"conversation_id"`
}

// DecodeClientFrame parses a post-auth frame, failing closed on anything
// that is not a typed JSON object.
func DecodeClientFrame(data []byte) (ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(bytes.TrimSpace(data), &f); err != nil {
		return ClientFrame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if f.Type == "" {
		return ClientFrame{}, fmt.Errorf("%w: missing type", ErrBadFrame)
	}
	return f, nil
}

// Server-to-client acknowledgment frames.

type AuthOK struct {
	Type           string `json:"type"`
	UserID         string `json:"user_id,omitempty"`
	GuestID        string `json:"guest_id,omitempty"`
	ConversationID *int64 `json:"conversation_id,omitempty"`
}

type AuthError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Subscribed struct {
	Type           string `json:"type"`
	ConversationID *int64 `json:"conversation_id"`
}

type ErrorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// NewAuthOKUser builds the acknowledgment for a promoted user session.
func NewAuthOKUser(userID string) AuthOK {
	return AuthOK{Type: "auth_ok", UserID: userID}
}

// NewAuthOKGuest builds the acknowledgment for a promoted guest session.
func NewAuthOKGuest(guestID string, conversationID int64) AuthOK {
	return AuthOK{Type: "auth_ok", GuestID: guestID, ConversationID: &conversationID}
}

// NewAuthError builds the failure acknowledgment sent before close.
func NewAuthError(message string) AuthError {
	return AuthError{Type: "auth_error", Message: message}
}

// NewSubscribed builds the subscription acknowledgment carrying the
// resulting filter value.
func NewSubscribed(conversationID *int64) Subscribed {
	return Subscribed{Type: "subscribed", ConversationID: conversationID}
}
