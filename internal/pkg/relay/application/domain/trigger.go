package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// targetUserIDLen is the exact length of a well-formed principal target
// (UUID-shaped). A target of any other length is ignored rather than
// rejected, so a caller that sets both selectors degrades to conversation
// addressing.
const targetUserIDLen = 36

// Trigger is a one-shot instruction from the application tier: deliver Event
// with Data to either every live connection of one principal (TargetUserID)
// or every entitled connection of one conversation (ConversationID).
// TargetUserID wins when both are set; ConversationID is still merged into
// the delivered payload. Triggers exist only for one fan-out resolution and
// are never persisted.
type Trigger struct {
	Event          string
	Data           map[string]any
	TargetUserID   string
	ConversationID *int64
}

type triggerBody struct {
	Event          string         `json:"event"`
	Data           map[string]any `json:"data"`
	TargetUserID   string         `json:"target_user_id"`
	ConversationID *int64         `json:"conversation_id"`
}

// DecodeTrigger parses a trigger body, failing closed: a missing event name
// or unparseable JSON is an error before any relay logic runs.
func DecodeTrigger(body []byte) (Trigger, error) {
	var b triggerBody
	if err := json.Unmarshal(bytes.TrimSpace(body), &b); err != nil {
		return Trigger{}, fmt.Errorf("%w: %v", ErrBadTrigger, err)
	}
	if b.Event == "" {
		return Trigger{}, fmt.Errorf("%w: missing event", ErrBadTrigger)
	}

	t := Trigger{
		Event:          b.Event,
		Data:           b.Data,
		ConversationID: b.ConversationID,
	}
	if t.Data == nil {
		t.Data = map[string]any{}
	}
	if len(b.TargetUserID) == targetUserIDLen {
		t.TargetUserID = b.TargetUserID
	}
	return t, nil
}

// Payload renders the self-describing event frame delivered to clients,
// with the conversation identifier merged into the data object when the
// trigger carried one.
func (t Trigger) Payload() ([]byte, error) {
	data := make(map[string]any, len(t.Data)+1)
	for k, v := range t.Data {
		data[k] = v
	}
	if t.ConversationID != nil {
		data["conversation_id"] = *t.ConversationID
	}
	return json.Marshal(map[string]any{"type": t.Event, "data": data})
}
