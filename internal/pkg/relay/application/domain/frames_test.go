package relay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredential(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    string
		wantErr bool
	}{
		{name: "bare token", frame: "abc123", want: "abc123"},
		{name: "bare token with surrounding whitespace", frame: "  abc123\n", want: "abc123"},
		{name: "structured auth frame", frame: `{"type":"auth","token":"abc123"}`, want: "abc123"},
		{name: "structured frame without declared type", frame: `{"token":"abc123"}`, want: "abc123"},
		{name: "empty frame", frame: "", wantErr: true},
		{name: "bare token too long", frame: strings.Repeat("a", 129), wantErr: true},
		{name: "bare token at length bound", frame: strings.Repeat("a", 128), want: strings.Repeat("a", 128)},
		{name: "bare token with brace", frame: "abc}123", wantErr: true},
		{name: "object without token", frame: `{"type":"auth"}`, wantErr: true},
		{name: "object with oversized token", frame: `{"token":"` + strings.Repeat("a", 129) + `"}`, wantErr: true},
		{name: "broken json object", frame: `{"token":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := Credential([]byte(tt.frame))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadCredential)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
		})
	}
}

func TestDecodeClientFrame(t *testing.T) {
	t.Run("subscribe with conversation", func(t *testing.T) {
		frame, err := DecodeClientFrame([]byte(`{"type":"subscribe","conversation_id":42}`))
		require.NoError(t, err)
		assert.Equal(t, "subscribe", frame.Type)
		require.NotNil(t, frame.ConversationID)
		assert.Equal(t, int64(42), *frame.ConversationID)
	})

	t.Run("subscribe with null clears the filter", func(t *testing.T) {
		frame, err := DecodeClientFrame([]byte(`{"type":"subscribe","conversation_id":null}`))
		require.NoError(t, err)
		assert.Nil(t, frame.ConversationID)
	})

	t.Run("missing type fails closed", func(t *testing.T) {
		_, err := DecodeClientFrame([]byte(`{"conversation_id":42}`))
		assert.ErrorIs(t, err, ErrBadFrame)
	})

	t.Run("non-object fails closed", func(t *testing.T) {
		_, err := DecodeClientFrame([]byte(`subscribe`))
		assert.ErrorIs(t, err, ErrBadFrame)
	})
}
