package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseFrame tests decoding of every supported event kind.
func TestParseFrame(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		ev, err := ParseFrame([]byte(`{"type":"CONNECTED","workspaceId":7}`))
		require.NoError(t, err)
		assert.Equal(t, KindConnected, ev.Kind)
		assert.Equal(t, int64(7), ev.WorkspaceID)
	})

	t.Run("channel", func(t *testing.T) {
		ev, err := ParseFrame([]byte(`{"type":"CHANNEL_UPDATED","data":{"id":4,"name":"general","channelType":"PUBLIC","workspaceId":7}}`))
		require.NoError(t, err)
		assert.Equal(t, KindChannelUpdated, ev.Kind)
		assert.Equal(t, int64(7), ev.WorkspaceID, "workspace falls back to the payload")
		require.NotNil(t, ev.Channel)
		assert.Equal(t, "general", ev.Channel.Name)
	})

	t.Run("message with numeric identifier", func(t *testing.T) {
		ev, err := ParseFrame([]byte(`{"type":"MESSAGE_CREATED","workspaceId":7,"data":{"messageId":501,"channelId":4,"userId":3,"content":"hi","createdAt":"2024-05-01T12:00:00Z","hasAttachments":false,"identifier":-1700000000}}`))
		require.NoError(t, err)
		require.NotNil(t, ev.Message)
		assert.Equal(t, int64(501), ev.Message.MessageID)
		require.NotNil(t, ev.Message.Identifier)
		assert.Equal(t, TempID(-1700000000), *ev.Message.Identifier)
	})

	t.Run("message with string identifier", func(t *testing.T) {
		ev, err := ParseFrame([]byte(`{"type":"MESSAGE_CREATED","data":{"messageId":501,"channelId":4,"workspaceId":7,"identifier":"-1700000000"}}`))
		require.NoError(t, err)
		require.NotNil(t, ev.Message.Identifier)
		assert.Equal(t, TempID(-1700000000), *ev.Message.Identifier)
		assert.Equal(t, int64(7), ev.WorkspaceID)
	})

	t.Run("message without identifier", func(t *testing.T) {
		ev, err := ParseFrame([]byte(`{"type":"MESSAGE_CREATED","data":{"messageId":502,"channelId":4}}`))
		require.NoError(t, err)
		assert.Nil(t, ev.Message.Identifier)
	})

	t.Run("reaction", func(t *testing.T) {
		ev, err := ParseFrame([]byte(`{"type":"REACTION_REMOVED","data":{"messageId":501,"emojiId":"tada","count":0}}`))
		require.NoError(t, err)
		assert.Equal(t, KindReactionRemoved, ev.Kind)
		assert.Equal(t, Reaction{MessageID: 501, EmojiID: "tada", Count: 0}, *ev.Reaction)
	})
}

// TestParseFrameErrors tests that unusable frames yield protocol errors.
func TestParseFrameErrors(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		unknown bool
	}{
		{name: "malformed json", frame: `{"type":`},
		{name: "missing type", frame: `{"data":{}}`},
		{name: "unknown type", frame: `{"type":"TYPING","data":{}}`, unknown: true},
		{name: "message without data", frame: `{"type":"MESSAGE_CREATED"}`},
		{name: "message with null data", frame: `{"type":"MESSAGE_CREATED","data":null}`},
		{name: "message without id", frame: `{"type":"MESSAGE_CREATED","data":{"channelId":4}}`},
		{name: "message with bad identifier", frame: `{"type":"MESSAGE_CREATED","data":{"messageId":1,"channelId":4,"identifier":"abc"}}`},
		{name: "channel without id", frame: `{"type":"CHANNEL_CREATED","data":{"name":"x"}}`},
		{name: "reaction without emoji", frame: `{"type":"REACTION_ADDED","data":{"messageId":1,"count":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseFrame([]byte(tt.frame))
			require.Error(t, err)
			assert.Nil(t, ev)

			var perr *ProtocolError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.unknown, errors.Is(err, ErrUnknownKind))
		})
	}
}

// TestProtocolErrorExcerpt tests that logged frames are truncated.
func TestProtocolErrorExcerpt(t *testing.T) {
	frame := `{"type":"` + strings.Repeat("X", 500) + `"}`
	_, err := ParseFrame([]byte(frame))

	var perr *ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.LessOrEqual(t, len(perr.Frame), maxFrameExcerpt+3)
}

// TestMessageRoundTrip tests that an optimistic message is sent with its
// identifier and read back from the echo.
func TestMessageRoundTrip(t *testing.T) {
	id := TempID(-5)
	b, err := json.Marshal(Message{MessageID: 9, ChannelID: 1, Identifier: &id})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"identifier":-5`)

	var back Message
	require.NoError(t, json.Unmarshal(b, &back))
	require.NotNil(t, back.Identifier)
	assert.Equal(t, id, *back.Identifier)
}
