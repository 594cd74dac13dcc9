package testhelpers

import (
	"encoding/json"
	"time"
)

// Frame encodes a push envelope. A nil data omits the field.
func Frame(kind string, workspaceID int64, data any) []byte {
	env := map[string]any{"type": kind}
	if workspaceID != 0 {
		env["workspaceId"] = workspaceID
	}
	if data != nil {
		env["data"] = data
	}
	b, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	return b
}

// MessageData is the data of a MESSAGE_CREATED frame.
type MessageData struct {
	MessageID       int64     `json:"messageId"`
	ChannelID       int64     `json:"channelId"`
	WorkspaceID     int64     `json:"workspaceId,omitempty"`
	UserID          int64     `json:"userId"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"createdAt"`
	ParentMessageID int64     `json:"parentMessageId,omitempty"`
	HasAttachments  bool      `json:"hasAttachments"`
	Identifier      any       `json:"identifier,omitempty"`
}

// MessageCreated builds a MESSAGE_CREATED frame.
func MessageCreated(workspaceID int64, m MessageData) []byte {
	if m.WorkspaceID == 0 {
		m.WorkspaceID = workspaceID
	}
	return Frame("MESSAGE_CREATED", workspaceID, m)
}

// ReactionAdded builds a REACTION_ADDED frame carrying the new count.
func ReactionAdded(messageID int64, emojiID string, count int) []byte {
	return reaction("REACTION_ADDED", messageID, emojiID, count)
}

// ReactionRemoved builds a REACTION_REMOVED frame carrying the new count.
func ReactionRemoved(messageID int64, emojiID string, count int) []byte {
	return reaction("REACTION_REMOVED", messageID, emojiID, count)
}

func reaction(kind string, messageID int64, emojiID string, count int) []byte {
	return Frame(kind, 0, map[string]any{
		"messageId": messageID,
		"emojiId":   emojiID,
		"count":     count,
	})
}

// ChannelEvent builds a CHANNEL_* frame.
func ChannelEvent(kind string, workspaceID, channelID int64, name string) []byte {
	return Frame(kind, workspaceID, map[string]any{
		"id":          channelID,
		"name":        name,
		"channelType": "PUBLIC",
		"workspaceId": workspaceID,
	})
}

// Connected builds the CONNECTED frame the server sends after the handshake.
func Connected(workspaceID int64) []byte {
	return Frame("CONNECTED", workspaceID, nil)
}
