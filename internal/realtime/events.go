// Package realtime defines the inbound event envelope, its typed payloads and
// the frame parser used by the router.
package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// EventKind discriminates inbound frames by their "type" field.
type EventKind string

const (
	KindConnected       EventKind = "CONNECTED"
	KindChannelCreated  EventKind = "CHANNEL_CREATED"
	KindChannelUpdated  EventKind = "CHANNEL_UPDATED"
	KindChannelArchived EventKind = "CHANNEL_ARCHIVED"
	KindMessageCreated  EventKind = "MESSAGE_CREATED"
	KindReactionAdded   EventKind = "REACTION_ADDED"
	KindReactionRemoved EventKind = "REACTION_REMOVED"
)

// Known reports whether k is one of the kinds the router understands.
func (k EventKind) Known() bool {
	switch k {
	case KindConnected, KindChannelCreated, KindChannelUpdated, KindChannelArchived,
		KindMessageCreated, KindReactionAdded, KindReactionRemoved:
		return true
	}
	return false
}

// IsChannelEvent reports whether k is one of the CHANNEL_* kinds.
func (k EventKind) IsChannelEvent() bool {
	return k == KindChannelCreated || k == KindChannelUpdated || k == KindChannelArchived
}

// TempID is a client-generated placeholder id for an unconfirmed local action.
// Temp ids are negative so they never collide with server-assigned ids.
type TempID int64

// UnmarshalJSON accepts both a JSON number and a numeric string, since the
// server echoes the identifier back verbatim.
func (id *TempID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("identifier %q is not an integer", data)
	}
	*id = TempID(v)
	return nil
}

// User is the author summary embedded in message payloads.
type User struct {
	UserID         int64  `json:"userId"`
	DisplayName    string `json:"displayName"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// Channel is the payload of CHANNEL_* events and list-channels results.
type Channel struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ChannelType string `json:"channelType"`
	WorkspaceID int64  `json:"workspaceId"`
	Topic       string `json:"topic,omitempty"`
	Archived    bool   `json:"archived,omitempty"`
}

// Message is the payload of MESSAGE_CREATED events, the create-message result
// and the snapshot held by optimistic entries.
type Message struct {
	MessageID       int64          `json:"messageId"`
	ChannelID       int64          `json:"channelId"`
	WorkspaceID     int64          `json:"workspaceId"`
	UserID          int64          `json:"userId"`
	Content         string         `json:"content"`
	CreatedAt       time.Time      `json:"createdAt"`
	ParentMessageID int64          `json:"parentMessageId,omitempty"`
	HasAttachments  bool           `json:"hasAttachments"`
	Identifier      *TempID        `json:"identifier,omitempty"`
	User            User           `json:"user"`
	Reactions       map[string]int `json:"reactions,omitempty"`
}

// Reaction is the payload of REACTION_* events. Count is the authoritative
// number of reactions with EmojiID on the message after the change.
type Reaction struct {
	MessageID int64  `json:"messageId"`
	EmojiID   string `json:"emojiId"`
	Count     int    `json:"count"`
}

// Event is a parsed inbound frame. Exactly one of the payload pointers is set
// for kinds that carry data.
type Event struct {
	Kind        EventKind
	WorkspaceID int64

	Channel  *Channel
	Message  *Message
	Reaction *Reaction
}

type envelope struct {
	Type        EventKind       `json:"type"`
	WorkspaceID int64           `json:"workspaceId"`
	Data        json.RawMessage `json:"data"`
}

// ParseFrame decodes one frame. Malformed JSON, a missing type or an invalid
// payload yield a *ProtocolError; an unknown type yields ErrUnknownKind wrapped
// in a *ProtocolError.
func ParseFrame(frame []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, newProtocolError("malformed json", frame, err)
	}
	if env.Type == "" {
		return nil, newProtocolError("missing type", frame, nil)
	}
	if !env.Type.Known() {
		return nil, newProtocolError("unknown type "+string(env.Type), frame, ErrUnknownKind)
	}

	ev := &Event{Kind: env.Type, WorkspaceID: env.WorkspaceID}
	switch {
	case env.Type == KindConnected:
		return ev, nil

	case env.Type.IsChannelEvent():
		var ch Channel
		if err := decodeData(env.Data, &ch); err != nil {
			return nil, newProtocolError("invalid channel payload", frame, err)
		}
		if ch.ID <= 0 {
			return nil, newProtocolError("channel payload without id", frame, nil)
		}
		if ev.WorkspaceID == 0 {
			ev.WorkspaceID = ch.WorkspaceID
		}
		ev.Channel = &ch

	case env.Type == KindMessageCreated:
		var msg Message
		if err := decodeData(env.Data, &msg); err != nil {
			return nil, newProtocolError("invalid message payload", frame, err)
		}
		if msg.MessageID <= 0 || msg.ChannelID <= 0 {
			return nil, newProtocolError("message payload without messageId or channelId", frame, nil)
		}
		if ev.WorkspaceID == 0 {
			ev.WorkspaceID = msg.WorkspaceID
		}
		if msg.WorkspaceID == 0 {
			msg.WorkspaceID = ev.WorkspaceID
		}
		ev.Message = &msg

	default:
		var r Reaction
		if err := decodeData(env.Data, &r); err != nil {
			return nil, newProtocolError("invalid reaction payload", frame, err)
		}
		if r.MessageID <= 0 || r.EmojiID == "" {
			return nil, newProtocolError("reaction payload without messageId or emojiId", frame, nil)
		}
		ev.Reaction = &r
	}
	return ev, nil
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return errMissingData
	}
	return json.Unmarshal(raw, v)
}
