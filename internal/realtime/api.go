package realtime

import "context"

//go:generate moq -out api_mock.go . API

// API is the request/response collaborator that persists and queries chat
// data. Its transport is outside the sync core.
type API interface {
	// CreateMessage persists a message. The returned message carries the
	// canonical id and echoes req.Identifier.
	CreateMessage(ctx context.Context, req CreateMessageRequest) (Message, error)
	AddReaction(ctx context.Context, messageID int64, emojiID string) (Reaction, error)
	RemoveReaction(ctx context.Context, messageID int64, emojiID string) (Reaction, error)
	ListMessages(ctx context.Context, scope Scope) ([]Message, error)
	ListChannels(ctx context.Context, workspaceID int64) ([]Channel, error)
}

// CreateMessageRequest is the create-message payload. Identifier carries the
// temp id so the server can echo it in the MESSAGE_CREATED push event.
type CreateMessageRequest struct {
	WorkspaceID     int64  `json:"workspaceId"`
	ChannelID       int64  `json:"channelId"`
	ParentMessageID int64  `json:"parentMessageId,omitempty"`
	Content         string `json:"content"`
	Identifier      TempID `json:"identifier"`
}
