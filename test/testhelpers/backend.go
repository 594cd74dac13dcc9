package testhelpers

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"
)

// EchoOrder controls when the backend pushes the MESSAGE_CREATED echo of a
// created message relative to the HTTP response.
type EchoOrder int

const (
	// EchoAfterResponse pushes the echo once the response has been written.
	EchoAfterResponse EchoOrder = iota
	// EchoBeforeResponse pushes the echo before responding.
	EchoBeforeResponse
	// EchoNone never pushes an echo.
	EchoNone
)

// Backend is a fake REST API that stores messages in memory and echoes
// created messages and reaction changes through a PushServer.
type Backend struct {
	*httptest.Server

	push   *PushServer
	userID int64

	mu        sync.Mutex
	nextID    int64
	messages  map[int64]MessageData
	reactions map[int64]map[string]int
	order     EchoOrder
	failNext  int
	creates   int
}

// NewBackend starts a backend echoing through push. Created messages are
// attributed to userID.
func NewBackend(t testing.TB, push *PushServer, userID int64) *Backend {
	t.Helper()

	b := &Backend{
		push:      push,
		userID:    userID,
		nextID:    1000,
		messages:  make(map[int64]MessageData),
		reactions: make(map[int64]map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/workspaces/{ws}/channels/{ch}/messages", b.handleCreate)
	mux.HandleFunc("GET /api/workspaces/{ws}/channels/{ch}/messages", b.handleList)
	mux.HandleFunc("POST /api/messages/{id}/reactions/{emoji}", b.handleReaction(1))
	mux.HandleFunc("DELETE /api/messages/{id}/reactions/{emoji}", b.handleReaction(-1))

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

// SetEchoOrder changes when echoes are pushed for later creates.
func (b *Backend) SetEchoOrder(order EchoOrder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.order = order
}

// FailNext makes the next n creates answer 500.
func (b *Backend) FailNext(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = n
}

// Creates returns how many create requests were received.
func (b *Backend) Creates() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.creates
}

// Seed stores m as existing history without pushing it.
func (b *Backend) Seed(m MessageData) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[m.MessageID] = m
}

func (b *Backend) handleCreate(w http.ResponseWriter, r *http.Request) {
	ws, ch, ok := pathIDs(w, r)
	if !ok {
		return
	}

	var req struct {
		Content         string `json:"content"`
		ParentMessageID int64  `json:"parentMessageId"`
		Identifier      any    `json:"identifier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}

	b.mu.Lock()
	b.creates++
	if b.failNext > 0 {
		b.failNext--
		b.mu.Unlock()
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "storage unavailable"})
		return
	}
	b.nextID++
	msg := MessageData{
		MessageID:       b.nextID,
		ChannelID:       ch,
		WorkspaceID:     ws,
		UserID:          b.userID,
		Content:         req.Content,
		CreatedAt:       time.Now().UTC(),
		ParentMessageID: req.ParentMessageID,
		Identifier:      req.Identifier,
	}
	b.messages[msg.MessageID] = msg
	order := b.order
	b.mu.Unlock()

	workspace := strconv.FormatInt(ws, 10)
	if order == EchoBeforeResponse {
		b.push.Broadcast(workspace, MessageCreated(ws, msg))
	}
	writeJSON(w, http.StatusCreated, msg)
	if order == EchoAfterResponse {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		b.push.Broadcast(workspace, MessageCreated(ws, msg))
	}
}

func (b *Backend) handleList(w http.ResponseWriter, r *http.Request) {
	ws, ch, ok := pathIDs(w, r)
	if !ok {
		return
	}
	var parent int64
	if p := r.URL.Query().Get("parentMessageId"); p != "" {
		parent, _ = strconv.ParseInt(p, 10, 64)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, 0, len(b.messages))
	for _, m := range sortedMessages(b.messages) {
		if m.WorkspaceID != ws || m.ChannelID != ch || m.ParentMessageID != parent {
			continue
		}
		out = append(out, map[string]any{
			"messageId":       m.MessageID,
			"channelId":       m.ChannelID,
			"workspaceId":     m.WorkspaceID,
			"userId":          m.UserID,
			"content":         m.Content,
			"createdAt":       m.CreatedAt,
			"parentMessageId": m.ParentMessageID,
			"reactions":       b.reactions[m.MessageID],
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleReaction(delta int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid message id"})
			return
		}
		emoji := r.PathValue("emoji")

		b.mu.Lock()
		msg, ok := b.messages[id]
		if !ok {
			b.mu.Unlock()
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "message not found"})
			return
		}
		counts := b.reactions[id]
		if counts == nil {
			counts = make(map[string]int)
			b.reactions[id] = counts
		}
		counts[emoji] = max(counts[emoji]+delta, 0)
		count := counts[emoji]
		b.mu.Unlock()

		writeJSON(w, http.StatusOK, map[string]any{"messageId": id, "emojiId": emoji, "count": count})

		frame := ReactionAdded(id, emoji, count)
		if delta < 0 {
			frame = ReactionRemoved(id, emoji, count)
		}
		b.push.Broadcast(strconv.FormatInt(msg.WorkspaceID, 10), frame)
	}
}

func pathIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	ws, err1 := strconv.ParseInt(r.PathValue("ws"), 10, 64)
	ch, err2 := strconv.ParseInt(r.PathValue("ch"), 10, 64)
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": fmt.Sprintf("invalid path %s", r.URL.Path)})
		return 0, 0, false
	}
	return ws, ch, true
}

func sortedMessages(all map[int64]MessageData) []MessageData {
	out := slices.Collect(maps.Values(all))
	slices.SortFunc(out, func(a, b MessageData) int { return cmp.Compare(a.MessageID, b.MessageID) })
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
