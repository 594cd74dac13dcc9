package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-sync/internal/metrics"
	"github.com/Tyrowin/gochat-sync/test/testhelpers"
)

var sessionScope = Scope{WorkspaceID: 7, ChannelID: 4}

type sessionEvents struct {
	notices   *recorder[NoticeKind]
	entries   *recorder[Entry]
	messages  *recorder[Message]
	reactions *recorder[map[string]int]
}

func newSessionEvents() *sessionEvents {
	return &sessionEvents{
		notices:   &recorder[NoticeKind]{},
		entries:   &recorder[Entry]{},
		messages:  &recorder[Message]{},
		reactions: &recorder[map[string]int]{},
	}
}

func (e *sessionEvents) hooks() SessionHooks {
	return SessionHooks{
		OnNotice:   func(n Notice) { e.notices.add(n.Kind) },
		OnEntry:    e.entries.add,
		OnMessage:  e.messages.add,
		OnReaction: func(_ int64, counts map[string]int) { e.reactions.add(counts) },
	}
}

func (e *sessionEvents) messageIDs() []int64 {
	var ids []int64
	for _, m := range e.messages.all() {
		ids = append(ids, m.MessageID)
	}
	return ids
}

func testSessionConfig(srv *testhelpers.PushServer, api API, sched *fakeScheduler) SessionConfig {
	return SessionConfig{
		Dialer:               NewWebSocketDialer(srv.URL, "", time.Second),
		API:                  api,
		User:                 User{UserID: 3, DisplayName: "Ada"},
		MaxReconnectAttempts: 1,
		PendingTimeout:       30 * time.Second,
		FirstTempID:          -1700000000,
		AfterFunc:            sched.AfterFunc,
	}
}

func newTestSession(t *testing.T, srv *testhelpers.PushServer, api API, events *sessionEvents) (*Session, *fakeScheduler) {
	t.Helper()

	sched := &fakeScheduler{}
	s := NewSession(testSessionConfig(srv, api, sched), events.hooks())
	t.Cleanup(s.Close)
	return s, sched
}

func mountAndWait(t *testing.T, s *Session, srv *testhelpers.PushServer, scope Scope) {
	t.Helper()

	s.Mount(scope)
	require.Eventually(t, func() bool {
		return s.ConnectionState() == StateOpen && srv.Clients(scope.ConnectionKey()) == 1
	}, waitFor, tick)
}

// pushAndWait broadcasts frame followed by a marker message and waits for the
// marker, so frame has been fully processed when it returns.
func pushAndWait(t *testing.T, srv *testhelpers.PushServer, events *sessionEvents, frame []byte, marker int64) {
	t.Helper()

	srv.Broadcast("7", frame)
	srv.Broadcast("7", messageFrame(marker, 4, 0, nil))
	require.Eventually(t, func() bool {
		ids := events.messageIDs()
		return len(ids) > 0 && ids[len(ids)-1] == marker
	}, waitFor, tick)
}

// TestSessionSendMessageConfirmedByResponse tests the create response
// confirming the entry and the later echo being swallowed.
func TestSessionSendMessageConfirmedByResponse(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	api := &APIMock{
		CreateMessageFunc: func(_ context.Context, req CreateMessageRequest) (Message, error) {
			return Message{MessageID: 501, ChannelID: req.ChannelID, WorkspaceID: 7, Content: req.Content}, nil
		},
	}
	events := newSessionEvents()
	s, _ := newTestSession(t, srv, api, events)
	mountAndWait(t, s, srv, sessionScope)

	id, err := s.SendMessage("hello")
	require.NoError(t, err)
	assert.Equal(t, TempID(-1700000000), id)

	require.Eventually(t, func() bool {
		entries := s.Entries()
		return len(entries) == 1 && entries[0].Status == StatusConfirmed
	}, waitFor, tick)
	assert.Equal(t, int64(501), s.Entries()[0].CanonicalID)

	calls := api.CreateMessageCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, id, calls[0].Req.Identifier)
	assert.Equal(t, "hello", calls[0].Req.Content)
	assert.Equal(t, int64(4), calls[0].Req.ChannelID)

	pushAndWait(t, srv, events, messageFrame(501, 4, 0, int64(id)), 502)
	assert.Equal(t, []int64{502}, events.messageIDs())
	assert.Len(t, s.Entries(), 1)
}

// TestSessionSendMessageEchoFirst tests the echo arriving while the create
// request is still in flight.
func TestSessionSendMessageEchoFirst(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	release := make(chan struct{})
	api := &APIMock{
		CreateMessageFunc: func(_ context.Context, req CreateMessageRequest) (Message, error) {
			<-release
			return Message{MessageID: 501, ChannelID: req.ChannelID}, nil
		},
	}
	events := newSessionEvents()
	s, _ := newTestSession(t, srv, api, events)
	mountAndWait(t, s, srv, sessionScope)

	id, err := s.SendMessage("hello")
	require.NoError(t, err)

	pushAndWait(t, srv, events, messageFrame(501, 4, 0, int64(id)), 502)
	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, StatusConfirmed, entries[0].Status)
	assert.Equal(t, int64(501), entries[0].Message.MessageID)

	close(release)
	require.Eventually(t, func() bool { return len(api.CreateMessageCalls()) == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return events.entries.len() != 2 }, 100*time.Millisecond, tick)
	assert.Equal(t, []int64{502}, events.messageIDs())
}

// TestSessionSendMessageFailureAndRetry tests a failed create and a retry.
func TestSessionSendMessageFailureAndRetry(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	fail := true
	api := &APIMock{
		CreateMessageFunc: func(_ context.Context, req CreateMessageRequest) (Message, error) {
			if fail {
				return Message{}, errors.New("server error")
			}
			return Message{MessageID: 600}, nil
		},
	}
	events := newSessionEvents()
	s, _ := newTestSession(t, srv, api, events)
	mountAndWait(t, s, srv, sessionScope)

	id, err := s.SendMessage("hello")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		entry, ok := s.ledger.Lookup(id)
		return ok && entry.Status == StatusFailed
	}, waitFor, tick)

	_, err = s.RetryMessage(-1)
	assert.Error(t, err)

	fail = false
	newID, err := s.RetryMessage(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, newID)

	require.Eventually(t, func() bool {
		entries := s.Entries()
		return len(entries) == 1 && entries[0].TempID == newID && entries[0].Status == StatusConfirmed
	}, waitFor, tick)
	calls := api.CreateMessageCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, newID, calls[1].Req.Identifier)
	assert.Equal(t, "hello", calls[1].Req.Content)
}

// TestSessionSendMessageTimeout tests that an unanswered create fails the
// entry when the pending timeout elapses.
func TestSessionSendMessageTimeout(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	api := &APIMock{
		CreateMessageFunc: func(ctx context.Context, _ CreateMessageRequest) (Message, error) {
			<-ctx.Done()
			return Message{}, ctx.Err()
		},
	}
	events := newSessionEvents()
	s, sched := newTestSession(t, srv, api, events)
	mountAndWait(t, s, srv, sessionScope)

	id, err := s.SendMessage("hello")
	require.NoError(t, err)
	require.True(t, sched.FireNext())

	entry, ok := s.ledger.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, entry.Status)
	assert.ErrorIs(t, entry.Err, ErrConfirmTimeout)
}

// TestSessionDiscardsResultAfterScopeChange tests that a response arriving
// after the user switched channel is not applied.
func TestSessionDiscardsResultAfterScopeChange(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	release := make(chan struct{})
	api := &APIMock{
		CreateMessageFunc: func(context.Context, CreateMessageRequest) (Message, error) {
			<-release
			return Message{MessageID: 501}, nil
		},
		ListMessagesFunc: func(context.Context, Scope) ([]Message, error) {
			<-release
			return []Message{{MessageID: 1}}, nil
		},
	}
	events := newSessionEvents()
	s, _ := newTestSession(t, srv, api, events)
	mountAndWait(t, s, srv, sessionScope)

	_, err := s.SendMessage("hello")
	require.NoError(t, err)

	loaded := make(chan error, 1)
	go func() {
		_, err := s.LoadMessages(context.Background())
		loaded <- err
	}()
	require.Eventually(t, func() bool { return len(api.ListMessagesCalls()) == 1 }, waitFor, tick)

	other := Scope{WorkspaceID: 7, ChannelID: 5}
	s.Mount(other)
	close(release)

	assert.ErrorIs(t, <-loaded, ErrScopeChanged)
	require.Eventually(t, func() bool { return len(api.CreateMessageCalls()) == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return events.entries.len() > 1 }, 100*time.Millisecond, tick)
	assert.Empty(t, s.Entries())
	assert.Equal(t, 1, srv.Dials("7"), "a channel switch keeps the workspace connection")
}

// TestSessionDiscardsResultAfterRemount tests that a response started before
// leaving a channel is discarded even when the user is back in that channel
// by the time it arrives.
func TestSessionDiscardsResultAfterRemount(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	release := make(chan struct{})
	returned := make(chan struct{})
	api := &APIMock{
		CreateMessageFunc: func(context.Context, CreateMessageRequest) (Message, error) {
			<-release
			defer close(returned)
			return Message{MessageID: 501, WorkspaceID: 7, ChannelID: 4}, nil
		},
	}
	events := newSessionEvents()
	s, _ := newTestSession(t, srv, api, events)
	mountAndWait(t, s, srv, sessionScope)

	_, err := s.SendMessage("hello")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(api.CreateMessageCalls()) == 1 }, waitFor, tick)

	s.Mount(Scope{WorkspaceID: 7, ChannelID: 5})
	s.Mount(sessionScope)
	close(release)
	<-returned

	assert.Never(t, func() bool { return s.dedup.Len(sessionScope.Key()) > 0 }, 100*time.Millisecond, tick)
	pushAndWait(t, srv, events, messageFrame(501, 4, 0, nil), 502)
	assert.Equal(t, []int64{501, 502}, events.messageIDs())
}

// TestSessionDropsFramesOfStaleConnection tests that a frame read from the
// connection of a workspace the session already left is not dispatched.
func TestSessionDropsFramesOfStaleConnection(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	m := metrics.New()
	events := newSessionEvents()
	sched := &fakeScheduler{}
	cfg := testSessionConfig(srv, &APIMock{}, sched)
	cfg.Metrics = m
	s := NewSession(cfg, events.hooks())
	t.Cleanup(s.Close)

	mountAndWait(t, s, srv, sessionScope)
	next := Scope{WorkspaceID: 8, ChannelID: 1}
	s.Mount(next)

	s.handleFrame("7", messageFrame(501, 4, 0, nil))
	assert.Zero(t, events.messages.len())
	assert.Equal(t, float64(1), droppedFrames(t, m, "stale_connection"))

	s.handleFrame("8", testhelpers.MessageCreated(8, testhelpers.MessageData{MessageID: 601, ChannelID: 1, UserID: 2}))
	assert.Equal(t, []int64{601}, events.messageIDs())
	assert.Equal(t, float64(1), droppedFrames(t, m, "stale_connection"))
}

// TestSessionMountFromHook tests that a message handler may switch workspace
// while it runs on the old connection's reader.
func TestSessionMountFromHook(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	sched := &fakeScheduler{}
	next := Scope{WorkspaceID: 8, ChannelID: 1}

	var s *Session
	handled := make(chan struct{})
	s = NewSession(testSessionConfig(srv, &APIMock{}, sched), SessionHooks{
		OnMessage: func(Message) {
			s.Mount(next)
			close(handled)
		},
	})
	t.Cleanup(s.Close)
	mountAndWait(t, s, srv, sessionScope)

	srv.Broadcast("7", messageFrame(501, 4, 0, nil))
	select {
	case <-handled:
	case <-time.After(waitFor):
		t.Fatal("Mount did not return inside the message handler")
	}

	require.Eventually(t, func() bool {
		return srv.Clients("7") == 0 && srv.Clients("8") == 1 && s.ConnectionState() == StateOpen
	}, waitFor, tick)
	assert.Equal(t, next, s.Scope())
}

// TestSessionWorkspaceSwitch tests that moving to another workspace closes
// the old connection before opening the new one.
func TestSessionWorkspaceSwitch(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	events := newSessionEvents()
	s, sched := newTestSession(t, srv, &APIMock{}, events)
	mountAndWait(t, s, srv, sessionScope)

	next := Scope{WorkspaceID: 8, ChannelID: 1}
	s.Mount(next)
	require.Eventually(t, func() bool {
		return srv.Clients("7") == 0 && srv.Clients("8") == 1 && s.ConnectionState() == StateOpen
	}, waitFor, tick)

	_, ok := s.conns.State("7")
	assert.False(t, ok)
	assert.Zero(t, sched.Pending())
	assert.Equal(t, next, s.Scope())
	assert.NotContains(t, events.notices.all(), NoticeLost)
}

// TestSessionScopeChangeResetsDedup tests that returning to a channel starts
// with an empty processed set.
func TestSessionScopeChangeResetsDedup(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	events := newSessionEvents()
	s, _ := newTestSession(t, srv, &APIMock{}, events)
	mountAndWait(t, s, srv, sessionScope)

	pushAndWait(t, srv, events, messageFrame(501, 4, 0, nil), 502)
	assert.True(t, s.dedup.HasSeen(sessionScope.Key(), 501))

	s.Mount(Scope{WorkspaceID: 7, ChannelID: 5})
	assert.Zero(t, s.dedup.Len(sessionScope.Key()))
	s.Mount(sessionScope)

	pushAndWait(t, srv, events, messageFrame(501, 4, 0, nil), 503)
	assert.Equal(t, []int64{501, 502, 501, 503}, events.messageIDs())
}

// TestSessionLoadMessages tests that fetched history suppresses a late push
// of the same message and seeds reaction counts.
func TestSessionLoadMessages(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	api := &APIMock{
		ListMessagesFunc: func(_ context.Context, scope Scope) ([]Message, error) {
			return []Message{{MessageID: 501, ChannelID: scope.ChannelID, Reactions: map[string]int{"tada": 2}}}, nil
		},
	}
	events := newSessionEvents()
	s, _ := newTestSession(t, srv, api, events)
	mountAndWait(t, s, srv, sessionScope)

	msgs, err := s.LoadMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, map[string]int{"tada": 2}, s.Reactions(501))
	assert.Equal(t, sessionScope, api.ListMessagesCalls()[0].Scope)

	pushAndWait(t, srv, events, messageFrame(501, 4, 0, nil), 502)
	assert.Equal(t, []int64{502}, events.messageIDs())
}

// TestSessionLoadChannels tests the channel list fetch.
func TestSessionLoadChannels(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	api := &APIMock{
		ListChannelsFunc: func(_ context.Context, workspaceID int64) ([]Channel, error) {
			return []Channel{{ID: 4, Name: "general", WorkspaceID: workspaceID}}, nil
		},
	}
	s, _ := newTestSession(t, srv, api, newSessionEvents())

	_, err := s.LoadChannels(context.Background())
	assert.ErrorIs(t, err, ErrNotMounted)

	mountAndWait(t, s, srv, sessionScope)
	channels, err := s.LoadChannels(context.Background())
	require.NoError(t, err)
	require.Len(t, channels, 1)
	assert.Equal(t, "general", channels[0].Name)
	assert.Equal(t, int64(7), api.ListChannelsCalls()[0].WorkspaceID)
}

// TestSessionToggleReaction tests the local hint being replaced by the
// authoritative count from the response.
func TestSessionToggleReaction(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	release := make(chan struct{})
	api := &APIMock{
		ListMessagesFunc: func(context.Context, Scope) ([]Message, error) {
			return []Message{{MessageID: 501, ChannelID: 4, Reactions: map[string]int{"tada": 1}}}, nil
		},
		AddReactionFunc: func(_ context.Context, messageID int64, emojiID string) (Reaction, error) {
			<-release
			// another user reacted meanwhile
			return Reaction{MessageID: messageID, EmojiID: emojiID, Count: 3}, nil
		},
		RemoveReactionFunc: func(context.Context, int64, string) (Reaction, error) {
			return Reaction{}, errors.New("forbidden")
		},
	}
	events := newSessionEvents()
	s, _ := newTestSession(t, srv, api, events)
	mountAndWait(t, s, srv, sessionScope)
	_, err := s.LoadMessages(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.ToggleReaction(501, "tada", true))
	assert.Equal(t, map[string]int{"tada": 2}, s.Reactions(501), "hint shown before the response")

	close(release)
	require.Eventually(t, func() bool { return s.reactions.View(501)["tada"] == 3 }, waitFor, tick)
	count, _ := s.reactions.Count(501, "tada")
	assert.Equal(t, 3, count)

	require.NoError(t, s.ToggleReaction(501, "tada", false))
	require.Eventually(t, func() bool { return len(api.RemoveReactionCalls()) == 1 && events.reactions.len() == 4 }, waitFor, tick)
	assert.Equal(t, map[string]int{"tada": 3}, s.Reactions(501), "a failed request drops the hint")

	assert.Equal(t, []map[string]int{
		{"tada": 2},
		{"tada": 3},
		{"tada": 2},
		{"tada": 3},
	}, events.reactions.all())
}

// TestSessionNotMounted tests operations that need a scope.
func TestSessionNotMounted(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	s, _ := newTestSession(t, srv, &APIMock{}, newSessionEvents())

	_, err := s.SendMessage("hello")
	assert.ErrorIs(t, err, ErrNotMounted)
	assert.ErrorIs(t, s.ToggleReaction(1, "tada", true), ErrNotMounted)
	_, err = s.LoadMessages(context.Background())
	assert.ErrorIs(t, err, ErrNotMounted)
	assert.ErrorIs(t, s.Reconnect(), ErrNotMounted)
	assert.False(t, s.Send(map[string]string{"type": "TYPING"}))
	assert.Equal(t, StateClosed, s.ConnectionState())
}

// TestSessionNotices tests the user-visible connection signals of an outage
// that ends with giving up, and a manual reconnect afterwards.
func TestSessionNotices(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	events := newSessionEvents()
	s, sched := newTestSession(t, srv, &APIMock{}, events)
	mountAndWait(t, s, srv, sessionScope)

	srv.Reject(true)
	srv.Drop("7")
	require.Eventually(t, func() bool { return sched.Pending() == 1 }, waitFor, tick)
	require.True(t, sched.FireNext())
	require.Eventually(t, func() bool { return events.notices.len() == 3 }, waitFor, tick)
	assert.Equal(t, []NoticeKind{NoticeConnected, NoticeLost, NoticeFailed}, events.notices.all())

	srv.Reject(false)
	require.NoError(t, s.Reconnect())
	require.Eventually(t, func() bool { return s.ConnectionState() == StateOpen }, waitFor, tick)
	require.Eventually(t, func() bool { return events.notices.len() == 4 }, waitFor, tick)
}

// TestSessionTimeline tests merging history with local entries.
func TestSessionTimeline(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	api := &APIMock{
		CreateMessageFunc: func(context.Context, CreateMessageRequest) (Message, error) {
			return Message{}, errors.New("offline")
		},
	}
	s, _ := newTestSession(t, srv, api, newSessionEvents())
	mountAndWait(t, s, srv, sessionScope)

	id, err := s.SendMessage("local")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		entries := s.Entries()
		return len(entries) == 1 && entries[0].Status == StatusFailed
	}, waitFor, tick)

	history := []Message{{MessageID: 1, Content: "old", CreatedAt: time.Unix(0, 0)}}
	items := s.Timeline(history)
	require.Len(t, items, 2)
	assert.Equal(t, "old", items[0].Message.Content)
	assert.Equal(t, id, items[1].TempID)
	assert.True(t, items[1].Failed())
}

// TestSessionDefaultTempIDs tests that sessions without a configured first
// temp id do not hand out the same ids.
func TestSessionDefaultTempIDs(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	api := &APIMock{
		CreateMessageFunc: func(context.Context, CreateMessageRequest) (Message, error) {
			return Message{}, errors.New("offline")
		},
	}

	var ids []TempID
	var sessionIDs []string
	for range 2 {
		cfg := testSessionConfig(srv, api, &fakeScheduler{})
		cfg.FirstTempID = 0
		s := NewSession(cfg, SessionHooks{})
		t.Cleanup(s.Close)
		s.Mount(sessionScope)

		id, err := s.SendMessage("hello")
		require.NoError(t, err)
		ids = append(ids, id)
		sessionIDs = append(sessionIDs, s.ID())
	}

	assert.NotEqual(t, ids[0], ids[1])
	assert.NotEqual(t, sessionIDs[0], sessionIDs[1])
	for _, id := range ids {
		assert.LessOrEqual(t, int64(id), int64(-1<<32))
	}
}

// TestSessionScopeChangeResetsReactions tests that counts loaded for one
// channel are dropped when the view moves on.
func TestSessionScopeChangeResetsReactions(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	api := &APIMock{
		ListMessagesFunc: func(context.Context, Scope) ([]Message, error) {
			return []Message{{MessageID: 501, ChannelID: 4, Reactions: map[string]int{"tada": 2}}}, nil
		},
		AddReactionFunc: func(ctx context.Context, _ int64, _ string) (Reaction, error) {
			<-ctx.Done()
			return Reaction{}, ctx.Err()
		},
	}
	s, _ := newTestSession(t, srv, api, newSessionEvents())
	mountAndWait(t, s, srv, sessionScope)

	_, err := s.LoadMessages(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.ToggleReaction(501, "heart", true))
	assert.Equal(t, map[string]int{"tada": 2, "heart": 1}, s.Reactions(501))

	s.Mount(Scope{WorkspaceID: 7, ChannelID: 5})
	assert.Empty(t, s.Reactions(501))
}

// TestSessionReactionResponseAfterPush tests that a pushed count which
// arrives while the request is in flight is not overwritten by the response.
func TestSessionReactionResponseAfterPush(t *testing.T) {
	srv := testhelpers.NewPushServer(t)
	release := make(chan struct{})
	api := &APIMock{
		ListMessagesFunc: func(context.Context, Scope) ([]Message, error) {
			return []Message{{MessageID: 501, ChannelID: 4, Reactions: map[string]int{"tada": 1}}}, nil
		},
		AddReactionFunc: func(_ context.Context, messageID int64, emojiID string) (Reaction, error) {
			<-release
			return Reaction{MessageID: messageID, EmojiID: emojiID, Count: 3}, nil
		},
	}
	events := newSessionEvents()
	s, _ := newTestSession(t, srv, api, events)
	mountAndWait(t, s, srv, sessionScope)
	_, err := s.LoadMessages(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.ToggleReaction(501, "tada", true))
	pushAndWait(t, srv, events, testhelpers.ReactionAdded(501, "tada", 5), 502)
	assert.Equal(t, map[string]int{"tada": 5}, s.Reactions(501))

	close(release)
	require.Eventually(t, func() bool { return events.reactions.len() == 3 }, waitFor, tick)
	assert.Equal(t, map[string]int{"tada": 5}, s.Reactions(501))
	assert.Equal(t, []map[string]int{
		{"tada": 2},
		{"tada": 5},
		{"tada": 5},
	}, events.reactions.all())
}
