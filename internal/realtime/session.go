package realtime

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/gochat-sync/internal/metrics"
	"github.com/Tyrowin/gochat-sync/internal/observability"
)

// NoticeKind classifies user-visible connection signals.
type NoticeKind int

const (
	NoticeConnected NoticeKind = iota
	NoticeLost
	NoticeFailed
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeConnected:
		return "connected"
	case NoticeLost:
		return "lost"
	case NoticeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Notice is a user-visible connection signal. Lost is sent once per outage
// and Failed once when reconnecting gives up.
type Notice struct {
	Kind  NoticeKind
	Scope string
	Err   error
}

// SessionHooks are the application callbacks of a Session. All are optional.
// OnMessage, OnChannel and OnReaction run on the connection's reader
// goroutine; they may call Mount or Unmount but must not call Close.
type SessionHooks struct {
	OnNotice   func(Notice)
	OnEntry    func(Entry)
	OnMessage  func(Message)
	OnChannel  func(kind EventKind, ch Channel)
	OnReaction func(messageID int64, counts map[string]int)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Dialer Dialer
	API    API
	// User is the local author shown on optimistic messages.
	User User

	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	PendingTimeout       time.Duration
	PingInterval         time.Duration
	PongWait             time.Duration
	MaxFrameSize         int64
	SendBurst            int
	SendInterval         time.Duration

	// FirstTempID is the first optimistic id; zero picks a random one.
	FirstTempID TempID
	AfterFunc   AfterFunc
	Now         func() time.Time
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Session ties the sync core to the scope the user is looking at. It owns
// the connection manager, router, dedup guard, ledger and reaction aggregator.
type Session struct {
	id string

	mountMu sync.Mutex
	mu      sync.RWMutex
	scope   Scope
	// gen changes on every Mount; background results compare it to tell
	// whether the scope they started in is still the mounted one
	gen uint64

	conns     *ConnectionManager
	router    *Router
	dedup     *DedupGuard
	ledger    *Ledger
	reactions *ReactionAggregator
	api       API
	user      User
	hooks     SessionHooks

	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSession wires a session. Nothing is connected until Mount.
func NewSession(cfg SessionConfig, hooks SessionHooks) *Session {
	sessionID := uuid.New()
	logger := observability.OrDiscard(cfg.Logger).With("session_id", sessionID.String())
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:        sessionID.String(),
		dedup:     NewDedupGuard(),
		reactions: NewReactionAggregator(),
		api:       cfg.API,
		user:      cfg.User,
		hooks:     hooks,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		metrics:   cfg.Metrics,
	}
	firstID := cfg.FirstTempID
	if firstID == 0 {
		firstID = tempIDBase(sessionID)
	}
	s.ledger = NewLedger(LedgerConfig{
		FirstTempID:    firstID,
		PendingTimeout: cfg.PendingTimeout,
		OnChange:       hooks.OnEntry,
		Now:            cfg.Now,
		AfterFunc:      cfg.AfterFunc,
		Logger:         logger.With("component", "ledger"),
		Metrics:        cfg.Metrics,
	})
	s.router = NewRouter(RouterConfig{
		Dedup:     s.dedup,
		Ledger:    s.ledger,
		Reactions: s.reactions,
		Logger:    logger.With("component", "router"),
		Metrics:   cfg.Metrics,
	})
	s.conns = NewConnectionManager(ConnectionConfig{
		Dialer: cfg.Dialer,
		Hooks: ConnectionHooks{
			OnOpen:   func(scope string) { s.notice(Notice{Kind: NoticeConnected, Scope: scope}) },
			OnFrame:  s.handleFrame,
			OnLost:   func(scope string, err error) { s.notice(Notice{Kind: NoticeLost, Scope: scope, Err: err}) },
			OnFailed: func(scope string, err error) { s.notice(Notice{Kind: NoticeFailed, Scope: scope, Err: err}) },
		},
		MaxAttempts:  cfg.MaxReconnectAttempts,
		BaseDelay:    cfg.ReconnectBaseDelay,
		MaxDelay:     cfg.ReconnectMaxDelay,
		PingInterval: cfg.PingInterval,
		PongWait:     cfg.PongWait,
		MaxFrameSize: cfg.MaxFrameSize,
		SendBurst:    cfg.SendBurst,
		SendInterval: cfg.SendInterval,
		AfterFunc:    cfg.AfterFunc,
		Logger:       logger.With("component", "connection"),
		Metrics:      cfg.Metrics,
	})
	s.unsubscribe = s.router.Subscribe(Subscription{
		Scope:      s.Scope,
		OnChannel:  hooks.OnChannel,
		OnMessage:  hooks.OnMessage,
		OnReaction: hooks.OnReaction,
	})
	return s
}

// tempIDBase derives a session's first temp id from the 48 random low bits of
// its id. Echoes are broadcast to the whole workspace, so sessions of the
// same user must not count through the same ids; starting below -2^32 also
// keeps clear of small counters used elsewhere.
func tempIDBase(id uuid.UUID) TempID {
	var b [8]byte
	copy(b[2:], id[10:])
	return TempID(-(int64(binary.BigEndian.Uint64(b[:])) + 1<<32))
}

// ID returns the random id of the session, also logged as session_id.
func (s *Session) ID() string {
	return s.id
}

// Scope returns the mounted scope.
func (s *Session) Scope() Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope
}

func (s *Session) mounted() (Scope, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scope, s.gen
}

// Mount switches the session to scope. Moving to another workspace tears the
// old connection down completely before the new one is opened; leaving a
// channel or thread clears its dedup set and optimistic entries.
func (s *Session) Mount(scope Scope) {
	s.mountMu.Lock()
	defer s.mountMu.Unlock()

	s.mu.Lock()
	old := s.scope
	if old == scope {
		s.mu.Unlock()
		return
	}
	s.scope = scope
	s.gen++
	s.mu.Unlock()

	s.logger.Info("scope changed", "from", old.Key(), "to", scope.Key())

	if !old.IsZero() {
		if scope.IsZero() || old.ConnectionKey() != scope.ConnectionKey() {
			s.conns.Disconnect(old.ConnectionKey())
		}
		s.dedup.Reset(old.Key())
		s.ledger.Release(old.Key())
		s.reactions.Reset()
	}
	if !scope.IsZero() {
		s.conns.Connect(scope.ConnectionKey())
	}
}

// Unmount leaves the current scope and closes its connection.
func (s *Session) Unmount() {
	s.Mount(Scope{})
}

// Reconnect restarts the connection of the mounted scope after reconnecting
// gave up. It is a no-op while the connection is active.
func (s *Session) Reconnect() error {
	scope := s.Scope()
	if scope.IsZero() {
		return ErrNotMounted
	}
	s.conns.Connect(scope.ConnectionKey())
	return nil
}

// ConnectionState returns the state of the mounted scope's connection.
func (s *Session) ConnectionState() ConnState {
	scope := s.Scope()
	if scope.IsZero() {
		return StateClosed
	}
	state, _ := s.conns.State(scope.ConnectionKey())
	return state
}

func (s *Session) handleFrame(connKey string, frame []byte) {
	if s.Scope().ConnectionKey() != connKey {
		s.metrics.FrameDropped("stale_connection")
		return
	}
	s.router.HandleFrame(frame)
}

func (s *Session) notice(n Notice) {
	if s.hooks.OnNotice != nil {
		s.hooks.OnNotice(n)
	}
}

// Send forwards an application frame over the mounted scope's connection.
// See ConnectionManager.Send for the delivery guarantees.
func (s *Session) Send(v any) bool {
	scope := s.Scope()
	if scope.IsZero() {
		return false
	}
	return s.conns.Send(scope.ConnectionKey(), v)
}

// SendMessage shows content immediately as a pending entry and creates it in
// the background. The entry is confirmed by whichever arrives first of the
// create response and the pushed echo.
func (s *Session) SendMessage(content string) (TempID, error) {
	scope, gen := s.mounted()
	if scope.IsZero() {
		return 0, ErrNotMounted
	}

	draft := Message{
		WorkspaceID:     scope.WorkspaceID,
		ChannelID:       scope.ChannelID,
		ParentMessageID: scope.ThreadID,
		Content:         content,
		UserID:          s.user.UserID,
		User:            s.user,
	}
	id := s.ledger.Submit(scope.Key(), draft)
	s.create(scope, gen, id, content)
	return id, nil
}

// RetryMessage resubmits a failed entry under a new temp id.
func (s *Session) RetryMessage(id TempID) (TempID, error) {
	scope, gen := s.mounted()
	entry, ok := s.ledger.Lookup(id)
	if !ok || entry.ScopeKey != scope.Key() {
		return 0, &ReconciliationError{Op: "retry", TempID: id}
	}
	newID, ok := s.ledger.Retry(id)
	if !ok {
		return 0, fmt.Errorf("retry %d: entry is %s", id, entry.Status)
	}
	s.create(scope, gen, newID, entry.Message.Content)
	return newID, nil
}

func (s *Session) create(scope Scope, gen uint64, id TempID, content string) {
	req := CreateMessageRequest{
		WorkspaceID:     scope.WorkspaceID,
		ChannelID:       scope.ChannelID,
		ParentMessageID: scope.ThreadID,
		Content:         content,
		Identifier:      id,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		msg, err := s.api.CreateMessage(s.ctx, req)
		if !s.stillMounted(gen) {
			s.logger.Debug("discarding create result", "temp_id", id, "error", ErrScopeChanged)
			return
		}
		if err != nil {
			s.ledger.Fail(id, err)
			return
		}
		if msg.MessageID <= 0 {
			s.ledger.Fail(id, fmt.Errorf("create message: response without message id"))
			return
		}
		settled, _ := s.ledger.Confirm(id, msg.MessageID, msg)
		if settled.Status != StatusConfirmed || settled.CanonicalID != msg.MessageID {
			return
		}
		s.markLoaded(gen, scope, []Message{msg})
	}()
}

// ToggleReaction adds or removes the user's emoji reaction. A transient hint
// is shown right away; the response count then replaces it, unless a pushed
// count for the message arrived in the meantime.
func (s *Session) ToggleReaction(messageID int64, emojiID string, add bool) error {
	scope, gen := s.mounted()
	if scope.IsZero() {
		return ErrNotMounted
	}

	since := s.reactions.Version(messageID)
	current, _ := s.reactions.Count(messageID, emojiID)
	if add {
		s.reactions.Hint(messageID, emojiID, current+1)
	} else {
		s.reactions.Hint(messageID, emojiID, current-1)
	}
	s.reactionChanged(messageID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var (
			r   Reaction
			err error
		)
		if add {
			r, err = s.api.AddReaction(s.ctx, messageID, emojiID)
		} else {
			r, err = s.api.RemoveReaction(s.ctx, messageID, emojiID)
		}
		if !s.stillMounted(gen) {
			return
		}
		if err != nil {
			s.logger.Warn("reaction request failed", "message_id", messageID, "emoji", emojiID, "error", err)
			s.reactions.ClearHint(messageID, emojiID)
		} else if !s.reactions.ApplyResponse(messageID, emojiID, r.Count, since) {
			s.logger.Debug("reaction response superseded by push", "message_id", messageID, "emoji", emojiID)
		}
		s.reactionChanged(messageID)
	}()
	return nil
}

func (s *Session) reactionChanged(messageID int64) {
	if s.hooks.OnReaction != nil {
		s.hooks.OnReaction(messageID, s.reactions.View(messageID))
	}
}

// LoadMessages fetches the mounted scope's messages. Their ids are marked as
// seen so a late push of the same message is not appended twice, and their
// reaction counts seed the aggregator. The result is discarded with
// ErrScopeChanged when the scope moved on while the request was in flight.
func (s *Session) LoadMessages(ctx context.Context) ([]Message, error) {
	scope, gen := s.mounted()
	if scope.IsZero() {
		return nil, ErrNotMounted
	}

	msgs, err := s.api.ListMessages(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if !s.markLoaded(gen, scope, msgs) {
		return nil, ErrScopeChanged
	}
	return msgs, nil
}

// markLoaded records msgs as seen in scope and seeds their reactions, unless
// a Mount happened since gen. It holds mountMu so the check cannot interleave
// with the reset of the old scope's state.
func (s *Session) markLoaded(gen uint64, scope Scope, msgs []Message) bool {
	s.mountMu.Lock()
	defer s.mountMu.Unlock()

	if !s.stillMounted(gen) {
		return false
	}
	for _, m := range msgs {
		s.dedup.MarkSeen(scope.Key(), m.MessageID)
		if m.Reactions != nil {
			s.reactions.Seed(m.MessageID, m.Reactions)
		}
	}
	return true
}

// LoadChannels fetches the channels of the mounted workspace.
func (s *Session) LoadChannels(ctx context.Context) ([]Channel, error) {
	scope := s.Scope()
	if scope.IsZero() {
		return nil, ErrNotMounted
	}

	channels, err := s.api.ListChannels(ctx, scope.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	if s.Scope().WorkspaceID != scope.WorkspaceID {
		return nil, ErrScopeChanged
	}
	return channels, nil
}

// Timeline merges fetched history with the optimistic entries of the
// mounted scope, ordered by creation time.
func (s *Session) Timeline(history []Message) []TimelineItem {
	return MergeTimeline(history, s.ledger.Entries(s.Scope().Key()))
}

// Entries returns the optimistic entries of the mounted scope.
func (s *Session) Entries() []Entry {
	return s.ledger.Entries(s.Scope().Key())
}

// Reactions returns the rendered reaction counts of a message.
func (s *Session) Reactions(messageID int64) map[string]int {
	return s.reactions.View(messageID)
}

// Subscribe registers an additional view, e.g. a thread panel next to the
// channel, with the session's router.
func (s *Session) Subscribe(sub Subscription) func() {
	return s.router.Subscribe(sub)
}

func (s *Session) stillMounted(gen uint64) bool {
	_, current := s.mounted()
	return current == gen
}

// Close unmounts, stops background requests and waits for them to finish.
func (s *Session) Close() {
	s.Unmount()
	s.unsubscribe()
	s.cancel()
	s.wg.Wait()
	s.conns.Close()
	s.ledger.Close()
}
