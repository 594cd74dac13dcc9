package realtime

import (
	"errors"
	"log/slog"
	"maps"
	"sync"

	"github.com/Tyrowin/gochat-sync/internal/metrics"
	"github.com/Tyrowin/gochat-sync/internal/observability"
)

// Subscription is a set of typed callbacks registered with a Router. Scope is
// read at dispatch time, so a view that switches channel only needs to change
// what Scope returns; frames for the old scope are then dropped.
type Subscription struct {
	// Scope returns the scope the subscriber currently shows. Without it the
	// subscriber receives no CHANNEL_* or MESSAGE_CREATED events.
	Scope func() Scope
	// Match overrides Scope.Matches as the scope predicate.
	Match func(scope Scope, ev *Event) bool

	OnConnected func(workspaceID int64)
	OnChannel   func(kind EventKind, ch Channel)
	OnMessage   func(msg Message)
	OnReaction  func(messageID int64, counts map[string]int)
}

// RouterConfig wires a Router to the state it reconciles against.
type RouterConfig struct {
	Dedup     *DedupGuard
	Ledger    *Ledger
	Reactions *ReactionAggregator
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

type subscriber struct {
	id  int
	sub Subscription
}

// Router parses inbound frames, classifies them and dispatches them to the
// ledger, the reaction aggregator and the registered subscriptions. Frames are
// handled one at a time; each subscriber callback runs at most once per frame.
type Router struct {
	frameMu sync.Mutex

	subMu  sync.RWMutex
	subs   []subscriber
	nextID int

	dedup     *DedupGuard
	ledger    *Ledger
	reactions *ReactionAggregator
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewRouter creates a router. Missing collaborators are created empty.
func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		dedup:     cfg.Dedup,
		ledger:    cfg.Ledger,
		reactions: cfg.Reactions,
		logger:    observability.OrDiscard(cfg.Logger),
		metrics:   cfg.Metrics,
	}
	if r.dedup == nil {
		r.dedup = NewDedupGuard()
	}
	if r.ledger == nil {
		r.ledger = NewLedger(LedgerConfig{Logger: cfg.Logger, Metrics: cfg.Metrics})
	}
	if r.reactions == nil {
		r.reactions = NewReactionAggregator()
	}
	return r
}

// Subscribe registers s and returns a function that removes it.
func (r *Router) Subscribe(s Subscription) func() {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscriber{id: id, sub: s})

	return func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		for i, other := range r.subs {
			if other.id == id {
				r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
				return
			}
		}
	}
}

// HandleFrame processes one raw frame. It never returns an error and never
// panics: unusable frames are logged and dropped.
func (r *Router) HandleFrame(frame []byte) {
	r.frameMu.Lock()
	defer r.frameMu.Unlock()

	ev, err := ParseFrame(frame)
	if err != nil {
		if errors.Is(err, ErrUnknownKind) {
			r.logger.Debug("ignoring frame", "error", err)
			r.metrics.FrameDropped("unknown_kind")
			return
		}
		r.logger.Warn("dropping frame", "error", err)
		r.metrics.FrameDropped("protocol")
		return
	}

	r.metrics.FrameReceived(string(ev.Kind))
	r.dispatch(ev)
}

func (r *Router) dispatch(ev *Event) {
	subs := r.snapshot()

	switch {
	case ev.Kind == KindConnected:
		for _, s := range subs {
			if s.sub.OnConnected != nil {
				r.safeCall(ev, func() { s.sub.OnConnected(ev.WorkspaceID) })
			}
		}

	case ev.Kind.IsChannelEvent():
		for _, s := range subs {
			if s.sub.OnChannel == nil {
				continue
			}
			if _, ok := r.accepts(s.sub, ev); !ok {
				r.metrics.FrameDropped("scope_mismatch")
				continue
			}
			r.safeCall(ev, func() { s.sub.OnChannel(ev.Kind, *ev.Channel) })
		}

	case ev.Kind == KindMessageCreated:
		r.dispatchMessage(ev, subs)

	default:
		r.dispatchReaction(ev, subs)
	}
}

func (r *Router) dispatchMessage(ev *Event, subs []subscriber) {
	msg := ev.Message
	if r.reconcileEcho(msg) {
		return
	}

	// one dedup decision per scope key and frame, so two views of the same
	// scope both get the message
	deliver := make(map[string]bool)
	for _, s := range subs {
		if s.sub.OnMessage == nil {
			continue
		}
		scope, ok := r.accepts(s.sub, ev)
		if !ok {
			r.metrics.FrameDropped("scope_mismatch")
			continue
		}
		key := scope.Key()
		fresh, decided := deliver[key]
		if !decided {
			fresh = !r.dedup.Seen(key, msg.MessageID)
			deliver[key] = fresh
			if !fresh {
				r.logger.Debug("duplicate message dropped", "message_id", msg.MessageID, "scope", key)
				r.metrics.FrameDropped("duplicate")
			}
		}
		if fresh {
			r.safeCall(ev, func() { s.sub.OnMessage(*msg) })
		}
	}
}

// reconcileEcho confirms the optimistic entry named by the echoed identifier.
// It reports whether the frame was consumed: a frame matching an entry that
// is (now) confirmed must not be appended as a second message.
func (r *Router) reconcileEcho(msg *Message) bool {
	if msg.Identifier == nil {
		return false
	}
	id := *msg.Identifier
	entry, ok := r.ledger.Lookup(id)
	if !ok || !ownsEcho(entry, msg) {
		return false
	}

	settled, _ := r.ledger.Confirm(id, msg.MessageID, *msg)
	if settled.Status != StatusConfirmed {
		// the entry timed out before the echo arrived; show the real message
		return false
	}
	if settled.CanonicalID != msg.MessageID {
		// the entry is already bound to another message, so this one is not
		// its echo and is routed like any other
		r.logger.Warn("echo canonical id differs from confirmed id",
			"temp_id", id, "confirmed", settled.CanonicalID, "echo", msg.MessageID)
		return false
	}
	r.dedup.MarkSeen(entry.ScopeKey, msg.MessageID)
	return true
}

func (r *Router) dispatchReaction(ev *Event, subs []subscriber) {
	rc := ev.Reaction
	if ev.Kind == KindReactionAdded {
		r.reactions.ApplyAdd(rc.MessageID, rc.EmojiID, rc.Count)
	} else {
		r.reactions.ApplyRemove(rc.MessageID, rc.EmojiID, rc.Count)
	}

	view := r.reactions.View(rc.MessageID)
	for _, s := range subs {
		if s.sub.OnReaction != nil {
			counts := maps.Clone(view)
			r.safeCall(ev, func() { s.sub.OnReaction(rc.MessageID, counts) })
		}
	}
}

func (r *Router) accepts(s Subscription, ev *Event) (Scope, bool) {
	if s.Scope == nil {
		return Scope{}, false
	}
	scope := s.Scope()
	if s.Match != nil {
		return scope, s.Match(scope, ev)
	}
	return scope, scope.Matches(ev)
}

func (r *Router) snapshot() []subscriber {
	r.subMu.RLock()
	defer r.subMu.RUnlock()

	return append([]subscriber(nil), r.subs...)
}

// safeCall runs a subscriber callback, containing any panic so one faulty
// handler cannot stop frame processing.
func (r *Router) safeCall(ev *Event, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("recovered from panic in event handler", "kind", string(ev.Kind), "panic", rec)
		}
	}()
	fn()
}

// Dedup returns the guard the router consults.
func (r *Router) Dedup() *DedupGuard { return r.dedup }

// Ledger returns the ledger the router reconciles echoes against.
func (r *Router) Ledger() *Ledger { return r.ledger }

// Reactions returns the aggregator the router updates.
func (r *Router) Reactions() *ReactionAggregator { return r.reactions }

// ownsEcho reports whether msg can be the echo of entry. Temp ids are only
// unique per session, so another client's message may carry the same one.
func ownsEcho(entry Entry, msg *Message) bool {
	if MessageScope(msg).Key() != entry.ScopeKey {
		return false
	}
	return entry.Message.UserID == 0 || msg.UserID == 0 || entry.Message.UserID == msg.UserID
}
