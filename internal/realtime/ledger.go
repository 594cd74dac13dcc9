package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-sync/internal/metrics"
	"github.com/Tyrowin/gochat-sync/internal/observability"
)

// EntryStatus is the state of an optimistic entry. PENDING moves exactly once
// to CONFIRMED or FAILED; both are terminal.
type EntryStatus int

const (
	StatusPending EntryStatus = iota
	StatusConfirmed
	StatusFailed
)

func (s EntryStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Entry is a snapshot of one locally submitted message.
type Entry struct {
	TempID      TempID
	CanonicalID int64
	ScopeKey    string
	Message     Message
	Status      EntryStatus
	Err         error
	CreatedAt   time.Time
}

// LedgerConfig configures a Ledger. Zero values pick defaults.
type LedgerConfig struct {
	// FirstTempID is the first id handed out; later ids count down from it.
	// Non-negative values are replaced with -1.
	FirstTempID TempID
	// PendingTimeout fails entries that see no confirmation. Zero disables it.
	PendingTimeout time.Duration
	// OnChange is called after every submit and transition, outside the lock.
	OnChange func(Entry)

	Now       func() time.Time
	AfterFunc AfterFunc
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

type ledgerEntry struct {
	Entry
	timer Timer
}

// Ledger tracks optimistic messages from temp id to canonical id. Confirmation
// can arrive from the create-message response and from the pushed echo in
// either order; the first one wins and the second is a no-op.
type Ledger struct {
	mu      sync.Mutex
	next    TempID
	entries map[TempID]*ledgerEntry
	order   map[string][]TempID

	timeout   time.Duration
	onChange  func(Entry)
	now       func() time.Time
	afterFunc AfterFunc
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewLedger creates an empty ledger.
func NewLedger(cfg LedgerConfig) *Ledger {
	l := &Ledger{
		next:      cfg.FirstTempID,
		entries:   make(map[TempID]*ledgerEntry),
		order:     make(map[string][]TempID),
		timeout:   cfg.PendingTimeout,
		onChange:  cfg.OnChange,
		now:       cfg.Now,
		afterFunc: cfg.AfterFunc,
		logger:    observability.OrDiscard(cfg.Logger),
		metrics:   cfg.Metrics,
	}
	if l.next >= 0 {
		l.next = -1
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.afterFunc == nil {
		l.afterFunc = systemAfterFunc
	}
	return l
}

// Submit records draft as PENDING under scopeKey and returns its temp id. The
// returned id is also set as the draft's MessageID and Identifier so it can be
// displayed immediately and sent with the create request.
func (l *Ledger) Submit(scopeKey string, draft Message) TempID {
	l.mu.Lock()
	id := l.next
	l.next--

	now := l.now()
	draft.MessageID = int64(id)
	echo := id
	draft.Identifier = &echo
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = now
	}

	e := &ledgerEntry{Entry: Entry{
		TempID:    id,
		ScopeKey:  scopeKey,
		Message:   draft,
		Status:    StatusPending,
		CreatedAt: now,
	}}
	if l.timeout > 0 {
		e.timer = l.afterFunc(l.timeout, func() { l.Fail(id, ErrConfirmTimeout) })
	}
	l.entries[id] = e
	l.order[scopeKey] = append(l.order[scopeKey], id)
	snapshot := e.Entry
	l.mu.Unlock()

	l.logger.Debug("optimistic entry submitted", "temp_id", id, "scope", scopeKey)
	l.metrics.LedgerTransition(StatusPending.String())
	l.notify(snapshot)
	return id
}

// Confirm moves a PENDING entry to CONFIRMED, taking the canonical id and the
// server-derived fields of canonical while keeping the entry's position. It
// reports whether this call made the transition. Repeated confirms and
// confirms of unknown ids are no-ops.
func (l *Ledger) Confirm(id TempID, canonicalID int64, canonical Message) (Entry, bool) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		l.mu.Unlock()
		l.logger.Warn("ignoring confirm", "error", &ReconciliationError{Op: "confirm", TempID: id})
		return Entry{}, false
	}
	if e.Status != StatusPending {
		snapshot := e.Entry
		l.mu.Unlock()
		l.logger.Debug("entry already settled", "temp_id", id, "status", snapshot.Status.String())
		return snapshot, false
	}

	e.Status = StatusConfirmed
	e.CanonicalID = canonicalID
	applyCanonical(&e.Message, canonicalID, canonical)
	l.stopTimerLocked(e)
	snapshot := e.Entry
	l.mu.Unlock()

	l.logger.Debug("optimistic entry confirmed", "temp_id", id, "message_id", canonicalID)
	l.metrics.LedgerTransition(StatusConfirmed.String())
	l.notify(snapshot)
	return snapshot, true
}

// Fail moves a PENDING entry to FAILED. The entry stays listed so the user can
// retry it. It reports whether this call made the transition.
func (l *Ledger) Fail(id TempID, reason error) (Entry, bool) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		l.mu.Unlock()
		l.logger.Warn("ignoring fail", "error", &ReconciliationError{Op: "fail", TempID: id})
		return Entry{}, false
	}
	if e.Status != StatusPending {
		snapshot := e.Entry
		l.mu.Unlock()
		return snapshot, false
	}

	e.Status = StatusFailed
	e.Err = reason
	l.stopTimerLocked(e)
	snapshot := e.Entry
	l.mu.Unlock()

	l.logger.Info("optimistic entry failed", "temp_id", id, "error", reason)
	l.metrics.LedgerTransition(StatusFailed.String())
	l.notify(snapshot)
	return snapshot, true
}

// Retry resubmits a FAILED entry as a new PENDING entry with a new temp id and
// removes the failed one. It returns false when id is not a failed entry.
func (l *Ledger) Retry(id TempID) (TempID, bool) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok || e.Status != StatusFailed {
		l.mu.Unlock()
		return 0, false
	}
	draft := e.Message
	draft.MessageID = 0
	draft.Identifier = nil
	draft.CreatedAt = time.Time{}
	scopeKey := e.ScopeKey
	l.removeLocked(id)
	l.mu.Unlock()

	return l.Submit(scopeKey, draft), true
}

// Dismiss removes a FAILED entry the user chose to discard.
func (l *Ledger) Dismiss(id TempID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok || e.Status != StatusFailed {
		return false
	}
	l.removeLocked(id)
	return true
}

// Lookup returns the entry for id.
func (l *Ledger) Lookup(id TempID) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// Entries returns the entries of scopeKey in submission order.
func (l *Ledger) Entries(scopeKey string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := l.order[scopeKey]
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.entries[id].Entry)
	}
	return out
}

// Release forgets every entry of scopeKey and stops their timers. Called when
// the scope is unmounted.
func (l *Ledger) Release(scopeKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range l.order[scopeKey] {
		l.stopTimerLocked(l.entries[id])
		delete(l.entries, id)
	}
	delete(l.order, scopeKey)
}

// Close stops all pending timers.
func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, e := range l.entries {
		l.stopTimerLocked(e)
	}
}

func (l *Ledger) removeLocked(id TempID) {
	e := l.entries[id]
	l.stopTimerLocked(e)
	delete(l.entries, id)

	ids := l.order[e.ScopeKey]
	for i, other := range ids {
		if other == id {
			l.order[e.ScopeKey] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

func (l *Ledger) stopTimerLocked(e *ledgerEntry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (l *Ledger) notify(e Entry) {
	if l.onChange != nil {
		l.onChange(e)
	}
}

func applyCanonical(dst *Message, canonicalID int64, src Message) {
	dst.MessageID = canonicalID
	if !src.CreatedAt.IsZero() {
		dst.CreatedAt = src.CreatedAt
	}
	if src.WorkspaceID != 0 {
		dst.WorkspaceID = src.WorkspaceID
	}
	if src.UserID != 0 {
		dst.UserID = src.UserID
	}
	if src.User.UserID != 0 {
		dst.User = src.User
	}
	dst.HasAttachments = dst.HasAttachments || src.HasAttachments
}
