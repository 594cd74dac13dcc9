package realtime

import "sync"

// DedupGuard records, per scope key, the canonical ids already applied so a
// redelivered or doubly-subscribed event is applied at most once.
type DedupGuard struct {
	mu   sync.Mutex
	seen map[string]map[int64]struct{}
}

// NewDedupGuard returns an empty guard.
func NewDedupGuard() *DedupGuard {
	return &DedupGuard{seen: make(map[string]map[int64]struct{})}
}

// HasSeen reports whether id was marked in scopeKey.
func (g *DedupGuard) HasSeen(scopeKey string, id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.seen[scopeKey][id]
	return ok
}

// MarkSeen records id in scopeKey.
func (g *DedupGuard) MarkSeen(scopeKey string, id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.markLocked(scopeKey, id)
}

// Seen marks id in scopeKey and reports whether it was already present.
func (g *DedupGuard) Seen(scopeKey string, id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[scopeKey][id]; ok {
		return true
	}
	g.markLocked(scopeKey, id)
	return false
}

func (g *DedupGuard) markLocked(scopeKey string, id int64) {
	set, ok := g.seen[scopeKey]
	if !ok {
		set = make(map[int64]struct{})
		g.seen[scopeKey] = set
	}
	set[id] = struct{}{}
}

// Reset drops the whole set for scopeKey. Called whenever the owning scope changes.
func (g *DedupGuard) Reset(scopeKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.seen, scopeKey)
}

// Len returns the number of ids recorded for scopeKey.
func (g *DedupGuard) Len(scopeKey string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.seen[scopeKey])
}
