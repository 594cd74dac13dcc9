package realtime

import "sync"

type reactionKey struct {
	messageID int64
	emoji     string
}

// ReactionAggregator holds the authoritative emoji→count state per message.
// Every mutation replaces the stored count with the server-declared value;
// counts are never derived locally, so concurrent reactions from other users
// cannot drift. A count of zero is stored as absence.
type ReactionAggregator struct {
	mu     sync.Mutex
	counts map[int64]map[string]int
	hints  map[reactionKey]int
	// versions counts authoritative updates per message
	versions map[int64]uint64
}

// NewReactionAggregator returns an empty aggregator.
func NewReactionAggregator() *ReactionAggregator {
	return &ReactionAggregator{
		counts:   make(map[int64]map[string]int),
		hints:    make(map[reactionKey]int),
		versions: make(map[int64]uint64),
	}
}

// ApplyAdd records count as authoritative. A non-positive count (an add that
// was overtaken by a remove) deletes the key.
func (a *ReactionAggregator) ApplyAdd(messageID int64, emoji string, count int) {
	a.apply(messageID, emoji, count)
}

// ApplyRemove records count when positive and deletes the key otherwise.
func (a *ReactionAggregator) ApplyRemove(messageID int64, emoji string, count int) {
	a.apply(messageID, emoji, count)
}

func (a *ReactionAggregator) apply(messageID int64, emoji string, count int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.hints, reactionKey{messageID, emoji})
	a.versions[messageID]++
	a.setLocked(messageID, emoji, count)
}

// Version returns a token that changes whenever an authoritative count for
// messageID is applied or seeded.
func (a *ReactionAggregator) Version(messageID int64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.versions[messageID]
}

// ApplyResponse records the count returned by an add or remove request made
// when the message was at version since. The response is not ordered against
// pushed events, so if any authoritative update arrived meanwhile the count is
// dropped and only the hint is cleared. It reports whether count was applied.
func (a *ReactionAggregator) ApplyResponse(messageID int64, emoji string, count int, since uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.hints, reactionKey{messageID, emoji})
	if a.versions[messageID] != since {
		return false
	}
	a.versions[messageID]++
	a.setLocked(messageID, emoji, count)
	return true
}

func (a *ReactionAggregator) setLocked(messageID int64, emoji string, count int) {
	m := a.counts[messageID]
	if count <= 0 {
		if m != nil {
			delete(m, emoji)
			if len(m) == 0 {
				delete(a.counts, messageID)
			}
		}
		return
	}
	if m == nil {
		m = make(map[string]int)
		a.counts[messageID] = m
	}
	m[emoji] = count
}

// Seed replaces the state of messageID with counts loaded alongside history.
func (a *ReactionAggregator) Seed(messageID int64, counts map[string]int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.counts, messageID)
	a.versions[messageID]++
	for emoji, count := range counts {
		a.setLocked(messageID, emoji, count)
	}
}

// Hint sets a transient rendering hint for (messageID, emoji), e.g. right
// after the user clicks a reaction. The next authoritative event for the pair
// removes the hint; it is never merged into the stored count.
func (a *ReactionAggregator) Hint(messageID int64, emoji string, count int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if count < 0 {
		count = 0
	}
	a.hints[reactionKey{messageID, emoji}] = count
}

// ClearHint drops the hint for the pair, e.g. when the request failed.
func (a *ReactionAggregator) ClearHint(messageID int64, emoji string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.hints, reactionKey{messageID, emoji})
}

// Count returns the authoritative count and whether the key is present.
func (a *ReactionAggregator) Count(messageID int64, emoji string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.counts[messageID][emoji]
	return c, ok
}

// Counts returns a copy of the authoritative state of messageID.
func (a *ReactionAggregator) Counts(messageID int64) map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]int, len(a.counts[messageID]))
	for emoji, c := range a.counts[messageID] {
		out[emoji] = c
	}
	return out
}

// View returns what should be rendered for messageID: authoritative counts
// with any pending hints laid over them.
func (a *ReactionAggregator) View(messageID int64) map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]int, len(a.counts[messageID]))
	for emoji, c := range a.counts[messageID] {
		out[emoji] = c
	}
	for key, c := range a.hints {
		if key.messageID != messageID {
			continue
		}
		if c == 0 {
			delete(out, key.emoji)
			continue
		}
		out[key.emoji] = c
	}
	return out
}

// Forget drops all state for messageID.
func (a *ReactionAggregator) Forget(messageID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.counts, messageID)
	delete(a.versions, messageID)
	for key := range a.hints {
		if key.messageID == messageID {
			delete(a.hints, key)
		}
	}
}

// Reset drops all counts and hints, e.g. when the view moves to another
// channel whose messages will be loaded afresh.
func (a *ReactionAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	clear(a.counts)
	clear(a.hints)
	clear(a.versions)
}
