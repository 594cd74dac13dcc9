package realtime

import "slices"

// TimelineItem is one row of a rendered channel or thread.
type TimelineItem struct {
	Message Message
	// TempID is set for rows that came from the ledger.
	TempID TempID
	Status EntryStatus
}

// Pending reports whether the row still waits for confirmation.
func (i TimelineItem) Pending() bool {
	return i.TempID != 0 && i.Status == StatusPending
}

// Failed reports whether the row is a failed local send.
func (i TimelineItem) Failed() bool {
	return i.TempID != 0 && i.Status == StatusFailed
}

// MergeTimeline combines fetched history with optimistic entries. Confirmed
// entries whose canonical message is already in history are skipped. The
// result is ordered by creation time; ties keep history before local entries.
func MergeTimeline(history []Message, entries []Entry) []TimelineItem {
	known := make(map[int64]struct{}, len(history))
	items := make([]TimelineItem, 0, len(history)+len(entries))
	for _, m := range history {
		known[m.MessageID] = struct{}{}
		items = append(items, TimelineItem{Message: m, Status: StatusConfirmed})
	}
	for _, e := range entries {
		if e.Status == StatusConfirmed {
			if _, ok := known[e.CanonicalID]; ok {
				continue
			}
		}
		items = append(items, TimelineItem{Message: e.Message, TempID: e.TempID, Status: e.Status})
	}

	slices.SortStableFunc(items, func(a, b TimelineItem) int {
		return a.Message.CreatedAt.Compare(b.Message.CreatedAt)
	})
	return items
}
