package realtime

import "strconv"

// Scope identifies what a view is showing: a workspace, a channel in it and
// optionally a thread (root message) in that channel.
type Scope struct {
	WorkspaceID int64
	ChannelID   int64
	ThreadID    int64
}

// IsZero reports whether no workspace is selected.
func (s Scope) IsZero() bool { return s.WorkspaceID == 0 }

// ConnectionKey is the key under which the push connection for s is managed.
func (s Scope) ConnectionKey() string {
	return strconv.FormatInt(s.WorkspaceID, 10)
}

// Key is the dedup and ledger key of s.
func (s Scope) Key() string {
	key := "ws:" + strconv.FormatInt(s.WorkspaceID, 10) + "/ch:" + strconv.FormatInt(s.ChannelID, 10)
	if s.ThreadID != 0 {
		key += "/th:" + strconv.FormatInt(s.ThreadID, 10)
	}
	return key
}

// MessageScope is the scope a message belongs to: its thread when it is a
// reply, its channel otherwise.
func MessageScope(m *Message) Scope {
	return Scope{WorkspaceID: m.WorkspaceID, ChannelID: m.ChannelID, ThreadID: m.ParentMessageID}
}

// Matches is the default scope predicate. Channel events match on workspace;
// messages match when they belong to exactly this channel/thread.
func (s Scope) Matches(ev *Event) bool {
	if s.IsZero() {
		return false
	}
	if ev.WorkspaceID != 0 && ev.WorkspaceID != s.WorkspaceID {
		return false
	}
	switch {
	case ev.Kind.IsChannelEvent():
		return true
	case ev.Kind == KindMessageCreated:
		return ev.Message.ChannelID == s.ChannelID && ev.Message.ParentMessageID == s.ThreadID
	}
	return true
}
