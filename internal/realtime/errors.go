package realtime

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRetriesExhausted is reported once when reconnect attempts for a scope run out.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	// ErrConfirmTimeout fails an optimistic entry that received no confirmation in time.
	ErrConfirmTimeout = errors.New("no confirmation received")
	// ErrScopeChanged marks a request result discarded because the scope moved on.
	ErrScopeChanged = errors.New("scope changed before result arrived")
	// ErrUnknownKind marks a frame whose type the router does not handle.
	ErrUnknownKind = errors.New("unknown event kind")
	// ErrNotMounted is returned by session operations that need a mounted scope.
	ErrNotMounted = errors.New("no scope mounted")

	errMissingData = errors.New("missing data")
)

// TransportError describes a lost or failed push connection.
type TransportError struct {
	Scope   string
	Attempt int
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s (attempt %d): %v", e.Scope, e.Attempt, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError describes an inbound frame that could not be used.
type ProtocolError struct {
	Reason string
	Frame  string
	Err    error
}

const maxFrameExcerpt = 128

func newProtocolError(reason string, frame []byte, err error) *ProtocolError {
	excerpt := string(frame)
	if len(excerpt) > maxFrameExcerpt {
		excerpt = excerpt[:maxFrameExcerpt] + "..."
	}
	return &ProtocolError{Reason: reason, Frame: excerpt, Err: err}
}

func (e *ProtocolError) Error() string {
	if e.Err != nil && !errors.Is(e.Err, ErrUnknownKind) {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ReconciliationError describes a confirm or fail call for a temp id the
// ledger does not know.
type ReconciliationError struct {
	Op     string
	TempID TempID
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile %s: unknown temp id %d", e.Op, e.TempID)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
