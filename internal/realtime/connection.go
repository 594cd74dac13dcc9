package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/gochat-sync/internal/metrics"
	"github.com/Tyrowin/gochat-sync/internal/observability"
)

const writeWait = 10 * time.Second

// ConnState is the lifecycle state of a push connection.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionHooks are the typed notifications of a ConnectionManager. They
// are called without internal locks held.
type ConnectionHooks struct {
	OnOpen func(scope string)
	// OnFrame runs on the connection's reader goroutine. It may call
	// Disconnect, but not Close.
	OnFrame func(scope string, frame []byte)
	// OnLost fires once per outage, when the first reconnect is scheduled.
	OnLost func(scope string, err error)
	// OnFailed fires once when reconnect attempts are exhausted.
	OnFailed func(scope string, err error)
}

// ConnectionConfig configures a ConnectionManager.
type ConnectionConfig struct {
	Dialer Dialer
	Hooks  ConnectionHooks

	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// PingInterval and PongWait enable keepalive when both are positive.
	PingInterval time.Duration
	PongWait     time.Duration
	MaxFrameSize int64

	// SendBurst frames may be sent per SendInterval; excess frames are dropped.
	SendBurst    int
	SendInterval time.Duration

	AfterFunc AfterFunc
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

type connection struct {
	id       string
	scope    string
	state    ConnState
	attempts int
	backoff  retry.Backoff
	timer    Timer
	closing  bool

	conn       *websocket.Conn
	limiter    *rate.Limiter
	writeMu    sync.Mutex
	readDone   chan struct{}
	stopPing   chan struct{}
	cancelDial context.CancelFunc
	// dispatching is set while the reader is inside OnFrame
	dispatching atomic.Bool
}

// ConnectionManager owns at most one push connection per scope and applies
// the reconnect policy. No other component holds the raw connection.
type ConnectionManager struct {
	mu     sync.Mutex
	conns  map[string]*connection
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dialer       Dialer
	hooks        ConnectionHooks
	maxAttempts  int
	baseDelay    time.Duration
	maxDelay     time.Duration
	pingInterval time.Duration
	pongWait     time.Duration
	maxFrameSize int64
	sendLimit    rate.Limit
	sendBurst    int
	afterFunc    AfterFunc
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewConnectionManager creates a manager. Zero policy values fall back to 5
// attempts, 1s base delay and a 30s cap.
func NewConnectionManager(cfg ConnectionConfig) *ConnectionManager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &ConnectionManager{
		conns:        make(map[string]*connection),
		ctx:          ctx,
		cancel:       cancel,
		dialer:       cfg.Dialer,
		hooks:        cfg.Hooks,
		maxAttempts:  cfg.MaxAttempts,
		baseDelay:    cfg.BaseDelay,
		maxDelay:     cfg.MaxDelay,
		pingInterval: cfg.PingInterval,
		pongWait:     cfg.PongWait,
		maxFrameSize: cfg.MaxFrameSize,
		sendBurst:    cfg.SendBurst,
		afterFunc:    cfg.AfterFunc,
		logger:       observability.OrDiscard(cfg.Logger),
		metrics:      cfg.Metrics,
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = 5
	}
	if m.baseDelay <= 0 {
		m.baseDelay = time.Second
	}
	if m.maxDelay < m.baseDelay {
		m.maxDelay = max(30*time.Second, m.baseDelay)
	}
	if m.afterFunc == nil {
		m.afterFunc = systemAfterFunc
	}
	m.sendLimit = rate.Inf
	if cfg.SendBurst > 0 && cfg.SendInterval > 0 {
		m.sendLimit = rate.Limit(float64(cfg.SendBurst) / cfg.SendInterval.Seconds())
	}
	if m.sendBurst <= 0 {
		m.sendBurst = 1
	}
	return m
}

func (m *ConnectionManager) newBackoff() retry.Backoff {
	b := retry.NewExponential(m.baseDelay)
	b = retry.WithCappedDuration(m.maxDelay, b)
	return retry.WithMaxRetries(uint64(m.maxAttempts), b)
}

// Connect opens the connection for scope. It returns immediately; the dial
// runs in the background. It is a no-op while a connection for scope is
// connecting, open or waiting for a scheduled reconnect.
func (m *ConnectionManager) Connect(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if c, ok := m.conns[scope]; ok {
		if c.state == StateConnecting || c.state == StateOpen || c.timer != nil {
			m.logger.Debug("connect ignored, connection active", "scope", scope, "state", c.state.String())
			return
		}
	}

	c := &connection{scope: scope, backoff: m.newBackoff()}
	m.conns[scope] = c
	m.startDialLocked(c)
}

func (m *ConnectionManager) startDialLocked(c *connection) {
	ctx, cancel := context.WithCancel(m.ctx)
	c.cancelDial = cancel
	c.state = StateConnecting

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.dial(ctx, c)
	}()
}

func (m *ConnectionManager) dial(ctx context.Context, c *connection) {
	conn, err := m.dialer.Dial(ctx, c.scope)

	m.mu.Lock()
	if m.conns[c.scope] != c || c.closing {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	c.cancelDial = nil
	if err != nil {
		sig := m.scheduleReconnectLocked(c, err)
		m.mu.Unlock()
		m.emit(c.scope, sig)
		return
	}

	c.id = uuid.NewString()
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	c.backoff = m.newBackoff()
	c.limiter = rate.NewLimiter(m.sendLimit, m.sendBurst)
	c.readDone = make(chan struct{})
	c.stopPing = make(chan struct{})
	if m.maxFrameSize > 0 {
		conn.SetReadLimit(m.maxFrameSize)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.readPump(c, conn, c.readDone)
	}()
	if m.pingInterval > 0 && m.pongWait > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.pingPump(c, conn, c.stopPing)
		}()
	}
	m.mu.Unlock()

	m.metrics.ConnectionOpened()
	m.logger.Info("connection open", "scope", c.scope, "conn_id", c.id)
	if m.hooks.OnOpen != nil {
		m.hooks.OnOpen(c.scope)
	}
}

func (m *ConnectionManager) readPump(c *connection, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	if m.pongWait > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(m.pongWait)); err != nil {
			m.logger.Debug("set read deadline", "scope", c.scope, "error", err)
		}
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(m.pongWait))
		})
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			m.handleReadError(c, conn, err)
			return
		}
		if !m.isCurrent(c, conn) {
			continue
		}
		if m.hooks.OnFrame != nil {
			c.dispatching.Store(true)
			m.hooks.OnFrame(c.scope, frame)
			c.dispatching.Store(false)
		}
	}
}

func (m *ConnectionManager) pingPump(c *connection, conn *websocket.Conn, stop chan struct{}) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if !isExpectedCloseError(err) {
					m.logger.Debug("ping failed", "scope", c.scope, "error", err)
				}
				return
			}
		}
	}
}

func (m *ConnectionManager) isCurrent(c *connection, conn *websocket.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return !c.closing && c.conn == conn && m.conns[c.scope] == c
}

func (m *ConnectionManager) handleReadError(c *connection, conn *websocket.Conn, err error) {
	m.mu.Lock()
	if c.conn != conn {
		m.mu.Unlock()
		return
	}
	c.conn = nil
	close(c.stopPing)
	m.metrics.ConnectionClosed()

	if c.closing || m.conns[c.scope] != c {
		c.state = StateClosed
		m.mu.Unlock()
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.state = StateClosed
		m.mu.Unlock()
		m.logger.Info("connection closed by server", "scope", c.scope, "conn_id", c.id)
		return
	}

	sig := m.scheduleReconnectLocked(c, err)
	m.mu.Unlock()
	m.emit(c.scope, sig)
}

type reconnectSignal struct {
	lost   error
	failed error
}

// scheduleReconnectLocked handles an unclean close or failed dial of c.
func (m *ConnectionManager) scheduleReconnectLocked(c *connection, cause error) reconnectSignal {
	c.state = StateClosed

	var delay time.Duration
	stop := c.attempts >= m.maxAttempts
	if !stop {
		delay, stop = c.backoff.Next()
	}
	if stop {
		c.timer = nil
		m.logger.Error("giving up reconnecting", "scope", c.scope, "attempts", c.attempts, "error", cause)
		return reconnectSignal{failed: &TransportError{
			Scope:   c.scope,
			Attempt: c.attempts,
			Err:     fmt.Errorf("%w: %w", ErrRetriesExhausted, cause),
		}}
	}

	c.attempts++
	attempt := c.attempts
	c.timer = m.afterFunc(delay, func() { m.redial(c) })
	m.metrics.ReconnectScheduled()
	m.logger.Warn("connection lost, reconnecting",
		"scope", c.scope, "attempt", attempt, "max_attempts", m.maxAttempts,
		"backoff", delay, "error", cause)

	if attempt == 1 {
		return reconnectSignal{lost: &TransportError{Scope: c.scope, Attempt: attempt, Err: cause}}
	}
	return reconnectSignal{}
}

func (m *ConnectionManager) emit(scope string, sig reconnectSignal) {
	if sig.lost != nil && m.hooks.OnLost != nil {
		m.hooks.OnLost(scope, sig.lost)
	}
	if sig.failed != nil && m.hooks.OnFailed != nil {
		m.hooks.OnFailed(scope, sig.failed)
	}
}

func (m *ConnectionManager) redial(c *connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || c.closing || m.conns[c.scope] != c {
		return
	}
	c.timer = nil
	m.logger.Info("reconnecting", "scope", c.scope, "attempt", c.attempts)
	m.startDialLocked(c)
}

// Disconnect tears down the connection for scope: it cancels a pending
// reconnect, closes the socket with a normal closure and waits until the
// reader has stopped. No frame of the old connection is delivered after
// Disconnect returns, apart from one whose OnFrame is already running: when
// the reader is inside OnFrame, possibly calling Disconnect itself, it is not
// waited for.
func (m *ConnectionManager) Disconnect(scope string) {
	m.mu.Lock()
	c, ok := m.conns[scope]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.conns, scope)
	c.closing = true
	c.state = StateClosing
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn, done := c.conn, c.readDone
	m.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !isExpectedCloseError(err) {
			m.logger.Debug("write close frame", "scope", scope, "error", err)
		}
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			m.logger.Warn("close connection", "scope", scope, "error", err)
		}
		if !c.dispatching.Load() {
			<-done
		}
	}

	m.mu.Lock()
	c.state = StateClosed
	m.mu.Unlock()
	m.logger.Info("connection closed", "scope", scope)
}

// Send writes v as a JSON text frame on the open connection for scope. It is
// best effort: it reports false, without queueing, when the connection is
// not open, the frame cannot be encoded, the send rate is exceeded or the
// write fails. Delivery is unconfirmed until the application acknowledges it.
func (m *ConnectionManager) Send(scope string, v any) bool {
	m.mu.Lock()
	c, ok := m.conns[scope]
	if !ok || c.state != StateOpen || c.conn == nil {
		m.mu.Unlock()
		m.metrics.OutboundFrame("not_open")
		return false
	}
	conn, limiter := c.conn, c.limiter
	m.mu.Unlock()

	payload, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("encode outbound frame", "scope", scope, "error", err)
		m.metrics.OutboundFrame("encode_error")
		return false
	}
	if !limiter.Allow() {
		m.logger.Warn("send rate exceeded, dropping frame", "scope", scope)
		m.metrics.OutboundFrame("throttled")
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		m.logger.Debug("set write deadline", "scope", scope, "error", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			m.logger.Warn("write frame", "scope", scope, "error", err)
		}
		m.metrics.OutboundFrame("write_error")
		return false
	}
	m.metrics.OutboundFrame("sent")
	return true
}

// State returns the state of the connection for scope.
func (m *ConnectionManager) State(scope string) (ConnState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conns[scope]
	if !ok {
		return StateClosed, false
	}
	return c.state, true
}

// Attempts returns the reconnect attempts made in the current outage of scope.
func (m *ConnectionManager) Attempts(scope string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.conns[scope]; ok {
		return c.attempts
	}
	return 0
}

// Close disconnects every scope and waits for background goroutines.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	scopes := make([]string, 0, len(m.conns))
	for scope := range m.conns {
		scopes = append(scopes, scope)
	}
	m.mu.Unlock()

	for _, scope := range scopes {
		m.Disconnect(scope)
	}
	m.cancel()
	m.wg.Wait()
}

// IsRetriesExhausted reports whether err is the terminal reconnect failure.
func IsRetriesExhausted(err error) bool {
	return errors.Is(err, ErrRetriesExhausted)
}
