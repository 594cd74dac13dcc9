package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Dialer opens the push connection addressed to a scope.
type Dialer interface {
	Dial(ctx context.Context, scope string) (*websocket.Conn, error)
}

// WebSocketDialer dials <BaseURL>/ws?workspaceId=<scope> with gorilla/websocket.
type WebSocketDialer struct {
	BaseURL string
	Path    string
	Header  http.Header
	Dialer  *websocket.Dialer
}

// NewWebSocketDialer returns a dialer for baseURL. A non-empty token is sent
// as a bearer Authorization header.
func NewWebSocketDialer(baseURL, token string, handshakeTimeout time.Duration) *WebSocketDialer {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &WebSocketDialer{
		BaseURL: baseURL,
		Path:    "/ws",
		Header:  header,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

// URL builds the push endpoint for scope.
func (d *WebSocketDialer) URL(scope string) (string, error) {
	u, err := url.Parse(d.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	path := d.Path
	if path == "" {
		path = "/ws"
	}
	u.Path = u.Path + path
	q := u.Query()
	q.Set("workspaceId", scope)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial implements Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, scope string) (*websocket.Conn, error) {
	target, err := d.URL(scope)
	if err != nil {
		return nil, err
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, target, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", target, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return conn, nil
}
