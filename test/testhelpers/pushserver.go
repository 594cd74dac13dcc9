// Package testhelpers provides a scripted push server and frame builders
// shared by the sync core's unit and integration tests.
//
// The push server speaks the same protocol as the production endpoint: clients
// dial /ws?workspaceId=W and receive JSON text frames broadcast to W.
package testhelpers

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// pushClient is one accepted connection.
type pushClient struct {
	conn      *websocket.Conn
	send      chan []byte
	workspace string
	closed    bool
}

type broadcastMessage struct {
	workspace string
	payload   []byte
	delivered chan int
}

// hub registers clients per workspace and fans broadcasts out to them.
type hub struct {
	clients    map[*pushClient]bool
	broadcast  chan broadcastMessage
	register   chan *pushClient
	unregister chan *pushClient
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

func newHub() *hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &hub{
		clients:    make(map[*pushClient]bool),
		broadcast:  make(chan broadcastMessage),
		register:   make(chan *pushClient),
		unregister: make(chan *pushClient),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (h *hub) run(onFrame func(workspace string, frame []byte)) {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump(h, onFrame)
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closed = true
				h.mutex.Unlock()
				close(client.send)
			} else {
				h.mutex.Unlock()
			}

		case msg := <-h.broadcast:
			msg.delivered <- h.handleBroadcast(msg)
		}
	}
}

func (h *hub) handleBroadcast(msg broadcastMessage) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	n := 0
	for client := range h.clients {
		if client.closed || client.workspace != msg.workspace {
			continue
		}
		select {
		case client.send <- msg.payload:
			n++
		default:
			log.Printf("push client for workspace %s has a full send buffer; dropping frame", client.workspace)
		}
	}
	return n
}

func (h *hub) snapshot(workspace string) []*pushClient {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*pushClient, 0, len(h.clients))
	for client := range h.clients {
		if workspace == "" || client.workspace == workspace {
			clients = append(clients, client)
		}
	}
	return clients
}

func (h *hub) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*pushClient, 0, len(h.clients))
	for client := range h.clients {
		delete(h.clients, client)
		client.closed = true
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		close(client.send)
		_ = client.conn.Close()
	}
}

func (h *hub) shutdown(timeout time.Duration) {
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Println("push server shutdown timed out")
	}
}

func (c *pushClient) readPump(h *hub, onFrame func(string, []byte)) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
		_ = c.conn.Close()
	}()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		onFrame(c.workspace, frame)
	}
}

func (c *pushClient) writePump() {
	defer func() { _ = c.conn.Close() }()

	for message := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// PushServer is an httptest server accepting push connections on /ws.
type PushServer struct {
	*httptest.Server

	hub    *hub
	reject atomic.Bool

	mu       sync.Mutex
	dials    map[string]int
	headers  []http.Header
	received [][]byte
}

// NewPushServer starts a push server that is shut down when the test ends.
func NewPushServer(t testing.TB) *PushServer {
	t.Helper()

	s := &PushServer{hub: newHub(), dials: make(map[string]int)}
	go s.hub.run(s.record)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.Server = httptest.NewServer(mux)

	t.Cleanup(func() {
		s.hub.shutdown(2 * time.Second)
		s.Server.Close()
	})
	return s
}

func (s *PushServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	workspace := r.URL.Query().Get("workspaceId")

	s.mu.Lock()
	s.dials[workspace]++
	s.headers = append(s.headers, r.Header.Clone())
	s.mu.Unlock()

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if workspace == "" {
		http.Error(w, "workspaceId is required", http.StatusBadRequest)
		return
	}
	if s.reject.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("push server upgrade failed: %v", err)
		return
	}
	client := &pushClient{conn: conn, send: make(chan []byte, 256), workspace: workspace}
	select {
	case s.hub.register <- client:
	case <-s.hub.ctx.Done():
		_ = conn.Close()
	}
}

func (s *PushServer) record(_ string, frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, frame)
}

// Broadcast sends frame to every client of workspace and returns how many
// clients it was queued for.
func (s *PushServer) Broadcast(workspace string, frame []byte) int {
	msg := broadcastMessage{workspace: workspace, payload: frame, delivered: make(chan int, 1)}
	select {
	case s.hub.broadcast <- msg:
		return <-msg.delivered
	case <-s.hub.ctx.Done():
		return 0
	}
}

// Clients returns the number of open connections for workspace.
func (s *PushServer) Clients(workspace string) int {
	return len(s.hub.snapshot(workspace))
}

// Dials returns how many handshakes were attempted for workspace, including
// rejected ones.
func (s *PushServer) Dials(workspace string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials[workspace]
}

// Headers returns the request headers of every handshake so far.
func (s *PushServer) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

// Received returns the frames clients sent to the server.
func (s *PushServer) Received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.received...)
}

// Reject makes subsequent handshakes fail with 503 while on is true.
func (s *PushServer) Reject(on bool) {
	s.reject.Store(on)
}

// Drop closes every connection of workspace without a close frame, which the
// client sees as an abnormal closure.
func (s *PushServer) Drop(workspace string) {
	for _, client := range s.hub.snapshot(workspace) {
		_ = client.conn.Close()
	}
}

// CloseNormal sends a normal-closure close frame to every client of workspace.
func (s *PushServer) CloseNormal(workspace string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	for _, client := range s.hub.snapshot(workspace) {
		_ = client.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
}
