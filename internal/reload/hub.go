package reload

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/specialistvlad/assetpipe/internal/ctxlog"
)

const (
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingEvery  = (hubPongWait * 9) / 10
	hubClientSend = 16
)

var hubUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// hubClient is one connected browser.
type hubClient struct {
	send chan message
}

// Hub is a WebSocket notifier. Mount it as an http.Handler; every connection
// receives the events published while it is open.
type Hub struct {
	ctx context.Context

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewHub creates a hub. ctx provides the logger.
func NewHub(ctx context.Context) *Hub {
	return &Hub{
		ctx:     ctx,
		clients: make(map[*hubClient]struct{}),
		done:    make(chan struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Notify implements Notifier. Clients whose send buffer is full miss the
// event.
func (h *Hub) Notify(e Event) {
	msg := newMessage(e)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
	ctxlog.FromContext(h.ctx).Debug("Reload event published.", "transport", "websocket", "scope", e.Scope, "clients", len(h.clients))
}

// ServeHTTP upgrades the request and keeps the connection until the client
// goes away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(h.ctx)

	conn, err := hubUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("Reload client upgrade failed.", "error", err)
		return
	}
	defer conn.Close()

	c := &hubClient{send: make(chan message, hubClientSend)}
	if !h.add(c) {
		return
	}
	defer h.remove(c)
	logger.Debug("Reload client connected.", "remote_addr", r.RemoteAddr)

	_ = conn.SetReadDeadline(time.Now().Add(hubPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})

	// The reader only exists to observe pongs and the peer closing.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(hubPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(hubWriteWait))
			return
		case <-readerDone:
			return
		case msg := <-c.send:
			if err := conn.SetWriteDeadline(time.Now().Add(hubWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(hubWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and waits for their handlers to return.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	close(h.done)
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) add(c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.wg.Done()
}
