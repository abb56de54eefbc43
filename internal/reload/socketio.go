package reload

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/specialistvlad/assetpipe/internal/ctxlog"
	"github.com/zishang520/socket.io/v2/socket"
)

// SocketIOEvent is the socket.io event name carrying reload messages.
const SocketIOEvent = "assetpipe:reload"

// SocketIO broadcasts events over socket.io, the transport browser-sync
// clients speak. Mount Handler under "/socket.io/".
type SocketIO struct {
	ctx     context.Context
	server  *socket.Server
	clients atomic.Int64
}

// NewSocketIO creates a socket.io server that is not yet bound to a listener.
func NewSocketIO(ctx context.Context) *SocketIO {
	s := &SocketIO{
		ctx:    ctx,
		server: socket.NewServer(nil, nil),
	}
	logger := ctxlog.FromContext(ctx)

	s.server.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		s.clients.Add(1)
		logger.Debug("Reload client connected.", "transport", "socket.io", "sid", client.Id())
		client.On("disconnect", func(...any) {
			s.clients.Add(-1)
		})
	})
	return s
}

// Handler returns the HTTP handler serving the socket.io protocol.
func (s *SocketIO) Handler() http.Handler {
	return s.server.ServeHandler(nil)
}

// Clients returns the number of connected socket.io clients.
func (s *SocketIO) Clients() int {
	return int(s.clients.Load())
}

// Notify implements Notifier.
func (s *SocketIO) Notify(e Event) {
	s.server.Emit(SocketIOEvent, newMessage(e))
	ctxlog.FromContext(s.ctx).Debug("Reload event published.", "transport", "socket.io", "scope", e.Scope, "clients", s.Clients())
}

// Close disconnects all socket.io clients.
func (s *SocketIO) Close() {
	s.server.Close(nil)
}
