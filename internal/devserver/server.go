package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/specialistvlad/assetpipe/internal/ctxlog"
	"github.com/specialistvlad/assetpipe/internal/reload"
)

// ShutdownTimeout bounds a graceful shutdown.
const ShutdownTimeout = 5 * time.Second

// HealthPath is the liveness probe.
const HealthPath = "/health"

// SocketIOPath is where the socket.io handler is mounted.
const SocketIOPath = "/socket.io/"

// ServerError reports that the dev server could not start.
type ServerError struct {
	Addr string
	Err  error
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("dev server cannot listen on %s: %v", e.Addr, e.Err)
}

func (e *ServerError) Unwrap() error { return e.Err }

// Options configures a Server.
type Options struct {
	// Root is the directory served.
	Root string
	Host string
	// Port 0 picks a free port.
	Port int
	// Reload is the WebSocket endpoint, usually a *reload.Hub.
	Reload http.Handler
	// SocketIO is mounted under /socket.io/ when set.
	SocketIO http.Handler
}

// Server is the development HTTP server.
type Server struct {
	opts Options
	mux  *http.ServeMux

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// New creates a server. Nothing is bound until Serve.
func New(opts Options) *Server {
	s := &Server{opts: opts, mux: http.NewServeMux()}
	s.mux.HandleFunc(HealthPath, s.healthHandler)
	s.mux.HandleFunc(reload.ClientPath, clientHandler)
	if opts.Reload != nil {
		s.mux.Handle(reload.SocketPath, opts.Reload)
	}
	if opts.SocketIO != nil {
		s.mux.Handle(SocketIOPath, opts.SocketIO)
	}
	s.mux.Handle("/", newStaticHandler(opts.Root))
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler { return s.mux }

// Serve binds the listening socket and starts serving in the background.
// A bind failure is returned as a *ServerError.
func (s *Server) Serve(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("dev server already started")
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &ServerError{Addr: addr, Err: err}
	}

	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.done = make(chan error, 1)

	go func() {
		logger.Info("Dev server starting.", "url", s.url(), "root", s.opts.Root)
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			logger.Error("Dev server failed unexpectedly.", "error", err)
		}
		s.done <- err
		close(s.done)
	}()
	return nil
}

// Addr returns the bound address, or "" before Serve.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// URL returns the base URL of the running server.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url()
}

func (s *Server) url() string {
	if s.listener == nil {
		return ""
	}
	_, port, _ := net.SplitHostPort(s.listener.Addr().String())
	host := s.opts.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Shutdown stops the server gracefully, waiting at most ShutdownTimeout for
// open requests. Hijacked connections (WebSockets) are not waited for.
func (s *Server) Shutdown(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	s.mu.Lock()
	srv, done := s.srv, s.done
	s.mu.Unlock()
	if srv == nil {
		logger.Debug("Dev server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()

	logger.Info("Shutting down dev server...")
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Dev server shutdown failed.", "error", err)
		return err
	}
	if err := <-done; err != nil {
		return err
	}
	logger.Debug("Dev server shut down gracefully.")
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctxlog.FromContext(r.Context()).Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func clientHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(reload.ClientScript)
}
