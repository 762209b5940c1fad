// Package web provides the HTTP status page and live WebSocket feed
// for the reflow controller daemon.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/sweeney/reflowd/internal/status"
	"github.com/sweeney/reflowd/internal/wsstream"
)

// Server serves the status page, JSON status endpoint, and live
// WebSocket feed over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	hub        *wsstream.Hub
}

// New creates a Server that reads state from the given tracker and
// pushes live updates over the given hub. Callers are responsible for
// starting hub.Run() and feeding it via hub.Publish.
func New(addr string, tracker *status.Tracker, hub *wsstream.Hub) *Server {
	s := &Server{tracker: tracker, hub: hub}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.Handle("/ws", hub)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
