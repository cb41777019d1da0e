// Package rc exposes a small remote-control surface over HTTP: a JSON
// snapshot of the source sets and the prometheus metrics produced by the
// accounting package.
package rc

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bbockelm/XrdAdaptor/accounting"
	"github.com/bbockelm/XrdAdaptor/adaptor"
	"github.com/bbockelm/XrdAdaptor/xrd"
)

// Server serves diagnostics for one request manager.
type Server struct {
	manager *adaptor.RequestManager
	srv     *http.Server
}

// NewServer builds the rc server for manager, listening on addr once
// Start is called.
func NewServer(addr string, manager *adaptor.RequestManager) *Server {
	s := &Server{manager: manager}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes assembles the HTTP surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(accounting.Registry, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.manager.CurrentStatus()); err != nil {
		xrd.Errorf(s.manager, "write status: %v", err)
	}
}

// Start begins serving in the background and returns the bound address.
func (s *Server) Start() (string, error) {
	l, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return "", err
	}
	go func() {
		if err := s.srv.Serve(l); err != nil && err != http.ErrServerClosed {
			xrd.Errorf(nil, "rc server: %v", err)
		}
	}()
	return l.Addr().String(), nil
}

// Shutdown stops the server, waiting for in-flight handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
