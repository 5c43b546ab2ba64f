package infra

import (
	"context"
	"net/http"
	"time"
)

// HTTPServer owns the API listener. Start blocks; Shutdown drains in-flight
// requests, which matters here because campaign submission and ZIP downloads
// can be mid-write when the process receives a signal.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer builds the server with the timeouts from cfg. The read header
// timeout is fixed so a stalled client cannot hold a connection open before
// the body timeouts even apply.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	return &HTTPServer{server: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}}
}

// Start listens and serves until the server is shut down or fails.
func (s *HTTPServer) Start() error {
	if s.server == nil {
		return nil
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting new connections and waits for active requests up
// to the context deadline.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
