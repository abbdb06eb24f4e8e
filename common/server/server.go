package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/weftlabs/weft/common/logger"
)

const (
	readTimeout       = 15 * time.Second
	writeTimeout      = 15 * time.Second
	idleTimeout       = 60 * time.Second
	streamIdleTimeout = 120 * time.Second
	drainTimeout      = 30 * time.Second
)

// Server wraps an HTTP server with graceful shutdown
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
	name       string
}

// New creates a server for request/response traffic.
func New(name string, port int, handler http.Handler, log *logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		log:  log,
		name: name,
	}
}

// NewStreaming creates a server for long-lived connections. Read and
// write timeouts are disabled so open WebSocket streams are not cut
// off mid-connection; the idle timeout still reaps dead keep-alives.
func NewStreaming(name string, port int, handler http.Handler, log *logger.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf(":%d", port),
			Handler:     handler,
			IdleTimeout: streamIdleTimeout,
		},
		log:  log,
		name: name,
	}
}

// Start runs the server until it fails or a shutdown signal arrives,
// then drains outstanding requests.
func (s *Server) Start() error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info(s.name+" listening", "addr", s.httpServer.Addr)
		errc <- s.httpServer.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
		return s.drain()
	}
}

// drain gives in-flight requests a grace period, then forces the
// listener closed if they overstay it.
func (s *Server) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error("graceful shutdown failed", "error", err)
		if cerr := s.httpServer.Close(); cerr != nil {
			return fmt.Errorf("could not stop server: %w", cerr)
		}
	}

	s.log.Info("shutdown complete")
	return nil
}
