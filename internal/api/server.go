package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/muurk/pettracer/internal/logging"
	"go.uber.org/zap"
)

const readHeaderTimeout = 10 * time.Second

// Server runs the API router on a listener.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
}

// Listen binds addr and returns a server ready to Serve.
func Listen(addr string, backend Backend, opts Options) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		httpServer: &http.Server{
			Handler:           NewRouter(backend, opts),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		listener: ln,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Port returns the bound TCP port.
func (s *Server) Port() int {
	if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Serve blocks until Shutdown.
func (s *Server) Serve() error {
	logging.Info("API listening", zap.String("addr", s.listener.Addr().String()))
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
