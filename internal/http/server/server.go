// Package server envuelve http.Server con timeouts sanos y shutdown ordenado.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/hellowallet/internal/observability/logger"
)

// Server es el servidor HTTP del servicio.
type Server struct {
	srv *http.Server
}

// New crea el servidor con timeouts por defecto.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// ListenAndServe bloquea hasta que el servidor se apague.
// http.ErrServerClosed no es un error para el caller.
func (s *Server) ListenAndServe() error {
	logger.L().Info("http server listening", logger.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drena conexiones activas hasta el deadline del contexto.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.L().Info("http server shutting down")
	return s.srv.Shutdown(ctx)
}
