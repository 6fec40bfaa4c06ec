package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/HuongNV13/moodle/common/logger"
)

const shutdownGrace = 30 * time.Second

// Server is the lifecycle listener carried by the worker binaries. It serves
// health probes and blocks the main goroutine until SIGINT/SIGTERM.
type Server struct {
	name string
	http *http.Server
	log  *logger.Logger
}

// New creates a lifecycle server on the given port
func New(name string, port int, handler http.Handler, log *logger.Logger) *Server {
	return &Server{
		name: name,
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  time.Minute,
		},
		log: log,
	}
}

// Start serves until the process receives an interrupt or the listener fails,
// then drains in-flight requests within the shutdown grace period.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", "service", s.name, "addr", s.http.Addr)
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listener failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("interrupt received, draining", "service", s.name)

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.http.Shutdown(drainCtx); err != nil {
		s.http.Close()
		return fmt.Errorf("shutdown incomplete: %w", err)
	}

	s.log.Info("stopped", "service", s.name)
	return nil
}

// HealthHandler answers liveness probes
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	}
}
