package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/HuongNV13/moodle/common/logger"
)

// Telemetry serves pprof on a localhost-only listener, kept off the public
// service port
type Telemetry struct {
	server *http.Server
	log    *logger.Logger
}

// New creates the pprof listener for the given port
func New(port int, log *logger.Logger) *Telemetry {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &Telemetry{
		server: &http.Server{
			Addr:    fmt.Sprintf("localhost:%d", port),
			Handler: mux,
		},
		log: log,
	}
}

// Start serves pprof in the background until the context is canceled
func (t *Telemetry) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		t.server.Close()
	}()
	go func() {
		t.log.Info("pprof listening", "addr", t.server.Addr)
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("pprof listener failed", "error", err)
		}
	}()
	return nil
}
