package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/weftlabs/weft/common/logger"
)

// Telemetry exposes the profiling endpoints. The listener binds to
// localhost only; operators reach it through port-forwarding, never
// the service port.
type Telemetry struct {
	log  *logger.Logger
	addr string
}

// New creates the telemetry component for the given pprof port.
func New(pprofPort int, log *logger.Logger) *Telemetry {
	return &Telemetry{
		log:  log,
		addr: fmt.Sprintf("localhost:%d", pprofPort),
	}
}

// Start serves pprof in the background. The handlers go on their own
// mux rather than http.DefaultServeMux, so nothing else in the process
// can accidentally expose them.
func (t *Telemetry) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	go func() {
		t.log.Info("pprof listener starting", "addr", t.addr)
		if err := http.ListenAndServe(t.addr, mux); err != nil {
			t.log.Error("pprof listener stopped", "error", err)
		}
	}()

	return nil
}
