package engine

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jack2012aa/farm-iot/errors"
	"github.com/jack2012aa/farm-iot/health"
)

const opsShutdownTimeout = 5 * time.Second

// opsServer exposes the gateway's health registry and metrics over HTTP.
// It runs as a supervised worker so a failed listen is retried with the
// same backoff as any other transient failure.
type opsServer struct {
	addr     string
	site     string
	monitor  *health.Monitor
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

func newOpsServer(addr, site string, monitor *health.Monitor, gatherer prometheus.Gatherer, logger *slog.Logger) *opsServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &opsServer{
		addr:     addr,
		site:     site,
		monitor:  monitor,
		gatherer: gatherer,
		logger:   logger.With("component", "ops"),
	}
}

// ID identifies the server to the supervisor.
func (o *opsServer) ID() string { return "ops.http" }

func (o *opsServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", o.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// handleHealth writes the aggregated component health as JSON. Unhealthy
// aggregates answer 503 so probes fail without parsing the body.
func (o *opsServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	overall := o.monitor.AggregateHealth(o.site)

	w.Header().Set("Content-Type", "application/json")
	if overall.IsUnhealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(overall); err != nil {
		o.logger.Error("health response encoding failed", "error", err)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (o *opsServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", o.addr)
	if err != nil {
		return errors.WrapTransient(err, "opsServer", "Run", "listen on "+o.addr)
	}

	server := &http.Server{
		Handler:      o.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		o.logger.Info("ops server listening", "address", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), opsShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("ops server shutdown forced", "error", err)
			_ = server.Close()
		}
		return ctx.Err()
	case err := <-errCh:
		return errors.WrapTransient(err, "opsServer", "Run", "serve")
	}
}
