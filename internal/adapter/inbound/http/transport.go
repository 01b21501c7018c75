package http

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinel-project/sentinel/internal/domain/approval"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// Transport is the inbound adapter that serves the gateway API over HTTP.
type Transport struct {
	apiHandler    *APIHandler
	server        *http.Server
	addr          string
	certFile      string
	keyFile       string
	logger        *slog.Logger
	metrics       *Metrics
	healthChecker *HealthChecker
}

// TransportOption is a functional option for configuring Transport.
type TransportOption func(*Transport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) TransportOption {
	return func(t *Transport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) TransportOption {
	return func(t *Transport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) TransportOption {
	return func(t *Transport) {
		t.healthChecker = hc
	}
}

// NewTransport creates an HTTP transport serving the given API handler.
func NewTransport(apiHandler *APIHandler, opts ...TransportOption) *Transport {
	t := &Transport{
		apiHandler: apiHandler,
		addr:       "127.0.0.1:8080",
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Metrics returns the Prometheus metrics, available after Start.
func (t *Transport) Metrics() *Metrics {
	return t.metrics
}

// Start begins accepting HTTP connections.
// It blocks until the context is cancelled or an error occurs.
func (t *Transport) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t.metrics = NewMetrics(reg)
	t.apiHandler.metrics = t.metrics
	t.registerGauges(reg)

	// Middleware order (outermost first):
	// 1. MetricsMiddleware - record duration and status for every request
	// 2. API routes - request ID, auth, rate limiting applied inside Routes()
	apiRoutes := t.apiHandler.Routes()
	apiRoutes = MetricsMiddleware(t.metrics)(apiRoutes)

	mux := http.NewServeMux()
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	} else {
		mux.Handle("/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"healthy"}`))
		}))
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry: reg,
	}))
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.Handle("/api/", apiRoutes)

	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)

	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// registerGauges exposes point-in-time gauges sampled at scrape time.
func (t *Transport) registerGauges(reg prometheus.Registerer) {
	if t.apiHandler.policies != nil {
		promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "sentinel",
				Name:      "active_policies",
				Help:      "Enabled rules in the active policy snapshot",
			},
			func() float64 {
				return float64(len(t.apiHandler.policies.Snapshot().Rules))
			},
		)
	}
	if t.apiHandler.approvals != nil {
		promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "sentinel",
				Name:      "pending_approvals",
				Help:      "Approvals awaiting a reviewer decision",
			},
			func() float64 {
				pending, err := t.apiHandler.approvals.List(context.Background(),
					approval.Filter{Status: approval.StatusPending})
				if err != nil {
					return 0
				}
				return float64(len(pending))
			},
		)
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *Transport) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := t.server.Shutdown(shutdownCtx); err != nil {
		t.logger.Error("graceful shutdown failed, forcing close", "error", err)
		return t.server.Close()
	}

	t.logger.Info("HTTP server stopped")
	return nil
}
