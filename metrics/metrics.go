// Package metrics exposes Prometheus counters for the custody service and
// the HTTP server that serves them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "custody"

var (
	ChallengesIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "challenges_issued_total",
		Help:      "Challenges issued, by purpose.",
	}, []string{"purpose"})

	ChallengeVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "challenge_verifications_total",
		Help:      "Challenge verification attempts, by purpose and result kind.",
	}, []string{"purpose", "result"})

	WalletActivations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wallet_activations_total",
		Help:      "Wallet activation audit rows, by status.",
	}, []string{"status"})

	WalletRecoveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "wallet_recoveries_total",
		Help:      "Wallet recovery audit rows, by status.",
	}, []string{"status"})

	ShareInvalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "share_invalidations_total",
		Help:      "Work shares deleted for ignoring rotation or inactivity.",
	})

	ShareRotations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "share_rotations_total",
		Help:      "Successful auth share rotations.",
	})

	ReapedRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reaped_rows_total",
		Help:      "Rows removed by the background reaper, by kind.",
	}, []string{"kind"})
)

func collectorsToRegister() []prometheus.Collector {
	return []prometheus.Collector{
		ChallengesIssued,
		ChallengeVerifications,
		WalletActivations,
		WalletRecoveries,
		ShareInvalidations,
		ShareRotations,
		ReapedRows,
	}
}

type MetricsServer struct {
	registry *prometheus.Registry
	srv      *http.Server
}

// New creates a metrics server with its own registry. The service name is
// attached to every series as a constant label.
func New(service, listenAddr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	wrapped := prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, registry)

	for _, c := range collectorsToRegister() {
		if err := wrapped.Register(c); err != nil {
			return nil, err
		}
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &MetricsServer{
		registry: registry,
		srv: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (m *MetricsServer) Handler() http.Handler {
	return m.srv.Handler
}

func (m *MetricsServer) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
