package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig configures an api/server.Server.
type HTTPServerConfig struct {
	ListenAddr string

	// MetricsAddr is where Prometheus metrics are served. Empty disables
	// the metrics server.
	MetricsAddr string

	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is how long /drain keeps the server alive but not
	// ready, so load balancers stop routing to it.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds in-flight requests on shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}
