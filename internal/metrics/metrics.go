// Package metrics exposes Prometheus counters and gauges for the dowownet
// Connection/Server/Connector lifecycle.
package metrics

import (
	"net/http"

	"github.com/dowownet/go-dowownet/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus series. All are safe for concurrent use (promauto registers
// them once at package init).
var (
	ConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dowownet_connections_open",
		Help: "Current number of open Connections.",
	})
	RequestsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dowownet_requests_sent_total",
		Help: "Total Requests successfully written to a transport.",
	})
	RequestsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dowownet_requests_received_total",
		Help: "Total Requests successfully decoded from a transport (excludes liveness fillers).",
	})
	LivenessFillersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dowownet_liveness_fillers_sent_total",
		Help: "Total liveness filler Requests emitted by the local liveness timer.",
	})
	LivenessFillersReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dowownet_liveness_fillers_received_total",
		Help: "Total liveness filler Requests consumed from the peer.",
	})
	ProtocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dowownet_protocol_errors_total",
		Help: "Protocol-level failures that close a Connection, by kind.",
	}, []string{"kind"})
	SendQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dowownet_send_queue_depth",
		Help: "Approximate depth of the most recently sampled Connection send queue.",
	})
	DialAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dowownet_dial_attempts_total",
		Help: "Total Connector dial attempts.",
	})
	DialFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dowownet_dial_failures_total",
		Help: "Total Connector dial attempts that did not produce a Connection.",
	})
	AcceptedConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dowownet_accepted_connections_total",
		Help: "Total connections accepted by a Server.",
	})
)

// Error kind label values. Kept as a closed set to bound cardinality.
const (
	ErrKindTransport    = "transport"
	ErrKindFrameTooLarge = "frame_too_large"
	ErrKindFrameTooSmall = "frame_too_small"
	ErrKindMalformed     = "malformed"
	ErrKindTimeout       = "timeout"
)

// IncProtocolError increments the protocol-error counter for kind.
func IncProtocolError(kind string) { ProtocolErrors.WithLabelValues(kind).Inc() }

// StartHTTP serves Prometheus metrics at /metrics and returns the *http.Server
// so callers can Shutdown it. Grounded on go-ampio-server/internal/metrics.StartHTTP.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}
