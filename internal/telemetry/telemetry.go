// Package telemetry provides opt-in operational metrics for a running
// benchmark: in-flight request counts, gate sizing, and per-phase
// throughput, exposed on a /metrics endpoint. This is observability for the
// operator's own dashboards, not the `visualize` CLI subcommand (out of
// core scope per spec.md §6).
//
// Grounded on etalazz-vsa's opt-in churn telemetry package
// (internal/ratelimiter/telemetry/churn/prom_counters.go): package-level
// globally-registered prometheus.Collectors and a small dedicated HTTP
// server for /metrics. There is no Enable switch: the collectors always
// update, and only the /metrics endpoint is opt-in.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "r2cap_requests_total",
		Help: "Total range-GET requests issued, partitioned by outcome",
	}, []string{"outcome"})

	inFlightGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "r2cap_in_flight_requests",
		Help: "Current in-flight range-GET requests per shard",
	}, []string{"shard"})

	gateMaxGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "r2cap_gate_max",
		Help: "Current admission ceiling per shard",
	}, []string{"shard"})

	phaseThroughputGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "r2cap_phase_throughput_gbps",
		Help: "Most recently computed throughput for a phase, in gigabits per second",
	}, []string{"phase_id"})

	latencyHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "r2cap_request_latency_ms",
		Help:    "Distribution of successful range-GET latencies, in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, inFlightGauge, gateMaxGauge, phaseThroughputGauge, latencyHistogram)
}

// ObserveRequest records one completed request's outcome and latency.
func ObserveRequest(outcome string, latencyMs float64) {
	requestsTotal.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		latencyHistogram.Observe(latencyMs)
	}
}

// ObserveGate records a shard's current gate occupancy.
func ObserveGate(shardID string, inFlight, max int) {
	inFlightGauge.WithLabelValues(shardID).Set(float64(inFlight))
	gateMaxGauge.WithLabelValues(shardID).Set(float64(max))
}

// ObservePhaseThroughput records the latest throughput computed for a phase.
func ObservePhaseThroughput(phaseID string, throughputGbps float64) {
	phaseThroughputGauge.WithLabelValues(phaseID).Set(throughputGbps)
}

// Serve starts a dedicated /metrics HTTP server on addr in the background.
// An empty addr starts nothing, so callers that don't want a metrics
// endpoint pass "".
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warnf("telemetry server stopped: %v", err)
		}
	}()
}
