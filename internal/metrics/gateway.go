// SPDX-License-Identifier: MIT

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gestprep_gateway_requests_total",
		Help: "Gateway requests by matched rule index (-1 = none) and outcome",
	}, []string{"rule", "outcome"}) // outcome=proxied|upstream_error|static|not_found

	gatewayUpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gestprep_gateway_upstream_duration_seconds",
		Help:    "Latency of proxied requests by rule index",
		Buckets: prometheus.DefBuckets,
	}, []string{"rule"})

	gatewayRules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gestprep_gateway_rules",
		Help: "Number of compiled rewrite rules in the active table",
	})
)

// IncGatewayRequest counts one gateway request.
func IncGatewayRequest(rule int, outcome string) {
	gatewayRequests.WithLabelValues(strconv.Itoa(rule), outcome).Inc()
}

// ObserveUpstream records a proxied request latency.
func ObserveUpstream(rule int, seconds float64) {
	gatewayUpstreamDuration.WithLabelValues(strconv.Itoa(rule)).Observe(seconds)
}

func RecordGatewayRules(n int) { gatewayRules.Set(float64(n)) }

var (
	upstreamBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gestprep_gateway_upstream_breaker_state",
		Help: "Upstream circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"upstream"})

	upstreamBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gestprep_gateway_upstream_breaker_trips_total",
		Help: "Upstream circuit breaker trips by reason",
	}, []string{"upstream", "reason"})
)

// SetCircuitBreakerState publishes the breaker state of upstream.
func SetCircuitBreakerState(upstream, state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	upstreamBreakerState.WithLabelValues(upstream).Set(v)
}

// RecordCircuitBreakerTrip counts a breaker opening.
func RecordCircuitBreakerTrip(upstream, reason string) {
	upstreamBreakerTrips.WithLabelValues(upstream, reason).Inc()
}
