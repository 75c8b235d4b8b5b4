// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus business and gateway metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Movement metrics
	movementTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gestprep_movement_transitions_total",
		Help: "BMM status transitions by movement type and target status",
	}, []string{"type", "status"}) // status=VALIDE|ANNULE

	movementsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gestprep_movements_created_total",
		Help: "BMM created by movement type",
	}, []string{"type"})

	bulkActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gestprep_movement_bulk_items_total",
		Help: "Items processed by bulk validate/cancel by outcome",
	}, []string{"action", "outcome"}) // outcome=success|error

	stockAlerts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gestprep_articles_in_alert",
		Help: "Articles at or below their alert threshold (last alert listing)",
	})

	// Account metrics
	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gestprep_login_attempts_total",
		Help: "Login attempts by outcome",
	}, []string{"outcome"}) // outcome=success|invalid|throttled

	documentsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gestprep_documents_stored_total",
		Help: "Uploaded document files written to the media root",
	})

	// Operational metrics
	configReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gestprep_config_reloads_total",
		Help: "Configuration reloads by outcome",
	}, []string{"outcome"})
)

func IncMovementCreated(kind string) { movementsCreated.WithLabelValues(kind).Inc() }

// IncMovementTransition counts a movement reaching status.
func IncMovementTransition(kind, status string) {
	movementTransitions.WithLabelValues(kind, status).Inc()
}

// RecordBulk counts the outcome of one bulk run.
func RecordBulk(action string, success, failed int) {
	bulkActions.WithLabelValues(action, "success").Add(float64(success))
	bulkActions.WithLabelValues(action, "error").Add(float64(failed))
}

func RecordStockAlerts(n int) { stockAlerts.Set(float64(n)) }

func IncLogin(outcome string) { loginAttempts.WithLabelValues(outcome).Inc() }

func IncDocumentStored() { documentsStored.Inc() }

// IncConfigReload counts a reload; err decides the outcome label.
func IncConfigReload(err error) {
	if err != nil {
		configReloads.WithLabelValues("failure").Inc()
		return
	}
	configReloads.WithLabelValues("success").Inc()
}
