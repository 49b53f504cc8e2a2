// Package promexport holds the Prometheus instruments for the engine's two
// hot paths: promo redemption and campaign dispatch.
package promexport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedeemDuration tracks the latency of promo redemption attempts,
	// labeled by outcome (success, rejected, contention, error).
	RedeemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promo_redeem_duration_seconds",
			Help:    "Duration of promo redemption attempts in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"outcome"},
	)

	// ValidationRejections counts business-rule rejections by reason.
	ValidationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_validation_rejections_total",
			Help: "Promo validations rejected, by reason",
		},
		[]string{"reason"},
	)

	// DispatchDuration tracks the latency of a full campaign dispatch
	// (audience resolution plus send-row fan-out).
	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campaign_dispatch_duration_seconds",
			Help:    "Duration of campaign dispatch in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 15.0, 60.0},
		},
	)

	// SendsEnqueued counts send-ledger rows created by dispatch.
	SendsEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "campaign_sends_enqueued_total",
			Help: "Send ledger rows created by campaign dispatch",
		},
	)
)

// ObserveRedeem records one redemption attempt.
func ObserveRedeem(outcome string, seconds float64) {
	RedeemDuration.WithLabelValues(outcome).Observe(seconds)
}
