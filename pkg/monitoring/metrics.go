package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	purchaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_requests_total",
			Help: "Total purchase requests by outcome",
		},
		[]string{"outcome"},
	)

	scanTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_validations_total",
			Help: "Total scan validations by result",
		},
		[]string{"result"},
	)

	activeHolds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_holds_total",
			Help: "Currently outstanding holds per ledger",
		},
		[]string{"ledger"},
	)

	holdDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hold_duration_seconds",
			Help:    "Time between hold acquisition and commit/release",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"ledger", "outcome"},
	)

	reapedHolds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaped_holds_total",
			Help: "Holds auto-released after expiry",
		},
		[]string{"ledger"},
	)
)

func RecordPurchase(outcome string) {
	purchaseTotal.WithLabelValues(outcome).Inc()
}

func RecordScan(result string) {
	scanTotal.WithLabelValues(result).Inc()
}

func HoldAcquired(ledger string) {
	activeHolds.WithLabelValues(ledger).Inc()
}

func HoldSettled(ledger, outcome string, heldFor time.Duration) {
	activeHolds.WithLabelValues(ledger).Dec()
	holdDuration.WithLabelValues(ledger, outcome).Observe(heldFor.Seconds())
}

func HoldsReaped(ledger string, n int) {
	if n <= 0 {
		return
	}
	activeHolds.WithLabelValues(ledger).Sub(float64(n))
	reapedHolds.WithLabelValues(ledger).Add(float64(n))
}
