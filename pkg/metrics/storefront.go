package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorefrontMetrics records catalog sync and checkout activity.
type StorefrontMetrics struct {
	syncDuration *prometheus.HistogramVec
	syncSuccess  *prometheus.CounterVec
	syncFailure  *prometheus.CounterVec
	ordersPlaced *prometheus.CounterVec
	statusMoves  *prometheus.CounterVec
}

// NewStorefrontMetrics registers the storefront metrics on the provided registerer.
func NewStorefrontMetrics(reg prometheus.Registerer) *StorefrontMetrics {
	if reg == nil {
		return &StorefrontMetrics{}
	}
	syncDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_sync_duration_seconds",
		Help:    "Duration of catalog sync operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	syncSuccess := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_success",
		Help: "Successful catalog sync operations.",
	}, []string{"operation"})
	syncFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_failure",
		Help: "Failed catalog sync operations.",
	}, []string{"operation", "reason"})
	ordersPlaced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed",
		Help: "Orders accepted at checkout.",
	}, []string{"payment_method"})
	statusMoves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions",
		Help: "Order status transitions applied.",
	}, []string{"to_status"})
	reg.MustRegister(syncDuration, syncSuccess, syncFailure, ordersPlaced, statusMoves)
	return &StorefrontMetrics{
		syncDuration: syncDuration,
		syncSuccess:  syncSuccess,
		syncFailure:  syncFailure,
		ordersPlaced: ordersPlaced,
		statusMoves:  statusMoves,
	}
}

// ObserveSyncDuration records the duration of a catalog sync operation.
func (m *StorefrontMetrics) ObserveSyncDuration(operation string, duration time.Duration) {
	if m == nil || m.syncDuration == nil {
		return
	}
	m.syncDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncSyncSuccess increments the success counter for a catalog sync operation.
func (m *StorefrontMetrics) IncSyncSuccess(operation string) {
	if m == nil || m.syncSuccess == nil {
		return
	}
	m.syncSuccess.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncSyncFailure increments the failure counter for a catalog sync operation.
func (m *StorefrontMetrics) IncSyncFailure(operation, reason string) {
	if m == nil || m.syncFailure == nil {
		return
	}
	m.syncFailure.WithLabelValues(normalizeLabel(operation), normalizeLabel(reason)).Inc()
}

// IncOrderPlaced increments the accepted-order counter.
func (m *StorefrontMetrics) IncOrderPlaced(paymentMethod string) {
	if m == nil || m.ordersPlaced == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(normalizeLabel(paymentMethod)).Inc()
}

// IncStatusTransition increments the status transition counter.
func (m *StorefrontMetrics) IncStatusTransition(toStatus string) {
	if m == nil || m.statusMoves == nil {
		return
	}
	m.statusMoves.WithLabelValues(normalizeLabel(toStatus)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
