package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status labels
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Archive directions
const (
	DirectionCompress = "compress"
	DirectionExtract  = "extract"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Lock metrics
	LocksActive   prometheus.Gauge
	LockConflicts prometheus.Counter

	// Archive metrics
	ArchiveOperations *prometheus.CounterVec

	// Snapshot for the CLI summary
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values in plain form
type MetricsSnapshot struct {
	TotalOperations  int64
	FailedOperations int64
	ActiveLocks      int64
	LockConflicts    int64
	TotalDuration    float64
}

// NewMetrics creates a new metrics collector on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfs_operations_total",
				Help: "Total number of file system operations",
			},
			[]string{"op", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vfs_operation_duration_seconds",
				Help:    "File system operation duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"op"},
		),

		LocksActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "vfs_locks_active",
				Help: "Number of locks currently held",
			},
		),
		LockConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "vfs_lock_conflicts_total",
				Help: "Total number of rejected lock attempts",
			},
		),

		ArchiveOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vfs_archive_operations_total",
				Help: "Total number of archive operations",
			},
			[]string{"format", "direction"},
		),
	}
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordOperation records one file system operation
func (m *Metrics) RecordOperation(op, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, status).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalOperations++
	m.snapshot.TotalDuration += duration.Seconds()
	if status != StatusOK {
		m.snapshot.FailedOperations++
	}
	m.mu.Unlock()
}

// RecordArchive records a compress or extract call
func (m *Metrics) RecordArchive(format, direction string) {
	if m == nil {
		return
	}
	m.ArchiveOperations.WithLabelValues(format, direction).Inc()
}

// SetLocksActive sets the number of held locks
func (m *Metrics) SetLocksActive(count int) {
	if m == nil {
		return
	}
	m.LocksActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveLocks = int64(count)
	m.mu.Unlock()
}

// IncLocksActive increments the held locks gauge
func (m *Metrics) IncLocksActive() {
	m.addLocksActive(1)
}

// DecLocksActive decrements the held locks gauge
func (m *Metrics) DecLocksActive() {
	m.addLocksActive(-1)
}

func (m *Metrics) addLocksActive(delta int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.snapshot.ActiveLocks += delta
	if m.snapshot.ActiveLocks < 0 {
		m.snapshot.ActiveLocks = 0
	}
	m.LocksActive.Set(float64(m.snapshot.ActiveLocks))
	m.mu.Unlock()
}

// IncLockConflicts increments the lock conflict counter
func (m *Metrics) IncLockConflicts() {
	if m == nil {
		return
	}
	m.LockConflicts.Inc()
	m.mu.Lock()
	m.snapshot.LockConflicts++
	m.mu.Unlock()
}

// Snapshot returns the current plain values
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
