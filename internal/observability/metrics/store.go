package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	LockResourceStudent  = "student"
	LockResourceSequence = "receipt_sequence"
)

const (
	StoreReasonDeadlineExceeded     = "deadline_exceeded"
	StoreReasonLockTimeout          = "lock_timeout"
	StoreReasonSerializationFailure = "serialization_failure"
	StoreReasonUniqueViolation      = "unique_violation"
	StoreReasonUnknown              = "unknown"
)

// StoreMetrics captures contention on the student and sequence locks.
type StoreMetrics struct {
	lockWait    *prometheus.HistogramVec
	storeErrors *prometheus.CounterVec
}

var (
	storeMetricsOnce sync.Once
	storeMetrics     *StoreMetrics
)

// Store returns the process-wide store metrics registry.
func Store() *StoreMetrics {
	return StoreWithConfig(Config{})
}

// StoreWithConfig returns the process-wide store metrics using config labels.
func StoreWithConfig(cfg Config) *StoreMetrics {
	storeMetricsOnce.Do(func() {
		storeMetrics = newStoreMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return storeMetrics
}

func newStoreMetrics(registerer prometheus.Registerer, cfg Config) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "feeledger_lock_wait_seconds",
		Help:        "Time spent waiting for student and sequence locks.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"resource"})
	storeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "feeledger_store_errors_total",
		Help:        "Ledger store failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"operation", "reason"})

	registerer.MustRegister(lockWait, storeErrors)

	return &StoreMetrics{lockWait: lockWait, storeErrors: storeErrors}
}

// ObserveLockWait records how long a caller waited for resource.
func (m *StoreMetrics) ObserveLockWait(resource string, waited time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(strings.TrimSpace(resource)).Observe(waited.Seconds())
}

// RecordStoreError counts a failed store operation.
func (m *StoreMetrics) RecordStoreError(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.storeErrors.WithLabelValues(strings.TrimSpace(operation), ClassifyStoreReason(err)).Inc()
}

// ClassifyStoreReason maps a store error onto a metric reason.
func ClassifyStoreReason(err error) string {
	if err == nil {
		return StoreReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StoreReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return StoreReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return StoreReasonLockTimeout
		case "40001", "40P01":
			return StoreReasonSerializationFailure
		case "23505":
			return StoreReasonUniqueViolation
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "database is locked") {
		return StoreReasonLockTimeout
	}
	return StoreReasonUnknown
}
