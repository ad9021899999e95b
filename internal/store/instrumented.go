package store

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"

	"github.com/heysubinoy/safinadb/pkg/kv"
	"github.com/heysubinoy/safinadb/pkg/metrics"
)

const (
	opInsert = "insert"
	opGet    = "get"
	opUpdate = "update"
	opDelete = "delete"
)

// InstrumentedStore wraps any kv.Store implementation with Prometheus metrics
// and debug logging. This pattern works for both direct and Raft-backed stores.
type InstrumentedStore struct {
	store   kv.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Compile-time check to ensure InstrumentedStore implements kv.Store.
var _ kv.Store = (*InstrumentedStore)(nil)

// lener is implemented by stores that can report their live size.
type lener interface {
	Len() int
}

// NewInstrumentedStore wraps a store with instrumentation.
// The key gauge starts at the wrapped store's current size when it reports one.
func NewInstrumentedStore(store kv.Store, m *metrics.Metrics, logger *zap.Logger) *InstrumentedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &InstrumentedStore{
		store:   store,
		metrics: m,
		logger:  logger,
	}
	if l, ok := store.(lener); ok {
		m.Keys.Set(float64(l.Len()))
	}
	return s
}

// Insert delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Insert(key, value string) error {
	start := time.Now()
	err := s.store.Insert(key, value)
	s.observe(opInsert, key, start, err)

	if err == nil {
		s.metrics.Keys.Inc()
	}
	return err
}

// Get delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Get(key string) (kv.KV, error) {
	start := time.Now()
	pair, err := s.store.Get(key)
	s.observe(opGet, key, start, err)

	return pair, err
}

// Update delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Update(key, value string) error {
	start := time.Now()
	err := s.store.Update(key, value)
	s.observe(opUpdate, key, start, err)

	return err
}

// Delete delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Delete(key string) (bool, error) {
	start := time.Now()
	existed, err := s.store.Delete(key)
	s.observe(opDelete, key, start, err)

	if existed {
		s.metrics.Keys.Dec()
	}
	return existed, err
}

func (s *InstrumentedStore) observe(op, key string, start time.Time, err error) {
	elapsed := time.Since(start)
	result := resultOf(err)

	s.metrics.OperationTotal.WithLabelValues(op, result).Inc()
	s.metrics.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())

	s.logger.Debug("store operation",
		zap.String("op", op),
		zap.String("key", key),
		zap.String("result", result),
		zap.Duration("elapsed", elapsed),
	)
	if result == metrics.ResultError {
		s.logger.Error("store operation failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, kv.ErrKeyNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, kv.ErrKeyAlreadyExists):
		return metrics.ResultExists
	default:
		return metrics.ResultError
	}
}

// OpStats is the point-in-time view of one operation kind.
type OpStats struct {
	Count      uint64
	Failures   uint64
	AvgLatency time.Duration
}

// MetricsSnapshot is a point-in-time view of metrics.
type MetricsSnapshot struct {
	Insert OpStats
	Get    OpStats
	Update OpStats
	Delete OpStats
	Keys   int
}

// GetMetrics returns a snapshot of current metrics.
// Keys comes from the wrapped store when it can report its size, which also
// resyncs the gauge after changes made around this decorator.
func (s *InstrumentedStore) GetMetrics() MetricsSnapshot {
	keys := int(gaugeValue(s.metrics.Keys))
	if l, ok := s.store.(lener); ok {
		keys = l.Len()
		s.metrics.Keys.Set(float64(keys))
	}

	return MetricsSnapshot{
		Insert: s.opStats(opInsert),
		Get:    s.opStats(opGet),
		Update: s.opStats(opUpdate),
		Delete: s.opStats(opDelete),
		Keys:   keys,
	}
}

// ResetMetrics clears all operation counters. The key gauge is left alone
// because it mirrors the store contents.
func (s *InstrumentedStore) ResetMetrics() {
	s.metrics.OperationTotal.Reset()
	s.metrics.OperationDuration.Reset()
}

func (s *InstrumentedStore) opStats(op string) OpStats {
	var stats OpStats

	var m dto.Metric
	if h, ok := s.metrics.OperationDuration.WithLabelValues(op).(prometheus.Histogram); ok && h.Write(&m) == nil {
		stats.Count = m.GetHistogram().GetSampleCount()
		if stats.Count > 0 {
			avg := m.GetHistogram().GetSampleSum() / float64(stats.Count)
			stats.AvgLatency = time.Duration(avg * float64(time.Second))
		}
	}

	for _, result := range []string{metrics.ResultNotFound, metrics.ResultExists, metrics.ResultError} {
		stats.Failures += uint64(counterValue(s.metrics.OperationTotal.WithLabelValues(op, result)))
	}
	return stats
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
