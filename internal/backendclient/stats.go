package backendclient

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// opDurations and opOutcomes are process-wide Prometheus collectors for
// every Client instance's per-operation counts and latencies.
var (
	opOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walcas_backendclient_operations_total",
			Help: "Total backend client operations by name and outcome",
		},
		[]string{"operation", "outcome"},
	)

	opDurations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walcas_backendclient_operation_duration_seconds",
			Help:    "Backend client operation latency by name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// MustRegister registers the package's collectors with reg. Call once at
// process startup; safe to skip in tests that don't need a live registry.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(opOutcomes, opDurations)
}

// OpStats is the get_stats() summary for one operation name.
type OpStats struct {
	Count          int64
	Successes      int64
	Failures       int64
	AvgLatencyMs   float64
	TotalLatencyMs float64
}

type opAccumulator struct {
	count      int64
	successes  int64
	failures   int64
	totalNanos int64
}

// statsTracker accumulates per-operation counters in-memory (for a cheap
// synchronous get_stats() read) while also feeding the Prometheus
// collectors above for scrape-based observability.
type statsTracker struct {
	mu   sync.Mutex
	byOp map[string]*opAccumulator
}

func newStatsTracker() *statsTracker {
	return &statsTracker{byOp: make(map[string]*opAccumulator)}
}

func (s *statsTracker) record(operation string, start time.Time, err error) {
	dur := time.Since(start)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	opOutcomes.WithLabelValues(operation, outcome).Inc()
	opDurations.WithLabelValues(operation).Observe(dur.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.byOp[operation]
	if !ok {
		acc = &opAccumulator{}
		s.byOp[operation] = acc
	}
	acc.count++
	if err != nil {
		acc.failures++
	} else {
		acc.successes++
	}
	acc.totalNanos += dur.Nanoseconds()
}

// Snapshot returns the current get_stats() view, keyed by operation name.
func (s *statsTracker) Snapshot() map[string]OpStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]OpStats, len(s.byOp))
	for op, acc := range s.byOp {
		totalMs := float64(acc.totalNanos) / float64(time.Millisecond)
		avg := 0.0
		if acc.count > 0 {
			avg = totalMs / float64(acc.count)
		}
		out[op] = OpStats{
			Count:          acc.count,
			Successes:      acc.successes,
			Failures:       acc.failures,
			AvgLatencyMs:   avg,
			TotalLatencyMs: totalMs,
		}
	}
	return out
}
