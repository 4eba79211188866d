package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config configures metric registration labels.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics exposes the settlement engine's domain instruments.
type Metrics struct {
	settlementCalculated  prometheus.Counter
	conservationViolation prometheus.Counter
	escrowTransitions     *prometheus.CounterVec
	overlapRejected       *prometheus.CounterVec
	sweepRuns             *prometheus.CounterVec
	sweepDuration         prometheus.Observer
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// New returns the singleton domain metrics registry.
func New(cfg Config) *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return metrics
}

// ResetForTest resets the metrics singleton for tests.
func ResetForTest() {
	metricsOnce = sync.Once{}
	metrics = nil
}

func newMetrics(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "settleway"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	settlementCalculated := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "settleway_settlements_calculated_total",
		Help:        "Settlement breakdowns computed, including recalculations.",
		ConstLabels: constLabels,
	})
	conservationViolation := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "settleway_conservation_violations_total",
		Help:        "Breakdowns rejected because the parties' shares did not sum to the customer payment.",
		ConstLabels: constLabels,
	})
	escrowTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "settleway_escrow_transitions_total",
		Help:        "Escrow state transitions by target state.",
		ConstLabels: constLabels,
	}, []string{"to"})
	overlapRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "settleway_commission_rule_overlaps_total",
		Help:        "Commission rule writes rejected for range overlap, by category.",
		ConstLabels: constLabels,
	}, []string{"category"})
	sweepRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "settleway_sweep_runs_total",
		Help:        "Settlement sweep runs by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "settleway_sweep_duration_seconds",
		Help:        "Settlement sweep latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		ConstLabels: constLabels,
	})

	for _, collector := range []prometheus.Collector{
		settlementCalculated,
		conservationViolation,
		escrowTransitions,
		overlapRejected,
		sweepRuns,
		sweepDuration,
	} {
		if err := registerer.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				// Registration failures other than double-registration are
				// programming errors; surface them loudly.
				panic(err)
			}
		}
	}

	return &Metrics{
		settlementCalculated:  settlementCalculated,
		conservationViolation: conservationViolation,
		escrowTransitions:     escrowTransitions,
		overlapRejected:       overlapRejected,
		sweepRuns:             sweepRuns,
		sweepDuration:         sweepDuration,
	}
}

// IncSettlementCalculated counts one computed breakdown.
func (m *Metrics) IncSettlementCalculated() {
	if m == nil {
		return
	}
	m.settlementCalculated.Inc()
}

// IncConservationViolation counts one rejected breakdown.
func (m *Metrics) IncConservationViolation() {
	if m == nil {
		return
	}
	m.conservationViolation.Inc()
}

// IncEscrowTransition counts an escrow state change.
func (m *Metrics) IncEscrowTransition(to string) {
	if m == nil {
		return
	}
	m.escrowTransitions.WithLabelValues(strings.TrimSpace(to)).Inc()
}

// IncOverlapRejected counts a commission rule write rejected for range
// overlap.
func (m *Metrics) IncOverlapRejected(category string) {
	if m == nil {
		return
	}
	m.overlapRejected.WithLabelValues(strings.TrimSpace(category)).Inc()
}

// ObserveSweepRun records one background sweep run.
func (m *Metrics) ObserveSweepRun(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(strings.TrimSpace(result)).Inc()
	m.sweepDuration.Observe(elapsed.Seconds())
}
