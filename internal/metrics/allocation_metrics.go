package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Виды аллокации, используемые как значение label "kind".
const (
	KindOrderSequence = "order_sequence"
	KindCustomerCode  = "customer_code"
)

// Результаты одной попытки аллокации.
const (
	ResultSuccess  = "success"
	ResultConflict = "conflict"
	ResultError    = "error"
)

// AllocationMetrics содержит метрики выдачи номеров заказов и кодов клиентов.
type AllocationMetrics struct {
	attempts  *prometheus.CounterVec
	exhausted *prometheus.CounterVec
	duration  *prometheus.HistogramVec

	codesAssigned prometheus.Counter
	batchRuns     *prometheus.CounterVec
	batchSkipped  prometheus.Counter
}

// NewAllocationMetrics регистрирует метрики в глобальном реестре.
func NewAllocationMetrics() *AllocationMetrics {
	return NewAllocationMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewAllocationMetricsWithRegisterer регистрирует метрики в указанном реестре.
func NewAllocationMetricsWithRegisterer(registerer prometheus.Registerer) *AllocationMetrics {
	registerer = registererOrDefault(registerer)

	return &AllocationMetrics{
		attempts: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_allocation_attempts_total",
			Help: "Atomic allocation attempts grouped by kind and result.",
		}, []string{"kind", "result"})),
		exhausted: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_allocation_exhausted_total",
			Help: "Allocations that gave up after the retry budget was spent.",
		}, []string{"kind"})),
		duration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storefront_allocation_duration_seconds",
			Help:    "End-to-end allocation latency including retries.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		}, []string{"kind"})),
		codesAssigned: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_customer_codes_assigned_total",
			Help: "Customer codes newly written to accounts.",
		})),
		batchRuns: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_customer_code_batch_runs_total",
			Help: "Customer code backfill runs grouped by result.",
		}, []string{"result"})),
		batchSkipped: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_customer_code_batch_skipped_total",
			Help: "Accounts left without a code after a backfill run.",
		})),
	}
}

// RecordAttempt учитывает одну атомарную попытку.
func (m *AllocationMetrics) RecordAttempt(kind, result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(kind, result).Inc()
}

// RecordExhausted учитывает аллокацию, исчерпавшую повторы.
func (m *AllocationMetrics) RecordExhausted(kind string) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(kind).Inc()
}

// ObserveDuration записывает полное время аллокации.
func (m *AllocationMetrics) ObserveDuration(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordCodeAssigned учитывает новый код клиента.
func (m *AllocationMetrics) RecordCodeAssigned() {
	if m == nil {
		return
	}
	m.codesAssigned.Inc()
}

// RecordBatchRun учитывает прогон пакетного назначения кодов.
func (m *AllocationMetrics) RecordBatchRun(result string, skipped int) {
	if m == nil {
		return
	}
	m.batchRuns.WithLabelValues(result).Inc()
	if skipped > 0 {
		m.batchSkipped.Add(float64(skipped))
	}
}
