package obs

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every Prometheus collector registered by the
// concurrency, cron, and httpd packages, mounted under a single
// registry so /weblet/metrics reports the whole system.
type Metrics struct {
	registry *prometheus.Registry

	poolQueueLen prometheus.Gauge
	poolActive   prometheus.Gauge
	poolSubmit   prometheus.Counter
	poolComplete prometheus.Counter
	poolPanic    prometheus.Counter

	cronDispatched prometheus.Counter
	cronFailed     prometheus.Counter

	httpRequests prometheus.CounterVec
	httpDuration prometheus.Histogram
}

// NewMetrics registers every collector against a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		poolQueueLen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "weblet_taskpool_queue_length", Help: "Pending tasks in the TaskPool queue.",
		}),
		poolActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "weblet_taskpool_active", Help: "Queued plus running TaskPool tasks.",
		}),
		poolSubmit: factory.NewCounter(prometheus.CounterOpts{
			Name: "weblet_taskpool_submitted_total", Help: "Tasks submitted to the TaskPool.",
		}),
		poolComplete: factory.NewCounter(prometheus.CounterOpts{
			Name: "weblet_taskpool_completed_total", Help: "Tasks that finished running (success or contained failure).",
		}),
		poolPanic: factory.NewCounter(prometheus.CounterOpts{
			Name: "weblet_taskpool_panics_total", Help: "Tasks that panicked and were contained.",
		}),
		cronDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "weblet_cron_dispatched_total", Help: "Cron jobs submitted to the pool.",
		}),
		cronFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "weblet_cron_failed_total", Help: "Cron dispatches that returned an error.",
		}),
		httpDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "weblet_http_request_duration_seconds", Help: "Request handling duration.",
		}),
	}
	m.httpRequests = *factory.NewCounterVec(prometheus.CounterOpts{
		Name: "weblet_http_requests_total", Help: "HTTP responses served, by status code.",
	}, []string{"status"})
	return m
}

// Handler returns the promhttp handler serving this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PoolMetrics adapts Metrics to concurrency.PoolMetrics.
func (m *Metrics) PoolMetrics() *poolMetricsAdapter { return &poolMetricsAdapter{m} }

type poolMetricsAdapter struct{ m *Metrics }

func (a *poolMetricsAdapter) SetQueueLen(n int) { a.m.poolQueueLen.Set(float64(n)) }
func (a *poolMetricsAdapter) SetActive(n int)   { a.m.poolActive.Set(float64(n)) }
func (a *poolMetricsAdapter) IncSubmitted()     { a.m.poolSubmit.Inc() }
func (a *poolMetricsAdapter) IncCompleted()     { a.m.poolComplete.Inc() }
func (a *poolMetricsAdapter) IncPanicked()      { a.m.poolPanic.Inc() }

// CronMetrics adapts Metrics to cron.Metrics.
func (m *Metrics) CronMetrics() *cronMetricsAdapter { return &cronMetricsAdapter{m} }

type cronMetricsAdapter struct{ m *Metrics }

func (a *cronMetricsAdapter) IncDispatched() { a.m.cronDispatched.Inc() }
func (a *cronMetricsAdapter) IncFailed()     { a.m.cronFailed.Inc() }

// ServerMetrics adapts Metrics to httpd.ServerMetrics.
func (m *Metrics) ServerMetrics() *serverMetricsAdapter { return &serverMetricsAdapter{m} }

type serverMetricsAdapter struct{ m *Metrics }

func (a *serverMetricsAdapter) IncRequest(status int) {
	a.m.httpRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}
func (a *serverMetricsAdapter) ObserveDuration(seconds float64) {
	a.m.httpDuration.Observe(seconds)
}
