// Package metrics records engine job and restart counters for Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mml2svg"

// Collector groups the engine metrics. A nil *Collector records nothing.
type Collector struct {
	jobs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	restarts *prometheus.CounterVec
	busy     prometheus.Gauge
}

// New creates the collectors and registers them on reg. Collectors that are
// already registered (e.g. by another pool in the same process) are reused.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Conversion jobs by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time spent by the engine on one job.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"outcome"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_restarts_total",
			Help:      "Engine processes replaced, by reason.",
		}, []string{"reason"}),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_busy",
			Help:      "Engine processes with a job in flight.",
		}),
	}

	var err error
	if c.jobs, err = register(reg, c.jobs); err != nil {
		return nil, err
	}
	if c.duration, err = register(reg, c.duration); err != nil {
		return nil, err
	}
	if c.restarts, err = register(reg, c.restarts); err != nil {
		return nil, err
	}
	if c.busy, err = register(reg, c.busy); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return col, err
	}
	return col, nil
}

// ObserveJob records one finished job.
func (c *Collector) ObserveJob(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.jobs.WithLabelValues(outcome).Inc()
	c.duration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Restart records an engine replacement.
func (c *Collector) Restart(reason string) {
	if c == nil {
		return
	}
	c.restarts.WithLabelValues(reason).Inc()
}

// Busy adjusts the in-flight gauge by delta.
func (c *Collector) Busy(delta float64) {
	if c == nil {
		return
	}
	c.busy.Add(delta)
}
