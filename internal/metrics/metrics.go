// Package metrics collects Prometheus metrics for a flyover run and writes them
// to a node-exporter textfile.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flyover"

// Collector bundles the metrics of a single pipeline invocation. It implements
// imagery.Observer.
type Collector struct {
	gatherer prometheus.Gatherer

	CacheRequests  *prometheus.CounterVec
	Fetches        *prometheus.CounterVec
	FetchDurations *prometheus.HistogramVec
	StageDurations *prometheus.GaugeVec
	Frames         *prometheus.GaugeVec
	LastSuccess    prometheus.Gauge
}

// NewCollector registers flyover metrics against reg. A nil reg gets a private
// registry, which keeps runs in tests and tools independent of the global one.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cacheRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "imagery_cache_requests_total",
		Help:      "Imagery cache lookups, labeled by result (hit or miss).",
	}, []string{"result"}), "imagery_cache_requests_total")
	if err != nil {
		return nil, err
	}

	fetches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "imagery_fetches_total",
		Help:      "Upstream imagery fetches, labeled by provider and outcome.",
	}, []string{"provider", "outcome"}), "imagery_fetches_total")
	if err != nil {
		return nil, err
	}

	fetchDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "imagery_fetch_duration_seconds",
		Help:      "Upstream imagery fetch latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"provider"}), "imagery_fetch_duration_seconds")
	if err != nil {
		return nil, err
	}

	stages, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Wall time spent in each pipeline stage of the last run.",
	}, []string{"stage"}), "stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	frames, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "frames",
		Help:      "Frames produced by the last run, labeled by status.",
	}, []string{"status"}), "frames")
	if err != nil {
		return nil, err
	}

	lastSuccess, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last run that reached ASSEMBLED.",
	}), "last_success_timestamp_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		CacheRequests:  cacheRequests,
		Fetches:        fetches,
		FetchDurations: fetchDurations,
		StageDurations: stages,
		Frames:         frames,
		LastSuccess:    lastSuccess,
	}, nil
}

func (c *Collector) ObserveCache(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheRequests.WithLabelValues(result).Inc()
}

func (c *Collector) ObserveFetch(provider string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.Fetches.WithLabelValues(provider, outcome).Inc()
	c.FetchDurations.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveStage records how long a pipeline stage took.
func (c *Collector) ObserveStage(stage string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.StageDurations.WithLabelValues(stage).Set(elapsed.Seconds())
}

// SetFrames records the frame counts of a finished run.
func (c *Collector) SetFrames(ok, degraded, failed int) {
	if c == nil {
		return
	}
	c.Frames.WithLabelValues("ok").Set(float64(ok))
	c.Frames.WithLabelValues("degraded").Set(float64(degraded))
	c.Frames.WithLabelValues("failed").Set(float64(failed))
}

func (c *Collector) MarkSuccess(t time.Time) {
	if c == nil {
		return
	}
	c.LastSuccess.Set(float64(t.Unix()))
}

// WriteTextfile atomically writes all gathered metrics in the text exposition
// format, for the node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return errors.New("metrics collector is nil")
	}
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
