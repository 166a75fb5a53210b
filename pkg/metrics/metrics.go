// Package metrics provides Prometheus instrumentation for gridfeed.
//
// A gridfeed process is short-lived, so nothing is scraped. Metrics are
// collected in a private registry and, when a Pushgateway is configured,
// pushed once before the process exits.
//
// # Basic Usage
//
//	m := metrics.Default()
//	m.PageFetched("infoblox_gridmanager://corp")
//	m.RecordEmitted("infoblox_gridmanager://corp")
//	m.RunFinished("infoblox_gridmanager://corp", err)
//
//	if err := m.Push(ctx, "http://pushgateway:9091", "gridfeed"); err != nil {
//	    log.Warn("metrics push failed", zap.Error(err))
//	}
//
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "gridfeed"

// Request kinds used as the "request" label of the duration histogram
const (
	RequestProbe = "probe"
	RequestPage  = "page"
)

// Metrics holds the collectors of one registry
type Metrics struct {
	registry *prometheus.Registry

	// pagesFetched counts successful page responses. Labels: input
	pagesFetched *prometheus.CounterVec
	// recordsEmitted counts events accepted by the sink. Labels: input
	recordsEmitted *prometheus.CounterVec
	// runs counts finished runs. Labels: input, outcome (success/failure)
	runs *prometheus.CounterVec
	// lastSuccess is the unix time of the last successful run. Labels: input
	lastSuccess *prometheus.GaugeVec
	// requestDuration tracks WAPI request latency in seconds.
	// Labels: input, request (probe/page), code
	requestDuration *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
		defaultMetrics.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return defaultMetrics
}

// New creates metrics backed by a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		pagesFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_fetched_total",
				Help:      "Total number of WAPI result pages fetched",
			},
			[]string{"input"},
		),
		recordsEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_emitted_total",
				Help:      "Total number of normalized records written to the sink",
			},
			[]string{"input"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of finished input runs by outcome",
			},
			[]string{"input", "outcome"},
		),
		lastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful run",
			},
			[]string{"input"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "WAPI request latency in seconds",
				Buckets: []float64{
					0.05, // local appliance
					0.1,
					0.25,
					0.5,
					1,
					2.5,
					5,
					10,
					30, // large pages on a busy grid
				},
			},
			[]string{"input", "request", "code"},
		),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PageFetched counts one successful page
func (m *Metrics) PageFetched(input string) {
	if m == nil {
		return
	}
	m.pagesFetched.WithLabelValues(input).Inc()
}

// RecordEmitted counts one event accepted by the sink
func (m *Metrics) RecordEmitted(input string) {
	if m == nil {
		return
	}
	m.recordsEmitted.WithLabelValues(input).Inc()
}

// RunFinished records the outcome of one input run
func (m *Metrics) RunFinished(input string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.runs.WithLabelValues(input, "failure").Inc()
		return
	}
	m.runs.WithLabelValues(input, "success").Inc()
	m.lastSuccess.WithLabelValues(input).SetToCurrentTime()
}

// ObserveRequest records the latency of one WAPI request. code is the HTTP
// status, or 0 when no response was received.
func (m *Metrics) ObserveRequest(input, request string, code int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.requestDuration.WithLabelValues(input, request, label).Observe(d.Seconds())
}

// Push sends every collected metric to a Pushgateway under job
func (m *Metrics) Push(ctx context.Context, gateway, job string) error {
	if m == nil || gateway == "" {
		return nil
	}
	if err := push.New(gateway, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gateway, err)
	}
	return nil
}

// Timer measures elapsed time from its creation
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
