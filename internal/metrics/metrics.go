// Package metrics defines the Prometheus collectors exported by the bridge.
//
// All collectors live on a private registry owned by Metrics, so tests can
// create as many instances as they like. Every method is safe on a nil
// *Metrics, which lets components run without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tuyabridge"

// Command outcomes used as the "outcome" label.
const (
	OutcomeOK             = "ok"
	OutcomeFailed         = "failed"
	OutcomeInvalidTopic   = "invalid_topic"
	OutcomeInvalidAction  = "invalid_action"
	OutcomeInvalidChannel = "invalid_channel"
	OutcomeUnknownDevice  = "unknown_device"
	OutcomeNotPolled      = "not_polled"
	OutcomeDropped        = "dropped"
)

// Metrics groups the bridge collectors.
type Metrics struct {
	registry *prometheus.Registry

	pollTicks     prometheus.Counter
	pollDuration  prometheus.Histogram
	fetchErrors   *prometheus.CounterVec
	stateChanges  *prometheus.CounterVec
	publishErrors prometheus.Counter
	sinkErrors    *prometheus.CounterVec
	commands      *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	devices       *prometheus.GaugeVec
	httpRequests  *prometheus.CounterVec
}

// New creates and registers all collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pollTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Completed poll passes over all active devices.",
		}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of one poll pass.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed device status fetches by device and error kind.",
		}, []string{"device", "kind"}),
		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_changes_total",
			Help:      "Detected channel state changes by device.",
		}, []string{"device"}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed state publishes to the MQTT broker.",
		}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed writes to secondary change sinks.",
		}, []string{"sink"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Inbound commands by outcome.",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "command_queue_depth",
			Help:      "Commands waiting for a dispatcher worker.",
		}),
		devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Registry devices by polling state.",
		}, []string{"state"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Diagnostics API requests by route, method and status.",
		}, []string{"route", "method", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.pollTicks,
		m.pollDuration,
		m.fetchErrors,
		m.stateChanges,
		m.publishErrors,
		m.sinkErrors,
		m.commands,
		m.queueDepth,
		m.devices,
		m.httpRequests,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePoll records one finished poll pass.
func (m *Metrics) ObservePoll(d time.Duration) {
	if m == nil {
		return
	}
	m.pollTicks.Inc()
	m.pollDuration.Observe(d.Seconds())
}

// FetchError counts a failed status fetch.
func (m *Metrics) FetchError(deviceID, kind string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(deviceID, kind).Inc()
}

// StateChange counts detected changes for a device.
func (m *Metrics) StateChange(deviceID string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.stateChanges.WithLabelValues(deviceID).Add(float64(n))
}

// PublishError counts a failed bus publish.
func (m *Metrics) PublishError() {
	if m == nil {
		return
	}
	m.publishErrors.Inc()
}

// SinkError counts a failed secondary sink write.
func (m *Metrics) SinkError(sink string) {
	if m == nil {
		return
	}
	m.sinkErrors.WithLabelValues(sink).Inc()
}

// Command counts an inbound command outcome.
func (m *Metrics) Command(outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(outcome).Inc()
}

// SetQueueDepth records the current command queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// SetDevices records how many devices are polled and how many are excluded.
func (m *Metrics) SetDevices(active, excluded int) {
	if m == nil {
		return
	}
	m.devices.WithLabelValues("active").Set(float64(active))
	m.devices.WithLabelValues("excluded").Set(float64(excluded))
}

// HTTPRequest counts one API request.
func (m *Metrics) HTTPRequest(route, method string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}
