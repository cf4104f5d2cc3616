package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements MetricsCollector using Prometheus metrics
type PrometheusCollector struct {
	config *MetricsConfig

	// HTTP Metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// WebSocket Metrics
	websocketConnections prometheus.Gauge
	websocketMessages    *prometheus.CounterVec

	// Database Metrics
	databaseQueryDuration *prometheus.HistogramVec

	// Poller Metrics
	pollDuration prometheus.Histogram
	pollsTotal   *prometheus.CounterVec

	// Alarm Metrics
	alarmsTotal *prometheus.CounterVec

	// Sink Metrics
	publishTotal *prometheus.CounterVec
	sinkState    *prometheus.GaugeVec
}

// NewPrometheusCollector creates a collector registered on the default
// registry.
func NewPrometheusCollector(config *MetricsConfig) *PrometheusCollector {
	return NewPrometheusCollectorWith(prometheus.DefaultRegisterer, config)
}

// NewPrometheusCollectorWith creates a collector registered on reg.
func NewPrometheusCollectorWith(reg prometheus.Registerer, config *MetricsConfig) *PrometheusCollector {
	if config == nil {
		config = &MetricsConfig{
			Enabled: true,
			Prefix:  "meterdash",
		}
	}

	prefix := config.Prefix
	factory := promauto.With(reg)

	collector := &PrometheusCollector{config: config}

	collector.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	collector.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	collector.websocketConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: prefix + "_websocket_connections",
			Help: "Number of connected dashboard clients",
		},
	)

	collector.websocketMessages = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"},
	)

	collector.databaseQueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"operation"},
	)

	collector.pollDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    prefix + "_poll_duration_seconds",
			Help:    "Duration of one live poll cycle",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	collector.pollsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_polls_total",
			Help: "Total number of live poll cycles",
		},
		[]string{"status"},
	)

	collector.alarmsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_alarms_total",
			Help: "Total number of alarm events raised",
		},
		[]string{"field"},
	)

	collector.publishTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_publish_total",
			Help: "Total number of messages handed to external sinks",
		},
		[]string{"sink", "status"},
	)

	collector.sinkState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_sink_circuit_state",
			Help: "Circuit state per external sink (0 closed, 1 half-open, 2 open)",
		},
		[]string{"sink"},
	)

	return collector
}

// RecordHTTPRequest records HTTP request metrics
func (p *PrometheusCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if !p.config.Enabled {
		return
	}

	p.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	p.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWebSocketConnection records WebSocket connection metrics
func (p *PrometheusCollector) RecordWebSocketConnection(action string) {
	if !p.config.Enabled {
		return
	}

	switch action {
	case "connect":
		p.websocketConnections.Inc()
	case "disconnect":
		p.websocketConnections.Dec()
	case "message_sent":
		p.websocketMessages.WithLabelValues("outbound").Inc()
	case "message_received":
		p.websocketMessages.WithLabelValues("inbound").Inc()
	}
}

// RecordDatabaseQuery records database query metrics
func (p *PrometheusCollector) RecordDatabaseQuery(operation string, duration time.Duration) {
	if !p.config.Enabled {
		return
	}

	p.databaseQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPoll records one poll cycle
func (p *PrometheusCollector) RecordPoll(success bool, duration time.Duration) {
	if !p.config.Enabled {
		return
	}

	p.pollsTotal.WithLabelValues(status(success)).Inc()
	p.pollDuration.Observe(duration.Seconds())
}

// RecordAlarm counts one alarm event for field
func (p *PrometheusCollector) RecordAlarm(field string) {
	if !p.config.Enabled {
		return
	}

	p.alarmsTotal.WithLabelValues(field).Inc()
}

// RecordPublish counts one message handed to an external sink
func (p *PrometheusCollector) RecordPublish(sink string, success bool) {
	if !p.config.Enabled {
		return
	}

	p.publishTotal.WithLabelValues(sink, status(success)).Inc()
}

// RecordSinkState sets the circuit state gauge for an external sink
func (p *PrometheusCollector) RecordSinkState(sink string, state int) {
	if !p.config.Enabled {
		return
	}

	p.sinkState.WithLabelValues(sink).Set(float64(state))
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
