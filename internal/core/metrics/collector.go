package metrics

import (
	"time"
)

// MetricsCollector defines the interface for collecting metrics
type MetricsCollector interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
	RecordWebSocketConnection(action string)
	RecordDatabaseQuery(operation string, duration time.Duration)
	RecordPoll(success bool, duration time.Duration)
	RecordAlarm(field string)
	RecordPublish(sink string, success bool)
	// RecordSinkState reports a sink's circuit state: 0 closed, 1 half-open,
	// 2 open.
	RecordSinkState(sink string, state int)
}

// MetricsConfig contains configuration for metrics collection
type MetricsConfig struct {
	Enabled bool
	Prefix  string
}

// Noop discards every measurement.
type Noop struct{}

func (Noop) RecordHTTPRequest(string, string, int, time.Duration) {}
func (Noop) RecordWebSocketConnection(string)                      {}
func (Noop) RecordDatabaseQuery(string, time.Duration)             {}
func (Noop) RecordPoll(bool, time.Duration)                        {}
func (Noop) RecordAlarm(string)                                    {}
func (Noop) RecordPublish(string, bool)                            {}
func (Noop) RecordSinkState(string, int)                           {}

// Since records the time elapsed from start as a database query. Use it as
// defer metrics.Since(c, "latest", time.Now()).
func Since(c MetricsCollector, operation string, start time.Time) {
	if c == nil {
		return
	}
	c.RecordDatabaseQuery(operation, time.Since(start))
}
