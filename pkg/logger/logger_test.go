package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"chatty", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l := New(Options{Level: tt.level, Output: &bytes.Buffer{}})
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestSuccessfulRequestsAreBatched(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "info", BatchSize: 3, Output: &buf})

	l.LogRequest("GET", "/api/latest", 200, 2*time.Millisecond, nil)
	l.LogRequest("GET", "/api/latest", 200, 4*time.Millisecond, nil)
	assert.Empty(t, buf.String())
	assert.Equal(t, 2, l.Pending())

	l.LogRequest("GET", "/api/historical", 200, time.Millisecond, nil)
	assert.Zero(t, l.Pending())

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, true, line["batch_summary"])
	assert.EqualValues(t, 3, line["total_requests"])

	endpoints := line["endpoints"].(map[string]interface{})
	latest := endpoints["GET /api/latest"].(map[string]interface{})
	assert.EqualValues(t, 2, latest["count"])
	assert.EqualValues(t, 3*time.Millisecond, latest["avg_latency"])
}

func TestErrorsAreLoggedImmediately(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "info", Output: &buf})

	l.LogRequest("GET", "/api/historical", 400, time.Millisecond, logrus.Fields{"client_ip": "10.0.0.1"})
	assert.Contains(t, buf.String(), `"level":"warning"`)
	assert.Contains(t, buf.String(), "10.0.0.1")

	buf.Reset()
	l.LogRequest("GET", "/api/latest", 500, time.Millisecond, nil)
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestFlushPending(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Format: "text", Output: &buf})

	l.FlushPending()
	assert.Empty(t, buf.String())

	l.LogRequest("GET", "/health", 200, time.Millisecond, nil)
	l.FlushPending()
	assert.True(t, strings.Contains(buf.String(), "Request batch summary"))
}
