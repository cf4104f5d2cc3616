package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RequestMetrics holds metrics for a specific endpoint
type RequestMetrics struct {
	Count      int           `json:"count"`
	TotalTime  time.Duration `json:"total_time"`
	MinLatency time.Duration `json:"min_latency"`
	MaxLatency time.Duration `json:"max_latency"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// Options configures a BatchLogger.
type Options struct {
	Level  string
	Format string // json or text
	// BatchSize is how many successful requests go into one summary line.
	BatchSize int
	Output    io.Writer
}

// BatchLogger wraps logrus.Logger and folds successful request logs into
// periodic summaries so the live dashboard's polling does not flood the log.
type BatchLogger struct {
	*logrus.Logger
	metrics    map[string]*RequestMetrics
	batchCount int
	mutex      sync.RWMutex
	batchSize  int
}

// New creates a logger from opts. Unknown levels fall back to info.
func New(opts Options) *BatchLogger {
	log := logrus.New()

	if strings.EqualFold(opts.Format, "text") {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "time",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "msg",
				logrus.FieldKeyFunc:  "func",
			},
		})
	}

	if opts.Output != nil {
		log.SetOutput(opts.Output)
	} else {
		log.SetOutput(os.Stdout)
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	return &BatchLogger{
		Logger:    log,
		metrics:   make(map[string]*RequestMetrics),
		batchSize: batchSize,
	}
}

// LogRequest logs a request, batching 200 status codes
func (bl *BatchLogger) LogRequest(method, endpoint string, statusCode int, latency time.Duration, fields logrus.Fields) {
	if statusCode == 200 {
		bl.batchSuccess(method, endpoint, latency)
		return
	}

	// Log non-200 status codes immediately
	entry := bl.WithFields(fields)
	switch {
	case statusCode >= 500:
		entry.Errorf("%s %s - Status: %d, Latency: %v", method, endpoint, statusCode, latency)
	case statusCode >= 400:
		entry.Warnf("%s %s - Status: %d, Latency: %v", method, endpoint, statusCode, latency)
	default:
		entry.Infof("%s %s - Status: %d, Latency: %v", method, endpoint, statusCode, latency)
	}
}

// batchSuccess adds a successful request to the batch
func (bl *BatchLogger) batchSuccess(method, endpoint string, latency time.Duration) {
	bl.mutex.Lock()
	defer bl.mutex.Unlock()

	key := method + " " + endpoint
	m := bl.metrics[key]
	if m == nil {
		m = &RequestMetrics{MinLatency: latency, MaxLatency: latency}
		bl.metrics[key] = m
	}

	m.Count++
	m.TotalTime += latency
	if latency < m.MinLatency {
		m.MinLatency = latency
	}
	if latency > m.MaxLatency {
		m.MaxLatency = latency
	}
	m.AvgLatency = m.TotalTime / time.Duration(m.Count)

	bl.batchCount++
	if bl.batchCount >= bl.batchSize {
		bl.flushBatch()
	}
}

// flushBatch sends a summary of batched requests. Callers hold the mutex.
func (bl *BatchLogger) flushBatch() {
	if bl.batchCount == 0 {
		return
	}

	bl.WithFields(logrus.Fields{
		"batch_summary":  true,
		"total_requests": bl.batchCount,
		"endpoints":      bl.metrics,
	}).Info("Request batch summary (200 status codes)")

	bl.metrics = make(map[string]*RequestMetrics)
	bl.batchCount = 0
}

// FlushPending forces a flush of any pending batch data
func (bl *BatchLogger) FlushPending() {
	bl.mutex.Lock()
	defer bl.mutex.Unlock()
	bl.flushBatch()
}

// Pending returns how many successful requests await the next summary.
func (bl *BatchLogger) Pending() int {
	bl.mutex.RLock()
	defer bl.mutex.RUnlock()
	return bl.batchCount
}
