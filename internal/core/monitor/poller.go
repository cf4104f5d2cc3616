package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/alarms"
	"github.com/frostdev-ops/meterdash/internal/core/meter"
	"github.com/frostdev-ops/meterdash/internal/core/metrics"
	"github.com/frostdev-ops/meterdash/internal/database/repositories"
	"github.com/frostdev-ops/meterdash/internal/websocket"
	apperrors "github.com/frostdev-ops/meterdash/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ReadingSource yields the newest stored reading.
type ReadingSource interface {
	Latest(ctx context.Context) (*meter.Reading, error)
}

// RuleSource yields the alarm rules in force for a poll.
type RuleSource interface {
	List(ctx context.Context) ([]alarms.Rule, error)
}

// Broadcaster pushes messages to live clients.
type Broadcaster interface {
	BroadcastToAll(message websocket.Message)
}

// ReadingMirror republishes live readings outside the dashboard.
type ReadingMirror interface {
	Name() string
	PublishReading(ctx context.Context, r meter.Reading) error
}

// AlarmSink forwards alarm events outside the dashboard.
type AlarmSink interface {
	Name() string
	PublishAlarms(ctx context.Context, events []alarms.Event) error
}

// Config controls the poll cadence.
type Config struct {
	Interval time.Duration
	// Timeout bounds one fetch; a slow store abandons the cycle.
	Timeout time.Duration
	// CoerceTextValues turns text encoded channels into numbers before
	// broadcasting and alarm evaluation.
	CoerceTextValues bool
	// SinkFailures consecutive publish failures pause a mirror or sink for
	// SinkCooldown.
	SinkFailures int
	SinkCooldown time.Duration
	// PublishTimeout bounds each mirror or sink call, independent of how
	// long the fetch took.
	PublishTimeout time.Duration
}

// Status describes the most recent poll cycles.
type Status struct {
	Running             bool      `json:"running"`
	Interval            string    `json:"interval"`
	LastPoll            time.Time `json:"last_poll,omitempty"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastReading         string    `json:"last_reading,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Polls               int64     `json:"polls"`
}

// Poller runs the live loop: fetch the latest reading, push it to clients,
// evaluate alarm rules and push the matches. Ticks that arrive while a cycle
// is still running are skipped.
type Poller struct {
	cfg      Config
	readings ReadingSource
	rules    RuleSource
	hub      Broadcaster
	mirrors  []ReadingMirror
	sinks    []AlarmSink
	metrics  metrics.MetricsCollector
	logger   *logrus.Logger
	now      func() time.Time
	breakers map[string]*apperrors.CircuitBreaker

	cron *cron.Cron

	mu      sync.RWMutex
	running bool
	status  Status
}

// Option customises a Poller.
type Option func(*Poller)

// WithMirror adds a live reading mirror.
func WithMirror(m ReadingMirror) Option {
	return func(p *Poller) { p.mirrors = append(p.mirrors, m) }
}

// WithSink adds an alarm sink.
func WithSink(s AlarmSink) Option {
	return func(p *Poller) { p.sinks = append(p.sinks, s) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.MetricsCollector) Option {
	return func(p *Poller) { p.metrics = c }
}

// WithClock overrides the clock used to stamp alarm events.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// NewPoller creates a poller. It does not start until Start is called.
func NewPoller(cfg Config, readings ReadingSource, rules RuleSource, hub Broadcaster, logger *logrus.Logger, opts ...Option) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout <= 0 || cfg.Timeout > cfg.Interval {
		cfg.Timeout = cfg.Interval
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.SinkFailures <= 0 {
		cfg.SinkFailures = 5
	}
	if cfg.SinkCooldown <= 0 {
		cfg.SinkCooldown = 30 * time.Second
	}

	p := &Poller{
		cfg:      cfg,
		readings: readings,
		rules:    rules,
		hub:      hub,
		metrics:  metrics.Noop{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.breakers = make(map[string]*apperrors.CircuitBreaker)
	names := make([]string, 0, len(p.mirrors)+len(p.sinks))
	for _, m := range p.mirrors {
		names = append(names, m.Name())
	}
	for _, s := range p.sinks {
		names = append(names, s.Name())
	}
	for _, name := range names {
		p.breakers[name] = apperrors.NewCircuitBreaker(apperrors.CircuitBreakerConfig{
			Name:          name,
			MaxFailures:   cfg.SinkFailures,
			ResetTimeout:  cfg.SinkCooldown,
			OnStateChange: p.sinkStateChanged,
			Logger:        logger,
		})
	}

	cronLogger := cron.PrintfLogger(logger)
	p.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		),
	)
	p.status.Interval = cfg.Interval.String()

	return p
}

// Start schedules the poll loop. The first cycle runs after one interval.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller is already running")
	}

	spec := fmt.Sprintf("@every %s", p.cfg.Interval)
	if _, err := p.cron.AddFunc(spec, func() { p.Poll(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule poll: %w", err)
	}

	p.cron.Start()
	p.running = true
	p.status.Running = true

	p.logger.WithFields(logrus.Fields{
		"interval": p.cfg.Interval,
		"timeout":  p.cfg.Timeout,
		"mirrors":  len(p.mirrors),
		"sinks":    len(p.sinks),
	}).Info("Live poller started")
	return nil
}

// Stop halts scheduling and waits for an in-flight cycle, up to ctx.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller is not running")
	}
	p.running = false
	p.status.Running = false
	p.mu.Unlock()

	done := p.cron.Stop()
	select {
	case <-done.Done():
		p.logger.Info("Live poller stopped")
		return nil
	case <-ctx.Done():
		p.logger.Warn("Timeout waiting for poll cycle to complete")
		return ctx.Err()
	}
}

// Poll runs one cycle and returns the alarm events it raised. A failed
// fetch is logged and yields nothing.
func (p *Poller) Poll(ctx context.Context) []alarms.Event {
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	latest, err := p.readings.Latest(fetchCtx)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			p.logger.Debug("No readings stored yet")
			p.recordSuccess("", start)
			return nil
		}
		p.recordFailure(err, start)
		p.logger.WithError(err).Error("Failed to fetch latest reading")
		return nil
	}

	reading := *latest
	if p.cfg.CoerceTextValues {
		reading = meter.CoerceReading(reading)
	}

	p.hub.BroadcastToAll(websocket.LiveDataMessage(reading))
	for _, m := range p.mirrors {
		p.publish(ctx, m.Name(), func(ctx context.Context) error { return m.PublishReading(ctx, reading) })
	}

	// Rules are loaded per cycle so edits apply on the next tick.
	rulesCtx, cancelRules := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancelRules()
	rules, err := p.rules.List(rulesCtx)
	if err != nil {
		p.recordFailure(err, start)
		p.logger.WithError(err).Error("Failed to load alarm rules")
		return nil
	}

	p.recordSuccess(reading.Timestamp, start)
	if len(rules) == 0 {
		return nil
	}

	events := alarms.Evaluate(reading, rules, p.now())
	p.hub.BroadcastToAll(websocket.AlarmsMessage(events))
	if len(events) == 0 {
		return nil
	}

	for _, ev := range events {
		p.metrics.RecordAlarm(ev.Field)
		p.logger.WithFields(logrus.Fields{
			"field":         ev.Field,
			"current_value": ev.CurrentValue,
			"threshold":     ev.Threshold,
			"condition":     ev.Condition,
		}).Warn("Alarm raised")
	}

	for _, s := range p.sinks {
		p.publish(ctx, s.Name(), func(ctx context.Context) error { return s.PublishAlarms(ctx, events) })
	}

	return events
}

// publish runs one mirror or sink call behind its circuit breaker, with its
// own PublishTimeout derived from the cycle context.
func (p *Poller) publish(ctx context.Context, name string, fn func(context.Context) error) {
	err := p.breakers[name].Execute(func() error {
		pubCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
		defer cancel()
		return fn(pubCtx)
	})
	if errors.Is(err, apperrors.ErrCircuitOpen) {
		p.logger.WithField("sink", name).Debug("Sink paused after repeated failures")
		return
	}
	p.metrics.RecordPublish(name, err == nil)
	if err != nil {
		p.logger.WithError(err).WithField("sink", name).Warn("Failed to publish")
	}
}

func (p *Poller) sinkStateChanged(name string, from, to apperrors.CircuitBreakerState) {
	p.metrics.RecordSinkState(name, int(to))
	if to == apperrors.StateOpen {
		p.logger.WithFields(logrus.Fields{
			"sink":     name,
			"from":     from.String(),
			"cooldown": p.cfg.SinkCooldown,
		}).Warn("Pausing sink after repeated failures")
	}
}

// SinkMetrics reports breaker counters per mirror and sink.
func (p *Poller) SinkMetrics() map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(p.breakers))
	for name, cb := range p.breakers {
		out[name] = cb.GetMetrics()
	}
	return out
}

// SinkStates reports the circuit state per mirror and sink.
func (p *Poller) SinkStates() map[string]string {
	out := make(map[string]string, len(p.breakers))
	for name, cb := range p.breakers {
		out[name] = cb.State().String()
	}
	return out
}

func (p *Poller) recordSuccess(readingTimestamp string, start time.Time) {
	elapsed := time.Since(start)
	p.metrics.RecordPoll(true, elapsed)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Polls++
	p.status.LastPoll = start
	p.status.LastSuccess = start
	p.status.LastError = ""
	p.status.ConsecutiveFailures = 0
	if readingTimestamp != "" {
		p.status.LastReading = readingTimestamp
	}
}

func (p *Poller) recordFailure(err error, start time.Time) {
	elapsed := time.Since(start)
	p.metrics.RecordPoll(false, elapsed)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Polls++
	p.status.LastPoll = start
	p.status.LastError = err.Error()
	p.status.ConsecutiveFailures++
}

// Status returns a copy of the poll status.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Health reports degraded after one failed cycle and unhealthy after three
// in a row.
func (p *Poller) Health(_ context.Context) metrics.HealthStatus {
	st := p.Status()

	var status metrics.HealthStatus
	switch {
	case !st.Running:
		status = metrics.NewHealthStatus("degraded", "poller not running")
	case st.ConsecutiveFailures >= 3:
		status = metrics.NewHealthStatus("unhealthy", st.LastError)
	case st.ConsecutiveFailures > 0:
		status = metrics.NewHealthStatus("degraded", st.LastError)
	default:
		status = metrics.NewHealthStatus("healthy", "polling")
	}
	return status.
		WithDetail("interval", st.Interval).
		WithDetail("last_reading", st.LastReading).
		WithDetail("consecutive_failures", st.ConsecutiveFailures).
		WithDetail("sinks", p.SinkStates()).
		WithDetail("breakers", p.SinkMetrics())
}
