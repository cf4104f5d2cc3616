package monitor

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/frostdev-ops/meterdash/internal/core/alarms"
	"github.com/frostdev-ops/meterdash/internal/core/meter"
	"github.com/frostdev-ops/meterdash/internal/core/metrics"
	"github.com/frostdev-ops/meterdash/internal/database/repositories"
	"github.com/frostdev-ops/meterdash/internal/websocket"
	apperrors "github.com/frostdev-ops/meterdash/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReadings struct {
	mock.Mock
}

func (m *mockReadings) Latest(ctx context.Context) (*meter.Reading, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).(*meter.Reading)
	return r, args.Error(1)
}

type mockRules struct {
	mock.Mock
}

func (m *mockRules) List(ctx context.Context) ([]alarms.Rule, error) {
	args := m.Called(ctx)
	rules, _ := args.Get(0).([]alarms.Rule)
	return rules, args.Error(1)
}

type recordingHub struct {
	mu       sync.Mutex
	messages []websocket.Message
}

func (h *recordingHub) BroadcastToAll(message websocket.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, message)
}

func (h *recordingHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.messages))
	for i, m := range h.messages {
		out[i] = m.Type
	}
	return out
}

type fakeSink struct {
	name   string
	err    error
	events []alarms.Event
}

func (s *fakeSink) Name() string { return s.name }
func (s *fakeSink) PublishAlarms(_ context.Context, events []alarms.Event) error {
	s.events = append(s.events, events...)
	return s.err
}

type fakeMirror struct {
	readings []meter.Reading
}

func (m *fakeMirror) Name() string { return "mirror" }
func (m *fakeMirror) PublishReading(_ context.Context, r meter.Reading) error {
	m.readings = append(m.readings, r)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func threshold(v float64) *float64 { return &v }

func TestPollBroadcastsAndEvaluates(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	latest := &meter.Reading{
		Timestamp: "2024-06-01T11:59:58.000Z",
		Fields: map[string]any{
			"Current_A":          310.0,
			"Power_Factor_Total": "0.80 lagging",
		},
	}

	readings := &mockReadings{}
	readings.On("Latest", mock.Anything).Return(latest, nil)
	rules := &mockRules{}
	rules.On("List", mock.Anything).Return([]alarms.Rule{
		{Field: "Current_A", Threshold: threshold(300), Condition: alarms.ConditionGreater},
		{Field: "Power_Factor_Total", Threshold: threshold(0.85), Condition: alarms.ConditionLess},
		{Field: "Frequency", Threshold: threshold(49), Condition: alarms.ConditionLess},
	}, nil)

	hub := &recordingHub{}
	sink := &fakeSink{name: "kafka"}
	mirror := &fakeMirror{}

	p := NewPoller(Config{Interval: 5 * time.Second, Timeout: time.Second, CoerceTextValues: true},
		readings, rules, hub, quietLogger(),
		WithSink(sink), WithMirror(mirror), WithClock(func() time.Time { return now }))

	events := p.Poll(context.Background())
	require.Len(t, events, 2)
	assert.Equal(t, "Current_A", events[0].Field)
	assert.Equal(t, now, events[0].Timestamp)
	assert.Equal(t, 0.80, events[1].CurrentValue)

	assert.Equal(t, []string{websocket.MessageTypeLiveData, websocket.MessageTypeAlarms}, hub.types())
	assert.Len(t, sink.events, 2)
	require.Len(t, mirror.readings, 1)
	assert.Equal(t, 0.80, mirror.readings[0].Fields["Power_Factor_Total"])

	st := p.Status()
	assert.Equal(t, int64(1), st.Polls)
	assert.Equal(t, "2024-06-01T11:59:58.000Z", st.LastReading)
	assert.Zero(t, st.ConsecutiveFailures)

	readings.AssertExpectations(t)
	rules.AssertExpectations(t)
}

func TestPollWithoutCoercionSkipsTextChannels(t *testing.T) {
	readings := &mockReadings{}
	readings.On("Latest", mock.Anything).Return(&meter.Reading{
		Timestamp: "2024-06-01T12:00:00.000Z",
		Fields:    map[string]any{"Power_Factor_Total": "0.80 lagging"},
	}, nil)
	rules := &mockRules{}
	rules.On("List", mock.Anything).Return([]alarms.Rule{
		{Field: "Power_Factor_Total", Threshold: threshold(0.85), Condition: alarms.ConditionLess},
	}, nil)

	hub := &recordingHub{}
	p := NewPoller(Config{Interval: time.Second}, readings, rules, hub, quietLogger())

	assert.Empty(t, p.Poll(context.Background()))
	// an empty alarm list is still pushed so clients can clear
	assert.Equal(t, []string{websocket.MessageTypeLiveData, websocket.MessageTypeAlarms}, hub.types())
}

func TestPollFetchFailureYieldsNothing(t *testing.T) {
	readings := &mockReadings{}
	readings.On("Latest", mock.Anything).Return(nil, errors.New("connection refused"))
	rules := &mockRules{}

	hub := &recordingHub{}
	sink := &fakeSink{name: "kafka"}
	p := NewPoller(Config{Interval: time.Second}, readings, rules, hub, quietLogger(), WithSink(sink))

	for i := 0; i < 3; i++ {
		assert.Empty(t, p.Poll(context.Background()))
	}
	assert.Empty(t, hub.types())
	assert.Empty(t, sink.events)
	rules.AssertNotCalled(t, "List", mock.Anything)

	st := p.Status()
	assert.Equal(t, 3, st.ConsecutiveFailures)
	assert.Equal(t, "connection refused", st.LastError)

	p.mu.Lock()
	p.status.Running = true
	p.mu.Unlock()
	assert.Equal(t, "unhealthy", p.Health(context.Background()).Status)
}

func TestPollEmptyStore(t *testing.T) {
	readings := &mockReadings{}
	readings.On("Latest", mock.Anything).Return(nil, repositories.ErrNotFound)

	hub := &recordingHub{}
	p := NewPoller(Config{Interval: time.Second}, readings, &mockRules{}, hub, quietLogger())

	assert.Empty(t, p.Poll(context.Background()))
	assert.Empty(t, hub.types())
	assert.Zero(t, p.Status().ConsecutiveFailures)
}

func TestPollNoRulesSkipsAlarms(t *testing.T) {
	readings := &mockReadings{}
	readings.On("Latest", mock.Anything).Return(&meter.Reading{Timestamp: "2024-06-01T12:00:00.000Z"}, nil)
	rules := &mockRules{}
	rules.On("List", mock.Anything).Return([]alarms.Rule{}, nil)

	hub := &recordingHub{}
	p := NewPoller(Config{Interval: time.Second}, readings, rules, hub, quietLogger())

	p.Poll(context.Background())
	assert.Equal(t, []string{websocket.MessageTypeLiveData}, hub.types())
}

type slowReadings struct {
	calls   atomic.Int32
	release chan struct{}
}

// Latest ignores ctx so one cycle outlives its own timeout.
func (s *slowReadings) Latest(_ context.Context) (*meter.Reading, error) {
	s.calls.Add(1)
	<-s.release
	return nil, repositories.ErrNotFound
}

func TestPollerSkipsOverlappingTicks(t *testing.T) {
	src := &slowReadings{release: make(chan struct{})}
	p := NewPoller(Config{Interval: time.Second, Timeout: time.Second}, src, &mockRules{}, &recordingHub{}, quietLogger())

	require.NoError(t, p.Start())
	assert.Error(t, p.Start())

	// the first cycle blocks past several ticks
	time.Sleep(2500 * time.Millisecond)
	close(src.release)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
	assert.Error(t, p.Stop(ctx))

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestFailingSinkIsPaused(t *testing.T) {
	readings := &mockReadings{}
	readings.On("Latest", mock.Anything).Return(&meter.Reading{
		Timestamp: "2024-06-01T12:00:00.000Z",
		Fields:    map[string]any{"Current_A": 500.0},
	}, nil)
	rules := &mockRules{}
	rules.On("List", mock.Anything).Return([]alarms.Rule{
		{Field: "Current_A", Threshold: threshold(300), Condition: alarms.ConditionGreater},
	}, nil)

	sink := &fakeSink{name: "kafka", err: errors.New("broker unreachable")}
	p := NewPoller(Config{Interval: time.Second, SinkFailures: 2, SinkCooldown: time.Hour},
		readings, rules, &recordingHub{}, quietLogger(), WithSink(sink))

	for i := 0; i < 4; i++ {
		require.Len(t, p.Poll(context.Background()), 1)
	}
	// two attempts, then the sink is skipped
	assert.Len(t, sink.events, 2)
	assert.Equal(t, map[string]string{"kafka": "open"}, p.SinkStates())
}

type delayedReadings struct {
	delay time.Duration
}

func (d *delayedReadings) Latest(_ context.Context) (*meter.Reading, error) {
	time.Sleep(d.delay)
	return &meter.Reading{Timestamp: "2024-06-01T12:00:00.000Z", Fields: map[string]any{"Current_A": 1.0}}, nil
}

// waitingMirror takes wait to publish unless ctx ends first.
type waitingMirror struct {
	wait      time.Duration
	remaining time.Duration
	err       error
}

func (m *waitingMirror) Name() string { return "mqtt" }
func (m *waitingMirror) PublishReading(ctx context.Context, _ meter.Reading) error {
	if deadline, ok := ctx.Deadline(); ok {
		m.remaining = time.Until(deadline)
	}
	select {
	case <-time.After(m.wait):
	case <-ctx.Done():
		m.err = ctx.Err()
	}
	return m.err
}

func TestMirrorGetsItsOwnPublishTimeout(t *testing.T) {
	rules := &mockRules{}
	rules.On("List", mock.Anything).Return([]alarms.Rule{}, nil)
	mirror := &waitingMirror{wait: 50 * time.Millisecond}

	// the fetch uses almost all of its 100ms budget
	p := NewPoller(Config{Interval: time.Second, Timeout: 100 * time.Millisecond, PublishTimeout: time.Second},
		&delayedReadings{delay: 90 * time.Millisecond}, rules, &recordingHub{}, quietLogger(), WithMirror(mirror))

	p.Poll(context.Background())

	assert.NoError(t, mirror.err)
	assert.Greater(t, mirror.remaining, 500*time.Millisecond)
	assert.Equal(t, map[string]string{"mqtt": "closed"}, p.SinkStates())
	rules.AssertExpectations(t)
}

type stateRecorder struct {
	metrics.Noop
	mu     sync.Mutex
	states map[string]int
}

func (r *stateRecorder) RecordSinkState(sink string, state int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[sink] = state
}

func (r *stateRecorder) state(sink string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.states[sink]
	return v, ok
}

func TestSinkBreakerReportsStateAndCounters(t *testing.T) {
	readings := &mockReadings{}
	readings.On("Latest", mock.Anything).Return(&meter.Reading{
		Timestamp: "2024-06-01T12:00:00.000Z",
		Fields:    map[string]any{"Current_A": 500.0},
	}, nil)
	rules := &mockRules{}
	rules.On("List", mock.Anything).Return([]alarms.Rule{
		{Field: "Current_A", Threshold: threshold(300), Condition: alarms.ConditionGreater},
	}, nil)

	rec := &stateRecorder{states: make(map[string]int)}
	sink := &fakeSink{name: "kafka", err: errors.New("broker unreachable")}
	p := NewPoller(Config{Interval: time.Second, SinkFailures: 2, SinkCooldown: time.Minute},
		readings, rules, &recordingHub{}, quietLogger(), WithSink(sink), WithMetrics(rec))

	p.Poll(context.Background())
	p.Poll(context.Background())

	// state changes are delivered asynchronously
	assert.Eventually(t, func() bool {
		v, ok := rec.state("kafka")
		return ok && v == int(apperrors.StateOpen)
	}, time.Second, 10*time.Millisecond)

	health := p.Health(context.Background())
	breakers, ok := health.Details["breakers"].(map[string]map[string]interface{})
	require.True(t, ok)
	require.Contains(t, breakers, "kafka")
	assert.Equal(t, "open", breakers["kafka"]["state"])
	assert.Equal(t, 2, breakers["kafka"]["failures"])
	assert.Equal(t, 2, breakers["kafka"]["max_failures"])
	assert.Equal(t, "1m0s", breakers["kafka"]["reset_timeout"])
}
