package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/plantconnect/internal/interaction"
	"github.com/banshee-data/plantconnect/internal/llm"
	"github.com/banshee-data/plantconnect/internal/sensor"
	"github.com/banshee-data/plantconnect/internal/serialmux"
	"github.com/banshee-data/plantconnect/internal/synth"
	"github.com/banshee-data/plantconnect/internal/telemetry"
	"github.com/banshee-data/plantconnect/internal/timeutil"
	"github.com/banshee-data/plantconnect/internal/touch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const period = sensor.DefaultSamplePeriod

type replyResponder struct {
	mu    sync.Mutex
	calls []llm.Request
}

func (r *replyResponder) Generate(_ context.Context, req llm.Request) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	return "I feel the sun on my fronds.", nil
}

type events struct {
	mu  sync.Mutex
	got map[string]int
}

func (e *events) Publish(eventType string, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.got == nil {
		e.got = map[string]int{}
	}
	e.got[eventType]++
}

func (e *events) count(t string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.got[t]
}

type sessionLog struct {
	mu      sync.Mutex
	started []string
	stopped []string
}

func (l *sessionLog) RecordSessionStart(_ context.Context, id, _ string, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, id)
	return nil
}

func (l *sessionLog) RecordSessionStop(_ context.Context, id string, _ time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = append(l.stopped, id)
	return nil
}

type countingSink struct {
	mu     sync.Mutex
	topics map[string]int
}

func (c *countingSink) Publish(_ context.Context, topic, _ string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.topics == nil {
		c.topics = map[string]int{}
	}
	c.topics[topic]++
	return nil
}

func (c *countingSink) count(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[topic]
}

type fixture struct {
	clock *timeutil.MockClock
	s     *Session
	resp  *replyResponder
	pub   *events
	log   *sessionLog
	sink  *countingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock: timeutil.NewMockClock(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)),
		resp:  &replyResponder{},
		pub:   &events{},
		log:   &sessionLog{},
		sink:  &countingSink{},
	}
	f.s = New(Options{
		Clock:     f.clock,
		Seed:      7,
		Responder: f.resp,
		Publisher: f.pub,
		Recorder:  f.log,
		Streamer: telemetry.StreamerConfig{
			DeviceID:  "fern-1",
			PlantType: "boston-fern",
			Sink:      f.sink,
		},
	})
	t.Cleanup(func() { _ = f.s.Close() })
	return f
}

// step advances one sample period at a time and waits for each tick to land.
func (f *fixture) step(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		f.clock.Advance(period)
		want := f.clock.Now()
		require.Eventually(t, func() bool {
			return f.s.Snapshot().Time.Equal(want)
		}, time.Second, time.Millisecond)
	}
}

func (f *fixture) idle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return !f.s.Status().Busy }, time.Second, time.Millisecond)
}

func TestSession_StartGreetsAndRecords(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Start(context.Background()))
	require.NoError(t, f.s.Start(context.Background()), "second start is a no-op")
	f.idle(t)

	entries := f.s.History().Last(10)
	require.Len(t, entries, 2)
	assert.Equal(t, interaction.KindSystem, entries[0].Kind)
	assert.Equal(t, llm.RoleModel, entries[1].Role)

	st := f.s.Status()
	assert.True(t, st.Active)
	assert.Equal(t, "simulator", st.Source)
	assert.NotEmpty(t, st.ID)

	f.s.Stop()
	f.s.Stop()
	assert.False(t, f.s.Active())
	assert.Equal(t, 0, f.clock.ActiveTickers())
	assert.Equal(t, []string{st.ID}, f.log.started)
	assert.Equal(t, []string{st.ID}, f.log.stopped)
	assert.GreaterOrEqual(t, f.pub.count(EventStatus), 2)
	assert.GreaterOrEqual(t, f.pub.count(EventMessage), 2)
}

func TestSession_SimulatedTouchFiresOneInteraction(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Start(context.Background()))
	f.idle(t)
	f.step(t, 3)

	require.NoError(t, f.s.SimulateTouch())
	// plateau lasts at least 500ms; the interaction fires after 400ms
	f.step(t, 15)
	f.idle(t)

	var touches int
	for _, e := range f.s.History().Last(20) {
		if e.Kind == interaction.KindTouch && e.Role == llm.RoleUser {
			touches++
		}
	}
	assert.Equal(t, 1, touches)
	assert.GreaterOrEqual(t, f.pub.count(EventTouch), 1)
	assert.Equal(t, 1, f.s.touches.Since(f.clock.Now()))
}

func TestSession_SayNeedsStart(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.s.Say("hello"), ErrNotStarted)

	require.NoError(t, f.s.Start(context.Background()))
	f.idle(t)
	require.NoError(t, f.s.Say("hello"))
	f.idle(t)

	last := f.s.History().Last(2)
	require.Len(t, last, 2)
	assert.Equal(t, "hello", last[0].Text)
	assert.Equal(t, llm.RoleModel, last[1].Role)
}

func TestSession_SayRacingStop(t *testing.T) {
	f := newFixture(t)
	for round := 0; round < 20; round++ {
		require.NoError(t, f.s.Start(context.Background()))

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if err := f.s.Say("still there?"); errors.Is(err, ErrNotStarted) {
					return
				}
			}
		}()
		f.s.Stop()
		<-done

		// nothing may be submitted once Stop has waited on the controller
		assert.False(t, f.s.Status().Busy, "round %d", round)
		require.ErrorIs(t, f.s.Say("hello?"), ErrNotStarted)
	}
}

func TestSession_StreamingDeliversOncePerSecond(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.s.SetStreaming(true), ErrNotStarted)

	require.NoError(t, f.s.Start(context.Background()))
	f.idle(t)
	require.NoError(t, f.s.SetStreaming(true))
	require.NoError(t, f.s.SetStreaming(true))
	assert.True(t, f.s.Status().Streaming)

	// one second in sample periods, plus one to cross the boundary
	f.step(t, int(time.Second/period)+1)
	require.Eventually(t, func() bool {
		return f.sink.count(telemetry.TopicSensorEvents) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, f.s.SetStreaming(false))
	assert.False(t, f.s.Status().Streaming)
	assert.Equal(t, 1, f.s.streamer.Window().Len(), "stopping keeps the window")

	f.s.Stop()
	require.NoError(t, f.s.Start(context.Background()))
	assert.Equal(t, 0, f.s.streamer.Window().Len(), "starting clears the window")
}

func TestSession_AudioModes(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, synth.StateIdle, f.s.Engine().State())

	require.NoError(t, f.s.SetAudio(true))
	assert.Equal(t, synth.StateRunning, f.s.Engine().State())
	assert.True(t, f.s.Status().Audio)

	require.NoError(t, f.s.SetAudio(false))
	assert.Equal(t, synth.StateSuspended, f.s.Engine().State())

	f.s.SetAudioThreshold(30)
	assert.Equal(t, 30.0, f.s.Status().Threshold)

	require.NoError(t, f.s.Engine().Close())
	require.ErrorIs(t, f.s.SetAudio(true), synth.ErrClosed)
}

func TestSession_Voice(t *testing.T) {
	f := newFixture(t)
	f.s.SetVoice(true)
	require.NoError(t, f.s.Start(context.Background()))
	f.idle(t)
	require.Eventually(t, func() bool { return f.s.Speaker().Latest() != nil }, time.Second, time.Millisecond)
	assert.Equal(t, "browser", f.s.Speaker().Latest().Provider)
	assert.True(t, f.s.Status().Voice)
}

func TestSession_HardwareReplacesSimulation(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.s.DisconnectHardware(), ErrNoHardware)

	port := serialmux.NewFakePort()
	require.NoError(t, f.s.ConnectHardware(serialmux.NewSerialMux(port)))
	require.ErrorIs(t, f.s.ConnectHardware(serialmux.NewSerialMux(serialmux.NewFakePort())), ErrHardwareAttached)
	require.ErrorIs(t, f.s.SimulateTouch(), sensor.ErrHardwareActive)

	require.NoError(t, f.s.Start(context.Background()))
	f.idle(t)
	var st sensor.HardwareState
	for i := 0; i < 200; i++ {
		port.FeedLine("TOP:80.0,VAL:75.5,INT:72.6")
		time.Sleep(time.Millisecond)
		f.step(t, 1)
		if st = f.s.Snapshot(); st.Raw == 73 {
			break
		}
	}
	assert.Equal(t, "serial", st.Source)
	assert.Equal(t, 73, st.Raw)
	status := f.s.Status()
	assert.Equal(t, "serial", status.Source)
	require.NotNil(t, status.Link)
	assert.NotZero(t, status.Link.Lines)

	require.NoError(t, f.s.DisconnectHardware())
	assert.True(t, port.Closed())
	assert.Nil(t, f.s.Status().Link)
	f.step(t, 1)
	assert.Equal(t, "simulator", f.s.Snapshot().Source)
	require.NoError(t, f.s.SimulateTouch())
}

func TestSession_HardwareSwapIsNotATouch(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.s.Start(context.Background()))
	f.idle(t)
	f.step(t, 30)
	before := f.pub.count(EventTouch)

	port := serialmux.NewFakePort()
	require.NoError(t, f.s.ConnectHardware(serialmux.NewSerialMux(port)))
	f.step(t, 10)
	assert.Equal(t, before, f.pub.count(EventTouch), "touch published before the first line")
	assert.Equal(t, 0, f.s.touches.Since(f.clock.Now()))
	assert.Equal(t, 0, f.s.Snapshot().Value)

	// the sensor rests far from the simulated level; it must seed a new baseline
	var st sensor.HardwareState
	for i := 0; i < 200; i++ {
		port.FeedLine("TOP:80.0,VAL:80.0,INT:80")
		time.Sleep(time.Millisecond)
		f.step(t, 1)
		if st = f.s.Snapshot(); st.Raw == 80 {
			break
		}
	}
	require.Equal(t, 80, st.Raw)
	f.step(t, 5)
	assert.Equal(t, 0, f.s.Snapshot().Value)
	assert.Equal(t, before, f.pub.count(EventTouch))
	assert.Equal(t, 0, f.s.touches.Since(f.clock.Now()))
}

func TestSession_ReadyNeedsActiveSession(t *testing.T) {
	f := newFixture(t)
	// not started: touches are seen but nothing is scheduled
	edges := f.s.debouncer.Observe(40, f.clock.Now())
	require.Len(t, edges, 1)
	assert.Equal(t, touch.Start, edges[0].Kind)
	assert.False(t, f.s.debouncer.Pending())
}
