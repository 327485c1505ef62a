// Package session owns one running plant: the sampling loop and every
// consumer hanging off it. Nothing here is a package-level singleton; the
// daemon builds one Session and hands it to the API.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/plantconnect/internal/interaction"
	"github.com/banshee-data/plantconnect/internal/monitoring"
	"github.com/banshee-data/plantconnect/internal/periodic"
	"github.com/banshee-data/plantconnect/internal/sensor"
	"github.com/banshee-data/plantconnect/internal/serialmux"
	"github.com/banshee-data/plantconnect/internal/speech"
	"github.com/banshee-data/plantconnect/internal/synth"
	"github.com/banshee-data/plantconnect/internal/telemetry"
	"github.com/banshee-data/plantconnect/internal/timeutil"
	"github.com/banshee-data/plantconnect/internal/touch"
	"github.com/google/uuid"
)

// Event types pushed to observers.
const (
	EventState   = "state"
	EventTouch   = "touch"
	EventMessage = "message"
	EventInsight = "insight"
	EventSpeech  = "speech"
	EventStatus  = "status"
)

// DefaultPublishInterval throttles state pushes to observers to 10 Hz.
const DefaultPublishInterval = 100 * time.Millisecond

// greeting is the system request sent when a session starts.
const greeting = "The session has just started and someone is here to visit you."

var (
	ErrNotStarted       = errors.New("session: not started")
	ErrNoHardware       = errors.New("session: no hardware connected")
	ErrHardwareAttached = errors.New("session: hardware already connected")
)

// Publisher fans events out to observers. It must not block.
type Publisher interface {
	Publish(eventType string, data any)
}

// Recorder records sessions. *db.DB satisfies it.
type Recorder interface {
	RecordSessionStart(ctx context.Context, id, source string, at time.Time) error
	RecordSessionStop(ctx context.Context, id string, at time.Time) error
}

// Options wires a Session. Only Responder is needed for a useful plant;
// anything left nil gets a quiet default.
type Options struct {
	Clock timeutil.Clock
	Seed  uint64

	SamplePeriod   time.Duration
	AdaptGate      float64
	AdaptRate      float64
	TouchThreshold int
	TouchDelay     time.Duration
	AudioThreshold float64
	Simulator      sensor.SimulatorConfig

	Responder interaction.Responder
	Persona   interaction.Persona
	Speaker   *speech.Speaker
	Engine    *synth.Engine
	// Recording, if set, receives rendered audio while the session runs.
	Recording synth.PCMWriter

	Streamer  telemetry.StreamerConfig
	Publisher Publisher
	Recorder  Recorder
}

// Status is the coarse state shown to observers.
type Status struct {
	ID        string               `json:"id,omitempty"`
	Active    bool                 `json:"active"`
	Source    string               `json:"source"`
	Audio     bool                 `json:"audio"`
	Voice     bool                 `json:"voice"`
	Streaming bool                 `json:"streaming"`
	Busy      bool                 `json:"busy"`
	Touching  bool                 `json:"touching"`
	Threshold float64              `json:"audio_threshold"`
	State     sensor.HardwareState `json:"state"`
	Stream    telemetry.Stats      `json:"stream"`
	Link      *serialmux.Stats     `json:"link,omitempty"`
}

type hardware struct {
	mux    serialmux.SerialMuxInterface
	cancel context.CancelFunc
	done   sync.WaitGroup
}

type Session struct {
	clock      timeutil.Clock
	sampler    *sensor.Sampler
	sim        *sensor.Simulator
	debouncer  *touch.Debouncer
	touches    *touch.Log
	controller *interaction.Controller
	speaker    *speech.Speaker
	engine     *synth.Engine
	player     *synth.Player
	streamer   *telemetry.Streamer
	pub        Publisher
	recorder   Recorder

	active atomic.Bool

	mu        sync.Mutex
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	sampling  *periodic.Handle
	playing   *periodic.Handle
	streaming *telemetry.Handle
	hw        *hardware
	audioOn   bool
	threshold float64

	touchThreshold int
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, any) {}

// New builds a stopped session.
func New(opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Publisher == nil {
		opts.Publisher = nopPublisher{}
	}
	if opts.Speaker == nil {
		opts.Speaker = speech.NewSpeaker(nil)
	}
	if opts.Engine == nil {
		opts.Engine = synth.NewEngine(synth.DefaultSampleRate, synth.DefaultParams())
	}
	if opts.Simulator == (sensor.SimulatorConfig{}) {
		opts.Simulator = sensor.DefaultSimulatorConfig()
	}
	if opts.AudioThreshold == 0 {
		opts.AudioThreshold = 50
	}
	if opts.TouchThreshold <= 0 {
		opts.TouchThreshold = touch.DefaultThreshold
	}

	s := &Session{
		clock:     opts.Clock,
		sim:       sensor.NewSimulator(opts.Simulator, opts.Clock, opts.Seed),
		touches:   touch.NewLog(time.Minute),
		speaker:   opts.Speaker,
		engine:    opts.Engine,
		pub:       opts.Publisher,
		recorder:  opts.Recorder,
		threshold: opts.AudioThreshold,

		touchThreshold: opts.TouchThreshold,
	}
	s.sampler = sensor.NewSampler(opts.Clock, opts.SamplePeriod,
		sensor.NewTracker(opts.AdaptGate, opts.AdaptRate), nil)
	s.sampler.SetSource(s.sim)
	s.sampler.SetAudio(s.engine, s.threshold, false)

	s.controller = interaction.NewController(interaction.Config{
		Responder: opts.Responder,
		Persona:   opts.Persona,
		State:     s.sampler.Snapshot,
		Voice:     s.speaker,
		Now:       opts.Clock.Now,
	})
	s.debouncer = touch.NewDebouncer(opts.TouchThreshold, opts.TouchDelay, func() bool {
		return s.active.Load() && !s.controller.Busy()
	})

	if opts.Recording != nil {
		s.player = synth.NewPlayer(s.engine, opts.Recording, opts.Clock, 0)
	}

	sc := opts.Streamer
	sc.State = s.sampler.Snapshot
	sc.Touches = s.touches.Since
	if sc.Clock == nil {
		sc.Clock = opts.Clock
	}
	if sc.Seed == 0 {
		sc.Seed = opts.Seed
	}
	s.streamer = telemetry.NewStreamer(sc)

	s.sampler.Observe(s.onTick)
	s.sampler.Observe(sensor.Throttle(DefaultPublishInterval, func(st sensor.HardwareState) {
		s.pub.Publish(EventState, st)
	}))
	s.controller.History().Observe(func(e interaction.Entry) {
		s.pub.Publish(EventMessage, e)
	})
	s.streamer.OnInsight(func(h telemetry.HealthInsight) {
		s.pub.Publish(EventInsight, h)
	})
	s.speaker.OnClip(func(c *speech.Clip) {
		s.pub.Publish(EventSpeech, c)
	})
	return s
}

// onTick runs on the sampling goroutine.
func (s *Session) onTick(st sensor.HardwareState) {
	if st.SourceChanged {
		s.debouncer.Reset()
	}
	for _, e := range s.debouncer.Observe(st.Value, st.Time) {
		switch e.Kind {
		case touch.Start:
			s.touches.Add(e.Time)
			s.pub.Publish(EventTouch, e)
		case touch.End:
			s.pub.Publish(EventTouch, e)
		case touch.Fire:
			err := s.submit(interaction.Request{
				Kind:      interaction.KindTouch,
				Intensity: e.Value,
			})
			if err != nil && !errors.Is(err, interaction.ErrBusy) && !errors.Is(err, ErrNotStarted) {
				monitoring.Logf("session: touch interaction: %v", err)
			}
		}
	}
}

// submit hands req to the controller only while the session is active.
// Stop clears active under s.mu before it waits on the controller.
func (s *Session) submit(req interaction.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active.Load() {
		return ErrNotStarted
	}
	return s.controller.SubmitAsync(s.ctx, req)
}

// Start begins sampling, clears the analysis window and greets the user.
// Starting an active session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.active.Load() {
		s.mu.Unlock()
		return nil
	}
	s.id = uuid.NewString()
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.debouncer.Reset()
	s.touches.Clear()
	s.streamer.Window().Clear()
	if s.audioOn {
		s.engine.Resume()
	}
	s.sampling = s.sampler.Start(s.ctx)
	if s.player != nil {
		s.playing = s.player.Start(s.ctx)
	}
	s.active.Store(true)
	id, source := s.id, s.sourceLocked()
	s.mu.Unlock()

	if s.recorder != nil {
		if err := s.recorder.RecordSessionStart(ctx, id, source, s.clock.Now()); err != nil {
			monitoring.Logf("session: record start: %v", err)
		}
	}
	monitoring.Logf("session %s started (source=%s)", id, source)

	err := s.submit(interaction.Request{Kind: interaction.KindSystem, Text: greeting})
	if err != nil && !errors.Is(err, ErrNotStarted) {
		monitoring.Logf("session: greeting: %v", err)
	}
	s.pub.Publish(EventStatus, s.Status())
	return nil
}

// Stop halts every loop the session started and waits for in-flight
// interactions. The analysis window is left as it is. Safe to call twice.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.active.Load() {
		s.mu.Unlock()
		return
	}
	s.active.Store(false)
	streaming, sampling, playing := s.streaming, s.sampling, s.playing
	s.streaming, s.sampling, s.playing = nil, nil, nil
	cancel, id := s.cancel, s.id
	s.mu.Unlock()

	streaming.Stop()
	sampling.Stop()
	playing.Stop()
	cancel()
	s.controller.Wait()
	// the sampling goroutine is gone, so the debouncer is ours again
	s.debouncer.Reset()
	s.engine.Suspend()

	if s.recorder != nil {
		if err := s.recorder.RecordSessionStop(context.Background(), id, s.clock.Now()); err != nil {
			monitoring.Logf("session: record stop: %v", err)
		}
	}
	monitoring.Logf("session %s stopped", id)
	s.pub.Publish(EventStatus, s.Status())
}

// Active reports whether the session is running.
func (s *Session) Active() bool { return s.active.Load() }

// ConnectHardware switches the sampler onto mux and disables simulation.
// The session takes ownership of mux and closes it on disconnect.
func (s *Session) ConnectHardware(mux serialmux.SerialMuxInterface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hw != nil {
		return ErrHardwareAttached
	}
	ctx, cancel := context.WithCancel(context.Background())
	hw := &hardware{mux: mux, cancel: cancel}
	src := sensor.NewSerialSource(mux)

	hw.done.Add(2)
	go func() {
		defer hw.done.Done()
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("session: serial monitor: %v", err)
		}
	}()
	go func() {
		defer hw.done.Done()
		src.Run(ctx)
	}()

	s.sim.SetHardwareActive(true)
	s.sampler.SetSource(src)
	s.hw = hw
	monitoring.Logf("session: hardware connected")
	return nil
}

// DisconnectHardware closes the serial port and falls back to simulation.
func (s *Session) DisconnectHardware() error {
	s.mu.Lock()
	hw := s.hw
	s.hw = nil
	s.mu.Unlock()
	if hw == nil {
		return ErrNoHardware
	}

	hw.cancel()
	err := hw.mux.Close()
	hw.done.Wait()

	s.sampler.SetSource(s.sim)
	s.sim.SetHardwareActive(false)
	monitoring.Logf("session: hardware disconnected, simulating")
	if err != nil {
		return fmt.Errorf("close serial: %w", err)
	}
	return nil
}

// SimulateTouch triggers a synthetic touch. It fails with
// sensor.ErrHardwareActive while a real sensor is connected.
func (s *Session) SimulateTouch() error {
	return s.sim.Touch()
}

// SetAudio feeds the synth from the sampling loop. The synth is built on
// first use and suspended, not torn down, when audio is turned off.
func (s *Session) SetAudio(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		if err := s.engine.Activate(); err != nil {
			return err
		}
	} else {
		s.engine.Suspend()
	}
	s.audioOn = on
	s.sampler.SetAudio(s.engine, s.threshold, on)
	return nil
}

// SetAudioThreshold moves the synth gate.
func (s *Session) SetAudioThreshold(threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
	s.sampler.SetAudioThreshold(threshold)
}

// SetVoice turns spoken replies on or off.
func (s *Session) SetVoice(on bool) {
	s.controller.SetVoice(on)
}

// SetStreaming starts or stops telemetry. Streaming needs a running
// session; turning it off is always allowed.
func (s *Session) SetStreaming(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !on {
		s.streaming.Stop()
		s.streaming = nil
		return nil
	}
	if !s.active.Load() {
		return ErrNotStarted
	}
	if s.streaming == nil {
		s.streaming = s.streamer.Start(s.ctx)
	}
	return nil
}

// Say submits a text message from the user without waiting for the reply.
func (s *Session) Say(text string) error {
	return s.submit(interaction.Request{
		Kind: interaction.KindText,
		Text: text,
	})
}

func (s *Session) sourceLocked() string {
	if s.hw != nil {
		return "serial"
	}
	return s.sim.Name()
}

// Status snapshots the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{
		ID:        s.id,
		Active:    s.active.Load(),
		Source:    s.sourceLocked(),
		Audio:     s.audioOn,
		Streaming: s.streaming != nil,
		Threshold: s.threshold,
	}
	if s.hw != nil {
		link := s.hw.mux.Stats()
		st.Link = &link
	}
	s.mu.Unlock()
	st.Voice = s.controller.VoiceEnabled()
	st.Busy = s.controller.Busy()
	st.State = s.sampler.Snapshot()
	st.Touching = st.State.Value > s.touchThreshold
	st.Stream = s.streamer.Stats()
	return st
}

func (s *Session) Snapshot() sensor.HardwareState { return s.sampler.Snapshot() }

func (s *Session) Chart() []sensor.ChartPoint { return s.sampler.Chart().Points() }

func (s *Session) History() *interaction.History { return s.controller.History() }

func (s *Session) Insight() (telemetry.HealthInsight, bool) { return s.streamer.Latest() }

func (s *Session) Speaker() *speech.Speaker { return s.speaker }

func (s *Session) Engine() *synth.Engine { return s.engine }

// Close stops the session, releases the serial port and tears down the
// synth. The session cannot be restarted afterwards.
func (s *Session) Close() error {
	s.Stop()
	var errs []error
	if err := s.DisconnectHardware(); err != nil && !errors.Is(err, ErrNoHardware) {
		errs = append(errs, err)
	}
	errs = append(errs, s.engine.Close())
	return errors.Join(errs...)
}
