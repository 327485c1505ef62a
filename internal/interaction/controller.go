// Package interaction turns text, touch and session events into
// conversation turns with the plant, one request at a time.
package interaction

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/plantconnect/internal/llm"
	"github.com/banshee-data/plantconnect/internal/monitoring"
	"github.com/banshee-data/plantconnect/internal/sensor"
	"github.com/banshee-data/plantconnect/internal/speech"
	"github.com/google/uuid"
)

// Kind says where a request came from.
type Kind string

const (
	KindText   Kind = "text"
	KindSystem Kind = "system"
	KindTouch  Kind = "touch"
)

// Request is one trigger. Intensity is the deviation for touches.
type Request struct {
	Kind      Kind
	Text      string
	Intensity int
}

// ErrBusy rejects a request while another is in flight. It is not queued.
var ErrBusy = errors.New("interaction: a request is already in flight")

// ErrEmpty rejects a text request with nothing to say.
var ErrEmpty = errors.New("interaction: empty message")

// Responder generates the plant's reply.
type Responder interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// Voice speaks replies when voice mode is on.
type Voice interface {
	Speak(ctx context.Context, u speech.Utterance) error
}

// StateFunc returns the latest sensor snapshot.
type StateFunc func() sensor.HardwareState

// DefaultTimeout bounds one generation including retries.
const DefaultTimeout = 60 * time.Second

type Controller struct {
	responder Responder
	history   *History
	persona   Persona
	state     StateFunc
	voice     Voice
	now       func() time.Time
	timeout   time.Duration

	inflight atomic.Int32
	voiceOn  atomic.Bool
	wg       sync.WaitGroup
}

// Config wires a Controller. Only Responder is required.
type Config struct {
	Responder Responder
	History   *History
	Persona   Persona
	State     StateFunc
	Voice     Voice
	Timeout   time.Duration
	Now       func() time.Time
}

func NewController(cfg Config) *Controller {
	c := &Controller{
		responder: cfg.Responder,
		history:   cfg.History,
		persona:   cfg.Persona,
		state:     cfg.State,
		voice:     cfg.Voice,
		timeout:   cfg.Timeout,
		now:       cfg.Now,
	}
	if c.history == nil {
		c.history = NewHistory()
	}
	if c.persona.Name == "" {
		c.persona = DefaultPersona()
	}
	if c.state == nil {
		c.state = func() sensor.HardwareState { return sensor.HardwareState{} }
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func (c *Controller) History() *History { return c.history }

// Busy reports whether a request is in flight.
func (c *Controller) Busy() bool { return c.inflight.Load() > 0 }

func (c *Controller) SetVoice(on bool) { c.voiceOn.Store(on) }

func (c *Controller) VoiceEnabled() bool { return c.voiceOn.Load() }

// acquire takes the in-flight slot. System requests always get in.
func (c *Controller) acquire(req Request) error {
	if req.Kind == KindText && req.Text == "" {
		return ErrEmpty
	}
	if req.Kind == KindSystem {
		c.inflight.Add(1)
		return nil
	}
	if !c.inflight.CompareAndSwap(0, 1) {
		return ErrBusy
	}
	return nil
}

// Submit runs req to completion. Generation failures become a synthetic
// reply in the history; only ErrBusy and ErrEmpty are returned.
func (c *Controller) Submit(ctx context.Context, req Request) error {
	if err := c.acquire(req); err != nil {
		return err
	}
	defer c.inflight.Add(-1)
	c.run(ctx, req)
	return nil
}

// SubmitAsync takes the in-flight slot now and runs the request on its own
// goroutine.
func (c *Controller) SubmitAsync(ctx context.Context, req Request) error {
	if err := c.acquire(req); err != nil {
		return err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.inflight.Add(-1)
		c.run(ctx, req)
	}()
	return nil
}

// Wait blocks until every SubmitAsync goroutine has returned.
func (c *Controller) Wait() { c.wg.Wait() }

func (c *Controller) run(ctx context.Context, req Request) {
	earlier := c.history.Last(promptHistory)
	c.history.Append(Entry{
		ID:   uuid.NewString(),
		Role: llm.RoleUser,
		Kind: req.Kind,
		Text: userText(req),
		Time: c.now(),
	})

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply := Entry{ID: uuid.NewString(), Role: llm.RoleModel, Kind: req.Kind}
	emotion := emotionFor(req)
	var text string
	var err error
	if c.responder == nil {
		err = llm.ErrNotConfigured
	} else {
		text, err = c.responder.Generate(ctx, buildRequest(c.persona, c.state(), req, earlier))
	}
	if err != nil {
		monitoring.Logf("interaction: %s request failed: %v", req.Kind, err)
		text = failureText(err)
		reply.Synthetic = true
		emotion = speech.Troubled
	}
	reply.Text = text
	reply.Time = c.now()
	c.history.Append(reply)

	if c.voiceOn.Load() && c.voice != nil {
		if err := c.voice.Speak(ctx, speech.Utterance{Text: text, Emotion: emotion}); err != nil {
			monitoring.Logf("interaction: speak: %v", err)
		}
	}
}

func emotionFor(req Request) speech.Emotion {
	switch req.Kind {
	case KindSystem:
		return speech.Happy
	case KindTouch:
		switch {
		case req.Intensity >= 60:
			return speech.Excited
		case req.Intensity >= 25:
			return speech.Happy
		}
		return speech.Calm
	}
	return speech.Neutral
}

func failureText(err error) string {
	switch llm.KindOf(err) {
	case llm.KindNotConfigured:
		return "I can't find my words: no language model is configured. Set PLANTCONNECT_GEMINI_API_KEY so I can talk."
	case llm.KindAuth:
		return "My voice was refused: the language model rejected the API key."
	case llm.KindQuota:
		return "I've been chatting too much and hit my quota. Give me a moment to recover."
	case llm.KindNetwork:
		return "I can't reach the language model right now. Check the network; I'm still listening."
	}
	return "Something went wrong while I was thinking. Try again in a moment."
}
