// Package speech renders plant replies as audio. A remote voice is tried
// first and the browser's own speech synthesis is the fallback.
package speech

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/plantconnect/internal/monitoring"
	"github.com/google/uuid"
)

// Emotion is a delivery hint for the voice.
type Emotion string

const (
	Neutral  Emotion = "neutral"
	Happy    Emotion = "happy"
	Excited  Emotion = "excited"
	Calm     Emotion = "calm"
	Troubled Emotion = "troubled"
)

type Utterance struct {
	Text    string
	Emotion Emotion
}

// Clip is a rendered utterance. Clips from the baseline path carry no audio
// and are spoken by the client.
type Clip struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Emotion   Emotion   `json:"emotion"`
	Provider  string    `json:"provider"`
	Format    string    `json:"format"`
	Audio     []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Synthesizer turns an utterance into a clip.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, u Utterance) (*Clip, error)
}

// Baseline is the always-available path: the text is handed to the client
// for local speech synthesis.
type Baseline struct{}

func (Baseline) Name() string { return "browser" }

func (Baseline) Synthesize(_ context.Context, u Utterance) (*Clip, error) {
	return &Clip{Text: u.Text, Emotion: u.Emotion, Format: "text/plain"}, nil
}

// Speaker renders through primary, falling back to Baseline on any
// failure, and publishes each clip to its listeners.
type Speaker struct {
	primary  Synthesizer
	fallback Synthesizer
	now      func() time.Time

	mu        sync.Mutex
	latest    *Clip
	listeners []func(*Clip)
}

// NewSpeaker returns a speaker. A nil primary always uses the baseline.
func NewSpeaker(primary Synthesizer) *Speaker {
	return &Speaker{primary: primary, fallback: Baseline{}, now: time.Now}
}

// OnClip registers fn to receive every rendered clip.
func (s *Speaker) OnClip(fn func(*Clip)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Speak renders u. It only fails if the fallback fails too, which the
// baseline never does.
func (s *Speaker) Speak(ctx context.Context, u Utterance) error {
	if u.Emotion == "" {
		u.Emotion = Neutral
	}
	var clip *Clip
	var err error
	if s.primary != nil {
		clip, err = s.primary.Synthesize(ctx, u)
		if err != nil {
			monitoring.Logf("speech: %s failed, falling back: %v", s.primary.Name(), err)
		} else {
			clip.Provider = s.primary.Name()
		}
	}
	if clip == nil {
		if clip, err = s.fallback.Synthesize(ctx, u); err != nil {
			return err
		}
		clip.Provider = s.fallback.Name()
	}

	clip.ID = uuid.NewString()
	clip.CreatedAt = s.now()

	s.mu.Lock()
	s.latest = clip
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(clip)
	}
	return nil
}

// Latest returns the most recent clip or nil.
func (s *Speaker) Latest() *Clip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}
