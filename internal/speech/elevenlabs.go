package speech

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/banshee-data/plantconnect/internal/httputil"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io"
	// DefaultVoiceID is a soft, warm stock voice.
	DefaultVoiceID      = "EXAVITQu4vr4xnSDxMaL"
	DefaultVoiceModel   = "eleven_multilingual_v2"
	maxElevenLabsAudio  = 8 << 20
	elevenLabsMediaType = "audio/mpeg"
)

// ElevenLabs renders speech with the ElevenLabs REST API.
type ElevenLabs struct {
	client  httputil.HTTPClient
	apiKey  string
	voiceID string
	model   string
	baseURL string
}

// NewElevenLabs returns nil when apiKey is empty so callers fall straight
// through to the baseline.
func NewElevenLabs(client httputil.HTTPClient, apiKey, voiceID string) *ElevenLabs {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil
	}
	if client == nil {
		client = httputil.NewClient(0)
	}
	if voiceID = strings.TrimSpace(voiceID); voiceID == "" {
		voiceID = DefaultVoiceID
	}
	return &ElevenLabs{client: client, apiKey: apiKey, voiceID: voiceID, model: DefaultVoiceModel, baseURL: elevenLabsBaseURL}
}

// WithBaseURL points the client somewhere else, mostly for tests.
func (e *ElevenLabs) WithBaseURL(base string) *ElevenLabs {
	if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
		e.baseURL = base
	}
	return e
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

// settingsFor maps an emotion onto voice settings. Lower stability gives a
// livelier read.
func settingsFor(em Emotion) voiceSettings {
	switch em {
	case Excited:
		return voiceSettings{Stability: 0.25, SimilarityBoost: 0.75, Style: 0.8}
	case Happy:
		return voiceSettings{Stability: 0.4, SimilarityBoost: 0.75, Style: 0.6}
	case Calm:
		return voiceSettings{Stability: 0.75, SimilarityBoost: 0.75, Style: 0.2}
	case Troubled:
		return voiceSettings{Stability: 0.6, SimilarityBoost: 0.8, Style: 0.4}
	}
	return voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Style: 0.3}
}

func (e *ElevenLabs) Synthesize(ctx context.Context, u Utterance) (*Clip, error) {
	if strings.TrimSpace(u.Text) == "" {
		return nil, fmt.Errorf("elevenlabs: empty text")
	}
	endpoint := e.baseURL + "/v1/text-to-speech/" + url.PathEscape(e.voiceID)
	body := map[string]any{
		"text":           u.Text,
		"model_id":       e.model,
		"voice_settings": settingsFor(u.Emotion),
	}
	resp, err := httputil.PostJSON(ctx, e.client, endpoint, map[string]string{
		"xi-api-key": e.apiKey,
		"Accept":     elevenLabsMediaType,
	}, body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxElevenLabsAudio))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs: empty audio")
	}
	return &Clip{Text: u.Text, Emotion: u.Emotion, Format: elevenLabsMediaType, Audio: audio}, nil
}
