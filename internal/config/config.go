// Package config loads the daemon's tunables from a file and its endpoints
// and secrets from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/plantconnect/internal/synth"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const maxFileSize = 1 << 20

// Config holds tunables. Every field is optional; the Get* accessors
// supply defaults for anything a file leaves out.
type Config struct {
	DeviceID  *string `json:"device_id,omitempty" toml:"device_id,omitempty" yaml:"device_id,omitempty"`
	PlantType *string `json:"plant_type,omitempty" toml:"plant_type,omitempty" yaml:"plant_type,omitempty"`

	// Sampling and calibration
	SamplePeriod *string  `json:"sample_period,omitempty" toml:"sample_period,omitempty" yaml:"sample_period,omitempty"` // duration string like "33ms"
	AdaptGate    *float64 `json:"adapt_gate,omitempty" toml:"adapt_gate,omitempty" yaml:"adapt_gate,omitempty"`
	AdaptRate    *float64 `json:"adapt_rate,omitempty" toml:"adapt_rate,omitempty" yaml:"adapt_rate,omitempty"`

	// Touch
	TouchThreshold *int    `json:"touch_threshold,omitempty" toml:"touch_threshold,omitempty" yaml:"touch_threshold,omitempty"`
	TouchDelay     *string `json:"touch_delay,omitempty" toml:"touch_delay,omitempty" yaml:"touch_delay,omitempty"`

	// Audio
	AudioThreshold *float64           `json:"audio_threshold,omitempty" toml:"audio_threshold,omitempty" yaml:"audio_threshold,omitempty"`
	SampleRate     *int               `json:"sample_rate,omitempty" toml:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	Synth          *synth.SynthParams `json:"synth,omitempty" toml:"synth,omitempty" yaml:"synth,omitempty"`

	// Telemetry
	EventPeriod   *string `json:"event_period,omitempty" toml:"event_period,omitempty" yaml:"event_period,omitempty"`
	InsightPeriod *string `json:"insight_period,omitempty" toml:"insight_period,omitempty" yaml:"insight_period,omitempty"`
	MinEvents     *int    `json:"min_events,omitempty" toml:"min_events,omitempty" yaml:"min_events,omitempty"`
	WindowSize    *int    `json:"window_size,omitempty" toml:"window_size,omitempty" yaml:"window_size,omitempty"`
}

// Load reads a config file. The format follows the extension: .json,
// .toml, .yaml or .yml.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".toml", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must be .json, .toml or .yaml, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// synth fields left out of the file keep their defaults
	defaults := synth.DefaultParams()
	cfg := &Config{Synth: &defaults}
	switch ext {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s config: %w", strings.TrimPrefix(ext, "."), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that set values make sense.
func (c *Config) Validate() error {
	durations := []struct {
		name string
		v    *string
	}{
		{"sample_period", c.SamplePeriod},
		{"touch_delay", c.TouchDelay},
		{"event_period", c.EventPeriod},
		{"insight_period", c.InsightPeriod},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		v, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, v)
		}
	}

	if c.AdaptRate != nil && (*c.AdaptRate <= 0 || *c.AdaptRate > 1) {
		return fmt.Errorf("adapt_rate must be in (0, 1], got %f", *c.AdaptRate)
	}
	if c.AdaptGate != nil && *c.AdaptGate <= 0 {
		return fmt.Errorf("adapt_gate must be positive, got %f", *c.AdaptGate)
	}
	if c.TouchThreshold != nil && *c.TouchThreshold <= 0 {
		return fmt.Errorf("touch_threshold must be positive, got %d", *c.TouchThreshold)
	}
	if c.AudioThreshold != nil && (*c.AudioThreshold < 0 || *c.AudioThreshold >= 120) {
		return fmt.Errorf("audio_threshold must be in [0, 120), got %f", *c.AudioThreshold)
	}
	if c.SampleRate != nil && (*c.SampleRate < 8000 || *c.SampleRate > 192000) {
		return fmt.Errorf("sample_rate must be between 8000 and 192000, got %d", *c.SampleRate)
	}
	if c.MinEvents != nil && *c.MinEvents < 1 {
		return fmt.Errorf("min_events must be at least 1, got %d", *c.MinEvents)
	}
	if c.WindowSize != nil && *c.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1, got %d", *c.WindowSize)
	}
	if c.MinEvents != nil && c.WindowSize != nil && *c.MinEvents > *c.WindowSize {
		return fmt.Errorf("min_events (%d) cannot exceed window_size (%d)", *c.MinEvents, *c.WindowSize)
	}
	if s := c.Synth; s != nil {
		if s.FMin <= 0 || s.FMax <= s.FMin {
			return fmt.Errorf("synth fmin/fmax must satisfy 0 < fmin < fmax, got %g/%g", s.FMin, s.FMax)
		}
		if s.MinVol < 0 || s.AmpMax < s.MinVol {
			return fmt.Errorf("synth min_vol/amp_max must satisfy 0 <= min_vol <= amp_max, got %g/%g", s.MinVol, s.AmpMax)
		}
	}
	return nil
}

func duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (c *Config) GetDeviceID() string {
	if c.DeviceID == nil || *c.DeviceID == "" {
		return "plant-001"
	}
	return *c.DeviceID
}

func (c *Config) GetPlantType() string {
	if c.PlantType == nil || *c.PlantType == "" {
		return "boston-fern"
	}
	return *c.PlantType
}

func (c *Config) GetSamplePeriod() time.Duration {
	return duration(c.SamplePeriod, 33*time.Millisecond)
}

func (c *Config) GetAdaptGate() float64 {
	if c.AdaptGate == nil {
		return 10
	}
	return *c.AdaptGate
}

func (c *Config) GetAdaptRate() float64 {
	if c.AdaptRate == nil {
		return 0.01
	}
	return *c.AdaptRate
}

func (c *Config) GetTouchThreshold() int {
	if c.TouchThreshold == nil {
		return 15
	}
	return *c.TouchThreshold
}

// GetTouchDelay is not clamped here; the debouncer keeps it in range.
func (c *Config) GetTouchDelay() time.Duration {
	return duration(c.TouchDelay, 400*time.Millisecond)
}

func (c *Config) GetAudioThreshold() float64 {
	if c.AudioThreshold == nil {
		return 50
	}
	return *c.AudioThreshold
}

func (c *Config) GetSampleRate() int {
	if c.SampleRate == nil {
		return synth.DefaultSampleRate
	}
	return *c.SampleRate
}

func (c *Config) GetSynth() synth.SynthParams {
	if c.Synth == nil {
		return synth.DefaultParams()
	}
	return *c.Synth
}

func (c *Config) GetEventPeriod() time.Duration {
	return duration(c.EventPeriod, time.Second)
}

func (c *Config) GetInsightPeriod() time.Duration {
	return duration(c.InsightPeriod, 10*time.Second)
}

func (c *Config) GetMinEvents() int {
	if c.MinEvents == nil {
		return 5
	}
	return *c.MinEvents
}

func (c *Config) GetWindowSize() int {
	if c.WindowSize == nil {
		return 20
	}
	return *c.WindowSize
}
