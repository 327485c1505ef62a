package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Environment variable names.
const (
	EnvGeminiKey  = "PLANTCONNECT_GEMINI_API_KEY"
	EnvModels     = "PLANTCONNECT_MODELS"
	EnvTTSKey     = "PLANTCONNECT_TTS_API_KEY"
	EnvTTSVoice   = "PLANTCONNECT_TTS_VOICE_ID"
	EnvMQTTURL    = "PLANTCONNECT_MQTT_URL"
	EnvSinkURL    = "PLANTCONNECT_SINK_URL"
	EnvSinkToken  = "PLANTCONNECT_SINK_TOKEN"
	EnvDeviceID   = "PLANTCONNECT_DEVICE_ID"
	EnvSerialPort = "PLANTCONNECT_SERIAL_PORT"
)

// Endpoints are the external capabilities. An empty key or URL means the
// capability is not configured; nothing falls back to a built-in key.
type Endpoints struct {
	GeminiAPIKey string   `json:"-"`
	Models       []string `json:"models,omitempty"`
	TTSAPIKey    string   `json:"-"`
	TTSVoiceID   string   `json:"tts_voice_id,omitempty"`
	MQTTURL      string   `json:"mqtt_url,omitempty"`
	SinkURL      string   `json:"sink_url,omitempty"`
	SinkToken    string   `json:"-"`
	DeviceID     string   `json:"device_id,omitempty"`
	SerialPort   string   `json:"serial_port,omitempty"`
}

// FromEnv reads endpoints through getenv; nil means os.Getenv.
func FromEnv(getenv func(string) string) Endpoints {
	if getenv == nil {
		getenv = os.Getenv
	}
	return Endpoints{
		GeminiAPIKey: strings.TrimSpace(getenv(EnvGeminiKey)),
		Models:       splitList(getenv(EnvModels)),
		TTSAPIKey:    strings.TrimSpace(getenv(EnvTTSKey)),
		TTSVoiceID:   strings.TrimSpace(getenv(EnvTTSVoice)),
		MQTTURL:      strings.TrimSpace(getenv(EnvMQTTURL)),
		SinkURL:      strings.TrimSpace(getenv(EnvSinkURL)),
		SinkToken:    strings.TrimSpace(getenv(EnvSinkToken)),
		DeviceID:     strings.TrimSpace(getenv(EnvDeviceID)),
		SerialPort:   strings.TrimSpace(getenv(EnvSerialPort)),
	}
}

// Override keys accepted from the local settings store.
const (
	KeyGeminiAPIKey = "gemini_api_key"
	KeyModels       = "models"
	KeyTTSAPIKey    = "tts_api_key"
	KeyTTSVoiceID   = "tts_voice_id"
	KeyMQTTURL      = "mqtt_url"
	KeySinkURL      = "sink_url"
	KeySinkToken    = "sink_token"
	KeyDeviceID     = "device_id"
	KeySerialPort   = "serial_port"
)

// ApplyOverrides layers stored settings over e. Unknown keys are returned
// so the caller can warn about them. A stored empty value clears the field.
func (e *Endpoints) ApplyOverrides(m map[string]string) (unknown []string) {
	for k, v := range m {
		v = strings.TrimSpace(v)
		switch k {
		case KeyGeminiAPIKey:
			e.GeminiAPIKey = v
		case KeyModels:
			e.Models = splitList(v)
		case KeyTTSAPIKey:
			e.TTSAPIKey = v
		case KeyTTSVoiceID:
			e.TTSVoiceID = v
		case KeyMQTTURL:
			e.MQTTURL = v
		case KeySinkURL:
			e.SinkURL = v
		case KeySinkToken:
			e.SinkToken = v
		case KeyDeviceID:
			e.DeviceID = v
		case KeySerialPort:
			e.SerialPort = v
		default:
			unknown = append(unknown, k)
		}
	}
	return unknown
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadDotEnv loads KEY=VALUE lines from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open env file %q: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		val = unquote(strings.TrimSpace(val))
		if err := os.Setenv(key, val); err != nil {
			return fmt.Errorf("set env %q from %q: %w", key, path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan env file %q: %w", path, err)
	}
	return nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
