package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/banshee-data/plantconnect/internal/llm"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metric statuses.
const (
	StatusOK       = "ok"
	StatusLow      = "low"
	StatusHigh     = "high"
	StatusCritical = "critical"
)

// Stress categories, from best to worst.
const (
	StressNone     = "none"
	StressMild     = "mild"
	StressModerate = "moderate"
	StressCritical = "critical"
)

// WindowStats summarises the events an insight was computed from.
type WindowStats struct {
	Count           int       `json:"count"`
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	MeanCapacitance float64   `json:"mean_capacitance"`
	StdCapacitance  float64   `json:"std_capacitance"`
	MinCapacitance  float64   `json:"min_capacitance"`
	MaxCapacitance  float64   `json:"max_capacitance"`
	MeanMoisturePct float64   `json:"mean_moisture_pct"`
}

type HealthInsight struct {
	DeviceID        string            `json:"device_id"`
	GeneratedAt     time.Time         `json:"generated_at"`
	HealthScore     int               `json:"health_score"`
	StressCategory  string            `json:"stress_category"`
	AnomalyDetected bool              `json:"anomaly_detected"`
	Summary         string            `json:"summary"`
	Recommendations []string          `json:"recommendations"`
	InputsWindow    WindowStats       `json:"inputs_window"`
	Metrics         map[string]string `json:"metrics"`
	Source          string            `json:"source"`
}

// Critical reports whether the insight warrants an alert.
func (h HealthInsight) Critical() bool {
	return h.AnomalyDetected || h.StressCategory == StressCritical
}

// InsightGenerator derives an insight from a window of events, oldest first.
type InsightGenerator interface {
	Insight(ctx context.Context, events []SensorEvent) (HealthInsight, error)
}

// ErrNoEvents is returned for an empty window.
var ErrNoEvents = errors.New("telemetry: no events to analyse")

// RuleInsights scores the window with fixed thresholds.
type RuleInsights struct {
	// AnomalyZ is the z-score of the newest capacitance, against the rest of
	// the window, that counts as an anomaly.
	AnomalyZ float64
	Now      func() time.Time
}

type band struct {
	name                         string
	critLo, warnLo, warnHi, crit float64
	lowAdvice, highAdvice        string
}

var bands = []band{
	{"soil_moisture", 15, 30, 85, 95, "Water the plant; the soil is drying out.", "Hold off watering and check drainage."},
	{"temperature", 8, 15, 30, 36, "Move the plant somewhere warmer.", "Move the plant out of the heat."},
	{"humidity", 15, 30, 80, 95, "Mist the leaves or add a humidity tray.", "Improve air circulation around the plant."},
	{"water_tank", 5, 20, math.Inf(1), math.Inf(1), "Refill the water tank.", ""},
}

func classify(b band, v float64) string {
	switch {
	case v < b.critLo || v > b.crit:
		return StatusCritical
	case v < b.warnLo:
		return StatusLow
	case v > b.warnHi:
		return StatusHigh
	}
	return StatusOK
}

func (r RuleInsights) Insight(_ context.Context, events []SensorEvent) (HealthInsight, error) {
	if len(events) == 0 {
		return HealthInsight{}, ErrNoEvents
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	zLimit := r.AnomalyZ
	if zLimit <= 0 {
		zLimit = 3
	}

	caps := make([]float64, len(events))
	moist := make([]float64, len(events))
	for i, ev := range events {
		caps[i] = float64(ev.Vitality.Capacitance)
		moist[i] = ev.Soil.MoisturePct
	}
	mean, std := stat.MeanStdDev(caps, nil)
	if len(caps) < 2 {
		std = 0
	}
	latest := events[len(events)-1]

	values := map[string]float64{
		"soil_moisture": latest.Soil.MoisturePct,
		"temperature":   latest.Environment.TemperatureC,
		"humidity":      latest.Environment.HumidityPct,
	}
	if latest.Soil.WaterTankLevelPct != nil {
		values["water_tank"] = *latest.Soil.WaterTankLevelPct
	}

	ins := HealthInsight{
		DeviceID:    latest.DeviceID,
		GeneratedAt: now(),
		Metrics:     make(map[string]string),
		InputsWindow: WindowStats{
			Count:           len(events),
			From:            events[0].Timestamp,
			To:              latest.Timestamp,
			MeanCapacitance: round1(mean),
			StdCapacitance:  round1(std),
			MinCapacitance:  floats.Min(caps),
			MaxCapacitance:  floats.Max(caps),
			MeanMoisturePct: round1(stat.Mean(moist, nil)),
		},
		Recommendations: []string{},
		Source:          "rules",
	}

	score := 100
	var problems []string
	for _, b := range bands {
		v, ok := values[b.name]
		if !ok {
			continue
		}
		st := classify(b, v)
		ins.Metrics[b.name] = st
		switch st {
		case StatusCritical:
			score -= 30
		case StatusLow, StatusHigh:
			score -= 12
		}
		if st == StatusOK {
			continue
		}
		problems = append(problems, fmt.Sprintf("%s is %s", strings.ReplaceAll(b.name, "_", " "), st))
		advice := b.lowAdvice
		if st == StatusHigh || (st == StatusCritical && v > b.crit) {
			advice = b.highAdvice
		}
		if advice != "" {
			ins.Recommendations = append(ins.Recommendations, advice)
		}
	}

	if std > 0 && len(events) > 2 {
		// score the newest reading against the window before it
		prev := caps[:len(caps)-1]
		pm, ps := stat.MeanStdDev(prev, nil)
		if ps > 0 && math.Abs(caps[len(caps)-1]-pm)/ps > zLimit {
			ins.AnomalyDetected = true
		}
	}
	if latest.Vitality.TouchEventsLastMin > 30 {
		ins.AnomalyDetected = true
	}
	if ins.AnomalyDetected {
		score -= 10
		problems = append(problems, "capacitance is behaving unusually")
		ins.Recommendations = append(ins.Recommendations, "Check the sensor lead and give the plant a rest from handling.")
	}

	ins.HealthScore = max(0, min(100, score))
	ins.StressCategory = stressFor(ins.HealthScore)
	ins.Summary = fmt.Sprintf("Health %d/100 (%s stress).", ins.HealthScore, ins.StressCategory)
	if len(problems) > 0 {
		ins.Summary += " " + capitalise(strings.Join(problems, "; ")) + "."
	} else {
		ins.Summary += " All readings are within range."
	}
	return ins, nil
}

func stressFor(score int) string {
	switch {
	case score >= 80:
		return StressNone
	case score >= 60:
		return StressMild
	case score >= 40:
		return StressModerate
	}
	return StressCritical
}

func capitalise(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Responder is the text generation capability HybridInsights borrows.
type Responder interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// HybridInsights scores with Rules and asks Responder to phrase the
// summary. The rule summary stays if generation fails.
type HybridInsights struct {
	Rules     RuleInsights
	Responder Responder
}

func (h HybridInsights) Insight(ctx context.Context, events []SensorEvent) (HealthInsight, error) {
	ins, err := h.Rules.Insight(ctx, events)
	if err != nil || h.Responder == nil {
		return ins, err
	}
	facts, err := json.Marshal(struct {
		Score   int               `json:"health_score"`
		Stress  string            `json:"stress_category"`
		Anomaly bool              `json:"anomaly_detected"`
		Metrics map[string]string `json:"metrics"`
		Window  WindowStats       `json:"inputs_window"`
	}{ins.HealthScore, ins.StressCategory, ins.AnomalyDetected, ins.Metrics, ins.InputsWindow})
	if err != nil {
		return ins, nil
	}
	text, err := h.Responder.Generate(ctx, llm.Request{
		System:      "You are a horticulture assistant. Summarise plant health findings for the owner in at most two plain sentences. Do not invent readings.",
		Prompt:      "Findings: " + string(facts),
		Temperature: 0.3,
		MaxTokens:   120,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		return ins, nil
	}
	ins.Summary = strings.TrimSpace(text)
	ins.Source = "hybrid"
	return ins, nil
}

// Alert is the compact record published for critical insights.
type Alert struct {
	DeviceID    string    `json:"device_id"`
	Timestamp   time.Time `json:"timestamp"`
	Severity    string    `json:"severity"`
	HealthScore int       `json:"health_score"`
	Message     string    `json:"message"`
}

func alertFor(ins HealthInsight) Alert {
	sev := "warning"
	if ins.StressCategory == StressCritical {
		sev = "critical"
	}
	return Alert{
		DeviceID:    ins.DeviceID,
		Timestamp:   ins.GeneratedAt,
		Severity:    sev,
		HealthScore: ins.HealthScore,
		Message:     ins.Summary,
	}
}
