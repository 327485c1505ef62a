// Package telemetry streams sensor events to the event sink and derives
// periodic health insights from a rolling window of them.
package telemetry

import (
	"math"
	"time"
)

// Sink topics.
const (
	TopicSensorEvents   = "sensor-events"
	TopicHealthInsights = "health-insights"
	TopicCriticalAlerts = "critical-alerts"
)

type Environment struct {
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
	LightLux     float64 `json:"light_lux"`
}

type Soil struct {
	MoisturePct       float64  `json:"moisture_pct"`
	SoilTempC         float64  `json:"soil_temp_c"`
	WaterTankLevelPct *float64 `json:"water_tank_level_pct,omitempty"`
}

type Vitality struct {
	Capacitance        int      `json:"capacitance"`
	TouchEventsLastMin int      `json:"touch_events_last_min"`
	LeafColorIndex     *float64 `json:"leaf_color_index,omitempty"`
	GrowthIndex        *float64 `json:"growth_index,omitempty"`
}

// SensorEvent is one telemetry record.
type SensorEvent struct {
	DeviceID    string            `json:"device_id"`
	PlantType   string            `json:"plant_type"`
	Timestamp   time.Time         `json:"timestamp"`
	Environment Environment       `json:"environment"`
	Soil        Soil              `json:"soil"`
	Vitality    Vitality          `json:"vitality"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// round1 keeps one decimal place, which is what the sink schema promises.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func ptr(v float64) *float64 { return &v }
