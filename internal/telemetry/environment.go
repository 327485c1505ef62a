package telemetry

import (
	"math"
	"math/rand/v2"
	"time"
)

// EnvSim is a bounded random walk standing in for the environmental
// sensors the hardware does not have. Each Step advances one second.
type EnvSim struct {
	rng *rand.Rand

	temp     float64
	humidity float64
	moisture float64
	soilTemp float64
	tank     float64
	leaf     float64
	growth   float64

	watering int // remaining ticks of the current watering burst
}

const (
	moistureDecay     = 0.05
	wateringThreshold = 30.0
	wateringTicks     = 6
	wateringGain      = 4.0
	tankPerTick       = 1.5
	tankReserve       = 5.0
)

func NewEnvSim(seed uint64) *EnvSim {
	return &EnvSim{
		rng:      rand.New(rand.NewPCG(seed, seed^0x5eed)),
		temp:     22,
		humidity: 55,
		moisture: 60,
		soilTemp: 20,
		tank:     100,
		leaf:     0.8,
		growth:   0.5,
	}
}

// walk adds gaussian noise then pulls the value back softly when it strays
// outside [lo, hi]. It never hard-clips.
func (e *EnvSim) walk(v, sigma, lo, hi float64) float64 {
	v += e.rng.NormFloat64() * sigma
	switch {
	case v < lo:
		v += (lo - v) * 0.5
	case v > hi:
		v -= (v - hi) * 0.5
	}
	return v
}

// dayLight follows a sine over the local day, dark from 18:00 to 06:00.
func dayLight(now time.Time) float64 {
	h := float64(now.Hour()) + float64(now.Minute())/60
	s := math.Sin(2 * math.Pi * (h - 6) / 24)
	if s < 0 {
		return 0
	}
	return s * 20000
}

// Step returns the simulated readings for now. The vitality part carries
// only the simulated indices; the caller fills in the live values.
func (e *EnvSim) Step(now time.Time) (Environment, Soil, Vitality) {
	e.temp = e.walk(e.temp, 0.05, 16, 30)
	e.humidity = e.walk(e.humidity, 0.3, 30, 80)
	e.soilTemp += (e.temp - 2 - e.soilTemp) * 0.02

	if e.watering == 0 && e.moisture < wateringThreshold && e.tank > tankReserve {
		e.watering = wateringTicks
	}
	if e.watering > 0 {
		e.watering--
		e.moisture += wateringGain
		e.tank = math.Max(0, e.tank-tankPerTick)
	} else {
		e.moisture -= moistureDecay + math.Abs(e.rng.NormFloat64())*0.02
	}
	e.moisture = math.Max(0, math.Min(100, e.moisture))

	e.leaf = e.walk(e.leaf, 0.002, 0.6, 0.95)
	e.growth = math.Min(1, e.growth+0.0001)

	light := math.Max(0, dayLight(now)+e.rng.NormFloat64()*50)
	env := Environment{
		TemperatureC: round1(e.temp),
		HumidityPct:  round1(e.humidity),
		LightLux:     math.Round(light),
	}
	soil := Soil{
		MoisturePct:       round1(e.moisture),
		SoilTempC:         round1(e.soilTemp),
		WaterTankLevelPct: ptr(round1(e.tank)),
	}
	vit := Vitality{
		LeafColorIndex: ptr(math.Round(e.leaf*100) / 100),
		GrowthIndex:    ptr(math.Round(e.growth*1000) / 1000),
	}
	return env, soil, vit
}

// Watering reports whether a watering burst is in progress.
func (e *EnvSim) Watering() bool { return e.watering > 0 }
