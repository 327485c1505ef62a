package serialmux

import (
	"math"
	"strconv"
	"strings"
)

// Reading is one decoded sensor line. Raw is the authoritative magnitude.
type Reading struct {
	TopPoint     float64 `json:"top"`
	Interpolated float64 `json:"val"`
	Raw          int     `json:"raw"`
}

var lineFields = [3]string{"TOP:", "VAL:", "INT:"}

// ParseLine decodes a "TOP:<float>,VAL:<float>,INT:<float>" line. The INT
// field rounded to the nearest integer becomes Reading.Raw. Anything else
// reports ok=false and should be dropped.
func ParseLine(line string) (r Reading, ok bool) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != len(lineFields) {
		return Reading{}, false
	}

	var vals [3]float64
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, lineFields[i]) {
			return Reading{}, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(part[len(lineFields[i]):]), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Reading{}, false
		}
		vals[i] = v
	}

	return Reading{
		TopPoint:     vals[0],
		Interpolated: vals[1],
		Raw:          int(math.Round(vals[2])),
	}, true
}
