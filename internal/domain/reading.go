package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxCount bounds accepted device counts. Larger values are garbage from a
// misbehaving sensor, not occupancy.
const maxCount = math.MaxInt32

// maxTimestamp bounds accepted epoch-millisecond timestamps so the float to
// int64 conversion stays exact enough and never overflows.
const maxTimestamp = 1 << 53

// RawReading is a reading as it arrives from the feed. Each field may be
// absent (nil) or hold any JSON type; nothing is trusted until Normalize.
type RawReading struct {
	Floor     any `json:"floor,omitempty"`
	Count     any `json:"count,omitempty"`
	Timestamp any `json:"timestamp,omitempty"`
}

// Reading is one validated occupancy observation.
type Reading struct {
	Floor     FloorID `json:"floor"`
	Count     int     `json:"count"`
	Timestamp int64   `json:"timestamp"` // epoch milliseconds
}

// ParseRawReading decodes a JSON object into a RawReading. Only structural
// JSON errors are reported; field-level problems are left to Normalize.
func ParseRawReading(data []byte) (RawReading, error) {
	var raw RawReading
	if err := json.Unmarshal(data, &raw); err != nil {
		return RawReading{}, fmt.Errorf("parse raw reading: %w", err)
	}
	return raw, nil
}

// Normalize validates raw readings in order and returns the ones that pass,
// together with the number dropped. Input order is preserved so that
// downstream last-wins rules follow feed order.
func Normalize(raws []RawReading) ([]Reading, int) {
	out := make([]Reading, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		r, ok := raw.toReading()
		if !ok {
			dropped++
			continue
		}
		out = append(out, r)
	}
	return out, dropped
}

func (raw RawReading) toReading() (Reading, bool) {
	count, ok := numberValue(raw.Count)
	if !ok || count < 0 || count > maxCount || count != math.Trunc(count) {
		return Reading{}, false
	}
	ts, ok := numberValue(raw.Timestamp)
	if !ok || math.Abs(ts) > maxTimestamp {
		return Reading{}, false
	}
	floor, ok := floorValue(raw.Floor)
	if !ok {
		return Reading{}, false
	}
	return Reading{
		Floor:     floor,
		Count:     int(count),
		Timestamp: int64(ts),
	}, true
}

// numberValue accepts JSON numbers only: strings holding digits are rejected.
func numberValue(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// floorValue coerces a floor to its canonical string form: 4, 4.0 and "4"
// all become "4".
func floorValue(v any) (FloorID, bool) {
	switch f := v.(type) {
	case string:
		f = strings.TrimSpace(f)
		if f == "" {
			return "", false
		}
		return FloorID(f), true
	case FloorID:
		return floorValue(string(f))
	case nil, bool:
		return "", false
	}
	n, ok := numberValue(v)
	if !ok {
		return "", false
	}
	return FloorID(strconv.FormatFloat(n, 'f', -1, 64)), true
}
