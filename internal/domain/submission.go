package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidSubmission is returned for manual readings that cannot be accepted.
var ErrInvalidSubmission = errors.New("invalid submission")

// Submission is a manually entered or sensor-originated reading before it is
// stamped with the current time.
type Submission struct {
	Floor FloorID
	Count int
}

// NewSubmission validates a submission against the building. The count is
// accepted as a JSON number or a decimal string, as entered in a form.
func NewSubmission(b Building, floor any, count any) (Submission, error) {
	f, ok := floorValue(floor)
	if !ok {
		return Submission{}, fmt.Errorf("%w: floor is required", ErrInvalidSubmission)
	}
	if !b.Has(f) {
		return Submission{}, fmt.Errorf("%w: unknown floor %q", ErrInvalidSubmission, f)
	}
	n, err := parseCount(count)
	if err != nil {
		return Submission{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	return Submission{Floor: f, Count: n}, nil
}

func parseCount(v any) (int, error) {
	if s, ok := v.(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, errors.New("count must be a whole number")
		}
		v = n
	}
	if n, ok := v.(json.Number); ok {
		return parseCount(n.String())
	}
	f, ok := numberValue(v)
	if !ok {
		return 0, errors.New("count must be a whole number")
	}
	if f != math.Trunc(f) {
		return 0, errors.New("count must be a whole number")
	}
	if f < 0 {
		return 0, errors.New("count must not be negative")
	}
	if f > maxCount {
		return 0, errors.New("count is too large")
	}
	return int(f), nil
}

// Stamp turns the submission into a raw feed record timestamped now.
func (s Submission) Stamp() RawReading {
	return RawReading{
		Floor:     string(s.Floor),
		Count:     s.Count,
		Timestamp: clock.Now().UnixMilli(),
	}
}
