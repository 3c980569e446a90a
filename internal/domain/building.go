package domain

import (
	"errors"
	"fmt"
	"slices"
)

// FloorID identifies a floor, e.g. "4".
type FloorID string

// Building is the static floor configuration: the display order of floors and
// the capacity (people) of each one.
type Building struct {
	Floors   []FloorID
	Capacity map[FloorID]int
}

// DefaultBuilding returns the Geisel Library configuration.
func DefaultBuilding() Building {
	return Building{
		Floors: []FloorID{"1", "2", "4", "5", "6", "7", "8"},
		Capacity: map[FloorID]int{
			"1": 865,
			"2": 1080,
			"4": 80,
			"5": 155,
			"6": 440,
			"7": 195,
			"8": 165,
		},
	}
}

// NewBuilding validates a floor order and capacity table. Floors may be left
// out of the capacity table; their fill ratio is then non-computable.
func NewBuilding(floors []FloorID, capacity map[FloorID]int) (Building, error) {
	if len(floors) == 0 {
		return Building{}, errors.New("at least one floor is required")
	}
	seen := make(map[FloorID]bool, len(floors))
	for _, f := range floors {
		if f == "" {
			return Building{}, errors.New("floor id must not be empty")
		}
		if seen[f] {
			return Building{}, fmt.Errorf("duplicate floor %q", f)
		}
		seen[f] = true
	}
	for f, c := range capacity {
		if !seen[f] {
			return Building{}, fmt.Errorf("capacity given for unknown floor %q", f)
		}
		if c <= 0 {
			return Building{}, fmt.Errorf("capacity for floor %q must be positive", f)
		}
	}
	return Building{Floors: slices.Clone(floors), Capacity: capacity}, nil
}

// Has reports whether f is a configured floor.
func (b Building) Has(f FloorID) bool {
	return slices.Contains(b.Floors, f)
}

// CapacityOf returns the configured capacity of f. The second result is false
// when f has no usable capacity.
func (b Building) CapacityOf(f FloorID) (int, bool) {
	c, ok := b.Capacity[f]
	if !ok || c <= 0 {
		return 0, false
	}
	return c, true
}
