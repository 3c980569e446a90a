package domain

import "sort"

// Bucket holds the per-floor counts reported at one exact timestamp.
type Bucket struct {
	Timestamp int64
	PerFloor  map[FloorID]int
}

// GroupByTimestamp folds readings into one bucket per distinct timestamp,
// sorted ascending. Readings only merge on identical epoch values. When the
// same floor reports twice at one timestamp, the later reading overwrites the
// earlier. Floors outside the building are skipped.
func GroupByTimestamp(readings []Reading, b Building) []Bucket {
	byTS := make(map[int64]int)
	buckets := make([]Bucket, 0)

	for _, r := range readings {
		if !b.Has(r.Floor) {
			continue
		}
		i, ok := byTS[r.Timestamp]
		if !ok {
			i = len(buckets)
			byTS[r.Timestamp] = i
			buckets = append(buckets, Bucket{Timestamp: r.Timestamp, PerFloor: make(map[FloorID]int)})
		}
		buckets[i].PerFloor[r.Floor] = r.Count
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Timestamp < buckets[j].Timestamp
	})
	return buckets
}

// CountUnknownFloors returns how many readings name a floor the building
// does not have.
func CountUnknownFloors(readings []Reading, b Building) int {
	n := 0
	for _, r := range readings {
		if !b.Has(r.Floor) {
			n++
		}
	}
	return n
}
