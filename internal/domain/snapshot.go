package domain

// Snapshots holds the latest reading of each configured floor, aligned with
// Building.Floors. A nil slot means the floor has never reported.
type Snapshots []*Reading

// ResolveSnapshots picks, per configured floor, the reading with the highest
// timestamp. On equal timestamps the later reading in input order wins.
func ResolveSnapshots(readings []Reading, b Building) Snapshots {
	latest := make(map[FloorID]Reading, len(b.Floors))
	for _, r := range readings {
		if !b.Has(r.Floor) {
			continue
		}
		if prev, ok := latest[r.Floor]; ok && r.Timestamp < prev.Timestamp {
			continue
		}
		latest[r.Floor] = r
	}

	out := make(Snapshots, len(b.Floors))
	for i, f := range b.Floors {
		if r, ok := latest[f]; ok {
			out[i] = &r
		}
	}
	return out
}

// TotalCount sums the counts of all known snapshots. Missing floors add 0.
func TotalCount(s Snapshots) int {
	total := 0
	for _, r := range s {
		if r != nil {
			total += r.Count
		}
	}
	return total
}
