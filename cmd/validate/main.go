// Command validate checks a reading export before it is used to seed the
// feed. It reports malformed records, readings for floors the building does
// not have, and readings that would be silently replaced because another
// reading shares their floor and timestamp. Per-floor statistics are printed
// using the same derivation the service runs.
//
// Usage:
//
//	go run ./cmd/validate -export data/readings_export.json
//
// The building layout and time zone come from the service environment
// (FLOORS, FLOOR_CAPACITIES, TIME_ZONE, .env).
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/couchcryptid/occupancy-service/internal/config"
	"github.com/couchcryptid/occupancy-service/internal/domain"
	"github.com/couchcryptid/occupancy-service/internal/feed"
)

// maxListed caps the number of errors printed per phase.
const maxListed = 20

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// floorStats summarizes one floor's readings.
type floorStats struct {
	floor    domain.FloorID
	readings int
	peak     int
	latest   *domain.Reading
}

func main() {
	exportPath := flag.String("export", "", "path to a reading export (JSON)")
	flag.Parse()

	if *exportPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(*exportPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open export: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	if code := run(os.Stdout, f, cfg.Building, cfg.Location); code != 0 {
		os.Exit(code)
	}
}

func run(out io.Writer, r io.Reader, b domain.Building, loc *time.Location) int {
	records, err := feed.DecodeExport(r)
	if err != nil {
		fmt.Fprintf(out, "FATAL: decode export: %v\n", err)
		return 1
	}

	fmt.Fprintln(out, "=== Occupancy Export Validation ===")
	fmt.Fprintln(out)

	phases := []*phase{
		validateIDs(records),
		validateReadings(records),
		validateFloors(records, b),
		validateTimestamps(records, b),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-32s %s\n", p.name, status)
	}

	raws := make([]domain.RawReading, len(records))
	for i, rec := range records {
		raws[i] = rec.Raw
	}
	d := domain.Derive(raws, b, loc)

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Records: %d total, %d valid, %d malformed, %d unknown floor\n",
		len(records), d.Readings, d.Dropped, d.UnknownFloor)
	fmt.Fprintf(out, "Buckets: %d distinct timestamps, current total %d\n",
		len(d.Timelines.Total), d.TotalCount)
	printFloorStats(out, collectFloorStats(raws, b), b, loc)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= maxListed {
				fmt.Fprintf(out, "  ... and %d more\n", len(p.errors)-maxListed)
				break
			}
			fmt.Fprintf(out, "  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	return 0
}

func validateIDs(records []feed.Record) *phase {
	p := &phase{name: "Record ids"}
	seen := make(map[string]bool, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			p.errorf("record %d: empty id", i)
			continue
		}
		if seen[rec.ID] {
			p.errorf("record %d: duplicate id %q", i, rec.ID)
		}
		seen[rec.ID] = true
	}
	return p
}

func validateReadings(records []feed.Record) *phase {
	p := &phase{name: "Reading fields"}
	for _, rec := range records {
		if _, dropped := domain.Normalize([]domain.RawReading{rec.Raw}); dropped > 0 {
			p.errorf("%s: malformed reading floor=%v count=%v timestamp=%v",
				rec.ID, rec.Raw.Floor, rec.Raw.Count, rec.Raw.Timestamp)
		}
	}
	return p
}

func validateFloors(records []feed.Record, b domain.Building) *phase {
	p := &phase{name: "Configured floors"}
	for _, rec := range records {
		readings, _ := domain.Normalize([]domain.RawReading{rec.Raw})
		if len(readings) == 1 && !b.Has(readings[0].Floor) {
			p.errorf("%s: floor %q is not configured", rec.ID, readings[0].Floor)
		}
	}
	return p
}

// validateTimestamps reports readings hidden by a later reading with the same
// floor and timestamp.
func validateTimestamps(records []feed.Record, b domain.Building) *phase {
	p := &phase{name: "Unique floor timestamps"}
	type key struct {
		floor domain.FloorID
		ts    int64
	}
	first := make(map[key]string)
	for _, rec := range records {
		readings, _ := domain.Normalize([]domain.RawReading{rec.Raw})
		if len(readings) != 1 || !b.Has(readings[0].Floor) {
			continue
		}
		k := key{floor: readings[0].Floor, ts: readings[0].Timestamp}
		if prev, ok := first[k]; ok {
			p.errorf("%s: floor %s at %d duplicates %s", rec.ID, k.floor, k.ts, prev)
			continue
		}
		first[k] = rec.ID
	}
	return p
}

func collectFloorStats(raws []domain.RawReading, b domain.Building) []floorStats {
	readings, _ := domain.Normalize(raws)
	snaps := domain.ResolveSnapshots(readings, b)

	stats := make([]floorStats, len(b.Floors))
	index := make(map[domain.FloorID]int, len(b.Floors))
	for i, f := range b.Floors {
		stats[i] = floorStats{floor: f, latest: snaps[i]}
		index[f] = i
	}
	for _, r := range readings {
		i, ok := index[r.Floor]
		if !ok {
			continue
		}
		stats[i].readings++
		if r.Count > stats[i].peak {
			stats[i].peak = r.Count
		}
	}
	return stats
}

func printFloorStats(out io.Writer, stats []floorStats, b domain.Building, loc *time.Location) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  %-6s %8s %6s %6s %8s %6s %s\n", "floor", "readings", "peak", "latest", "capacity", "fill", "at")

	sorted := append([]floorStats(nil), stats...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].readings > sorted[j].readings })

	for _, s := range sorted {
		latest, at, fill, capacity := "-", "-", "-", "-"
		count := 0
		if s.latest != nil {
			count = s.latest.Count
			latest = fmt.Sprint(count)
			at = domain.TimeLabel(s.latest.Timestamp, loc)
		}
		if c, ok := b.CapacityOf(s.floor); ok {
			capacity = fmt.Sprint(c)
			if pct, ok := domain.FillPercent(count, c); ok {
				fill = fmt.Sprintf("%.0f%%", pct)
			}
		}
		fmt.Fprintf(out, "  %-6s %8d %6d %6s %8s %6s %s\n", s.floor, s.readings, s.peak, latest, capacity, fill, at)
	}
}
