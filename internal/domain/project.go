package domain

import (
	"math"
	"time"
)

// SeriesWindow is the number of most recent points kept in the active series.
const SeriesWindow = 20

// TotalSeriesLabel labels the active series when it is the aggregate total.
const TotalSeriesLabel = "total"

// Derived is everything recomputed from one full feed state. It is built once
// and never modified afterwards.
type Derived struct {
	Snapshots    Snapshots
	Timelines    Timelines
	TotalCount   int
	Readings     int // valid readings
	Dropped      int // malformed records
	UnknownFloor int // valid readings naming an unconfigured floor
}

// FloorView is the presentation state of one floor.
type FloorView struct {
	Floor       FloorID  `json:"floor"`
	Capacity    *int     `json:"capacity"`
	Snapshot    *Reading `json:"snapshot"`
	FillPercent *float64 `json:"fill_percent"`
}

// ViewModel is the rendered occupancy view.
type ViewModel struct {
	TotalCount        int             `json:"total_count"`
	Floors            []FloorView     `json:"floors"`
	ActiveSeries      []TimelinePoint `json:"active_series"`
	ActiveSeriesLabel string          `json:"active_series_label"`
}

// Derive runs the full recompute over raw feed records.
func Derive(raws []RawReading, b Building, loc *time.Location) *Derived {
	readings, dropped := Normalize(raws)
	snapshots := ResolveSnapshots(readings, b)
	return &Derived{
		Snapshots:    snapshots,
		Timelines:    BuildTimelines(GroupByTimestamp(readings, b), b, loc),
		TotalCount:   TotalCount(snapshots),
		Readings:     len(readings),
		Dropped:      dropped,
		UnknownFloor: CountUnknownFloors(readings, b),
	}
}

// FillPercent returns count as a percentage of capacity, capped at 100. The
// second result is false when capacity is not positive.
func FillPercent(count, capacity int) (float64, bool) {
	if capacity <= 0 {
		return 0, false
	}
	return math.Min(100, 100*float64(count)/float64(capacity)), true
}

// SelectActiveSeries returns the focused floor's series when it has points,
// otherwise the total series, trimmed to the last SeriesWindow points. The
// second result labels the chosen series.
func SelectActiveSeries(t Timelines, focus FloorID) ([]TimelinePoint, string) {
	if focus != "" {
		if series := t.PerFloor[focus]; len(series) > 0 {
			return Tail(series, SeriesWindow), string(focus)
		}
	}
	return Tail(t.Total, SeriesWindow), TotalSeriesLabel
}

// Tail returns a copy of the last n points of series.
func Tail(series []TimelinePoint, n int) []TimelinePoint {
	if n < 0 {
		n = 0
	}
	if len(series) > n {
		series = series[len(series)-n:]
	}
	out := make([]TimelinePoint, len(series))
	copy(out, series)
	return out
}

// Project renders d for the given focus. A nil d renders the empty view.
func Project(d *Derived, b Building, focus FloorID) ViewModel {
	if d == nil {
		d = Derive(nil, b, time.UTC)
	}

	floors := make([]FloorView, len(b.Floors))
	for i, f := range b.Floors {
		fv := FloorView{Floor: f}
		count := 0
		if i < len(d.Snapshots) && d.Snapshots[i] != nil {
			snap := *d.Snapshots[i]
			fv.Snapshot = &snap
			count = snap.Count
		}
		if c, ok := b.CapacityOf(f); ok {
			fv.Capacity = &c
			if pct, ok := FillPercent(count, c); ok {
				fv.FillPercent = &pct
			}
		}
		floors[i] = fv
	}

	series, label := SelectActiveSeries(d.Timelines, focus)
	return ViewModel{
		TotalCount:        d.TotalCount,
		Floors:            floors,
		ActiveSeries:      series,
		ActiveSeriesLabel: label,
	}
}
