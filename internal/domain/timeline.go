package domain

import "time"

// TimeLabelLayout renders bucket timestamps as 24-hour hour:minute labels.
const TimeLabelLayout = "15:04"

// TimelinePoint is one point of a chart series.
type TimelinePoint struct {
	Time      string `json:"time"`
	Timestamp int64  `json:"timestamp"`
	Count     int    `json:"count"`
}

// Timelines holds the aggregate series and the sparse per-floor series.
type Timelines struct {
	Total    []TimelinePoint
	PerFloor map[FloorID][]TimelinePoint
}

// TimeLabel formats an epoch-millisecond timestamp in loc (UTC when nil).
func TimeLabel(ts int64, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ts).In(loc).Format(TimeLabelLayout)
}

// BuildTimelines derives the total and per-floor series from ascending
// buckets. A floor only gets a point for buckets it reported in; series are
// never zero-filled.
func BuildTimelines(buckets []Bucket, b Building, loc *time.Location) Timelines {
	t := Timelines{
		Total:    make([]TimelinePoint, 0, len(buckets)),
		PerFloor: make(map[FloorID][]TimelinePoint),
	}

	for _, bucket := range buckets {
		label := TimeLabel(bucket.Timestamp, loc)
		total := 0
		// Walk the building order so the output never depends on map order.
		for _, floor := range b.Floors {
			count, ok := bucket.PerFloor[floor]
			if !ok {
				continue
			}
			total += count
			t.PerFloor[floor] = append(t.PerFloor[floor], TimelinePoint{
				Time:      label,
				Timestamp: bucket.Timestamp,
				Count:     count,
			})
		}
		t.Total = append(t.Total, TimelinePoint{
			Time:      label,
			Timestamp: bucket.Timestamp,
			Count:     total,
		})
	}
	return t
}
