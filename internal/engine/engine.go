// Package engine keeps the occupancy view in step with the reading feed.
//
// The engine subscribes to a Source and, on every full-state notification,
// recomputes the derived view from scratch and publishes it atomically.
// Readers never see a partially built view, and changing the focus floor
// only re-projects the published view.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/occupancy-service/internal/domain"
	"github.com/couchcryptid/occupancy-service/internal/feed"
	"github.com/couchcryptid/occupancy-service/internal/observability"
)

// Source delivers the reading feed's full state on every change.
type Source interface {
	Subscribe(onUpdate func([]feed.Record), onError func(error)) (unsubscribe func())
}

// State is one published recompute.
type State struct {
	Derived    *domain.Derived
	Generation uint64
	UpdatedAt  time.Time
}

// Engine owns the derived occupancy state. Recompute is its only writer.
type Engine struct {
	building domain.Building
	location *time.Location
	logger   *slog.Logger
	metrics  *observability.Metrics

	state      atomic.Pointer[State]
	generation atomic.Uint64
}

// New creates an Engine for the given building. Labels are rendered in loc.
func New(b domain.Building, loc *time.Location, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		building: b,
		location: loc,
		logger:   logger,
		metrics:  metrics,
	}
}

// Building returns the floor configuration the engine derives against.
func (e *Engine) Building() domain.Building {
	return e.building
}

// Run subscribes to src and recomputes on every update until ctx is done or
// the subscription fails. A subscription failure is returned; retrying is up
// to the caller. The subscription is always released before Run returns.
func (e *Engine) Run(ctx context.Context, src Source) error {
	errCh := make(chan error, 1)
	unsubscribe := src.Subscribe(
		func(records []feed.Record) { e.Recompute(records) },
		func(err error) {
			select {
			case errCh <- err:
			default:
			}
		},
	)
	defer unsubscribe()

	e.logger.Info("engine subscribed to feed", "floors", len(e.building.Floors))

	select {
	case <-ctx.Done():
		e.logger.Info("engine stopping", "reason", ctx.Err())
		return nil
	case err := <-errCh:
		e.metrics.SubscriptionErrors.Inc()
		if errors.Is(err, feed.ErrClosed) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("feed subscription: %w", err)
	}
}

// Recompute derives a fresh view from the feed's full state and publishes it.
// Records are ordered by sequence first, so "later wins" rules follow the
// order readings entered the feed.
func (e *Engine) Recompute(records []feed.Record) *domain.Derived {
	start := time.Now()

	ordered := make([]feed.Record, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	raws := make([]domain.RawReading, len(ordered))
	for i, r := range ordered {
		raws[i] = r.Raw
	}

	d := domain.Derive(raws, e.building, e.location)
	gen := e.generation.Add(1)
	e.state.Store(&State{Derived: d, Generation: gen, UpdatedAt: domain.Now()})

	e.observe(d, len(records), time.Since(start))
	e.logger.Debug("occupancy recomputed",
		"generation", gen,
		"records", len(records),
		"readings", d.Readings,
		"dropped", d.Dropped,
		"unknown_floor", d.UnknownFloor,
		"total", d.TotalCount,
	)
	return d
}

func (e *Engine) observe(d *domain.Derived, records int, elapsed time.Duration) {
	e.metrics.Recomputes.Inc()
	e.metrics.RecomputeDuration.Observe(elapsed.Seconds())
	e.metrics.FeedRecords.Set(float64(records))
	e.metrics.DroppedRecords.Set(float64(d.Dropped))
	e.metrics.UnknownFloor.Set(float64(d.UnknownFloor))
	e.metrics.TotalOccupancy.Set(float64(d.TotalCount))

	for i, f := range e.building.Floors {
		count := 0
		if s := d.Snapshots[i]; s != nil {
			count = s.Count
		}
		e.metrics.FloorOccupancy.WithLabelValues(string(f)).Set(float64(count))

		c, ok := e.building.CapacityOf(f)
		if !ok {
			continue
		}
		pct, _ := domain.FillPercent(count, c)
		e.metrics.FloorFillPercent.WithLabelValues(string(f)).Set(pct)
	}
}

// Current returns the latest published state. ok is false until the first
// recompute.
func (e *Engine) Current() (State, bool) {
	s := e.state.Load()
	if s == nil {
		return State{}, false
	}
	return *s, true
}

// View projects the latest state for focus. Before the first recompute it
// returns the empty view.
func (e *Engine) View(focus domain.FloorID) domain.ViewModel {
	vm, _, _ := e.Snapshot(focus)
	return vm
}

// Snapshot is View together with the state the view was projected from, so
// callers can report the generation without a second, racing load.
func (e *Engine) Snapshot(focus domain.FloorID) (domain.ViewModel, State, bool) {
	s := e.state.Load()
	if s == nil {
		return domain.Project(nil, e.building, focus), State{}, false
	}
	return domain.Project(s.Derived, e.building, focus), *s, true
}

// CheckReadiness returns nil once a view has been computed.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if e.state.Load() == nil {
		return errors.New("occupancy view has not been computed yet")
	}
	return nil
}
