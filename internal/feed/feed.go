// Package feed implements the append-only reading feed. Subscribers always
// receive the feed's entire current state, never a delta.
package feed

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/couchcryptid/occupancy-service/internal/domain"
	"github.com/google/uuid"
)

// ErrClosed is delivered to subscribers, and returned from writes, once the
// feed has been closed.
var ErrClosed = errors.New("feed closed")

// Record is one stored reading. Seq is the insertion order and is the only
// order the feed guarantees.
type Record struct {
	ID  string            `json:"id"`
	Seq uint64            `json:"seq"`
	Raw domain.RawReading `json:"raw"`
}

// Feed is an in-memory, append-only store of raw readings.
type Feed struct {
	mu         sync.Mutex
	records    []Record
	seq        uint64
	version    uint64
	maxRecords int
	subs       map[uint64]*subscription
	nextSub    uint64
	closed     bool
}

// New creates an empty feed. When maxRecords is positive the oldest records
// are discarded once the feed grows past it.
func New(maxRecords int) *Feed {
	return &Feed{
		maxRecords: maxRecords,
		subs:       make(map[uint64]*subscription),
	}
}

// Append stores one raw reading under a fresh time-ordered ID.
func (f *Feed) Append(raw domain.RawReading) (Record, error) {
	recs, err := f.AppendBatch([]domain.RawReading{raw})
	if err != nil {
		return Record{}, err
	}
	return recs[0], nil
}

// AppendBatch stores several readings and notifies subscribers once.
func (f *Feed) AppendBatch(raws []domain.RawReading) ([]Record, error) {
	if len(raws) == 0 {
		return nil, nil
	}
	ids := make([]string, len(raws))
	for i := range raws {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate record id: %w", err)
		}
		ids[i] = id.String()
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrClosed
	}
	added := make([]Record, len(raws))
	for i, raw := range raws {
		f.seq++
		added[i] = Record{ID: ids[i], Seq: f.seq, Raw: raw}
	}
	f.records = append(f.records, added...)
	f.commitLocked()
	f.mu.Unlock()

	return added, nil
}

// Load appends records that already carry IDs, such as an export being
// replayed at startup. Sequence numbers are reassigned in the given order.
func (f *Feed) Load(records []Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	for _, r := range records {
		f.seq++
		r.Seq = f.seq
		f.records = append(f.records, r)
	}
	f.commitLocked()
	return nil
}

// commitLocked trims the feed to its bound, bumps the version and wakes
// every subscriber. Callers hold f.mu.
func (f *Feed) commitLocked() {
	if f.maxRecords > 0 && len(f.records) > f.maxRecords {
		f.records = slices.Clone(f.records[len(f.records)-f.maxRecords:])
	}
	f.version++
	for _, s := range f.subs {
		s.notify()
	}
}

// State returns a copy of the current records in insertion order.
func (f *Feed) State() []Record {
	state, _, _ := f.snapshot()
	return state
}

// Len returns the number of records held.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *Feed) snapshot() ([]Record, uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.records), f.version, f.closed
}

// Close stops the feed. Live subscribers receive ErrClosed on their error
// callback; later writes fail with ErrClosed.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for id, s := range f.subs {
		s.notify()
		delete(f.subs, id)
	}
	return nil
}
