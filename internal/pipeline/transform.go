package pipeline

import (
	"context"
	"fmt"

	"github.com/couchcryptid/occupancy-service/internal/domain"
	"github.com/couchcryptid/occupancy-service/internal/feed"
)

// ReadingDecoder implements Decoder using the domain message decoding rules.
type ReadingDecoder struct{}

// NewDecoder creates a ReadingDecoder.
func NewDecoder() *ReadingDecoder {
	return &ReadingDecoder{}
}

func (ReadingDecoder) Decode(_ context.Context, msg domain.RawMessage) (domain.RawReading, error) {
	return domain.DecodeMessage(msg)
}

// FeedLoader implements BatchLoader by appending to an in-memory feed.
type FeedLoader struct {
	feed *feed.Feed
}

// NewFeedLoader creates a loader that appends to f.
func NewFeedLoader(f *feed.Feed) *FeedLoader {
	return &FeedLoader{feed: f}
}

func (l *FeedLoader) LoadBatch(_ context.Context, readings []domain.RawReading) error {
	if _, err := l.feed.AppendBatch(readings); err != nil {
		return fmt.Errorf("append to feed: %w", err)
	}
	return nil
}
