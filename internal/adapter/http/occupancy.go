package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/couchcryptid/occupancy-service/internal/domain"
	"github.com/couchcryptid/occupancy-service/internal/feed"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// maxSubmissionBytes bounds the POST /api/readings body.
const maxSubmissionBytes = 4 << 10

type occupancyResponse struct {
	domain.ViewModel
	Generation uint64     `json:"generation"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

type floorInfo struct {
	Floor    domain.FloorID `json:"floor"`
	Capacity *int           `json:"capacity"`
}

type submissionRequest struct {
	Floor any `json:"floor"`
	Count any `json:"count"`
}

type submissionResponse struct {
	ID        string         `json:"id"`
	Floor     domain.FloorID `json:"floor"`
	Count     int            `json:"count"`
	Timestamp int64          `json:"timestamp"`
	Status    string         `json:"status"`
}

// handleOccupancy serves the current view model. The optional focus query
// parameter selects which floor's series is returned; unknown or empty
// floors fall back to the total.
func (s *Server) handleOccupancy(w http.ResponseWriter, r *http.Request) {
	focus := domain.FloorID(r.URL.Query().Get("focus"))
	vm, state, ok := s.view.Snapshot(focus)

	resp := occupancyResponse{ViewModel: vm}
	if ok {
		resp.Generation = state.Generation
		updated := state.UpdatedAt.UTC()
		resp.UpdatedAt = &updated
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFloors(w http.ResponseWriter, _ *http.Request) {
	b := s.view.Building()
	floors := make([]floorInfo, 0, len(b.Floors))
	for _, f := range b.Floors {
		info := floorInfo{Floor: f}
		if c, ok := b.CapacityOf(f); ok {
			info.Capacity = &c
		}
		floors = append(floors, info)
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"floors": floors})
}

// handleSubmit accepts a manual reading, stamps it with the current time and
// hands it to the sink.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submissionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		s.metrics.Submissions.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		s.metrics.Submissions.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "request body must contain a single JSON object")
		return
	}

	sub, err := domain.NewSubmission(s.view.Building(), req.Floor, req.Count)
	if err != nil {
		s.metrics.Submissions.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw := sub.Stamp()
	id, err := s.sink.Submit(r.Context(), raw)
	if err != nil {
		s.metrics.Submissions.WithLabelValues("error").Inc()
		s.logger.Error("submit reading failed", "error", err, "floor", sub.Floor)
		status := http.StatusInternalServerError
		if errors.Is(err, feed.ErrClosed) || errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, "reading could not be recorded")
		return
	}

	s.metrics.Submissions.WithLabelValues("accepted").Inc()
	if !s.queued {
		s.metrics.ReadingsIngested.WithLabelValues("http").Inc()
	}
	s.logger.Info("reading submitted", "id", id, "floor", sub.Floor, "count", sub.Count)

	status, label := http.StatusCreated, "recorded"
	if s.queued {
		status, label = http.StatusAccepted, "queued"
	}
	ts, _ := raw.Timestamp.(int64)
	sharedobs.WriteJSON(w, status, submissionResponse{
		ID:        id,
		Floor:     sub.Floor,
		Count:     sub.Count,
		Timestamp: ts,
		Status:    label,
	})
}

// FeedSink records submissions directly in the in-memory feed.
type FeedSink struct {
	Feed *feed.Feed
}

func (s FeedSink) Submit(_ context.Context, raw domain.RawReading) (string, error) {
	rec, err := s.Feed.Append(raw)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}
