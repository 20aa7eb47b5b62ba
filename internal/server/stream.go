package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	subscriberBuffer = 16
	pingInterval     = 30 * time.Second
)

// ProgressEvent is sent after every placement attempt and on state changes.
type ProgressEvent struct {
	JobID      string    `json:"jobId"`
	State      JobState  `json:"state"`
	Attempt    int       `json:"attempt"`
	Ratio      float64   `json:"ratio"`
	Placed     int       `json:"placed"`
	Total      int       `json:"total"`
	FailedTile string    `json:"failedTile,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// name is the SSE event type: "attempt" while the job runs, "state" once it
// has reached a final state.
func (e ProgressEvent) name() string {
	if e.State.Terminal() {
		return "state"
	}
	return "attempt"
}

func newJobEvent(job *Job) ProgressEvent {
	return ProgressEvent{
		JobID:     job.ID,
		State:     job.State,
		Attempt:   job.Attempts,
		Ratio:     job.Ratio,
		Placed:    job.Placed,
		Total:     job.Total,
		Error:     job.Error,
		Timestamp: time.Now(),
	}
}

// EventBroadcaster fans job events out to SSE subscribers. Slow subscribers
// drop events instead of blocking the worker.
type EventBroadcaster struct {
	mu     sync.Mutex
	subs   map[string]map[chan ProgressEvent]struct{}
	latest map[string]ProgressEvent
}

// NewEventBroadcaster creates an empty broadcaster.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		subs:   make(map[string]map[chan ProgressEvent]struct{}),
		latest: make(map[string]ProgressEvent),
	}
}

// Subscribe registers a subscriber for jobID. The latest event of the job,
// if any, is delivered first.
func (eb *EventBroadcaster) Subscribe(jobID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, subscriberBuffer)
	if eb.subs[jobID] == nil {
		eb.subs[jobID] = make(map[chan ProgressEvent]struct{})
	}
	eb.subs[jobID][ch] = struct{}{}

	if ev, ok := eb.latest[jobID]; ok {
		ch <- ev
	}

	slog.Debug("SSE client subscribed", "jobID", jobID, "clients", len(eb.subs[jobID]))
	return ch
}

// Unsubscribe removes and closes ch.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	set, ok := eb.subs[jobID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(eb.subs, jobID)
	}
	slog.Debug("SSE client unsubscribed", "jobID", jobID)
}

// Broadcast records event as the job's latest and offers it to every
// subscriber of the job. A lagging subscriber loses attempt events, but a
// final state event replaces its oldest queued event so the stream ends.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.latest[event.JobID] = event

	for ch := range eb.subs[event.JobID] {
		select {
		case ch <- event:
			continue
		default:
		}
		if !event.State.Terminal() {
			slog.Warn("SSE subscriber lagging, event dropped", "jobID", event.JobID, "attempt", event.Attempt)
			continue
		}
		// Senders hold eb.mu, so after one receive the buffer has room.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
		}
	}
}

// handleJobStream handles GET /api/v1/jobs/{id}/stream
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")

	send := func(ev ProgressEvent) bool {
		if err := writeSSEEvent(w, ev); err != nil {
			slog.Error("Failed to write SSE event", "jobID", jobID, "error", err)
			return false
		}
		flusher.Flush()
		return true
	}

	if job.State.Terminal() {
		send(newJobEvent(job))
		return
	}

	events := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, events)

	if !send(newJobEvent(job)) {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("SSE client disconnected", "jobID", jobID)
			return
		case ev, ok := <-events:
			if !ok || !send(ev) || ev.State.Terminal() {
				return
			}
		case <-ping.C:
			if job, ok := s.jobManager.GetJob(jobID); ok && job.State.Terminal() {
				send(newJobEvent(job))
				return
			}
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one event frame: type, id (the attempt number) and
// the JSON payload.
func writeSSEEvent(w io.Writer, ev ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", ev.name(), ev.Attempt, data)
	return err
}
