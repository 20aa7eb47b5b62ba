package store

import (
	"time"

	"github.com/cwbudde/tilecloud/internal/config"
	"github.com/cwbudde/tilecloud/internal/pack"
)

// Record statuses.
const (
	StatusComplete  = "complete"
	StatusExhausted = "exhausted"
)

// Record is the persisted outcome of a layout job, written as result.json
// next to the collage image.
type Record struct {
	JobID     string    `json:"jobId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	// Elapsed is the wall time of the whole run.
	Elapsed time.Duration `json:"elapsed"`

	Ratio    float64 `json:"ratio"`
	Attempts int     `json:"attempts"`
	Placed   int     `json:"placed"`
	Total    int     `json:"total"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`

	Placements []pack.Placement `json:"placements"`
	Layout     config.Layout    `json:"layout"`
}

// ResultInfo is the listing view of a Record.
type ResultInfo struct {
	JobID     string    `json:"jobId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Shape     string    `json:"shape"`
	Ratio     float64   `json:"ratio"`
	Attempts  int       `json:"attempts"`
	Placed    int       `json:"placed"`
	Total     int       `json:"total"`
}

// NewRecord builds a record from a finished (or partial) layout.
func NewRecord(jobID string, layout config.Layout, res *pack.Result, elapsed time.Duration) *Record {
	status := StatusComplete
	if res.Placed < res.Total {
		status = StatusExhausted
	}
	return &Record{
		JobID:      jobID,
		Status:     status,
		Timestamp:  time.Now(),
		Elapsed:    elapsed,
		Ratio:      res.Ratio,
		Attempts:   res.Attempts,
		Placed:     res.Placed,
		Total:      res.Total,
		Width:      res.Canvas.Width,
		Height:     res.Canvas.Height,
		Placements: res.Placements,
		Layout:     layout,
	}
}

// ToInfo converts a Record to its listing view.
func (r *Record) ToInfo() ResultInfo {
	return ResultInfo{
		JobID:     r.JobID,
		Status:    r.Status,
		Timestamp: r.Timestamp,
		Shape:     r.Layout.Canvas.Shape,
		Ratio:     r.Ratio,
		Attempts:  r.Attempts,
		Placed:    r.Placed,
		Total:     r.Total,
	}
}

// Validate checks that the record is internally consistent.
func (r *Record) Validate() error {
	if r.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if r.Status != StatusComplete && r.Status != StatusExhausted {
		return &ValidationError{Field: "Status", Reason: "must be complete or exhausted"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Ratio < 1 {
		return &ValidationError{Field: "Ratio", Reason: "must be >= 1"}
	}
	if r.Placed < 0 || r.Placed > r.Total {
		return &ValidationError{Field: "Placed", Reason: "must be within [0, Total]"}
	}
	if len(r.Placements) != r.Placed {
		return &ValidationError{Field: "Placements", Reason: "length must equal Placed"}
	}
	if r.Status == StatusComplete && r.Placed != r.Total {
		return &ValidationError{Field: "Status", Reason: "complete record must place every tile"}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
