package store

import "image"

// Store defines the interface for layout result persistence.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound if a result doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveResult atomically writes result.json for the given job,
	// overwriting any previous record.
	SaveResult(jobID string, record *Record) error

	// LoadResult retrieves the record for the given job.
	// Returns ErrNotFound if no record exists for this jobID.
	LoadResult(jobID string) (*Record, error)

	// SaveImage atomically writes the collage image for the given job.
	SaveImage(jobID string, img image.Image) error

	// ImagePath returns where the collage of jobID is (or would be) stored.
	ImagePath(jobID string) string

	// ListResults returns metadata for all stored results.
	ListResults() ([]ResultInfo, error)

	// OpenTrace creates (or truncates) trace.jsonl for the given job.
	OpenTrace(jobID string) (*TraceWriter, error)

	// ReadTrace returns every trace entry of the given job.
	// Returns ErrNotFound if the job has no trace.
	ReadTrace(jobID string) ([]TraceEntry, error)

	// DeleteResult removes the job directory: result.json, collage.png and
	// trace.jsonl. Returns ErrNotFound if the job has no directory.
	DeleteResult(jobID string) error
}

// ErrNotFound is returned when a requested result does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing result.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "result not found: " + e.JobID
	}
	return "result not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
