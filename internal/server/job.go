package server

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/cwbudde/tilecloud/internal/config"
	"github.com/cwbudde/tilecloud/internal/pack"
	"github.com/google/uuid"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateExhausted JobState = "exhausted"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	switch s {
	case StateCompleted, StateExhausted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Job represents a layout job
type Job struct {
	ID         string           `json:"id"`
	State      JobState         `json:"state"`
	Layout     config.Layout    `json:"layout"`
	Attempts   int              `json:"attempts"`
	Ratio      float64          `json:"ratio"`
	Placed     int              `json:"placed"`
	Total      int              `json:"total"`
	Placements []pack.Placement `json:"placements,omitempty"`
	StartTime  time.Time        `json:"startTime"`
	EndTime    *time.Time       `json:"endTime,omitempty"`
	Error      string           `json:"error,omitempty"`

	// image is the finished (or best partial) collage.
	image *image.NRGBA
}

// Elapsed returns the job's run time so far.
func (j *Job) Elapsed() time.Duration {
	if j.EndTime != nil {
		return j.EndTime.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	cancels     map[string]context.CancelFunc
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]context.CancelFunc),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new job with the given layout
func (jm *JobManager) CreateJob(layout config.Layout) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Layout:    layout,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	cp := *job
	return &cp
}

// GetJob returns a snapshot of the job with the given ID
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	cp := *job
	return &cp, true
}

// ListJobs returns snapshots of all jobs, oldest first
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		cp := *job
		jobs = append(jobs, &cp)
	}
	sortJobs(jobs)
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			cp := *job
			runningJobs = append(runningJobs, &cp)
		}
	}
	return runningJobs
}

// Start derives a cancellable context for the job's worker.
func (jm *JobManager) Start(parent context.Context, id string) context.Context {
	ctx, cancel := context.WithCancel(parent)
	jm.mu.Lock()
	jm.cancels[id] = cancel
	jm.mu.Unlock()
	return ctx
}

// release drops the cancel func of a finished job.
func (jm *JobManager) release(id string) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	if cancel, ok := jm.cancels[id]; ok {
		cancel()
		delete(jm.cancels, id)
	}
}

// CancelJob stops a running or pending job. It returns false if the job does
// not exist or has already finished.
func (jm *JobManager) CancelJob(id string) bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists || job.State.Terminal() {
		return false
	}
	if cancel, ok := jm.cancels[id]; ok {
		cancel()
	}
	return true
}
