package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/tilecloud/internal/pack"
	"github.com/cwbudde/tilecloud/internal/store"
)

// runJob executes a layout job in the background.
// If resultStore is not nil, the result, the collage and a per-attempt trace
// are persisted under the job ID.
func runJob(ctx context.Context, jm *JobManager, resultStore store.Store, jobID string) error {
	defer jm.release(jobID)

	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := ctx.Err(); err != nil {
		markJobCancelled(jm, jobID)
		return err
	}

	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}
	broadcastState(jm, jobID)

	layout := job.Layout
	slog.Info("Starting job", "job_id", jobID, "shape", layout.Canvas.Shape, "tiles", len(layout.Tiles))

	tmpl, err := layout.Template()
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to build canvas: %w", err))
		return err
	}
	sources, err := layout.Sources()
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to load tiles: %w", err))
		return err
	}
	ctrl, err := layout.Controller()
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	var trace *store.TraceWriter
	if resultStore != nil {
		trace, err = resultStore.OpenTrace(jobID)
		if err != nil {
			slog.Warn("Failed to open trace", "job_id", jobID, "error", err)
			trace = nil
		}
	}

	ctrl.OnAttempt = func(a pack.Attempt) {
		jm.UpdateJob(jobID, func(j *Job) {
			j.Attempts = a.Number
			j.Ratio = a.Ratio
			j.Placed = a.Placed
			j.Total = a.Total
		})
		jm.broadcaster.Broadcast(ProgressEvent{
			JobID:      jobID,
			State:      StateRunning,
			Attempt:    a.Number,
			Ratio:      a.Ratio,
			Placed:     a.Placed,
			Total:      a.Total,
			FailedTile: a.FailedTile,
			Timestamp:  time.Now(),
		})
		if trace != nil {
			if err := trace.Write(store.NewTraceEntry(a)); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}
	}

	start := time.Now()
	res, err := ctrl.Run(ctx, tmpl, sources)
	elapsed := time.Since(start)

	// Flush the trace before the job turns terminal so readers see every attempt
	if trace != nil {
		if err := trace.Close(); err != nil {
			slog.Warn("Failed to close trace", "job_id", jobID, "error", err)
		}
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		markJobCancelled(jm, jobID)
		return err

	case errors.Is(err, pack.ErrPlacementExhausted):
		var pe *pack.PlacementExhaustedError
		errors.As(err, &pe)
		if pe.Partial != nil {
			finishJob(jm, resultStore, jobID, pe.Partial, elapsed)
		}
		markJobExhausted(jm, jobID, err)
		return err

	case err != nil:
		markJobFailed(jm, jobID, err)
		return err
	}

	finishJob(jm, resultStore, jobID, res, elapsed)

	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.EndTime = &endTime
	})

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"attempts", res.Attempts,
		"ratio", res.Ratio,
		"tiles", res.Total,
	)
	broadcastState(jm, jobID)
	return nil
}

// finishJob records a (possibly partial) result on the job and persists it.
func finishJob(jm *JobManager, resultStore store.Store, jobID string, res *pack.Result, elapsed time.Duration) {
	jm.UpdateJob(jobID, func(j *Job) {
		j.Attempts = res.Attempts
		j.Ratio = res.Ratio
		j.Placed = res.Placed
		j.Total = res.Total
		j.Placements = res.Placements
		j.image = res.Image()
	})

	if resultStore == nil {
		return
	}
	job, _ := jm.GetJob(jobID)
	if err := resultStore.SaveImage(jobID, res.Image()); err != nil {
		slog.Error("Failed to save collage", "job_id", jobID, "error", err)
	}
	if err := resultStore.SaveResult(jobID, store.NewRecord(jobID, job.Layout, res, elapsed)); err != nil {
		slog.Error("Failed to save result", "job_id", jobID, "error", err)
	}
}

// broadcastState sends the job's current state to stream subscribers
func broadcastState(jm *JobManager, jobID string) {
	if job, ok := jm.GetJob(jobID); ok {
		jm.broadcaster.Broadcast(newJobEvent(job))
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
	broadcastState(jm, jobID)
}

// markJobExhausted marks a job whose attempt budget ran out
func markJobExhausted(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateExhausted
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Warn("Job exhausted", "job_id", jobID, "error", err)
	broadcastState(jm, jobID)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
	broadcastState(jm, jobID)
}
