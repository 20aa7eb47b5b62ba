package store

import (
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cwbudde/tilecloud/internal/imgutil"
)

// FSStore implements the Store interface on the filesystem.
// Results are stored in <baseDir>/jobs/<jobID>/.
//
// Writes go through a temp file and a rename, so concurrent readers never see
// a partial file.
type FSStore struct {
	baseDir string
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

// JobDir returns the directory path for a given job ID.
func (fs *FSStore) JobDir(jobID string) string {
	return filepath.Join(fs.baseDir, "jobs", jobID)
}

func (fs *FSStore) resultPath(jobID string) string {
	return filepath.Join(fs.JobDir(jobID), "result.json")
}

// ImagePath returns the collage path for a job.
func (fs *FSStore) ImagePath(jobID string) string {
	return filepath.Join(fs.JobDir(jobID), "collage.png")
}

// SaveResult atomically saves the record for the given job.
func (fs *FSStore) SaveResult(jobID string, record *Record) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if record == nil {
		return fmt.Errorf("record cannot be nil")
	}

	if err := os.MkdirAll(fs.JobDir(jobID), 0755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	finalPath := fs.resultPath(jobID)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp result file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename result file: %w", err)
	}

	slog.Debug("Result saved", "jobID", jobID, "path", finalPath)
	return nil
}

// SaveImage atomically saves the collage for the given job.
func (fs *FSStore) SaveImage(jobID string, img image.Image) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	finalPath := fs.ImagePath(jobID)
	// Keep the .png extension on the temp file; Export picks the encoder by it.
	tempPath := filepath.Join(fs.JobDir(jobID), ".collage.tmp.png")
	if err := imgutil.Export(img, tempPath); err != nil {
		return err
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename image file: %w", err)
	}

	slog.Debug("Collage saved", "jobID", jobID, "path", finalPath)
	return nil
}

// LoadResult retrieves the record for the given job.
func (fs *FSStore) LoadResult(jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	path := fs.resultPath(jobID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{JobID: jobID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read result file: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to deserialize result: %w", err)
	}

	slog.Debug("Result loaded", "jobID", jobID, "path", path)
	return &record, nil
}

// ListResults returns metadata for all stored results.
func (fs *FSStore) ListResults() ([]ResultInfo, error) {
	jobsDir := filepath.Join(fs.baseDir, "jobs")

	entries, err := os.ReadDir(jobsDir)
	if os.IsNotExist(err) {
		return []ResultInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read jobs directory: %w", err)
	}

	infos := []ResultInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		jobID := entry.Name()
		if _, err := os.Stat(fs.resultPath(jobID)); os.IsNotExist(err) {
			continue
		}

		record, err := fs.LoadResult(jobID)
		if err != nil {
			slog.Warn("Failed to load result for listing", "jobID", jobID, "error", err)
			continue
		}
		infos = append(infos, record.ToInfo())
	}

	slog.Debug("Listed results", "count", len(infos))
	return infos, nil
}

// DeleteResult removes the job directory and everything in it.
func (fs *FSStore) DeleteResult(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	jobDir := fs.JobDir(jobID)
	if _, err := os.Stat(jobDir); os.IsNotExist(err) {
		return &NotFoundError{JobID: jobID}
	} else if err != nil {
		return fmt.Errorf("failed to stat job directory: %w", err)
	}

	if err := os.RemoveAll(jobDir); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}

	slog.Debug("Result deleted", "jobID", jobID, "path", jobDir)
	return nil
}

// OpenTrace creates a fresh trace writer for a job.
func (fs *FSStore) OpenTrace(jobID string) (*TraceWriter, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}
	if err := os.MkdirAll(fs.JobDir(jobID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}
	return NewTraceWriter(filepath.Join(fs.JobDir(jobID), traceFile))
}

// ReadTrace reads all trace entries of a job.
func (fs *FSStore) ReadTrace(jobID string) ([]TraceEntry, error) {
	reader, err := NewTraceReader(filepath.Join(fs.JobDir(jobID), traceFile), jobID)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return reader.ReadAll()
}

// DirSize returns the total size of the files under a job directory.
func (fs *FSStore) DirSize(jobID string) (int64, error) {
	var size int64
	err := filepath.Walk(fs.JobDir(jobID), func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
