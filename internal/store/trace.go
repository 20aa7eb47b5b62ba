package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cwbudde/tilecloud/internal/pack"
)

const traceFile = "trace.jsonl"

// TraceEntry is one line of trace.jsonl: the outcome of a single placement
// attempt.
type TraceEntry struct {
	Attempt    int     `json:"attempt"`
	Ratio      float64 `json:"ratio"`
	Placed     int     `json:"placed"`
	Total      int     `json:"total"`
	FailedTile string  `json:"failedTile,omitempty"`
	// DurationMs is the wall time of the attempt in milliseconds.
	DurationMs int64     `json:"durationMs"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewTraceEntry converts a finished attempt into a trace entry.
func NewTraceEntry(a pack.Attempt) TraceEntry {
	return TraceEntry{
		Attempt:    a.Number,
		Ratio:      a.Ratio,
		Placed:     a.Placed,
		Total:      a.Total,
		FailedTile: a.FailedTile,
		DurationMs: a.Duration.Milliseconds(),
		Timestamp:  time.Now(),
	}
}

// TraceWriter appends entries to a trace file. Every Write reaches the file
// before it returns, so the trace of a running job can be read at any time.
// It is safe for concurrent use.
type TraceWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	path string
}

// NewTraceWriter creates (or truncates) the trace file at path.
func NewTraceWriter(path string) (*TraceWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	buf := bufio.NewWriter(file)
	return &TraceWriter{
		file: file,
		buf:  buf,
		enc:  json.NewEncoder(buf),
		path: path,
	}, nil
}

// Write encodes entry as one JSON line.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	if err := tw.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace entry: %w", err)
	}
	return nil
}

// Close syncs and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	flushErr := tw.buf.Flush()
	syncErr := tw.file.Sync()
	closeErr := tw.file.Close()
	if err := errors.Join(flushErr, syncErr, closeErr); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader streams entries back out of a trace file.
type TraceReader struct {
	file *os.File
	dec  *json.Decoder
}

// NewTraceReader opens the trace file at path. A missing file is reported as
// ErrNotFound for jobID.
func NewTraceReader(path, jobID string) (*TraceReader, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{JobID: jobID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return &TraceReader{file: file, dec: json.NewDecoder(bufio.NewReader(file))}, nil
}

// Read returns the next entry, or io.EOF at the end of the trace.
func (tr *TraceReader) Read() (TraceEntry, error) {
	var entry TraceEntry
	if err := tr.dec.Decode(&entry); err != nil {
		if err == io.EOF {
			return entry, io.EOF
		}
		return entry, fmt.Errorf("failed to decode trace entry: %w", err)
	}
	return entry, nil
}

// ReadAll returns every remaining entry.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
}

// Close closes the trace file.
func (tr *TraceReader) Close() error {
	return tr.file.Close()
}
