// Package report records per-test outcomes for each worker and merges them
// into the run summary.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Outcome is the result of one test.
type Outcome string

const (
	Passed  Outcome = "passed"
	Failed  Outcome = "failed"
	Skipped Outcome = "skipped"
)

// Record is the outcome of one test, keyed by test identity.
type Record struct {
	Test      string        `json:"test"`
	Worker    string        `json:"worker"`
	Outcome   Outcome       `json:"outcome"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Artifacts []string      `json:"artifacts,omitempty"`
	Finished  time.Time     `json:"finished"`
}

// Reporter accepts test records.
type Reporter interface {
	Record(r Record) error
}

// ResultsDir is the directory under the artifacts root holding worker files.
const ResultsDir = "results"

// FileRecorder appends records as JSON lines to one file per worker.
type FileRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	path string
}

// NewFileRecorder creates <artifactsDir>/results/<worker>.jsonl, truncating
// the file of a previous run.
func NewFileRecorder(artifactsDir, workerID string) (*FileRecorder, error) {
	dir := filepath.Join(artifactsDir, ResultsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	path := filepath.Join(dir, workerFileName(workerID)+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}

	return &FileRecorder{file: file, enc: json.NewEncoder(file), path: path}, nil
}

func workerFileName(workerID string) string {
	if workerID == "" {
		return "sequential"
	}
	return workerID
}

// Record appends r.
func (f *FileRecorder) Record(r Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return fmt.Errorf("results file %s is closed", f.path)
	}
	if err := f.enc.Encode(r); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

// Path returns the results file path.
func (f *FileRecorder) Path() string {
	return f.path
}

// Close flushes and closes the file. Safe to call multiple times.
func (f *FileRecorder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// Abort marks that a worker stopped before running any test because its
// configuration was invalid.
type Abort struct {
	Worker string    `json:"worker"`
	Reason string    `json:"reason"`
	Time   time.Time `json:"time"`
}

// WriteAbort records a configuration abort for workerID.
func WriteAbort(artifactsDir, workerID, reason string) error {
	dir := filepath.Join(artifactsDir, ResultsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	data, err := json.MarshalIndent(Abort{Worker: workerID, Reason: reason, Time: time.Now()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal abort: %w", err)
	}

	path := filepath.Join(dir, workerFileName(workerID)+".abort.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write abort marker: %w", err)
	}
	return nil
}
