package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Summary is the aggregate outcome of a run across all workers.
type Summary struct {
	RunID     string        `json:"run_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Workers   int           `json:"workers"`

	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`

	// Aborted is set when a configuration error stopped the run or one of
	// its workers
	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abort_reason,omitempty"`

	// WorkerErrors lists workers that failed without reporting any test
	WorkerErrors []string `json:"worker_errors,omitempty"`

	Records []Record `json:"records"`
}

// Ran returns how many tests executed (skipped tests excluded).
func (s Summary) Ran() int {
	return s.Passed + s.Failed
}

// OK reports whether the run completed without failures.
func (s Summary) OK() bool {
	return !s.Aborted && s.Failed == 0 && len(s.WorkerErrors) == 0
}

// Headline is the one-line user-visible result. A configuration abort reads
// differently from a run with failing tests.
func (s Summary) Headline() string {
	if s.Aborted && len(s.Records) == 0 {
		return "no tests ran due to configuration: " + s.AbortReason
	}

	line := fmt.Sprintf("%d tests ran, %d failed", s.Ran(), s.Failed)
	if s.Skipped > 0 {
		line += fmt.Sprintf(", %d skipped", s.Skipped)
	}
	if s.Aborted {
		line += "; aborted on configuration: " + s.AbortReason
	}
	for _, e := range s.WorkerErrors {
		line += "; " + e
	}
	return line
}

// AbortedSummary builds the summary of a run that never started.
func AbortedSummary(runID string, reason string, at time.Time) Summary {
	return Summary{
		RunID:       runID,
		StartTime:   at,
		EndTime:     at,
		Aborted:     true,
		AbortReason: reason,
	}
}

// Reset removes the results of a previous run.
func Reset(artifactsDir string) error {
	dir := filepath.Join(artifactsDir, ResultsDir)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear results: %w", err)
	}
	return nil
}

// Aggregate merges every worker's results under artifactsDir.
func Aggregate(artifactsDir string) (Summary, error) {
	dir := filepath.Join(artifactsDir, ResultsDir)

	var s Summary
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("failed to read results: %w", err)
	}

	var reasons []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		switch {
		case strings.HasSuffix(e.Name(), ".abort.json"):
			abort, err := readAbort(path)
			if err != nil {
				return s, err
			}
			reasons = append(reasons, fmt.Sprintf("%s: %s", abort.Worker, abort.Reason))
		case strings.HasSuffix(e.Name(), ".jsonl"):
			records, err := readRecords(path)
			if err != nil {
				return s, err
			}
			s.Workers++
			s.Records = append(s.Records, records...)
		}
	}

	sort.SliceStable(s.Records, func(i, j int) bool {
		if s.Records[i].Test != s.Records[j].Test {
			return s.Records[i].Test < s.Records[j].Test
		}
		return s.Records[i].Worker < s.Records[j].Worker
	})

	for _, r := range s.Records {
		s.Total++
		switch r.Outcome {
		case Passed:
			s.Passed++
		case Failed:
			s.Failed++
		case Skipped:
			s.Skipped++
		}
	}

	if len(reasons) > 0 {
		sort.Strings(reasons)
		s.Aborted = true
		s.AbortReason = strings.Join(reasons, "; ")
	}

	return s, nil
}

func readRecords(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(text), &r); err != nil {
			return nil, fmt.Errorf("%s:%d: invalid record: %w", path, line, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return records, nil
}

func readAbort(path string) (Abort, error) {
	var a Abort
	data, err := os.ReadFile(path)
	if err != nil {
		return a, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("invalid abort marker %s: %w", path, err)
	}
	return a, nil
}
