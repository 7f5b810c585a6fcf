package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Writer writes the run summary artifacts
type Writer struct {
	outputDir string
}

// NewWriter creates a new summary writer
func NewWriter(outputDir string) *Writer {
	return &Writer{
		outputDir: outputDir,
	}
}

// WriteAll writes summary.json and summary.md, copying the markdown to
// latest.md
func (w *Writer) WriteAll(summary Summary) error {
	// Ensure output directory exists
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := w.WriteJSON(summary); err != nil {
		return fmt.Errorf("failed to write summary JSON: %w", err)
	}

	if err := w.WriteMarkdown(summary); err != nil {
		return fmt.Errorf("failed to write summary markdown: %w", err)
	}

	return nil
}

// WriteJSON writes the full summary as JSON
func (w *Writer) WriteJSON(summary Summary) error {
	path := filepath.Join(w.outputDir, "summary.json")

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	if writeErr := os.WriteFile(path, data, 0644); writeErr != nil {
		return fmt.Errorf("failed to write summary JSON: %w", writeErr)
	}

	return nil
}

// WriteMarkdown writes a human-readable report and copies it to latest.md
func (w *Writer) WriteMarkdown(summary Summary) error {
	content := []byte(RenderMarkdown(summary))

	path := filepath.Join(w.outputDir, "summary.md")
	if writeErr := os.WriteFile(path, content, 0644); writeErr != nil {
		return fmt.Errorf("failed to write report: %w", writeErr)
	}

	latest := filepath.Join(w.outputDir, "latest.md")
	if writeErr := os.WriteFile(latest, content, 0644); writeErr != nil {
		return fmt.Errorf("failed to write latest report: %w", writeErr)
	}

	return nil
}

// RenderMarkdown renders the summary as markdown.
func RenderMarkdown(summary Summary) string {
	var md strings.Builder

	// Header
	md.WriteString("# UI Test Run Summary\n\n")
	if summary.RunID != "" {
		md.WriteString(fmt.Sprintf("**Run:** %s\n\n", summary.RunID))
	}
	md.WriteString(fmt.Sprintf("**Started:** %s\n\n", summary.StartTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Completed:** %s\n\n", summary.EndTime.Format(time.RFC3339)))
	md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", summary.Duration))
	md.WriteString(fmt.Sprintf("**Workers:** %d\n\n", summary.Workers))

	// Result
	md.WriteString("## Result\n\n")
	switch {
	case summary.Aborted:
		md.WriteString(fmt.Sprintf("❌ **Aborted:** %s\n\n", summary.Headline()))
	case !summary.OK():
		md.WriteString(fmt.Sprintf("❌ **%s**\n\n", summary.Headline()))
	default:
		md.WriteString(fmt.Sprintf("✅ **%s**\n\n", summary.Headline()))
	}

	// Tests
	if len(summary.Records) > 0 {
		md.WriteString("## Tests\n\n")
		md.WriteString("| Test | Worker | Outcome | Duration |\n")
		md.WriteString("|------|--------|---------|----------|\n")
		for _, r := range summary.Records {
			md.WriteString(fmt.Sprintf("| `%s` | %s | %s | %s |\n",
				r.Test, r.Worker, r.Outcome, r.Duration.Round(time.Millisecond)))
		}
		md.WriteString("\n")
	}

	if len(summary.WorkerErrors) > 0 {
		md.WriteString("## Worker errors\n\n")
		for _, e := range summary.WorkerErrors {
			md.WriteString(fmt.Sprintf("- %s\n", e))
		}
		md.WriteString("\n")
	}

	// Failures
	var failures []Record
	for _, r := range summary.Records {
		if r.Outcome == Failed {
			failures = append(failures, r)
		}
	}
	if len(failures) > 0 {
		md.WriteString("## Failures\n\n")
		for _, r := range failures {
			md.WriteString(fmt.Sprintf("### %s (%s)\n\n", r.Test, r.Worker))
			if r.Error != "" {
				md.WriteString(fmt.Sprintf("```\n%s\n```\n\n", r.Error))
			}
			for _, a := range r.Artifacts {
				md.WriteString(fmt.Sprintf("- `%s`\n", a))
			}
			if len(r.Artifacts) > 0 {
				md.WriteString("\n")
			}
		}
	}

	return md.String()
}
