// Package artifact allocates collision-free paths for per-test artifacts and
// publishes the artifacts of a run to object storage.
package artifact

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Kind is a category of test artifact.
type Kind string

const (
	Screenshot Kind = "screenshot"
	PageSource Kind = "page_source"
	Video      Kind = "video"
)

// SequentialWorker labels artifacts of a run without parallel workers.
const SequentialWorker = "sequential"

type kindLayout struct {
	dir string
	ext string
}

var layouts = map[Kind]kindLayout{
	Screenshot: {dir: "screenshots", ext: ".png"},
	PageSource: {dir: "page_sources", ext: ".html"},
	Video:      {dir: "videos", ext: ".mp4"},
}

// Allocator hands out artifact paths under a root directory. Paths depend
// only on (test, worker, kind), so a rerun overwrites the previous artifact
// instead of accumulating copies.
type Allocator struct {
	dir    string
	mu     sync.Mutex
	counts map[Kind]int
}

// NewAllocator creates an allocator rooted at dir.
func NewAllocator(dir string) *Allocator {
	return &Allocator{
		dir:    dir,
		counts: make(map[Kind]int),
	}
}

// Dir returns the root directory.
func (a *Allocator) Dir() string {
	return a.dir
}

// Path returns the path for an artifact without touching the filesystem.
func (a *Allocator) Path(testID, workerID string, kind Kind) (string, error) {
	layout, ok := layouts[kind]
	if !ok {
		return "", fmt.Errorf("unknown artifact kind %q", kind)
	}
	if strings.TrimSpace(testID) == "" {
		return "", fmt.Errorf("test identity is required")
	}
	if workerID == "" {
		workerID = SequentialWorker
	}

	name := fmt.Sprintf("%s_%s%s", safeName(testID), safeWorker(workerID), layout.ext)
	return filepath.Join(a.dir, layout.dir, name), nil
}

// Allocate returns the path for an artifact and makes sure its directory
// exists.
func (a *Allocator) Allocate(testID, workerID string, kind Kind) (string, error) {
	path, err := a.Path(testID, workerID, kind)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	a.mu.Lock()
	a.counts[kind]++
	a.mu.Unlock()

	return path, nil
}

// Counts returns how many paths were allocated per kind.
func (a *Allocator) Counts() map[Kind]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[Kind]int, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}

// safeName keeps [A-Za-z0-9._-] and replaces everything else with '_'. When
// anything was replaced, a hash of the original is appended so that distinct
// identities such as "a/b" and "a_b" never share a file.
func safeName(s string) string {
	return sanitize(s, '_')
}

// safeWorker is safeName without '_', so the last '_' of a file name always
// separates the test from the worker.
func safeWorker(s string) string {
	return sanitize(s, '-')
}

func sanitize(s string, repl byte) string {
	var b strings.Builder
	changed := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == '_' && repl == '_':
			b.WriteRune(r)
		default:
			b.WriteByte(repl)
			changed = true
		}
	}
	if !changed {
		return s
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%s-%08x", b.String(), h.Sum32())
}
