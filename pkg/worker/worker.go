// Package worker owns the per-process state of a test worker: its identity,
// shard, log sink, artifact allocator, metrics and results file.
package worker

import (
	"errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/uitest/pkg/artifact"
	"github.com/entrhq/uitest/pkg/config"
	"github.com/entrhq/uitest/pkg/logging"
	"github.com/entrhq/uitest/pkg/metrics"
	"github.com/entrhq/uitest/pkg/report"
)

// Environment variables set by the controller on each worker process.
const (
	EnvWorker = "UITEST_WORKER"
	EnvShard  = "UITEST_SHARD"
	EnvRunID  = "UITEST_RUN_ID"
)

// MetricsDir is the directory under the artifacts root holding textfiles.
const MetricsDir = "metrics"

// Shard selects the subset of tests one worker runs. The zero value owns
// every test.
type Shard struct {
	Index int
	Total int
}

// ParseShard parses "i/n". An empty string is the zero Shard.
func ParseShard(s string) (Shard, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Shard{}, nil
	}
	idx, total, ok := strings.Cut(s, "/")
	if !ok {
		return Shard{}, fmt.Errorf("invalid shard %q: expected i/n", s)
	}
	i, err := strconv.Atoi(idx)
	if err != nil {
		return Shard{}, fmt.Errorf("invalid shard index %q: %w", idx, err)
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return Shard{}, fmt.Errorf("invalid shard total %q: %w", total, err)
	}
	if n < 1 || i < 0 || i >= n {
		return Shard{}, fmt.Errorf("invalid shard %q: index must be in [0, %d)", s, n)
	}
	return Shard{Index: i, Total: n}, nil
}

// Owns reports whether testID belongs to this shard.
func (s Shard) Owns(testID string) bool {
	if s.Total <= 1 {
		return true
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(testID))
	return int(h.Sum32()%uint32(s.Total)) == s.Index
}

func (s Shard) String() string {
	if s.Total == 0 {
		return ""
	}
	return fmt.Sprintf("%d/%d", s.Index, s.Total)
}

// Identity names a worker within a run.
type Identity struct {
	// ID is empty for a sequential run
	ID    string
	Shard Shard
	RunID string
}

// Label is the worker id used in file names.
func (id Identity) Label() string {
	if id.ID == "" {
		return artifact.SequentialWorker
	}
	return id.ID
}

// Env returns the variables that give a child process this identity.
func (id Identity) Env() []string {
	env := []string{EnvWorker + "=" + id.ID, EnvRunID + "=" + id.RunID}
	if id.Shard.Total > 0 {
		env = append(env, EnvShard+"="+id.Shard.String())
	}
	return env
}

// FromEnv reads the identity the controller assigned. A missing run id is
// generated.
func FromEnv(getenv func(string) string) (Identity, error) {
	shard, err := ParseShard(getenv(EnvShard))
	if err != nil {
		return Identity{}, err
	}
	id := Identity{
		ID:    strings.TrimSpace(getenv(EnvWorker)),
		Shard: shard,
		RunID: strings.TrimSpace(getenv(EnvRunID)),
	}
	if id.RunID == "" {
		id.RunID = uuid.NewString()
	}
	return id, nil
}

// Context is the state shared by every test in one worker process.
type Context struct {
	Identity

	Sink      *logging.Sink
	Artifacts *artifact.Allocator
	Metrics   *metrics.Registry
	Results   *report.FileRecorder

	metricsPath string
	closeOnce   sync.Once
	closeErr    error
}

// Open creates the worker's log file, results file and metrics registry.
// A log directory that cannot be written falls back to stderr and is not an
// error.
func Open(cfg config.RunConfiguration, id Identity, now time.Time) (*Context, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, config.NewError(config.KeyLogLevel, "%v", err)
	}

	// Open already reported the fallback on the sink itself
	sink, _ := logging.Open(cfg.LogsDir, id.ID, now, level)

	results, err := report.NewFileRecorder(cfg.ArtifactsDir, id.ID)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}

	c := &Context{
		Identity:    id,
		Sink:        sink,
		Artifacts:   artifact.NewAllocator(cfg.ArtifactsDir),
		Metrics:     metrics.New(id.ID),
		Results:     results,
		metricsPath: filepath.Join(cfg.ArtifactsDir, MetricsDir, id.Label()+".prom"),
	}

	log := c.Logger("worker")
	log.Infof("worker %s started (run %s, shard %s)", id.Label(), id.RunID, id.Shard)
	log.Infof("environment %s, browser %s %s, mode %s", cfg.Environment, cfg.Browser, cfg.BrowserVersion, cfg.Mode)
	return c, nil
}

// Logger returns a logger for component writing to the worker's sink.
func (c *Context) Logger(component string) *logging.Logger {
	return c.Sink.Logger(component)
}

// MetricsPath is where Close writes the metrics textfile.
func (c *Context) MetricsPath() string {
	return c.metricsPath
}

// Close closes the results file, writes the metrics textfile and closes the
// log sink. Safe to call multiple times.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		if err := c.Results.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close results: %w", err))
		}
		if err := c.Metrics.WriteTextfile(c.metricsPath); err != nil {
			errs = append(errs, err)
		}

		log := c.Logger("worker")
		for kind, n := range c.Artifacts.Counts() {
			log.Debugf("%d %s artifacts", n, kind)
		}
		log.Infof("worker %s finished", c.Label())

		if err := c.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log: %w", err))
		}
		c.closeErr = errors.Join(errs...)
	})
	return c.closeErr
}
