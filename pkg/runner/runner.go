// Package runner is the controller of a parallel run. It resolves the
// configuration once, spawns one test process per worker and merges their
// results into the run summary.
//
// Workers receive the command line layer as UITEST_* variables, so test
// binaries that never register the -uitest.* flags still run. Suites behind
// a build constraint, such as examples/e2e, need Options.Tags.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/uitest/pkg/artifact"
	"github.com/entrhq/uitest/pkg/capability"
	"github.com/entrhq/uitest/pkg/config"
	"github.com/entrhq/uitest/pkg/endpoint"
	"github.com/entrhq/uitest/pkg/harness"
	"github.com/entrhq/uitest/pkg/logging"
	"github.com/entrhq/uitest/pkg/report"
	"github.com/entrhq/uitest/pkg/worker"
)

// DefaultPackages are tested when none are given.
var DefaultPackages = []string{"./..."}

// Options configure a run.
type Options struct {
	// Workers is the number of worker processes. Values below 2 run a
	// single sequential worker.
	Workers int

	// Packages passed to go test
	Packages []string

	// Tags are the build tags passed to go test -tags, comma separated
	Tags string

	// Command replaces "go test <packages> -count=1 -p 1". The
	// configuration reaches it through the environment.
	Command []string

	// ConfigFile is the env file; empty uses $UITEST_CONFIG or
	// configs/config.yaml
	ConfigFile string
	Params     config.Params

	// Sources replaces the default configuration sources
	Sources *config.Sources

	// Environ is the base environment of every worker (default os.Environ)
	Environ []string

	// Dir is the working directory of the workers
	Dir string

	Stdout io.Writer
	Stderr io.Writer

	// Logger defaults to the controller log file in the logs directory
	Logger *logging.Logger
	RunID  string
	Now    func() time.Time
}

// WorkerResult is how one worker process ended.
type WorkerResult struct {
	Identity worker.Identity
	ExitCode int
	Err      error
}

// Aborted reports whether the worker stopped on a configuration error.
func (w WorkerResult) Aborted() bool {
	return w.ExitCode == harness.ExitConfigError
}

// Result is the outcome of a run.
type Result struct {
	Config    config.RunConfiguration
	Summary   report.Summary
	Workers   []WorkerResult
	Published int
}

// OK reports whether every test passed and every worker exited cleanly.
func (r Result) OK() bool {
	if !r.Summary.OK() {
		return false
	}
	for _, w := range r.Workers {
		if w.ExitCode != 0 {
			return false
		}
	}
	return true
}

// Run executes a run. A configuration error is returned together with an
// aborted summary before any worker starts.
func Run(ctx context.Context, opts Options) (Result, error) {
	opts = withDefaults(opts)
	log := opts.Logger

	start := opts.Now()
	src, configFile, err := sources(opts)
	if err != nil {
		return Result{Summary: report.AbortedSummary(opts.RunID, err.Error(), start)}, err
	}

	cfg, err := resolve(src)
	if err != nil {
		log.Errorf("configuration rejected: %v", err)
		return Result{Summary: report.AbortedSummary(opts.RunID, err.Error(), start)}, err
	}
	result := Result{Config: cfg}

	// Workers run in their package directories
	artifactsDir, err := filepath.Abs(cfg.ArtifactsDir)
	if err != nil {
		return result, fmt.Errorf("artifacts directory: %w", err)
	}
	logsDir, err := filepath.Abs(cfg.LogsDir)
	if err != nil {
		return result, fmt.Errorf("logs directory: %w", err)
	}

	if log == nil {
		level, _ := logging.ParseLevel(cfg.LogLevel)
		sink, _ := logging.Open(logsDir, "controller", start, level)
		defer sink.Close()
		log = sink.Logger("runner")
	}

	if err := report.Reset(artifactsDir); err != nil {
		return result, err
	}

	identities := plan(opts.Workers, opts.RunID)
	log.Infof("run %s: %d worker(s), %s %s in %s mode", opts.RunID, len(identities), cfg.Browser, cfg.BrowserVersion, cfg.Mode)

	// The resolved command line layer goes last so it wins over whatever
	// the parent environment holds.
	cliEnv := config.Environ(opts.Params, configFile)
	cliEnv = append(cliEnv,
		config.EnvVar(config.KeyArtifactsDir)+"="+artifactsDir,
		config.EnvVar(config.KeyLogsDir)+"="+logsDir,
	)

	var mu sync.Mutex
	results := make([]WorkerResult, len(identities))
	stdout := &syncWriter{w: opts.Stdout}
	stderr := &syncWriter{w: opts.Stderr}

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range identities {
		i, id := i, id
		g.Go(func() error {
			res := runWorker(gctx, opts, id, cliEnv, stdout, stderr)
			if res.Err != nil {
				log.Warnf("worker %s: %v", id.Label(), res.Err)
			} else {
				log.Infof("worker %s exited with code %d", id.Label(), res.ExitCode)
			}

			mu.Lock()
			results[i] = res
			mu.Unlock()

			// A failing worker never stops the others
			return nil
		})
	}
	_ = g.Wait()
	result.Workers = results

	summary, err := report.Aggregate(artifactsDir)
	if err != nil {
		return result, err
	}
	end := opts.Now()
	summary.RunID = opts.RunID
	summary.StartTime = start
	summary.EndTime = end
	summary.Duration = end.Sub(start)
	summary.Workers = len(identities)

	// A worker that exited with the abort code but could not leave a marker
	for _, w := range results {
		if w.Aborted() && !summary.Aborted {
			summary.Aborted = true
			summary.AbortReason = fmt.Sprintf("worker %s stopped on a configuration error", w.Identity.Label())
		}
	}
	summary.WorkerErrors = workerErrors(results, summary.Records)
	result.Summary = summary

	if err := report.NewWriter(artifactsDir).WriteAll(summary); err != nil {
		return result, err
	}
	log.Infof("%s", summary.Headline())

	if cfg.Upload.Enabled {
		n, err := publish(ctx, cfg.Upload, opts.RunID, artifactsDir, logsDir)
		result.Published = n
		if err != nil {
			return result, err
		}
		log.Infof("published %d artifacts to %s/%s", n, cfg.Upload.Bucket, opts.RunID)
	}

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

func withDefaults(opts Options) Options {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if len(opts.Packages) == 0 {
		opts.Packages = DefaultPackages
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

// sources returns the configuration sources and the absolute env file path
// handed to the workers.
func sources(opts Options) (config.Sources, string, error) {
	src := config.DefaultSources(opts.Params)
	if opts.ConfigFile != "" {
		src.File = opts.ConfigFile
	}
	if opts.Sources != nil {
		src = *opts.Sources
	}

	if src.File == "" {
		return src, "", nil
	}
	abs, err := filepath.Abs(src.File)
	if err != nil {
		return src, "", fmt.Errorf("config file: %w", err)
	}
	return src, abs, nil
}

// resolve validates everything a worker would check before opening a
// browser, so a bad configuration never spawns a worker.
func resolve(src config.Sources) (config.RunConfiguration, error) {
	cfg, err := config.Resolve(src)
	if err != nil {
		return cfg, err
	}
	if _, err := capability.FromConfig(cfg); err != nil {
		return cfg, err
	}
	if _, err := endpoint.FromConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// plan assigns worker identities. A single worker runs sequentially.
func plan(workers int, runID string) []worker.Identity {
	if workers < 2 {
		return []worker.Identity{{RunID: runID}}
	}
	ids := make([]worker.Identity, workers)
	for i := range ids {
		ids[i] = worker.Identity{
			ID:    fmt.Sprintf("gw%d", i),
			Shard: worker.Shard{Index: i, Total: workers},
			RunID: runID,
		}
	}
	return ids
}

// command builds the worker command line.
func command(opts Options) (string, []string) {
	if len(opts.Command) > 0 {
		return opts.Command[0], append([]string{}, opts.Command[1:]...)
	}
	args := []string{"test"}
	if opts.Tags != "" {
		args = append(args, "-tags", opts.Tags)
	}
	args = append(args, "-count=1", "-p", "1")
	args = append(args, opts.Packages...)
	return "go", args
}

// workerErrors describes workers that exited non-zero without recording a
// single test, such as a package that failed to build.
func workerErrors(results []WorkerResult, records []report.Record) []string {
	reported := map[string]bool{}
	for _, r := range records {
		reported[r.Worker] = true
	}

	var errs []string
	for _, w := range results {
		label := w.Identity.Label()
		switch {
		case w.Err != nil:
			errs = append(errs, fmt.Sprintf("worker %s did not run: %v", label, w.Err))
		case w.ExitCode != 0 && !w.Aborted() && !reported[label]:
			errs = append(errs, fmt.Sprintf("worker %s exited %d without reporting results", label, w.ExitCode))
		}
	}
	return errs
}

func runWorker(ctx context.Context, opts Options, id worker.Identity, cliEnv []string, stdout, stderr io.Writer) WorkerResult {
	name, args := command(opts)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	env := append([]string{}, opts.Environ...)
	env = append(env, cliEnv...)
	cmd.Env = append(env, id.Env()...)
	cmd.Stdout = newPrefixWriter(stdout, id.Label())
	cmd.Stderr = newPrefixWriter(stderr, id.Label())

	res := WorkerResult{Identity: id}
	err := cmd.Run()
	flush(cmd.Stdout, cmd.Stderr)
	if err == nil {
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res
	}
	res.ExitCode = -1
	res.Err = fmt.Errorf("failed to run worker: %w", err)
	return res
}

func publish(ctx context.Context, cfg config.UploadConfig, runID string, dirs ...string) (int, error) {
	p, err := artifact.NewPublisher(cfg)
	if err != nil {
		return 0, err
	}
	return p.Publish(ctx, runID, dirs...)
}
