// Package harness wires configuration, the worker context and the session
// factory into Go tests. A test package calls New from TestMain and
// Session from each test:
//
//	func TestMain(m *testing.M) {
//		flags := harness.RegisterFlags(flag.CommandLine)
//		flag.Parse()
//		h, err := harness.New(harness.Options{Flags: flags})
//		if err != nil {
//			os.Exit(harness.Abort(err))
//		}
//		suite = h
//		os.Exit(h.Run(m))
//	}
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/entrhq/uitest/pkg/artifact"
	"github.com/entrhq/uitest/pkg/capability"
	"github.com/entrhq/uitest/pkg/config"
	"github.com/entrhq/uitest/pkg/endpoint"
	"github.com/entrhq/uitest/pkg/logging"
	"github.com/entrhq/uitest/pkg/report"
	"github.com/entrhq/uitest/pkg/session"
	"github.com/entrhq/uitest/pkg/worker"
)

// ExitConfigError is the exit code of a worker that stopped before running
// any test because its configuration was invalid.
const ExitConfigError = 3

const separator = "================================================================================"

// Options configure New. Zero values use the process environment and the
// real session backends.
type Options struct {
	Flags *Flags

	// Sources replaces the default configuration sources
	Sources *config.Sources

	// Getenv reads the worker identity
	Getenv func(string) string

	// Factory configures the session factory. Logger, Metrics and
	// DriverOutput are filled in from the worker when unset.
	Factory session.FactoryOptions

	// Stderr receives abort messages
	Stderr io.Writer

	Now func() time.Time
}

// Harness is the per-process test fixture.
type Harness struct {
	cfg      config.RunConfiguration
	spec     capability.BrowserSpec
	endpoint endpoint.Endpoint
	worker   *worker.Context
	factory  *session.Factory
	log      *logging.Logger
	now      func() time.Time
	restore  func()

	closeOnce sync.Once
	closeErr  error
}

// New resolves the configuration and prepares the worker. Any
// configuration problem is returned before a browser is touched; pass it to
// Abort.
func New(opts Options) (*Harness, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	src := config.DefaultSources(opts.Flags.Params())
	if opts.Flags != nil && opts.Flags.ConfigFile != "" {
		src.File = opts.Flags.ConfigFile
	}
	if opts.Sources != nil {
		src = *opts.Sources
	}

	cfg, err := config.Resolve(src)
	if err != nil {
		return nil, err
	}

	spec, err := capability.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	ep, err := endpoint.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	id, err := worker.FromEnv(opts.Getenv)
	if err != nil {
		return nil, fmt.Errorf("worker identity: %w", err)
	}

	wc, err := worker.Open(cfg, id, opts.Now())
	if err != nil {
		return nil, err
	}

	fo := opts.Factory
	if fo.Logger == nil {
		fo.Logger = wc.Logger("session")
	}
	if fo.Metrics == nil {
		fo.Metrics = wc.Metrics
	}
	if fo.DriverOutput == nil {
		fo.DriverOutput = wc.Sink.Writer()
	}

	h := &Harness{
		cfg:      cfg,
		spec:     spec,
		endpoint: ep,
		worker:   wc,
		factory:  session.NewFactory(fo),
		log:      wc.Logger("harness"),
		now:      opts.Now,
		restore:  wc.Sink.Redirect(),
	}

	h.log.Infof("browser %s on %s", spec, ep)
	for _, s := range cfg.Describe() {
		h.log.Debugf("%s = %s (%s)", s.Key, s.Value, s.Source)
	}
	return h, nil
}

// Abort reports a configuration error that stopped the worker and returns
// the exit code to use. When the artifacts directory is known from the
// environment an abort marker is written for the controller.
func Abort(err error) int {
	return abort(err, os.Stderr, os.Getenv)
}

func abort(err error, stderr io.Writer, getenv func(string) string) int {
	fmt.Fprintf(stderr, "no tests ran due to configuration: %v\n", err)

	if dir := getenv(config.EnvVar(config.KeyArtifactsDir)); dir != "" {
		if markErr := report.WriteAbort(dir, getenv(worker.EnvWorker), err.Error()); markErr != nil {
			fmt.Fprintf(stderr, "failed to record abort: %v\n", markErr)
		}
	}

	if config.IsConfigError(err) {
		return ExitConfigError
	}
	return 1
}

// TestRunner is satisfied by *testing.M.
type TestRunner interface {
	Run() int
}

// Run runs the tests and closes the harness, returning the exit code.
func (h *Harness) Run(m TestRunner) int {
	code := m.Run()
	if err := h.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "harness: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	return code
}

// Close releases the factory and the worker context. Safe to call multiple
// times.
func (h *Harness) Close() error {
	h.closeOnce.Do(func() {
		var errs []error
		if err := h.factory.Close(); err != nil {
			errs = append(errs, err)
		}
		h.restore()
		if err := h.worker.Close(); err != nil {
			errs = append(errs, err)
		}
		h.closeErr = errors.Join(errs...)
	})
	return h.closeErr
}

// Config returns the resolved configuration.
func (h *Harness) Config() config.RunConfiguration {
	return h.cfg
}

// Spec returns the browser the worker runs.
func (h *Harness) Spec() capability.BrowserSpec {
	return h.spec
}

// Endpoint returns where sessions are opened.
func (h *Harness) Endpoint() endpoint.Endpoint {
	return h.endpoint
}

// Worker returns the worker context.
func (h *Harness) Worker() *worker.Context {
	return h.worker
}

// Logger returns a logger for component writing to the worker's log file.
func (h *Harness) Logger(component string) *logging.Logger {
	return h.worker.Logger(component)
}

// Session opens a browser session for t and closes it when t ends. Tests
// owned by another shard are skipped. A session that cannot be opened fails
// t; the failure is recorded like any other.
func (h *Harness) Session(t testing.TB) *session.Session {
	t.Helper()

	name := t.Name()
	if !h.worker.Shard.Owns(name) {
		t.Skipf("owned by shard other than %s", h.worker.Shard)
	}

	log := h.worker.Logger("test")
	log.Infof(separator)
	log.Infof("TEST START: %s", name)
	log.Infof(separator)

	start := h.now()
	var (
		s       *session.Session
		openErr error
	)

	t.Cleanup(func() {
		h.finish(t, log, name, start, s, openErr)
	})

	s, openErr = h.factory.Open(context.Background(), h.endpoint, h.spec, h.cfg, session.OpenOptions{TestName: name})
	if openErr != nil {
		t.Fatalf("failed to open browser session: %v", openErr)
	}
	return s
}

// finish records the outcome of t and tears its session down. Teardown
// errors are logged by the factory and never fail the test.
func (h *Harness) finish(t testing.TB, log *logging.Logger, name string, start time.Time, s *session.Session, openErr error) {
	end := h.now()
	rec := report.Record{
		Test:     name,
		Worker:   h.worker.Label(),
		Outcome:  report.Passed,
		Duration: end.Sub(start),
		Finished: end,
	}

	switch {
	case t.Failed():
		rec.Outcome = report.Failed
	case t.Skipped():
		rec.Outcome = report.Skipped
	}
	if openErr != nil {
		rec.Error = openErr.Error()
	}

	if s != nil {
		if rec.Outcome == report.Failed {
			if path, err := h.capture(s, name); err != nil {
				log.Warnf("failed to capture screenshot: %v", err)
			} else {
				rec.Artifacts = append(rec.Artifacts, path)
				log.Infof("screenshot saved to %s", path)
			}
		}
		s.Teardown()
	}

	h.worker.Metrics.ObserveTest(string(rec.Outcome))
	if err := h.worker.Results.Record(rec); err != nil {
		log.Errorf("failed to record result: %v", err)
	}

	log.Infof(separator)
	log.Infof("TEST END: %s (%s)", name, strings.ToUpper(string(rec.Outcome)))
	log.Infof(separator)
}

// capture writes a screenshot of s to the test's allocated path.
func (h *Harness) capture(s *session.Session, name string) (string, error) {
	path, err := h.worker.Artifacts.Allocate(name, h.worker.ID, artifact.Screenshot)
	if err != nil {
		return "", err
	}
	data, err := s.Driver().Screenshot()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}
