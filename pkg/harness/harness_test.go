package harness

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/uitest/pkg/config"
	"github.com/entrhq/uitest/pkg/endpoint"
	"github.com/entrhq/uitest/pkg/report"
	"github.com/entrhq/uitest/pkg/session"
	"github.com/entrhq/uitest/pkg/worker"
)

type fakeDriver struct {
	mu      sync.Mutex
	quits   int
	quitErr error
	shot    []byte
}

func (d *fakeDriver) ID() string { return "fake-session" }
func (d *fakeDriver) Navigate(string) error { return nil }
func (d *fakeDriver) CurrentURL() (string, error) { return "https://qa.example.com", nil }
func (d *fakeDriver) Title() (string, error) { return "Home", nil }
func (d *fakeDriver) Screenshot() ([]byte, error) { return d.shot, nil }
func (d *fakeDriver) PageSource() (string, error) { return "<html></html>", nil }
func (d *fakeDriver) Prepare(opts session.PrepareOptions) error { return nil }

func (d *fakeDriver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quits++
	return d.quitErr
}

type fakeDialer struct {
	driver *fakeDriver
	err    error
	dials  int
}

func (f *fakeDialer) Dial(ctx context.Context, ep endpoint.Local, req session.Request) (session.Driver, error) {
	f.dials++
	if f.err != nil {
		return nil, f.err
	}
	return f.driver, nil
}

// fakeTB stands in for the *testing.T of a test under the harness so its
// failures do not fail the real test.
type fakeTB struct {
	testing.TB
	name     string
	mu       sync.Mutex
	failed   bool
	skipped  bool
	messages []string
	cleanups []func()
}

func (f *fakeTB) Helper() {}
func (f *fakeTB) Name() string { return f.name }

func (f *fakeTB) Cleanup(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups = append(f.cleanups, fn)
}

func (f *fakeTB) Failed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed
}

func (f *fakeTB) Skipped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.skipped
}

func (f *fakeTB) Errorf(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = true
	f.messages = append(f.messages, fmt.Sprintf(format, args...))
}

func (f *fakeTB) Fatalf(format string, args ...any) {
	f.Errorf(format, args...)
	runtime.Goexit()
}

func (f *fakeTB) Skipf(format string, args ...any) {
	f.mu.Lock()
	f.skipped = true
	f.messages = append(f.messages, fmt.Sprintf(format, args...))
	f.mu.Unlock()
	runtime.Goexit()
}

// run executes body the way the testing package runs a test: in its own
// goroutine, followed by the registered cleanups in reverse order.
func (f *fakeTB) run(body func(tb testing.TB)) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		body(f)
	}()
	<-done

	for i := len(f.cleanups) - 1; i >= 0; i-- {
		f.cleanups[i]()
	}
}

type fixture struct {
	dir    string
	dialer *fakeDialer
	driver *fakeDriver
}

func newFixture(t *testing.T) *fixture {
	dir := t.TempDir()
	driver := &fakeDriver{shot: []byte("\x89PNG fake")}
	return &fixture{
		dir:    dir,
		driver: driver,
		dialer: &fakeDialer{driver: driver},
	}
}

func (fx *fixture) artifacts() string { return filepath.Join(fx.dir, "reports") }

func (fx *fixture) options(environ []string, vars map[string]string) Options {
	base := []string{
		"UITEST_BASE_URL=https://qa.example.com",
		"UITEST_ARTIFACTS_DIR=" + fx.artifacts(),
		"UITEST_LOGS_DIR=" + filepath.Join(fx.dir, "logs"),
		"UITEST_TIMEOUTS_SESSION_OPEN=5s",
	}
	return Options{
		Sources: &config.Sources{Environ: append(base, environ...)},
		Getenv:  func(k string) string { return vars[k] },
		Factory: session.FactoryOptions{
			Local: map[config.LocalDriver]session.LocalDialer{
				config.DriverWebDriver: fx.dialer,
			},
		},
		Now: func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) },
	}
}

func (fx *fixture) newHarness(t *testing.T, vars map[string]string) *Harness {
	if vars == nil {
		vars = map[string]string{worker.EnvWorker: "gw0", worker.EnvRunID: "run-1"}
	}
	h, err := New(fx.options(nil, vars))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func results(t *testing.T, h *Harness, dir string) report.Summary {
	require.NoError(t, h.Close())
	s, err := report.Aggregate(dir)
	require.NoError(t, err)
	return s
}

func TestNewResolvesConfiguration(t *testing.T) {
	fx := newFixture(t)
	h := fx.newHarness(t, nil)

	assert.Equal(t, config.EnvQA, h.Config().Environment)
	assert.Equal(t, "chrome", string(h.Spec().Browser))
	assert.Equal(t, config.ModeLocal, h.Endpoint().Mode())
	assert.Equal(t, "gw0", h.Worker().ID)
	assert.NotNil(t, h.Logger("page"))
}

func TestNewConfigErrorOpensNoBrowser(t *testing.T) {
	fx := newFixture(t)
	opts := fx.options([]string{"UITEST_REMOTE_ENABLED=true", "UITEST_CLOUD_ENABLED=true"}, nil)

	_, err := New(opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrMutuallyExclusive))
	assert.Zero(t, fx.dialer.dials)
}

func TestAbort(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer
	vars := map[string]string{
		"UITEST_ARTIFACTS_DIR": dir,
		worker.EnvWorker:       "gw1",
	}

	code := abort(config.NewError(config.KeyBaseURL, "base_url is required"), &stderr, func(k string) string { return vars[k] })

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr.String(), "no tests ran due to configuration")

	s, err := report.Aggregate(dir)
	require.NoError(t, err)
	assert.True(t, s.Aborted)
	assert.Contains(t, s.AbortReason, "gw1")
	assert.Contains(t, s.AbortReason, "base_url is required")
}

func TestAbortOtherError(t *testing.T) {
	var stderr bytes.Buffer
	code := abort(errors.New("boom"), &stderr, func(string) string { return "" })
	assert.Equal(t, 1, code)
}

func TestSessionPassed(t *testing.T) {
	fx := newFixture(t)
	h := fx.newHarness(t, nil)

	tb := &fakeTB{name: "TestLogin"}
	var got *session.Session
	tb.run(func(tb testing.TB) {
		got = h.Session(tb)
	})

	require.NotNil(t, got)
	assert.Equal(t, "fake-session", got.ID)
	assert.True(t, got.Closed())
	assert.Equal(t, 1, fx.driver.quits)

	s := results(t, h, fx.artifacts())
	require.Len(t, s.Records, 1)
	assert.Equal(t, report.Passed, s.Records[0].Outcome)
	assert.Equal(t, "gw0", s.Records[0].Worker)
	assert.Empty(t, s.Records[0].Artifacts)
}

func TestSessionFailureCapturesScreenshot(t *testing.T) {
	fx := newFixture(t)
	h := fx.newHarness(t, nil)

	tb := &fakeTB{name: "TestCheckout"}
	tb.run(func(tb testing.TB) {
		h.Session(tb)
		tb.Errorf("element not found")
	})

	s := results(t, h, fx.artifacts())
	require.Len(t, s.Records, 1)
	rec := s.Records[0]
	assert.Equal(t, report.Failed, rec.Outcome)
	require.Len(t, rec.Artifacts, 1)
	assert.Equal(t, filepath.Join(fx.artifacts(), "screenshots", "TestCheckout_gw0.png"), rec.Artifacts[0])

	data, err := os.ReadFile(rec.Artifacts[0])
	require.NoError(t, err)
	assert.Equal(t, fx.driver.shot, data)
	assert.Equal(t, 1, fx.driver.quits)
}

func TestSessionOpenFailureFailsOnlyTheTest(t *testing.T) {
	fx := newFixture(t)
	fx.dialer.err = errors.New("connection refused")
	h := fx.newHarness(t, nil)

	tb := &fakeTB{name: "TestLogin"}
	reached := false
	tb.run(func(tb testing.TB) {
		h.Session(tb)
		reached = true
	})

	assert.False(t, reached)
	assert.True(t, tb.Failed())
	require.Len(t, tb.messages, 1)
	assert.Contains(t, tb.messages[0], "connection refused")

	s := results(t, h, fx.artifacts())
	require.Len(t, s.Records, 1)
	assert.Equal(t, report.Failed, s.Records[0].Outcome)
	assert.Contains(t, s.Records[0].Error, "connection refused")
	assert.False(t, s.Aborted)
}

func TestSessionTeardownErrorIsNotEscalated(t *testing.T) {
	fx := newFixture(t)
	fx.driver.quitErr = errors.New("session already deleted")
	h := fx.newHarness(t, nil)

	tb := &fakeTB{name: "TestLogout"}
	tb.run(func(tb testing.TB) {
		h.Session(tb)
	})

	assert.False(t, tb.Failed())
	s := results(t, h, fx.artifacts())
	require.Len(t, s.Records, 1)
	assert.Equal(t, report.Passed, s.Records[0].Outcome)
}

func TestSessionSkipsOtherShard(t *testing.T) {
	fx := newFixture(t)
	h := fx.newHarness(t, map[string]string{worker.EnvWorker: "gw0", worker.EnvShard: "0/2"})

	name := ""
	for i := 0; i < 100; i++ {
		candidate := fmt.Sprintf("TestCase%d", i)
		if !h.Worker().Shard.Owns(candidate) {
			name = candidate
			break
		}
	}
	require.NotEmpty(t, name)

	tb := &fakeTB{name: name}
	tb.run(func(tb testing.TB) {
		h.Session(tb)
	})

	assert.True(t, tb.Skipped())
	assert.Zero(t, fx.dialer.dials)

	s := results(t, h, fx.artifacts())
	assert.Empty(t, s.Records)
}

type fakeM struct {
	code int
	ran  bool
}

func (m *fakeM) Run() int {
	m.ran = true
	return m.code
}

func TestRunClosesHarness(t *testing.T) {
	fx := newFixture(t)
	h := fx.newHarness(t, nil)

	m := &fakeM{code: 1}
	assert.Equal(t, 1, h.Run(m))
	assert.True(t, m.ran)

	_, err := os.Stat(h.Worker().MetricsPath())
	assert.NoError(t, err)
}

func TestFlagsParams(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := RegisterFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"-uitest.browser=firefox",
		"-uitest.remote",
		"-uitest.config=configs/qa.yaml",
	}))

	assert.Equal(t, "configs/qa.yaml", flags.ConfigFile)
	assert.Equal(t, config.Params{
		config.KeyBrowser:       "firefox",
		config.KeyRemoteEnabled: "true",
	}, flags.Params())
}

func TestFlagsParamsUnset(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	assert.Empty(t, flags.Params())

	var nilFlags *Flags
	assert.Empty(t, nilFlags.Params())
}
