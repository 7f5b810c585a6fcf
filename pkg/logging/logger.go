package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level label written to the log.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// fileTimestamp is the layout of the timestamp embedded in log file names.
const fileTimestamp = "20060102_150405"

// FileName returns the log file name for a worker. An empty worker id means a
// sequential (single process) run.
func FileName(workerID string, ts time.Time) string {
	if workerID == "" {
		return fmt.Sprintf("test_%s.log", ts.Format(fileTimestamp))
	}
	return fmt.Sprintf("test_%s_%s.log", workerID, ts.Format(fileTimestamp))
}

// Sink is the log file of one worker process. Every component logger of the
// process writes into it until Close.
type Sink struct {
	workerID  string
	file      *os.File
	logger    *log.Logger
	mu        sync.Mutex
	level     Level
	path      string
	closed    bool
	closeOnce sync.Once
}

// Open creates the worker's log file in dir.
//
// If the directory cannot be created or the file cannot be opened, it returns
// a fallback sink that writes to stderr along with the error. Callers can
// check the error to detect fallback mode.
func Open(dir, workerID string, ts time.Time, level Level) (*Sink, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		err = fmt.Errorf("failed to create log directory: %w", err)
		return newFallbackSink(workerID, level, err), err
	}

	path := filepath.Join(dir, FileName(workerID, ts))

	// Append so a restarted worker keeps the earlier records
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackSink(workerID, level, err), err
	}

	return &Sink{
		workerID: workerID,
		file:     file,
		logger:   log.New(file, "", 0), // timestamps are formatted per entry
		level:    level,
		path:     path,
	}, nil
}

// newFallbackSink creates a sink that writes to stderr when file logging fails
func newFallbackSink(workerID string, level Level, err error) *Sink {
	logger := log.New(os.Stderr, "", 0)
	s := &Sink{
		workerID: workerID,
		logger:   logger,
		level:    level,
	}
	s.write("logging", LevelWarn, fmt.Sprintf("failed to initialize file logging: %v; falling back to stderr", err))
	return s
}

// formatLogEntry creates a log line with timestamp, component and level
func formatLogEntry(component string, level Level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, component, level, message)
}

func (s *Sink) write(component string, level Level, message string) {
	if level < s.level {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.logger.Println(formatLogEntry(component, level, message))
}

// Logger returns a logger that tags every record with component.
func (s *Sink) Logger(component string) *Logger {
	return &Logger{sink: s, component: component}
}

// Writer returns an io.Writer appending raw output (e.g. from a driver
// binary) to the sink.
func (s *Sink) Writer() io.Writer {
	return sinkWriter{s}
}

// Redirect points the standard library's default logger at the sink, where
// each entry becomes an INFO record of the "stdlog" component. It returns a
// function restoring the previous logger settings.
func (s *Sink) Redirect() (restore func()) {
	prevOut := log.Writer()
	prevFlags := log.Flags()
	prevPrefix := log.Prefix()
	log.SetOutput(stdlogWriter{s})
	log.SetFlags(0)
	log.SetPrefix("")
	return func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
		log.SetPrefix(prevPrefix)
	}
}

// WorkerID returns the worker the sink belongs to.
func (s *Sink) WorkerID() string {
	return s.workerID
}

// Path returns the path to the log file, or "" for a stderr fallback.
func (s *Sink) Path() string {
	return s.path
}

// Close flushes and closes the log file. Safe to call multiple times.
func (s *Sink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.closed = true
		if s.file == nil {
			return
		}
		if syncErr := s.file.Sync(); syncErr != nil {
			err = fmt.Errorf("failed to flush log file: %w", syncErr)
		}
		if closeErr := s.file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close log file: %w", closeErr)
		}
	})
	return err
}

type sinkWriter struct {
	s *Sink
}

func (w sinkWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()

	if w.s.closed {
		return len(p), nil
	}
	return w.s.logger.Writer().Write(p)
}

// stdlogWriter receives one standard logger entry per Write.
type stdlogWriter struct {
	s *Sink
}

func (w stdlogWriter) Write(p []byte) (int, error) {
	w.s.write("stdlog", LevelInfo, strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Logger writes component-tagged records into a Sink.
type Logger struct {
	sink      *Sink
	component string
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{}
}

func (l *Logger) logf(level Level, format string, v ...any) {
	if l == nil || l.sink == nil {
		return
	}
	l.sink.write(l.component, level, fmt.Sprintf(format, v...))
}

// Printf logs a formatted message at info level
func (l *Logger) Printf(format string, v ...any) {
	l.logf(LevelInfo, format, v...)
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...any) {
	l.logf(LevelDebug, format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...any) {
	l.logf(LevelInfo, format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...any) {
	l.logf(LevelWarn, format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...any) {
	l.logf(LevelError, format, v...)
}

// Component returns the component tag.
func (l *Logger) Component() string {
	return l.component
}
