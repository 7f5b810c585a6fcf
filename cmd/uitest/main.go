// Package main provides the uitest command line: it resolves run
// configurations and drives parallel browser test runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/uitest/pkg/config"
	"github.com/entrhq/uitest/pkg/harness"
)

// version can be set during build with -ldflags
var version = "0.1.0"

// Exit codes
const (
	ExitCodeSuccess = 0
	// ExitCodeFailure indicates failed tests or a general error
	ExitCodeFailure = 1
	// ExitCodeUsage indicates invalid arguments
	ExitCodeUsage = 2
	// ExitCodeConfig indicates the run stopped on a configuration error
	ExitCodeConfig = harness.ExitConfigError
)

func main() {
	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nStopping workers...")
		cancel()
	}()

	cmd := newRootCmd()
	err := cmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(exitCode(err))
	}
}

// errTestsFailed is returned by run when the summary is not green.
var errTestsFailed = errors.New("tests failed")

// usageError marks invalid command line input.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if config.IsConfigError(err) {
		return ExitCodeConfig
	}
	var usage *usageError
	if errors.As(err, &usage) {
		return ExitCodeUsage
	}
	return ExitCodeFailure
}
