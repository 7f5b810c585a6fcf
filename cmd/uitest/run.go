package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/uitest/pkg/report"
	"github.com/entrhq/uitest/pkg/runner"
)

type runOptions struct {
	workers int
	tags    string
	dir     string
	command string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [packages...]",
		Short: "Run test packages in parallel workers",
		Long: `Run the given Go test packages (default ./...) in N worker processes.
Each worker runs a disjoint shard of the tests with its own log file and
artifacts; the results are merged into summary.json and latest.md.
Suites guarded by a build constraint need --tags.`,
		Example: `  uitest run -n 2 --env qa --tags e2e ./examples/e2e/...
  uitest run --env uat --browser firefox --browser-version 118 ./e2e/...
  uitest run --remote --headless ./e2e/login`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.workers < 1 {
				return &usageError{fmt.Errorf("--workers must be at least 1, got %d", opts.workers)}
			}

			ropts := runner.Options{
				Workers:    opts.workers,
				Packages:   args,
				Tags:       opts.tags,
				ConfigFile: root.configFile,
				Params:     root.params(cmd),
				Dir:        opts.dir,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			}
			if opts.command != "" {
				ropts.Command = strings.Fields(opts.command)
			}

			res, err := runner.Run(cmd.Context(), ropts)
			printSummary(cmd.OutOrStdout(), res.Summary)
			if err != nil {
				return err
			}
			if res.Published > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d artifacts under %s\n", labelStyle.Render("published:"), res.Published, res.Summary.RunID)
			}
			if !res.OK() {
				return errTestsFailed
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "n", 1, "Number of worker processes")
	cmd.Flags().StringVar(&opts.tags, "tags", "", "Build tags passed to go test -tags")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "Working directory for the workers")
	cmd.Flags().StringVar(&opts.command, "command", "", "Worker command replacing go test (flags are appended)")
	return cmd
}

// printSummary renders the run outcome. A configuration abort reads
// differently from a run with failing tests.
func printSummary(w io.Writer, s report.Summary) {
	var box strings.Builder
	switch {
	case s.Aborted:
		box.WriteString(failStyle.Render("✗ " + s.Headline()))
	case !s.OK():
		box.WriteString(failStyle.Render("✗ " + s.Headline()))
		for _, r := range s.Records {
			if r.Outcome == report.Failed {
				box.WriteString("\n  " + mutedStyle.Render(r.Test+" ("+r.Worker+")"))
			}
		}
	default:
		box.WriteString(passStyle.Render("✓ " + s.Headline()))
	}

	if s.Workers > 0 {
		box.WriteString("\n" + mutedStyle.Render(fmt.Sprintf("%d worker(s) in %s", s.Workers, s.Duration.Round(time.Millisecond))))
	}

	fmt.Fprintln(w, summaryBox(s).Render(box.String()))
}
