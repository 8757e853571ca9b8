package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docintake/internal/events"
	"docintake/internal/preflight"
	"docintake/internal/runner"
	"docintake/internal/supervisor"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var verbose bool
	var jsonOut bool
	var skipChecks bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the classification worker until it finishes",
		Long: "Spawns the configured worker, streams its progress, and records completed\n" +
			"documents in the checkpoint so an interrupted run resumes where it stopped.\n" +
			"Ctrl-C stops the worker gracefully.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if !skipChecks {
				if failed := preflight.Failed(preflight.RunAll(signalCtx, cfg)); len(failed) > 0 {
					colorize := shouldColorize(cmd.ErrOrStderr())
					for _, result := range failed {
						fmt.Fprintln(cmd.ErrOrStderr(), renderStatusLine(result.Name, statusError, result.Detail, colorize))
					}
					return fmt.Errorf("preflight failed (%d checks); run 'docintake check' for details", len(failed))
				}
			}

			r, err := runner.New(cfg, ctx.log())
			if err != nil {
				return err
			}
			defer r.Close()

			out := cmd.OutOrStdout()
			if jsonOut {
				r.Bus().Subscribe("json", jsonEventWriter(out))
			} else {
				renderer := &progressRenderer{out: out, colorize: shouldColorize(out), verbose: verbose}
				r.Bus().Subscribe("console", renderer.handle)
			}

			summary, runErr := r.Run(signalCtx)
			if runErr != nil {
				return runErr
			}
			if !jsonOut {
				printRunSummary(out, summary, shouldColorize(out))
			}
			switch {
			case summary.Stopped:
				return &exitError{code: 130, err: errors.New("worker stopped before finishing")}
			case !summary.Completion.Success:
				return &exitError{code: 2, err: fmt.Errorf("worker run failed: %s", summary.Completion.Message)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Echo worker log output")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit events as JSON lines")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Do not run preflight checks first")
	return cmd
}

// progressRenderer prints bus events for a terminal.
type progressRenderer struct {
	out      io.Writer
	colorize bool
	verbose  bool
	mu       sync.Mutex
}

func (p *progressRenderer) handle(ev events.Event) error {
	line := p.format(ev)
	if line == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.out, line)
	return err
}

func (p *progressRenderer) format(ev events.Event) string {
	switch ev.Kind {
	case events.KindProgress:
		if ev.Progress == nil {
			return ""
		}
		label := ev.Progress.Item
		if label == "" {
			label = ev.Progress.Message
		}
		if ev.Progress.Total > 0 {
			width := len(fmt.Sprint(ev.Progress.Total))
			return fmt.Sprintf("[%*d/%d] %s", width, ev.Progress.Current, ev.Progress.Total, label)
		}
		return "[...] " + label
	case events.KindResult:
		if ev.Result == nil {
			return ""
		}
		if ev.Result.Success {
			line := "  ok   " + ev.Result.ID
			if ev.Result.Output != "" {
				line += " -> " + ev.Result.Output
			}
			return paint(line, ansiGreen, p.colorize)
		}
		line := "  fail " + ev.Result.ID
		if ev.Result.Message != "" {
			line += ": " + ev.Result.Message
		}
		return paint(line, ansiRed, p.colorize)
	case events.KindError:
		return paint("error: "+ev.Message, ansiRed, p.colorize)
	case events.KindComplete:
		if ev.Completion == nil {
			return ""
		}
		kind := statusOK
		if !ev.Completion.Success {
			kind = statusError
		}
		return renderStatusLine("Completion", kind, fmt.Sprintf("%s (%s)", ev.Completion.Message, ev.Completion.Source), p.colorize)
	case events.KindLog, events.KindUnknown:
		if !p.verbose {
			return ""
		}
		prefix := "  | "
		if ev.Stream == events.StreamStderr {
			prefix = "  ! "
		}
		return prefix + ev.Raw
	}
	return ""
}

func printRunSummary(out io.Writer, summary supervisor.RunSummary, colorize bool) {
	for _, line := range renderSectionHeader("Run summary", colorize) {
		fmt.Fprintln(out, line)
	}
	kind := statusOK
	outcome := "succeeded"
	switch {
	case summary.Stopped:
		kind, outcome = statusWarn, "stopped"
	case !summary.Completion.Success:
		kind, outcome = statusError, "failed"
	}
	fmt.Fprintln(out, renderStatusLine("Outcome", kind, outcome, colorize))
	fmt.Fprintln(out, renderStatusLine("Documents", statusInfo, fmt.Sprintf("%d processed, %d failed", summary.Results, summary.Failures), colorize))
	fmt.Fprintln(out, renderStatusLine("Exit code", statusInfo, fmt.Sprint(summary.ExitCode), colorize))
	fmt.Fprintln(out, renderStatusLine("Elapsed", statusInfo, summary.Duration().Round(time.Second).String(), colorize))
}

func jsonEventWriter(out io.Writer) func(events.Event) error {
	var mu sync.Mutex
	return func(ev events.Event) error {
		payload := map[string]any{
			"seq":    ev.Seq,
			"ts":     ev.Time.UTC().Format(time.RFC3339Nano),
			"kind":   ev.Kind,
			"stream": ev.Stream,
			"run_id": ev.RunID,
		}
		if ev.Message != "" {
			payload["message"] = ev.Message
		}
		if ev.Progress != nil {
			payload["current"] = ev.Progress.Current
			payload["total"] = ev.Progress.Total
			payload["item"] = ev.Progress.Item
		}
		if ev.Result != nil {
			payload["id"] = ev.Result.ID
			payload["success"] = ev.Result.Success
		}
		if ev.Completion != nil {
			payload["success"] = ev.Completion.Success
			payload["source"] = ev.Completion.Source
		}
		mu.Lock()
		defer mu.Unlock()
		return writeJSONLine(out, payload)
	}
}

