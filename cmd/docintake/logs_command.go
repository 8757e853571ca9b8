package main

import (
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docintake/internal/logging"
	"docintake/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var raw bool
	var filter logs.Filter

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the docintake log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Paths.LogDir == "" {
				return errors.New("paths.log_dir is not configured")
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)
			out := cmd.OutOrStdout()
			emit := func(batch []string) {
				for _, line := range filter.Apply(batch) {
					if !raw {
						line = logs.Format(line)
					}
					fmt.Fprintln(out, line)
				}
			}

			tailCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			result, err := logs.Tail(tailCtx, path, logs.TailOptions{Offset: -1, Limit: lines})
			if err != nil {
				return err
			}
			emit(result.Lines)
			offset := result.Offset
			for follow {
				result, err = logs.Tail(tailCtx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: 5 * time.Second})
				if tailCtx.Err() != nil {
					return nil
				}
				if err != nil {
					return err
				}
				emit(result.Lines)
				offset = result.Offset
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON records as written")
	cmd.Flags().StringVar(&filter.RunID, "run", "", "Only show records for this run id (prefix match)")
	cmd.Flags().StringVar(&filter.Component, "component", "", "Only show records from this component")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level (debug, info, warn, error)")
	return cmd
}
