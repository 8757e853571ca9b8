package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docintake/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool
	var keep int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent worker runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}
			now := time.Now()
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				exit := "-"
				if run.ExitCode != nil {
					exit = fmt.Sprint(*run.ExitCode)
				}
				rows = append(rows, []string{
					shortID(run.RunID),
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					string(run.Status()),
					fmt.Sprint(run.Results),
					fmt.Sprint(run.Failures),
					exit,
					run.Duration(now).Round(time.Second).String(),
				})
			}
			headers := []string{"Run", "Started", "Status", "Done", "Failed", "Exit", "Elapsed"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show (0 for all)")
	historyCmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old run records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()
			removed, err := store.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run record(s)\n", removed)
			return nil
		},
	}
	pruneCmd.Flags().IntVar(&keep, "keep", 100, "Number of most recent runs to keep")
	historyCmd.AddCommand(pruneCmd)
	return historyCmd
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
