package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docintake/internal/preflight"
)

func newPendingCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List source documents the next run will process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.checkpointStore()
			if err != nil {
				return err
			}
			done := make(map[string]struct{})
			for _, id := range store.Load() {
				done[id] = struct{}{}
			}
			backlog, err := preflight.ScanBacklog(cfg.Paths.SourceDir, func(id string) bool {
				_, ok := done[id]
				return ok
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, backlog)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s in %s\n", backlog.Detail(), backlog.SourceDir)
			for _, name := range backlog.Pending {
				fmt.Fprintf(out, "  %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}
