package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckpointCommand(ctx *commandContext) *cobra.Command {
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or edit the list of completed documents",
	}

	var jsonOut bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "List completed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.checkpointStore()
			if err != nil {
				return err
			}
			ids := store.Load()
			if jsonOut {
				return writeJSON(cmd, ids)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checkpoint: %s\n", store.Path())
			if len(ids) == 0 {
				fmt.Fprintln(out, "No documents completed yet")
				return nil
			}
			rows := make([][]string, 0, len(ids))
			for i, id := range ids {
				rows = append(rows, []string{fmt.Sprint(i + 1), id})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Document"}, rows, []columnAlignment{alignRight, alignLeft}))
			return nil
		},
	}
	showCmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")

	addCmd := &cobra.Command{
		Use:   "add <id>...",
		Short: "Mark documents as completed so the worker skips them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.checkpointStore()
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := store.Append(id); err != nil {
					return fmt.Errorf("add %q: %w", id, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d document(s) completed\n", len(args))
			return nil
		},
	}

	var confirm bool
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget all completed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return errors.New("refusing to reset without --yes; every document will be processed again")
			}
			store, err := ctx.checkpointStore()
			if err != nil {
				return err
			}
			previous := len(store.Load())
			if err := store.Reset(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completed document(s)\n", previous)
			return nil
		},
	}
	resetCmd.Flags().BoolVar(&confirm, "yes", false, "Confirm the reset")

	checkpointCmd.AddCommand(showCmd, addCmd, resetCmd)
	return checkpointCmd
}
