package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"docintake/internal/filetree"
	"docintake/internal/metrics"
)

func newTreeCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Browse and reorganize the classified content tree",
		Long: "Paths are relative to paths.content_dir. Operations never overwrite an\n" +
			"existing entry and refuse paths that resolve outside the content root.",
	}
	treeCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit the operation result as JSON")

	// report prints the outcome of a mutating operation and converts it to a
	// command error.
	report := func(cmd *cobra.Command, op, okMessage string, err error) error {
		result := filetree.Outcome(err)
		metrics.RecordTreeOperation(op, result.Code)
		if result.Success {
			result.Message = okMessage
		}
		if jsonOut {
			if encErr := writeJSON(cmd, result); encErr != nil {
				return encErr
			}
			if !result.Success {
				return &exitError{code: 1, err: fmt.Errorf("%s: %s", result.Code, result.Message)}
			}
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), okMessage)
		return nil
	}

	lsCmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.treeManager()
			if err != nil {
				return err
			}
			rel := "."
			if len(args) == 1 {
				rel = args[0]
			}
			listing, err := mgr.List(rel)
			metrics.RecordTreeOperation("list", filetree.Outcome(err).Code)
			if err != nil {
				if jsonOut {
					_ = writeJSON(cmd, filetree.Outcome(err))
				}
				return err
			}
			if jsonOut {
				return writeJSON(cmd, listing)
			}
			nodes := listing.Nodes()
			if len(nodes) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is empty\n", listing.Path)
				return nil
			}
			rows := make([][]string, 0, len(nodes))
			for _, node := range nodes {
				rows = append(rows, []string{string(node.Kind), node.RelativePath})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Type", "Path"}, rows, nil))
			return nil
		},
	}

	mkdirCmd := &cobra.Command{
		Use:   "mkdir <parent> <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.treeManager()
			if err != nil {
				return err
			}
			err = mgr.CreateFolder(args[0], args[1])
			return report(cmd, "create_folder", fmt.Sprintf("Created %s/%s", args[0], args[1]), err)
		},
	}

	mvCmd := &cobra.Command{
		Use:     "mv <source> <destination>",
		Aliases: []string{"rename"},
		Short:   "Move or rename a file or folder",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.treeManager()
			if err != nil {
				return err
			}
			err = mgr.Move(args[0], args[1])
			return report(cmd, "move", fmt.Sprintf("Moved %s to %s", args[0], args[1]), err)
		},
	}

	dropCmd := &cobra.Command{
		Use:   "drop <item> <folder>",
		Short: "Move an item into a folder, keeping its name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.treeManager()
			if err != nil {
				return err
			}
			err = mgr.Drop(args[0], args[1])
			return report(cmd, "drop", fmt.Sprintf("Dropped %s into %s", args[0], args[1]), err)
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file (and its metadata sidecar) or an empty folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := ctx.treeManager()
			if err != nil {
				return err
			}
			res, err := mgr.Delete(args[0])
			message := "Deleted " + args[0]
			if err == nil && res.SidecarRemoved {
				message += " and its metadata"
			}
			if err == nil && res.SidecarErr != nil {
				message += fmt.Sprintf(" (metadata %s left behind: %v)", res.Sidecar, res.SidecarErr)
			}
			return report(cmd, "delete", message, err)
		},
	}

	treeCmd.AddCommand(lsCmd, mkdirCmd, mvCmd, dropCmd, rmCmd)
	return treeCmd
}
