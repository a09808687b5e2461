package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var revertCmd = &cobra.Command{
	Use:   "revert <experiment-id>",
	Short: "Restore the original title or body of an experiment",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevert,
}

var revertReason string

func init() {
	revertCmd.Flags().StringVar(&revertReason, "reason", "", "Why the experiment is reverted (recorded in the audit trail)")

	rootCmd.AddCommand(revertCmd)
}

func runRevert(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid experiment id: %w", err)
	}

	ctx := context.Background()
	a, err := setup(ctx, cmd, needs{site: true})
	if err != nil {
		return err
	}
	defer a.close()

	return a.locked(ctx, func(ctx context.Context) error {
		e, err := a.runner.Revert(ctx, id, revertReason)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Reverted %s on %s\n", e.ID, e.URL)
		return nil
	})
}
