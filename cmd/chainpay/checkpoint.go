package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func checkpointCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Print the last processed block",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s := &stores{}
			defer s.Close()

			cp, err := a.openCheckpoint(ctx, s)
			if err != nil {
				return err
			}

			block, ok, err := cp.LastBlock(ctx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "no checkpoint stored (%s)\n", a.cfg.CheckpointBackend)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "last_processed_block: %d (%s)\n", block, a.cfg.CheckpointBackend)
			return nil
		},
	}
}
