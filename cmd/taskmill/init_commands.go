package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskmill/internal/config"
	"taskmill/internal/queue"
)

func newInitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the task database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				if err := store.Init(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task database ready at %s\n", store.Path())
				return nil
			})
		},
	}
}

func newDeinitCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "deinit",
		Short: "Drop the task database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("deinit removes every task in every group; re-run with --force to confirm")
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				if err := store.Deinit(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Dropped task schema at %s\n", store.Path())
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm schema removal")
	return cmd
}
