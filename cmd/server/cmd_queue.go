package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// newQueueCmd creates the "ty7-worker queue" command group.
func newQueueCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the pending mutation queue",
	}
	cmd.AddCommand(newQueueListCmd(load))
	return cmd
}

// newQueueListCmd creates the "ty7-worker queue list [category]" subcommand.
func newQueueListCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "list [category]",
		Short: "List queued entries, oldest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			app, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			categories := app.Queue.Categories()
			if len(args) == 1 {
				categories = args[:1]
			}
			out := cmd.OutOrStdout()
			header := color.New(color.Bold, color.FgCyan)
			for _, category := range categories {
				entries, err := app.Queue.ListAll(cmd.Context(), category)
				if err != nil {
					return err
				}
				sort.SliceStable(entries, func(i, j int) bool {
					return entries[i].CreatedAt.Before(entries[j].CreatedAt)
				})
				fmt.Fprintf(out, "%s (%d)\n", header.Sprint(category), len(entries))
				for _, e := range entries {
					fmt.Fprintf(out, "  %s  %s  %s\n", e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Payload)
				}
			}
			return nil
		},
	}
}
