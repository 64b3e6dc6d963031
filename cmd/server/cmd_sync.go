package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/coolnight20187/python-7ty-system/internal/syncer"
)

// newSyncCmd creates the "ty7-worker sync [tag]" subcommand: one drain, then exit.
func newSyncCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [tag]",
		Short: "Replay queued entries once and exit",
		Long:  "Without a tag every category is drained; a tag such as receipt-upload drains one.",
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

			tag := ""
			if len(args) == 1 {
				tag = args[0]
			}
			reports, err := app.Coordinator.Run(cmd.Context(), syncer.Trigger{Source: syncer.SourceExplicit, Tag: tag})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, r := range reports {
				mark := color.New(color.FgGreen).Sprint("✓")
				if r.Failed > 0 || r.Error != "" {
					mark = color.New(color.FgRed).Sprint("✗")
					failed += max(r.Failed, 1)
				}
				fmt.Fprintf(out, "%s %s: %d/%d sent\n", mark, r.Category, r.Succeeded, r.Attempted)
				if r.Error != "" {
					fmt.Fprintf(out, "    %s\n", r.Error)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d entries still queued", failed)
			}
			return nil
		},
	}
}
