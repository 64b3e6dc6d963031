package main

import (
	"github.com/spf13/cobra"

	"github.com/coolnight20187/python-7ty-system/internal/config"
	"github.com/coolnight20187/python-7ty-system/internal/logger"
)

// newRootCmd creates the root ty7-worker command with all subcommands attached.
func newRootCmd() *cobra.Command {
	var confPath string
	cmd := &cobra.Command{
		Use:   "ty7-worker",
		Short: "Offline worker for the 7tỷ.vn front-ends",
		Long: "ty7-worker sits at the origin of one front-end (agent, customer or staff),\n" +
			"serves it from a versioned cache, queues mutations while offline and\n" +
			"replays them when the backend is reachable again.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&confPath, "config", "", "directory holding config.yaml")

	load := func() (*config.Config, error) {
		cfg, err := config.LoadConfig(confPath)
		if err != nil {
			return nil, err
		}
		if err := logger.SetLevel(cfg.Misc.LogLevel); err != nil {
			logger.WithComponent("main").Warnf("invalid log level '%s', keeping '%s'", cfg.Misc.LogLevel, logger.Logger.GetLevel())
		}
		logger.TagFrontend(cfg.Worker.Frontend)
		return cfg, nil
	}

	cmd.AddCommand(
		newServeCmd(load),
		newQueueCmd(load),
		newSyncCmd(load),
	)
	return cmd
}

type configLoader func() (*config.Config, error)
