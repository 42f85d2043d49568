package main

import (
	"github.com/spf13/cobra"

	"bookvault/pkg/config"
	"bookvault/pkg/logger"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "orders",
		Short:         "BookVault order service",
		Long:          "Places orders, reserves stock and drives orders through their lifecycle over HTTP and gRPC.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	return cmd
}

// Execute runs the root command
func Execute() error {
	return newRootCmd().Execute()
}

func loadConfig() (*config.Config, *logger.Logger) {
	cfg := config.LoadForService("ORDERS")
	log := logger.New(cfg.ServiceName+"-service", cfg.LogLevel, logger.WithFormat(cfg.LogFormat))
	return cfg, log
}
