package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vipul43/saas-bridge/internal/config"
	"github.com/vipul43/saas-bridge/internal/logging"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "saas-bridge",
		Short:         "saas-bridge - REST facade and sync worker for third-party SaaS APIs",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			logging.Setup(cfg.LogLevel, cfg.LogPretty)
			return nil
		},
	}

	loadConfig := func() *config.Config { return cfg }

	rootCmd.AddCommand(serveCmd(loadConfig))
	rootCmd.AddCommand(syncCmd(loadConfig))
	rootCmd.AddCommand(migrateCmd(loadConfig))

	return rootCmd
}
