package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vipul43/saas-bridge/internal/config"
)

func syncCmd(loadConfig func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a one-shot synchronization",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "companies",
		Short: "Sync Teamleader companies into local storage and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), loadConfig())
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.syncer.SyncAll(cmd.Context())

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if !result.Success {
				return fmt.Errorf("sync failed: %s", result.Message)
			}
			return nil
		},
	})

	return cmd
}
