package main

import (
	"fmt"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete the persisted state",
	RunE: func(cmd *cobra.Command, args []string) error {
		storage, closeStorage, err := cli.OpenStorage(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeStorage()

		if err := storage.Delete(cmd.Context(), cfg.Persistence.Key); err != nil {
			return fmt.Errorf("failed to purge %q: %w", cfg.Persistence.Key, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged persisted state %q.\n", cfg.Persistence.Key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}
