package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the persisted state",
	Long: `Loads the persisted snapshot from the configured backend. On a terminal it
is rendered as markdown; otherwise, or with --json, it is printed as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		storage, closeStorage, err := cli.OpenStorage(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer closeStorage()

		snap, err := storage.Load(cmd.Context(), cfg.Persistence.Key)
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			fmt.Fprintf(cmd.OutOrStdout(), "No persisted state under %q.\n", cfg.Persistence.Key)
			return nil
		}
		if err != nil {
			return err
		}

		var render cli.Renderer
		if asJSON, _ := cmd.Flags().GetBool("json"); !asJSON && tui.IsTerminal(os.Stdout) {
			r, err := tui.NewRenderer()
			if err != nil {
				return err
			}
			render = r
		}
		return cli.PrintSnapshot(cmd.OutOrStdout(), cfg.Persistence.Key, snap, render)
	},
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.Flags().Bool("json", false, "Always print JSON")
}
