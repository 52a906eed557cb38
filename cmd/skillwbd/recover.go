package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// The same scan runs automatically at startup in buildService; this
// subcommand exists so an operator can re-run it on demand and see
// what it touched.
var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Scan for orphaned writes and resync the archive, metadata DB, and index",
	Args:  cobra.NoArgs,
	RunE:  runRecover,
}

func runRecover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, cleanup, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	recovered, err := svc.Recover(ctx)
	if err != nil {
		return err
	}

	if len(recovered) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing further to recover")
		return nil
	}
	for _, id := range recovered {
		fmt.Fprintln(cmd.OutOrStdout(), "recovered:", id)
	}
	return nil
}
