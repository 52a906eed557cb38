package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	removeLayer   string
	removeVersion string
)

var removeCmd = &cobra.Command{
	Use:   "remove <skill-id>",
	Short: "Atomically delete a skill from a layer's archive, metadata, and index",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	removeCmd.Flags().StringVar(&removeLayer, "layer", "base", "target layer (base|org|project|user)")
	removeCmd.Flags().StringVar(&removeVersion, "version", "", "version recorded in the removal commit message (required)")
	_ = removeCmd.MarkFlagRequired("version")
}

func runRemove(cmd *cobra.Command, args []string) error {
	id := args[0]

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

	if err := svc.Remove(ctx, id, removeLayer, removeVersion); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "removed %s/%s@%s\n", removeLayer, id, removeVersion)
	return nil
}
