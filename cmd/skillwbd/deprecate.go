package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	deprecateLayer       string
	deprecateReason      string
	deprecateReplacement string
)

var deprecateCmd = &cobra.Command{
	Use:   "deprecate <skill-id>",
	Short: "Retire a skill, optionally aliasing it to a replacement",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeprecate,
}

func init() {
	deprecateCmd.Flags().StringVar(&deprecateLayer, "layer", "base", "target layer (base|org|project|user)")
	deprecateCmd.Flags().StringVar(&deprecateReason, "reason", "", "why the skill is retired")
	deprecateCmd.Flags().StringVar(&deprecateReplacement, "replaced-by", "", "skill id to alias callers to")
}

func runDeprecate(cmd *cobra.Command, args []string) error {
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

	if err := svc.Deprecate(ctx, id, deprecateLayer, deprecateReason, deprecateReplacement); err != nil {
		return err
	}

	if deprecateReplacement != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "deprecated %s/%s (replaced by %s)\n", deprecateLayer, id, deprecateReplacement)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deprecated %s/%s\n", deprecateLayer, id)
	return nil
}
