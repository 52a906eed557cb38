package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var saveLayer string

var saveCmd = &cobra.Command{
	Use:   "save <SKILL.md>",
	Short: "Parse, validate, and atomically commit a skill Markdown file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSave,
}

func init() {
	saveCmd.Flags().StringVar(&saveLayer, "layer", "base", "target layer (base|org|project|user)")
}

func runSave(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

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

	sp, err := svc.Save(ctx, string(content), saveLayer)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "saved %s/%s@%s\n", saveLayer, sp.Metadata.ID, sp.Metadata.Version)
	return nil
}
