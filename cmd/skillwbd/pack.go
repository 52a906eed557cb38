package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skillwb/skillwb/pkg/packer"
)

var (
	packContract string
	packBudget   int
	packSkill    string
)

var packCmd = &cobra.Command{
	Use:   "pack [candidates.json]",
	Short: "Select an ordered, budget-constrained slice of blocks for a named contract",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPack,
}

func init() {
	packCmd.Flags().StringVar(&packContract, "contract", "", "built-in contract id (empty uses config's disclosure.default_level)")
	packCmd.Flags().IntVar(&packBudget, "budget", 0, "token budget (0 uses config's disclosure.token_budget)")
	packCmd.Flags().StringVar(&packSkill, "skill", "", "pack a stored skill's blocks instead of a candidates file")
}

func runPack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	contract, ok := packer.BuiltinPresets[packContract]
	if !ok {
		contract = packer.PresetForDisclosureLevel(packer.DisclosureLevel(cfg.Disclosure.DefaultLevel))
	}

	budget := packBudget
	if budget <= 0 {
		budget = int(cfg.Disclosure.TokenBudget)
	}

	var result packer.Result
	switch {
	case packSkill != "":
		ctx := cmd.Context()
		svc, cleanup, err := buildService(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		result, err = svc.PackSkill(ctx, packSkill, nil, 1.0, contract, budget)
		if err != nil {
			return err
		}
	case len(args) == 1:
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		var candidates []packer.Slice
		if err := json.Unmarshal(raw, &candidates); err != nil {
			return fmt.Errorf("parsing candidates: %w", err)
		}
		result, err = packer.Pack(candidates, contract, budget)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("either a candidates file or --skill is required")
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
