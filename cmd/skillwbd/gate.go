package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillwb/skillwb/pkg/specid"
)

var gateSession string

var gateCmd = &cobra.Command{
	Use:   "gate <command...>",
	Short: "Classify a shell command and emit an auditable allow/deny decision",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGate,
}

func init() {
	gateCmd.Flags().StringVar(&gateSession, "session", "", "session id (generated if empty)")
}

func runGate(cmd *cobra.Command, args []string) error {
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

	command := strings.Join(args, " ")
	decision, evalErr := svc.Evaluate(ctx, gateSession, command)

	fmt.Fprintf(cmd.OutOrStdout(), "tier=%s allowed=%v approved=%v reason=%q\n",
		decision.Tier, decision.Allowed, decision.Approved, decision.Reason)

	switch {
	case evalErr == nil:
		return nil
	case errors.Is(evalErr, specid.ErrApprovalRequired):
		fmt.Fprintf(cmd.ErrOrStderr(), "approval required: %v\n", evalErr)
		return evalErr
	case errors.Is(evalErr, specid.ErrDestructiveBlocked):
		fmt.Fprintf(cmd.ErrOrStderr(), "blocked: %v\n", evalErr)
		return evalErr
	default:
		return evalErr
	}
}
