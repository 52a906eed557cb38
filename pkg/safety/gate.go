package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/skillwb/skillwb/pkg/specid"
)

// Gate wires a Classifier, approval channel, and audit log into the
// command-admission state machine: Classify, then Allow /
// ApprovalRequired / Denied, fail-closed on any classifier error.
//
// Classifier, approval channel name, and loaded packs are read once
// at construction and never change for the life of the process, so
// the fail-closed invariant holds without synchronization around
// those fields.
type Gate struct {
	Classifier              Classifier
	Approval                ApprovalChannel
	Audit                   AuditLog
	RequireVerbatimApproval bool
	ApprovalChannelName     string
	Packs                   []string
	DCGVersion              string
}

// NewGate builds a Gate whose Approval channel is always EnvApprovalChannel{}.
func NewGate(classifier Classifier, audit AuditLog, requireApproval bool, approvalChannelName string, packs []string, dcgVersion string) *Gate {
	return &Gate{
		Classifier:              classifier,
		Approval:                EnvApprovalChannel{},
		Audit:                   audit,
		RequireVerbatimApproval: requireApproval,
		ApprovalChannelName:     approvalChannelName,
		Packs:                   packs,
		DCGVersion:              dcgVersion,
	}
}

// Evaluate runs the full state machine for one command and returns
// the resulting Decision. A non-nil error is always one of
// specid.ErrApprovalRequired or specid.ErrDestructiveBlocked; nil
// error means the command is allowed.
func (g *Gate) Evaluate(ctx context.Context, sessionID, command string) (Decision, error) {
	resp, err := g.Classifier.Classify(ctx, command, g.Packs)
	if err != nil {
		// Fail-closed: a classifier that cannot be invoked or times out
		// never widens privilege.
		decision := Decision{
			Allowed:     false,
			Tier:        TierCritical,
			Reason:      "safety system unavailable",
			Remediation: "install classifier",
		}
		g.log(ctx, sessionID, command, decision)
		return decision, fmt.Errorf("%w: %s", specid.ErrDestructiveBlocked, decision.Reason)
	}

	if resp.Decision == "allow" {
		decision := Decision{Allowed: true, Tier: TierSafe}
		if resp.Match != nil {
			decision.Tier = severityToTier(resp.Match.Severity)
			decision.RuleID = resp.Match.RuleID
			decision.Pack = resp.Match.PackID
			decision.Reason = resp.Match.Reason
		}
		g.log(ctx, sessionID, command, decision)
		return decision, nil
	}

	tier := TierDanger
	reason, ruleID, pack := "command denied by classifier", "", ""
	if resp.Match != nil {
		tier = severityToTier(resp.Match.Severity)
		reason = resp.Match.Reason
		ruleID = resp.Match.RuleID
		pack = resp.Match.PackID
	}

	decision := Decision{Allowed: false, Tier: tier, Reason: reason, RuleID: ruleID, Pack: pack}
	if len(resp.Suggestions) > 0 {
		decision.Remediation = resp.Suggestions[0].Text
	}

	approvalRequired := tier >= TierDanger && g.RequireVerbatimApproval
	if approvalRequired {
		value, ok := g.Approval.Value(g.ApprovalChannelName)
		if ok && verbatimMatch(value, command) {
			decision.Allowed = true
			decision.Approved = true
			g.log(ctx, sessionID, command, decision)
			return decision, nil
		}
		g.log(ctx, sessionID, command, decision)
		return decision, fmt.Errorf("%w: approve %q via %s to proceed", specid.ErrApprovalRequired, command, g.ApprovalChannelName)
	}

	g.log(ctx, sessionID, command, decision)
	return decision, fmt.Errorf("%w: %s", specid.ErrDestructiveBlocked, decision.Reason)
}

func (g *Gate) log(ctx context.Context, sessionID, command string, decision Decision) {
	if g.Audit == nil {
		return
	}
	_ = g.Audit.Append(ctx, Event{
		SessionID:  sessionID,
		Command:    command,
		DCGVersion: g.DCGVersion,
		Pack:       decision.Pack,
		Decision:   decision,
		CreatedAt:  time.Now(),
	})
}
