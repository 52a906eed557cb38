package safety

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skillwb/skillwb/pkg/specid"
)

type stubClassifier struct {
	resp *ClassifierResponse
	err  error
}

func (s stubClassifier) Classify(ctx context.Context, command string, packs []string) (*ClassifierResponse, error) {
	return s.resp, s.err
}

type stubApproval struct {
	value string
	ok    bool
}

func (s stubApproval) Value(name string) (string, bool) { return s.value, s.ok }

// TestGateFailsClosedWhenClassifierUnavailable: an unavailable
// classifier denies every command with tier Critical and exactly one
// audit event.
func TestGateFailsClosedWhenClassifierUnavailable(t *testing.T) {
	audit := NewMemoryAuditLog()
	gate := NewGate(stubClassifier{err: errors.New("exec: no such file")}, audit, true, "SKILLWB_APPROVE", nil, "v1")

	decision, err := gate.Evaluate(context.Background(), "sess-1", "rm -rf /tmp/example")
	require.ErrorIs(t, err, specid.ErrDestructiveBlocked)
	require.False(t, decision.Allowed)
	require.Equal(t, TierCritical, decision.Tier)
	require.Contains(t, decision.Reason, "safety system unavailable")
	require.False(t, decision.Approved)

	events := audit.Events()
	require.Len(t, events, 1)
	require.Equal(t, TierCritical, events[0].Decision.Tier)
	require.False(t, events[0].Decision.Allowed)
}

func TestGateAllowsWhenClassifierAllows(t *testing.T) {
	audit := NewMemoryAuditLog()
	gate := NewGate(stubClassifier{resp: &ClassifierResponse{Decision: "allow"}}, audit, true, "SKILLWB_APPROVE", nil, "v1")

	decision, err := gate.Evaluate(context.Background(), "sess-1", "ls -la")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Len(t, audit.Events(), 1)
}

func TestGateApprovalExactness(t *testing.T) {
	resp := &ClassifierResponse{Decision: "deny", Match: &Match{Severity: "high", Reason: "deletes files"}}

	cases := []struct {
		name     string
		approval stubApproval
		command  string
		approves bool
	}{
		{"exact match", stubApproval{value: "rm -rf /tmp/x", ok: true}, "rm -rf /tmp/x", true},
		{"trimmed match", stubApproval{value: "  rm -rf /tmp/x  ", ok: true}, "rm -rf /tmp/x", true},
		{"substring rejected", stubApproval{value: "rm -rf /tmp/x extra", ok: true}, "rm -rf /tmp/x", false},
		{"case mismatch rejected", stubApproval{value: "RM -RF /TMP/X", ok: true}, "rm -rf /tmp/x", false},
		{"no value", stubApproval{ok: false}, "rm -rf /tmp/x", false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			audit := NewMemoryAuditLog()
			gate := &Gate{
				Classifier:              stubClassifier{resp: resp},
				Approval:                c.approval,
				Audit:                   audit,
				RequireVerbatimApproval: true,
				ApprovalChannelName:     "SKILLWB_APPROVE",
			}
			decision, err := gate.Evaluate(context.Background(), "sess-1", c.command)
			if c.approves {
				require.NoError(t, err)
				require.True(t, decision.Allowed)
				require.True(t, decision.Approved)
			} else {
				require.ErrorIs(t, err, specid.ErrApprovalRequired)
				require.False(t, decision.Allowed)
			}
		})
	}
}

func TestFileAuditLogAppendsOneLinePerEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := NewFileAuditLog(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, log.Append(ctx, Event{
		SessionID: "sess-1", Command: "ls",
		Decision: Decision{Allowed: true, Tier: TierSafe}, CreatedAt: time.Now(),
	}))
	require.NoError(t, log.Append(ctx, Event{
		SessionID: "sess-1", Command: "rm -rf /",
		Decision: Decision{Allowed: false, Tier: TierCritical, Reason: "destructive"}, CreatedAt: time.Now(),
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], `"tier":"critical"`)
	require.Contains(t, lines[1], `"allowed":false`)
}

func TestGateDeniesLowTierWithoutApprovalPath(t *testing.T) {
	resp := &ClassifierResponse{Decision: "deny", Match: &Match{Severity: "low", Reason: "noisy but harmless"}}
	audit := NewMemoryAuditLog()
	gate := NewGate(stubClassifier{resp: resp}, audit, true, "SKILLWB_APPROVE", nil, "v1")

	decision, err := gate.Evaluate(context.Background(), "sess-1", "ls /etc")
	require.ErrorIs(t, err, specid.ErrDestructiveBlocked)
	require.Equal(t, TierCaution, decision.Tier)
}
