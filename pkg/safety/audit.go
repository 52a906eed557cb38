package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// AuditLog records Events append-only; truncation is an operator-only
// action never performed by this package.
type AuditLog interface {
	Append(ctx context.Context, e Event) error
}

// MemoryAuditLog is an in-process audit log, used by tests and by
// callers that persist events themselves at a higher layer.
type MemoryAuditLog struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryAuditLog() *MemoryAuditLog { return &MemoryAuditLog{} }

func (l *MemoryAuditLog) Append(ctx context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

// Events returns a copy of the recorded events in append order.
func (l *MemoryAuditLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// FileAuditLog appends one JSON object per line to a file: sequential
// writes serialized through a single writer lock, never rewritten in
// place.
type FileAuditLog struct {
	mu   sync.Mutex
	path string
}

// NewFileAuditLog opens (creating if necessary) an append-only audit
// log file at path.
func NewFileAuditLog(path string) (*FileAuditLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}
	f.Close()
	return &FileAuditLog{path: path}, nil
}

type eventRecord struct {
	SessionID   string `json:"session_id,omitempty"`
	Command     string `json:"command"`
	DCGVersion  string `json:"dcg_version,omitempty"`
	Pack        string `json:"pack,omitempty"`
	Allowed     bool   `json:"allowed"`
	Tier        string `json:"tier"`
	Reason      string `json:"reason"`
	Remediation string `json:"remediation,omitempty"`
	RuleID      string `json:"rule_id,omitempty"`
	Approved    bool   `json:"approved"`
	CreatedAt   string `json:"created_at"`
}

func (l *FileAuditLog) Append(ctx context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log %s: %w", l.path, err)
	}
	defer f.Close()

	rec := eventRecord{
		SessionID: e.SessionID, Command: e.Command, DCGVersion: e.DCGVersion, Pack: e.Pack,
		Allowed: e.Decision.Allowed, Tier: e.Decision.Tier.String(), Reason: e.Decision.Reason,
		Remediation: e.Decision.Remediation, RuleID: e.Decision.RuleID, Approved: e.Decision.Approved,
		CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}
