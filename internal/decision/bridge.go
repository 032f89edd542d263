// Package decision implements the Analyze→Decide bridge from spec
// §4.6: given a scan's findings, decide which ones get a fix attempt
// this run. An external LLM-backed Bridge is the primary path; a
// deterministic rule-based Bridge is the fallback when no external
// provider is configured or the call fails, mirroring the teacher's
// tool-adapter-with-fallback shape (ToolUnavailable downgrades rather
// than aborts).
package decision

import (
	"context"
	"time"

	"github.com/remediation-kit/remediation-kit/internal/finding"
)

// Action is the bridge's verdict for a single finding.
type Action string

const (
	ActionFix   Action = "fix"
	ActionSkip  Action = "skip"
	ActionDefer Action = "defer" // needs a human decision before fixing
)

// Plan is the bridge's output: one Action per finding, keyed by
// fingerprint, plus free-text rationale for the audit log.
type Plan struct {
	Actions     map[string]Action `json:"actions"`
	Rationale   map[string]string `json:"rationale"`
	DecidedAt   time.Time         `json:"decided_at"`
	BridgeKind  string            `json:"bridge_kind"`
}

// Bridge decides a Plan for a batch of findings within the given
// timeout (spec §6 decision_timeout_seconds).
type Bridge interface {
	Decide(ctx context.Context, findings []finding.Finding) (Plan, error)
}

// newPlan builds an empty Plan stamped with kind and now.
func newPlan(kind string) Plan {
	return Plan{
		Actions:    make(map[string]Action),
		Rationale:  make(map[string]string),
		DecidedAt:  time.Now(),
		BridgeKind: kind,
	}
}
