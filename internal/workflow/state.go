// Package workflow implements the scan→analyze→decide→fix→verify→
// learn→report state graph from spec §4.6: a hand-written finite
// state machine, not a library-provided DAG: Run dispatches on the
// current Phase and each node sets the next one, matching spec §9's "framework-driven workflow graph"
// design note and grounded on the teacher's pkg/domain/workflow
// Orchestrator.executeSequentially (one WorkflowState advanced by a
// single driver, one step at a time, with per-step progress recorded)
// generalized from a fixed step slice into a conditional-routing graph.
package workflow

import (
	"time"

	"github.com/remediation-kit/remediation-kit/internal/decision"
	"github.com/remediation-kit/remediation-kit/internal/finding"
	"github.com/remediation-kit/remediation-kit/internal/fixengine"
)

// Phase names one node in the fixed state graph (spec §4.6).
type Phase string

const (
	PhaseScan     Phase = "Scan"
	PhaseAnalyze  Phase = "Analyze"
	PhaseDecide   Phase = "Decide"
	PhaseFix      Phase = "Fix"
	PhaseVerify   Phase = "Verify"
	PhaseLearn    Phase = "Learn"
	PhaseReport   Phase = "Report"
	PhaseDone     Phase = "Done"
	PhaseAborted  Phase = "Aborted"
)

// State is the orchestrator's per-run object (spec §3 WorkflowState).
type State struct {
	WorkflowID        string              `json:"workflow_id"`
	Task              string              `json:"task"`
	TargetPath        string              `json:"target_path"`
	Phase             Phase               `json:"phase"`
	ScanResultsBefore []finding.ScanResult `json:"scan_results_before"`
	Decision          *decision.Plan      `json:"decision,omitempty"`
	FixAttempts       []fixengine.FixAttempt `json:"fix_attempts"`
	ScanResultsAfter  []finding.ScanResult `json:"scan_results_after"`
	Effectiveness     *float64            `json:"effectiveness,omitempty"`
	Errors            []string            `json:"errors"`
	StartedAt         time.Time           `json:"started_at"`
	FinishedAt        time.Time           `json:"finished_at"`
}

// BeforeFindings flattens ScanResultsBefore into one slice, the unit
// the decision bridge, fix engine, and comparator all operate on.
func (s *State) BeforeFindings() []finding.Finding {
	return flatten(s.ScanResultsBefore)
}

// AfterFindings flattens ScanResultsAfter.
func (s *State) AfterFindings() []finding.Finding {
	return flatten(s.ScanResultsAfter)
}

func flatten(results []finding.ScanResult) []finding.Finding {
	var out []finding.Finding
	for _, r := range results {
		out = append(out, r.Findings...)
	}
	return out
}

// addError appends a human-readable error to the state. It does not
// change Phase itself; Run and abort call it when a node fails or the
// workflow is aborted. Downgraded scanners are recorded in the audit
// log, not here.
func (s *State) addError(msg string) {
	s.Errors = append(s.Errors, msg)
}
