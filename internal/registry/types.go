// Package registry implements the tool catalogue every scanner, fixer,
// and validator plugs into (spec §4.1): a struct-backed, insertion-
// ordered registry generalized from the teacher's package-level step
// registry so tests can run multiple independent registries, plus the
// four-step Execute contract (schema validate, dispatch, normalize
// result, classify error).
package registry

import (
	"context"
	"encoding/json"
)

// Category classifies what a tool does, mirroring the teacher's
// Metadata.Category but narrowed to this engine's four kinds.
type Category string

const (
	CategoryScanner   Category = "scanner"
	CategoryFixer     Category = "fixer"
	CategoryValidator Category = "validator"
	CategoryGenerator Category = "generator"
)

// Risk is the approval-gate risk class a fixer declares for itself,
// matching spec §3's five-value scale exactly.
type Risk string

const (
	RiskSafe     Risk = "Safe"
	RiskLow      Risk = "Low"
	RiskMedium   Risk = "Medium"
	RiskHigh     Risk = "High"
	RiskCritical Risk = "Critical"
)

// RequiresApprovalByDefault reports spec §3's stated invariant for a
// bare risk class absent any explicit per-tool override:
// risk ∈ {High, Critical} implies requires_approval=true.
func (r Risk) RequiresApprovalByDefault() bool {
	return r == RiskHigh || r == RiskCritical
}

// Spec describes one registered tool: its identity, JSON-schema input
// and output contracts, artifact applicability, and risk
// classification (fixers and validators only). RequiresApproval may
// be left unset (false) to accept the Risk-derived default, or
// explicitly set true to override it for a tool whose risk alone
// would not otherwise gate it. OutputSchema, when set, is validated
// against Result.Data after the Handler returns (spec §4.1 step 4); a
// tool that leaves it empty skips output normalization entirely.
type Spec struct {
	Name                string
	Description         string
	Category            Category
	Risk                Risk
	RequiresApproval    bool
	ApplicableArtifacts []string
	InputSchema         json.RawMessage
	OutputSchema        json.RawMessage
	Handler             Handler
}

// EffectiveRequiresApproval resolves spec §3's invariant: a Scanner is
// never approval-gated; any other tool is gated if RequiresApproval
// was set explicitly or its Risk defaults to gated.
func (s Spec) EffectiveRequiresApproval() bool {
	if s.Category == CategoryScanner {
		return false
	}
	return s.RequiresApproval || s.Risk.RequiresApprovalByDefault()
}

// Handler executes a tool against validated input and returns a raw
// result payload for the caller to interpret per category.
type Handler func(ctx context.Context, input json.RawMessage) (Result, error)

// Result is what a Handler returns; Data's shape depends on Category
// (a finding.ScanResult for scanners, a fixengine.FixAttempt for
// fixers, a verify.Report for validators).
type Result struct {
	Data     any
	Metadata map[string]any
}
