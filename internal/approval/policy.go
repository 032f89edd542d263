// Package approval implements the Decide→Fix gate from spec §4.5: a
// Rego policy decides whether a proposed fix may proceed
// automatically, must be queued for human sign-off, or is blocked
// outright. The policy shape (severity/category/action rules
// evaluated against a context) is grounded on the teacher's
// PolicyEvaluationResult/PolicyViolation types in
// pkg/core/security/policy_types.go, re-expressed as Rego so the
// engine gets a real policy language instead of the teacher's
// hand-rolled rule-operator switch.
package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/remediation-kit/remediation-kit/internal/registry"
)

// Verdict is the gate's decision for one proposed fix.
type Verdict string

const (
	VerdictApproved Verdict = "Approved"
	VerdictPending  Verdict = "Pending"
	VerdictBlocked  Verdict = "Blocked"
)

// Decision is the full result of one policy evaluation.
type Decision struct {
	Verdict     Verdict   `json:"verdict"`
	Reasons     []string  `json:"reasons"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Input is the fact the policy evaluates against: the fixer's
// declared risk class plus whether the operator opted into
// auto-approving Medium-risk fixes (spec §6 auto_approve_safe; Safe
// and Low are approved regardless of it).
type Input struct {
	Risk            registry.Risk `json:"risk"`
	AutoApproveSafe bool          `json:"auto_approve_safe"`
	RuleID          string        `json:"rule_id"`
	File            string        `json:"file"`
}

// defaultModule is spec §4.5's stated default policy: risk ∈ {Safe,
// Low} always auto-approves; risk=Medium auto-approves only when the
// operator opted into auto_approve_safe; risk ∈ {High, Critical} is
// never auto-approved and falls through to the default Pending verdict
// (NeedsInteraction), which the orchestrator resolves via the
// InteractionPort. Nothing in the default policy blocks outright —
// Blocked is reserved for a site-specific override module.
const defaultModule = `
package remediation.approval

default verdict = "Pending"

verdict = "Approved" {
	input.risk == "Safe"
}

verdict = "Approved" {
	input.risk == "Low"
}

verdict = "Approved" {
	input.risk == "Medium"
	input.auto_approve_safe == true
}
`

// Gate evaluates Input against a compiled Rego policy.
type Gate struct {
	query rego.PreparedEvalQuery
}

// NewGate compiles the built-in policy module. Callers that need a
// site-specific policy can use NewGateFromModule instead.
func NewGate(ctx context.Context) (*Gate, error) {
	return NewGateFromModule(ctx, "builtin.rego", defaultModule)
}

// NewGateFromModule compiles an arbitrary Rego module exposing
// remediation.approval.verdict.
func NewGateFromModule(ctx context.Context, filename, module string) (*Gate, error) {
	query, err := rego.New(
		rego.Query("data.remediation.approval.verdict"),
		rego.Module(filename, module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("approval: compile policy: %w", err)
	}
	return &Gate{query: query}, nil
}

// Evaluate runs the policy against in and returns a Decision.
func (g *Gate) Evaluate(ctx context.Context, in Input) (Decision, error) {
	now := time.Now()
	rs, err := g.query.Eval(ctx, rego.EvalInput(map[string]any{
		"risk":              string(in.Risk),
		"auto_approve_safe": in.AutoApproveSafe,
		"rule_id":           in.RuleID,
		"file":              in.File,
	}))
	if err != nil {
		return Decision{}, fmt.Errorf("approval: evaluate policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{Verdict: VerdictPending, EvaluatedAt: now, Reasons: []string{"policy produced no result, defaulting to Pending"}}, nil
	}
	verdict, _ := rs[0].Expressions[0].Value.(string)
	if verdict == "" {
		verdict = string(VerdictPending)
	}
	return Decision{
		Verdict:     Verdict(verdict),
		EvaluatedAt: now,
		Reasons:     reasonsFor(Verdict(verdict), in),
	}, nil
}

func reasonsFor(v Verdict, in Input) []string {
	switch v {
	case VerdictApproved:
		return []string{fmt.Sprintf("risk=%s, auto_approve_safe=%t", in.Risk, in.AutoApproveSafe)}
	case VerdictBlocked:
		return []string{fmt.Sprintf("risk=%s is never auto-approved", in.Risk)}
	default:
		return []string{fmt.Sprintf("risk=%s requires human sign-off", in.Risk)}
	}
}
