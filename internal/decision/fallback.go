package decision

import (
	"context"
	"fmt"

	"github.com/remediation-kit/remediation-kit/internal/finding"
	"github.com/remediation-kit/remediation-kit/internal/fixengine"
)

// PatternReader is the subset of patternstore.Store's read API the
// fallback bridge needs to apply spec §4.7's deterministic rule. A
// narrow interface here lets tests substitute a stub without pulling
// in the store's on-disk log.
type PatternReader interface {
	AutoFixEligible(ruleID, artifact string) bool
}

// FallbackBridge is the deterministic rule used whenever no external
// provider is configured, or the external Bridge's call fails — the
// policy spec §4.6 calls the "safety net" path. Its classification is
// the literal rule from spec §4.7: a finding whose rule_id has a
// pattern-store history of success_count >= 3 and confidence_prior >=
// 0.7 is auto-fixable; a High/Critical finding with no such history
// needs approval; everything else needs a human to triage it outside
// this run.
type FallbackBridge struct {
	patterns PatternReader
}

// NewFallbackBridge returns the deterministic fallback bridge backed
// by patterns. A nil patterns disables the auto_fixable tier entirely
// (every fixable finding falls through to needs_approval/needs_human),
// which is correct before any pattern has ever recorded a success.
func NewFallbackBridge(patterns PatternReader) FallbackBridge {
	return FallbackBridge{patterns: patterns}
}

func (b FallbackBridge) Decide(ctx context.Context, findings []finding.Finding) (Plan, error) {
	plan := newPlan("fallback")
	for _, f := range findings {
		action, reason := b.classify(f)
		plan.Actions[f.Fingerprint] = action
		plan.Rationale[f.Fingerprint] = reason
	}
	return plan, nil
}

func (b FallbackBridge) classify(f finding.Finding) (Action, string) {
	if !f.FixAvailable {
		return ActionSkip, "no registered pattern addresses this rule"
	}

	artifact := string(fixengine.DetectArtifactKind(f.File))
	if b.patterns != nil && b.patterns.AutoFixEligible(f.RuleID, artifact) {
		return ActionFix, fmt.Sprintf("rule %s has a pattern-store history meeting the auto-fix bar", f.RuleID)
	}
	if f.Severity == finding.SeverityCritical || f.Severity == finding.SeverityHigh {
		return ActionDefer, fmt.Sprintf("severity=%s with no qualifying pattern history: needs approval", f.Severity)
	}
	return ActionSkip, fmt.Sprintf("severity=%s with no qualifying pattern history: needs human triage", f.Severity)
}
