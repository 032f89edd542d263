package decision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remediation-kit/remediation-kit/internal/finding"
)

// stubPatternReader reports eligibility only for the rule IDs listed,
// standing in for patternstore.Store.AutoFixEligible in these tests.
type stubPatternReader struct {
	eligible map[string]bool
}

func (s stubPatternReader) AutoFixEligible(ruleID, artifact string) bool {
	return s.eligible[ruleID]
}

func TestFallbackClassificationWithNoPatternHistory(t *testing.T) {
	bridge := NewFallbackBridge(nil)
	findings := []finding.Finding{
		{Fingerprint: "a", Severity: finding.SeverityCritical, FixAvailable: true},
		{Fingerprint: "b", Severity: finding.SeverityHigh, FixAvailable: true},
		{Fingerprint: "c", Severity: finding.SeverityMedium, FixAvailable: true},
		{Fingerprint: "d", Severity: finding.SeverityLow, FixAvailable: true},
		{Fingerprint: "e", Severity: finding.SeverityCritical, FixAvailable: false},
	}

	plan, err := bridge.Decide(context.Background(), findings)
	require.NoError(t, err)

	// With no pattern-store history at all, nothing is auto_fixable:
	// High/Critical defer for approval, everything else (including a
	// finding with no registered fix) is skipped.
	assert.Equal(t, ActionDefer, plan.Actions["a"])
	assert.Equal(t, ActionDefer, plan.Actions["b"])
	assert.Equal(t, ActionSkip, plan.Actions["c"])
	assert.Equal(t, ActionSkip, plan.Actions["d"])
	assert.Equal(t, ActionSkip, plan.Actions["e"])
}

func TestFallbackClassificationAutoFixableFromPatternHistory(t *testing.T) {
	reader := stubPatternReader{eligible: map[string]bool{"B105": true}}
	bridge := NewFallbackBridge(reader)
	findings := []finding.Finding{
		{Fingerprint: "a", RuleID: "B105", Severity: finding.SeverityMedium, FixAvailable: true},
		{Fingerprint: "b", RuleID: "B999", Severity: finding.SeverityHigh, FixAvailable: true},
	}

	plan, err := bridge.Decide(context.Background(), findings)
	require.NoError(t, err)

	// A rule the store has seen succeed >=3 times at >=0.7 confidence
	// is auto_fixable even at Medium severity.
	assert.Equal(t, ActionFix, plan.Actions["a"])
	// A rule with no such history still falls through to needs_approval.
	assert.Equal(t, ActionDefer, plan.Actions["b"])
}
