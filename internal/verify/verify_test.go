package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/remediation-kit/remediation-kit/internal/finding"
	"github.com/remediation-kit/remediation-kit/internal/fixengine"
)

func f(fp, ruleID, file string) finding.Finding {
	return finding.Finding{Fingerprint: fp, RuleID: ruleID, File: file, Severity: finding.SeverityHigh}
}

func TestCompareFullyEffective(t *testing.T) {
	before := []finding.Finding{f("fp1", "B105", "app/config.py")}
	after := []finding.Finding{}
	attempts := []fixengine.FixAttempt{{FindingFingerprint: "fp1", File: "app/config.py", PatternID: "p1", Succeeded: true}}

	report := Compare(before, after, attempts)
	assert.Equal(t, 1.0, report.Effectiveness)
	assert.Len(t, report.Fixed, 1)
	assert.Empty(t, report.Regressions)
}

func TestComparePersistedFindingLowersEffectiveness(t *testing.T) {
	before := []finding.Finding{f("fp1", "B105", "app/config.py")}
	after := []finding.Finding{f("fp1", "B105", "app/config.py")}
	attempts := []fixengine.FixAttempt{{FindingFingerprint: "fp1", File: "app/config.py", PatternID: "p1", Succeeded: true}}

	report := Compare(before, after, attempts)
	assert.Equal(t, 0.0, report.Effectiveness)
	assert.Len(t, report.Persisted, 1)
}

func TestCompareDetectsRegressionInTouchedFile(t *testing.T) {
	before := []finding.Finding{f("fp1", "B105", "app/config.py")}
	after := []finding.Finding{f("fp2", "B608", "app/config.py")}
	attempts := []fixengine.FixAttempt{{FindingFingerprint: "fp1", File: "app/config.py", PatternID: "p1", Succeeded: true}}

	report := Compare(before, after, attempts)
	require := assert.New(t)
	require.Len(report.Regressions, 1)
	require.Equal("fp2", report.Regressions[0].Fingerprint)

	regressed := RegressedPatterns(report, attempts)
	require.True(regressed["p1"])
}

func TestCompareIgnoresRegressionInUntouchedFile(t *testing.T) {
	before := []finding.Finding{f("fp1", "B105", "app/config.py")}
	after := []finding.Finding{f("fp1", "B105", "app/config.py"), f("fp3", "B608", "other.py")}
	attempts := []fixengine.FixAttempt{{FindingFingerprint: "fp1", File: "app/config.py", PatternID: "p1", Succeeded: true}}

	report := Compare(before, after, attempts)
	assert.Empty(t, report.Regressions)
}

func TestCompareNoTargetsYieldsZeroEffectiveness(t *testing.T) {
	report := Compare(nil, nil, nil)
	assert.Equal(t, 0.0, report.Effectiveness)
}
