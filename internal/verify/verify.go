// Package verify implements the Verification Comparator from spec
// §4.9: it diffs a workflow's before/after ScanResults to compute
// effectiveness and surface regressions. Fingerprint-set comparison is
// plain map arithmetic; google/go-cmp is wired for the one place a
// structural diff is actually useful to a human — the audit-log-
// friendly summary of which findings disappeared, persisted, or
// appeared — rather than hand-rolling a reporter.
package verify

import (
	"github.com/google/go-cmp/cmp"

	"github.com/remediation-kit/remediation-kit/internal/finding"
	"github.com/remediation-kit/remediation-kit/internal/fixengine"
)

// Report is the outcome of one before/after comparison (spec §4.9/§3
// WorkflowState.effectiveness).
type Report struct {
	Effectiveness float64            `json:"effectiveness"`
	Fixed         []finding.Finding  `json:"fixed"`
	Persisted     []finding.Finding  `json:"persisted"`
	Regressions   []finding.Finding  `json:"regressions"`
	TargetedCount int                `json:"targeted_count"`
	Diff          string             `json:"diff"`
}

// Compare computes effectiveness = |fixed| / |targeted|, where
// targeted is the set of fingerprints the workflow's FixAttempts
// addressed, fixed is the subset of those absent from after, and
// regressions are findings present in after, in a file an Applied
// FixAttempt touched, with a fingerprint absent from before (spec
// §4.9 + §8 property 10).
func Compare(before, after []finding.Finding, attempts []fixengine.FixAttempt) Report {
	beforeSet := finding.FingerprintSet(before)
	afterSet := finding.FingerprintSet(after)

	targeted := make(map[string]finding.Finding)
	touchedFiles := make(map[string]bool)
	for _, a := range attempts {
		if !a.Succeeded {
			continue
		}
		if f, ok := beforeSet[a.FindingFingerprint]; ok {
			targeted[a.FindingFingerprint] = f
		}
		touchedFiles[a.File] = true
	}

	var fixed, persisted []finding.Finding
	for fp, f := range targeted {
		if _, stillPresent := afterSet[fp]; stillPresent {
			persisted = append(persisted, f)
		} else {
			fixed = append(fixed, f)
		}
	}

	var regressions []finding.Finding
	for fp, f := range afterSet {
		if _, existedBefore := beforeSet[fp]; existedBefore {
			continue
		}
		if touchedFiles[f.File] {
			regressions = append(regressions, f)
		}
	}

	report := Report{
		Fixed:         fixed,
		Persisted:     persisted,
		Regressions:   regressions,
		TargetedCount: len(targeted),
	}
	if len(targeted) > 0 {
		report.Effectiveness = float64(len(fixed)) / float64(len(targeted))
	}
	report.Diff = cmp.Diff(summarize(before), summarize(after))
	return report
}

// summarize reduces a finding slice to the fields worth diffing in a
// human-readable before/after report: fingerprint identity plus the
// fields a reviewer cares about, not the full scanner metadata blob.
type summaryLine struct {
	Fingerprint string
	RuleID      string
	File        string
	Severity    finding.Severity
}

func summarize(findings []finding.Finding) []summaryLine {
	out := make([]summaryLine, 0, len(findings))
	for _, f := range findings {
		out = append(out, summaryLine{
			Fingerprint: f.Fingerprint,
			RuleID:      f.RuleID,
			File:        f.File,
			Severity:    f.Severity,
		})
	}
	return out
}

// RegressedPatterns returns the set of pattern IDs that must be
// excluded from Learn because their application coincided with a
// regression in the same file (spec §4.9 + §8 property 10).
func RegressedPatterns(report Report, attempts []fixengine.FixAttempt) map[string]bool {
	regressedFiles := make(map[string]bool, len(report.Regressions))
	for _, f := range report.Regressions {
		regressedFiles[f.File] = true
	}
	out := make(map[string]bool)
	for _, a := range attempts {
		if a.Succeeded && regressedFiles[a.File] {
			out[a.PatternID] = true
		}
	}
	return out
}
