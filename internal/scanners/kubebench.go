package scanners

import (
	"encoding/json"
	"fmt"

	"github.com/remediation-kit/remediation-kit/internal/finding"
)

// kubeBenchReport mirrors kube-bench's `--json` output: a list of
// control-group sections, each with a list of individual test results.
type kubeBenchReport struct {
	Controls []struct {
		Tests []struct {
			Results []map[string]any `json:"results"`
		} `json:"tests"`
	} `json:"Controls"`
}

func kubeBenchScanner() commandScanner {
	return commandScanner{
		name:   "kube-bench",
		binary: "kube-bench",
		args: func(targetPath string) []string {
			return []string{"run", "--config-dir", targetPath, "--json"}
		},
		decode:     decodeKubeBenchReport,
		normalizer: finding.NormalizerFunc(normalizeKubeBenchFinding),
	}
}

func decodeKubeBenchReport(stdout []byte) ([]map[string]any, error) {
	var report kubeBenchReport
	if err := json.Unmarshal(stdout, &report); err != nil {
		return nil, fmt.Errorf("kube-bench: decode report: %w", err)
	}
	var out []map[string]any
	for _, control := range report.Controls {
		for _, test := range control.Tests {
			for _, r := range test.Results {
				if status, _ := r["status"].(string); status == "PASS" {
					continue
				}
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func normalizeKubeBenchFinding(raw map[string]any) (finding.Finding, error) {
	ruleID, _ := raw["test_number"].(string)
	if ruleID == "" {
		return finding.Finding{}, fmt.Errorf("kube-bench: missing test_number")
	}
	message, _ := raw["test_desc"].(string)
	remediation, _ := raw["remediation"].(string)
	status, _ := raw["status"].(string)
	severity := "high"
	if status == "WARN" {
		severity = "medium"
	}

	mappedSeverity, severityKnown := finding.MapSeverity(severity)
	f := finding.Finding{
		ID:           "kube-bench:" + ruleID,
		RuleID:       "CKV_K8S_" + ruleID,
		Scanner:      "kube-bench",
		Severity:     mappedSeverity,
		Confidence:   finding.ConfidenceHigh,
		File:         "cluster-config",
		Message:      message,
		Snippet:      remediation,
		FixAvailable: false, // cluster-config findings have no file to edit; surfaced for visibility only
	}
	f.Fingerprint = finding.Fingerprint(f.RuleID, f.File, f.Line, f.Message)
	f = f.WithComplianceTags(finding.ComplianceTagsForRule(f.RuleID)...)
	if !severityKnown {
		f = f.WithMetadata("unknown_severity", severity)
	}
	return f, nil
}
