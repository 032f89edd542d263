package scanners

import (
	"encoding/json"
	"fmt"

	"github.com/remediation-kit/remediation-kit/internal/finding"
)

// checkovReport mirrors one entry of `checkov -o json`'s top-level
// shape: a single object when one framework ran, or an array of
// per-framework objects when checkov is asked for several frameworks
// at once (this adapter asks for both terraform and kubernetes, so it
// must handle either shape).
type checkovReport struct {
	Results struct {
		FailedChecks []map[string]any `json:"failed_checks"`
	} `json:"results"`
}

func checkovScanner() commandScanner {
	return commandScanner{
		name:   "checkov",
		binary: "checkov",
		args: func(targetPath string) []string {
			return []string{"-d", targetPath, "--framework", "terraform", "--framework", "kubernetes", "-o", "json", "--compact"}
		},
		decode:     decodeCheckovReport,
		normalizer: finding.NormalizerFunc(normalizeCheckovFinding),
	}
}

func decodeCheckovReport(stdout []byte) ([]map[string]any, error) {
	var reports []checkovReport
	if err := json.Unmarshal(stdout, &reports); err != nil {
		var single checkovReport
		if singleErr := json.Unmarshal(stdout, &single); singleErr != nil {
			return nil, fmt.Errorf("checkov: decode report: %w", err)
		}
		reports = []checkovReport{single}
	}
	var out []map[string]any
	for _, r := range reports {
		out = append(out, r.Results.FailedChecks...)
	}
	return out, nil
}

func normalizeCheckovFinding(raw map[string]any) (finding.Finding, error) {
	ruleID, _ := raw["check_id"].(string)
	if ruleID == "" {
		return finding.Finding{}, fmt.Errorf("checkov: missing check_id")
	}
	file, _ := raw["file_path"].(string)
	if file == "" {
		return finding.Finding{}, fmt.Errorf("checkov: missing file_path")
	}
	line := 0
	if lr, ok := raw["file_line_range"].([]any); ok && len(lr) > 0 {
		if v, ok := lr[0].(float64); ok {
			line = int(v)
		}
	}
	message, _ := raw["check_name"].(string)
	severity, _ := raw["severity"].(string)

	mappedSeverity, severityKnown := finding.MapSeverity(severity)
	f := finding.Finding{
		ID:           "checkov:" + ruleID + ":" + file,
		RuleID:       ruleID,
		Scanner:      "checkov",
		Severity:     mappedSeverity,
		Confidence:   finding.ConfidenceHigh,
		File:         file,
		Line:         line,
		Message:      message,
		FixAvailable: true,
	}
	f.Fingerprint = finding.Fingerprint(f.RuleID, f.File, f.Line, f.Message)
	f = f.WithComplianceTags(finding.ComplianceTagsForRule(f.RuleID)...)
	if !severityKnown {
		f = f.WithMetadata("unknown_severity", severity)
	}
	return f, nil
}
