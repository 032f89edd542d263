package scanners

import (
	"encoding/json"
	"fmt"

	"github.com/remediation-kit/remediation-kit/internal/finding"
)

// banditReport mirrors the subset of `bandit -f json` output this
// adapter cares about.
type banditReport struct {
	Results []map[string]any `json:"results"`
}

func banditScanner() commandScanner {
	return commandScanner{
		name:   "bandit",
		binary: "bandit",
		args: func(targetPath string) []string {
			return []string{"-r", targetPath, "-f", "json", "-q"}
		},
		decode:     decodeBanditReport,
		normalizer: finding.NormalizerFunc(normalizeBanditFinding),
	}
}

func decodeBanditReport(stdout []byte) ([]map[string]any, error) {
	var report banditReport
	if err := json.Unmarshal(stdout, &report); err != nil {
		return nil, fmt.Errorf("bandit: decode report: %w", err)
	}
	return report.Results, nil
}

func normalizeBanditFinding(raw map[string]any) (finding.Finding, error) {
	ruleID, _ := raw["test_id"].(string)
	if ruleID == "" {
		return finding.Finding{}, fmt.Errorf("bandit: missing test_id")
	}
	file, _ := raw["filename"].(string)
	if file == "" {
		return finding.Finding{}, fmt.Errorf("bandit: missing filename")
	}
	line := intField(raw, "line_number")
	snippet, _ := raw["code"].(string)
	message, _ := raw["issue_text"].(string)
	severity, _ := raw["issue_severity"].(string)
	confidence, _ := raw["issue_confidence"].(string)
	cwe := ""
	if cweObj, ok := raw["issue_cwe"].(map[string]any); ok {
		if id, ok := cweObj["id"]; ok {
			cwe = fmt.Sprintf("CWE-%v", id)
		}
	}

	mappedSeverity, severityKnown := finding.MapSeverity(severity)
	f := finding.Finding{
		ID:           "bandit:" + ruleID + ":" + file + ":" + fmt.Sprint(line),
		RuleID:       ruleID,
		Scanner:      "bandit",
		Severity:     mappedSeverity,
		Confidence:   finding.MapConfidence(confidence),
		File:         file,
		Line:         line,
		Snippet:      snippet,
		Message:      message,
		CWE:          cwe,
		FixAvailable: true,
	}
	f.Fingerprint = finding.Fingerprint(f.RuleID, f.File, f.Line, f.Snippet)
	f = f.WithComplianceTags(finding.ComplianceTagsForRule(f.RuleID)...)
	if !severityKnown {
		f = f.WithMetadata("unknown_severity", severity)
	}
	return f, nil
}

func intField(raw map[string]any, key string) int {
	switch v := raw[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
