package finding

import "strings"

// Normalizer maps one scanner's raw output record into the canonical
// Finding shape. Each scanner adapter under internal/scanners supplies
// one; a Normalizer that cannot map a record returns an error so the
// caller can quarantine it rather than abort the scan (spec §4.2).
type Normalizer interface {
	Normalize(raw map[string]any) (Finding, error)
}

// NormalizerFunc adapts a plain function to the Normalizer interface.
type NormalizerFunc func(raw map[string]any) (Finding, error)

func (f NormalizerFunc) Normalize(raw map[string]any) (Finding, error) { return f(raw) }

// severityAliases maps the many spellings scanners use for severity
// onto the canonical five-point scale.
var severityAliases = map[string]Severity{
	"critical": SeverityCritical,
	"blocker":  SeverityCritical,
	"high":     SeverityHigh,
	"error":    SeverityHigh,
	"medium":   SeverityMedium,
	"moderate": SeverityMedium,
	"warning":  SeverityMedium,
	"low":      SeverityLow,
	"minor":    SeverityLow,
	"note":     SeverityInfo,
	"info":     SeverityInfo,
	"informational": SeverityInfo,
}

// MapSeverity normalizes a scanner-reported severity string onto the
// canonical scale. A severity this table doesn't recognize (including
// the literal "unknown") maps to Info rather than dropping or
// inflating the finding (spec §4.2); the second return value is false
// in that case so the caller can flag it in the finding's metadata.
func MapSeverity(raw string) (Severity, bool) {
	if s, ok := severityAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s, true
	}
	return SeverityInfo, false
}

// confidenceAliases mirrors MapSeverity for the confidence axis.
var confidenceAliases = map[string]Confidence{
	"high":   ConfidenceHigh,
	"medium": ConfidenceMedium,
	"moderate": ConfidenceMedium,
	"low":    ConfidenceLow,
}

// MapConfidence normalizes a scanner-reported confidence string.
func MapConfidence(raw string) Confidence {
	if c, ok := confidenceAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return c
	}
	return ConfidenceMedium
}

// complianceMap associates well-known rule-ID prefixes with the
// compliance frameworks they satisfy evidence for, used to populate
// Finding.ComplianceTags when a scanner doesn't supply it directly.
var complianceMap = map[string][]string{
	"CKV_AWS_": {"cis-aws"},
	"CKV_K8S_": {"cis-kubernetes"},
	"B1":       {"owasp-asvs"},
}

// ComplianceTagsForRule returns the known compliance tags for a rule
// ID by prefix match, or nil if none are known.
func ComplianceTagsForRule(ruleID string) []string {
	for prefix, tags := range complianceMap {
		if strings.HasPrefix(ruleID, prefix) {
			return tags
		}
	}
	return nil
}
