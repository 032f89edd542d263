// Package finding defines the canonical Finding representation every
// scanner output is normalized into, per spec §3 and §4.2. The shape
// is grounded on the retrieval pack's findings.Finding/Evidence types,
// narrowed to the exact field set spec.md requires.
package finding

import "time"

// Severity is the canonical severity scale findings are mapped onto.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
	SeverityInfo     Severity = "Info"
)

// Confidence is the scanner's confidence in the finding.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// Finding is a single normalized scanner observation (spec §3).
type Finding struct {
	ID              string         `json:"id"`
	Fingerprint     string         `json:"fingerprint"`
	RuleID          string         `json:"rule_id"`
	Scanner         string         `json:"scanner"`
	Severity        Severity       `json:"severity"`
	Confidence      Confidence     `json:"confidence"`
	File            string         `json:"file"`
	Line            int            `json:"line"`
	Column          int            `json:"column,omitempty"`
	Snippet         string         `json:"snippet"`
	Message         string         `json:"message"`
	CWE             string         `json:"cwe,omitempty"`
	ComplianceTags  []string       `json:"compliance_tags,omitempty"`
	FixAvailable    bool           `json:"fix_available"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// WithMetadata sets a metadata key, returning the same Finding for chaining.
func (f Finding) WithMetadata(key string, value any) Finding {
	if f.Metadata == nil {
		f.Metadata = make(map[string]any)
	}
	f.Metadata[key] = value
	return f
}

// WithComplianceTags appends compliance framework tags.
func (f Finding) WithComplianceTags(tags ...string) Finding {
	f.ComplianceTags = append(f.ComplianceTags, tags...)
	return f
}

// Summary provides aggregated per-severity counts (spec §3 ScanResult.summary).
type Summary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
}

// ComputeSummary tallies a Finding slice into a Summary.
func ComputeSummary(findings []Finding) Summary {
	s := Summary{BySeverity: make(map[string]int)}
	for _, f := range findings {
		s.Total++
		s.BySeverity[string(f.Severity)]++
	}
	return s
}

// ScanResult is one scanner execution, per spec §3.
type ScanResult struct {
	ScanID        string    `json:"scan_id"`
	Scanner       string    `json:"scanner"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Target        string    `json:"target"`
	Findings      []Finding `json:"findings"`
	Summary       Summary   `json:"summary"`
	RawArtifactRef string   `json:"raw_artifact_ref,omitempty"`
	Quarantine    []QuarantinedFinding `json:"quarantine,omitempty"`
}

// QuarantinedFinding records a raw scanner finding that failed
// normalization (spec §4.2): NormalizationError never propagates past
// the registry, it is counted here instead.
type QuarantinedFinding struct {
	Raw    map[string]any `json:"raw"`
	Reason string         `json:"reason"`
}

// FingerprintSet returns the set of fingerprints present in a slice of
// findings, used throughout verification and learning.
func FingerprintSet(findings []Finding) map[string]Finding {
	out := make(map[string]Finding, len(findings))
	for _, f := range findings {
		out[f.Fingerprint] = f
	}
	return out
}
