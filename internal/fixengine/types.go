// Package fixengine turns a normalized finding into a concrete,
// reviewable file edit (spec §4.3/§4.4). Each artifact kind (Python,
// HCL, YAML, JSON, or plain text) gets its own Editor; Engine picks
// the editor by file extension, applies the matching Pattern, and
// records a FixAttempt with enough provenance for the verify stage to
// compare before/after scans.
package fixengine

import (
	"time"

	"github.com/remediation-kit/remediation-kit/internal/fsguard"
	"github.com/remediation-kit/remediation-kit/internal/registry"
)

// ArtifactKind names the file family a Pattern's Editor understands.
type ArtifactKind string

const (
	ArtifactPython ArtifactKind = "python"
	ArtifactHCL    ArtifactKind = "hcl"
	ArtifactYAML   ArtifactKind = "yaml"
	ArtifactJSON   ArtifactKind = "json"
	ArtifactText   ArtifactKind = "text"
)

// DetectArtifactKind maps a file extension onto the ArtifactKind whose
// Editor should handle it.
func DetectArtifactKind(path string) ArtifactKind {
	switch ext(path) {
	case ".py":
		return ArtifactPython
	case ".tf", ".hcl":
		return ArtifactHCL
	case ".yaml", ".yml":
		return ArtifactYAML
	case ".json":
		return ArtifactJSON
	default:
		return ArtifactText
	}
}

func ext(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}

// Pattern is one named, reusable remediation recipe: it knows which
// rule IDs it addresses and which ArtifactKind its edit targets.
type Pattern struct {
	ID          string
	Description string
	RuleIDs     []string
	Artifact    ArtifactKind
	// Risk is the approval-gate risk class this pattern's fixer
	// declares for itself (spec §3 ToolSpec.risk); the orchestrator
	// evaluates it through approval.Gate before Apply runs.
	Risk registry.Risk
	// Apply performs the structural edit over content, returning the
	// rewritten bytes or an error if the pattern does not apply to
	// this particular occurrence (e.g. the matched construct is absent).
	Apply func(content []byte, line int) ([]byte, error)
}

// PatternSource identifies which tier of the spec §4.4 selection order
// supplied a FixAttempt's pattern, for the fix audit log (spec §8-S6).
type PatternSource string

const (
	SourceStoreFingerprint PatternSource = "store_fingerprint"
	SourceStoreRule        PatternSource = "store_rule"
	SourceBuiltin          PatternSource = "builtin"
)

// Status is a FixAttempt's outcome (spec §3 FixAttempt.status).
type Status string

const (
	StatusApplied    Status = "Applied"
	StatusSkipped    Status = "Skipped"
	StatusFailed     Status = "Failed"
	StatusRolledBack Status = "RolledBack"
)

// FixAttempt records one application of a Pattern against one finding,
// including enough provenance for the pattern store and audit log
// (spec §3 FixAttempt). Succeeded is kept alongside Status as a
// convenience predicate (Status == Applied) since callers test it far
// more often than they switch on the full enum.
type FixAttempt struct {
	ID                 string    `json:"id"`
	FindingFingerprint string    `json:"finding_fingerprint"`
	PatternID          string    `json:"pattern_id"`
	PatternSource      string    `json:"pattern_source,omitempty"`
	File               string    `json:"file"`
	BeforeHash         string    `json:"before_hash,omitempty"`
	AfterHash          string    `json:"after_hash,omitempty"`
	BackupRef          string    `json:"backup_ref"`
	AppliedAt          time.Time `json:"applied_at"`
	Diff               string    `json:"diff,omitempty"`
	Provenance         string    `json:"provenance"`
	Status             Status    `json:"status"`
	Succeeded          bool      `json:"succeeded"`
	Verified           bool      `json:"verified"`
	FailureCode        string    `json:"failure_code,omitempty"`
	FailureReason      string    `json:"failure_reason,omitempty"`
	// Snapshot is the durable on-disk backup this attempt's edit was
	// recorded against, kept in-process (not persisted on the fix
	// report) so a same-run cancellation can roll every touched file
	// back via Snapshot.Restore without needing to re-derive mode and
	// existence from BackupRef alone.
	Snapshot *fsguard.Snapshot `json:"-"`
}
