package fixengine

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/remediation-kit/remediation-kit/internal/finding"
	"github.com/remediation-kit/remediation-kit/internal/fsguard"
	"github.com/remediation-kit/remediation-kit/internal/logging"
	"github.com/remediation-kit/remediation-kit/internal/patternstore"
	"github.com/remediation-kit/remediation-kit/internal/richerr"
	"github.com/remediation-kit/remediation-kit/pkg/ids"
)

func contentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Engine holds the pattern catalogue and one Editor per ArtifactKind.
type Engine struct {
	patterns []Pattern
	editors  map[ArtifactKind]Editor
	// Patterns, when set, is consulted ahead of the built-in catalogue
	// per spec §4.4's selection order: a pattern already recorded
	// against this exact finding fingerprint wins outright, then a
	// pattern for this rule+artifact ranked by the store's learned
	// confidence, then the built-ins. Nil disables learned-pattern
	// preference and falls back to registration order only.
	Patterns *patternstore.Store
}

// New builds an Engine with the built-in editors and an empty pattern set.
func New() *Engine {
	return &Engine{
		editors: map[ArtifactKind]Editor{},
	}
}

// RegisterEditor binds an Editor to an ArtifactKind, overwriting any
// previous binding — callers register the five built-in editors at
// startup and may substitute a test double per kind.
func (e *Engine) RegisterEditor(kind ArtifactKind, editor Editor) {
	e.editors[kind] = editor
}

// RegisterPattern adds a Pattern to the selection pool. For a given
// finding, matching patterns the pattern store has learned about are
// tried first (see Candidates); the remaining matching patterns follow
// in registration order, and the first whose Apply succeeds wins.
func (e *Engine) RegisterPattern(p Pattern) {
	e.patterns = append(e.patterns, p)
}

// Candidates returns the patterns whose RuleIDs include f.RuleID, in
// spec §4.4 selection order: a pattern the store has already recorded
// a success or failure against this exact finding fingerprint first,
// then patterns for this rule and artifact kind ranked by the store's
// learned confidence, then the remaining built-ins in registration
// order. Exported so callers (the orchestrator's approval gate) can
// inspect a pattern's declared Risk before Apply ever touches the
// filesystem.
func (e *Engine) Candidates(f finding.Finding) []Pattern {
	kind := DetectArtifactKind(f.File)
	matching := func(p Pattern) bool {
		for _, rid := range p.RuleIDs {
			if rid == f.RuleID {
				return true
			}
		}
		return false
	}

	byID := make(map[string]Pattern, len(e.patterns))
	for _, p := range e.patterns {
		if matching(p) {
			byID[p.ID] = p
		}
	}

	var out []Pattern
	seen := make(map[string]bool, len(byID))
	add := func(id string) {
		if seen[id] {
			return
		}
		if p, ok := byID[id]; ok {
			out = append(out, p)
			seen[id] = true
		}
	}

	if e.Patterns != nil {
		if learned, ok := e.Patterns.Lookup(f.Fingerprint); ok {
			add(learned.PatternID)
		}
		for _, learned := range e.Patterns.LookupByRule(f.RuleID, string(kind)) {
			add(learned.PatternID)
		}
	}
	for _, p := range e.patterns {
		if matching(p) {
			add(p.ID)
		}
	}
	return out
}

// patternSource reports which tier of Candidates' selection order
// supplied patternID for f, so ApplyGated can record it on the
// FixAttempt for the audit log (spec §8-S6).
func (e *Engine) patternSource(f finding.Finding, kind ArtifactKind, patternID string) PatternSource {
	if e.Patterns != nil {
		if learned, ok := e.Patterns.Lookup(f.Fingerprint); ok && learned.PatternID == patternID {
			return SourceStoreFingerprint
		}
		for _, learned := range e.Patterns.LookupByRule(f.RuleID, string(kind)) {
			if learned.PatternID == patternID {
				return SourceStoreRule
			}
		}
	}
	return SourceBuiltin
}

// Apply tries f's Candidates in order until one applies, runs each through the
// file's lease (snapshot + atomic write + rollback on failure), and
// returns a FixAttempt describing the outcome. Conflict detection:
// callers are expected to serialize Apply calls per file via
// fsguard's path-keyed lock, which WithFileLease already acquires, so
// two fixers racing the same file never interleave writes.
func (e *Engine) Apply(domain string, f finding.Finding, backupRoot string) (FixAttempt, error) {
	return e.ApplyGated(domain, f, backupRoot, nil)
}

// ApplyGated is Apply with an optional per-candidate approval check:
// if gate is non-nil, it is consulted before a candidate pattern is
// attempted; a candidate the gate declines is recorded as Skipped
// (reason Pending/Blocked, taken from the gate's own message) and the
// next candidate is tried, mirroring spec §4.4's selection-order
// fallback. A nil gate behaves exactly like Apply (no approval is
// required — callers that already gated upstream, e.g. auto-fixable
// findings, use this).
func (e *Engine) ApplyGated(domain string, f finding.Finding, backupRoot string, gate func(Pattern) (bool, string)) (FixAttempt, error) {
	log := logging.Component("fixengine")
	attempt := FixAttempt{
		ID:                 ids.NewFixID(),
		FindingFingerprint: f.Fingerprint,
		File:               f.File,
		AppliedAt:          timeNow(),
	}

	kind := DetectArtifactKind(f.File)
	editor, ok := e.editors[kind]
	if !ok {
		attempt.Status = StatusFailed
		attempt.FailureCode = string(richerr.CodeToolUnavailable)
		return attempt, richerr.ToolUnavailableErr(domain, string(kind)+"-editor", nil)
	}

	candidates := e.Candidates(f)
	if len(candidates) == 0 {
		attempt.Status = StatusSkipped
		attempt.FailureReason = "no pattern addresses this rule"
		return attempt, richerr.ToolUnavailableErr(domain, "pattern-for-"+f.RuleID, nil)
	}

	var lastErr error
	for _, pattern := range candidates {
		source := e.patternSource(f, kind, pattern.ID)
		if gate != nil {
			if approved, reason := gate(pattern); !approved {
				attempt.PatternID = pattern.ID
				attempt.PatternSource = string(source)
				attempt.Status = StatusSkipped
				attempt.FailureReason = reason
				lastErr = fmt.Errorf("fixengine: pattern %s not approved: %s", pattern.ID, reason)
				log.Info().Str("pattern", pattern.ID).Str("file", f.File).Str("reason", reason).Msg("candidate pattern not approved")
				continue
			}
		}
		attempt.PatternID = pattern.ID
		attempt.PatternSource = string(source)
		var beforeHash, afterHash string
		var noOp bool
		err := fsguard.WithFileLease(f.File, func(lease *fsguard.Lease, write func([]byte) error) error {
			content := lease.Original()
			beforeHash = contentHash(content)
			rewritten, editErr := editor.Edit(pattern, content, f.Line)
			if editErr != nil {
				return editErr
			}
			if bytes.Equal(rewritten, content) {
				// Spec §8 property 5 (fix idempotence): a pattern whose
				// edit produced no change (the target was already fixed
				// by a prior pass) must not be recorded Applied again,
				// and must not write a duplicate provenance comment.
				noOp = true
				afterHash = beforeHash
				return nil
			}
			rewritten = appendProvenance(rewritten, kind, pattern.ID, f.Fingerprint)
			if writeErr := write(rewritten); writeErr != nil {
				return writeErr
			}
			afterHash = contentHash(rewritten)
			if snap, snapErr := lease.Snapshot(backupRoot, attempt.AppliedAt); snapErr == nil {
				attempt.BackupRef = snap.Ref
				attempt.Snapshot = snap
			}
			return nil
		})
		if err == nil && noOp {
			attempt.Status = StatusSkipped
			attempt.FailureReason = "NoOp"
			attempt.BeforeHash = beforeHash
			attempt.AfterHash = afterHash
			log.Info().Str("pattern", pattern.ID).Str("file", f.File).Msg("fix already applied, no-op")
			return attempt, fmt.Errorf("fixengine: pattern %s is a no-op, already applied", pattern.ID)
		}
		if err == nil {
			attempt.Succeeded = true
			attempt.Status = StatusApplied
			attempt.BeforeHash = beforeHash
			attempt.AfterHash = afterHash
			attempt.Diff = fmt.Sprintf("%s -> %s", beforeHash[:12], afterHash[:12])
			attempt.Provenance = fmt.Sprintf("pattern=%s rule=%s fingerprint=%s", pattern.ID, f.RuleID, f.Fingerprint)
			log.Info().Str("pattern", pattern.ID).Str("file", f.File).Msg("fix applied")
			return attempt, nil
		}
		lastErr = err
	}

	if attempt.Status == "" {
		attempt.Status = StatusFailed
	}
	if attempt.FailureCode == "" && attempt.Status == StatusFailed {
		attempt.FailureCode = string(richerr.CodeToolFailure)
	}
	log.Warn().Str("file", f.File).Err(lastErr).Msg("all candidate patterns failed or were not approved")
	return attempt, lastErr
}

// ApplyBatch applies fixes for every finding in fs, grouped by file and
// ordered by descending line within each file (spec §4.4 batching: "to
// avoid line-drift"). Across files, order is lexicographic by path so
// runs are reproducible (spec §5). Findings that share a line in the
// same file are taken in fingerprint order; once one of them has been
// Applied, each later one at that line is recorded Skipped with reason
// "Conflict" and deferred to the next workflow pass rather than
// attempted at all. A finding whose attempt did not apply leaves the
// line unclaimed, so the next finding at that line is still attempted.
//
// cancelled, if non-nil, is polled between findings (spec §5:
// "Cancellation is checked at node boundaries and between findings
// during Fix"); once it reports true, ApplyBatch stops attempting
// further findings and returns the attempts recorded so far plus
// aborted=true so the caller can roll back and transition to Aborted.
func (e *Engine) ApplyBatch(domain string, fs []finding.Finding, backupRoot string, gate func(finding.Finding, Pattern) (bool, string), cancelled func() bool) (attempts []FixAttempt, aborted bool) {
	byFile := make(map[string][]finding.Finding)
	var files []string
	for _, f := range fs {
		if _, seen := byFile[f.File]; !seen {
			files = append(files, f.File)
		}
		byFile[f.File] = append(byFile[f.File], f)
	}
	sort.Strings(files)

	for _, file := range files {
		group := byFile[file]
		sort.Slice(group, func(i, j int) bool {
			if group[i].Line != group[j].Line {
				return group[i].Line > group[j].Line
			}
			return group[i].Fingerprint < group[j].Fingerprint
		})

		claimedLines := make(map[int]bool)
		for _, f := range group {
			if cancelled != nil && cancelled() {
				return attempts, true
			}
			if claimedLines[f.Line] {
				attempts = append(attempts, FixAttempt{
					ID:                 ids.NewFixID(),
					FindingFingerprint: f.Fingerprint,
					File:               f.File,
					Status:             StatusSkipped,
					FailureReason:      "Conflict",
					AppliedAt:          timeNow(),
				})
				continue
			}
			var fGate func(Pattern) (bool, string)
			if gate != nil {
				fGate = func(p Pattern) (bool, string) { return gate(f, p) }
			}
			attempt, _ := e.ApplyGated(domain, f, backupRoot, fGate)
			attempts = append(attempts, attempt)
			if attempt.Status == StatusApplied {
				claimedLines[f.Line] = true
			}
		}
	}
	return attempts, false
}

// appendProvenance adds a comment line recording which pattern made
// this edit, in the syntax each artifact kind recognizes as a comment.
func appendProvenance(content []byte, kind ArtifactKind, patternID, fingerprint string) []byte {
	var prefix string
	switch kind {
	case ArtifactPython, ArtifactYAML:
		prefix = "# "
	case ArtifactHCL:
		prefix = "# "
	case ArtifactJSON:
		return content // JSON has no comment syntax; provenance lives in the FixAttempt record only
	default:
		prefix = "# "
	}
	short := fingerprint
	if len(short) > 12 {
		short = short[:12]
	}
	note := []byte(fmt.Sprintf("\n%sremediation-kit: applied %s for %s\n", prefix, patternID, short))
	return append(content, note...)
}

func timeNow() time.Time { return time.Now() }
