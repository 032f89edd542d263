// Package scanners adapts external static-analysis tools (bandit,
// checkov, kube-bench) into registry.Spec entries under
// registry.CategoryScanner. Each adapter shells out via os/exec the
// same way the teacher's domain/security validators probe external
// binaries (ValidateCommandAvailable, docker version), then normalizes
// the tool's native JSON report into finding.ScanResult through
// finding.Normalizer, quarantining any record the normalizer rejects
// instead of failing the whole scan (spec §4.2).
package scanners

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/remediation-kit/remediation-kit/internal/finding"
	"github.com/remediation-kit/remediation-kit/internal/logging"
	"github.com/remediation-kit/remediation-kit/internal/registry"
	"github.com/remediation-kit/remediation-kit/internal/richerr"
	"github.com/remediation-kit/remediation-kit/pkg/ids"
)

// scanInput is the JSON shape every scanner Handler accepts (spec §3
// ToolSpec input_schema for the Scanner category: a single target
// path to walk).
type scanInput struct {
	TargetPath string `json:"target_path"`
}

// commandScanner is the shared shape of a scanner adapter: a binary,
// the args that make it emit machine-readable JSON, and a decoder that
// turns one raw report into []map[string]any records for the
// Normalizer to walk — the report schemas differ (bandit's "results",
// checkov's "results.failed_checks", kube-bench's "tests[].results")
// so only the decode step is adapter-specific.
type commandScanner struct {
	name       string
	binary     string
	args       func(targetPath string) []string
	decode     func(stdout []byte) ([]map[string]any, error)
	normalizer finding.Normalizer
}

// Spec builds the registry.Spec for this adapter.
func (c commandScanner) Spec() registry.Spec {
	return registry.Spec{
		Name:        c.name,
		Description: fmt.Sprintf("%s static-analysis scan, normalized into the canonical finding shape", c.name),
		Category:    registry.CategoryScanner,
		InputSchema: scanInputSchema,
		Handler:     c.handle,
	}
}

var scanInputSchema = json.RawMessage(`{
	"type": "object",
	"required": ["target_path"],
	"properties": {"target_path": {"type": "string", "minLength": 1}}
}`)

func (c commandScanner) handle(ctx context.Context, raw json.RawMessage) (registry.Result, error) {
	log := logging.Component("scanners").With().Str("scanner", c.name).Logger()

	var in scanInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return registry.Result{}, richerr.SchemaErrorf("scanners", "%s: invalid input: %v", c.name, err)
	}

	if _, err := exec.LookPath(c.binary); err != nil {
		return registry.Result{}, richerr.ToolUnavailableErr("scanners", c.name, err)
	}

	startedAt := time.Now()
	cmd := exec.CommandContext(ctx, c.binary, c.args(in.TargetPath)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Most of these scanners (bandit, checkov) exit non-zero when
	// findings are present — that is signal, not failure, so the exit
	// code is only fatal when stdout never produced a parseable report.
	runErr := cmd.Run()

	records, decodeErr := c.decode(stdout.Bytes())
	if decodeErr != nil {
		if runErr != nil {
			return registry.Result{}, richerr.ToolFailureErr("scanners", c.name, exitCode(runErr), stderr.String(), false)
		}
		return registry.Result{}, richerr.ToolFailureErr("scanners", c.name, 0, decodeErr.Error(), false)
	}

	result := finding.ScanResult{
		ScanID:     ids.NewScanID(),
		Scanner:    c.name,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Target:     in.TargetPath,
	}
	for _, rec := range records {
		f, err := c.normalizer.Normalize(rec)
		if err != nil {
			result.Quarantine = append(result.Quarantine, finding.QuarantinedFinding{Raw: rec, Reason: err.Error()})
			log.Warn().Err(err).Msg("quarantined a raw finding that failed normalization")
			continue
		}
		result.Findings = append(result.Findings, f)
	}
	result.Summary = finding.ComputeSummary(result.Findings)

	return registry.Result{Data: result}, nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// RegisterAll registers the bandit, checkov, and kube-bench adapters —
// the three families the wire-format table in spec §6 expects
// (*_latest.json per scanner name) — onto r.
func RegisterAll(r *registry.Registry) error {
	for _, s := range []commandScanner{banditScanner(), checkovScanner(), kubeBenchScanner()} {
		if err := r.Register(s.Spec()); err != nil {
			return err
		}
	}
	return nil
}
