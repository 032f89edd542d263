package workflow

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remediation-kit/remediation-kit/internal/approval"
	"github.com/remediation-kit/remediation-kit/internal/audit"
	"github.com/remediation-kit/remediation-kit/internal/config"
	"github.com/remediation-kit/remediation-kit/internal/decision"
	"github.com/remediation-kit/remediation-kit/internal/finding"
	"github.com/remediation-kit/remediation-kit/internal/fixengine"
	orchretry "github.com/remediation-kit/remediation-kit/internal/orchestrator"
	"github.com/remediation-kit/remediation-kit/internal/patternstore"
	"github.com/remediation-kit/remediation-kit/internal/registry"
	"github.com/remediation-kit/remediation-kit/internal/store"
)

// fakeScanner reports a fixed finding the first time it runs and an
// empty result afterward, simulating a scanner whose issue was fixed.
type fakeScanner struct {
	calls int
}

func (s *fakeScanner) spec(targetFile string) registry.Spec {
	return registry.Spec{
		Name:     "fake-scanner",
		Category: registry.CategoryScanner,
		Handler: func(ctx context.Context, input json.RawMessage) (registry.Result, error) {
			s.calls++
			result := finding.ScanResult{
				ScanID:     "scan-" + time.Now().String(),
				Scanner:    "fake-scanner",
				StartedAt:  time.Now(),
				FinishedAt: time.Now(),
			}
			if s.calls == 1 {
				f := finding.Finding{
					RuleID:       "B105",
					Scanner:      "fake-scanner",
					Severity:     finding.SeverityHigh,
					Confidence:   finding.ConfidenceHigh,
					File:         targetFile,
					Line:         1,
					Snippet:      `password = "hunter2"`,
					FixAvailable: true,
				}
				f.Fingerprint = finding.Fingerprint(f.RuleID, f.File, f.Line, f.Snippet)
				result.Findings = []finding.Finding{f}
			}
			result.Summary = finding.ComputeSummary(result.Findings)
			return registry.Result{Data: result}, nil
		},
	}
}

func newTestOrchestrator(t *testing.T, targetFile string) *Orchestrator {
	t.Helper()

	reg := registry.New("test")
	scanner := &fakeScanner{}
	require.NoError(t, reg.Register(scanner.spec(targetFile)))

	engine := fixengine.New()
	engine.RegisterEditor(fixengine.ArtifactPython, fixengine.EditorFunc(func(p fixengine.Pattern, content []byte, line int) ([]byte, error) {
		return p.Apply(content, line)
	}))
	engine.RegisterPattern(fixengine.Pattern{
		ID:       "py-hardcoded-secret",
		RuleIDs:  []string{"B105"},
		Artifact: fixengine.ArtifactPython,
		Risk:     registry.RiskSafe,
		Apply: func(content []byte, line int) ([]byte, error) {
			return []byte(`password = os.environ["PASSWORD"]`), nil
		},
	})

	gate, err := approval.NewGate(context.Background())
	require.NoError(t, err)

	patterns, err := patternstore.Open(filepath.Join(t.TempDir(), "patterns.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = patterns.Close() })
	engine.Patterns = patterns

	auditLogger, err := audit.Open(filepath.Join(t.TempDir(), "audit.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditLogger.Close() })

	scans, err := store.NewScanStore(t.TempDir())
	require.NoError(t, err)
	fixes, err := store.NewFixStore(t.TempDir())
	require.NoError(t, err)

	return &Orchestrator{
		Registry:    reg,
		Engine:      engine,
		Gate:        gate,
		Bridge:      decision.NewFallbackBridge(patterns),
		Patterns:    patterns,
		Audit:       auditLogger,
		Scans:       scans,
		Fixes:       fixes,
		Retry:       orchretry.NewCoordinator(),
		Interaction: approval.AutoDenyPort{},
		Cfg:         &config.Config{WorkerPoolSize: 1, AutoApproveSafe: true, BackupsPath: t.TempDir()},
	}
}

func TestOrchestratorHappyPathReachesDoneAndLearns(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(file, []byte(`password = "hunter2"`), 0o644))

	orch := newTestOrchestrator(t, file)
	state, err := orch.Run(context.Background(), "test run", dir)
	require.NoError(t, err)

	assert.Equal(t, PhaseDone, state.Phase)
	require.Len(t, state.FixAttempts, 1)
	assert.Equal(t, fixengine.StatusApplied, state.FixAttempts[0].Status)
	require.NotNil(t, state.Effectiveness)
	assert.Equal(t, 1.0, *state.Effectiveness)
	assert.True(t, state.FixAttempts[0].Verified)

	p, ok := orch.Patterns.Lookup(state.FixAttempts[0].FindingFingerprint)
	require.True(t, ok)
	assert.Equal(t, 1, p.SuccessCount)

	got, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(got), "os.environ")
}

func TestOrchestratorNoFindingsSkipsToReport(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "clean.py")
	require.NoError(t, os.WriteFile(file, []byte(`x = 1`), 0o644))

	// A scanner that never reports anything routes Scan straight to Report.
	reg := registry.New("test")
	require.NoError(t, reg.Register(registry.Spec{
		Name:     "silent-scanner",
		Category: registry.CategoryScanner,
		Handler: func(ctx context.Context, input json.RawMessage) (registry.Result, error) {
			return registry.Result{Data: finding.ScanResult{Scanner: "silent-scanner", ScanID: "s1"}}, nil
		},
	}))

	scans, err := store.NewScanStore(t.TempDir())
	require.NoError(t, err)
	fixes, err := store.NewFixStore(t.TempDir())
	require.NoError(t, err)
	patterns, err := patternstore.Open(filepath.Join(t.TempDir(), "patterns.log"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = patterns.Close() })

	orch := &Orchestrator{
		Registry: reg,
		Engine:   fixengine.New(),
		Patterns: patterns,
		Scans:    scans,
		Fixes:    fixes,
		Retry:    orchretry.NewCoordinator(),
		Cfg:      &config.Config{WorkerPoolSize: 1},
	}

	state, err := orch.Run(context.Background(), "test run", dir)
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, state.Phase)
	assert.Empty(t, state.FixAttempts)
}

func TestOrchestratorDryRunStopsAfterDecideWithoutWritingFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.py")
	original := []byte(`password = "hunter2"`)
	require.NoError(t, os.WriteFile(file, original, 0o644))

	orch := newTestOrchestrator(t, file)
	orch.Cfg.DryRun = true

	state, err := orch.Run(context.Background(), "test run", dir)
	require.NoError(t, err)

	assert.Equal(t, PhaseDone, state.Phase)
	assert.Empty(t, state.FixAttempts)
	assert.NotNil(t, state.Decision)

	got, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestOrchestratorCancellationAborts(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(file, []byte(`password = "hunter2"`), 0o644))

	orch := newTestOrchestrator(t, file)
	orch.Cfg.CancelToken = config.NewCancelToken()
	orch.Cfg.CancelToken.Cancel()

	state, err := orch.Run(context.Background(), "test run", dir)
	require.NoError(t, err)
	assert.Equal(t, PhaseAborted, state.Phase)
}
