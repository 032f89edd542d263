package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/remediation-kit/remediation-kit/internal/approval"
	"github.com/remediation-kit/remediation-kit/internal/audit"
	"github.com/remediation-kit/remediation-kit/internal/config"
	"github.com/remediation-kit/remediation-kit/internal/decision"
	"github.com/remediation-kit/remediation-kit/internal/finding"
	"github.com/remediation-kit/remediation-kit/internal/fixengine"
	"github.com/remediation-kit/remediation-kit/internal/logging"
	orchretry "github.com/remediation-kit/remediation-kit/internal/orchestrator"
	"github.com/remediation-kit/remediation-kit/internal/patternstore"
	"github.com/remediation-kit/remediation-kit/internal/registry"
	"github.com/remediation-kit/remediation-kit/internal/richerr"
	"github.com/remediation-kit/remediation-kit/internal/store"
	"github.com/remediation-kit/remediation-kit/internal/verify"
	"github.com/remediation-kit/remediation-kit/pkg/ids"
)

// maxToolUnavailable is the retry-policy budget from spec §4.6: the
// orchestrator aborts the Scan phase only when every registered scanner
// was downgraded and there were at least this many of them. Any scanner
// that succeeds lets the run continue with the remaining results.
const maxToolUnavailable = 3

// Orchestrator drives one WorkflowState at a time through the fixed
// Scan→Analyze→Decide→Fix→Verify→Learn→Report graph. It owns the
// process-wide shared resources named in spec §5: the pattern store's
// serializing gateway and the path-keyed target lock (a second,
// workflow-granularity lock above fsguard's per-file lease lock).
type Orchestrator struct {
	Registry    *registry.Registry
	Engine      *fixengine.Engine
	Gate        *approval.Gate
	Bridge      decision.Bridge
	Patterns    *patternstore.Store
	Audit       *audit.Logger
	Scans       *store.ScanStore
	Fixes       *store.FixStore
	Retry       *orchretry.Coordinator
	Interaction approval.InteractionPort
	Cfg         *config.Config

	targetLocks sync.Map // map[string]*sync.Mutex, keyed by target path
}

func (o *Orchestrator) lockTarget(path string) func() {
	l, _ := o.targetLocks.LoadOrStore(path, &sync.Mutex{})
	mu := l.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Run executes one workflow end to end, advancing State.Phase through
// the transition table in spec §4.6 until it reaches Done or Aborted.
func (o *Orchestrator) Run(ctx context.Context, task, targetPath string) (*State, error) {
	unlock := o.lockTarget(targetPath)
	defer unlock()

	state := &State{
		WorkflowID: ids.NewWorkflowID(),
		Task:       task,
		TargetPath: targetPath,
		Phase:      PhaseScan,
		StartedAt:  time.Now(),
	}
	log := logging.Component("workflow").With().Str("workflow_id", state.WorkflowID).Logger()
	o.logAudit(state, "workflow_started", "ok", nil)

	for state.Phase != PhaseDone && state.Phase != PhaseAborted {
		if o.cancelled() {
			o.abort(state, "cancellation signal observed at node boundary")
			break
		}

		var err error
		switch state.Phase {
		case PhaseScan:
			err = o.runScan(ctx, state)
		case PhaseAnalyze:
			err = o.runAnalyze(ctx, state)
		case PhaseDecide:
			err = o.runDecide(ctx, state)
		case PhaseFix:
			err = o.runFix(ctx, state)
		case PhaseVerify:
			err = o.runVerify(ctx, state)
		case PhaseLearn:
			err = o.runLearn(ctx, state)
		case PhaseReport:
			err = o.runReport(ctx, state)
			state.Phase = PhaseDone
		}

		if err != nil {
			if richerr.Is(err, richerr.CodeRestoreFailed) {
				o.abort(state, err.Error())
				break
			}
			log.Error().Err(err).Str("phase", string(state.Phase)).Msg("workflow node failed")
			state.addError(err.Error())
			o.abort(state, err.Error())
			break
		}
	}

	state.FinishedAt = time.Now()
	o.logAudit(state, "workflow_finished", string(state.Phase), map[string]any{"effectiveness": state.Effectiveness})
	return state, nil
}

func (o *Orchestrator) cancelled() bool {
	return o.Cfg != nil && o.Cfg.CancelToken != nil && o.Cfg.CancelToken.Cancelled()
}

func (o *Orchestrator) abort(state *State, reason string) {
	state.addError(reason)
	state.Phase = PhaseAborted
	o.logAudit(state, "abort", "aborted", map[string]any{"reason": reason})
}

func (o *Orchestrator) logAudit(state *State, action, status string, detail map[string]any) {
	if o.Audit == nil {
		return
	}
	_ = o.Audit.Record(audit.Entry{
		WorkflowID: state.WorkflowID,
		Phase:      string(state.Phase),
		Action:     action,
		Status:     status,
		Detail:     detail,
	})
}

// runScan executes every registered Scanner ToolSpec, bounded by
// Cfg.WorkerPoolSize, retried up to 2 times via the Coordinator's
// default 3-attempt policy (every error from the scanner is retried,
// whatever its kind; a SchemaError is not exempted), merges
// results in deterministic (scanner name, timestamp) order, and
// persists each via the scan store. Scan→Analyze on a non-empty
// finding set; Scan→Report (skipping the rest of the graph) when
// nothing was found.
func (o *Orchestrator) runScan(ctx context.Context, state *State) error {
	specs := o.Registry.ByCategory(registry.CategoryScanner)
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	poolSize := 1
	if o.Cfg != nil && o.Cfg.WorkerPoolSize > 0 {
		poolSize = o.Cfg.WorkerPoolSize
	}
	sem := make(chan struct{}, poolSize)

	results := make([]finding.ScanResult, len(specs))
	var wg sync.WaitGroup
	var mu sync.Mutex
	downgraded := 0

	for i, spec := range specs {
		i, spec := i, spec
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			var result finding.ScanResult
			err := o.Retry.Execute(ctx, "scan:"+spec.Name, func(ctx context.Context) error {
				input := []byte(fmt.Sprintf(`{"target_path":%q}`, state.TargetPath))
				timeout := 10 * time.Minute
				if o.Cfg != nil && o.Cfg.ScanTimeout > 0 {
					timeout = o.Cfg.ScanTimeout
				}
				res, execErr := o.Registry.Execute(ctx, spec.Name, input, timeout)
				if execErr != nil {
					return execErr
				}
				sr, ok := res.Data.(finding.ScanResult)
				if !ok {
					return fmt.Errorf("workflow: scanner %s returned unexpected result type", spec.Name)
				}
				result = sr
				return nil
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				downgraded++
				o.logAudit(state, "scan", "downgraded", map[string]any{"scanner": spec.Name, "error": err.Error()})
				return
			}
			if o.Scans != nil {
				if _, writeErr := o.Scans.Write(result); writeErr != nil {
					o.logAudit(state, "scan_persist", "error", map[string]any{"scanner": spec.Name, "error": writeErr.Error()})
				}
			}
			results[i] = result
		}()
	}
	wg.Wait()

	if downgraded >= maxToolUnavailable && downgraded == len(specs) {
		return richerr.ToolUnavailableErr("workflow", "all-scanners", nil)
	}

	var finalResults []finding.ScanResult
	for _, r := range results {
		if r.ScanID != "" {
			finalResults = append(finalResults, r)
		}
	}
	state.ScanResultsBefore = finalResults
	o.logAudit(state, "scan", "ok", map[string]any{"scanner_count": len(finalResults), "downgraded": downgraded})

	if len(state.BeforeFindings()) == 0 {
		state.Phase = PhaseReport
		return nil
	}
	state.Phase = PhaseAnalyze
	return nil
}

// runAnalyze is a pass-through node (spec §4.6 Analyze→Decide always):
// the normalizer already ran at the registry boundary during Scan, so
// Analyze's job is purely to record that the findings were considered
// before the decision bridge is invoked.
func (o *Orchestrator) runAnalyze(ctx context.Context, state *State) error {
	o.logAudit(state, "analyze", "ok", map[string]any{"finding_count": len(state.BeforeFindings())})
	state.Phase = PhaseDecide
	return nil
}

// runDecide invokes the decision bridge within Cfg.DecisionTimeout,
// falling back to the deterministic rule on timeout or bridge error
// (spec §4.6/§4.7).
func (o *Orchestrator) runDecide(ctx context.Context, state *State) error {
	timeout := 60 * time.Second
	if o.Cfg != nil && o.Cfg.DecisionTimeout > 0 {
		timeout = o.Cfg.DecisionTimeout
	}
	decideCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	findings := state.BeforeFindings()
	plan, err := o.Bridge.Decide(decideCtx, findings)
	if err != nil {
		fallback := decision.NewFallbackBridge(o.Patterns)
		plan, err = fallback.Decide(ctx, findings)
		if err != nil {
			return err
		}
	}
	state.Decision = &plan
	o.logAudit(state, "decide", "ok", map[string]any{"bridge_kind": plan.BridgeKind})

	if allSkip(plan) {
		state.Phase = PhaseReport
		return nil
	}

	if o.Cfg != nil && o.Cfg.DryRun {
		o.logAudit(state, "decide", "dry_run", map[string]any{"actions": plan.Actions})
		state.Phase = PhaseReport
		return nil
	}

	state.Phase = PhaseFix
	return nil
}

func allSkip(plan decision.Plan) bool {
	for _, a := range plan.Actions {
		if a != decision.ActionSkip {
			return false
		}
	}
	return true
}

// runFix applies fixes sequentially (spec §5: "Fix application is
// strictly sequential within a workflow"), gating every candidate
// pattern through the approval gate before fsguard ever touches the
// file (spec §8 property 9). Findings are batched per file and
// ordered by descending line (spec §4.4) via Engine.ApplyBatch, which
// also resolves same-line conflicts between findings deterministically
// rather than relying on map iteration order.
func (o *Orchestrator) runFix(ctx context.Context, state *State) error {
	byFP := finding.FingerprintSet(state.BeforeFindings())
	backupRoot := ""
	if o.Cfg != nil {
		backupRoot = o.Cfg.BackupsPath
	}

	var targeted []finding.Finding
	for fp, action := range state.Decision.Actions {
		if action == decision.ActionSkip {
			continue
		}
		if f, ok := byFP[fp]; ok {
			targeted = append(targeted, f)
		}
	}

	gate := func(f finding.Finding, p fixengine.Pattern) (bool, string) {
		return o.evaluateGate(ctx, state, p, f)
	}
	attempts, aborted := o.Engine.ApplyBatch("workflow", targeted, backupRoot, gate, o.cancelled)
	state.FixAttempts = append(state.FixAttempts, attempts...)
	for _, attempt := range attempts {
		switch attempt.Status {
		case fixengine.StatusApplied:
			o.logAudit(state, "fix", "applied", map[string]any{"finding": attempt.FindingFingerprint, "pattern": attempt.PatternID, "pattern_source": attempt.PatternSource, "file": attempt.File})
		case fixengine.StatusSkipped:
			o.logAudit(state, "fix", "skipped", map[string]any{"finding": attempt.FindingFingerprint, "file": attempt.File, "reason": attempt.FailureReason})
		default:
			o.logAudit(state, "fix", "failed", map[string]any{"finding": attempt.FindingFingerprint, "file": attempt.File, "reason": attempt.FailureReason})
		}
	}
	if aborted {
		o.rollback(state)
		o.abort(state, "cancellation signal observed between findings during Fix")
		return nil
	}

	state.Phase = PhaseVerify
	return nil
}

// evaluateGate runs the approval policy for one candidate pattern,
// falling through to the interaction port when the policy's verdict
// is Pending (spec §4.5's NeedsInteraction). Every Approved verdict —
// policy-approved or human-approved — is written to the audit log so
// spec §8 property 9 is independently checkable from the log alone.
func (o *Orchestrator) evaluateGate(ctx context.Context, state *State, p fixengine.Pattern, f finding.Finding) (bool, string) {
	autoApprove := o.Cfg != nil && o.Cfg.AutoApproveSafe
	verdict, err := o.Gate.Evaluate(ctx, approval.Input{
		Risk:            p.Risk,
		AutoApproveSafe: autoApprove,
		RuleID:          f.RuleID,
		File:            f.File,
	})
	if err != nil {
		return false, err.Error()
	}

	switch verdict.Verdict {
	case approval.VerdictApproved:
		o.logAudit(state, "approval", "approved", map[string]any{"pattern": p.ID, "risk": string(p.Risk), "source": "policy"})
		return true, "policy approved"
	case approval.VerdictBlocked:
		o.logAudit(state, "approval", "blocked", map[string]any{"pattern": p.ID, "risk": string(p.Risk)})
		return false, "policy blocked: " + joinReasons(verdict.Reasons)
	default:
		if o.Interaction == nil {
			return false, "no interaction port configured for a Pending verdict"
		}
		summary := fmt.Sprintf("approve fix %s (risk=%s) for %s in %s?", p.ID, p.Risk, f.RuleID, f.File)
		approved, confirmErr := o.Interaction.Confirm(ctx, summary)
		if confirmErr != nil {
			return false, confirmErr.Error()
		}
		if approved {
			o.logAudit(state, "approval", "approved", map[string]any{"pattern": p.ID, "risk": string(p.Risk), "source": "human"})
			return true, "human approved"
		}
		o.logAudit(state, "approval", "denied", map[string]any{"pattern": p.ID, "risk": string(p.Risk), "source": "human"})
		return false, "human denied"
	}
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}

// rollback restores every file an Applied FixAttempt touched this run,
// in reverse application order, used by cancellation (spec §8
// property 8). A FixAttempt with no in-process Snapshot (the rare case
// where the snapshot write itself failed) is skipped with an audit
// entry rather than aborting the unwind of the remaining attempts.
func (o *Orchestrator) rollback(state *State) {
	for i := len(state.FixAttempts) - 1; i >= 0; i-- {
		a := &state.FixAttempts[i]
		if a.Status != fixengine.StatusApplied {
			continue
		}
		if a.Snapshot == nil {
			o.logAudit(state, "rollback", "error", map[string]any{"file": a.File, "error": "no snapshot recorded for this attempt"})
			continue
		}
		if err := a.Snapshot.Restore(); err != nil {
			o.logAudit(state, "rollback", "error", map[string]any{"file": a.File, "error": err.Error()})
			continue
		}
		a.Status = fixengine.StatusRolledBack
		o.logAudit(state, "rollback", "ok", map[string]any{"file": a.File, "pattern": a.PatternID})
	}
}

// runVerify re-scans the target and compares against the before set
// (spec §4.9). Verify→Learn if effectiveness > 0, Verify→Report
// otherwise.
func (o *Orchestrator) runVerify(ctx context.Context, state *State) error {
	afterState := &State{TargetPath: state.TargetPath, WorkflowID: state.WorkflowID, Phase: PhaseScan}
	if err := o.runScan(ctx, afterState); err != nil {
		return err
	}
	state.ScanResultsAfter = afterState.ScanResultsBefore

	report := verify.Compare(state.BeforeFindings(), state.AfterFindings(), state.FixAttempts)
	state.Effectiveness = &report.Effectiveness
	o.logAudit(state, "verify", "ok", map[string]any{
		"effectiveness": report.Effectiveness,
		"fixed":         len(report.Fixed),
		"regressions":   len(report.Regressions),
	})

	if report.Effectiveness > 0 {
		state.Phase = PhaseLearn
	} else {
		state.Phase = PhaseReport
	}
	return nil
}

// runLearn records a pattern-store success for every Applied,
// effective FixAttempt whose pattern did not coincide with a
// regression in the same file (spec §4.9/§8 property 10), and a
// failure for every Failed attempt. Skipped attempts (not approved,
// Conflict, NoOp) were never applied and record nothing.
func (o *Orchestrator) runLearn(ctx context.Context, state *State) error {
	report := verify.Compare(state.BeforeFindings(), state.AfterFindings(), state.FixAttempts)
	regressed := verify.RegressedPatterns(report, state.FixAttempts)
	afterSet := finding.FingerprintSet(state.AfterFindings())
	beforeByFP := finding.FingerprintSet(state.BeforeFindings())

	for i := range state.FixAttempts {
		a := &state.FixAttempts[i]
		f, known := beforeByFP[a.FindingFingerprint]
		if !known {
			continue
		}
		artifact := string(fixengine.DetectArtifactKind(a.File))

		if !a.Succeeded {
			if a.Status != fixengine.StatusFailed {
				continue
			}
			_ = o.Patterns.RecordFailure(a.FindingFingerprint, a.PatternID, f.RuleID, artifact, a.FailureCode)
			continue
		}
		if regressed[a.PatternID] {
			_ = o.Patterns.RecordFailure(a.FindingFingerprint, a.PatternID, f.RuleID, artifact, "regression in same file")
			continue
		}
		if _, stillPresent := afterSet[a.FindingFingerprint]; stillPresent {
			continue // verified=false: the finding survived, not yet a learned success
		}
		a.Verified = true
		if err := o.Patterns.RecordSuccess(a.FindingFingerprint, a.PatternID, f.RuleID, artifact, a.Provenance); err != nil {
			o.logAudit(state, "learn", "error", map[string]any{"pattern": a.PatternID, "error": err.Error()})
		}
	}

	o.logAudit(state, "learn", "ok", nil)
	state.Phase = PhaseReport
	return nil
}

// runReport persists the fix report artifact (spec §6); the final
// workflow_finished audit line is written by Run. It never changes
// state.Phase itself — Run sets Done immediately after.
func (o *Orchestrator) runReport(ctx context.Context, state *State) error {
	if o.Fixes == nil {
		return nil
	}
	effectiveness := 0.0
	if state.Effectiveness != nil {
		effectiveness = *state.Effectiveness
	}
	_, err := o.Fixes.Write(store.FixReport{
		WorkflowID:    state.WorkflowID,
		Attempts:      state.FixAttempts,
		Effectiveness: effectiveness,
	})
	return err
}
