// Package main implements the remediate CLI: a thin front-end over the
// workflow orchestrator, specified (per spec §6) only for its exit-code
// contract — command wiring otherwise follows the teacher's cmd/cmd.go
// cobra root-command shape (rootCmd + PersistentPreRun for log level,
// subcommands with RunE).
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/remediation-kit/remediation-kit/internal/approval"
	"github.com/remediation-kit/remediation-kit/internal/audit"
	"github.com/remediation-kit/remediation-kit/internal/config"
	"github.com/remediation-kit/remediation-kit/internal/decision"
	"github.com/remediation-kit/remediation-kit/internal/fixengine"
	"github.com/remediation-kit/remediation-kit/internal/fixengine/builtin"
	"github.com/remediation-kit/remediation-kit/internal/fixengine/hclfix"
	"github.com/remediation-kit/remediation-kit/internal/fixengine/jsonfix"
	"github.com/remediation-kit/remediation-kit/internal/fixengine/pyfix"
	"github.com/remediation-kit/remediation-kit/internal/fixengine/textfix"
	"github.com/remediation-kit/remediation-kit/internal/fixengine/yamlfix"
	"github.com/remediation-kit/remediation-kit/internal/logging"
	orchretry "github.com/remediation-kit/remediation-kit/internal/orchestrator"
	"github.com/remediation-kit/remediation-kit/internal/patternstore"
	"github.com/remediation-kit/remediation-kit/internal/registry"
	"github.com/remediation-kit/remediation-kit/internal/richerr"
	"github.com/remediation-kit/remediation-kit/internal/scanners"
	"github.com/remediation-kit/remediation-kit/internal/store"
	"github.com/remediation-kit/remediation-kit/internal/workflow"
)

var verbose bool
var decisionEndpoint string
var dryRun bool
var policyFile string

var rootCmd = &cobra.Command{
	Use:   "remediate",
	Short: "Scan a repository for vulnerabilities and apply remediation patterns",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logging.SetLevel(zerolog.DebugLevel)
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run <target-path>",
	Short: "Run one Scan→Analyze→Decide→Fix→Verify→Learn→Report workflow against target-path",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflow,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	config.BindFlags(rootCmd.PersistentFlags())

	runCmd.Flags().StringVar(&decisionEndpoint, "decision-endpoint", "", "external decision-bridge HTTP endpoint (falls back to the deterministic rule when unset or unreachable)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "stop after Decide and report the would-be fix plan without applying any fix")
	runCmd.Flags().StringVar(&policyFile, "policy-file", "", "path to a Rego module overriding the built-in approval policy")
	rootCmd.AddCommand(runCmd)
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	targetPath := args[0]
	ctx := cmd.Context()

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("remediate: load config: %w", err)
	}
	cfg.DryRun = dryRun
	cfg.CancelToken = config.NewCancelToken()
	go func() {
		<-ctx.Done()
		cfg.CancelToken.Cancel()
	}()

	orch, err := assembleOrchestrator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("remediate: assemble orchestrator: %w", err)
	}

	state, err := orch.Run(ctx, "remediate run", targetPath)
	if err != nil {
		return fmt.Errorf("remediate: workflow run: %w", err)
	}

	exitCode := classifyExit(state, cfg.EffectivenessGate)
	fmt.Fprintf(cmd.OutOrStdout(), "workflow %s finished in phase %s (effectiveness=%.2f)\n", state.WorkflowID, state.Phase, effectivenessOf(state))
	os.Exit(exitCode)
	return nil
}

// classifyExit implements spec §6's CLI exit-code contract: 0 if Done
// with effectiveness >= target, 1 if Done with lower effectiveness, 2
// on Aborted, 3 if any recorded error was the fatal RestoreFailed kind.
func classifyExit(state *workflow.State, target float64) int {
	for _, e := range state.Errors {
		if strings.Contains(e, string(richerr.CodeRestoreFailed)) {
			return 3
		}
	}
	if state.Phase == workflow.PhaseAborted {
		return 2
	}
	if effectivenessOf(state) >= target {
		return 0
	}
	return 1
}

func effectivenessOf(state *workflow.State) float64 {
	if state.Effectiveness == nil {
		return 0
	}
	return *state.Effectiveness
}

// assembleOrchestrator wires every collaborator from spec §5's shared-
// resource list into one Orchestrator, mirroring the teacher's
// createAndConfigureServer staged-construction idiom.
func assembleOrchestrator(ctx context.Context, cfg *config.Config) (*workflow.Orchestrator, error) {
	reg := registry.New("remediate")
	if err := scanners.RegisterAll(reg); err != nil {
		return nil, err
	}

	engine := fixengine.New()
	engine.RegisterEditor(fixengine.ArtifactPython, pyfix.New())
	engine.RegisterEditor(fixengine.ArtifactHCL, hclfix.New())
	engine.RegisterEditor(fixengine.ArtifactYAML, yamlfix.New())
	engine.RegisterEditor(fixengine.ArtifactJSON, jsonfix.New())
	engine.RegisterEditor(fixengine.ArtifactText, textfix.New())
	builtin.RegisterAll(engine)

	gate, err := newGate(ctx)
	if err != nil {
		return nil, err
	}

	patterns, err := patternstore.Open(filepath.Join(cfg.PatternStorePath, "patterns.log"))
	if err != nil {
		return nil, err
	}
	engine.Patterns = patterns

	var bridge decision.Bridge
	if decisionEndpoint != "" {
		bridge = decision.NewExternalBridge(decisionEndpoint, cfg.DecisionTimeout, patterns)
	} else {
		bridge = decision.NewFallbackBridge(patterns)
	}

	auditLogger, err := audit.Open(auditLogPath(cfg))
	if err != nil {
		return nil, err
	}

	scanStore, err := store.NewScanStore(cfg.ScansPath)
	if err != nil {
		return nil, err
	}
	fixStore, err := store.NewFixStore(cfg.FixesPath)
	if err != nil {
		return nil, err
	}

	var interaction approval.InteractionPort
	if dryRun {
		interaction = approval.AutoDenyPort{}
	} else {
		interaction = approval.CLIPort{In: os.Stdin, Out: os.Stdout}
	}

	return &workflow.Orchestrator{
		Registry:    reg,
		Engine:      engine,
		Gate:        gate,
		Bridge:      bridge,
		Patterns:    patterns,
		Audit:       auditLogger,
		Scans:       scanStore,
		Fixes:       fixStore,
		Retry:       orchretry.NewCoordinator(),
		Interaction: interaction,
		Cfg:         cfg,
	}, nil
}

func newGate(ctx context.Context) (*approval.Gate, error) {
	if policyFile == "" {
		return approval.NewGate(ctx)
	}
	module, err := os.ReadFile(policyFile)
	if err != nil {
		return nil, fmt.Errorf("remediate: read policy file: %w", err)
	}
	return approval.NewGateFromModule(ctx, policyFile, string(module))
}

func auditLogPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.ScansPath), "audit.log")
}
