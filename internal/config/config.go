// Package config binds the environment-configured knobs from spec §6
// (scan_timeout_seconds, fixer_timeout_seconds, auto_approve_safe,
// worker_pool_size, the filesystem roots, decision_timeout_seconds)
// through viper, flags taking precedence over environment which takes
// precedence over defaults. cancel_token is not a viper key: it is the
// in-process CancelToken below, attached to Config by the caller.
package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds every knob named in spec §6.
type Config struct {
	ScanTimeout       time.Duration
	FixerTimeout      time.Duration
	DecisionTimeout   time.Duration
	AutoApproveSafe   bool
	WorkerPoolSize    int
	PatternStorePath  string
	ScansPath         string
	FixesPath         string
	BackupsPath       string
	EffectivenessGate float64 // §6 CLI exit-code target, default 0.5

	// DryRun, when set, stops the workflow graph after Decide: the
	// would-be fix plan is recorded and reported, but Fix never runs
	// and no file lease is ever acquired.
	DryRun bool

	// CancelToken is polled by the orchestrator at every node boundary;
	// nil means the run is never cooperatively cancellable. Load leaves
	// it nil; the CLI attaches one wired to SIGINT/SIGTERM.
	CancelToken *CancelToken
}

// BindFlags registers the CLI flags that mirror each knob, so cobra
// commands can expose them without duplicating definitions.
func BindFlags(fs *pflag.FlagSet) {
	fs.Int("scan-timeout-seconds", 600, "per-scanner deadline")
	fs.Int("fixer-timeout-seconds", 30, "per-pattern deadline")
	fs.Int("decision-timeout-seconds", 60, "decision bridge deadline")
	fs.Bool("auto-approve-safe", false, "elevate Medium-risk fixers into the Approved bucket")
	fs.Int("worker-pool-size", runtime.NumCPU(), "scanner parallelism")
	fs.String("pattern-store-path", "./.remediation/patterns", "pattern store log directory")
	fs.String("scans-path", "./.remediation/scans", "scan result directory")
	fs.String("fixes-path", "./.remediation/fixes", "fix report directory")
	fs.String("backups-path", "./.remediation/backups", "backup snapshot directory")
	fs.Float64("effectiveness-target", 0.5, "minimum effectiveness for exit code 0")
}

// Load builds a Config from bound flags, environment variables
// (REMEDIATION_KIT_*), and defaults, in that order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("remediation_kit")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, err
		}
	}

	v.SetDefault("scan-timeout-seconds", 600)
	v.SetDefault("fixer-timeout-seconds", 30)
	v.SetDefault("decision-timeout-seconds", 60)
	v.SetDefault("auto-approve-safe", false)
	v.SetDefault("worker-pool-size", runtime.NumCPU())
	v.SetDefault("pattern-store-path", "./.remediation/patterns")
	v.SetDefault("scans-path", "./.remediation/scans")
	v.SetDefault("fixes-path", "./.remediation/fixes")
	v.SetDefault("backups-path", "./.remediation/backups")
	v.SetDefault("effectiveness-target", 0.5)

	cfg := &Config{
		ScanTimeout:       time.Duration(v.GetInt("scan-timeout-seconds")) * time.Second,
		FixerTimeout:      time.Duration(v.GetInt("fixer-timeout-seconds")) * time.Second,
		DecisionTimeout:   time.Duration(v.GetInt("decision-timeout-seconds")) * time.Second,
		AutoApproveSafe:   v.GetBool("auto-approve-safe"),
		WorkerPoolSize:    v.GetInt("worker-pool-size"),
		PatternStorePath:  v.GetString("pattern-store-path"),
		ScansPath:         v.GetString("scans-path"),
		FixesPath:         v.GetString("fixes-path"),
		BackupsPath:       v.GetString("backups-path"),
		EffectivenessGate: v.GetFloat64("effectiveness-target"),
	}
	if cfg.WorkerPoolSize < 1 {
		cfg.WorkerPoolSize = 1
	}
	return cfg, nil
}

// CancelToken is the cooperative cancellation signal from §6; callers
// poll Cancelled() at node boundaries.
type CancelToken struct {
	ch chan struct{}
}

// NewCancelToken creates a fresh, unfired token.
func NewCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

// Cancel fires the token. Safe to call multiple times.
func (c *CancelToken) Cancel() {
	select {
	case <-c.ch:
	default:
		close(c.ch)
	}
}

// Cancelled reports whether the token has fired.
func (c *CancelToken) Cancelled() bool {
	select {
	case <-c.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the token fires, for select loops.
func (c *CancelToken) Done() <-chan struct{} {
	return c.ch
}
