// Package ids generates the stable identifiers used across workflows,
// scans, and fix attempts.
package ids

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewWorkflowID returns a fresh workflow identifier.
func NewWorkflowID() string {
	return "wf_" + uuid.New().String()
}

// NewScanID returns a fresh scan identifier.
func NewScanID() string {
	return "scan_" + uuid.New().String()
}

// NewFixID returns a fresh fix-attempt identifier.
func NewFixID() string {
	return "fix_" + uuid.New().String()
}

// ScanResultName formats the on-disk name for a scan result artifact,
// per the wire format in §6: {scanner}_{yyyymmdd}_{hhmmss}_{millis}.json
func ScanResultName(scanner string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%03d.json", scanner, at.Format("20060102_150405"), at.Nanosecond()/1_000_000)
}

// ScanAliasName formats the "latest" alias name for a scanner.
func ScanAliasName(scanner string) string {
	return fmt.Sprintf("%s_latest.json", scanner)
}

// FixReportName formats the fix report artifact name for a workflow.
func FixReportName(workflowID string) string {
	return fmt.Sprintf("fix_%s.json", workflowID)
}
