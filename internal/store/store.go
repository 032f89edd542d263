// Package store writes the on-disk artifacts named in spec §6's wire
// format table: scan results (plus their "_latest" alias, replaced
// atomically) and fix reports. Both go through the same write-to-temp,
// rename-over pattern fsguard's Lease uses for file edits, so a reader
// never observes a partially written JSON document.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/remediation-kit/remediation-kit/internal/finding"
	"github.com/remediation-kit/remediation-kit/internal/fixengine"
	"github.com/remediation-kit/remediation-kit/pkg/ids"
)

// ScanStore persists ScanResult artifacts under one directory.
type ScanStore struct {
	Root string
}

// NewScanStore returns a ScanStore rooted at dir, creating it if absent.
func NewScanStore(dir string) (*ScanStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	return &ScanStore{Root: dir}, nil
}

// Write persists result under {scanner}_{timestamp}.json and replaces
// the {scanner}_latest.json alias atomically.
func (s *ScanStore) Write(result finding.ScanResult) (string, error) {
	name := ids.ScanResultName(result.Scanner, result.FinishedAt)
	path := filepath.Join(s.Root, name)
	if err := writeAtomic(path, result); err != nil {
		return "", err
	}

	alias := filepath.Join(s.Root, ids.ScanAliasName(result.Scanner))
	if err := writeAtomic(alias, result); err != nil {
		return path, fmt.Errorf("store: update alias for %s: %w", result.Scanner, err)
	}
	return path, nil
}

// FixStore persists fix reports under one directory.
type FixStore struct {
	Root string
}

// NewFixStore returns a FixStore rooted at dir, creating it if absent.
func NewFixStore(dir string) (*FixStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	return &FixStore{Root: dir}, nil
}

// FixReport is the {attempts[], effectiveness} document spec §6 names.
type FixReport struct {
	WorkflowID    string                  `json:"workflow_id"`
	Attempts      []fixengine.FixAttempt  `json:"attempts"`
	Effectiveness float64                 `json:"effectiveness"`
}

// Write persists report under fix_{workflow_id}.json.
func (s *FixStore) Write(report FixReport) (string, error) {
	path := filepath.Join(s.Root, ids.FixReportName(report.WorkflowID))
	if err := writeAtomic(path, report); err != nil {
		return "", err
	}
	return path, nil
}

// writeAtomic marshals v, writes it to a sibling temp file, and
// renames it into place so no reader ever observes a partial write —
// the same guarantee fsguard.WithFileLease gives fixer edits, applied
// here to workflow-level reporting artifacts.
func writeAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write temp for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: rename into place %s: %w", path, err)
	}
	return nil
}
