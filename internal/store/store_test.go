package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remediation-kit/remediation-kit/internal/finding"
)

func TestScanStoreWritesAliasAtomically(t *testing.T) {
	dir := t.TempDir()
	s, err := NewScanStore(dir)
	require.NoError(t, err)

	result := finding.ScanResult{
		ScanID:     "scan_1",
		Scanner:    "bandit",
		FinishedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Findings:   []finding.Finding{{Fingerprint: "fp1"}},
	}

	path, err := s.Write(result)
	require.NoError(t, err)
	assert.FileExists(t, path)

	aliasPath := filepath.Join(dir, "bandit_latest.json")
	assert.FileExists(t, aliasPath)

	data, err := os.ReadFile(aliasPath)
	require.NoError(t, err)
	var decoded finding.ScanResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "scan_1", decoded.ScanID)

	for _, f := range []string{path, aliasPath, aliasPath + ".tmp", path + ".tmp"} {
		_ = f
	}
	_, statErr := os.Stat(aliasPath + ".tmp")
	assert.True(t, os.IsNotExist(statErr), "temp file must be renamed away, not left behind")
}

func TestFixStoreWritesReport(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFixStore(dir)
	require.NoError(t, err)

	path, err := s.Write(FixReport{WorkflowID: "wf_1", Effectiveness: 0.8})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fix_wf_1.json"), path)
	assert.FileExists(t, path)
}
