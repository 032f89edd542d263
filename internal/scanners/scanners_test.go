package scanners

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remediation-kit/remediation-kit/internal/registry"
)

func TestDecodeBanditReport(t *testing.T) {
	stdout := []byte(`{"results": [
		{"test_id": "B105", "filename": "app.py", "line_number": 12, "code": "PASSWORD = \"x\"", "issue_text": "hardcoded password", "issue_severity": "LOW", "issue_confidence": "MEDIUM"}
	]}`)
	records, err := decodeBanditReport(stdout)
	require.NoError(t, err)
	require.Len(t, records, 1)

	f, err := normalizeBanditFinding(records[0])
	require.NoError(t, err)
	assert.Equal(t, "B105", f.RuleID)
	assert.Equal(t, "app.py", f.File)
	assert.Equal(t, 12, f.Line)
	assert.NotEmpty(t, f.Fingerprint)
	assert.True(t, f.FixAvailable)
}

func TestNormalizeBanditFindingMissingTestID(t *testing.T) {
	_, err := normalizeBanditFinding(map[string]any{"filename": "app.py"})
	require.Error(t, err)
}

func TestDecodeCheckovReport(t *testing.T) {
	stdout := []byte(`{"results": {"failed_checks": [
		{"check_id": "CKV_AWS_19", "file_path": "/main.tf", "file_line_range": [10, 14], "check_name": "S3 encryption", "severity": "MEDIUM"}
	]}}`)
	records, err := decodeCheckovReport(stdout)
	require.NoError(t, err)
	require.Len(t, records, 1)

	f, err := normalizeCheckovFinding(records[0])
	require.NoError(t, err)
	assert.Equal(t, "CKV_AWS_19", f.RuleID)
	assert.Equal(t, 10, f.Line)
	assert.Contains(t, f.ComplianceTags, "cis-aws")
}

func TestDecodeCheckovReportMultiFramework(t *testing.T) {
	stdout := []byte(`[
		{"results": {"failed_checks": [{"check_id": "CKV_AWS_19", "file_path": "/main.tf", "file_line_range": [10, 14], "check_name": "S3 encryption", "severity": "MEDIUM"}]}},
		{"results": {"failed_checks": [{"check_id": "CKV_K8S_16", "file_path": "/deploy.yaml", "file_line_range": [5, 5], "check_name": "disable privileged", "severity": "HIGH"}]}}
	]`)
	records, err := decodeCheckovReport(stdout)
	require.NoError(t, err)
	require.Len(t, records, 2)

	f, err := normalizeCheckovFinding(records[1])
	require.NoError(t, err)
	assert.Equal(t, "CKV_K8S_16", f.RuleID)
	assert.Equal(t, "/deploy.yaml", f.File)
}

func TestDecodeKubeBenchReportSkipsPass(t *testing.T) {
	stdout := []byte(`{"Controls": [{"tests": [{"results": [
		{"test_number": "1.1.1", "test_desc": "ensure x", "status": "PASS"},
		{"test_number": "1.1.2", "test_desc": "ensure y", "status": "FAIL", "remediation": "do y"}
	]}]}]}`)
	records, err := decodeKubeBenchReport(stdout)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1.1.2", records[0]["test_number"])
}

func TestRegisterAllRegistersThreeScanners(t *testing.T) {
	r := registry.New("scanners-test")
	require.NoError(t, RegisterAll(r))
	assert.Len(t, r.ByCategory(registry.CategoryScanner), 3)
}
