package fsguard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remediation-kit/remediation-kit/internal/richerr"
)

// TestWithFileLeaseRestoresBitExactOnFailure matches spec §8 property
// 3: when fn fails, the file's content and permission bits must equal
// their pre-call values exactly.
func TestWithFileLeaseRestoresBitExactOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.py")
	original := []byte(`password = "hunter2"`)
	require.NoError(t, os.WriteFile(path, original, 0o640))

	err := WithFileLease(path, func(lease *Lease, write func([]byte) error) error {
		require.NoError(t, write([]byte(`password = "changed"`)))
		return errors.New("downstream validator rejected the fix")
	})
	require.Error(t, err)

	got, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, original, got)

	info, statErr := os.Stat(path)
	require.NoError(t, statErr)
	assert.Equal(t, os.FileMode(0o640), info.Mode())
}

// TestWithFileLeaseCommitsOnSuccess verifies fn's write is kept when
// fn returns nil.
func TestWithFileLeaseCommitsOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(path, []byte(`password = "hunter2"`), 0o644))

	err := WithFileLease(path, func(lease *Lease, write func([]byte) error) error {
		return write([]byte(`password = os.environ["PASSWORD"]`))
	})
	require.NoError(t, err)

	got, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, `password = os.environ["PASSWORD"]`, string(got))
}

// TestWithFileLeaseRemovesFileThatDidNotExist verifies a lease around
// a file fn creates is rolled back by removal, not left behind.
func TestWithFileLeaseRemovesFileThatDidNotExist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "new.py")

	err := WithFileLease(path, func(lease *Lease, write func([]byte) error) error {
		require.NoError(t, write([]byte("x = 1")))
		return errors.New("fail after create")
	})
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

// TestWithFileLeaseUnrecoverableRestoreSurfacesRestoreFailed matches
// spec S5: when the backup can no longer reach the original bytes
// (here simulated by the restore target becoming a directory), the
// lease must surface a fatal RestoreFailed error rather than silently
// accepting a corrupted restore.
func TestWithFileLeaseUnrecoverableRestoreSurfacesRestoreFailed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.py")
	require.NoError(t, os.WriteFile(path, []byte(`password = "hunter2"`), 0o644))

	err := WithFileLease(path, func(lease *Lease, write func([]byte) error) error {
		require.NoError(t, write([]byte(`password = "changed"`)))
		// Simulate an external fault that prevents the restore from
		// reaching original bytes: replace the file with a directory
		// so the subsequent restore write fails.
		require.NoError(t, os.Remove(path))
		require.NoError(t, os.Mkdir(path, 0o755))
		return errors.New("downstream validator rejected the fix")
	})
	require.Error(t, err)
	assert.True(t, richerr.Is(err, richerr.CodeRestoreFailed))
}
