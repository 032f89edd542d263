// Package fsguard provides the atomic, rollback-capable file mutation
// primitive every fixer edit goes through (spec §4.3). The backup/
// restore shape mirrors the retrieval pack's atomic-apply algorithm
// (plan a backup before mutating, roll every change back on any
// failure) adapted from Kubernetes resources to plain files: a Lease
// snapshots a file's bytes and mode before a fixer touches it, and
// Restore replays that snapshot if the downstream syntax or validator
// check rejects the result.
package fsguard

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/remediation-kit/remediation-kit/internal/richerr"
)

// Lease holds the pre-edit snapshot of a single file. WithFileLease
// pairs it with the path's entry in the package-level locks map so two
// fixers never interleave writes to the same path within one process.
type Lease struct {
	Path    string
	existed bool
	backup  []byte
	mode    os.FileMode
}

// locks guards concurrent fixer goroutines from touching the same
// path at once; keyed by absolute path.
var locks sync.Map // map[string]*sync.Mutex

func pathLock(path string) *sync.Mutex {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	l, _ := locks.LoadOrStore(abs, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// WithFileLease acquires the path-keyed lock, snapshots the file, runs
// fn with a handle to write the new content, and restores the
// snapshot if fn returns an error or the post-write check it performs
// fails. Backup bytes live only in memory for the duration of the
// lease; the caller's fsguard.Snapshot persists a durable on-disk copy
// separately for workflow-level (not just per-file) rollback.
func WithFileLease(path string, fn func(lease *Lease, write func(content []byte) error) error) error {
	mu := pathLock(path)
	mu.Lock()
	defer mu.Unlock()

	lease, err := newLease(path)
	if err != nil {
		return err
	}

	write := func(content []byte) error {
		tmp, err := os.CreateTemp(filepath.Dir(path), ".fsguard-*")
		if err != nil {
			return err
		}
		defer os.Remove(tmp.Name())
		_, err = tmp.Write(content)
		if closeErr := tmp.Close(); err == nil {
			err = closeErr
		}
		if err == nil {
			err = os.Chmod(tmp.Name(), lease.mode.Perm())
		}
		if err != nil {
			return err
		}
		return os.Rename(tmp.Name(), path)
	}

	if err := fn(lease, write); err != nil {
		if restoreErr := lease.restore(); restoreErr != nil {
			return richerr.RestoreFailedErr("fsguard", path, lease.BackupRef(), restoreErr)
		}
		return err
	}
	return nil
}

func newLease(path string) (*Lease, error) {
	lease := &Lease{Path: path, mode: 0o644}
	info, err := os.Stat(path)
	switch {
	case err == nil:
		lease.existed = true
		lease.mode = info.Mode()
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("fsguard: snapshot %s: %w", path, readErr)
		}
		lease.backup = content
	case os.IsNotExist(err):
		lease.existed = false
	default:
		return nil, fmt.Errorf("fsguard: stat %s: %w", path, err)
	}
	return lease, nil
}

// restore reverts the file to its pre-lease state: rewritten if it
// existed, removed if the lease created it. Hash verification after
// the restore write is mandatory (spec §4.3): a restore that lands
// bytes not matching the original snapshot hash is treated the same
// as a failed restore rather than silently accepted.
func (l *Lease) restore() error {
	if !l.existed {
		if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	if err := os.WriteFile(l.Path, l.backup, l.mode); err != nil {
		return err
	}
	got, err := os.ReadFile(l.Path)
	if err != nil {
		return fmt.Errorf("fsguard: verify restore of %s: %w", l.Path, err)
	}
	if !bytes.Equal(got, l.backup) || sha256.Sum256(got) != sha256.Sum256(l.backup) {
		return fmt.Errorf("fsguard: restore of %s did not reach original content hash", l.Path)
	}
	return nil
}

// BackupRef identifies the in-memory snapshot for audit logging. It is
// a label only: the durable on-disk copy written by Snapshot lives
// under the configured backups path, named by the content's SHA-256.
func (l *Lease) BackupRef() string {
	return l.Path + ".bak"
}

// Existed reports whether the file was present before the lease began.
func (l *Lease) Existed() bool { return l.existed }

// Original returns the pre-edit file content, or nil if the file did
// not previously exist.
func (l *Lease) Original() []byte { return l.backup }
