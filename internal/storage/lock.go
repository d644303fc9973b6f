package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// writeLock serializes fragment-append and consolidation across
// concurrent writers (possibly in different processes), the same role
// the teacher's embed.FileLock plays around its embedding cache writes.
type writeLock struct {
	path string
	fl   *flock.Flock
}

// newWriteLock returns an unlocked handle on the lock file .tdbvs.lock
// inside dir (creating dir if necessary); the file itself is created on
// the first lock attempt.
func newWriteLock(dir string) (*writeLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	path := filepath.Join(dir, ".tdbvs.lock")
	return &writeLock{path: path, fl: flock.New(path)}, nil
}

// Lock blocks until the exclusive lock is acquired.
func (l *writeLock) Lock() error {
	return l.fl.Lock()
}

// TryLock attempts to acquire the lock without blocking.
func (l *writeLock) TryLock() (bool, error) {
	return l.fl.TryLock()
}

// Unlock releases the lock.
func (l *writeLock) Unlock() error {
	return l.fl.Unlock()
}

// Path returns the lock file's path.
func (l *writeLock) Path() string {
	return l.path
}

// IsLocked reports whether this handle currently holds the lock.
func (l *writeLock) IsLocked() bool {
	return l.fl.Locked()
}
