package cmd

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

// lockTimeout bounds how long a run waits for a stale lock held by a
// previous invocation against the same array before giving up.
const lockTimeout = 5 * time.Second

const lockRetryInterval = 10 * time.Millisecond

// Sentinel errors for run-lock acquisition, adapted from the teacher's
// ticket-file locking (lock.go) to guard one array instead of one
// ticket file.
var (
	ErrLockTimeout = errors.New("cmd: another sync is already running against this array")
	ErrLockOpen    = errors.New("cmd: failed to open run-lock file")
)

// runLock is an exclusive, advisory lock held for the lifetime of one
// sync invocation, preventing two runs from racing over the same state
// file and parity files.
type runLock struct {
	file *os.File
}

// acquireRunLock takes an exclusive flock on path+".lock", retrying
// until timeout elapses. The lock file itself is never interpreted;
// it exists only as a flock target, same as the teacher's ticket lock.
func acquireRunLock(path string, timeout time.Duration) (*runLock, error) {
	lockPath := path + ".lock"

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // operator-controlled path
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockOpen, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		if flockErr := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); flockErr == nil {
			return &runLock{file: file}, nil
		}

		if time.Now().After(deadline) {
			_ = file.Close()
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, path)
		}
		time.Sleep(lockRetryInterval)
	}
}

// release drops the flock and closes the lock file. Errors are
// intentionally swallowed: by the time release runs, the caller has
// nothing left to act on beyond "best effort cleanup".
func (l *runLock) release() {
	if l == nil || l.file == nil {
		return
	}
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	_ = l.file.Close()
}
