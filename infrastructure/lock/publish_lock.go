package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrUnavailable means another sweep currently holds the lock.
var ErrUnavailable = errors.New("publish lock is held by another process")

// Locker hands out the host-wide publish lock.
type Locker interface {
	TryAcquire() (Handle, error)
}

type Handle interface {
	Release() error
}

// FileLock is an advisory flock over a well-known file. Each TryAcquire opens its own
// descriptor, so a second acquire in the same process also observes contention.
type FileLock struct {
	path string
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (l *FileLock) Path() string {
	return l.path
}

// TryAcquire never blocks: contention returns ErrUnavailable.
func (l *FileLock) TryAcquire() (Handle, error) {
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	return &fileHandle{file: f}, nil
}

type fileHandle struct {
	once sync.Once
	file *os.File
	err  error
}

// Release is safe to call more than once. The lock file is left in place.
func (h *fileHandle) Release() error {
	h.once.Do(func() {
		if err := unix.Flock(int(h.file.Fd()), unix.LOCK_UN); err != nil {
			h.err = fmt.Errorf("release lock: %w", err)
		}
		if err := h.file.Close(); err != nil && h.err == nil {
			h.err = fmt.Errorf("close lock file: %w", err)
		}
	})
	return h.err
}
