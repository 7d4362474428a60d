package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

const lockSleepStep = 25 * time.Millisecond

// ErrLockTimeout means another process held the jar lock until the
// context expired.
var ErrLockTimeout = errors.New("timed out waiting for jar lock")

// FileStore keeps the jar in a plain text file. A sidecar "<path>.lock"
// file carries the flock, so the lock survives the rename done by Save.
type FileStore struct {
	path string
	lock *os.File
}

// OpenFile acquires a shared or exclusive lock for path, waiting until ctx
// is done. The lock is held until Close.
func OpenFile(ctx context.Context, path string, exclusive bool) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("jar path is empty")
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}

	lock, err := os.OpenFile(path+".lock", os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	lockType := unix.LOCK_SH
	if exclusive {
		lockType = unix.LOCK_EX
	}
	if err := lockFile(ctx, lock, lockType); err != nil {
		_ = lock.Close()
		return nil, err
	}
	return &FileStore{path: path, lock: lock}, nil
}

// Path returns the jar file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the whole jar file. A missing file is an empty jar.
func (s *FileStore) Load(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read jar: %w", err)
	}
	return string(data), nil
}

// Save writes text to a temp file in the same directory and renames it
// over the jar, so readers never see a partial file.
func (s *FileStore) Save(_ context.Context, text string) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".jar-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write jar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write jar: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace jar: %w", err)
	}
	return nil
}

// Close releases the lock. It is safe to call on a nil or closed store.
func (s *FileStore) Close() error {
	if s == nil || s.lock == nil {
		return nil
	}
	err := unix.Flock(int(s.lock.Fd()), unix.LOCK_UN)
	closeErr := s.lock.Close()
	s.lock = nil
	return errors.Join(err, closeErr)
}

func lockFile(ctx context.Context, file *os.File, lockType int) error {
	for {
		err := unix.Flock(int(file.Fd()), lockType|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			return fmt.Errorf("failed to lock jar: %w", err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		case <-time.After(lockSleepStep):
		}
	}
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o755)
}
