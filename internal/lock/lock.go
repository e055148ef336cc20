// Package lock provides per-key in-process mutexes and advisory file locks.
package lock

import (
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// ErrLocked is returned by TryLock when another holder owns the file lock.
var ErrLocked = errors.New("lock is held by another process")

// MutexMap hands out one mutex per key. Keys are created on first use.
type MutexMap struct {
	mu      sync.Mutex
	mutexes map[string]*sync.Mutex
}

func NewMutexMap() *MutexMap {
	return &MutexMap{
		mutexes: make(map[string]*sync.Mutex),
	}
}

func (m *MutexMap) Lock(key string) {
	m.get(key).Lock()
}

func (m *MutexMap) Unlock(key string) {
	m.get(key).Unlock()
}

// Reset drops every key. Callers must not hold any key lock.
func (m *MutexMap) Reset() {
	m.mu.Lock()
	m.mutexes = make(map[string]*sync.Mutex)
	m.mu.Unlock()
}

func (m *MutexMap) get(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	mu, ok := m.mutexes[key]
	if !ok {
		mu = &sync.Mutex{}
		m.mutexes[key] = mu
	}
	return mu
}

// FileLock is an flock(2) based exclusive lock on a sidecar file.
type FileLock struct {
	path string
	file *os.File
}

func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

func (fl *FileLock) Path() string { return fl.path }

// TryLock acquires the lock without blocking. It returns ErrLocked when the
// lock is held elsewhere.
func (fl *FileLock) TryLock() error {
	f, err := os.OpenFile(fl.path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return errors.Wrap(err, "open lock file")
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ErrLocked
		}
		return errors.Wrap(err, "acquire lock")
	}

	if err := writePID(f); err != nil {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		return err
	}

	fl.file = f
	return nil
}

// Lock retries TryLock until it succeeds or ctx is done.
func (fl *FileLock) Lock(ctx context.Context) error {
	const retryEvery = 20 * time.Millisecond
	for {
		err := fl.TryLock()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrLocked) {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "waiting for lock %s", fl.path)
		case <-time.After(retryEvery):
		}
	}
}

func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return nil
	}
	defer func() { fl.file = nil }()

	if err := syscall.Flock(int(fl.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = fl.file.Close()
		return errors.Wrap(err, "release lock")
	}
	if err := fl.file.Close(); err != nil {
		return errors.Wrap(err, "close lock file")
	}
	return nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return errors.Wrap(err, "truncate lock file")
	}
	if _, err := f.Seek(0, 0); err != nil {
		return errors.Wrap(err, "seek lock file")
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return errors.Wrap(err, "write pid to lock file")
	}
	return errors.Wrap(f.Sync(), "sync lock file")
}
