// Package local implements a filesystem state backend. Writes go through
// a temp file and rename so readers never observe a partial state file.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stackwave/stackctl/pkg/state/backend"
)

// staleLockAge is how old an on-disk lock file must be before a new
// acquisition may steal it. Covers processes that died without unlocking.
const staleLockAge = time.Hour

func init() {
	backend.Register("local", NewBackend)
}

// Backend stores state files under a base directory.
type Backend struct {
	basePath string
	mu       sync.Mutex
	held     map[string]*fileLock
}

// NewBackend creates a local backend rooted at config["path"], defaulting
// to ~/.stackctl/state.
func NewBackend(config map[string]string) (backend.Backend, error) {
	base := config["path"]
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		base = filepath.Join(home, ".stackctl", "state")
	}

	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	return &Backend{
		basePath: base,
		held:     make(map[string]*fileLock),
	}, nil
}

func (b *Backend) Type() string {
	return "local"
}

func (b *Backend) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(b.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return f, nil
}

func (b *Backend) Write(ctx context.Context, path string, data io.Reader) error {
	target := b.abs(path)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".stackctl-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, err = io.Copy(tmp, data)
	if closeErr := tmp.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	if err := os.Remove(b.abs(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	root := b.abs(prefix)

	var paths []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			rel, _ := filepath.Rel(b.basePath, p)
			paths = append(paths, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return paths, nil
}

func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	if _, err := os.Stat(b.abs(path)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return true, nil
}

func (b *Backend) Lock(ctx context.Context, path string, info backend.LockInfo) (backend.Lock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lockPath := path + ".lock"
	if existing, ok := b.held[lockPath]; ok {
		return nil, &backend.LockError{Info: existing.info, Err: backend.ErrLocked}
	}

	lockFile := b.abs(lockPath)
	if data, err := os.ReadFile(lockFile); err == nil {
		var holder backend.LockInfo
		if err := json.Unmarshal(data, &holder); err == nil && time.Since(holder.Created) < staleLockAge {
			return nil, &backend.LockError{Info: holder, Err: backend.ErrLocked}
		}
	}

	info.ID = uuid.New().String()
	info.Path = path
	info.Created = time.Now()

	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lock info: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := os.WriteFile(lockFile, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	l := &fileLock{backend: b, key: lockPath, file: lockFile, info: info}
	b.held[lockPath] = l
	return l, nil
}

func (b *Backend) abs(path string) string {
	return filepath.Join(b.basePath, filepath.FromSlash(path))
}

type fileLock struct {
	backend *Backend
	key     string
	file    string
	info    backend.LockInfo
}

func (l *fileLock) ID() string {
	return l.info.ID
}

func (l *fileLock) Info() backend.LockInfo {
	return l.info
}

func (l *fileLock) Unlock(ctx context.Context) error {
	l.backend.mu.Lock()
	defer l.backend.mu.Unlock()

	delete(l.backend.held, l.key)
	if err := os.Remove(l.file); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}
