// Package backend defines the storage interface state backends implement
// and the registry they register themselves with.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a state path does not exist.
var ErrNotFound = errors.New("state not found")

// ErrLocked is returned when a lock is already held.
var ErrLocked = errors.New("state is locked")

// Backend is the storage interface the state store drives. Paths are
// forward-slash separated and relative to the backend's root.
type Backend interface {
	// Type returns the backend type name ("local", "s3", ...).
	Type() string

	// Read returns the contents at path, or ErrNotFound.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write stores data at path, replacing any existing contents.
	Write(ctx context.Context, path string, data io.Reader) error

	// Delete removes the object at path. Deleting a missing path is not
	// an error.
	Delete(ctx context.Context, path string) error

	// List returns all object paths under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether an object exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Lock acquires an advisory lock on path. Returns a LockError
	// wrapping ErrLocked if the lock is already held.
	Lock(ctx context.Context, path string, info LockInfo) (Lock, error)
}

// Lock is a held advisory lock.
type Lock interface {
	// ID returns the unique lock identifier.
	ID() string

	// Unlock releases the lock.
	Unlock(ctx context.Context) error

	// Info returns the lock metadata.
	Info() LockInfo
}

// LockInfo is the metadata recorded with a held lock.
type LockInfo struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Who       string    `json:"who"`
	Operation string    `json:"operation"`
	Created   time.Time `json:"created"`
}

// LockError reports a failed lock acquisition along with the holder.
type LockError struct {
	Info LockInfo
	Err  error
}

func (e *LockError) Error() string {
	return fmt.Sprintf("state locked by %s (operation: %s, since: %s)",
		e.Info.Who, e.Info.Operation, e.Info.Created.Format(time.RFC3339))
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// Config selects and configures a backend.
type Config struct {
	// Type is the registered backend type name.
	Type string `json:"type" yaml:"type"`

	// Config holds backend-specific settings ("path", "bucket", ...).
	Config map[string]string `json:"config" yaml:"config"`
}

// Factory constructs a backend from its configuration map.
type Factory func(config map[string]string) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend type available by name. Backends call this
// from init so importing the package is enough to enable it.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Create instantiates the backend named by config.Type.
func Create(config Config) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[config.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend type %q (available: %v)", config.Type, Types())
	}
	return factory(config.Config)
}

// Types returns the registered backend type names, sorted.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	types := make([]string, 0, len(registry))
	for name := range registry {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
