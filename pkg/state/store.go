// Package state provides persistent stack state storage on top of
// pluggable backends.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	stderrors "errors"

	"github.com/stackwave/stackctl/pkg/errors"
	"github.com/stackwave/stackctl/pkg/state/backend"
	"github.com/stackwave/stackctl/pkg/state/types"
)

// Store reads and writes stack records. A stack is stored as a single
// JSON document, so each get and put is atomic at the backend level. The
// store also owns the export namespace: a put that would publish an
// export key already owned by a different stack is rejected whole.
type Store struct {
	backend backend.Backend
}

// NewStore creates a store on top of an existing backend.
func NewStore(b backend.Backend) *Store {
	return &Store{backend: b}
}

// NewStoreFromConfig creates a store from backend configuration.
func NewStoreFromConfig(config backend.Config) (*Store, error) {
	b, err := backend.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}
	return NewStore(b), nil
}

// Backend returns the underlying backend.
func (s *Store) Backend() backend.Backend {
	return s.backend
}

// Get returns the stack record by name.
func (s *Store) Get(ctx context.Context, name string) (*types.Stack, error) {
	reader, err := s.backend.Read(ctx, stackPath(name))
	if err != nil {
		if stderrors.Is(err, backend.ErrNotFound) {
			return nil, errors.NotFoundError("stack", name)
		}
		return nil, errors.BackendError(s.backend.Type(), "read", err)
	}
	defer reader.Close()

	var stack types.Stack
	if err := json.NewDecoder(reader).Decode(&stack); err != nil {
		return nil, errors.BackendError(s.backend.Type(), "decode", err)
	}
	return &stack, nil
}

// Put persists the stack record. Export keys are checked against every
// other stack first; on collision nothing is written and the existing
// state is left untouched.
func (s *Store) Put(ctx context.Context, stack *types.Stack) error {
	if err := s.checkExports(ctx, stack); err != nil {
		return err
	}

	content, err := json.MarshalIndent(stack, "", "  ")
	if err != nil {
		return errors.BackendError(s.backend.Type(), "encode", err)
	}
	if err := s.backend.Write(ctx, stackPath(stack.Name), bytes.NewReader(content)); err != nil {
		return errors.BackendError(s.backend.Type(), "write", err)
	}
	return nil
}

// Delete removes all state stored under the stack.
func (s *Store) Delete(ctx context.Context, name string) error {
	paths, err := s.backend.List(ctx, path.Join("stacks", name))
	if err != nil {
		return errors.BackendError(s.backend.Type(), "list", err)
	}
	for _, p := range paths {
		if err := s.backend.Delete(ctx, p); err != nil {
			return errors.BackendError(s.backend.Type(), "delete", err)
		}
	}
	return nil
}

// List returns references to all stored stacks, sorted by name.
func (s *Store) List(ctx context.Context) ([]types.StackRef, error) {
	names, err := s.stackNames(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]types.StackRef, 0, len(names))
	for _, name := range names {
		stack, err := s.Get(ctx, name)
		if err != nil {
			// Skip records that cannot be read; a half-deleted stack
			// should not fail the whole listing.
			continue
		}
		refs = append(refs, types.StackRef{
			Name:      stack.Name,
			Status:    stack.Status,
			CreatedAt: stack.CreatedAt,
			UpdatedAt: stack.UpdatedAt,
		})
	}
	return refs, nil
}

// ListExports returns every published export with its owning stack,
// sorted by key.
func (s *Store) ListExports(ctx context.Context) ([]types.Export, error) {
	names, err := s.stackNames(ctx)
	if err != nil {
		return nil, err
	}

	var exports []types.Export
	for _, name := range names {
		stack, err := s.Get(ctx, name)
		if err != nil {
			continue
		}
		for key, value := range stack.Exports {
			exports = append(exports, types.Export{Key: key, Value: value, Owner: stack.Name})
		}
	}
	sort.Slice(exports, func(i, j int) bool { return exports[i].Key < exports[j].Key })
	return exports, nil
}

// LookupExport returns all published exports matching key. The caller
// decides how to treat zero or multiple matches.
func (s *Store) LookupExport(ctx context.Context, key string) ([]types.Export, error) {
	all, err := s.ListExports(ctx)
	if err != nil {
		return nil, err
	}
	var matches []types.Export
	for _, e := range all {
		if e.Key == key {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

// Lock acquires the per-stack writer lock. Concurrent operations on
// different stacks proceed independently.
func (s *Store) Lock(ctx context.Context, stackName, operation, who string) (backend.Lock, error) {
	lock, err := s.backend.Lock(ctx, path.Join("stacks", stackName), backend.LockInfo{
		Who:       who,
		Operation: operation,
	})
	if err != nil {
		var lockErr *backend.LockError
		if stderrors.As(err, &lockErr) {
			return nil, errors.StateLocked(errors.LockInfo{
				ID:        lockErr.Info.ID,
				Path:      lockErr.Info.Path,
				Who:       lockErr.Info.Who,
				Operation: lockErr.Info.Operation,
				Created:   lockErr.Info.Created,
			})
		}
		return nil, errors.BackendError(s.backend.Type(), "lock", err)
	}
	return lock, nil
}

// checkExports rejects the put if any export key is already published by
// a different stack.
func (s *Store) checkExports(ctx context.Context, stack *types.Stack) error {
	if len(stack.Exports) == 0 {
		return nil
	}

	published, err := s.ListExports(ctx)
	if err != nil {
		return err
	}
	for _, existing := range published {
		if existing.Owner == stack.Name {
			continue
		}
		if _, ok := stack.Exports[existing.Key]; ok {
			return errors.ExportCollision(existing.Key, existing.Owner)
		}
	}
	return nil
}

// stackNames derives the distinct stack names from stored paths, sorted.
func (s *Store) stackNames(ctx context.Context) ([]string, error) {
	paths, err := s.backend.List(ctx, "stacks/")
	if err != nil {
		return nil, errors.BackendError(s.backend.Type(), "list", err)
	}

	seen := make(map[string]bool)
	for _, p := range paths {
		if !strings.HasSuffix(p, stackFileName) {
			continue
		}
		// Path format: stacks/<name>/stack.state.json
		parts := strings.Split(p, "/")
		if len(parts) >= 3 && parts[0] == "stacks" {
			seen[parts[1]] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

const stackFileName = "stack.state.json"

func stackPath(name string) string {
	return path.Join("stacks", name, stackFileName)
}
