// Package gcs implements a Google Cloud Storage state backend.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/stackwave/stackctl/pkg/state/backend"
)

const staleLockAge = time.Hour

func init() {
	backend.Register("gcs", NewBackend)
}

// Backend stores state objects in a GCS bucket under an optional prefix.
type Backend struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewBackend creates a GCS backend. Requires "bucket"; honors "prefix",
// "credentials" (file path), "credentials_json", and "endpoint" for the
// emulator.
func NewBackend(cfg map[string]string) (backend.Backend, error) {
	bucket := cfg["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("gcs backend requires 'bucket' configuration")
	}

	var opts []option.ClientOption
	if file := cfg["credentials"]; file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	if raw := cfg["credentials_json"]; raw != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(raw)))
	}
	if endpoint := cfg["endpoint"]; endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &Backend{
		client: client,
		bucket: bucket,
		prefix: cfg["prefix"],
	}, nil
}

func (b *Backend) Type() string {
	return "gcs"
}

func (b *Backend) Read(ctx context.Context, statePath string) (io.ReadCloser, error) {
	object := b.object(statePath)
	reader, err := b.client.Bucket(b.bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", b.bucket, object, err)
	}
	return reader, nil
}

func (b *Backend) Write(ctx context.Context, statePath string, data io.Reader) error {
	object := b.object(statePath)

	w := b.client.Bucket(b.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", b.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to write gs://%s/%s: %w", b.bucket, object, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, statePath string) error {
	object := b.object(statePath)
	err := b.client.Bucket(b.bucket).Object(object).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", b.bucket, object, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{
		Prefix: b.object(prefix),
	})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		rel := attrs.Name
		if b.prefix != "" {
			rel = strings.TrimPrefix(rel, b.prefix+"/")
		}
		paths = append(paths, rel)
	}
	return paths, nil
}

func (b *Backend) Exists(ctx context.Context, statePath string) (bool, error) {
	_, err := b.client.Bucket(b.bucket).Object(b.object(statePath)).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check %s: %w", statePath, err)
	}
	return true, nil
}

func (b *Backend) Lock(ctx context.Context, statePath string, info backend.LockInfo) (backend.Lock, error) {
	lockObject := b.object(statePath + ".lock")

	if holder, err := b.readLock(ctx, lockObject); err == nil {
		if time.Since(holder.Created) < staleLockAge {
			return nil, &backend.LockError{Info: holder, Err: backend.ErrLocked}
		}
	}

	info.ID = uuid.New().String()
	info.Path = statePath
	info.Created = time.Now()

	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lock info: %w", err)
	}

	w := b.client.Bucket(b.bucket).Object(lockObject).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to create lock: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to create lock: %w", err)
	}

	return &gcsLock{backend: b, object: lockObject, info: info}, nil
}

func (b *Backend) readLock(ctx context.Context, object string) (backend.LockInfo, error) {
	reader, err := b.client.Bucket(b.bucket).Object(object).NewReader(ctx)
	if err != nil {
		return backend.LockInfo{}, err
	}
	defer reader.Close()

	var info backend.LockInfo
	if err := json.NewDecoder(reader).Decode(&info); err != nil {
		return backend.LockInfo{}, err
	}
	return info, nil
}

func (b *Backend) object(statePath string) string {
	if b.prefix == "" {
		return statePath
	}
	return path.Join(b.prefix, statePath)
}

// Close closes the underlying GCS client.
func (b *Backend) Close() error {
	return b.client.Close()
}

type gcsLock struct {
	backend *Backend
	object  string
	info    backend.LockInfo
}

func (l *gcsLock) ID() string {
	return l.info.ID
}

func (l *gcsLock) Info() backend.LockInfo {
	return l.info
}

func (l *gcsLock) Unlock(ctx context.Context) error {
	err := l.backend.client.Bucket(l.backend.bucket).Object(l.object).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

var _ backend.Backend = (*Backend)(nil)
