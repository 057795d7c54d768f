// Package cache persists derived artifacts (schemas, attribute graphs and
// query results) so that later runs can skip recomputing them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"

	"github.com/umich-dbgroup/litmus/pkg/logger"
)

// ErrNotFound is returned by Load when nothing is stored under a key.
var ErrNotFound = errors.New("cache entry not found")

type Kind string

const (
	KindSchema  Kind = "schema"
	KindAIG     Kind = "aig"
	KindResults Kind = "results"
)

// Key names an artifact. Task is only set for per task artifacts.
type Key struct {
	Kind     Kind
	Database string
	Task     string
}

// Hash is a content address of the key.
func (k Key) Hash() string {
	sum := sha256.Sum256([]byte(string(k.Kind) + "\x00" + k.Database + "\x00" + k.Task))
	return hex.EncodeToString(sum[:])[:24]
}

// Name is the blob name used by the backends.
func (k Key) Name() string {
	return path.Join(string(k.Kind), k.Database, k.Hash()+".json.zst")
}

func (k Key) String() string {
	if k.Task == "" {
		return fmt.Sprintf("%s/%s", k.Kind, k.Database)
	}
	return fmt.Sprintf("%s/%s/%s", k.Kind, k.Database, k.Task)
}

// Backend stores opaque blobs by name.
type Backend interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
	// DeletePrefix removes every blob whose name starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// Repository encodes values as compressed JSON on a backend.
type Repository struct {
	backend Backend
}

func NewRepository(backend Backend) *Repository {
	if backend == nil {
		backend = Discard{}
	}
	return &Repository{backend: backend}
}

// Load decodes the value stored under key into v.
func (r *Repository) Load(ctx context.Context, key Key, v any) error {
	data, err := r.backend.Get(ctx, key.Name())
	if err != nil {
		return err
	}
	if err := decode(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	logger.Debug("[Cache] Loaded", "key", key.String(), "bytes", len(data))
	return nil
}

func (r *Repository) Save(ctx context.Context, key Key, v any) error {
	data, err := encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := r.backend.Put(ctx, key.Name(), data); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	logger.Debug("[Cache] Saved", "key", key.String(), "bytes", len(data))
	return nil
}

// Invalidate removes key. Missing entries are not an error.
func (r *Repository) Invalidate(ctx context.Context, key Key) error {
	if err := r.backend.Delete(ctx, key.Name()); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to invalidate %s: %w", key, err)
	}
	logger.Info("[Cache] Invalidated", "key", key.String())
	return nil
}

// Purge removes every artifact of kind stored for database, e.g. the
// results of all its tasks.
func (r *Repository) Purge(ctx context.Context, kind Kind, database string) error {
	prefix := path.Join(string(kind), database) + "/"
	if err := r.backend.DeletePrefix(ctx, prefix); err != nil {
		return fmt.Errorf("failed to purge %s/%s: %w", kind, database, err)
	}
	logger.Info("[Cache] Purged", "kind", kind, "database", database)
	return nil
}

// Discard stores nothing.
type Discard struct{}

func (Discard) Get(context.Context, string) ([]byte, error) { return nil, ErrNotFound }
func (Discard) Put(context.Context, string, []byte) error   { return nil }
func (Discard) Delete(context.Context, string) error        { return nil }
func (Discard) DeletePrefix(context.Context, string) error  { return nil }
