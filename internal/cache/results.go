package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/umich-dbgroup/litmus/pkg/cq"
	"github.com/umich-dbgroup/litmus/pkg/engine"
)

// LoadResults restores the persisted query results of a task into mc. A
// missing entry leaves mc untouched.
func (r *Repository) LoadResults(ctx context.Context, key Key, mc *engine.MemoryCache) error {
	var entries map[string][]cq.Tuple
	if err := r.Load(ctx, key, &entries); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	for _, tuples := range entries {
		for _, t := range tuples {
			restoreNumbers(t)
		}
	}
	mc.Restore(entries)
	return nil
}

func (r *Repository) SaveResults(ctx context.Context, key Key, mc *engine.MemoryCache) error {
	return r.Save(ctx, key, mc.Snapshot())
}

func restoreNumbers(t cq.Tuple) {
	for i, v := range t {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if x, err := n.Int64(); err == nil {
			t[i] = x
		} else if f, err := n.Float64(); err == nil {
			t[i] = f
		} else {
			t[i] = n.String()
		}
	}
}
