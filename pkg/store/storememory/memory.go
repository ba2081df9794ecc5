package storememory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/beejcap/lsp-auth/pkg/store"
)

// MemoryStore is an in-memory implementation of store.Store. Intended for
// development mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[store.Key]store.Attributes
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[store.Key]store.Attributes),
	}
}

// Get returns a copy of the record, or (nil, nil) when absent.
func (m *MemoryStore) Get(_ context.Context, key store.Key) (*store.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	attr, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &store.Record{Key: key, Attr: copyAttr(attr)}, nil
}

// ConditionalUpdate merges set and removes the named attributes, upserting
// unless RequireExists is set.
func (m *MemoryStore) ConditionalUpdate(_ context.Context, key store.Key, set store.Attributes, remove []string, opts ...store.UpdateOption) error {
	options := store.UpdateOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	attr, exists := m.records[key]
	if !exists {
		if options.RequireExists {
			return store.ErrConditionFailed().
				WithDetail("pk", key.PK).
				WithDetail("sk", key.SK)
		}
		attr = make(store.Attributes)
		m.records[key] = attr
	}

	applyUpdate(attr, set, remove)
	return nil
}

// Delete removes the record; absent records are a no-op.
func (m *MemoryStore) Delete(_ context.Context, key store.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	return nil
}

// TransactWrite validates every operation first, then applies all of them
// under one lock so partial state is never observable.
func (m *MemoryStore) TransactWrite(_ context.Context, ops []store.WriteOp) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range ops {
		if op.Key.PK == "" || op.Key.SK == "" {
			return store.ErrTransactFailed().
				WithDetail("reason", "operation with empty key")
		}
		switch op.Kind {
		case store.OpPut, store.OpUpdate, store.OpDelete:
		default:
			return store.ErrTransactFailed().
				WithDetail("reason", "unknown operation kind").
				WithDetail("kind", string(op.Kind))
		}
	}

	for _, op := range ops {
		switch op.Kind {
		case store.OpPut:
			m.records[op.Key] = copyAttr(op.Set)
		case store.OpUpdate:
			attr, exists := m.records[op.Key]
			if !exists {
				attr = make(store.Attributes)
				m.records[op.Key] = attr
			}
			applyUpdate(attr, op.Set, op.Remove)
		case store.OpDelete:
			delete(m.records, op.Key)
		}
	}
	return nil
}

// Query returns records under pk whose sort key begins with skPrefix,
// ordered by sort key.
func (m *MemoryStore) Query(_ context.Context, pk, skPrefix string) ([]store.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []store.Record
	for key, attr := range m.records {
		if key.PK == pk && strings.HasPrefix(key.SK, skPrefix) {
			out = append(out, store.Record{Key: key, Attr: copyAttr(attr)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.SK < out[j].Key.SK })
	return out, nil
}

// Len reports the number of stored records. Test helper.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func applyUpdate(attr, set store.Attributes, remove []string) {
	for k, v := range set {
		attr[k] = v
	}
	for _, k := range remove {
		delete(attr, k)
	}
}

func copyAttr(attr store.Attributes) store.Attributes {
	out := make(store.Attributes, len(attr))
	for k, v := range attr {
		out[k] = v
	}
	return out
}
