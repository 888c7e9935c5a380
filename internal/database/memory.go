package database

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the process-lifetime ephemeral backend used when the
// durable backend is unreachable at connect time. Collections are
// independent id -> document maps; Find preserves insertion order.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	docs  map[string]Doc
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

func (m *MemoryStore) collection(name string) *memCollection {
	col, ok := m.collections[name]
	if !ok {
		col = &memCollection{docs: make(map[string]Doc)}
		m.collections[name] = col
	}
	return col
}

func (m *MemoryStore) Create(ctx context.Context, collection string, doc Doc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(collection, doc), nil
}

func (m *MemoryStore) CreateMany(ctx context.Context, collection string, docs []Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		m.insert(collection, doc)
	}
	return nil
}

// insert assumes the write lock is held.
func (m *MemoryStore) insert(collection string, doc Doc) string {
	stored := cloneDoc(doc)
	id, _ := stored["_id"].(string)
	if id == "" {
		id = uuid.New().String()
		stored["_id"] = id
	}
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = time.Now().UTC()
	}
	col := m.collection(collection)
	col.docs[id] = stored
	col.order = append(col.order, id)
	return id
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.collection(collection).docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (m *MemoryStore) Find(ctx context.Context, collection string, filter Doc, skip, limit int64) ([]Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col := m.collection(collection)
	var out []Doc
	var seen int64
	for _, id := range col.order {
		doc, ok := col.docs[id]
		if !ok || !matchFilter(doc, filter) {
			continue
		}
		seen++
		if seen <= skip {
			continue
		}
		out = append(out, cloneDoc(doc))
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Count(ctx context.Context, collection string, filter Doc) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col := m.collection(collection)
	var n int64
	for _, doc := range col.docs {
		if matchFilter(doc, filter) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, patch Doc) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	col := m.collection(collection)
	doc, ok := col.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	for path, value := range patch {
		setPath(doc, strings.Split(path, "."), value)
	}
	doc["updated_at"] = time.Now().UTC()
	return cloneDoc(doc), nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	col := m.collection(collection)
	if _, ok := col.docs[id]; !ok {
		return 0, ErrNotFound
	}
	delete(col.docs, id)
	for i, oid := range col.order {
		if oid == id {
			col.order = append(col.order[:i], col.order[i+1:]...)
			break
		}
	}
	return 1, nil
}

func (m *MemoryStore) DeleteMany(ctx context.Context, collection string, filter Doc) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	col := m.collection(collection)
	var removed int64
	kept := col.order[:0]
	for _, id := range col.order {
		doc := col.docs[id]
		if matchFilter(doc, filter) {
			delete(col.docs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	col.order = kept
	return removed, nil
}

func (m *MemoryStore) Fallback() bool { return true }

func (m *MemoryStore) Close(ctx context.Context) error { return nil }

// matchFilter checks equality of every filter field against the document.
// Filter keys may use dotted paths.
func matchFilter(doc Doc, filter Doc) bool {
	for path, want := range filter {
		got, ok := lookupPath(doc, strings.Split(path, "."))
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func lookupPath(doc Doc, path []string) (any, bool) {
	cur := any(doc)
	for _, key := range path {
		node, ok := cur.(Doc)
		if !ok {
			return nil, false
		}
		cur, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath applies one dotted-path assignment, creating intermediate maps as
// needed. Mirrors the durable backend's $set semantics.
func setPath(doc Doc, path []string, value any) {
	for len(path) > 1 {
		next, ok := doc[path[0]].(Doc)
		if !ok {
			next = Doc{}
			doc[path[0]] = next
		}
		doc = next
		path = path[1:]
	}
	doc[path[0]] = normalizeValue(value)
}

func normalizeValue(value any) any {
	if doc, ok := value.(Doc); ok {
		return cloneDoc(doc)
	}
	return value
}

func cloneDoc(doc Doc) Doc {
	out := make(Doc, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case Doc:
		return cloneDoc(tv)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
