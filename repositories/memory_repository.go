package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"hseproject/models"
)

// MemoryStore keeps every collection in process memory. It backs the
// "memory" store driver and the test suites.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*memoryRepository
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: map[string]*memoryRepository{}}
}

func (s *MemoryStore) Records(collection string, unique ...[]string) RecordRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if repo, ok := s.collections[collection]; ok {
		return repo
	}
	repo := &memoryRepository{
		collection: collection,
		unique:     unique,
		docs:       map[string]models.Document{},
	}
	s.collections[collection] = repo
	return repo
}

type memoryRepository struct {
	mu         sync.RWMutex
	collection string
	unique     [][]string
	docs       map[string]models.Document
	order      []string
}

func (r *memoryRepository) Collection() string {
	return r.collection
}

func (r *memoryRepository) Insert(ctx context.Context, doc models.Document) error {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("insert into %s: missing id", r.collection)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; ok {
		return ErrDuplicate
	}
	if err := r.checkUnique(id, doc); err != nil {
		return err
	}
	r.docs[id] = doc.Clone()
	r.order = append(r.order, id)
	return nil
}

// checkUnique enforces each unique key, single-field or compound. Records
// missing any field of a key are not constrained by it.
func (r *memoryRepository) checkUnique(id string, doc models.Document) error {
	for _, key := range r.unique {
		values, ok := uniqueValues(doc, key)
		if !ok {
			continue
		}
		for otherID, other := range r.docs {
			if otherID == id {
				continue
			}
			if ov, ok := uniqueValues(other, key); ok && equalAll(ov, values) {
				return fmt.Errorf("%s %v: %w", strings.Join(key, "+"), values, ErrDuplicate)
			}
		}
	}
	return nil
}

func uniqueValues(doc models.Document, key []string) ([]any, bool) {
	values := make([]any, 0, len(key))
	for _, field := range key {
		v, ok := doc.Get(field)
		if !ok || models.IsBlank(v) {
			return nil, false
		}
		values = append(values, v)
	}
	return values, true
}

func equalAll(a, b []any) bool {
	for i := range a {
		if !equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (r *memoryRepository) FindByID(ctx context.Context, id string) (models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (r *memoryRepository) Replace(ctx context.Context, id string, doc models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return ErrNotFound
	}
	if err := r.checkUnique(id, doc); err != nil {
		return err
	}
	stored := doc.Clone()
	stored[models.FieldID] = id
	r.docs[id] = stored
	return nil
}

func (r *memoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return ErrNotFound
	}
	delete(r.docs, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// snapshot returns matching documents in insertion order.
func (r *memoryRepository) snapshot(q Query) []models.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Document
	for _, id := range r.order {
		doc := r.docs[id]
		if q.Matches(doc) {
			out = append(out, doc.Clone())
		}
	}
	return out
}

func (r *memoryRepository) Find(ctx context.Context, q Query, opts FindOptions) ([]models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	docs := r.snapshot(q)
	if len(opts.Sort) > 0 {
		sortDocuments(docs, opts.Sort)
	}
	if opts.Skip > 0 {
		if opts.Skip >= int64(len(docs)) {
			return []models.Document{}, nil
		}
		docs = docs[opts.Skip:]
	}
	if opts.Limit > 0 && int64(len(docs)) > opts.Limit {
		docs = docs[:opts.Limit]
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

func (r *memoryRepository) Count(ctx context.Context, q Query) (int64, error) {
	return int64(len(r.snapshot(q))), nil
}

func (r *memoryRepository) Exists(ctx context.Context, q Query) (bool, error) {
	return len(r.snapshot(q)) > 0, nil
}

func (r *memoryRepository) Increment(ctx context.Context, id, field string, delta int64) (models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	doc.Set(field, doc.Int(field)+delta)
	return doc.Clone(), nil
}

func (r *memoryRepository) Aggregate(ctx context.Context, agg Aggregation) ([]models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return aggregateInMemory(r.snapshot(Query{}), agg), nil
}
