package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/nuulab/dicomflow/pkg/responseset"
)

// MemStore is an in-memory reference Store implementation, grounded on
// the teacher's in-memory cache backend. It is meant for tests and the
// example wiring in cmd/example — a real deployment supplies its own
// DICOM-aware Store.
type MemStore struct {
	mu       sync.Mutex
	filename string
	precache []string
	exclude  []string

	// FailNext, if set, makes the next InsertBatch call return this error
	// once, then clears itself — used to exercise spec.md §7's
	// StoreFailure path.
	FailNext error

	inserted []*responseset.ResponseSet
}

// NewMemStore creates an in-memory Store.
func NewMemStore(filename string) *MemStore {
	return &MemStore{filename: filename}
}

// WithTagsToPrecache sets the tags this Store reports wanting precached.
func (m *MemStore) WithTagsToPrecache(tags ...string) *MemStore {
	m.precache = tags
	return m
}

// WithTagsToExcludeFromStorage sets the tags this Store reports excluding.
func (m *MemStore) WithTagsToExcludeFromStorage(tags ...string) *MemStore {
	m.exclude = tags
	return m
}

// InsertBatch appends a deep copy of each ResponseSet to the in-memory log.
func (m *MemStore) InsertBatch(ctx context.Context, sets []*responseset.ResponseSet) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("store: %w", ctx.Err())
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}

	m.inserted = append(m.inserted, responseset.CloneAll(sets)...)
	return nil
}

// Inserted returns a snapshot of every ResponseSet ever persisted.
func (m *MemStore) Inserted() []*responseset.ResponseSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*responseset.ResponseSet(nil), m.inserted...)
}

func (m *MemStore) TagsToPrecache() []string            { return m.precache }
func (m *MemStore) TagsToExcludeFromStorage() []string  { return m.exclude }
func (m *MemStore) DatabaseFilename() string            { return m.filename }
