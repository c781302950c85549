package cattools

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store, mainly useful for tests and for records
// assembled by other tools.
type MemoryStore struct {
	records     map[string]*ExecutionRecord
	collections map[string][]string
	nextOrdinal int64
	mutex       sync.RWMutex
}

// NewMemoryStore creates a new empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:     map[string]*ExecutionRecord{},
		collections: map[string][]string{},
	}
}

// Put adds or replaces a record. A missing key or ordinal is assigned in
// place on the given record.
func (s *MemoryStore) Put(ctx context.Context, record *ExecutionRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if record.Key == NoRecord {
		record.Key = NewRecordKey()
	}
	if record.Ordinal == 0 {
		s.nextOrdinal++
		record.Ordinal = s.nextOrdinal
	} else if record.Ordinal > s.nextOrdinal {
		s.nextOrdinal = record.Ordinal
	}
	record.AssignBlobKeys()
	s.records[record.Key] = record.Copy()
	return nil
}

// AddToCollection appends keys to a named collection, creating it if needed.
func (s *MemoryStore) AddToCollection(ctx context.Context, collection string, keys ...string) error {
	if collection == "" {
		return fmt.Errorf("collection name required")
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, key := range keys {
		if _, ok := s.records[key]; !ok {
			return NotFoundError(key)
		}
	}
	s.collections[collection] = append(s.collections[collection], keys...)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, key string) (*ExecutionRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	record, ok := s.records[key]
	if !ok {
		return nil, NotFoundError(key)
	}
	return record.Copy(), nil
}

func (s *MemoryStore) Query(ctx context.Context, filter Filter) ([]*ExecutionRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var records []*ExecutionRecord
	for _, record := range s.records {
		if filter.Matches(record) {
			records = append(records, record.Copy())
		}
	}
	SortByOrdinal(records)
	return records, nil
}

func (s *MemoryStore) Members(ctx context.Context, collection string) ([]Member, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	keys, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, ErrNotFound)
	}
	members := make([]Member, len(keys))
	for i, key := range keys {
		members[i] = Member{Key: key, Ordinal: s.records[key].Ordinal}
	}
	return members, nil
}
