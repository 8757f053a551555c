package store

import (
	"sort"

	"github.com/uniqn-app/staffsync/internal/models"
)

type memoKey struct {
	entity models.EntityType
	field  string
	value  string
}

type memoEntry struct {
	revision uint64
	result   []any
}

// ByID returns one record, equivalent to Get but named for selector
// call sites.
func (s *Store) ByID(entity models.EntityType, id string) (any, bool) {
	return s.Get(entity, id)
}

// ByForeignKey returns every record whose indexed field equals value,
// sorted by id. The result is memoized against the entity revision: two
// calls with no intervening mutation return the same slice header, so
// shallow-compare consumers see no change. Callers must treat the slice
// as read-only.
func (s *Store) ByForeignKey(entity models.EntityType, field, value string) []any {
	key := memoKey{entity: entity, field: field, value: value}

	s.mu.RLock()
	t, ok := s.tables[entity]
	if !ok {
		s.mu.RUnlock()
		return nil
	}
	revision := t.revision
	if entry, hit := s.memo[key]; hit && entry.revision == revision {
		result := entry.result
		s.mu.RUnlock()
		return result
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	t = s.tables[entity]
	if t == nil {
		return nil
	}
	// Re-check under the write lock; another goroutine may have filled
	// the memo while we upgraded.
	if entry, hit := s.memo[key]; hit && entry.revision == t.revision {
		return entry.result
	}

	var result []any
	if index, indexed := t.indexes[field]; indexed {
		for _, id := range sortedIDs(index[value]) {
			result = append(result, t.records[id])
		}
	} else {
		// Unindexed fields fall back to a scan so the selector stays
		// total; the declared indexes cover every hot path.
		ids := make(map[string]struct{})
		for id, record := range t.records {
			if foreignKey(record, field) == value {
				ids[id] = struct{}{}
			}
		}
		for _, id := range sortedIDs(ids) {
			result = append(result, t.records[id])
		}
	}

	s.memo[memoKey{entity: entity, field: field, value: value}] = &memoEntry{
		revision: t.revision,
		result:   result,
	}
	return result
}

// Filter scans a table and returns records matching pred, sorted by id.
// Not memoized: predicates are arbitrary closures.
func (s *Store) Filter(entity models.EntityType, pred func(any) bool) []any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[entity]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(t.records))
	for id, record := range t.records {
		if pred(record) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	result := make([]any, 0, len(ids))
	for _, id := range ids {
		result = append(result, t.records[id])
	}
	return result
}

// All returns every record in a table, sorted by id.
func (s *Store) All(entity models.EntityType) []any {
	return s.Filter(entity, func(any) bool { return true })
}
