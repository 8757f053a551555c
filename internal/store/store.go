// Package store holds the normalized in-memory mirror of the backing
// document store: one keyed table per entity type, revision counters for
// change detection, and indexed selectors for derived views.
package store

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uniqn-app/staffsync/internal/models"
	apperrors "github.com/uniqn-app/staffsync/pkg/errors"
)

// MetricsRecorder receives store-level observations. Implemented by the
// metrics service; nil disables recording.
type MetricsRecorder interface {
	ObserveStoreMutation(entity string, op string)
	ObserveStoreError(entity string)
}

// indexedFields declares the foreign-key indexes maintained per entity
// type. Field names match the document field names.
var indexedFields = map[models.EntityType][]string{
	models.EntityWorkLogs:          {"staff_id", "event_id"},
	models.EntityApplications:      {"applicant_id", "event_id"},
	models.EntityAttendanceRecords: {"staff_id", "event_id"},
	models.EntityStaff:             {"posting_id"},
}

type table struct {
	records     map[string]any
	revision    uint64
	err         *apperrors.Error
	lastUpdated time.Time

	// field -> value -> set of record ids
	indexes map[string]map[string]map[string]struct{}
}

func newTable(entity models.EntityType) *table {
	t := &table{
		records: make(map[string]any),
		indexes: make(map[string]map[string]map[string]struct{}),
	}
	for _, field := range indexedFields[entity] {
		t.indexes[field] = make(map[string]map[string]struct{})
	}
	return t
}

// Store is the normalized mirror. All access goes through one RWMutex;
// events from different entity streams interleave arbitrarily.
type Store struct {
	mu      sync.RWMutex
	tables  map[models.EntityType]*table
	memo    map[memoKey]*memoEntry
	logger  *zap.Logger
	metrics MetricsRecorder
}

// New builds an empty store with one table per known entity type.
func New(logger *zap.Logger, metrics MetricsRecorder) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		tables:  make(map[models.EntityType]*table, len(models.EntityTypes)),
		memo:    make(map[memoKey]*memoEntry),
		logger:  logger,
		metrics: metrics,
	}
	for _, entity := range models.EntityTypes {
		s.tables[entity] = newTable(entity)
	}
	return s
}

func (s *Store) table(entity models.EntityType) *table {
	t, ok := s.tables[entity]
	if !ok {
		// Unknown entity types get a lazily created unindexed table rather
		// than a panic; the source layer validates entities first.
		t = newTable(entity)
		s.tables[entity] = t
	}
	return t
}

func (t *table) addToIndexes(id string, record any) {
	for field := range t.indexes {
		value := foreignKey(record, field)
		if value == "" {
			continue
		}
		bucket, ok := t.indexes[field][value]
		if !ok {
			bucket = make(map[string]struct{})
			t.indexes[field][value] = bucket
		}
		bucket[id] = struct{}{}
	}
}

func (t *table) removeFromIndexes(id string, record any) {
	for field := range t.indexes {
		value := foreignKey(record, field)
		if value == "" {
			continue
		}
		bucket := t.indexes[field][value]
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(t.indexes[field], value)
		}
	}
}

func (t *table) bump() {
	t.revision++
	t.lastUpdated = time.Now().UTC()
}

// Set inserts or replaces one record. Records without an id are rejected
// and logged, never stored.
func (s *Store) Set(entity models.EntityType, id string, record any) {
	if id == "" {
		s.logger.Warn("dropping record without id", zap.String("entity", string(entity)))
		if s.metrics != nil {
			s.metrics.ObserveStoreError(string(entity))
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(entity)
	if prev, ok := t.records[id]; ok {
		t.removeFromIndexes(id, prev)
	}
	t.records[id] = record
	t.addToIndexes(id, record)
	t.bump()
	if s.metrics != nil {
		s.metrics.ObserveStoreMutation(string(entity), "set")
	}
}

// Remove deletes one record. Removing an absent id still bumps the
// revision so downstream relists converge.
func (s *Store) Remove(entity models.EntityType, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(entity)
	if prev, ok := t.records[id]; ok {
		t.removeFromIndexes(id, prev)
		delete(t.records, id)
	}
	t.bump()
	if s.metrics != nil {
		s.metrics.ObserveStoreMutation(string(entity), "remove")
	}
}

// ReplaceAll swaps the whole table for a fresh snapshot.
func (s *Store) ReplaceAll(entity models.EntityType, records map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := newTable(entity)
	prev := s.tables[entity]
	if prev != nil {
		t.revision = prev.revision
		t.err = prev.err
	}
	for id, record := range records {
		if id == "" {
			s.logger.Warn("dropping record without id", zap.String("entity", string(entity)))
			continue
		}
		t.records[id] = record
		t.addToIndexes(id, record)
	}
	t.bump()
	s.tables[entity] = t
	if s.metrics != nil {
		s.metrics.ObserveStoreMutation(string(entity), "replace_all")
	}
}

// Get returns one record by id.
func (s *Store) Get(entity models.EntityType, id string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[entity]
	if !ok {
		return nil, false
	}
	record, ok := t.records[id]
	return record, ok
}

// Len returns the table size.
func (s *Store) Len(entity models.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[entity]
	if !ok {
		return 0
	}
	return len(t.records)
}

// Revision returns the table's mutation counter. Consumers compare
// revisions to decide whether cached derivations are still fresh.
func (s *Store) Revision(entity models.EntityType) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[entity]
	if !ok {
		return 0
	}
	return t.revision
}

// LastUpdated returns when the table last changed.
func (s *Store) LastUpdated(entity models.EntityType) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[entity]
	if !ok {
		return time.Time{}
	}
	return t.lastUpdated
}

// SetErr records a per-entity stream failure. It does not touch records:
// stale data plus an error beats no data.
func (s *Store) SetErr(entity models.EntityType, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(entity)
	if err == nil {
		t.err = nil
		return
	}
	t.err = apperrors.FromError(err)
	if s.metrics != nil {
		s.metrics.ObserveStoreError(string(entity))
	}
}

// Err returns the entity's recorded stream failure, if any.
func (s *Store) Err(entity models.EntityType) *apperrors.Error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[entity]
	if !ok {
		return nil
	}
	return t.err
}

// Clear empties every table and error slot. Used on identity change.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for entity, prev := range s.tables {
		t := newTable(entity)
		// Revisions keep counting up across clears so memoized consumers
		// never mistake a fresh table for the one they cached.
		t.revision = prev.revision + 1
		t.lastUpdated = time.Now().UTC()
		s.tables[entity] = t
	}
	s.memo = make(map[memoKey]*memoEntry)
}

// sortedIDs returns a deterministic ordering for a record set.
func sortedIDs(ids map[string]struct{}) []string {
	out := make([]string, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
