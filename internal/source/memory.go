package source

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/uniqn-app/staffsync/internal/models"
	apperrors "github.com/uniqn-app/staffsync/pkg/errors"
)

// Memory is an in-process Source/Writer used by tests and local
// development. Deltas are driven explicitly through Emit; errors are
// injected per entity through FailWatch/FailStream.
type Memory struct {
	mu      sync.Mutex
	docs    map[models.EntityType][]memoryDoc
	subs    map[models.EntityType][]*memorySubscription
	watches map[models.EntityType]error
	nextSeq uint64
}

type memoryDoc struct {
	id        string
	doc       map[string]any
	createdAt time.Time
}

// NewMemory returns an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{
		docs:    make(map[models.EntityType][]memoryDoc),
		subs:    make(map[models.EntityType][]*memorySubscription),
		watches: make(map[models.EntityType]error),
	}
}

// Seed inserts a document without emitting a change event. CreatedAt
// ordering follows insertion order.
func (m *Memory) Seed(entity models.EntityType, id string, doc map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	m.docs[entity] = append(m.docs[entity], memoryDoc{
		id:        id,
		doc:       doc,
		createdAt: time.Unix(0, int64(m.nextSeq)),
	})
}

// FailWatch makes the next Watch for the entity return err.
func (m *Memory) FailWatch(entity models.EntityType, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watches[entity] = err
}

// Emit pushes a delta to every open subscription for the entity. Record may
// be a typed model or nil for removes.
func (m *Memory) Emit(entity models.EntityType, op models.ChangeOp, id string, record any) {
	m.mu.Lock()
	subs := append([]*memorySubscription(nil), m.subs[entity]...)
	m.mu.Unlock()
	for _, sub := range subs {
		sub.push(models.ChangeEvent{Op: op, Entity: entity, ID: id, Record: record})
	}
}

// FailStream terminates every open subscription for the entity with err.
func (m *Memory) FailStream(entity models.EntityType, err error) {
	m.mu.Lock()
	subs := append([]*memorySubscription(nil), m.subs[entity]...)
	m.mu.Unlock()
	for _, sub := range subs {
		sub.failWith(err)
	}
}

// matchScope compares the document's top-level value with the filter as
// text, mirroring how the SQL implementation compares jsonb ->> output.
func matchScope(doc map[string]any, scope Scope) bool {
	for field, want := range scope.Equals {
		value, ok := doc[field]
		if !ok {
			return false
		}
		if fmt.Sprint(value) != want {
			return false
		}
	}
	return true
}

// Watch snapshots matching documents as add events, then stays open for
// Emit-driven deltas.
func (m *Memory) Watch(ctx context.Context, entity models.EntityType, scope Scope) (Subscription, error) {
	m.mu.Lock()
	if err := m.watches[entity]; err != nil {
		delete(m.watches, entity)
		m.mu.Unlock()
		return nil, err
	}
	snapshot := append([]memoryDoc(nil), m.docs[entity]...)
	sub := &memorySubscription{
		mem:    m,
		entity: entity,
		events: make(chan models.ChangeEvent, 256),
		done:   make(chan struct{}),
	}
	m.subs[entity] = append(m.subs[entity], sub)
	m.mu.Unlock()

	for _, d := range snapshot {
		if !matchScope(d.doc, scope) {
			continue
		}
		record, err := models.DecodeRecord(entity, d.doc)
		if err != nil {
			continue
		}
		sub.push(models.ChangeEvent{Op: models.OpAdd, Entity: entity, ID: d.id, Record: record})
	}
	sub.push(models.ChangeEvent{Op: models.OpSnapshot, Entity: entity})
	return sub, nil
}

type memorySubscription struct {
	mem    *Memory
	entity models.EntityType
	events chan models.ChangeEvent
	done   chan struct{}

	mu     sync.Mutex
	seq    uint64
	err    error
	closed bool
}

func (s *memorySubscription) Events() <-chan models.ChangeEvent { return s.events }

func (s *memorySubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *memorySubscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	close(s.events)
	s.mu.Unlock()
	s.mem.detach(s)
}

// push delivers under the subscription lock so a concurrent Close cannot
// close the channel mid-send. The buffer is sized for tests; a full buffer
// drops the event rather than deadlocking.
func (s *memorySubscription) push(ev models.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.seq++
	ev.Seq = s.seq
	select {
	case s.events <- ev:
	default:
	}
}

func (s *memorySubscription) failWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.Close()
}

func (m *Memory) detach(sub *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[sub.entity]
	for i, candidate := range subs {
		if candidate == sub {
			m.subs[sub.entity] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// FetchPage pages newest-first with the same cursor shape as the Postgres
// source: an opaque token over (createdAt, id).
func (m *Memory) FetchPage(ctx context.Context, q PageQuery) (PageResult, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	m.mu.Lock()
	docs := append([]memoryDoc(nil), m.docs[q.Entity]...)
	m.mu.Unlock()

	filtered := docs[:0:0]
	for _, d := range docs {
		if matchScope(d.doc, q.Scope) {
			filtered = append(filtered, d)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].createdAt.Equal(filtered[j].createdAt) {
			return filtered[i].createdAt.After(filtered[j].createdAt)
		}
		return filtered[i].id > filtered[j].id
	})

	start := 0
	if q.After != "" {
		n, err := strconv.Atoi(string(q.After))
		if err != nil {
			return PageResult{}, apperrors.Clone(apperrors.ErrValidation, "invalid page cursor")
		}
		start = n
	}
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + q.Limit
	if end > len(filtered) {
		end = len(filtered)
	}

	result := PageResult{HasMore: end < len(filtered)}
	for _, d := range filtered[start:end] {
		result.Records = append(result.Records, d.doc)
	}
	if end > start {
		result.Next = Cursor(strconv.Itoa(end))
	}
	return result, nil
}

// Count returns the scoped collection size.
func (m *Memory) Count(ctx context.Context, q CountQuery) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, d := range m.docs[q.Entity] {
		if matchScope(d.doc, q.Scope) {
			count++
		}
	}
	return count, nil
}

// Put upserts and emits to open watches.
func (m *Memory) Put(ctx context.Context, entity models.EntityType, id string, doc map[string]any) error {
	m.mu.Lock()
	op := models.OpAdd
	replaced := false
	for i, d := range m.docs[entity] {
		if d.id == id {
			m.docs[entity][i].doc = doc
			op = models.OpModify
			replaced = true
			break
		}
	}
	if !replaced {
		m.nextSeq++
		m.docs[entity] = append(m.docs[entity], memoryDoc{id: id, doc: doc, createdAt: time.Unix(0, int64(m.nextSeq))})
	}
	m.mu.Unlock()

	record, err := models.DecodeRecord(entity, doc)
	if err != nil {
		return err
	}
	m.Emit(entity, op, id, record)
	return nil
}

// Patch merges fields into an existing document.
func (m *Memory) Patch(ctx context.Context, entity models.EntityType, id string, fields map[string]any) error {
	m.mu.Lock()
	var merged map[string]any
	for i, d := range m.docs[entity] {
		if d.id == id {
			merged = make(map[string]any, len(d.doc)+len(fields))
			for k, v := range d.doc {
				merged[k] = v
			}
			for k, v := range fields {
				merged[k] = v
			}
			m.docs[entity][i].doc = merged
			break
		}
	}
	m.mu.Unlock()

	if merged == nil {
		return apperrors.ErrNotFound
	}
	record, err := models.DecodeRecord(entity, merged)
	if err != nil {
		return err
	}
	m.Emit(entity, models.OpModify, id, record)
	return nil
}

// Increment adds delta to a numeric document field.
func (m *Memory) Increment(ctx context.Context, entity models.EntityType, id string, field string, delta int) error {
	m.mu.Lock()
	var merged map[string]any
	for i, d := range m.docs[entity] {
		if d.id == id {
			merged = make(map[string]any, len(d.doc)+1)
			for k, v := range d.doc {
				merged[k] = v
			}
			current, _ := merged[field].(float64)
			merged[field] = current + float64(delta)
			m.docs[entity][i].doc = merged
			break
		}
	}
	m.mu.Unlock()

	if merged == nil {
		return apperrors.ErrNotFound
	}
	record, err := models.DecodeRecord(entity, merged)
	if err != nil {
		return err
	}
	m.Emit(entity, models.OpModify, id, record)
	return nil
}

// Delete removes a document and emits a remove event.
func (m *Memory) Delete(ctx context.Context, entity models.EntityType, id string) error {
	m.mu.Lock()
	found := false
	for i, d := range m.docs[entity] {
		if d.id == id {
			m.docs[entity] = append(m.docs[entity][:i], m.docs[entity][i+1:]...)
			found = true
			break
		}
	}
	m.mu.Unlock()

	if !found {
		return apperrors.ErrNotFound
	}
	m.Emit(entity, models.OpRemove, id, nil)
	return nil
}
