package source

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/uniqn-app/staffsync/internal/models"
	apperrors "github.com/uniqn-app/staffsync/pkg/errors"
)

// Document tables all share one shape: <entity>(id text primary key,
// doc jsonb not null, created_at timestamptz not null). Change
// notifications arrive on channel "staffsync_<entity>" with payload
// "<op>:<id>"; add/modify payloads trigger a row re-read.

const (
	notifyChannelPrefix = "staffsync_"

	listenerMinReconnect = time.Second
	listenerMaxReconnect = 30 * time.Second
)

var documentTables = map[models.EntityType]string{
	models.EntityStaff:             "staff",
	models.EntityWorkLogs:          "work_logs",
	models.EntityApplications:      "applications",
	models.EntityAttendanceRecords: "attendance_records",
	models.EntityJobPostings:       "job_postings",
	models.EntityAnnouncements:     "system_announcements",
}

// Postgres implements Source and Writer against the JSONB document tables.
type Postgres struct {
	db          *sqlx.DB
	dsn         string
	eventBuffer int
	logger      *zap.Logger
}

// NewPostgres wires the source. The dsn is needed separately from db
// because pq.Listener opens its own dedicated connection.
func NewPostgres(db *sqlx.DB, dsn string, eventBuffer int, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	if eventBuffer <= 0 {
		eventBuffer = 64
	}
	return &Postgres{db: db, dsn: dsn, eventBuffer: eventBuffer, logger: logger}
}

func tableFor(entity models.EntityType) (string, error) {
	table, ok := documentTables[entity]
	if !ok {
		return "", apperrors.New("UNKNOWN_ENTITY", 400, fmt.Sprintf("unknown entity type %q", entity))
	}
	return table, nil
}

// scopeWhere renders the scope filter into SQL. Fields are keys of our own
// documents, compared against top-level jsonb values. Keys are visited in
// sorted order so generated SQL is deterministic.
func scopeWhere(scope Scope, args []interface{}) (string, []interface{}) {
	if len(scope.Equals) == 0 {
		return "", args
	}
	keys := make([]string, 0, len(scope.Equals))
	for k := range scope.Equals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, scope.Equals[k])
		clauses = append(clauses, fmt.Sprintf("doc->>'%s' = $%d", k, len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

type pgRow struct {
	ID        string    `db:"id"`
	Doc       []byte    `db:"doc"`
	CreatedAt time.Time `db:"created_at"`
}

func (r pgRow) decode(entity models.EntityType) (any, error) {
	var doc map[string]any
	if err := json.Unmarshal(r.Doc, &doc); err != nil {
		return nil, fmt.Errorf("row %s: %w", r.ID, err)
	}
	return models.DecodeRecord(entity, doc)
}

// Watch opens a live change stream: LISTEN first, then a full snapshot, so
// mutations racing the snapshot are re-delivered rather than lost.
func (p *Postgres) Watch(ctx context.Context, entity models.EntityType, scope Scope) (Subscription, error) {
	table, err := tableFor(entity)
	if err != nil {
		return nil, err
	}

	listener := pq.NewListener(p.dsn, listenerMinReconnect, listenerMaxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			p.logger.Warn("listener event",
				zap.String("entity", string(entity)),
				zap.Int("event", int(ev)),
				zap.Error(err))
		}
	})
	if err := listener.Listen(notifyChannelPrefix + table); err != nil {
		_ = listener.Close()
		return nil, apperrors.Wrap(err, "WATCH_FAILED", 503, "failed to open change listener")
	}

	sub := &pgSubscription{
		src:      p,
		entity:   entity,
		table:    table,
		scope:    scope,
		listener: listener,
		events:   make(chan models.ChangeEvent, p.eventBuffer),
		done:     make(chan struct{}),
	}
	go sub.run(ctx)
	return sub, nil
}

type pgSubscription struct {
	src      *Postgres
	entity   models.EntityType
	table    string
	scope    Scope
	listener *pq.Listener

	events chan models.ChangeEvent
	done   chan struct{}
	seq    uint64

	mu        sync.Mutex
	err       error
	closeOnce sync.Once
}

func (s *pgSubscription) Events() <-chan models.ChangeEvent { return s.events }

func (s *pgSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *pgSubscription) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *pgSubscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *pgSubscription) run(ctx context.Context) {
	defer close(s.events)
	defer func() { _ = s.listener.Close() }()

	if err := s.snapshot(ctx); err != nil {
		s.fail(err)
		return
	}
	if err := s.emit(ctx, models.ChangeEvent{Op: models.OpSnapshot, Entity: s.entity}); err != nil {
		s.fail(err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			s.fail(ctx.Err())
			return
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				s.fail(apperrors.ErrSubscriptionClosed)
				return
			}
			if n == nil {
				// Reconnect marker from pq; the stream may have gaps, so
				// surface it as a stream failure and let the caller resync.
				s.fail(apperrors.ErrSubscriptionClosed)
				return
			}
			if err := s.deliver(ctx, n.Extra); err != nil {
				s.fail(err)
				return
			}
		}
	}
}

func (s *pgSubscription) emit(ctx context.Context, ev models.ChangeEvent) error {
	s.seq++
	ev.Seq = s.seq
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return apperrors.ErrSubscriptionClosed
	case s.events <- ev:
		return nil
	}
}

func (s *pgSubscription) snapshot(ctx context.Context) error {
	args := []interface{}{}
	where, args := scopeWhere(s.scope, args)
	query := fmt.Sprintf("SELECT id, doc, created_at FROM %s", s.table)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at ASC, id ASC"

	var rows []pgRow
	if err := s.src.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return apperrors.Wrap(err, "WATCH_FAILED", 503, "snapshot query failed")
	}
	for _, row := range rows {
		record, err := row.decode(s.entity)
		if err != nil {
			s.src.logger.Warn("skipping undecodable document",
				zap.String("entity", string(s.entity)),
				zap.String("id", row.ID),
				zap.Error(err))
			continue
		}
		if err := s.emit(ctx, models.ChangeEvent{Op: models.OpAdd, Entity: s.entity, ID: row.ID, Record: record}); err != nil {
			return err
		}
	}
	return nil
}

// deliver handles one NOTIFY payload of the form "<op>:<id>".
func (s *pgSubscription) deliver(ctx context.Context, payload string) error {
	op, id, ok := strings.Cut(payload, ":")
	if !ok || id == "" {
		s.src.logger.Warn("malformed notify payload",
			zap.String("entity", string(s.entity)),
			zap.String("payload", payload))
		return nil
	}

	if models.ChangeOp(op) == models.OpRemove {
		return s.emit(ctx, models.ChangeEvent{Op: models.OpRemove, Entity: s.entity, ID: id})
	}

	args := []interface{}{id}
	where, args := scopeWhere(s.scope, args)
	query := fmt.Sprintf("SELECT id, doc, created_at FROM %s WHERE id = $1", s.table)
	if where != "" {
		query += " AND " + where
	}

	var row pgRow
	if err := s.src.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Row vanished or fell outside our scope between notify and
			// re-read. Treat as a remove so the mirror converges.
			return s.emit(ctx, models.ChangeEvent{Op: models.OpRemove, Entity: s.entity, ID: id})
		}
		return apperrors.Wrap(err, "WATCH_FAILED", 503, "change re-read failed")
	}

	record, err := row.decode(s.entity)
	if err != nil {
		s.src.logger.Warn("skipping undecodable document",
			zap.String("entity", string(s.entity)),
			zap.String("id", row.ID),
			zap.Error(err))
		return nil
	}
	return s.emit(ctx, models.ChangeEvent{Op: models.ChangeOp(op), Entity: s.entity, ID: id, Record: record})
}

func encodeCursor(createdAt time.Time, id string) Cursor {
	raw := createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
	return Cursor(base64.RawURLEncoding.EncodeToString([]byte(raw)))
}

func decodeCursor(c Cursor) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(string(c))
	if err != nil {
		return time.Time{}, "", apperrors.Clone(apperrors.ErrValidation, "invalid page cursor")
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return time.Time{}, "", apperrors.Clone(apperrors.ErrValidation, "invalid page cursor")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", apperrors.Clone(apperrors.ErrValidation, "invalid page cursor")
	}
	return createdAt, id, nil
}

// FetchPage reads one page newest-first using (created_at, id) keyset
// pagination. The cursor never leaves this package undecoded.
func (p *Postgres) FetchPage(ctx context.Context, q PageQuery) (PageResult, error) {
	table, err := tableFor(q.Entity)
	if err != nil {
		return PageResult{}, err
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}

	args := []interface{}{}
	where, args := scopeWhere(q.Scope, args)
	clauses := []string{}
	if where != "" {
		clauses = append(clauses, where)
	}
	if q.After != "" {
		createdAt, id, err := decodeCursor(q.After)
		if err != nil {
			return PageResult{}, err
		}
		args = append(args, createdAt, id)
		clauses = append(clauses, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	query := fmt.Sprintf("SELECT id, doc, created_at FROM %s", table)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, q.Limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	var rows []pgRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return PageResult{}, apperrors.Wrap(err, "FETCH_FAILED", 503, "page query failed")
	}

	hasMore := len(rows) > q.Limit
	if hasMore {
		rows = rows[:q.Limit]
	}

	result := PageResult{HasMore: hasMore, Records: make([]map[string]any, 0, len(rows))}
	for _, row := range rows {
		var doc map[string]any
		if err := json.Unmarshal(row.Doc, &doc); err != nil {
			p.logger.Warn("skipping undecodable document",
				zap.String("entity", string(q.Entity)),
				zap.String("id", row.ID),
				zap.Error(err))
			continue
		}
		result.Records = append(result.Records, doc)
	}
	if len(rows) > 0 {
		last := rows[len(rows)-1]
		result.Next = encodeCursor(last.CreatedAt, last.ID)
	}
	return result, nil
}

// Count returns the aggregate size of the scoped collection.
func (p *Postgres) Count(ctx context.Context, q CountQuery) (int, error) {
	table, err := tableFor(q.Entity)
	if err != nil {
		return 0, err
	}

	args := []interface{}{}
	where, args := scopeWhere(q.Scope, args)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if where != "" {
		query += " WHERE " + where
	}

	var count int
	if err := p.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, apperrors.Wrap(err, "COUNT_FAILED", 503, "count query failed")
	}
	return count, nil
}

// notify publishes the change on the entity's channel so that open watches
// pick it up without DB-side triggers.
func notify(ctx context.Context, tx *sqlx.Tx, table string, op models.ChangeOp, id string) error {
	_, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", notifyChannelPrefix+table, string(op)+":"+id)
	return err
}

// Put upserts a whole document.
func (p *Postgres) Put(ctx context.Context, entity models.EntityType, id string, doc map[string]any) error {
	table, err := tableFor(entity)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return apperrors.Wrap(err, "WRITE_FAILED", 500, "failed to encode document")
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, "WRITE_FAILED", 503, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// xmax = 0 distinguishes a fresh insert from a conflict update.
	query := fmt.Sprintf(`INSERT INTO %s (id, doc, created_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc RETURNING (xmax = 0)`, table)
	var inserted bool
	if err := tx.GetContext(ctx, &inserted, query, id, raw); err != nil {
		return apperrors.Wrap(err, "WRITE_FAILED", 503, "upsert failed")
	}
	op := models.OpModify
	if inserted {
		op = models.OpAdd
	}
	if err := notify(ctx, tx, table, op, id); err != nil {
		return apperrors.Wrap(err, "WRITE_FAILED", 503, "notify failed")
	}
	return tx.Commit()
}

// Patch merges fields into an existing document.
func (p *Postgres) Patch(ctx context.Context, entity models.EntityType, id string, fields map[string]any) error {
	table, err := tableFor(entity)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return apperrors.Wrap(err, "WRITE_FAILED", 500, "failed to encode patch")
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, "WRITE_FAILED", 503, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET doc = doc || $2::jsonb WHERE id = $1", table), id, raw)
	if err != nil {
		return apperrors.Wrap(err, "WRITE_FAILED", 503, "patch failed")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.ErrNotFound
	}
	if err := notify(ctx, tx, table, models.OpModify, id); err != nil {
		return apperrors.Wrap(err, "WRITE_FAILED", 503, "notify failed")
	}
	return tx.Commit()
}

// Increment atomically adds delta to a numeric document field.
func (p *Postgres) Increment(ctx context.Context, entity models.EntityType, id string, field string, delta int) error {
	table, err := tableFor(entity)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, "WRITE_FAILED", 503, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`UPDATE %s SET doc = jsonb_set(doc, $2,
		(COALESCE((doc->>$3)::int, 0) + $4)::text::jsonb) WHERE id = $1`, table)
	res, err := tx.ExecContext(ctx, query, id, pq.Array([]string{field}), field, delta)
	if err != nil {
		return apperrors.Wrap(err, "WRITE_FAILED", 503, "increment failed")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.ErrNotFound
	}
	if err := notify(ctx, tx, table, models.OpModify, id); err != nil {
		return apperrors.Wrap(err, "WRITE_FAILED", 503, "notify failed")
	}
	return tx.Commit()
}

// Delete removes a document.
func (p *Postgres) Delete(ctx context.Context, entity models.EntityType, id string) error {
	table, err := tableFor(entity)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, "WRITE_FAILED", 503, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return apperrors.Wrap(err, "WRITE_FAILED", 503, "delete failed")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.ErrNotFound
	}
	if err := notify(ctx, tx, table, models.OpRemove, id); err != nil {
		return apperrors.Wrap(err, "WRITE_FAILED", 503, "notify failed")
	}
	return tx.Commit()
}
