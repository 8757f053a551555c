// Package source defines the boundary to the backing document store. The
// engine only ever talks to these interfaces; the Postgres implementation
// and the in-memory fake are interchangeable behind them.
package source

import (
	"context"

	"github.com/uniqn-app/staffsync/internal/models"
)

// Scope restricts a watch or query to the rows an identity may see.
// Equals entries are ANDed together against top-level document fields.
// A zero Scope matches everything.
type Scope struct {
	Equals map[string]string
}

// Cursor is an opaque paging token. Callers hold it and pass it back; they
// never inspect it. The zero value means "start from the beginning".
type Cursor string

// PageQuery asks for one page of documents in the store's canonical order
// (newest first).
type PageQuery struct {
	Entity models.EntityType
	Scope  Scope
	After  Cursor
	Limit  int
}

// PageResult is one fetched page. Next is the boundary cursor to resume
// from; HasMore is false when the store is exhausted.
type PageResult struct {
	Records []map[string]any
	Next    Cursor
	HasMore bool
}

// CountQuery asks for the aggregate size of a scoped collection without
// fetching documents.
type CountQuery struct {
	Entity models.EntityType
	Scope  Scope
}

// Subscription is a live change stream for one entity type. Events is
// closed after Close returns or when the stream fails; a failed stream
// delivers its error through Err.
type Subscription interface {
	Events() <-chan models.ChangeEvent
	Err() error
	Close()
}

// Source is the read side of the document store.
type Source interface {
	// Watch opens a change stream: an initial snapshot of every matching
	// document (as add events), an OpSnapshot marker once the snapshot is
	// complete, then live deltas, in order.
	Watch(ctx context.Context, entity models.EntityType, scope Scope) (Subscription, error)
	FetchPage(ctx context.Context, q PageQuery) (PageResult, error)
	Count(ctx context.Context, q CountQuery) (int, error)
}

// Writer is the admin-facing write side. Engine components never write;
// only operator workflows (announcement management) do.
type Writer interface {
	Put(ctx context.Context, entity models.EntityType, id string, doc map[string]any) error
	Patch(ctx context.Context, entity models.EntityType, id string, fields map[string]any) error
	Delete(ctx context.Context, entity models.EntityType, id string) error
	// Increment atomically adds delta to a numeric document field.
	Increment(ctx context.Context, entity models.EntityType, id string, field string, delta int) error
}
