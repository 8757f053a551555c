// Package feed implements cursor-backed page navigation over a remotely
// ordered list. Pages are addressed by number; the pager tracks the opaque
// cursor boundary of every page it has fetched so earlier pages stay
// reachable without re-walking.
package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/uniqn-app/staffsync/internal/models"
	"github.com/uniqn-app/staffsync/internal/source"
	apperrors "github.com/uniqn-app/staffsync/pkg/errors"
)

// FetchFunc reads one page after the given cursor.
type FetchFunc[T any] func(ctx context.Context, after source.Cursor, limit int) (items []T, next source.Cursor, hasMore bool, err error)

// CountFunc returns the aggregate size of the underlying list under the
// same predicate the fetch applies.
type CountFunc func(ctx context.Context) (int, error)

// FilterFunc drops items after fetch. A page may come back smaller than
// the page size because of it; totals still come from CountFunc.
type FilterFunc[T any] func(T) bool

// Page is one fetched, filtered page.
type Page[T any] struct {
	Items      []T
	Pagination models.Pagination
	HasMore    bool
}

// Pager walks a cursor-paged list by page number. Jumping more than one
// page past the highest fetched page is not possible without the cursors
// in between; that returns ErrPageUnavailable and the caller restarts
// from page one.
type Pager[T any] struct {
	fetch    FetchFunc[T]
	count    CountFunc
	filter   FilterFunc[T]
	pageSize int
	logger   *zap.Logger

	mu         sync.Mutex
	boundaries []source.Cursor
}

// NewPager wires a pager. filter and logger may be nil.
func NewPager[T any](fetch FetchFunc[T], count CountFunc, pageSize int, filter FilterFunc[T], logger *zap.Logger) *Pager[T] {
	if pageSize <= 0 {
		pageSize = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pager[T]{
		fetch:    fetch,
		count:    count,
		filter:   filter,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Page fetches page n (1-based).
func (p *Pager[T]) Page(ctx context.Context, n int) (Page[T], error) {
	if n < 1 {
		return Page[T]{}, apperrors.Clone(apperrors.ErrValidation, "page must be >= 1")
	}

	p.mu.Lock()
	fetched := len(p.boundaries)
	if n > fetched+1 {
		p.mu.Unlock()
		p.logger.Debug("page beyond known cursors",
			zap.Int("requested", n),
			zap.Int("fetched", fetched))
		return Page[T]{}, apperrors.ErrPageUnavailable
	}
	var after source.Cursor
	if n > 1 {
		after = p.boundaries[n-2]
	}
	p.mu.Unlock()

	items, next, hasMore, err := p.fetch(ctx, after, p.pageSize)
	if err != nil {
		return Page[T]{}, err
	}

	p.mu.Lock()
	if n-1 < len(p.boundaries) {
		// Refetching an earlier page invalidates later boundaries: the
		// list may have shifted underneath them.
		p.boundaries = p.boundaries[:n-1]
	}
	// An empty page gets no boundary; its cursor is the zero value and
	// recording it would alias the page after it to page one.
	if len(items) > 0 {
		p.boundaries = append(p.boundaries, next)
	}
	p.mu.Unlock()

	if p.filter != nil {
		kept := items[:0:0]
		for _, item := range items {
			if p.filter(item) {
				kept = append(kept, item)
			}
		}
		items = kept
	}

	total := 0
	if p.count != nil {
		total, err = p.count(ctx)
		if err != nil {
			return Page[T]{}, err
		}
	}

	return Page[T]{
		Items:      items,
		Pagination: models.NewPagination(n, p.pageSize, total),
		HasMore:    hasMore,
	}, nil
}

// Reset drops every recorded cursor, e.g. when the filter predicate or
// underlying scope changes.
func (p *Pager[T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.boundaries = nil
}
