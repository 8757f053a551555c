package feed

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniqn-app/staffsync/internal/source"
	apperrors "github.com/uniqn-app/staffsync/pkg/errors"
)

// sliceFetcher pages over a fixed slice with integer cursors, mimicking
// the opaque tokens the real source hands out.
func sliceFetcher(docs []string) (FetchFunc[string], CountFunc) {
	fetch := func(ctx context.Context, after source.Cursor, limit int) ([]string, source.Cursor, bool, error) {
		start := 0
		if after != "" {
			n, err := strconv.Atoi(string(after))
			if err != nil {
				return nil, "", false, fmt.Errorf("bad cursor %q", after)
			}
			start = n
		}
		end := start + limit
		if end > len(docs) {
			end = len(docs)
		}
		return docs[start:end], source.Cursor(strconv.Itoa(end)), end < len(docs), nil
	}
	count := func(ctx context.Context) (int, error) { return len(docs), nil }
	return fetch, count
}

func docs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("doc-%02d", i)
	}
	return out
}

func TestPagerWalksForward(t *testing.T) {
	fetch, count := sliceFetcher(docs(25))
	pager := NewPager(fetch, count, 10, nil, nil)
	ctx := context.Background()

	first, err := pager.Page(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first.Items, 10)
	assert.True(t, first.HasMore)
	assert.Equal(t, 25, first.Pagination.TotalCount)
	assert.Equal(t, 3, first.Pagination.TotalPages)

	second, err := pager.Page(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "doc-10", second.Items[0])

	third, err := pager.Page(ctx, 3)
	require.NoError(t, err)
	require.Len(t, third.Items, 5)
	assert.False(t, third.HasMore)
}

func TestPagerRevisitsEarlierPages(t *testing.T) {
	fetch, count := sliceFetcher(docs(25))
	pager := NewPager(fetch, count, 10, nil, nil)
	ctx := context.Background()

	_, err := pager.Page(ctx, 1)
	require.NoError(t, err)
	_, err = pager.Page(ctx, 2)
	require.NoError(t, err)

	again, err := pager.Page(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "doc-00", again.Items[0])

	// Page 2 is still reachable after revisiting page 1.
	second, err := pager.Page(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "doc-10", second.Items[0])
}

func TestPagerJumpAheadUnavailable(t *testing.T) {
	fetch, count := sliceFetcher(docs(25))
	pager := NewPager(fetch, count, 10, nil, nil)
	ctx := context.Background()

	_, err := pager.Page(ctx, 3)
	require.ErrorIs(t, err, apperrors.ErrPageUnavailable)

	// The documented recovery: restart from page one and walk forward.
	_, err = pager.Page(ctx, 1)
	require.NoError(t, err)
	_, err = pager.Page(ctx, 2)
	require.NoError(t, err)
	third, err := pager.Page(ctx, 3)
	require.NoError(t, err)
	require.Len(t, third.Items, 5)
}

func TestPagerEmptyPageRecordsNoBoundary(t *testing.T) {
	fetch, count := sliceFetcher(docs(10))
	pager := NewPager(fetch, count, 10, nil, nil)
	ctx := context.Background()

	first, err := pager.Page(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first.Items, 10)
	assert.False(t, first.HasMore)

	// The list ends exactly on the page boundary; page two comes back
	// empty and must not extend the cursor trail.
	second, err := pager.Page(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, second.Items)

	_, err = pager.Page(ctx, 3)
	require.ErrorIs(t, err, apperrors.ErrPageUnavailable)

	// Refetching the empty page never aliases back to the beginning.
	again, err := pager.Page(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, again.Items)
}

func TestPagerRejectsZeroPage(t *testing.T) {
	fetch, count := sliceFetcher(docs(5))
	pager := NewPager(fetch, count, 10, nil, nil)

	_, err := pager.Page(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrValidation.Code, apperrors.FromError(err).Code)
}

func TestPagerPostFetchFilterShrinksPage(t *testing.T) {
	fetch, count := sliceFetcher(docs(10))
	visible := func(item string) bool { return item != "doc-03" && item != "doc-07" }
	pager := NewPager(fetch, count, 10, visible, nil)

	page, err := pager.Page(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, page.Items, 8)
	// Totals come from the aggregate count, never from locally counting
	// the filtered page.
	assert.Equal(t, 10, page.Pagination.TotalCount)
}

func TestPagerReset(t *testing.T) {
	fetch, count := sliceFetcher(docs(25))
	pager := NewPager(fetch, count, 10, nil, nil)
	ctx := context.Background()

	_, err := pager.Page(ctx, 1)
	require.NoError(t, err)
	_, err = pager.Page(ctx, 2)
	require.NoError(t, err)

	pager.Reset()
	_, err = pager.Page(ctx, 2)
	require.ErrorIs(t, err, apperrors.ErrPageUnavailable)
}
