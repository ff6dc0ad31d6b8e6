package listing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojaerp/erp-console/internal/shared"
)

type fetchLog struct {
	mu      sync.Mutex
	queries []Query
}

func (l *fetchLog) record(q Query) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries = append(l.queries, q)
}

func (l *fetchLog) all() []Query {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Query(nil), l.queries...)
}

// pagedStrings serves total items named "item-N", honouring page and size.
func pagedStrings(log *fetchLog, total int) FetchFunc[string] {
	return func(_ context.Context, q Query) (shared.Page[string], error) {
		log.record(q)
		pages := (total + q.Size - 1) / q.Size
		var rows []string
		for i := q.Page * q.Size; i < total && i < (q.Page+1)*q.Size; i++ {
			rows = append(rows, fmt.Sprintf("item-%d", i))
		}
		return shared.Page[string]{Content: rows, TotalPages: pages, TotalElements: total}, nil
	}
}

func newStringController(t *testing.T, fetch FetchFunc[string], notifier shared.Notifier, delay time.Duration) *Controller[string, string] {
	t.Helper()
	c, err := New(Options[string, string]{Name: "test", Fetch: fetch, PageSize: 10, Debounce: delay, Notifier: notifier})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestLoadPopulatesSnapshotAndWindow(t *testing.T) {
	log := &fetchLog{}
	c := newStringController(t, pagedStrings(log, 95), nil, time.Millisecond)

	require.NoError(t, c.Load(context.Background()))
	require.NoError(t, c.SetPage(context.Background(), 4))

	snap := c.Snapshot()
	assert.Equal(t, 10, snap.TotalPages)
	assert.Equal(t, 95, snap.TotalElements)
	assert.Equal(t, "item-40", snap.Rows[0])
	assert.False(t, snap.Loading)
	assert.NoError(t, snap.Err)
	assert.Equal(t, "1 ... 4 [5] 6 ... 10", shared.FormatWindow(snap.Window, snap.Query.Page))
}

func TestSetPageClampsToLastPage(t *testing.T) {
	log := &fetchLog{}
	c := newStringController(t, pagedStrings(log, 25), nil, time.Millisecond)
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, c.SetPage(context.Background(), 12))
	assert.Equal(t, 2, c.Snapshot().Query.Page)

	require.NoError(t, c.NextPage(context.Background()))
	assert.Len(t, log.all(), 2)

	require.NoError(t, c.PrevPage(context.Background()))
	assert.Equal(t, 1, c.Snapshot().Query.Page)
}

func TestSearchBurstIssuesOneFetchOnFirstPage(t *testing.T) {
	log := &fetchLog{}
	c := newStringController(t, pagedStrings(log, 50), nil, 30*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.SetPage(ctx, 3))

	for _, text := range []string{"m", "ma", "mar", "mari", "maria"} {
		c.SetSearch(ctx, text)
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, "maria", c.Snapshot().SearchInput)

	require.Eventually(t, func() bool { return len(log.all()) == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	queries := log.all()
	require.Len(t, queries, 3)
	assert.Equal(t, "maria", queries[2].Search)
	assert.Equal(t, 0, queries[2].Page)
}

func TestSearchWithUnchangedTermDoesNotFetch(t *testing.T) {
	log := &fetchLog{}
	c := newStringController(t, pagedStrings(log, 5), nil, 10*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	c.SetSearch(ctx, "  ")
	time.Sleep(40 * time.Millisecond)

	assert.Len(t, log.all(), 1)
}

func TestFlushSearchAppliesPendingTerm(t *testing.T) {
	log := &fetchLog{}
	c := newStringController(t, pagedStrings(log, 5), nil, time.Hour)
	ctx := context.Background()

	c.SetSearch(ctx, "ana")
	require.NoError(t, c.FlushSearch(ctx))

	queries := log.all()
	require.Len(t, queries, 1)
	assert.Equal(t, "ana", queries[0].Search)
	assert.NoError(t, c.FlushSearch(ctx))
	assert.Len(t, log.all(), 1)
}

func TestFilterAndPageSizeResetPage(t *testing.T) {
	log := &fetchLog{}
	c := newStringController(t, pagedStrings(log, 100), nil, time.Millisecond)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.SetPage(ctx, 5))

	require.NoError(t, c.SetFilter(ctx, "categoria", "Papelaria"))
	require.NoError(t, c.SetPage(ctx, 2))
	require.NoError(t, c.SetPageSize(ctx, 25))
	require.NoError(t, c.ClearFilters(ctx))

	queries := log.all()
	require.Len(t, queries, 6)
	assert.Equal(t, 0, queries[2].Page)
	assert.Equal(t, "Papelaria", queries[2].Filters["categoria"])
	assert.Equal(t, 0, queries[4].Page)
	assert.Equal(t, 25, queries[4].Size)
	assert.Equal(t, 0, queries[5].Page)
	assert.Empty(t, queries[5].Filters)

	assert.Error(t, c.SetPageSize(ctx, 0))
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	fetch := func(ctx context.Context, q Query) (shared.Page[string], error) {
		if q.Page == 1 {
			close(started)
			<-release
			return shared.Page[string]{Content: []string{"slow"}, TotalPages: 3, TotalElements: 3}, nil
		}
		return shared.Page[string]{Content: []string{fmt.Sprintf("page-%d", q.Page)}, TotalPages: 3, TotalElements: 3}, nil
	}
	c := newStringController(t, fetch, nil, time.Millisecond)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	done := make(chan error, 1)
	go func() { done <- c.SetPage(ctx, 1) }()
	<-started
	require.NoError(t, c.SetPage(ctx, 2))
	close(release)
	require.NoError(t, <-done)

	snap := c.Snapshot()
	assert.Equal(t, []string{"page-2"}, snap.Rows)
	assert.Equal(t, 2, snap.Query.Page)
	assert.False(t, snap.Loading)
}

func TestFailureKeepsRowsAndNotifies(t *testing.T) {
	fail := atomic.Bool{}
	fetch := func(ctx context.Context, q Query) (shared.Page[string], error) {
		if fail.Load() {
			return shared.Page[string]{}, &shared.APIError{Kind: shared.ErrServerError, Status: 500, Message: "banco indisponível"}
		}
		return shared.Page[string]{Content: []string{"a", "b"}, TotalPages: 1, TotalElements: 2}, nil
	}
	notifier := &shared.RecordingNotifier{}
	c := newStringController(t, fetch, notifier, time.Millisecond)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	fail.Store(true)
	err := c.Refresh(ctx)
	require.ErrorIs(t, err, shared.ErrServerError)

	snap := c.Snapshot()
	assert.Equal(t, []string{"a", "b"}, snap.Rows)
	assert.False(t, snap.Loading)
	assert.ErrorIs(t, snap.Err, shared.ErrServerError)
	assert.Equal(t, []shared.Notice{{Kind: shared.NoticeError, Message: "banco indisponível"}}, notifier.Notices())

	fail.Store(false)
	require.NoError(t, c.Refresh(ctx))
	assert.NoError(t, c.Snapshot().Err)
}

func TestExpiredSessionFailureIsNotNotifiedTwice(t *testing.T) {
	fetch := func(ctx context.Context, q Query) (shared.Page[string], error) {
		return shared.Page[string]{}, &shared.APIError{Kind: shared.ErrSessionExpired, Status: 401}
	}
	notifier := &shared.RecordingNotifier{}
	c := newStringController(t, fetch, notifier, time.Millisecond)

	require.ErrorIs(t, c.Load(context.Background()), shared.ErrSessionExpired)
	assert.Empty(t, notifier.Notices())
}

func TestMutateRefetchesCurrentPage(t *testing.T) {
	log := &fetchLog{}
	c := newStringController(t, pagedStrings(log, 30), nil, time.Millisecond)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.SetPage(ctx, 2))

	require.NoError(t, c.Mutate(ctx, func(context.Context) error { return nil }))
	queries := log.all()
	require.Len(t, queries, 3)
	assert.Equal(t, 2, queries[2].Page)

	boom := errors.New("boom")
	require.ErrorIs(t, c.Mutate(ctx, func(context.Context) error { return boom }), boom)
	assert.Len(t, log.all(), 3)
}

func TestJoinTransformsRows(t *testing.T) {
	fetch := func(ctx context.Context, q Query) (shared.Page[int], error) {
		return shared.Page[int]{Content: []int{1, 2, 3}, TotalPages: 1, TotalElements: 3}, nil
	}
	c, err := New(Options[int, string]{
		Name:  "join",
		Fetch: fetch,
		Join: func(_ context.Context, rows []int) ([]string, error) {
			out := make([]string, 0, len(rows))
			for _, r := range rows {
				if r%2 == 0 {
					continue
				}
				out = append(out, fmt.Sprint(r))
			}
			return out, nil
		},
	})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, []string{"1", "3"}, c.Snapshot().Rows)
}

func TestNewRequiresJoinForDistinctRowTypes(t *testing.T) {
	_, err := New(Options[int, string]{Name: "x", Fetch: func(context.Context, Query) (shared.Page[int], error) {
		return shared.Page[int]{}, nil
	}})
	assert.Error(t, err)

	_, err = New(Options[int, int]{Name: "x"})
	assert.Error(t, err)
}

func TestOnChangeSeesLoadingThenResult(t *testing.T) {
	var mu sync.Mutex
	var seen []Snapshot[string]
	c, err := New(Options[string, string]{
		Name:  "observe",
		Fetch: pagedStrings(&fetchLog{}, 3),
		OnChange: func(s Snapshot[string]) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, s)
		},
	})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Load(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.True(t, seen[0].Loading)
	assert.False(t, seen[1].Loading)
	assert.Len(t, seen[1].Rows, 3)
}

func TestInitialQuerySeedsFirstFetch(t *testing.T) {
	log := &fetchLog{}
	c, err := New(Options[string, string]{
		Name:    "seeded",
		Fetch:   pagedStrings(log, 40),
		Page:    2,
		Search:  "  ana ",
		Filters: map[string]string{"categoria": "Papelaria"},
	})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Load(context.Background()))

	queries := log.all()
	require.Len(t, queries, 1)
	assert.Equal(t, Query{Page: 2, Size: DefaultPageSize, Search: "ana", Filters: map[string]string{"categoria": "Papelaria"}}, queries[0])
	assert.Equal(t, "ana", c.Snapshot().SearchInput)
}

func TestSearchAfterPauseIssuesSecondFetch(t *testing.T) {
	log := &fetchLog{}
	c := newStringController(t, pagedStrings(log, 50), nil, 20*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	c.SetSearch(ctx, "a")
	require.Eventually(t, func() bool { return len(log.all()) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	c.SetSearch(ctx, "ab")
	require.Eventually(t, func() bool { return len(log.all()) == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	queries := log.all()
	require.Len(t, queries, 3)
	assert.Equal(t, "a", queries[1].Search)
	assert.Equal(t, "ab", queries[2].Search)
}

func TestMutateReflectsShrunkTotals(t *testing.T) {
	var total atomic.Int32
	total.Store(21)
	log := &fetchLog{}
	fetch := func(ctx context.Context, q Query) (shared.Page[string], error) {
		return pagedStrings(log, int(total.Load()))(ctx, q)
	}
	c := newStringController(t, fetch, nil, time.Millisecond)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.SetPage(ctx, 2))

	snap := c.Snapshot()
	require.Equal(t, []string{"item-20"}, snap.Rows)
	require.Equal(t, 3, snap.TotalPages)

	require.NoError(t, c.Mutate(ctx, func(context.Context) error {
		total.Store(20)
		return nil
	}))

	snap = c.Snapshot()
	assert.Equal(t, 20, snap.TotalElements)
	assert.Equal(t, 2, snap.TotalPages)
	assert.Empty(t, snap.Rows)
	queries := log.all()
	assert.Equal(t, 2, queries[len(queries)-1].Page)
}

func TestFailedPageChangeKeepsAppliedPage(t *testing.T) {
	log := &fetchLog{}
	ok := pagedStrings(log, 25)
	fetch := func(ctx context.Context, q Query) (shared.Page[string], error) {
		if q.Page == 2 {
			log.record(q)
			return shared.Page[string]{}, &shared.APIError{Kind: shared.ErrServerError, Status: 500}
		}
		return ok(ctx, q)
	}
	notifier := &shared.RecordingNotifier{}
	c := newStringController(t, fetch, notifier, time.Millisecond)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	require.ErrorIs(t, c.SetPage(ctx, 2), shared.ErrServerError)

	snap := c.Snapshot()
	assert.Equal(t, 0, snap.Query.Page)
	assert.Equal(t, "item-0", snap.Rows[0])
	assert.Equal(t, "[1] 2 3", shared.FormatWindow(snap.Window, snap.Query.Page))
	assert.Equal(t, 1, notifier.Count(shared.NoticeError))

	require.NoError(t, c.NextPage(ctx))
	queries := log.all()
	assert.Equal(t, 1, queries[len(queries)-1].Page)
	assert.Equal(t, "item-10", c.Snapshot().Rows[0])
}

func TestCloseWaitsForRunningSearch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var fetches atomic.Int32
	fetch := func(ctx context.Context, q Query) (shared.Page[string], error) {
		if fetches.Add(1) == 2 {
			close(started)
			<-release
		}
		return shared.Page[string]{Content: []string{q.Search}, TotalPages: 1, TotalElements: 1}, nil
	}
	c, err := New(Options[string, string]{Name: "close", Fetch: fetch, Debounce: 5 * time.Millisecond})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	c.SetSearch(ctx, "ana")
	<-started

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned while a search fetch was running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	require.Eventually(t, func() bool {
		select {
		case <-closed:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"ana"}, c.Snapshot().Rows)
}
