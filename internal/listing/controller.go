// Package listing drives paginated, searchable, filterable lists over the
// backend's list endpoints.
package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/lojaerp/erp-console/internal/shared"
)

const (
	// DefaultPageSize is used when Options.PageSize is not set.
	DefaultPageSize = 10
	// DefaultDebounce is the quiet period before a search is applied.
	DefaultDebounce = 500 * time.Millisecond
)

// JoinPolicy decides what happens to a row whose related record is missing.
type JoinPolicy int

const (
	// JoinDrop removes the row.
	JoinDrop JoinPolicy = iota
	// JoinPlaceholder keeps the row with a placeholder label.
	JoinPlaceholder
)

// Query is the server-side selection of one list page.
type Query struct {
	Page    int
	Size    int
	Search  string
	Filters map[string]string
}

func (q Query) clone() Query {
	q.Filters = maps.Clone(q.Filters)
	return q
}

// FetchFunc loads one page for q.
type FetchFunc[T any] func(ctx context.Context, q Query) (shared.Page[T], error)

// JoinFunc turns fetched rows into display rows.
type JoinFunc[T, R any] func(ctx context.Context, rows []T) ([]R, error)

// Snapshot is the observable state of a Controller.
type Snapshot[R any] struct {
	Rows          []R
	TotalPages    int
	TotalElements int
	Query         Query
	SearchInput   string
	Loading       bool
	Err           error
	Window        []shared.PageToken
}

// Options configures a Controller.
type Options[T, R any] struct {
	Name       string
	Fetch      FetchFunc[T]
	Join       JoinFunc[T, R]
	PageSize   int
	Debounce   time.Duration
	MaxVisible int
	// Page, Search and Filters seed the first query.
	Page       int
	Search     string
	Filters    map[string]string
	Notifier   shared.Notifier
	Logger     *slog.Logger
	OnChange   func(Snapshot[R])
}

// Controller owns one list's query, rows and totals. Each fetch is tagged
// with a generation and only the response of the latest generation is
// applied, so a slow earlier response never overwrites a newer one.
type Controller[T, R any] struct {
	name       string
	fetch      FetchFunc[T]
	join       JoinFunc[T, R]
	maxVisible int
	notifier   shared.Notifier
	logger     *slog.Logger
	onChange   func(Snapshot[R])
	debouncer  *Debouncer

	mu            sync.Mutex
	query         Query
	applied       *Query
	searchInput   string
	rows          []R
	totalPages    int
	totalElements int
	loading       bool
	err           error
	gen           uint64

	emitMu sync.Mutex
}

// New constructs a Controller. Join may be nil only when T and R are the
// same type.
func New[T, R any](opts Options[T, R]) (*Controller[T, R], error) {
	if opts.Fetch == nil {
		return nil, errors.New("listing: fetch function is required")
	}
	join := opts.Join
	if join == nil {
		if _, ok := any([]T(nil)).([]R); !ok {
			return nil, fmt.Errorf("listing: %s: join function is required", opts.Name)
		}
		join = func(_ context.Context, rows []T) ([]R, error) {
			return any(rows).([]R), nil
		}
	}
	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	delay := opts.Debounce
	if delay == 0 {
		delay = DefaultDebounce
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = shared.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	filters := maps.Clone(opts.Filters)
	if filters == nil {
		filters = map[string]string{}
	}
	page := opts.Page
	if page < 0 {
		page = 0
	}
	search := strings.TrimSpace(opts.Search)
	return &Controller[T, R]{
		name:        opts.Name,
		fetch:       opts.Fetch,
		join:        join,
		maxVisible:  opts.MaxVisible,
		notifier:    notifier,
		logger:      logger.With(slog.String("list", opts.Name)),
		onChange:    opts.OnChange,
		debouncer:   NewDebouncer(delay),
		query:       Query{Page: page, Size: size, Search: search, Filters: filters},
		searchInput: search,
		rows:        []R{},
	}, nil
}

// Load issues the initial fetch.
func (c *Controller[T, R]) Load(ctx context.Context) error {
	return c.run(ctx)
}

// SetSearch records the raw search text and re-arms the debounce timer.
// When the timer fires with a value different from the applied search, the
// page is reset to 0 and exactly one fetch is issued.
func (c *Controller[T, R]) SetSearch(ctx context.Context, text string) {
	c.mu.Lock()
	c.searchInput = text
	c.mu.Unlock()
	c.emit()

	c.debouncer.Trigger(func() {
		c.mu.Lock()
		term := strings.TrimSpace(c.searchInput)
		if term == c.query.Search {
			c.mu.Unlock()
			return
		}
		c.query.Search = term
		c.query.Page = 0
		c.mu.Unlock()
		_ = c.run(ctx)
	})
}

// FlushSearch applies a pending search immediately.
func (c *Controller[T, R]) FlushSearch(ctx context.Context) error {
	if !c.debouncer.Pending() {
		return nil
	}
	c.debouncer.Cancel()
	c.mu.Lock()
	term := strings.TrimSpace(c.searchInput)
	if term == c.query.Search {
		c.mu.Unlock()
		return nil
	}
	c.query.Search = term
	c.query.Page = 0
	c.mu.Unlock()
	return c.run(ctx)
}

// SetPage moves to page n (0-based) and fetches it.
func (c *Controller[T, R]) SetPage(ctx context.Context, n int) error {
	if n < 0 {
		n = 0
	}
	c.mu.Lock()
	if total := c.totalPages; total > 0 && n > total-1 {
		n = total - 1
	}
	c.query.Page = n
	c.mu.Unlock()
	return c.run(ctx)
}

// NextPage advances one page when there is one.
func (c *Controller[T, R]) NextPage(ctx context.Context) error {
	c.mu.Lock()
	page, total := c.query.Page, c.totalPages
	c.mu.Unlock()
	if page+1 >= total {
		return nil
	}
	return c.SetPage(ctx, page+1)
}

// PrevPage goes back one page when not on the first.
func (c *Controller[T, R]) PrevPage(ctx context.Context) error {
	c.mu.Lock()
	page := c.query.Page
	c.mu.Unlock()
	if page == 0 {
		return nil
	}
	return c.SetPage(ctx, page-1)
}

// SetPageSize changes the page size and returns to the first page.
func (c *Controller[T, R]) SetPageSize(ctx context.Context, size int) error {
	if size <= 0 {
		return fmt.Errorf("listing: %s: page size must be positive", c.name)
	}
	c.mu.Lock()
	c.query.Size = size
	c.query.Page = 0
	c.mu.Unlock()
	return c.run(ctx)
}

// SetFilter sets one filter and returns to the first page. An empty value
// removes the filter.
func (c *Controller[T, R]) SetFilter(ctx context.Context, key, value string) error {
	c.mu.Lock()
	if value == "" {
		delete(c.query.Filters, key)
	} else {
		c.query.Filters[key] = value
	}
	c.query.Page = 0
	c.mu.Unlock()
	return c.run(ctx)
}

// SetFilters applies several filters with a single fetch. Empty values
// remove their filter.
func (c *Controller[T, R]) SetFilters(ctx context.Context, filters map[string]string) error {
	c.mu.Lock()
	for key, value := range filters {
		if value == "" {
			delete(c.query.Filters, key)
			continue
		}
		c.query.Filters[key] = value
	}
	c.query.Page = 0
	c.mu.Unlock()
	return c.run(ctx)
}

// ClearFilters removes every filter and returns to the first page.
func (c *Controller[T, R]) ClearFilters(ctx context.Context) error {
	c.mu.Lock()
	clear(c.query.Filters)
	c.query.Page = 0
	c.mu.Unlock()
	return c.run(ctx)
}

// Refresh re-runs the current query.
func (c *Controller[T, R]) Refresh(ctx context.Context) error {
	return c.run(ctx)
}

// Mutate runs a create, update or delete and then refetches the current
// page. Rows are never patched locally.
func (c *Controller[T, R]) Mutate(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return c.Refresh(ctx)
}

// Snapshot returns the current state.
func (c *Controller[T, R]) Snapshot() Snapshot[R] {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := make([]R, len(c.rows))
	copy(rows, c.rows)
	return Snapshot[R]{
		Rows:          rows,
		TotalPages:    c.totalPages,
		TotalElements: c.totalElements,
		Query:         c.query.clone(),
		SearchInput:   c.searchInput,
		Loading:       c.loading,
		Err:           c.err,
		Window:        shared.PageWindow(c.query.Page, c.totalPages, c.maxVisible),
	}
}

// Close cancels a pending search and waits for one already running.
func (c *Controller[T, R]) Close() {
	c.debouncer.Stop()
}

func (c *Controller[T, R]) run(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	q := c.query.clone()
	c.loading = true
	c.mu.Unlock()
	c.emit()

	page, err := c.fetch(ctx, q)
	var rows []R
	if err == nil {
		rows, err = c.join(ctx, page.Content)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug("stale list response discarded", slog.Uint64("generation", gen), slog.Int("page", q.Page))
		return nil
	}
	c.loading = false
	if err != nil {
		c.err = err
		// rows still belong to the last applied query
		if c.applied != nil {
			c.query = c.applied.clone()
		}
		c.mu.Unlock()
		c.report(ctx, err)
		c.emit()
		return err
	}
	if rows == nil {
		rows = []R{}
	}
	c.rows = rows
	c.applied = &q
	c.totalPages = page.TotalPages
	c.totalElements = page.TotalElements
	c.err = nil
	c.mu.Unlock()
	c.emit()
	return nil
}

func (c *Controller[T, R]) report(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, shared.ErrSessionExpired) {
		return
	}
	c.logger.Warn("list fetch failed", slog.Any("error", err))
	msg := "Erro ao carregar dados"
	var apiErr *shared.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	c.notifier.Notify(ctx, shared.Notice{Kind: shared.NoticeError, Message: msg})
}

func (c *Controller[T, R]) emit() {
	if c.onChange == nil {
		return
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.onChange(c.Snapshot())
}

// Resolve looks key up in index. A missing record yields placeholder under
// JoinPlaceholder; under JoinDrop ok is false and the row should be skipped.
func Resolve[K comparable, V any](index map[K]V, key K, policy JoinPolicy, placeholder V) (v V, ok bool) {
	if v, found := index[key]; found {
		return v, true
	}
	if policy == JoinPlaceholder {
		return placeholder, true
	}
	var zero V
	return zero, false
}
