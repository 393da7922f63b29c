// Package sites owns the loaded site dataset and the query-derived views
// shown by the viewer.
//
// The collection keeps two views over the dataset. With an empty query,
// Filtered holds every site and Searched is empty. With a query, both views
// hold the same matching sites: they are two names for one result set.
package sites

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/site-viewer/internal/core/model"
	"github.com/mohammed-shakir/site-viewer/internal/core/observability"
	"github.com/mohammed-shakir/site-viewer/internal/messagebus"
	"github.com/mohammed-shakir/site-viewer/internal/search"
)

var (
	// ErrAlreadyLoaded is returned by a second call to Load.
	ErrAlreadyLoaded = errors.New("sites: load already attempted")
	// ErrNotReady is returned by Wait when the context ends before the load.
	ErrNotReady = errors.New("sites: dataset not loaded")
)

// Source fetches the full site dataset.
type Source interface {
	Fetch(ctx context.Context) ([]model.Site, error)
}

// Publisher receives collection notifications.
type Publisher interface {
	Publish(ev messagebus.Event)
}

type Options struct {
	Search search.Options
	// QueryCacheSize bounds the cache of evaluated queries; 0 disables it.
	QueryCacheSize int
	// OnChange runs after every notification round, e.g. to refresh
	// dependents that read the views out of band.
	OnChange func()
}

type Collection struct {
	source Source
	bus    Publisher
	logger *slog.Logger
	opts   Options

	loading atomic.Bool
	ready   chan struct{}
	loadErr error

	mu       sync.RWMutex
	all      []model.Site
	index    *search.Index
	cache    *lru.Cache[string, []int]
	query    string
	filtered []model.Site
	searched []model.Site
}

func New(source Source, bus Publisher, logger *slog.Logger, opts Options) *Collection {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Collection{
		source:   source,
		bus:      bus,
		logger:   logger,
		opts:     opts,
		ready:    make(chan struct{}),
		index:    search.NewIndex(nil),
		all:      []model.Site{},
		filtered: []model.Site{},
		searched: []model.Site{},
	}
	if opts.QueryCacheSize > 0 {
		c.cache, _ = lru.New[string, []int](opts.QueryCacheSize)
	}
	return c
}

// Load fetches the dataset once. It resolves Ready on success and on
// failure; failures are not retried. Any later call returns
// ErrAlreadyLoaded at once, even while the first fetch is running.
func (c *Collection) Load(ctx context.Context) error {
	if !c.loading.CompareAndSwap(false, true) {
		return ErrAlreadyLoaded
	}
	return c.load(ctx)
}

func (c *Collection) load(ctx context.Context) error {
	start := time.Now()
	data, err := c.source.Fetch(ctx)
	observability.ObserveSitesLoad(len(data), err)
	if err != nil {
		c.loadErr = fmt.Errorf("load sites: %w", err)
		close(c.ready)
		c.logger.ErrorContext(ctx, "sites load failed", "err", err, "duration", time.Since(start))
		return c.loadErr
	}

	if data == nil {
		data = []model.Site{}
	}
	c.mu.Lock()
	c.all = data
	c.index = search.NewIndex(data)
	if c.cache != nil {
		c.cache.Purge()
	}
	c.filtered = data
	c.searched = []model.Site{}
	if c.query != "" {
		c.applyLocked(c.query)
	}
	c.mu.Unlock()

	close(c.ready)
	c.logger.InfoContext(ctx, "sites loaded", "count", len(data), "duration", time.Since(start))
	c.notify()
	return nil
}

// Ready is closed once Load finished, successfully or not.
func (c *Collection) Ready() <-chan struct{} { return c.ready }

// Wait blocks until the dataset is loaded and returns all sites or the load
// error.
func (c *Collection) Wait(ctx context.Context) ([]model.Site, error) {
	select {
	case <-c.ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
	}
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	return c.All(), nil
}

// Readiness reports whether the dataset is available and, if the load
// failed, why.
func (c *Collection) Readiness() (bool, error) {
	select {
	case <-c.ready:
		return c.loadErr == nil, c.loadErr
	default:
		return false, nil
	}
}

// GetByID returns the first site with the given id.
func (c *Collection) GetByID(id int) (model.Site, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.all {
		if s.ID == id {
			return s, true
		}
	}
	return model.Site{}, false
}

func (c *Collection) Query() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.query
}

// SetQuery replaces the views and notifies subscribers. Assigning the
// current query is a no-op. Subscribers run on the calling goroutine after
// the views are swapped; one that assigns a new query must stop recursing
// itself.
func (c *Collection) SetQuery(q string) {
	c.mu.Lock()
	if c.query == q {
		c.mu.Unlock()
		return
	}
	c.query = q
	c.applyLocked(q)
	c.mu.Unlock()

	c.notify()
}

func (c *Collection) SelectSite(site model.Site) {
	c.SetQuery("site:" + strconv.Itoa(site.ID))
}

func (c *Collection) ClearSiteSelection() {
	c.SetQuery("")
}

func (c *Collection) applyLocked(q string) {
	if q == "" {
		c.filtered = c.all
		c.searched = []model.Site{}
		observability.ObserveQuery("empty", 0, 0)
		return
	}

	matched := c.evaluate(q)
	c.filtered = matched
	c.searched = matched
	c.logger.Debug("query applied", "query", q, "results", len(matched))
}

// evaluate runs q against the dataset; requires c.mu.
func (c *Collection) evaluate(q string) []model.Site {
	start := time.Now()
	if c.cache != nil {
		if pos, ok := c.cache.Get(q); ok {
			observability.IncCacheHit("query")
			return search.Pick(c.all, pos)
		}
		observability.IncCacheMiss("query")
	}

	compiled := search.Compile(q, c.opts.Search)
	pos := c.index.Match(compiled)
	if c.cache != nil {
		c.cache.Add(q, pos)
	}

	kind := "filter"
	if compiled.Literal() && !c.opts.Search.Literal {
		kind = "literal"
	}
	observability.ObserveQuery(kind, len(pos), time.Since(start).Seconds())
	return search.Pick(c.all, pos)
}

// View is a consistent snapshot of the query and both views.
type View struct {
	Query    string
	Filtered []model.Site
	Searched []model.Site
}

func (c *Collection) Snapshot() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return View{
		Query:    c.query,
		Filtered: slices.Clone(c.filtered),
		Searched: slices.Clone(c.searched),
	}
}

// Evaluate computes the views for q without changing the collection.
func (c *Collection) Evaluate(q string) View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if q == "" {
		return View{Filtered: slices.Clone(c.all), Searched: []model.Site{}}
	}
	matched := c.evaluate(q)
	return View{Query: q, Filtered: matched, Searched: matched}
}

func (c *Collection) All() []model.Site {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.all)
}

func (c *Collection) Filtered() []model.Site {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.filtered)
}

func (c *Collection) Searched() []model.Site {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.searched)
}

func (c *Collection) notify() {
	c.mu.RLock()
	q := c.query
	var single *model.Site
	if len(c.searched) == 1 {
		s := c.searched[0]
		single = &s
	}
	c.mu.RUnlock()

	if c.bus != nil {
		c.bus.Publish(messagebus.Event{Topic: messagebus.TopicSitesChanged, Query: q})
		observability.IncNotification(messagebus.TopicSitesChanged)
		if single != nil {
			c.bus.Publish(messagebus.Event{Topic: messagebus.TopicSingleSite, Query: q, Site: single})
			observability.IncNotification(messagebus.TopicSingleSite)
		}
	}
	if c.opts.OnChange != nil {
		c.opts.OnChange()
	}
}
