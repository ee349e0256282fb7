// Package aggregate couples the normalizer with the health registry: it
// gates every fetch through the per-source breaker, feeds outcomes back,
// and shapes the merged result set for callers.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ppiankov/feedsentinel/internal/feed"
	"github.com/ppiankov/feedsentinel/internal/health"
)

// ErrCircuitOpen reports a request rejected by the source's breaker. This
// is an expected gating outcome, not a fetch failure; it is never recorded
// against the source.
var ErrCircuitOpen = errors.New("circuit open, request rejected")

const defaultMaxConcurrent = 10

// Query narrows and bounds a merged fetch result.
type Query struct {
	Search string // case-insensitive substring over title/description/content
	Limit  int    // maximum items returned; 0 means no limit
}

// Aggregator fans fetches out across sources. Each source's fetch is
// independent, so one broken source never starves requests to the others.
type Aggregator struct {
	registry      *health.Registry
	normalizer    *feed.Normalizer
	maxConcurrent int
}

// New wires a registry and normalizer together. maxConcurrent bounds the
// fan-out worker pool; non-positive values fall back to the default.
func New(registry *health.Registry, normalizer *feed.Normalizer, maxConcurrent int) *Aggregator {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &Aggregator{
		registry:      registry,
		normalizer:    normalizer,
		maxConcurrent: maxConcurrent,
	}
}

// FetchSource fetches and normalizes one source, reporting the outcome to
// the health registry. A breaker rejection returns ErrCircuitOpen without
// touching the source.
func (a *Aggregator) FetchSource(ctx context.Context, src feed.Source) ([]feed.NewsItem, error) {
	if !a.registry.CanRequest(src.ID) {
		return nil, fmt.Errorf("%s: %w", src.ID, ErrCircuitOpen)
	}

	res, latency, err := a.normalizer.FetchAndParse(ctx, src)
	if err != nil {
		a.registry.RecordFailure(src.ID, err.Error())
		return nil, err
	}
	if !res.Success {
		a.registry.RecordFailure(src.ID, res.Error)
		return nil, fmt.Errorf("%s: %s", src.ID, res.Error)
	}

	a.registry.RecordSuccess(src.ID, latency)
	return res.Items, nil
}

// FetchAll fetches every enabled source concurrently, merges the results,
// and applies the query. Per-source failures and breaker rejections skip
// that source's items without affecting the rest.
func (a *Aggregator) FetchAll(ctx context.Context, sources []feed.Source, q Query) []feed.NewsItem {
	type result struct {
		items []feed.NewsItem
		err   error
		id    string
	}

	enabled := make([]feed.Source, 0, len(sources))
	for _, src := range sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}

	jobs := make(chan feed.Source, len(enabled))
	results := make(chan result, len(enabled))

	workers := a.maxConcurrent
	if len(enabled) < workers {
		workers = len(enabled)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range jobs {
				items, err := a.FetchSource(ctx, src)
				results <- result{items: items, err: err, id: src.ID}
			}
		}()
	}

	for _, src := range enabled {
		jobs <- src
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var items []feed.NewsItem
	for r := range results {
		if r.err != nil {
			if !errors.Is(r.err, ErrCircuitOpen) {
				fmt.Printf("  fetch: %s: %v\n", r.id, r.err)
			}
			continue
		}
		items = append(items, r.items...)
	}

	return Apply(items, q)
}

// Apply filters, orders, and truncates items per the query. Ordering is by
// publication time descending; items with no publish date sort last.
func Apply(items []feed.NewsItem, q Query) []feed.NewsItem {
	items = filterItems(items, q.Search)
	sortItems(items)
	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}
	return items
}

func filterItems(items []feed.NewsItem, search string) []feed.NewsItem {
	search = strings.TrimSpace(search)
	if search == "" {
		return items
	}
	needle := strings.ToLower(search)

	out := make([]feed.NewsItem, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Title), needle) ||
			strings.Contains(strings.ToLower(it.Description), needle) ||
			strings.Contains(strings.ToLower(it.Content), needle) {
			out = append(out, it)
		}
	}
	return out
}

func sortItems(items []feed.NewsItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := items[i].PublishedAt, items[j].PublishedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
}
