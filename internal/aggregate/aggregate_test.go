package aggregate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/feedsentinel/internal/breaker"
	"github.com/ppiankov/feedsentinel/internal/feed"
	"github.com/ppiankov/feedsentinel/internal/health"
)

const feedBody = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <item>
      <title>Fresh item</title>
      <link>https://example.com/fresh</link>
      <guid>fresh-1</guid>
      <pubDate>Mon, 02 Jun 2025 10:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

func testRegistry() *health.Registry {
	return health.NewRegistry(breaker.Config{
		FailureThreshold: 3,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
	})
}

func newAggregator(reg *health.Registry) *Aggregator {
	return New(reg, feed.NewNormalizer(nil, ""), 4)
}

func serverSource(reg *health.Registry, id, url string) feed.Source {
	src := feed.Source{ID: id, Name: "Source " + id, URL: url, Type: "auto", Enabled: true}
	reg.Register(src)
	return src
}

func TestFetchSource_SuccessRecordsHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedBody)
	}))
	defer ts.Close()

	reg := testRegistry()
	agg := newAggregator(reg)
	src := serverSource(reg, "ok", ts.URL)

	items, err := agg.FetchSource(context.Background(), src)
	if err != nil {
		t.Fatalf("FetchSource: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}

	h, _ := reg.SourceHealth("ok")
	if h.TotalRequests != 1 || h.TotalFailures != 0 {
		t.Errorf("totals = (%d, %d), want (1, 0)", h.TotalRequests, h.TotalFailures)
	}
	if h.AvgResponseTimeMs == nil {
		t.Error("latency sample not recorded")
	}
}

func TestFetchSource_FailureRecordsAndOpensBreaker(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	reg := testRegistry()
	agg := newAggregator(reg)
	src := serverSource(reg, "bad", ts.URL)

	for i := 0; i < 3; i++ {
		if _, err := agg.FetchSource(context.Background(), src); err == nil {
			t.Fatal("expected fetch error")
		}
	}

	h, _ := reg.SourceHealth("bad")
	if h.Status != health.StatusUnhealthy {
		t.Errorf("status = %v, want unhealthy after 3 failures", h.Status)
	}

	// The breaker now rejects without touching the server.
	_, err := agg.FetchSource(context.Background(), src)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	h, _ = reg.SourceHealth("bad")
	if h.TotalRequests != 3 {
		t.Errorf("total requests = %d, want 3 (rejection not recorded)", h.TotalRequests)
	}
}

func TestFetchSource_UnknownSourceRejected(t *testing.T) {
	reg := testRegistry()
	agg := newAggregator(reg)

	_, err := agg.FetchSource(context.Background(), feed.Source{ID: "ghost", URL: "https://example.com", Enabled: true})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen for unregistered source", err)
	}
}

func TestFetchAll_IsolatesBrokenSource(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedBody)
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	reg := testRegistry()
	agg := newAggregator(reg)
	sources := []feed.Source{
		serverSource(reg, "good", good.URL),
		serverSource(reg, "bad", bad.URL),
	}

	items := agg.FetchAll(context.Background(), sources, Query{})
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1 from the healthy source", len(items))
	}
	if items[0].SourceID != "good" {
		t.Errorf("item source = %q, want good", items[0].SourceID)
	}

	h, _ := reg.SourceHealth("bad")
	if h.TotalFailures != 1 {
		t.Errorf("bad source failures = %d, want 1", h.TotalFailures)
	}
}

func TestFetchAll_SkipsDisabledSources(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedBody)
	}))
	defer ts.Close()

	reg := testRegistry()
	agg := newAggregator(reg)
	src := serverSource(reg, "off", ts.URL)
	src.Enabled = false

	items := agg.FetchAll(context.Background(), []feed.Source{src}, Query{})
	if len(items) != 0 {
		t.Errorf("items = %d, want 0", len(items))
	}
	if calls.Load() != 0 {
		t.Errorf("server calls = %d, want 0 for disabled source", calls.Load())
	}
}

func ts3(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
	return &t
}

func TestApply_FilterSortLimit(t *testing.T) {
	items := []feed.NewsItem{
		{ID: "1", Title: "Kernel patch released", PublishedAt: ts3(2025, 5, 30)},
		{ID: "2", Title: "Garden show", Description: "includes kernel corn", PublishedAt: ts3(2025, 6, 2)},
		{ID: "3", Title: "Undated kernel note"},
		{ID: "4", Title: "Unrelated", Content: "nothing to see"},
		{ID: "5", Title: "KERNEL conference", PublishedAt: ts3(2025, 6, 1)},
	}

	got := Apply(items, Query{Search: "kernel"})
	if len(got) != 4 {
		t.Fatalf("filtered = %d, want 4", len(got))
	}
	wantOrder := []string{"2", "5", "1", "3"} // newest first, undated last
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Errorf("order[%d] = %s, want %s", i, got[i].ID, want)
		}
	}

	got = Apply(items, Query{Search: "kernel", Limit: 2})
	if len(got) != 2 {
		t.Fatalf("limited = %d, want 2", len(got))
	}
	if got[0].ID != "2" || got[1].ID != "5" {
		t.Errorf("limited order = [%s %s], want [2 5]", got[0].ID, got[1].ID)
	}
}

func TestApply_NoQueryKeepsEverything(t *testing.T) {
	items := []feed.NewsItem{
		{ID: "a", Title: "one"},
		{ID: "b", Title: "two", PublishedAt: ts3(2025, 6, 1)},
	}
	got := Apply(items, Query{})
	if len(got) != 2 {
		t.Fatalf("items = %d, want 2", len(got))
	}
	if got[0].ID != "b" {
		t.Errorf("first = %s, want dated item before undated", got[0].ID)
	}
}
