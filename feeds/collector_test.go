package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"newsmith/cache"
	"newsmith/websearch"
)

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func rssDoc(items ...string) string {
	doc := `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Test Feed</title>`
	for _, item := range items {
		doc += item
	}
	return doc + `</channel></rss>`
}

func rssItem(title, link string, published time.Time) string {
	date := ""
	if !published.IsZero() {
		date = fmt.Sprintf("<pubDate>%s</pubDate>", published.Format(time.RFC1123Z))
	}
	return fmt.Sprintf("<item><title>%s</title><link>%s</link><description>%s summary</description>%s</item>",
		title, link, title, date)
}

func TestFetchDeduplicatesAndFiltersRecency(t *testing.T) {
	store := cache.NewMemory()
	ctx := context.Background()

	// Three items: two share a link, one is older than the 1h window.
	doc := rssDoc(
		rssItem("Fresh", "https://news.test/a", testNow.Add(-10*time.Minute)),
		rssItem("Fresh repeat", "https://news.test/a", testNow.Add(-5*time.Minute)),
		rssItem("Stale", "https://news.test/b", testNow.Add(-2*time.Hour)),
	)
	store.Set(ctx, "source:https://news.test/rss", doc, 0)

	collector := NewCollector([]string{"https://news.test/rss"}, store,
		WithRecencyWindow(time.Hour),
		WithClock(func() time.Time { return testNow }),
	)

	items := collector.Fetch(ctx)
	if len(items) != 1 {
		t.Fatalf("expected exactly 1 item, got %d", len(items))
	}
	if items[0].Link != "https://news.test/a" || items[0].Title != "Fresh" {
		t.Fatalf("first occurrence must win: %+v", items[0])
	}
}

func TestFetchExcludesUndatedItems(t *testing.T) {
	store := cache.NewMemory()
	ctx := context.Background()

	doc := rssDoc(
		rssItem("Dated", "https://news.test/a", testNow.Add(-time.Minute)),
		rssItem("Undated", "https://news.test/b", time.Time{}),
	)
	store.Set(ctx, "source:https://news.test/rss", doc, 0)

	collector := NewCollector([]string{"https://news.test/rss"}, store,
		WithClock(func() time.Time { return testNow }))

	items := collector.Fetch(ctx)
	if len(items) != 1 || items[0].Link != "https://news.test/a" {
		t.Fatalf("undated items must be excluded, got %+v", items)
	}
}

func TestFetchIsolatesSourceFailures(t *testing.T) {
	store := cache.NewMemory()
	ctx := context.Background()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	doc := rssDoc(rssItem("Only", "https://news.test/a", testNow.Add(-time.Minute)))
	store.Set(ctx, "source:https://news.test/rss", doc, 0)

	collector := NewCollector([]string{broken.URL, "https://news.test/rss"}, store,
		WithClock(func() time.Time { return testNow }))

	items := collector.Fetch(ctx)
	if len(items) != 1 {
		t.Fatalf("healthy source must survive a sibling failure, got %d items", len(items))
	}
}

type fakeSearcher struct {
	results []websearch.Result
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, q string, k int) ([]websearch.Result, error) {
	f.queries = append(f.queries, q)
	return f.results, nil
}

func TestFetchDiscoversFallbackFeed(t *testing.T) {
	store := cache.NewMemory()
	ctx := context.Background()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer broken.Close()

	// The discovered URL resolves from cache so the test stays offline.
	fallbackURL := "https://alt.test/feed.xml"
	doc := rssDoc(rssItem("Rescued", "https://alt.test/story", testNow.Add(-time.Minute)))
	store.Set(ctx, "source:"+fallbackURL, doc, 0)

	searcher := &fakeSearcher{results: []websearch.Result{
		{Title: "about page", URL: "https://alt.test/about"},
		{Title: "the feed", URL: fallbackURL},
	}}

	collector := NewCollector([]string{broken.URL}, store,
		WithFallbackSearch(searcher),
		WithClock(func() time.Time { return testNow }))

	items := collector.Fetch(ctx)
	if len(items) != 1 || items[0].Title != "Rescued" {
		t.Fatalf("expected item from discovered fallback feed, got %+v", items)
	}
	if len(searcher.queries) != 1 {
		t.Fatalf("expected one discovery query, got %v", searcher.queries)
	}
}

func TestFetchCachesSourceDocument(t *testing.T) {
	store := cache.NewMemory()
	ctx := context.Background()

	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, rssDoc(rssItem("Cached", "https://news.test/c", testNow.Add(-time.Minute))))
	}))
	defer server.Close()

	collector := NewCollector([]string{server.URL}, store,
		WithClock(func() time.Time { return testNow }))

	collector.Fetch(ctx)
	collector.Fetch(ctx)

	if hits != 1 {
		t.Fatalf("second fetch should be served from cache, saw %d network hits", hits)
	}
}

func TestMaxItemsPerSource(t *testing.T) {
	store := cache.NewMemory()
	ctx := context.Background()

	var entries []string
	for i := 0; i < 6; i++ {
		entries = append(entries, rssItem(fmt.Sprintf("Item %d", i),
			fmt.Sprintf("https://news.test/%d", i), testNow.Add(-time.Minute)))
	}
	store.Set(ctx, "source:https://news.test/rss", rssDoc(entries...), 0)

	collector := NewCollector([]string{"https://news.test/rss"}, store,
		WithMaxPerSource(3),
		WithClock(func() time.Time { return testNow }))

	items := collector.Fetch(ctx)
	if len(items) != 3 {
		t.Fatalf("expected per-source cap of 3, got %d", len(items))
	}
}
