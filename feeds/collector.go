// Package feeds pulls candidate stories from the configured syndication
// sources. Sources are fetched independently: one bad feed never costs a run.
package feeds

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"newsmith/cache"
	"newsmith/config"
	"newsmith/types"
	"newsmith/websearch"
)

const maxFeedBytes = 4 << 20

// Collector fetches and normalises feed items across all configured sources.
type Collector struct {
	sources      []string
	store        cache.Store
	search       websearch.Searcher
	httpClient   *http.Client
	maxPerSource int
	recency      time.Duration
	now          func() time.Time
}

// Option adjusts a Collector.
type Option func(*Collector)

// WithMaxPerSource caps items taken from a single source.
func WithMaxPerSource(n int) Option {
	return func(c *Collector) { c.maxPerSource = n }
}

// WithRecencyWindow drops items older than the window at collection time.
func WithRecencyWindow(d time.Duration) Option {
	return func(c *Collector) { c.recency = d }
}

// WithFallbackSearch enables alternative-feed discovery for failed sources.
func WithFallbackSearch(s websearch.Searcher) Option {
	return func(c *Collector) { c.search = s }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// NewCollector creates a Collector over the given source URLs.
func NewCollector(sources []string, store cache.Store, opts ...Option) *Collector {
	c := &Collector{
		sources:      sources,
		store:        store,
		httpClient:   &http.Client{Timeout: config.FeedFetchTimeout},
		maxPerSource: config.MaxItemsPerSource,
		recency:      config.RecencyWindow,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sourceResult struct {
	source string
	items  []types.FeedItem
	err    error
}

// Fetch pulls all sources concurrently, joins, then deduplicates by link
// (first occurrence wins) and filters to the recency window. Items whose
// published date cannot be parsed are excluded, not defaulted to now.
func (c *Collector) Fetch(ctx context.Context) []types.FeedItem {
	results := c.fetchAll(ctx, c.sources)

	// Failed sources get one shot at a discovered alternative, valid for
	// this run only.
	var fallbacks []string
	for _, res := range results {
		if res.err == nil {
			continue
		}
		log.Printf("Source %s failed: %v", res.source, res.err)
		if alt := c.discoverAlternative(ctx, res.source); alt != "" {
			log.Printf("Discovered fallback feed for %s: %s", res.source, alt)
			fallbacks = append(fallbacks, alt)
		}
	}
	if len(fallbacks) > 0 {
		results = append(results, c.fetchAll(ctx, fallbacks)...)
	}

	var all []types.FeedItem
	for _, res := range results {
		if res.err != nil {
			continue
		}
		all = append(all, res.items...)
	}

	deduped := dedupeByLink(all)
	recent := c.filterRecent(deduped)
	log.Printf("Collected %d items (%d before dedupe/recency) from %d sources",
		len(recent), len(all), len(c.sources))
	return recent
}

// fetchAll fans out across sources, at most FetchWorkers in flight, and
// joins. Each source's failure is captured as a value on its result, never
// cancelling siblings.
func (c *Collector) fetchAll(ctx context.Context, sources []string) []sourceResult {
	results := make([]sourceResult, len(sources))
	sem := make(chan struct{}, config.FetchWorkers)
	var wg sync.WaitGroup
	for i, source := range sources {
		wg.Add(1)
		go func(i int, source string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			items, err := c.fetchSource(ctx, source)
			results[i] = sourceResult{source: source, items: items, err: err}
		}(i, source)
	}
	wg.Wait()
	return results
}

// fetchSource returns the parsed items for one source, going through the
// shared cache first.
func (c *Collector) fetchSource(ctx context.Context, source string) ([]types.FeedItem, error) {
	cacheKey := "source:" + source

	raw, hit, err := c.store.Get(ctx, cacheKey)
	if err != nil {
		log.Printf("Warning: cache read failed for %s: %v", source, err)
	}
	if !hit {
		raw, err = c.download(ctx, source)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(ctx, cacheKey, raw, config.FeedCacheTTL); err != nil {
			log.Printf("Warning: cache write failed for %s: %v", source, err)
		}
	}

	return c.parse(source, raw)
}

func (c *Collector) download(ctx context.Context, source string) (string, error) {
	fctx, cancel := context.WithTimeout(ctx, config.FeedFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fctx, http.MethodGet, source, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "newsmith/1.0 feed collector")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

func (c *Collector) parse(source, raw string) ([]types.FeedItem, error) {
	feed, err := gofeed.NewParser().ParseString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	count := len(feed.Items)
	if count > c.maxPerSource {
		count = c.maxPerSource
	}

	items := make([]types.FeedItem, 0, count)
	for i := 0; i < count; i++ {
		entry := feed.Items[i]
		if entry.Link == "" {
			continue
		}

		item := types.FeedItem{
			Title:   entry.Title,
			Link:    entry.Link,
			Summary: entry.Description,
			Source:  source,
		}
		if item.Summary == "" {
			item.Summary = entry.Content
		}
		// gofeed's best-effort parse; items without a usable date keep
		// a zero PublishedAt and fall out at the recency filter.
		if entry.PublishedParsed != nil {
			item.PublishedAt = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			item.PublishedAt = *entry.UpdatedParsed
		}
		items = append(items, item)
	}
	return items, nil
}

// discoverAlternative asks the web search provider for a replacement feed
// URL on the same domain. Discovered URLs are scheme-checked but otherwise
// trusted for the current run only.
func (c *Collector) discoverAlternative(ctx context.Context, source string) string {
	if c.search == nil {
		return ""
	}

	parsed, err := url.Parse(source)
	if err != nil || parsed.Host == "" {
		return ""
	}

	query := fmt.Sprintf("%s rss feed", parsed.Host)
	results, err := c.search.Search(ctx, query, 5)
	if err != nil {
		log.Printf("Warning: fallback discovery failed for %s: %v", parsed.Host, err)
		return ""
	}

	for _, res := range results {
		if res.URL == source {
			continue
		}
		u, err := url.Parse(res.URL)
		if err != nil || u.Host == "" {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		if looksLikeFeed(res.URL) {
			return res.URL
		}
	}
	return ""
}

func looksLikeFeed(u string) bool {
	lower := strings.ToLower(u)
	return strings.Contains(lower, "rss") ||
		strings.Contains(lower, "feed") ||
		strings.Contains(lower, "atom") ||
		strings.HasSuffix(lower, ".xml")
}

func dedupeByLink(items []types.FeedItem) []types.FeedItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]types.FeedItem, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.Link]; dup {
			continue
		}
		seen[item.Link] = struct{}{}
		out = append(out, item)
	}
	return out
}

func (c *Collector) filterRecent(items []types.FeedItem) []types.FeedItem {
	cutoff := c.now().Add(-c.recency)
	out := make([]types.FeedItem, 0, len(items))
	for _, item := range items {
		if item.PublishedAt.IsZero() || item.PublishedAt.Before(cutoff) {
			continue
		}
		out = append(out, item)
	}
	return out
}
