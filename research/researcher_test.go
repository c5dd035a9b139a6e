package research

import (
	"context"
	"errors"
	"testing"

	"newsmith/cache"
	"newsmith/types"
	"newsmith/websearch"
)

type stubSearcher struct {
	results []websearch.Result
	err     error
	calls   int
}

func (s *stubSearcher) Search(ctx context.Context, q string, k int) ([]websearch.Result, error) {
	s.calls++
	return s.results, s.err
}

type stubGenerator struct {
	reply string
	err   error
	calls int
}

func (s *stubGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestResearchSynthesizesFromSearch(t *testing.T) {
	store := cache.NewMemory()
	searcher := &stubSearcher{results: []websearch.Result{
		{Title: "Doc", URL: "https://x/doc", Snippet: "quantum computers factor numbers"},
	}}
	gen := &stubGenerator{reply: `{"related_facts":["fact"],"statistics":["40%"],"external_quotes":["q"]}`}

	r := NewResearcher(store, searcher, nil, gen, nil)
	result := r.Research(context.Background(), types.Topic{Keyword: "Quantum"})

	if result == nil {
		t.Fatal("expected research result")
	}
	if len(result.RelatedFacts) != 1 || result.Statistics[0] != "40%" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestResearchCacheHitSkipsExternalCalls(t *testing.T) {
	store := cache.NewMemory()
	ctx := context.Background()

	cached := types.ResearchResult{RelatedFacts: []string{"cached fact"}}
	if err := cache.SetJSON(ctx, store, "research:quantum", cached, 0); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	searcher := &stubSearcher{}
	gen := &stubGenerator{}
	r := NewResearcher(store, searcher, nil, gen, nil)

	result := r.Research(ctx, types.Topic{Keyword: "Quantum"})
	if result == nil || result.RelatedFacts[0] != "cached fact" {
		t.Fatalf("expected cached result, got %+v", result)
	}
	if searcher.calls != 0 || gen.calls != 0 {
		t.Fatalf("cache hit must issue no external calls (search=%d gen=%d)", searcher.calls, gen.calls)
	}
}

func TestResearchReturnsNilOnSynthesisFailure(t *testing.T) {
	store := cache.NewMemory()
	searcher := &stubSearcher{results: []websearch.Result{{Title: "Doc", Snippet: "s"}}}

	// Provider failure.
	r := NewResearcher(store, searcher, nil, &stubGenerator{err: errors.New("down")}, nil)
	if result := r.Research(context.Background(), types.Topic{Keyword: "x"}); result != nil {
		t.Fatal("expected nil on provider failure")
	}

	// Unparseable output.
	r = NewResearcher(store, searcher, nil, &stubGenerator{reply: "not json"}, nil)
	if result := r.Research(context.Background(), types.Topic{Keyword: "x"}); result != nil {
		t.Fatal("expected nil on unparseable output")
	}
}

func TestResearchReturnsNilWithoutContext(t *testing.T) {
	store := cache.NewMemory()
	searcher := &stubSearcher{err: errors.New("search down")}
	gen := &stubGenerator{reply: `{"related_facts":[],"statistics":[],"external_quotes":[]}`}

	r := NewResearcher(store, searcher, nil, gen, nil)
	if result := r.Research(context.Background(), types.Topic{Keyword: "x"}); result != nil {
		t.Fatal("expected nil when no context could be gathered")
	}
	if gen.calls != 0 {
		t.Fatal("synthesis must not run on an empty context")
	}
}

func TestResearchWritesCache(t *testing.T) {
	store := cache.NewMemory()
	ctx := context.Background()
	searcher := &stubSearcher{results: []websearch.Result{{Title: "Doc", Snippet: "s"}}}
	gen := &stubGenerator{reply: `{"related_facts":["f"],"statistics":[],"external_quotes":[]}`}

	r := NewResearcher(store, searcher, nil, gen, nil)
	if result := r.Research(ctx, types.Topic{Keyword: "Topic Name"}); result == nil {
		t.Fatal("expected result")
	}

	var cached types.ResearchResult
	hit, err := cache.GetJSON(ctx, store, "research:topic name", &cached)
	if err != nil || !hit {
		t.Fatalf("expected cache entry (hit=%v err=%v)", hit, err)
	}
}
