// Package research gathers supporting facts, statistics and quotations for
// a topic before drafting begins.
package research

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"newsmith/alerts"
	"newsmith/cache"
	"newsmith/config"
	"newsmith/llm"
	"newsmith/types"
	"newsmith/websearch"
)

const searchDepth = 6

// Researcher assembles a ResearchResult per topic, memoized by keyword.
type Researcher struct {
	store     cache.Store
	search    websearch.Searcher
	wiki      *Wikipedia
	generator llm.Generator
	notifier  *alerts.Notifier
}

// NewResearcher wires a researcher. wiki may be nil to skip the
// encyclopedic supplement.
func NewResearcher(store cache.Store, search websearch.Searcher, wiki *Wikipedia, generator llm.Generator, notifier *alerts.Notifier) *Researcher {
	return &Researcher{
		store:     store,
		search:    search,
		wiki:      wiki,
		generator: generator,
		notifier:  notifier,
	}
}

const synthesisSystemPrompt = `You distill raw research notes into structured material for an article. Respond ONLY with a JSON object: {"related_facts": [strings], "statistics": [strings], "external_quotes": [strings]}. Only include statements supported by the notes; never invent numbers or quotes.`

// Research returns supporting material for the topic, or nil when synthesis
// is impossible. A nil result means "skip this item for this run"; it is
// not retried and not an error.
func (r *Researcher) Research(ctx context.Context, topic types.Topic) *types.ResearchResult {
	cacheKey := "research:" + strings.ToLower(strings.TrimSpace(topic.Keyword))

	var cached types.ResearchResult
	hit, err := cache.GetJSON(ctx, r.store, cacheKey, &cached)
	if err != nil {
		log.Printf("Warning: research cache read failed for %q: %v", topic.Keyword, err)
	}
	if hit {
		log.Printf("Research cache hit for %q", topic.Keyword)
		return &cached
	}

	rawContext := r.gatherContext(ctx, topic)
	if rawContext == "" {
		log.Printf("No research context found for %q", topic.Keyword)
		return nil
	}

	prompt := fmt.Sprintf("TOPIC: %s\nANGLE: %s\n\nRESEARCH NOTES:\n%s", topic.Keyword, topic.Angle, rawContext)
	raw, err := r.generator.Generate(ctx, synthesisSystemPrompt, prompt)
	if err != nil {
		if errors.Is(err, llm.ErrQuotaExceeded) && r.notifier != nil {
			r.notifier.Notify(ctx, alerts.ClassGenerationQuota, err.Error())
		}
		log.Printf("Research synthesis failed for %q: %v", topic.Keyword, err)
		return nil
	}

	var result types.ResearchResult
	if err := llm.DecodeObject(raw, &result); err != nil {
		log.Printf("Research synthesis unparseable for %q: %v", topic.Keyword, err)
		return nil
	}

	if err := cache.SetJSON(ctx, r.store, cacheKey, result, config.ResearchCacheTTL); err != nil {
		log.Printf("Warning: research cache write failed for %q: %v", topic.Keyword, err)
	}
	return &result
}

// gatherContext concatenates search snippets and the encyclopedic summary
// into a bounded context block.
func (r *Researcher) gatherContext(ctx context.Context, topic types.Topic) string {
	var sb strings.Builder

	if r.search != nil {
		results, err := r.search.Search(ctx, topic.Keyword, searchDepth)
		if err != nil {
			log.Printf("Warning: research search failed for %q: %v", topic.Keyword, err)
		}
		for _, res := range results {
			fmt.Fprintf(&sb, "- %s: %s (%s)\n", res.Title, res.Snippet, res.URL)
		}
	}

	if r.wiki != nil {
		if summary, err := r.wiki.Summary(ctx, topic.Keyword); err == nil && summary != "" {
			sb.WriteString("\nBACKGROUND:\n")
			sb.WriteString(summary)
			sb.WriteString("\n")
		}
	}

	out := sb.String()
	if len(out) > config.ResearchContextLimit {
		out = out[:config.ResearchContextLimit]
	}
	return strings.TrimSpace(out)
}
