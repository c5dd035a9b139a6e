// Package trends ranks candidate stories and keywords by estimated audience
// interest. Ranking is delegated to the generation service; the selector's
// job is mostly to survive that call going wrong.
package trends

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"newsmith/llm"
	"newsmith/types"
)

// Selector ranks items via the generation service with an ordered fallback.
type Selector struct {
	generator llm.Generator
}

// NewSelector creates a Selector.
func NewSelector(generator llm.Generator) *Selector {
	return &Selector{generator: generator}
}

const scoreSystemPrompt = `You score news items by how interesting they are to a broad tech-savvy audience. Respond ONLY with a JSON array of objects: [{"index": <zero-based item index>, "score": <0 to 100>}]. Include every item exactly once.`

type scoredIndex struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// SelectItems returns the topK most interesting items. If scoring fails the
// first topK items in original order are returned instead: a run without
// ranking beats no run.
func (s *Selector) SelectItems(ctx context.Context, items []types.FeedItem, topK int) []types.FeedItem {
	if topK <= 0 || len(items) == 0 {
		return nil
	}
	if len(items) <= topK {
		out := make([]types.FeedItem, len(items))
		copy(out, items)
		return out
	}

	scores, err := s.scoreItems(ctx, items)
	if err != nil {
		log.Printf("Warning: trend scoring failed, falling back to feed order: %v", err)
		return items[:topK]
	}

	ranked := rankByScore(len(items), scores)

	selected := make([]types.FeedItem, 0, topK)
	picked := make(map[int]struct{}, topK)
	for _, idx := range ranked {
		if len(selected) == topK {
			break
		}
		selected = append(selected, items[idx])
		picked[idx] = struct{}{}
	}

	// Invalid scores can leave the ranked list short; backfill from the
	// remaining items in original order.
	for idx := 0; idx < len(items) && len(selected) < topK; idx++ {
		if _, ok := picked[idx]; ok {
			continue
		}
		selected = append(selected, items[idx])
	}
	return selected
}

func (s *Selector) scoreItems(ctx context.Context, items []types.FeedItem) ([]scoredIndex, error) {
	var sb strings.Builder
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. %s — %s\n", i, item.Title, truncate(item.Summary, 200))
	}

	raw, err := s.generator.Generate(ctx, scoreSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	var scores []scoredIndex
	if err := llm.DecodeArray(raw, &scores); err != nil {
		return nil, fmt.Errorf("unparseable score output: %w", err)
	}
	return scores, nil
}

// rankByScore filters out-of-range scores and orders indexes by score
// descending, preserving original relative order on ties.
func rankByScore(n int, scores []scoredIndex) []int {
	type entry struct {
		index int
		score float64
	}

	seen := make(map[int]struct{}, n)
	var valid []entry
	for _, s := range scores {
		if s.Index < 0 || s.Index >= n {
			continue
		}
		if s.Score < 0 || s.Score > 100 || math.IsNaN(s.Score) {
			continue
		}
		if _, dup := seen[s.Index]; dup {
			continue
		}
		seen[s.Index] = struct{}{}
		valid = append(valid, entry{index: s.Index, score: s.Score})
	}

	// Equal scores must keep the items' original relative order, and the
	// provider is free to list indexes in any order, so ties break on index.
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].score != valid[j].score {
			return valid[i].score > valid[j].score
		}
		return valid[i].index < valid[j].index
	})

	out := make([]int, len(valid))
	for i, e := range valid {
		out[i] = e.index
	}
	return out
}

const topicSystemPrompt = `You turn trending keywords into article topics. For each keyword produce an object {"keyword": string, "score": number 0-100, "angle": string, "suggested_format": string, "title": string, "outline": [strings]}. Respond ONLY with a JSON array covering the given keywords.`

// SelectTopics expands keywords into ranked, outlined topics, returning the
// topK best. On failure the keywords are wrapped as bare topics in order.
func (s *Selector) SelectTopics(ctx context.Context, keywords []string, topK int) []types.Topic {
	if topK <= 0 || len(keywords) == 0 {
		return nil
	}

	raw, err := s.generator.Generate(ctx, topicSystemPrompt, strings.Join(keywords, "\n"))
	if err == nil {
		var topics []types.Topic
		if derr := llm.DecodeArray(raw, &topics); derr == nil {
			valid := topics[:0]
			for _, t := range topics {
				if t.Keyword == "" || t.Score < 0 || t.Score > 100 {
					continue
				}
				valid = append(valid, t)
			}
			sort.SliceStable(valid, func(i, j int) bool { return valid[i].Score > valid[j].Score })
			if len(valid) > topK {
				valid = valid[:topK]
			}
			if len(valid) > 0 {
				return valid
			}
		} else {
			err = derr
		}
	}

	log.Printf("Warning: topic expansion failed, wrapping keywords as-is: %v", err)
	if len(keywords) > topK {
		keywords = keywords[:topK]
	}
	topics := make([]types.Topic, len(keywords))
	for i, kw := range keywords {
		topics[i] = types.Topic{Keyword: kw}
	}
	return topics
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
