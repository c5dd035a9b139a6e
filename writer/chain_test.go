package writer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"newsmith/types"
)

// scriptedGenerator returns one reply per call, in order.
type scriptedGenerator struct {
	replies []string
	errs    []error
	calls   int
}

func (s *scriptedGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", errors.New("no scripted reply")
}

func articleJSON(title string) string {
	raw, _ := json.Marshal(types.Article{
		Title:    title,
		Summary:  "summary",
		Content:  "body of " + title,
		Category: "tech",
		Tags:     []string{"t"},
	})
	return string(raw)
}

func TestRunComposesAllStages(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		articleJSON("draft"),
		articleJSON("checked"),
		articleJSON("edited"),
		articleJSON("polished"),
	}}
	chain := NewChain(gen, nil)

	article := chain.Run(context.Background(), types.Topic{Keyword: "k"}, &types.ResearchResult{})
	if article == nil {
		t.Fatal("expected article")
	}
	if article.Title != "polished" {
		t.Fatalf("final stage output must win, got %q", article.Title)
	}
	if gen.calls != 4 {
		t.Fatalf("expected 4 stage calls, got %d", gen.calls)
	}
}

func TestStageFailureAbortsChain(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		articleJSON("draft"),
		"the model rambled instead of returning JSON",
	}}
	chain := NewChain(gen, nil)

	article := chain.Run(context.Background(), types.Topic{Keyword: "k"}, nil)
	if article != nil {
		t.Fatal("unparseable stage output must abort the chain")
	}
	if gen.calls != 2 {
		t.Fatalf("later stages must not run after a failure, got %d calls", gen.calls)
	}
}

func TestStageDoesNotMutateInput(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"%%% broken output %%%"}}
	chain := NewChain(gen, nil)

	input := &types.Article{Title: "Original", Summary: "s", Content: "c", Tags: []string{"a"}}
	out := chain.Edit(context.Background(), input)

	if out != nil {
		t.Fatal("expected nil for unparseable output")
	}
	if input.Title != "Original" || len(input.Tags) != 1 {
		t.Fatalf("stage failure must leave input untouched: %+v", input)
	}
}

func TestStageRejectsIncompleteArticle(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{`{"title":"","summary":"s","content":"","category":"","tags":[]}`}}
	chain := NewChain(gen, nil)

	if out := chain.Polish(context.Background(), &types.Article{Title: "x", Content: "y"}); out != nil {
		t.Fatal("empty title/content must be rejected")
	}
}

func TestDraftIncludesResearchAndOutline(t *testing.T) {
	var captured string
	gen := &captureGenerator{reply: articleJSON("draft"), capture: &captured}
	chain := NewChain(gen, nil)

	topic := types.Topic{Keyword: "fusion", Outline: []string{"intro", "state of play"}}
	research := &types.ResearchResult{Statistics: []string{"200MW sustained"}}
	if article := chain.Draft(context.Background(), topic, research); article == nil {
		t.Fatal("expected draft")
	}

	if !strings.Contains(captured, "fusion") || !strings.Contains(captured, "state of play") {
		t.Fatalf("draft prompt missing topic material: %s", captured)
	}
	if !strings.Contains(captured, "200MW sustained") {
		t.Fatalf("draft prompt missing research: %s", captured)
	}
}

type captureGenerator struct {
	reply   string
	capture *string
}

func (c *captureGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	*c.capture = user
	return c.reply, nil
}
