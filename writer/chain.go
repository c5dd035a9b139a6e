// Package writer runs the generation chain: draft, fact-check, editorial
// review, style polish. Every stage consumes structured article data and
// produces a full replacement; a stage that cannot produce valid output
// yields nil and the item is skipped, never partially applied.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"newsmith/alerts"
	"newsmith/llm"
	"newsmith/types"
)

// Chain sequences the transformation stages over one article.
type Chain struct {
	generator llm.Generator
	notifier  *alerts.Notifier
}

// NewChain creates a chain backed by the generation service.
func NewChain(generator llm.Generator, notifier *alerts.Notifier) *Chain {
	return &Chain{generator: generator, notifier: notifier}
}

const articleSchema = `{"title": string, "summary": string, "content": string (markdown body), "category": string, "tags": [strings]}`

const draftSystem = `You are a long-form writer for an online publication. Write a complete article from the topic, outline and research provided. Use only facts, statistics and quotes present in the research material. Respond ONLY with a JSON object: ` + articleSchema

const factCheckSystem = `You fact-check a drafted article against its research material. Remove or soften claims the research does not support; mark genuinely unverifiable claims with "(unverified)" rather than guessing. Keep structure and voice. Respond ONLY with the corrected article as a JSON object: ` + articleSchema

const editSystem = `You are an editor. Fix grammar, tighten wording, and remove time-sensitive phrasing ("yesterday", "this week") so the article reads well months from now. Respond ONLY with the edited article as a JSON object: ` + articleSchema

const polishSystem = `You enforce house style: sentence-case headings, short paragraphs, no exclamation marks, confident but measured tone. Respond ONLY with the polished article as a JSON object: ` + articleSchema

// Draft produces the first structured article from topic plus research.
func (c *Chain) Draft(ctx context.Context, topic types.Topic, research *types.ResearchResult) *types.Article {
	var sb strings.Builder
	fmt.Fprintf(&sb, "TOPIC: %s\n", topic.Keyword)
	if topic.Title != "" {
		fmt.Fprintf(&sb, "WORKING TITLE: %s\n", topic.Title)
	}
	if topic.Angle != "" {
		fmt.Fprintf(&sb, "ANGLE: %s\n", topic.Angle)
	}
	if topic.SuggestedFormat != "" {
		fmt.Fprintf(&sb, "FORMAT: %s\n", topic.SuggestedFormat)
	}
	if len(topic.Outline) > 0 {
		fmt.Fprintf(&sb, "OUTLINE:\n- %s\n", strings.Join(topic.Outline, "\n- "))
	}
	if research != nil {
		raw, _ := json.Marshal(research)
		fmt.Fprintf(&sb, "\nRESEARCH:\n%s\n", raw)
	}

	return c.stage(ctx, "draft", draftSystem, sb.String())
}

// FactCheck flags or corrects unverifiable claims.
func (c *Chain) FactCheck(ctx context.Context, article *types.Article, research *types.ResearchResult) *types.Article {
	user := articlePrompt(article)
	if research != nil {
		raw, _ := json.Marshal(research)
		user += fmt.Sprintf("\n\nRESEARCH MATERIAL:\n%s", raw)
	}
	return c.stage(ctx, "fact-check", factCheckSystem, user)
}

// Edit normalizes grammar, style and timelessness.
func (c *Chain) Edit(ctx context.Context, article *types.Article) *types.Article {
	return c.stage(ctx, "edit", editSystem, articlePrompt(article))
}

// Polish applies house style.
func (c *Chain) Polish(ctx context.Context, article *types.Article) *types.Article {
	return c.stage(ctx, "polish", polishSystem, articlePrompt(article))
}

// Run composes all four stages. A nil from any stage aborts the chain and
// returns nil; the caller skips the item.
func (c *Chain) Run(ctx context.Context, topic types.Topic, research *types.ResearchResult) *types.Article {
	article := c.Draft(ctx, topic, research)
	if article == nil {
		return nil
	}
	if article = c.FactCheck(ctx, article, research); article == nil {
		return nil
	}
	if article = c.Edit(ctx, article); article == nil {
		return nil
	}
	return c.Polish(ctx, article)
}

// stage runs one transformation and decodes its output into a fresh
// Article. The input is never touched, so a failed stage leaves the chain's
// previous state intact.
func (c *Chain) stage(ctx context.Context, name, system, user string) *types.Article {
	raw, err := c.generator.Generate(ctx, system, user)
	if err != nil {
		if errors.Is(err, llm.ErrQuotaExceeded) && c.notifier != nil {
			c.notifier.Notify(ctx, alerts.ClassGenerationQuota, err.Error())
		}
		log.Printf("Stage %s failed: %v", name, err)
		return nil
	}

	var out types.Article
	if err := llm.DecodeObject(raw, &out); err != nil {
		log.Printf("Stage %s produced unparseable output: %v", name, err)
		return nil
	}
	if strings.TrimSpace(out.Title) == "" || strings.TrimSpace(out.Content) == "" {
		log.Printf("Stage %s produced an incomplete article", name)
		return nil
	}
	return &out
}

func articlePrompt(article *types.Article) string {
	raw, _ := json.Marshal(article)
	return fmt.Sprintf("ARTICLE:\n%s", raw)
}
