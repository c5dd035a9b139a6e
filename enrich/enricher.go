// Package enrich computes search-optimization metadata, calls-to-action and
// the cover image for a finished article. Each sub-operation is independent;
// none can fail the item.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"newsmith/config"
	"newsmith/llm"
	"newsmith/types"
	"newsmith/vecindex"
	"newsmith/websearch"
)

const (
	coverQueries     = 3
	imagesPerQuery   = 4
	relatedLinkCount = 3
)

// CoverHost re-hosts a chosen image and returns its durable URL.
type CoverHost interface {
	Rehost(ctx context.Context, srcURL string) (string, error)
}

// Enricher performs the three enrichment sub-operations.
type Enricher struct {
	generator      llm.Generator
	embedder       llm.Embedder
	index          vecindex.Index
	imageProviders []websearch.ImageSearcher
	coverHost      CoverHost
	defaultCover   string
}

// Option adjusts an Enricher.
type Option func(*Enricher)

// WithImageProviders sets the image search providers used for covers.
func WithImageProviders(providers ...websearch.ImageSearcher) Option {
	return func(e *Enricher) { e.imageProviders = providers }
}

// WithCoverHost re-hosts the selected cover before returning it.
func WithCoverHost(host CoverHost) Option {
	return func(e *Enricher) { e.coverHost = host }
}

// WithRelatedIndex enables related-article lookups against the story index.
func WithRelatedIndex(index vecindex.Index, embedder llm.Embedder) Option {
	return func(e *Enricher) {
		e.index = index
		e.embedder = embedder
	}
}

// WithDefaultCover overrides the fallback cover URL.
func WithDefaultCover(url string) Option {
	return func(e *Enricher) { e.defaultCover = url }
}

// NewEnricher creates an Enricher.
func NewEnricher(generator llm.Generator, opts ...Option) *Enricher {
	e := &Enricher{
		generator:    generator,
		defaultCover: config.DefaultCoverImage,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

const seoSystemPrompt = `You produce search-optimization metadata for an article. Respond ONLY with a JSON object: {"meta_description": string (max 160 chars), "keywords": [5-10 strings], "internal_links": [short slug-like strings suggesting related coverage]}.`

// SEO fills the article's optimization fields in place. Failure leaves the
// article publishable without them.
func (e *Enricher) SEO(ctx context.Context, article *types.Article) {
	raw, err := e.generator.Generate(ctx, seoSystemPrompt, articleText(article))
	if err != nil {
		log.Printf("SEO enrichment failed: %v", err)
		return
	}

	var meta struct {
		MetaDescription string   `json:"meta_description"`
		Keywords        []string `json:"keywords"`
		InternalLinks   []string `json:"internal_links"`
	}
	if err := llm.DecodeObject(raw, &meta); err != nil {
		log.Printf("SEO output unparseable: %v", err)
		return
	}

	article.MetaDescription = meta.MetaDescription
	article.Keywords = meta.Keywords
	article.InternalLinks = meta.InternalLinks
}

const ctaSystemPrompt = `You write calls-to-action for the end of an article. Respond ONLY with a JSON object: {"comment_prompt": string (a question inviting discussion), "subscribe_prompt": string}.`

// CallToActions suggests reader prompts; the related link comes from the
// story index when available.
func (e *Enricher) CallToActions(ctx context.Context, article *types.Article) *types.CallToActions {
	ctas := &types.CallToActions{}

	raw, err := e.generator.Generate(ctx, ctaSystemPrompt, articleText(article))
	if err == nil {
		if derr := llm.DecodeObject(raw, ctas); derr != nil {
			log.Printf("CTA output unparseable: %v", derr)
		}
	} else {
		log.Printf("CTA enrichment failed: %v", err)
	}

	if links := e.RelatedLinks(ctx, article); len(links) > 0 {
		ctas.RelatedArticleLink = links[0]
	}
	return ctas
}

// RelatedLinks finds previously published stories close to this article.
func (e *Enricher) RelatedLinks(ctx context.Context, article *types.Article) []string {
	if e.index == nil || e.embedder == nil {
		return nil
	}

	vectors, err := e.embedder.EmbedTexts(ctx, []string{articleText(article)})
	if err != nil || len(vectors) != 1 {
		log.Printf("Warning: related-link embedding failed: %v", err)
		return nil
	}

	matches, err := e.index.Query(ctx, vectors[0], relatedLinkCount)
	if err != nil {
		log.Printf("Warning: related-link query failed: %v", err)
		return nil
	}

	var links []string
	for _, m := range matches {
		if slug, ok := m.Metadata["slug"].(string); ok && slug != "" {
			links = append(links, slug)
		}
	}
	return links
}

const coverQuerySystem = `You produce image search queries for an article's cover photo. Respond ONLY with a JSON array of %d short, concrete query strings. Prefer visual subjects over abstract concepts.`

const coverRankSystem = `You pick the best cover image for an article from a numbered candidate list. Judge by relevance to the article's subject and general visual appeal implied by the title. Respond ONLY with a JSON object: {"index": <zero-based index of the best candidate>}.`

// SelectCover finds a cover image for the article. It always returns a
// usable URL; every failure path falls back to the default image.
func (e *Enricher) SelectCover(ctx context.Context, article *types.Article) string {
	candidates := e.gatherCandidates(ctx, article)
	if len(candidates) == 0 {
		log.Printf("No cover candidates found, using default")
		return e.defaultCover
	}

	chosen := e.rankCandidates(ctx, article, candidates)
	if chosen == "" {
		return e.defaultCover
	}

	if e.coverHost != nil {
		hosted, err := e.coverHost.Rehost(ctx, chosen)
		if err != nil {
			log.Printf("Warning: cover re-hosting failed, using source URL: %v", err)
			return chosen
		}
		return hosted
	}
	return chosen
}

func (e *Enricher) gatherCandidates(ctx context.Context, article *types.Article) []websearch.ImageResult {
	queries := e.coverQueries(ctx, article)

	var all []websearch.ImageResult
	seen := make(map[string]struct{})
	for _, query := range queries {
		for _, provider := range e.imageProviders {
			results, err := provider.Images(ctx, query, imagesPerQuery)
			if err != nil {
				log.Printf("Warning: image search failed for %q: %v", query, err)
				continue
			}
			for _, res := range results {
				if res.ImageURL == "" {
					continue
				}
				if _, dup := seen[res.ImageURL]; dup {
					continue
				}
				seen[res.ImageURL] = struct{}{}
				all = append(all, res)
			}
		}
	}
	return all
}

func (e *Enricher) coverQueries(ctx context.Context, article *types.Article) []string {
	system := fmt.Sprintf(coverQuerySystem, coverQueries)
	raw, err := e.generator.Generate(ctx, system, articleText(article))
	if err == nil {
		var queries []string
		if derr := llm.DecodeArray(raw, &queries); derr == nil && len(queries) > 0 {
			if len(queries) > coverQueries {
				queries = queries[:coverQueries]
			}
			return queries
		}
	}
	log.Printf("Warning: cover query generation failed, using title: %v", err)
	return []string{article.Title}
}

func (e *Enricher) rankCandidates(ctx context.Context, article *types.Article, candidates []websearch.ImageResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ARTICLE TITLE: %s\nSUMMARY: %s\n\nCANDIDATES:\n", article.Title, article.Summary)
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i, c.Title, c.ImageURL)
	}

	raw, err := e.generator.Generate(ctx, coverRankSystem, sb.String())
	if err != nil {
		log.Printf("Warning: cover ranking failed: %v", err)
		return ""
	}

	var pick struct {
		Index int `json:"index"`
	}
	if err := llm.DecodeObject(raw, &pick); err != nil {
		log.Printf("Warning: cover ranking unparseable: %v", err)
		return ""
	}
	if pick.Index < 0 || pick.Index >= len(candidates) {
		return ""
	}
	return candidates[pick.Index].ImageURL
}

func articleText(article *types.Article) string {
	raw, _ := json.Marshal(map[string]interface{}{
		"title":    article.Title,
		"summary":  article.Summary,
		"category": article.Category,
		"tags":     article.Tags,
		"content":  truncate(article.Content, 2000),
	})
	return string(raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
