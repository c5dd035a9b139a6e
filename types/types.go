package types

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// FeedItem is a single candidate story pulled from an external feed.
// The Link doubles as the item's identity: items sharing a link are the
// same story regardless of which source surfaced them.
type FeedItem struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
	Summary     string    `json:"summary"`
	Source      string    `json:"source,omitempty"`
	FullText    string    `json:"full_text,omitempty"`
}

// Topic is a selected subject ready for research.
type Topic struct {
	Keyword         string   `json:"keyword"`
	Score           float64  `json:"score"`
	Angle           string   `json:"angle,omitempty"`
	SuggestedFormat string   `json:"suggested_format,omitempty"`
	Title           string   `json:"title,omitempty"`
	Outline         []string `json:"outline,omitempty"`
}

// ResearchResult holds supporting material gathered for a topic before drafting.
type ResearchResult struct {
	RelatedFacts   []string `json:"related_facts"`
	Statistics     []string `json:"statistics"`
	ExternalQuotes []string `json:"external_quotes"`
}

// Article is the structured document produced by the generation chain.
// Each chain stage replaces it wholesale; a stage never partially mutates it.
type Article struct {
	Title    string   `json:"title"`
	Summary  string   `json:"summary"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`

	// SEO extension, populated by enrichment.
	MetaDescription string   `json:"meta_description,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	InternalLinks   []string `json:"internal_links,omitempty"`

	// Reader prompts, populated by enrichment.
	CallToActions *CallToActions `json:"call_to_actions,omitempty"`
}

// CallToActions are reader prompts suggested during enrichment.
type CallToActions struct {
	CommentPrompt      string `json:"comment_prompt"`
	RelatedArticleLink string `json:"related_article_link,omitempty"`
	SubscribePrompt    string `json:"subscribe_prompt"`
}

// PublishedRecord is the durable identity of a story in the content backend.
// At most one exists per logical story.
type PublishedRecord struct {
	ArticleID   string    `json:"article_id"`
	Slug        string    `json:"slug"`
	CoverURL    string    `json:"cover_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// ThreadPost is one short-form social post derived from a published article.
type ThreadPost struct {
	Text       string `json:"text"`
	OrderIndex int    `json:"order_index"`
	UniqueID   string `json:"unique_id"`
}

// ItemOutcome is the terminal state of one item in a pipeline run.
type ItemOutcome string

const (
	OutcomePublished        ItemOutcome = "published"
	OutcomeSkippedDuplicate ItemOutcome = "skipped_duplicate"
	OutcomeSkippedFailure   ItemOutcome = "skipped_failure"
)

// RunReport aggregates the counts of a completed pipeline run.
type RunReport struct {
	RunID     string    `json:"run_id"`
	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	Total     int       `json:"total"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// GenerateID creates a short, stable ID by hashing the provided string input
func GenerateID(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}
