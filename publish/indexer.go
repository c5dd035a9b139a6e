package publish

import (
	"context"
	"fmt"

	"newsmith/dedup"
	"newsmith/types"
)

// Indexer records a published article in the similarity index so future runs
// both skip duplicates of it and can surface it as a related link. Recording
// happens strictly after a successful publish; a failed publish must never
// leave an index entry behind.
type Indexer struct {
	detector *dedup.Detector
}

func NewIndexer(detector *dedup.Detector) *Indexer {
	return &Indexer{detector: detector}
}

// Record adds the published article to the index exactly once. The slug and
// article id ride along as metadata so related-article lookups resolve to a
// live URL.
func (ix *Indexer) Record(ctx context.Context, article *types.Article, rec *types.PublishedRecord) error {
	if article == nil || rec == nil {
		return fmt.Errorf("cannot index a nil article or record")
	}
	extra := map[string]interface{}{
		"slug":       rec.Slug,
		"article_id": rec.ArticleID,
	}
	if err := ix.detector.AddWithMetadata(ctx, article.Title, article.Summary, extra); err != nil {
		return fmt.Errorf("failed to index published article: %w", err)
	}
	return nil
}
