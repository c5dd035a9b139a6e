// Package dedup answers "has this story already been covered?" against the
// semantic index of previously published stories.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"newsmith/alerts"
	"newsmith/config"
	"newsmith/llm"
	"newsmith/vecindex"
)

// Config tunes the detector. Zero values fall back to the defaults below.
type Config struct {
	// SimilarityThreshold marks a neighbour as a candidate duplicate.
	// Candidates still require confirmation before they count.
	SimilarityThreshold float32
	// MaxSearchResults is the top-N neighbours pulled per query.
	MaxSearchResults int
	// ConfirmationEnabled gates the secondary yes/no verification call.
	// Disabling it makes raw similarity decisive (not recommended:
	// topically-similar-but-distinct stories are common in this domain).
	ConfirmationEnabled bool
}

// Detector checks incoming stories against the published-story index.
type Detector struct {
	index     vecindex.Index
	embedder  llm.Embedder
	generator llm.Generator
	notifier  *alerts.Notifier
	cfg       Config
}

// NewDetector wires a detector. notifier may be shared with the coordinator
// so quota alerts fire at most once per run.
func NewDetector(index vecindex.Index, embedder llm.Embedder, generator llm.Generator, notifier *alerts.Notifier, cfg Config) *Detector {
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = config.SimilarityThreshold
	}
	if cfg.MaxSearchResults == 0 {
		cfg.MaxSearchResults = config.MaxSearchResults
	}
	return &Detector{
		index:     index,
		embedder:  embedder,
		generator: generator,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// Exists reports whether the story described by title+summary has already
// been published. Index outages degrade to "not a duplicate" so the pipeline
// does not stall; the coordinator decides whether to proceed.
func (d *Detector) Exists(ctx context.Context, title, summary string) (bool, error) {
	text := joinText(title, summary)

	vectors, err := d.embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		if errors.Is(err, llm.ErrQuotaExceeded) {
			d.alert(ctx, alerts.ClassGenerationQuota, err)
			return false, nil
		}
		return false, fmt.Errorf("embed incoming story: %w", err)
	}
	if len(vectors) != 1 {
		return false, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}

	matches, err := d.index.Query(ctx, vectors[0], d.cfg.MaxSearchResults)
	if err != nil {
		if errors.Is(err, vecindex.ErrQuotaExceeded) {
			d.alert(ctx, alerts.ClassIndexQuota, err)
			return false, nil
		}
		log.Printf("Warning: similarity query failed, treating as not duplicate: %v", err)
		return false, nil
	}

	// Candidates above the threshold, best first. An empty index yields no
	// candidates and therefore no confirmation call.
	var candidates []vecindex.Match
	for _, m := range matches {
		if m.Score >= d.cfg.SimilarityThreshold {
			candidates = append(candidates, m)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	for _, candidate := range candidates {
		if !d.cfg.ConfirmationEnabled {
			log.Printf("Duplicate by similarity alone: %s (%.2f)", candidate.ID, candidate.Score)
			return true, nil
		}
		confirmed, err := d.confirm(ctx, text, candidate)
		if err != nil {
			// A failed confirmation never promotes a candidate.
			log.Printf("Warning: confirmation failed for %s: %v", candidate.ID, err)
			continue
		}
		if confirmed {
			log.Printf("Confirmed duplicate: %s (%.2f similarity)", candidate.ID, candidate.Score)
			return true, nil
		}
		log.Printf("Candidate %s rejected by confirmation (%.2f similarity)", candidate.ID, candidate.Score)
	}

	return false, nil
}

// Add stores the story's embedding unconditionally. Call it only after the
// story was actually published so unpublished drafts never pollute the index.
func (d *Detector) Add(ctx context.Context, title, summary string) error {
	return d.AddWithMetadata(ctx, title, summary, nil)
}

// AddWithMetadata is Add with extra index metadata (slug, article id) so the
// same entry also serves related-article lookups.
func (d *Detector) AddWithMetadata(ctx context.Context, title, summary string, extra map[string]interface{}) error {
	text := joinText(title, summary)

	vectors, err := d.embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("embed published story: %w", err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}

	id := fingerprint(text)
	metadata := map[string]interface{}{
		"title":       title,
		"summary":     summary,
		"fingerprint": id,
		"model":       d.embedder.ModelName(),
		"added_at":    time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range extra {
		metadata[k] = v
	}
	if err := d.index.Upsert(ctx, id, vectors[0], metadata); err != nil {
		if errors.Is(err, vecindex.ErrQuotaExceeded) {
			d.alert(ctx, alerts.ClassIndexQuota, err)
		}
		return fmt.Errorf("failed to add story to index: %w", err)
	}
	return nil
}

const confirmSystemPrompt = `You compare two news stories and decide whether they cover the same underlying event or subject. Respond ONLY with a JSON object: {"duplicate": true} or {"duplicate": false}. Stories on similar topics but about distinct events are NOT duplicates.`

// confirm runs the secondary yes/no verification against one candidate.
func (d *Detector) confirm(ctx context.Context, incoming string, candidate vecindex.Match) (bool, error) {
	existing := candidateText(candidate)

	user := fmt.Sprintf("STORY A:\n%s\n\nSTORY B:\n%s\n\nAre these the same story?", incoming, existing)
	raw, err := d.generator.Generate(ctx, confirmSystemPrompt, user)
	if err != nil {
		if errors.Is(err, llm.ErrQuotaExceeded) {
			d.alert(ctx, alerts.ClassGenerationQuota, err)
		}
		return false, err
	}

	var verdict struct {
		Duplicate bool `json:"duplicate"`
	}
	if err := llm.DecodeObject(raw, &verdict); err != nil {
		return false, fmt.Errorf("unparseable confirmation verdict: %w", err)
	}
	return verdict.Duplicate, nil
}

func (d *Detector) alert(ctx context.Context, class string, err error) {
	if d.notifier != nil {
		d.notifier.Notify(ctx, class, err.Error())
	}
}

func candidateText(m vecindex.Match) string {
	title, _ := m.Metadata["title"].(string)
	summary, _ := m.Metadata["summary"].(string)
	text := joinText(title, summary)
	if strings.TrimSpace(text) == "" {
		return m.ID
	}
	return text
}

func joinText(title, summary string) string {
	return strings.TrimSpace(title + "\n" + summary)
}

func fingerprint(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])[:16]
}
