// Package social turns published articles into short announcement threads
// and posts them within the platform's rate and quota limits.
package social

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"newsmith/config"
	"newsmith/llm"
	"newsmith/types"
)

const threadSystemPrompt = `You write social media announcement threads for newly published articles. Given an article title and summary, respond ONLY with a JSON array of exactly 2 strings: the first post hooks the reader, the second post summarises the payoff. No hashtag spam, at most one hashtag per post. Each post must be under 240 characters so a link still fits.`

// GenerateThread produces the two-post announcement thread for a published
// article. The article URL is appended to the second post so the thread always
// ends with the link, and each post carries a unique id derived from the slug
// and its position so retried runs never double-post.
func GenerateThread(ctx context.Context, generator llm.Generator, article *types.Article, rec *types.PublishedRecord, siteBase string) ([]types.ThreadPost, error) {
	user := fmt.Sprintf("TITLE: %s\nSUMMARY: %s", article.Title, article.Summary)
	raw, err := generator.Generate(ctx, threadSystemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate thread: %w", err)
	}

	var texts []string
	if err := llm.DecodeArray(raw, &texts); err != nil {
		return nil, fmt.Errorf("unparseable thread response: %w", err)
	}
	if len(texts) != 2 {
		return nil, fmt.Errorf("expected 2 thread posts, got %d", len(texts))
	}

	articleURL := strings.TrimRight(siteBase, "/") + "/" + rec.Slug
	texts[1] = appendURL(texts[1], articleURL)

	posts := make([]types.ThreadPost, 0, len(texts))
	for i, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, fmt.Errorf("thread post %d is empty", i)
		}
		if utf8.RuneCountInString(text) > config.MaxPostLength {
			text = truncatePost(text, config.MaxPostLength)
		}
		posts = append(posts, types.ThreadPost{
			Text:       text,
			OrderIndex: i,
			UniqueID:   types.GenerateID(fmt.Sprintf("%s#%d", rec.Slug, i)),
		})
	}
	return posts, nil
}

func appendURL(text, url string) string {
	text = strings.TrimSpace(text)
	if strings.Contains(text, url) {
		return text
	}
	return text + "\n" + url
}

// truncatePost trims on a word boundary, preserving a trailing URL line if
// one was appended. The limit counts runes, never splitting a multi-byte
// character.
func truncatePost(text string, limit int) string {
	lines := strings.SplitN(text, "\n", 2)
	suffix := ""
	body := text
	if len(lines) == 2 && strings.HasPrefix(lines[1], "http") {
		body, suffix = lines[0], "\n"+lines[1]
		limit -= utf8.RuneCountInString(suffix)
		if limit < 0 {
			limit = 0
		}
	}
	if runes := []rune(body); len(runes) > limit {
		head := string(runes[:limit])
		if cut := strings.LastIndex(head, " "); cut > 0 {
			head = head[:cut]
		}
		body = strings.TrimSpace(head)
	}
	return body + suffix
}
