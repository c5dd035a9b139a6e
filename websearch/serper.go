// Package websearch provides the external search clients used by research,
// fallback feed discovery, and cover image selection.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Result is one organic web search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// ImageResult is one image search hit.
type ImageResult struct {
	Title     string
	ImageURL  string
	SourceURL string
}

// Searcher finds web documents for a query.
type Searcher interface {
	Search(ctx context.Context, q string, k int) ([]Result, error)
}

// ImageSearcher finds candidate images for a query.
type ImageSearcher interface {
	Images(ctx context.Context, q string, k int) ([]ImageResult, error)
}

// Serper implements web and image search against serper.dev.
type Serper struct {
	APIKey     string
	httpClient *http.Client
}

// NewSerper creates a Serper client.
func NewSerper(apiKey string) *Serper {
	return &Serper{
		APIKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// Search returns up to k organic results for q.
func (s *Serper) Search(ctx context.Context, q string, k int) ([]Result, error) {
	raw, err := s.post(ctx, "https://google.serper.dev/search", map[string]any{"q": q, "num": k})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse serper response: %w", err)
	}

	var out []Result
	for i, item := range parsed.Organic {
		if i >= k {
			break
		}
		out = append(out, Result{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
	}
	return out, nil
}

// Images returns up to k image results for q.
func (s *Serper) Images(ctx context.Context, q string, k int) ([]ImageResult, error) {
	raw, err := s.post(ctx, "https://google.serper.dev/images", map[string]any{"q": q, "num": k})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Images []struct {
			Title    string `json:"title"`
			ImageURL string `json:"imageUrl"`
			Link     string `json:"link"`
		} `json:"images"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse serper images response: %w", err)
	}

	var out []ImageResult
	for i, item := range parsed.Images {
		if i >= k {
			break
		}
		out = append(out, ImageResult{Title: item.Title, ImageURL: item.ImageURL, SourceURL: item.Link})
	}
	return out, nil
}

func (s *Serper) post(ctx context.Context, url string, payload map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper returned status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
