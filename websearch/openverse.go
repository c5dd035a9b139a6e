package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Openverse searches the openly-licensed Openverse image catalog. It needs
// no API key, which makes it a useful second provider next to Serper.
type Openverse struct {
	httpClient *http.Client
}

// NewOpenverse creates an Openverse client.
func NewOpenverse() *Openverse {
	return &Openverse{httpClient: &http.Client{Timeout: 20 * time.Second}}
}

// Images returns up to k image results for q.
func (o *Openverse) Images(ctx context.Context, q string, k int) ([]ImageResult, error) {
	endpoint := fmt.Sprintf("https://api.openverse.org/v1/images/?q=%s&page_size=%d",
		url.QueryEscape(q), k)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openverse request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openverse returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Results []struct {
			Title      string `json:"title"`
			URL        string `json:"url"`
			ForeignURL string `json:"foreign_landing_url"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse openverse response: %w", err)
	}

	var out []ImageResult
	for i, item := range parsed.Results {
		if i >= k {
			break
		}
		out = append(out, ImageResult{Title: item.Title, ImageURL: item.URL, SourceURL: item.ForeignURL})
	}
	return out, nil
}
