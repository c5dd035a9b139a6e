package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Wikipedia fetches page summaries from the Wikimedia REST API.
type Wikipedia struct {
	baseURL    string
	httpClient *http.Client
}

// NewWikipedia creates a client for the English Wikipedia.
func NewWikipedia() *Wikipedia {
	return &Wikipedia{
		baseURL:    "https://en.wikipedia.org/api/rest_v1",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Summary returns the lead extract for the page best matching title.
// A missing page is not an error; it returns an empty summary.
func (w *Wikipedia) Summary(ctx context.Context, title string) (string, error) {
	page := strings.ReplaceAll(strings.TrimSpace(title), " ", "_")
	endpoint := fmt.Sprintf("%s/page/summary/%s", w.baseURL, url.PathEscape(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("wikipedia request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wikipedia returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Extract string `json:"extract"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parse wikipedia response: %w", err)
	}
	return parsed.Extract, nil
}
