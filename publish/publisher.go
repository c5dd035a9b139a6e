package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"newsmith/config"
	"newsmith/types"
)

// Publisher sends finished articles to the content backend over its JSON API.
type Publisher struct {
	baseURL    string
	token      string
	siteBase   string
	httpClient *http.Client
	now        func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Publisher) { p.httpClient = c }
}

// WithClock overrides the publish timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// NewPublisher creates a publisher targeting the content backend at baseURL.
// siteBase is the public site root used to absolutize internal links.
func NewPublisher(baseURL, token, siteBase string, opts ...Option) *Publisher {
	p := &Publisher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		siteBase:   strings.TrimRight(siteBase, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type articlePayload struct {
	Title           string               `json:"title"`
	Slug            string               `json:"slug"`
	Summary         string               `json:"summary"`
	Content         string               `json:"content"`
	Category        string               `json:"category"`
	Tags            []string             `json:"tags"`
	MetaDescription string               `json:"metaDescription,omitempty"`
	Keywords        []string             `json:"keywords,omitempty"`
	CallToActions   *types.CallToActions `json:"callToActions,omitempty"`
	CoverURL        string               `json:"coverUrl,omitempty"`
	PublishedAt     string               `json:"publishedAt"`
}

type publishResponse struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
}

// Publish stores the article on the content backend and returns the record
// describing where it now lives. The slug is derived deterministically from
// the title so retries of the same article land on the same URL.
func (p *Publisher) Publish(ctx context.Context, article *types.Article, coverURL string) (*types.PublishedRecord, error) {
	if article == nil || strings.TrimSpace(article.Title) == "" {
		return nil, fmt.Errorf("cannot publish article without a title")
	}

	slug := Slugify(article.Title)
	publishedAt := p.now().UTC()

	payload := articlePayload{
		Title:           article.Title,
		Slug:            slug,
		Summary:         article.Summary,
		Content:         NormalizeLinks(article.Content, p.siteBase),
		Category:        article.Category,
		Tags:            article.Tags,
		MetaDescription: article.MetaDescription,
		Keywords:        article.Keywords,
		CallToActions:   article.CallToActions,
		CoverURL:        coverURL,
		PublishedAt:     publishedAt.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal article payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/articles", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("publish request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("content backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode publish response: %w", err)
	}
	if result.Slug == "" {
		result.Slug = slug
	}
	if result.ID == "" {
		result.ID = types.GenerateID(slug)
	}

	log.Printf("✅ Published %q as /%s", article.Title, result.Slug)
	return &types.PublishedRecord{
		ArticleID:   result.ID,
		Slug:        result.Slug,
		CoverURL:    coverURL,
		PublishedAt: publishedAt,
	}, nil
}

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
	mdLinkExpr = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)
)

// Slugify derives a URL slug from a title: lowercased, runs of anything
// outside [a-z0-9] collapsed to single hyphens, capped in length. The same
// title always yields the same slug.
func Slugify(title string) string {
	slug := nonAlnum.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > config.SlugMaxLength {
		slug = strings.Trim(slug[:config.SlugMaxLength], "-")
	}
	return slug
}

// NormalizeLinks rewrites markdown links in content so relative targets
// become absolute against siteBase. Links whose target does not parse are
// reduced to their label text rather than shipped broken.
func NormalizeLinks(content, siteBase string) string {
	return mdLinkExpr.ReplaceAllStringFunc(content, func(match string) string {
		parts := mdLinkExpr.FindStringSubmatch(match)
		label, target := parts[1], parts[2]

		if target == "" || strings.ContainsAny(target, " \t\n") {
			return label
		}
		parsed, err := url.Parse(target)
		if err != nil {
			return label
		}
		if parsed.IsAbs() {
			if parsed.Scheme != "http" && parsed.Scheme != "https" {
				return label
			}
			return match
		}
		if siteBase == "" {
			return match
		}
		if !strings.HasPrefix(target, "/") {
			target = "/" + target
		}
		return fmt.Sprintf("[%s](%s%s)", label, siteBase, target)
	})
}
