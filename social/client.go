package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client posts to a Twitter-style v2 API. Replies are chained through
// reply.in_reply_to_tweet_id so a thread renders as one conversation.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type postRequest struct {
	Text  string `json:"text"`
	Reply *struct {
		InReplyToTweetID string `json:"in_reply_to_tweet_id"`
	} `json:"reply,omitempty"`
}

type postResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Post publishes one post and returns its platform id. A 429 is translated
// into a RateLimitError carrying the x-rate-limit-reset timestamp.
func (c *Client) Post(ctx context.Context, text, inReplyTo string) (string, error) {
	payload := postRequest{Text: text}
	if inReplyTo != "" {
		payload.Reply = &struct {
			InReplyToTweetID string `json:"in_reply_to_tweet_id"`
		}{InReplyToTweetID: inReplyTo}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &RateLimitError{ResetAt: parseResetHeader(resp.Header.Get("x-rate-limit-reset"))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("social API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var result postResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode post response: %w", err)
	}
	if result.Data.ID == "" {
		return "", fmt.Errorf("social API returned no post id")
	}
	return result.Data.ID, nil
}

// parseResetHeader reads the unix-seconds reset timestamp. A missing or
// malformed header degrades to "one minute from now".
func parseResetHeader(value string) time.Time {
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0)
	}
	return time.Now().Add(time.Minute)
}
