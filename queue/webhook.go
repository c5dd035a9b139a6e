package queue

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Task-Signature"

// WebhookPublisher delivers tasks as signed HTTP POSTs to the task endpoint.
// The receiver verifies the signature before executing anything, so the
// endpoint can be public.
type WebhookPublisher struct {
	endpoint   string
	secret     string
	httpClient *http.Client
}

func NewWebhookPublisher(endpoint, secret string) *WebhookPublisher {
	return &WebhookPublisher{
		endpoint:   endpoint,
		secret:     secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *WebhookPublisher) Enqueue(ctx context.Context, task ItemTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create task request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(w.secret, body))

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("task delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("task endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret, in constant
// time.
func Verify(secret string, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
