package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"
)

// Incident classes used across the pipeline.
const (
	ClassIndexQuota      = "index_quota"
	ClassGenerationQuota = "generation_quota"
)

// Sender delivers one alert message. Implementations must be fire-and-forget
// safe: a delivery failure is logged, never propagated.
type Sender interface {
	Send(ctx context.Context, class, message string) error
}

// Notifier deduplicates alerts per incident class. Each Notifier instance
// owns its own seen-set, so scoping one to a pipeline run gives exactly-once
// semantics that tests can assert deterministically.
type Notifier struct {
	mu     sync.Mutex
	seen   map[string]bool
	sender Sender
}

// NewNotifier creates a Notifier backed by sender. A nil sender logs only.
func NewNotifier(sender Sender) *Notifier {
	return &Notifier{
		seen:   make(map[string]bool),
		sender: sender,
	}
}

// Notify sends the alert unless this class already fired on this Notifier.
// Returns whether the alert was actually dispatched.
func (n *Notifier) Notify(ctx context.Context, class, message string) bool {
	n.mu.Lock()
	if n.seen[class] {
		n.mu.Unlock()
		return false
	}
	n.seen[class] = true
	n.mu.Unlock()

	log.Printf("⚠️  ALERT [%s]: %s", class, message)
	if n.sender == nil {
		return true
	}
	if err := n.sender.Send(ctx, class, message); err != nil {
		log.Printf("failed to deliver alert [%s]: %v", class, err)
	}
	return true
}

// Webhook posts alerts as JSON to an operator-configured URL.
type Webhook struct {
	URL        string
	httpClient *http.Client
}

// NewWebhook creates a webhook sender for the given URL.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		URL:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Send(ctx context.Context, class, message string) error {
	payload, err := json.Marshal(map[string]string{
		"class":   class,
		"message": message,
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
