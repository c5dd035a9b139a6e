package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

const (
	chatEndpoint   = "https://api.cohere.com/v2/chat"
	requestTimeout = 90 * time.Second
)

// Cohere implements Generator and Embedder against the Cohere v2 API.
// Chat goes through the REST endpoint directly; embeddings use the SDK.
type Cohere struct {
	apiKey          string
	completionModel string
	embeddingModel  string
	httpClient      *http.Client
	sdk             *cohereclient.Client
}

// NewCohere creates a client for the given models.
func NewCohere(apiKey, completionModel, embeddingModel string) *Cohere {
	// Force HTTP/1.1 to avoid HTTP/2 protocol errors seen with the Cohere API
	httpClient := &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}

	sdk := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)

	return &Cohere{
		apiKey:          apiKey,
		completionModel: completionModel,
		embeddingModel:  embeddingModel,
		httpClient:      httpClient,
		sdk:             sdk,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
}

// Generate sends one system+user exchange and returns the assistant text.
func (c *Cohere) Generate(ctx context.Context, system, user string) (string, error) {
	messages := []chatMessage{}
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	body, err := json.Marshal(chatRequest{Model: c.completionModel, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatEndpoint, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusTooManyRequests {
		raw, _ := io.ReadAll(resp.Body)
		if isQuotaMessage(string(raw)) || resp.StatusCode == http.StatusPaymentRequired {
			return "", fmt.Errorf("chat status %d: %w", resp.StatusCode, ErrQuotaExceeded)
		}
		return "", fmt.Errorf("chat rate limited (status %d): %s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	var sb strings.Builder
	for _, item := range parsed.Message.Content {
		if item.Type == "" || item.Type == "text" {
			sb.WriteString(item.Text)
		}
	}
	text := sb.String()
	if text == "" {
		return "", errors.New("chat returned empty content")
	}
	return text, nil
}

// EmbedTexts generates one embedding per input text via the Cohere Embed API.
func (c *Cohere) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := c.sdk.V2.Embed(
		ctx,
		&cohere.V2EmbedRequest{
			Texts:          texts,
			Model:          c.embeddingModel,
			InputType:      cohere.EmbedInputTypeSearchDocument,
			EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
		},
	)
	if err != nil {
		if isQuotaMessage(err.Error()) {
			return nil, fmt.Errorf("embed: %w", ErrQuotaExceeded)
		}
		return nil, fmt.Errorf("cohere embed error: %w", err)
	}
	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return nil, errors.New("cohere embed returned no float embeddings")
	}

	floats := resp.Embeddings.Float
	if len(floats) != len(texts) {
		return nil, errors.New("embedding count mismatch")
	}

	out := make([][]float32, len(floats))
	for i, vec := range floats {
		fv := make([]float32, len(vec))
		for j, v := range vec {
			fv[j] = float32(v)
		}
		out[i] = fv
	}
	return out, nil
}

func (c *Cohere) ModelName() string { return c.embeddingModel }

func isQuotaMessage(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "quota") ||
		strings.Contains(s, "credit") ||
		strings.Contains(s, "billing") ||
		strings.Contains(s, "trial key")
}
