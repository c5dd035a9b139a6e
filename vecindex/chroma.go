package vecindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Chroma implements Index against the Chroma vector database v2 REST API.
// Embeddings are supplied by the caller; Chroma v2 expects client-side vectors.
type Chroma struct {
	baseURL        string
	tenant         string
	database       string
	collectionName string
	collectionID   string
	httpClient     *http.Client
}

// ChromaConfig holds configuration for the Chroma connection.
type ChromaConfig struct {
	Host           string
	Port           int
	CollectionName string
}

// queryResults mirrors Chroma's nested response shape.
type queryResults struct {
	IDs       [][]string                 `json:"ids"`
	Distances [][]float32                `json:"distances"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
}

// NewChroma connects to Chroma and ensures the collection exists.
func NewChroma(config ChromaConfig) (*Chroma, error) {
	wrapper := &Chroma{
		baseURL:        fmt.Sprintf("http://%s:%d/api/v2", config.Host, config.Port),
		tenant:         "default_tenant",
		database:       "default_database",
		collectionName: config.CollectionName,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
	}

	collectionID, err := wrapper.getOrCreateCollection(config.CollectionName)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection: %w", err)
	}

	wrapper.collectionID = collectionID
	return wrapper, nil
}

// getOrCreateCollection gets an existing collection or creates a new one
func (c *Chroma) getOrCreateCollection(name string) (string, error) {
	url := fmt.Sprintf("%s/tenants/%s/databases/%s/collections/%s", c.baseURL, c.tenant, c.database, name)
	resp, err := c.httpClient.Get(url)
	if err == nil && resp.StatusCode == http.StatusOK {
		defer resp.Body.Close()
		var result map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return "", err
		}
		log.Printf("Using existing collection: %s", name)
		return result["id"].(string), nil
	}
	if resp != nil {
		resp.Body.Close()
	}

	log.Printf("Creating new collection: %s", name)
	createURL := fmt.Sprintf("%s/tenants/%s/databases/%s/collections", c.baseURL, c.tenant, c.database)
	payload := map[string]interface{}{
		"name": name,
		"metadata": map[string]interface{}{
			"description": "newsmith published-story index",
		},
		"get_or_create": true,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	resp, err = c.httpClient.Post(createURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create collection: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("failed to create collection (status %d): %s", resp.StatusCode, string(body))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w, body: %s", err, string(body))
	}
	return result["id"].(string), nil
}

func (c *Chroma) collectionURL() string {
	return fmt.Sprintf("%s/tenants/%s/databases/%s/collections/%s", c.baseURL, c.tenant, c.database, c.collectionID)
}

// Upsert writes one vector with its metadata. Existing IDs are overwritten,
// which keeps republished stories single-entry.
func (c *Chroma) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]interface{}) error {
	payload := map[string]interface{}{
		"ids":        []string{id},
		"embeddings": [][]float32{vector},
		"metadatas":  []map[string]interface{}{metadata},
	}
	if _, err := c.post(ctx, "/upsert", payload); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	log.Printf("Upserted index entry %s", id)
	return nil
}

// Query returns the topK nearest neighbours for vector, scored by cosine
// similarity (Chroma reports cosine distance; similarity = 1 - distance).
func (c *Chroma) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	payload := map[string]interface{}{
		"query_embeddings": [][]float32{vector},
		"n_results":        topK,
		"include":          []string{"metadatas", "distances"},
	}
	body, err := c.post(ctx, "/query", payload)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	var results queryResults
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("failed to parse query response: %w", err)
	}

	var matches []Match
	if len(results.IDs) > 0 {
		for i, id := range results.IDs[0] {
			match := Match{ID: id}
			if len(results.Distances) > 0 && len(results.Distances[0]) > i {
				match.Score = 1.0 - results.Distances[0][i]
			}
			if len(results.Metadatas) > 0 && len(results.Metadatas[0]) > i {
				match.Metadata = results.Metadatas[0][i]
			}
			matches = append(matches, match)
		}
	}
	return matches, nil
}

// Count returns the number of entries in the collection.
func (c *Chroma) Count(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.collectionURL()+"/count", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("failed to count documents: %s", string(body))
	}

	var count int
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (c *Chroma) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.collectionURL()+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("status %d: %s: %w", resp.StatusCode, string(body), ErrQuotaExceeded)
	}
	if isQuotaBody(string(body)) && resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d: %s: %w", resp.StatusCode, string(body), ErrQuotaExceeded)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func isQuotaBody(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "quota") || strings.Contains(s, "limit exceeded")
}
