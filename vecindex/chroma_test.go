package vecindex

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func newTestChroma(t *testing.T, handler http.HandlerFunc) *Chroma {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/tenants/default_tenant/databases/default_database/collections/stories",
		func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"id": "col-1"})
		})
	mux.HandleFunc("/", handler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(server.URL, "http://"))
	if err != nil {
		t.Fatalf("failed to split server addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	chroma, err := NewChroma(ChromaConfig{Host: host, Port: port, CollectionName: "stories"})
	if err != nil {
		t.Fatalf("failed to create chroma client: %v", err)
	}
	return chroma
}

func TestQueryConvertsDistancesToSimilarity(t *testing.T) {
	chroma := newTestChroma(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/query") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ids":       [][]string{{"a", "b"}},
			"distances": [][]float32{{0.05, 0.40}},
			"metadatas": [][]map[string]interface{}{{{"title": "A"}, {"title": "B"}}},
		})
	})

	matches, err := chroma.Query(context.Background(), []float32{0.1, 0.2}, 2)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Score < 0.94 || matches[0].Score > 0.96 {
		t.Fatalf("expected similarity ~0.95, got %f", matches[0].Score)
	}
	if matches[1].Metadata["title"] != "B" {
		t.Fatalf("metadata not carried through: %+v", matches[1].Metadata)
	}
}

func TestQuerySurfacesQuotaError(t *testing.T) {
	chroma := newTestChroma(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"quota exceeded"}`))
	})

	_, err := chroma.Query(context.Background(), []float32{0.1}, 3)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestCountReadsCollectionSize(t *testing.T) {
	chroma := newTestChroma(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/count") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte("7"))
	})

	n, err := chroma.Count(context.Background())
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7, got %d", n)
	}
}

func TestUpsertPostsVector(t *testing.T) {
	var captured map[string]interface{}
	chroma := newTestChroma(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/upsert") {
			json.NewDecoder(r.Body).Decode(&captured)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	})

	err := chroma.Upsert(context.Background(), "story-1", []float32{0.1, 0.2},
		map[string]interface{}{"title": "T"})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	ids, ok := captured["ids"].([]interface{})
	if !ok || len(ids) != 1 || ids[0] != "story-1" {
		t.Fatalf("unexpected ids payload: %+v", captured["ids"])
	}
	if _, ok := captured["embeddings"]; !ok {
		t.Fatal("embeddings missing from upsert payload")
	}
}
