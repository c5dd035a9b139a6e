package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"newsmith/cache"
	"newsmith/pipeline"
	"newsmith/queue"
	"newsmith/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubStages struct{}

func (stubStages) Fetch(ctx context.Context) []types.FeedItem { return nil }

func (stubStages) SelectItems(ctx context.Context, items []types.FeedItem, topK int) []types.FeedItem {
	return items
}

func (stubStages) SelectTopics(ctx context.Context, keywords []string, topK int) []types.Topic {
	topics := make([]types.Topic, len(keywords))
	for i, kw := range keywords {
		topics[i] = types.Topic{Keyword: kw, Title: kw}
	}
	return topics
}

func (stubStages) Exists(ctx context.Context, title, summary string) (bool, error) {
	return false, nil
}

func (stubStages) Research(ctx context.Context, topic types.Topic) *types.ResearchResult {
	return &types.ResearchResult{RelatedFacts: []string{"fact"}}
}

func (stubStages) Run(ctx context.Context, topic types.Topic, research *types.ResearchResult) *types.Article {
	return &types.Article{Title: topic.Keyword, Summary: "s", Content: "c"}
}

func (stubStages) SEO(ctx context.Context, article *types.Article) {}

func (stubStages) CallToActions(ctx context.Context, article *types.Article) *types.CallToActions {
	return nil
}

func (stubStages) SelectCover(ctx context.Context, article *types.Article) string { return "" }

type countingPublisher struct {
	published int
}

func (p *countingPublisher) Publish(ctx context.Context, article *types.Article, coverURL string) (*types.PublishedRecord, error) {
	p.published++
	return &types.PublishedRecord{ArticleID: "a1", Slug: "slug", PublishedAt: time.Now()}, nil
}

type noopRecorder struct{}

func (noopRecorder) Record(ctx context.Context, article *types.Article, rec *types.PublishedRecord) error {
	return nil
}

func newTestServer(publisher *countingPublisher) *Server {
	stages := stubStages{}
	coordinator := pipeline.NewCoordinator(pipeline.Deps{
		Collector: stages,
		Selector:  stages,
		Detector:  stages,
		Research:  stages,
		Writer:    stages,
		Enricher:  stages,
		Publisher: publisher,
		Recorder:  noopRecorder{},
		Store:     cache.NewMemory(),
	}, pipeline.Config{})
	return NewServer(coordinator, "task-secret")
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&countingPublisher{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("body = %v", body)
	}
}

func TestTaskEndpointRejectsBadSignature(t *testing.T) {
	publisher := &countingPublisher{}
	server := newTestServer(publisher)

	task := queue.ItemTask{RunID: "r1", Item: types.FeedItem{Title: "T", Link: "https://a.test/t"}}
	body, _ := json.Marshal(task)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/item", bytes.NewReader(body))
	req.Header.Set(queue.SignatureHeader, "deadbeef")
	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if publisher.published != 0 {
		t.Error("unsigned task must not be processed")
	}
}

func TestTaskEndpointProcessesSignedTask(t *testing.T) {
	publisher := &countingPublisher{}
	server := newTestServer(publisher)

	task := queue.ItemTask{RunID: "r1", Item: types.FeedItem{Title: "T", Link: "https://a.test/t"}}
	body, _ := json.Marshal(task)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/item", bytes.NewReader(body))
	req.Header.Set(queue.SignatureHeader, queue.Sign("task-secret", body))
	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if publisher.published != 1 {
		t.Errorf("published = %d, want 1", publisher.published)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["outcome"] != string(types.OutcomePublished) {
		t.Errorf("outcome = %q", resp["outcome"])
	}
}

func TestRunEndpointConflictsWhileRunning(t *testing.T) {
	server := newTestServer(&countingPublisher{})
	server.coordinator.StateManager().TryBegin()
	defer server.coordinator.StateManager().Finish(nil, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/run", nil)
	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestStatusEndpointReportsState(t *testing.T) {
	server := newTestServer(&countingPublisher{})
	server.coordinator.StateManager().AddLog("hello")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	server.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var status pipeline.Status
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.State != pipeline.StateIdle {
		t.Errorf("state = %s", status.State)
	}
	if len(status.Logs) != 1 || status.Logs[0].Message != "hello" {
		t.Errorf("logs = %v", status.Logs)
	}
}
