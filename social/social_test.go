package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"newsmith/cache"
	"newsmith/types"
)

type fakeGenerator struct {
	response string
	err      error
}

func (f *fakeGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	return f.response, f.err
}

func TestGenerateThreadAppendsURL(t *testing.T) {
	gen := &fakeGenerator{response: `["Big news about Go!", "Here is why it matters."]`}
	article := &types.Article{Title: "Go News", Summary: "Summary."}
	rec := &types.PublishedRecord{Slug: "go-news"}

	posts, err := GenerateThread(context.Background(), gen, article, rec, "https://site.test/")
	if err != nil {
		t.Fatalf("GenerateThread: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(posts))
	}
	if strings.Contains(posts[0].Text, "https://site.test/go-news") {
		t.Errorf("first post should not carry the URL: %q", posts[0].Text)
	}
	if !strings.HasSuffix(posts[1].Text, "https://site.test/go-news") {
		t.Errorf("second post should end with the URL: %q", posts[1].Text)
	}
	if posts[0].UniqueID == posts[1].UniqueID {
		t.Error("posts must have distinct unique ids")
	}
	if posts[0].OrderIndex != 0 || posts[1].OrderIndex != 1 {
		t.Errorf("order indexes wrong: %d, %d", posts[0].OrderIndex, posts[1].OrderIndex)
	}
}

func TestGenerateThreadStableIDs(t *testing.T) {
	gen := &fakeGenerator{response: `["a post", "another post"]`}
	article := &types.Article{Title: "T"}
	rec := &types.PublishedRecord{Slug: "t"}

	first, err := GenerateThread(context.Background(), gen, article, rec, "https://s.test")
	if err != nil {
		t.Fatal(err)
	}
	second, err := GenerateThread(context.Background(), gen, article, rec, "https://s.test")
	if err != nil {
		t.Fatal(err)
	}
	if first[0].UniqueID != second[0].UniqueID || first[1].UniqueID != second[1].UniqueID {
		t.Error("the same article must yield the same unique ids on every run")
	}
}

func TestGenerateThreadRejectsWrongCount(t *testing.T) {
	gen := &fakeGenerator{response: `["only one post"]`}
	_, err := GenerateThread(context.Background(), gen, &types.Article{Title: "T"}, &types.PublishedRecord{Slug: "t"}, "https://s.test")
	if err == nil {
		t.Fatal("expected error for a 1-post thread")
	}
}

func TestGenerateThreadTruncatesKeepingURL(t *testing.T) {
	long := strings.Repeat("word ", 80)
	gen := &fakeGenerator{response: fmt.Sprintf(`["hook", %q]`, long)}
	rec := &types.PublishedRecord{Slug: "long-story"}

	posts, err := GenerateThread(context.Background(), gen, &types.Article{Title: "T"}, rec, "https://s.test")
	if err != nil {
		t.Fatal(err)
	}
	if len(posts[1].Text) > 280 {
		t.Errorf("post length = %d, want <= 280", len(posts[1].Text))
	}
	if !strings.HasSuffix(posts[1].Text, "https://s.test/long-story") {
		t.Errorf("URL must survive truncation: %q", posts[1].Text)
	}
}

func TestGenerateThreadTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("héllo wörld ", 40)
	gen := &fakeGenerator{response: fmt.Sprintf(`["hook", %q]`, long)}
	rec := &types.PublishedRecord{Slug: "unicode-story"}

	posts, err := GenerateThread(context.Background(), gen, &types.Article{Title: "T"}, rec, "https://s.test")
	if err != nil {
		t.Fatal(err)
	}
	if !utf8.ValidString(posts[1].Text) {
		t.Errorf("truncation split a multi-byte character: %q", posts[1].Text)
	}
	if n := utf8.RuneCountInString(posts[1].Text); n > 280 {
		t.Errorf("post length = %d runes, want <= 280", n)
	}
	if !strings.HasSuffix(posts[1].Text, "https://s.test/unicode-story") {
		t.Errorf("URL must survive truncation: %q", posts[1].Text)
	}
}

type scriptedPoster struct {
	calls   []string
	replies []string
	errs    []error
	nextID  int
}

func (s *scriptedPoster) Post(ctx context.Context, text, inReplyTo string) (string, error) {
	s.calls = append(s.calls, text)
	s.replies = append(s.replies, inReplyTo)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return "", err
		}
	}
	s.nextID++
	return fmt.Sprintf("post-%d", s.nextID), nil
}

func instantSleep(ctx context.Context, d time.Duration) error { return nil }

func threadOf(texts ...string) []types.ThreadPost {
	posts := make([]types.ThreadPost, len(texts))
	for i, text := range texts {
		posts[i] = types.ThreadPost{Text: text, OrderIndex: i, UniqueID: types.GenerateID(text)}
	}
	return posts
}

func TestPublishThreadChainsReplies(t *testing.T) {
	poster := &scriptedPoster{}
	pub := NewPublisher(poster, cache.NewMemory(), WithSleeper(instantSleep))

	if err := pub.PublishThread(context.Background(), threadOf("one", "two")); err != nil {
		t.Fatalf("PublishThread: %v", err)
	}
	if len(poster.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(poster.calls))
	}
	if poster.replies[0] != "" {
		t.Errorf("first post should not be a reply, got %q", poster.replies[0])
	}
	if poster.replies[1] != "post-1" {
		t.Errorf("second post should reply to post-1, got %q", poster.replies[1])
	}
}

func TestPublishThreadQuotaDropsSilently(t *testing.T) {
	store := cache.NewMemory()
	ctx := context.Background()
	key := "social:count:" + time.Now().UTC().Format("2006-01-02")
	if _, err := store.IncrBy(ctx, key, 15, time.Hour); err != nil {
		t.Fatal(err)
	}

	poster := &scriptedPoster{}
	pub := NewPublisher(poster, store, WithDailyLimit(16), WithSleeper(instantSleep))

	if err := pub.PublishThread(ctx, threadOf("one", "two")); err != nil {
		t.Fatalf("quota overflow must not be an error: %v", err)
	}
	if len(poster.calls) != 0 {
		t.Errorf("nothing should be posted over quota, got %d calls", len(poster.calls))
	}
}

func TestPublishThreadSkipsAlreadyPosted(t *testing.T) {
	store := cache.NewMemory()
	ctx := context.Background()
	posts := threadOf("one", "two")
	if _, err := store.SetAdd(ctx, "social:posted", posts[0].UniqueID); err != nil {
		t.Fatal(err)
	}

	poster := &scriptedPoster{}
	pub := NewPublisher(poster, store, WithSleeper(instantSleep))

	if err := pub.PublishThread(ctx, posts); err != nil {
		t.Fatalf("PublishThread: %v", err)
	}
	if len(poster.calls) != 1 || poster.calls[0] != "two" {
		t.Errorf("only the unposted post should go out, calls = %v", poster.calls)
	}
}

func TestPublishThreadRetriesAfterRateLimit(t *testing.T) {
	poster := &scriptedPoster{errs: []error{&RateLimitError{ResetAt: time.Now().Add(time.Second)}}}
	var waited time.Duration
	pub := NewPublisher(poster, cache.NewMemory(),
		WithSleeper(func(ctx context.Context, d time.Duration) error {
			waited += d
			return nil
		}))

	if err := pub.PublishThread(context.Background(), threadOf("one")); err != nil {
		t.Fatalf("rate limit should be retried: %v", err)
	}
	if len(poster.calls) != 2 {
		t.Fatalf("calls = %d, want retry after rate limit", len(poster.calls))
	}
	if waited <= 0 {
		t.Error("publisher must wait out the rate limit window")
	}
}

func TestPublishThreadHardFailureAbortsRemaining(t *testing.T) {
	poster := &scriptedPoster{errs: []error{errors.New("boom")}}
	pub := NewPublisher(poster, cache.NewMemory(), WithSleeper(instantSleep))

	err := pub.PublishThread(context.Background(), threadOf("one", "two"))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(poster.calls) != 1 {
		t.Errorf("remaining posts must not be attempted, calls = %v", poster.calls)
	}
}

func TestPublishThreadFailedPostRetriedOnNextRun(t *testing.T) {
	store := cache.NewMemory()
	poster := &scriptedPoster{errs: []error{errors.New("boom")}}
	pub := NewPublisher(poster, store, WithSleeper(instantSleep))

	posts := threadOf("one", "two")
	if err := pub.PublishThread(context.Background(), posts); err == nil {
		t.Fatal("expected error on first run")
	}

	// The failed post's claim must not survive, or the retry would skip it.
	if err := pub.PublishThread(context.Background(), posts); err != nil {
		t.Fatalf("retried run should succeed: %v", err)
	}
	if len(poster.calls) != 3 || poster.calls[1] != "one" {
		t.Errorf("failed post must be re-attempted, calls = %v", poster.calls)
	}
}

func TestClientPostRateLimit(t *testing.T) {
	reset := time.Now().Add(90 * time.Second).Unix()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rate-limit-reset", fmt.Sprintf("%d", reset))
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	_, err := client.Post(context.Background(), "hello", "")

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rl.ResetAt.Unix() != reset {
		t.Errorf("ResetAt = %d, want %d", rl.ResetAt.Unix(), reset)
	}
}

func TestClientPostSendsReply(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"id": "42"}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok")
	id, err := client.Post(context.Background(), "hello", "41")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if id != "42" {
		t.Errorf("id = %q", id)
	}
	reply, ok := body["reply"].(map[string]interface{})
	if !ok || reply["in_reply_to_tweet_id"] != "41" {
		t.Errorf("reply payload = %v", body["reply"])
	}
}
