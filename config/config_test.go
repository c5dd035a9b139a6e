package config

import (
	"testing"
)

func TestLoadResolvesFeedPresets(t *testing.T) {
	t.Setenv("COHERE_API_KEY", "test-key")
	t.Setenv("FEED_SOURCES", "hn, https://example.com/custom.xml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.FeedSources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(cfg.FeedSources))
	}
	if cfg.FeedSources[0] != FeedPresets["hn"] {
		t.Fatalf("preset name not resolved, got %q", cfg.FeedSources[0])
	}
	if cfg.FeedSources[1] != "https://example.com/custom.xml" {
		t.Fatalf("full URL must pass through, got %q", cfg.FeedSources[1])
	}
}

func TestLoadRequiresCohereKey(t *testing.T) {
	t.Setenv("COHERE_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without COHERE_API_KEY")
	}
}

func TestLoadDefaultsFeedSources(t *testing.T) {
	t.Setenv("COHERE_API_KEY", "test-key")
	t.Setenv("FEED_SOURCES", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.FeedSources) == 0 {
		t.Fatal("expected default feed sources")
	}
}
