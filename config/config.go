package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
// Entrypoints call godotenv.Load() before Load so a local .env works in dev.
type Config struct {
	// Feed sources, comma separated URLs
	FeedSources []string

	// Redis (cache, idempotency sets, daily counters)
	RedisAddr string
	RedisPass string
	RedisDB   int

	// Cohere generation service
	CohereAPIKey    string
	CompletionModel string
	EmbeddingModel  string

	// Chroma similarity index
	ChromaHost       string
	ChromaPort       int
	ChromaCollection string

	// Serper web/image search
	SerperAPIKey string

	// Content backend
	BackendURL   string
	BackendToken string
	SiteBaseURL  string

	// Social platform
	SocialAPIURL string
	SocialToken  string

	// Task queue: webhook by default, Kafka when brokers are set
	TaskEndpoint string
	TaskSecret   string
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Media re-hosting (optional)
	S3Bucket string
	S3Region string
	S3Prefix string

	// Operator alerts (optional)
	AlertWebhookURL string

	// Daemon
	Port     string
	CronSpec string

	// Tunables with constant defaults
	SimilarityThreshold float32
	ConfirmationEnabled bool
	DailyPostLimit      int
	TopK                int
	RecencyWindow       time.Duration
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		RedisAddr:        getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPass:        os.Getenv("REDIS_PASS"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		CohereAPIKey:     os.Getenv("COHERE_API_KEY"),
		CompletionModel:  getEnvOrDefault("COHERE_MODEL", "command-a-03-2025"),
		EmbeddingModel:   getEnvOrDefault("EMBEDDING_MODEL", "embed-english-v3.0"),
		ChromaHost:       getEnvOrDefault("CHROMA_HOST", "localhost"),
		ChromaPort:       getEnvInt("CHROMA_PORT", 8000),
		ChromaCollection: getEnvOrDefault("CHROMA_COLLECTION", "published_stories"),
		SerperAPIKey:     os.Getenv("SERPER_API_KEY"),
		BackendURL:       os.Getenv("BACKEND_URL"),
		BackendToken:     os.Getenv("BACKEND_TOKEN"),
		SiteBaseURL:      getEnvOrDefault("SITE_BASE_URL", "https://example.com"),
		SocialAPIURL:     getEnvOrDefault("SOCIAL_API_URL", "https://api.twitter.com/2"),
		SocialToken:      os.Getenv("SOCIAL_TOKEN"),
		TaskEndpoint:     os.Getenv("TASK_ENDPOINT"),
		TaskSecret:       os.Getenv("TASK_SECRET"),
		KafkaTopic:       getEnvOrDefault("KAFKA_TOPIC", "newsmith.items"),
		KafkaGroupID:     getEnvOrDefault("KAFKA_GROUP_ID", "newsmith-workers"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3Region:         os.Getenv("S3_REGION"),
		S3Prefix:         getEnvOrDefault("S3_PREFIX", "covers/"),
		AlertWebhookURL:  os.Getenv("ALERT_WEBHOOK_URL"),
		Port:             getEnvOrDefault("PORT", "8080"),
		CronSpec:         getEnvOrDefault("CRON_SPEC", "0 */6 * * *"),

		SimilarityThreshold: float32(getEnvFloat("SIMILARITY_THRESHOLD", SimilarityThreshold)),
		ConfirmationEnabled: getEnvBool("DEDUP_CONFIRMATION", true),
		DailyPostLimit:      getEnvInt("DAILY_POST_LIMIT", DailyPostLimit),
		TopK:                getEnvInt("TOP_K", TopK),
		RecencyWindow:       getEnvDuration("RECENCY_WINDOW", RecencyWindow),
	}

	// FEED_SOURCES entries may be preset names or full URLs.
	if v := os.Getenv("FEED_SOURCES"); v != "" {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.FeedSources = append(cfg.FeedSources, ResolveFeedURL(s))
			}
		}
	}
	if len(cfg.FeedSources) == 0 {
		cfg.FeedSources = DefaultFeedSources()
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if cfg.CohereAPIKey == "" {
		return nil, fmt.Errorf("COHERE_API_KEY is required")
	}

	return cfg, nil
}

// FeedPresets maps friendly names to feed URLs
var FeedPresets = map[string]string{
	"cna": "https://www.channelnewsasia.com/api/v1/rss-outbound-feed?_format=xml",
	"hn":  "https://hnrss.org/newest",
	"tr":  "https://www.technologyreview.com/feed/",
	"vg":  "https://www.theverge.com/rss/index.xml",
}

// DefaultFeedSources returns the preset URLs in a stable order.
func DefaultFeedSources() []string {
	return []string{
		FeedPresets["hn"],
		FeedPresets["tr"],
		FeedPresets["vg"],
	}
}

// ResolveFeedURL resolves a preset name to a URL; non-presets pass through.
func ResolveFeedURL(feedInput string) string {
	if url, exists := FeedPresets[feedInput]; exists {
		return url
	}
	return feedInput
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
