package config

import "time"

// Feed Collection Constants
const (
	// MaxItemsPerSource caps how many items are taken from a single feed
	MaxItemsPerSource = 10

	// FeedFetchTimeout bounds a single feed's network fetch
	FeedFetchTimeout = 15 * time.Second

	// FeedCacheTTL is how long a source's raw document is memoized
	FeedCacheTTL = 10 * time.Minute

	// RecencyWindow drops items older than this at collection time
	RecencyWindow = 24 * time.Hour

	// FetchWorkers is the fan-out width for per-source fetching
	FetchWorkers = 5
)

// Duplicate Detection Constants
const (
	// SimilarityThreshold is the minimum cosine similarity for a
	// candidate duplicate; candidates still require confirmation
	SimilarityThreshold = 0.88

	// MaxSearchResults is the top-N neighbours pulled per query
	MaxSearchResults = 5
)

// Research Constants
const (
	// ResearchCacheTTL keeps research results warm across runs
	ResearchCacheTTL = 7 * 24 * time.Hour

	// ResearchContextLimit bounds the raw context handed to synthesis
	ResearchContextLimit = 6000
)

// Social Publishing Constants
const (
	// DailyPostLimit is the global cap on posts per calendar day
	DailyPostLimit = 16

	// InterPostDelay is enforced between successful posts in a thread
	InterPostDelay = 10 * time.Second

	// RateLimitSafetyMargin is added on top of the provider's reset time
	RateLimitSafetyMargin = 5 * time.Second

	// MaxPostLength is the platform's per-post character cap
	MaxPostLength = 280
)

// Pipeline Constants
const (
	// RunTimeout bounds total wall-clock time for one pipeline run
	RunTimeout = 30 * time.Minute

	// StageTimeout bounds a single generative stage call
	StageTimeout = 2 * time.Minute

	// TopK is how many items survive trend selection per run
	TopK = 5
)

// Publishing Constants
const (
	// SlugMaxLength caps the derived slug
	SlugMaxLength = 80

	// DefaultCoverImage is used when cover selection finds nothing
	DefaultCoverImage = "https://images.unsplash.com/photo-1504711434969-e33886168f5c"
)
