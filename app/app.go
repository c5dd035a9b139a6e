// Package app assembles the pipeline from configuration. Both binaries use
// it so the daemon and the one-shot runner wire the exact same stack.
package app

import (
	"context"
	"fmt"
	"log"

	"newsmith/alerts"
	"newsmith/cache"
	"newsmith/config"
	"newsmith/dedup"
	"newsmith/enrich"
	"newsmith/feeds"
	"newsmith/llm"
	"newsmith/media"
	"newsmith/pipeline"
	"newsmith/publish"
	"newsmith/queue"
	"newsmith/research"
	"newsmith/social"
	"newsmith/trends"
	"newsmith/types"
	"newsmith/vecindex"
	"newsmith/websearch"
	"newsmith/writer"
)

// App bundles the assembled coordinator with the resources it owns.
type App struct {
	Coordinator *pipeline.Coordinator
	Config      *config.Config

	store    cache.Store
	consumer *queue.Consumer
}

// Build wires every stage from cfg. Optional integrations (social, S3,
// alerts, task queue) are only attached when configured.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := cache.NewRedis(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cohere := llm.NewCohere(cfg.CohereAPIKey, cfg.CompletionModel, cfg.EmbeddingModel)

	index, err := vecindex.NewChroma(vecindex.ChromaConfig{
		Host:           cfg.ChromaHost,
		Port:           cfg.ChromaPort,
		CollectionName: cfg.ChromaCollection,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to connect to Chroma: %w", err)
	}
	if n, err := index.Count(ctx); err != nil {
		log.Printf("⚠️ Could not read similarity index size: %v", err)
	} else {
		log.Printf("📥 Similarity index holds %d articles", n)
	}

	var sender alerts.Sender
	if cfg.AlertWebhookURL != "" {
		sender = alerts.NewWebhook(cfg.AlertWebhookURL)
	}
	notifier := alerts.NewNotifier(sender)

	detector := dedup.NewDetector(index, cohere, cohere, notifier, dedup.Config{
		SimilarityThreshold: cfg.SimilarityThreshold,
		ConfirmationEnabled: cfg.ConfirmationEnabled,
	})

	var searcher websearch.Searcher
	imageProviders := []websearch.ImageSearcher{websearch.NewOpenverse()}
	if cfg.SerperAPIKey != "" {
		serper := websearch.NewSerper(cfg.SerperAPIKey)
		searcher = serper
		imageProviders = append([]websearch.ImageSearcher{serper}, imageProviders...)
	}

	collectorOpts := []feeds.Option{feeds.WithRecencyWindow(cfg.RecencyWindow)}
	if searcher != nil {
		collectorOpts = append(collectorOpts, feeds.WithFallbackSearch(searcher))
	}
	collector := feeds.NewCollector(cfg.FeedSources, store, collectorOpts...)

	researcher := research.NewResearcher(store, searcher, research.NewWikipedia(), cohere, notifier)

	enrichOpts := []enrich.Option{
		enrich.WithImageProviders(imageProviders...),
		enrich.WithRelatedIndex(index, cohere),
	}
	if cfg.S3Bucket != "" {
		host, err := media.NewHost(ctx, media.Config{
			Bucket: cfg.S3Bucket,
			Region: cfg.S3Region,
			Prefix: cfg.S3Prefix,
		})
		if err != nil {
			log.Printf("⚠️ Cover re-hosting disabled: %v", err)
		} else {
			enrichOpts = append(enrichOpts, enrich.WithCoverHost(host))
		}
	}
	enricher := enrich.NewEnricher(cohere, enrichOpts...)

	publisher := publish.NewPublisher(cfg.BackendURL, cfg.BackendToken, cfg.SiteBaseURL)
	indexer := publish.NewIndexer(detector)

	var threads pipeline.ThreadPublisher
	if cfg.SocialToken != "" {
		threads = social.NewPublisher(
			social.NewClient(cfg.SocialAPIURL, cfg.SocialToken),
			store,
			social.WithDailyLimit(cfg.DailyPostLimit),
		)
	}

	var tasks queue.Publisher
	switch {
	case len(cfg.KafkaBrokers) > 0:
		kafka, err := queue.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to start Kafka publisher: %w", err)
		}
		tasks = kafka
	case cfg.TaskEndpoint != "" && cfg.TaskSecret != "":
		tasks = queue.NewWebhookPublisher(cfg.TaskEndpoint, cfg.TaskSecret)
	}

	coordinator := pipeline.NewCoordinator(pipeline.Deps{
		Collector: &extractingCollector{collector: collector},
		Selector:  trends.NewSelector(cohere),
		Detector:  detector,
		Research:  researcher,
		Writer:    writer.NewChain(cohere, notifier),
		Enricher:  enricher,
		Publisher: publisher,
		Recorder:  indexer,
		Social:    threads,
		Generator: cohere,
		Store:     store,
		Tasks:     tasks,
	}, pipeline.Config{
		TopK:        cfg.TopK,
		SiteBaseURL: cfg.SiteBaseURL,
	})

	return &App{
		Coordinator: coordinator,
		Config:      cfg,
		store:       store,
	}, nil
}

// StartConsumer joins the Kafka consumer group and processes dequeued items
// through the coordinator. It is a no-op unless brokers are configured.
func (a *App) StartConsumer(ctx context.Context) error {
	if len(a.Config.KafkaBrokers) == 0 {
		return nil
	}
	consumer, err := queue.NewConsumer(a.Config.KafkaBrokers, a.Config.KafkaTopic, a.Config.KafkaGroupID,
		func(ctx context.Context, task queue.ItemTask) error {
			outcome := a.Coordinator.ProcessItem(ctx, task.RunID, task.Item)
			log.Printf("Task %s/%q finished: %s", task.RunID, task.Item.Title, outcome)
			return nil
		})
	if err != nil {
		return fmt.Errorf("failed to create task consumer: %w", err)
	}
	if err := consumer.Start(ctx); err != nil {
		return err
	}
	a.consumer = consumer
	return nil
}

// Close releases connections owned by the app.
func (a *App) Close() {
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			log.Printf("consumer close error: %v", err)
		}
	}
	if err := a.store.Close(); err != nil {
		log.Printf("cache close error: %v", err)
	}
}

// extractingCollector fetches feed items and backfills their full text so
// downstream stages see more than the syndicated summary.
type extractingCollector struct {
	collector *feeds.Collector
}

func (e *extractingCollector) Fetch(ctx context.Context) []types.FeedItem {
	return feeds.ExtractFullText(e.collector.Fetch(ctx))
}
