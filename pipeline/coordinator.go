// Package pipeline sequences a full editorial run: collect feed items, pick
// the strongest, and take each survivor through research, writing, enrichment
// and publishing. One item's failure never stops the run.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"newsmith/cache"
	"newsmith/config"
	"newsmith/llm"
	"newsmith/queue"
	"newsmith/social"
	"newsmith/types"
)

// The coordinator depends on behaviour, not concrete stage types, so tests
// can drive a full run entirely on fakes.
type (
	// Collector gathers deduplicated, recent feed items.
	Collector interface {
		Fetch(ctx context.Context) []types.FeedItem
	}

	// Selector ranks items and expands a keyword into a workable topic.
	Selector interface {
		SelectItems(ctx context.Context, items []types.FeedItem, topK int) []types.FeedItem
		SelectTopics(ctx context.Context, keywords []string, topK int) []types.Topic
	}

	// DuplicateChecker answers whether a story was already published.
	DuplicateChecker interface {
		Exists(ctx context.Context, title, summary string) (bool, error)
	}

	// Researcher gathers grounding material for a topic. A nil result means
	// the topic cannot be written responsibly and the item is skipped.
	Researcher interface {
		Research(ctx context.Context, topic types.Topic) *types.ResearchResult
	}

	// Writer runs the four-stage generation chain.
	Writer interface {
		Run(ctx context.Context, topic types.Topic, research *types.ResearchResult) *types.Article
	}

	// Enricher decorates a finished article.
	Enricher interface {
		SEO(ctx context.Context, article *types.Article)
		CallToActions(ctx context.Context, article *types.Article) *types.CallToActions
		SelectCover(ctx context.Context, article *types.Article) string
	}

	// ArticlePublisher writes to the content backend.
	ArticlePublisher interface {
		Publish(ctx context.Context, article *types.Article, coverURL string) (*types.PublishedRecord, error)
	}

	// Recorder indexes a published article for future duplicate checks.
	Recorder interface {
		Record(ctx context.Context, article *types.Article, rec *types.PublishedRecord) error
	}

	// ThreadPublisher posts the announcement thread.
	ThreadPublisher interface {
		PublishThread(ctx context.Context, posts []types.ThreadPost) error
	}
)

// Config tunes a Coordinator. Zero values fall back to the package defaults.
type Config struct {
	TopK         int
	RunTimeout   time.Duration
	StageTimeout time.Duration
	SiteBaseURL  string
}

// Coordinator owns the end-to-end run. It is the single writer of each
// article's lifecycle; stages hand articles forward, never sideways.
type Coordinator struct {
	collector Collector
	selector  Selector
	detector  DuplicateChecker
	research  Researcher
	writer    Writer
	enricher  Enricher
	publisher ArticlePublisher
	recorder  Recorder
	social    ThreadPublisher
	generator llm.Generator
	store     cache.Store
	tasks     queue.Publisher
	state     *Manager
	cfg       Config
}

// Deps bundles the coordinator's collaborators. Optional fields may be nil:
// Social skips the announcement thread, Tasks switches Run from inline
// processing to queue dispatch.
type Deps struct {
	Collector Collector
	Selector  Selector
	Detector  DuplicateChecker
	Research  Researcher
	Writer    Writer
	Enricher  Enricher
	Publisher ArticlePublisher
	Recorder  Recorder
	Social    ThreadPublisher
	Generator llm.Generator
	Store     cache.Store
	Tasks     queue.Publisher
	State     *Manager
}

func NewCoordinator(deps Deps, cfg Config) *Coordinator {
	if cfg.TopK <= 0 {
		cfg.TopK = config.TopK
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = config.RunTimeout
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = config.StageTimeout
	}
	state := deps.State
	if state == nil {
		state = NewManager()
	}
	return &Coordinator{
		collector: deps.Collector,
		selector:  deps.Selector,
		detector:  deps.Detector,
		research:  deps.Research,
		writer:    deps.Writer,
		enricher:  deps.Enricher,
		publisher: deps.Publisher,
		recorder:  deps.Recorder,
		social:    deps.Social,
		generator: deps.Generator,
		store:     deps.Store,
		tasks:     deps.Tasks,
		state:     state,
		cfg:       cfg,
	}
}

// StateManager exposes run state for the API layer.
func (c *Coordinator) StateManager() *Manager {
	return c.state
}

// Run executes one full cycle and reports aggregate counts. When a task
// queue is configured the selected items are dispatched instead of processed
// inline, and the report counts them all as queued (skipped nothing,
// processed nothing yet).
func (c *Coordinator) Run(ctx context.Context) (*types.RunReport, error) {
	if !c.state.TryBegin() {
		return nil, fmt.Errorf("a run is already in progress")
	}

	report := &types.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	var runErr error
	defer func() {
		report.EndedAt = time.Now().UTC()
		c.state.Finish(report, runErr)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout)
	defer cancel()

	log.Printf("🚀 Run %s starting", report.RunID)

	c.state.SetState(StateCollecting)
	c.state.AddLog("Collecting feed items...")
	items := c.collector.Fetch(ctx)
	c.state.AddLog(fmt.Sprintf("Collected %d items", len(items)))
	if len(items) == 0 {
		return report, nil
	}

	c.state.SetState(StateSelecting)
	selected := c.selector.SelectItems(ctx, items, c.cfg.TopK)
	c.state.AddLog(fmt.Sprintf("Selected %d of %d items", len(selected), len(items)))
	report.Total = len(selected)

	if c.tasks != nil {
		runErr = c.dispatch(ctx, report.RunID, selected)
		return report, runErr
	}

	c.state.SetState(StateProcessing)
	for _, item := range selected {
		outcome := c.ProcessItem(ctx, report.RunID, item)
		switch outcome {
		case types.OutcomePublished:
			report.Processed++
		default:
			report.Skipped++
		}
		if ctx.Err() != nil {
			runErr = fmt.Errorf("run timed out: %w", ctx.Err())
			break
		}
	}

	log.Printf("🏁 Run %s done: %d published, %d skipped of %d",
		report.RunID, report.Processed, report.Skipped, report.Total)
	return report, runErr
}

// dispatch hands each selected item to the task queue for asynchronous
// processing. A single enqueue failure is fatal for the run: items were
// selected as a batch and a half-dispatched batch is worse than a retried one.
func (c *Coordinator) dispatch(ctx context.Context, runID string, items []types.FeedItem) error {
	for _, item := range items {
		if err := c.tasks.Enqueue(ctx, queue.ItemTask{RunID: runID, Item: item}); err != nil {
			return fmt.Errorf("failed to dispatch item %q: %w", item.Title, err)
		}
	}
	c.state.AddLog(fmt.Sprintf("Dispatched %d items to the task queue", len(items)))
	return nil
}

// ProcessItem takes one item through the per-item stages. It is called
// inline by Run or by the task-queue consumer, and always returns a terminal
// outcome; failures are contained to the item.
func (c *Coordinator) ProcessItem(ctx context.Context, runID string, item types.FeedItem) types.ItemOutcome {
	claimed, err := c.claimItem(ctx, item)
	if err != nil {
		log.Printf("❌ Failed to claim %q: %v", item.Title, err)
		return types.OutcomeSkippedFailure
	}
	if !claimed {
		log.Printf("Item %q already claimed, skipping", item.Title)
		return types.OutcomeSkippedDuplicate
	}

	dup, err := c.stageDuplicateCheck(ctx, item)
	if err != nil {
		log.Printf("❌ Duplicate check failed for %q: %v", item.Title, err)
		return types.OutcomeSkippedFailure
	}
	if dup {
		log.Printf("Item %q already covered, skipping", item.Title)
		return types.OutcomeSkippedDuplicate
	}

	topic := c.topicFor(ctx, item)

	research := c.stageResearch(ctx, topic)
	if research == nil {
		log.Printf("⚠️ No research material for %q, skipping", topic.Keyword)
		return types.OutcomeSkippedFailure
	}

	article := c.stageWrite(ctx, topic, research)
	if article == nil {
		log.Printf("⚠️ Generation chain produced nothing for %q, skipping", topic.Keyword)
		return types.OutcomeSkippedFailure
	}

	coverURL := c.stageEnrich(ctx, article)

	rec, err := c.publisher.Publish(ctx, article, coverURL)
	if err != nil {
		log.Printf("❌ Publish failed for %q: %v", article.Title, err)
		return types.OutcomeSkippedFailure
	}

	// Index strictly after a successful publish so unpublished work never
	// suppresses future coverage.
	if err := c.recorder.Record(ctx, article, rec); err != nil {
		log.Printf("⚠️ Failed to index %q after publish: %v", article.Title, err)
	}

	c.announce(ctx, article, rec)
	return types.OutcomePublished
}

// claimItem marks the item as taken for processing. The set-add is the only
// cross-process primitive, so concurrent workers dequeueing the same item
// resolve to exactly one claim.
func (c *Coordinator) claimItem(ctx context.Context, item types.FeedItem) (bool, error) {
	if c.store == nil {
		return true, nil
	}
	return c.store.SetAdd(ctx, "pipeline:claimed", types.GenerateID(item.Link))
}

func (c *Coordinator) stageDuplicateCheck(ctx context.Context, item types.FeedItem) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
	defer cancel()
	return c.detector.Exists(ctx, item.Title, item.Summary)
}

// topicFor expands a feed item into a researched topic. Expansion failure
// degrades to a bare topic built from the item itself.
func (c *Coordinator) topicFor(ctx context.Context, item types.FeedItem) types.Topic {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
	defer cancel()

	topics := c.selector.SelectTopics(ctx, []string{item.Title}, 1)
	if len(topics) > 0 {
		return topics[0]
	}
	return types.Topic{Keyword: item.Title, Title: item.Title, Angle: item.Summary}
}

func (c *Coordinator) stageResearch(ctx context.Context, topic types.Topic) *types.ResearchResult {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
	defer cancel()
	return c.research.Research(ctx, topic)
}

func (c *Coordinator) stageWrite(ctx context.Context, topic types.Topic, research *types.ResearchResult) *types.Article {
	// The chain runs four generation calls, give it four stage budgets.
	ctx, cancel := context.WithTimeout(ctx, 4*c.cfg.StageTimeout)
	defer cancel()
	return c.writer.Run(ctx, topic, research)
}

func (c *Coordinator) stageEnrich(ctx context.Context, article *types.Article) string {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
	defer cancel()
	c.enricher.SEO(ctx, article)
	article.CallToActions = c.enricher.CallToActions(ctx, article)
	return c.enricher.SelectCover(ctx, article)
}

// announce generates and posts the social thread. Social failures never
// affect the item's outcome; the article is already live.
func (c *Coordinator) announce(ctx context.Context, article *types.Article, rec *types.PublishedRecord) {
	if c.social == nil || c.generator == nil {
		return
	}
	posts, err := social.GenerateThread(ctx, c.generator, article, rec, c.cfg.SiteBaseURL)
	if err != nil {
		log.Printf("⚠️ Skipping thread for %q: %v", article.Title, err)
		return
	}
	if err := c.social.PublishThread(ctx, posts); err != nil {
		log.Printf("⚠️ Thread for %q incomplete: %v", article.Title, err)
	}
}
