package social

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"newsmith/cache"
	"newsmith/config"
	"newsmith/types"
)

// RateLimitError reports that the platform throttled a post and when the
// window resets.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited until %s", e.ResetAt.Format(time.RFC3339))
}

// Poster sends a single post to the platform, optionally as a reply.
type Poster interface {
	Post(ctx context.Context, text, inReplyTo string) (string, error)
}

// Publisher posts threads while respecting the daily quota and the
// platform's rate limits. It shares the cache with the rest of the pipeline
// so quota counters and the posted-set survive process restarts.
type Publisher struct {
	poster Poster
	store  cache.Store

	dailyLimit   int
	interDelay   time.Duration
	safetyMargin time.Duration
	sleep        func(context.Context, time.Duration) error
	now          func() time.Time
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithDailyLimit overrides the per-day post budget.
func WithDailyLimit(n int) PublisherOption {
	return func(p *Publisher) { p.dailyLimit = n }
}

// WithInterPostDelay overrides the pause between consecutive posts.
func WithInterPostDelay(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.interDelay = d }
}

// WithSleeper overrides how the publisher waits, so tests run instantly.
func WithSleeper(sleep func(context.Context, time.Duration) error) PublisherOption {
	return func(p *Publisher) { p.sleep = sleep }
}

// WithPublisherClock overrides the time source.
func WithPublisherClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) { p.now = now }
}

func NewPublisher(poster Poster, store cache.Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		poster:       poster,
		store:        store,
		dailyLimit:   config.DailyPostLimit,
		interDelay:   config.InterPostDelay,
		safetyMargin: config.RateLimitSafetyMargin,
		sleep:        sleepCtx,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishThread posts the thread in order. Behaviour on the edges:
//
//   - If posting the whole thread would exceed today's quota, nothing is
//     posted and no error is returned; the thread is simply dropped.
//   - A post whose unique id was already recorded is skipped, so a retried
//     run continues where the previous one stopped.
//   - A rate-limited post waits for the reset plus a safety margin and is
//     retried once.
//   - Any other failure releases the failed post's claim and aborts the
//     remaining posts so the thread never publishes out of order.
func (p *Publisher) PublishThread(ctx context.Context, posts []types.ThreadPost) error {
	if len(posts) == 0 {
		return nil
	}

	postedToday, err := p.store.GetInt(ctx, p.dailyKey())
	if err != nil {
		return fmt.Errorf("failed to read daily post counter: %w", err)
	}
	if int(postedToday)+len(posts) > p.dailyLimit {
		log.Printf("⚠️ Daily post limit reached (%d posted, %d pending, limit %d), dropping thread",
			postedToday, len(posts), p.dailyLimit)
		return nil
	}

	previousID := ""
	for i, post := range posts {
		fresh, err := p.store.SetAdd(ctx, "social:posted", post.UniqueID)
		if err != nil {
			return fmt.Errorf("failed to claim post %d: %w", i, err)
		}
		if !fresh {
			log.Printf("Post %d already published, skipping", i)
			continue
		}

		postID, err := p.postWithRetry(ctx, post.Text, previousID)
		if err != nil {
			// Release the claim so a retried run attempts this post again.
			if rerr := p.store.SetRemove(ctx, "social:posted", post.UniqueID); rerr != nil {
				log.Printf("⚠️ Failed to release claim on post %d: %v", i, rerr)
			}
			return fmt.Errorf("failed to publish post %d of %d: %w", i+1, len(posts), err)
		}
		previousID = postID

		if _, err := p.store.IncrBy(ctx, p.dailyKey(), 1, 24*time.Hour); err != nil {
			log.Printf("⚠️ Failed to bump daily post counter: %v", err)
		}

		if i < len(posts)-1 {
			if err := p.sleep(ctx, p.interDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// postWithRetry posts once, and on a rate limit waits out the window before
// one retry. A second rate limit in a row is treated as a hard failure.
func (p *Publisher) postWithRetry(ctx context.Context, text, inReplyTo string) (string, error) {
	postID, err := p.poster.Post(ctx, text, inReplyTo)
	if err == nil {
		return postID, nil
	}

	var rl *RateLimitError
	if !errors.As(err, &rl) {
		return "", err
	}

	wait := rl.ResetAt.Sub(p.now()) + p.safetyMargin
	if wait < 0 {
		wait = p.safetyMargin
	}
	log.Printf("⚠️ Rate limited, waiting %s before retry", wait.Round(time.Second))
	if err := p.sleep(ctx, wait); err != nil {
		return "", err
	}
	return p.poster.Post(ctx, text, inReplyTo)
}

func (p *Publisher) dailyKey() string {
	return "social:count:" + p.now().UTC().Format("2006-01-02")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
