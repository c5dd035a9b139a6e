// Package queue hands per-item work from the coordinator to whoever executes
// it, either over a signed webhook or through Kafka.
package queue

import (
	"context"

	"newsmith/types"
)

// ItemTask is one unit of pipeline work: take a collected feed item through
// generation and publishing.
type ItemTask struct {
	RunID string         `json:"runId"`
	Item  types.FeedItem `json:"item"`
}

// Publisher enqueues item tasks for asynchronous processing.
type Publisher interface {
	Enqueue(ctx context.Context, task ItemTask) error
}
