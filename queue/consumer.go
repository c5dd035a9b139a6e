package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/IBM/sarama"
)

// Handler processes one dequeued task. Returning an error leaves the message
// unmarked so the group redelivers it.
type Handler func(ctx context.Context, task ItemTask) error

// Consumer drains item tasks from a Kafka topic as part of a consumer group.
type Consumer struct {
	group   sarama.ConsumerGroup
	handler Handler
	topic   string
	groupID string
	ready   chan struct{}
}

func NewConsumer(brokers []string, topic, groupID string, handler Handler) (*Consumer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{
		group:   group,
		handler: handler,
		topic:   topic,
		groupID: groupID,
		ready:   make(chan struct{}),
	}, nil
}

// Start joins the group and consumes until ctx is cancelled. It returns once
// the first session is established.
func (c *Consumer) Start(ctx context.Context) error {
	session := &groupSession{handler: c.handler, ready: c.ready}

	go func() {
		for {
			if err := c.group.Consume(ctx, []string{c.topic}, session); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Printf("❌ Kafka consume error: %v", err)
			}
			if ctx.Err() != nil {
				return
			}
			session.ready = make(chan struct{})
		}
	}()

	<-c.ready
	log.Printf("✅ Task consumer joined group %s on topic %s", c.groupID, c.topic)

	go func() {
		for err := range c.group.Errors() {
			log.Printf("❌ Kafka consumer group error: %v", err)
		}
	}()
	return nil
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupSession struct {
	handler Handler
	ready   chan struct{}
}

func (s *groupSession) Setup(sarama.ConsumerGroupSession) error {
	close(s.ready)
	return nil
}

func (s *groupSession) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (s *groupSession) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			var task ItemTask
			if err := json.Unmarshal(message.Value, &task); err != nil {
				// Poison message; mark it so the partition keeps moving.
				log.Printf("❌ Dropping unparseable task at offset %d: %v", message.Offset, err)
				session.MarkMessage(message, "")
				continue
			}

			if err := s.handler(session.Context(), task); err != nil {
				log.Printf("❌ Task for %q failed, leaving unmarked: %v", task.Item.Title, err)
				continue
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}
