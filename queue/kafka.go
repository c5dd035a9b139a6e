package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/IBM/sarama"
)

// KafkaPublisher enqueues item tasks onto a Kafka topic. Tasks are keyed by
// run id so every item of one run lands on the same partition and replays in
// order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher connects a synchronous producer to the brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

// NewKafkaPublisherWith wraps an existing producer, mainly for tests.
func NewKafkaPublisherWith(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (k *KafkaPublisher) Enqueue(ctx context.Context, task ItemTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(task.RunID),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	log.Printf("📤 Enqueued task for %q (partition=%d, offset=%d)", task.Item.Title, partition, offset)
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
