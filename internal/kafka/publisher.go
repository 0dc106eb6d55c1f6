package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// Publisher writes chat events to Kafka; the topic is prefix + routing key.
type Publisher struct {
	producer sarama.SyncProducer
	prefix   string
}

// NewPublisher connects a sync producer to brokers.
func NewPublisher(brokers []string, prefix string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka: %w", err)
	}
	log.Printf("kafka connected brokers=%v prefix=%s", brokers, prefix)
	return NewPublisherWithProducer(producer, prefix), nil
}

func NewPublisherWithProducer(producer sarama.SyncProducer, prefix string) *Publisher {
	return &Publisher{producer: producer, prefix: prefix}
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic:     p.prefix + routingKey,
		Value:     sarama.ByteEncoder(body),
		Timestamp: time.Now(),
	}
	if id := headers["x-request-id"]; id != "" {
		msg.Key = sarama.StringEncoder(id)
	}
	for key, value := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		log.Printf("kafka publish failed topic=%s: %v", msg.Topic, err)
		return err
	}
	log.Printf("kafka published topic=%s partition=%d offset=%d", msg.Topic, partition, offset)
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
