package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-auction/internal/logger"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	Writer *kafka.Writer
	log    *logger.Logger
}

func NewProducer(brokers []string, topic string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}
	return &Producer{Writer: writer, log: log}
}

// Publish writes one message keyed by key. Messages with the same key land
// on the same partition and keep their order.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	err := p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		p.log.LogKafka("PUBLISH_FAILED", p.Writer.Topic, fmt.Sprintf("key=%s: %v", key, err))
		return err
	}
	p.log.LogKafka("PUBLISHED", p.Writer.Topic, fmt.Sprintf("key=%s bytes=%d", key, len(value)))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// MockProducer keeps published messages in memory. It stands in for Kafka
// when KAFKA_MOCK_MODE is set and in tests.
type MockProducer struct {
	mu       sync.Mutex
	Messages []kafka.Message
	Err      error
	log      *logger.Logger
}

func NewMockProducer(log *logger.Logger) *MockProducer {
	return &MockProducer{log: log}
}

func (m *MockProducer) Publish(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, kafka.Message{Key: []byte(key), Value: value})
	if m.log != nil {
		m.log.LogKafka("MOCK_PUBLISH", "mock", fmt.Sprintf("key=%s %s", key, value))
	}
	return nil
}

// SetErr makes later publishes fail with err, or succeed again when nil.
func (m *MockProducer) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func (m *MockProducer) Published() []kafka.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]kafka.Message, len(m.Messages))
	copy(out, m.Messages)
	return out
}

func (m *MockProducer) Close() error { return nil }
