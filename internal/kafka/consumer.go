package kafka

import (
	"context"
	"errors"
	"fmt"

	"ms-auction/internal/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

const handleRetries = 5

type Consumer struct {
	reader *kafka.Reader
	log    *logger.Logger
}

// NewConsumer creates a consumer-group reader for topic.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, log: log}
}

// Run hands each message to handle and commits its offset afterwards, so a
// crash mid-handle redelivers the message. A message that still fails after
// retries is logged and committed. Run returns when ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle func(ctx context.Context, value []byte) error) error {
	topic := c.reader.Config().Topic
	c.log.LogKafka("CONSUMER_STARTED", topic, fmt.Sprintf("group=%s", c.reader.Config().GroupID))

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.log.LogKafka("FETCH_FAILED", topic, err.Error())
			return err
		}

		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), handleRetries), ctx)
		if err := backoff.Retry(func() error { return handle(ctx, msg.Value) }, policy); err != nil {
			c.log.LogKafka("HANDLE_FAILED", topic, fmt.Sprintf("partition=%d offset=%d dropped: %v", msg.Partition, msg.Offset, err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.LogKafka("COMMIT_FAILED", topic, fmt.Sprintf("offset=%d: %v", msg.Offset, err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
