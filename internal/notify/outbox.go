// Package notify delivers auction notifications. State changes write a
// notification row in the same transaction; the Outbox publishes unsent rows
// to Kafka and the notification worker consumes the topic and sends mail.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ms-auction/internal/logger"
	"ms-auction/internal/models"

	"github.com/cenkalti/backoff/v4"
)

type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

type Store interface {
	ListUnsent(ctx context.Context, limit int) ([]models.Notification, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id, cause string) error
}

// Outbox publishes notification rows until Kafka accepts them. A row is
// marked sent only after a successful publish, so rows left behind by a
// crash or a broker outage go out on the next pass, possibly twice.
type Outbox struct {
	store     Store
	publisher Publisher
	log       *logger.Logger

	BatchSize    int
	PollInterval time.Duration
	// MaxBackoff caps the wait between passes while publishing fails.
	MaxBackoff time.Duration
	Now        func() time.Time

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

func NewOutbox(store Store, publisher Publisher, log *logger.Logger) *Outbox {
	return &Outbox{
		store:        store,
		publisher:    publisher,
		log:          log,
		BatchSize:    100,
		PollInterval: 5 * time.Second,
		MaxBackoff:   time.Minute,
		Now:          time.Now,
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs the publish loop. The first pass runs immediately.
func (o *Outbox) Start() {
	if o.started.CompareAndSwap(false, true) {
		go o.run()
	}
}

// Wake asks for a pass now instead of at the next poll.
func (o *Outbox) Wake() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Outbox) run() {
	defer close(o.done)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = o.MaxBackoff
	policy.MaxElapsedTime = 0
	policy.Reset()

	var wait time.Duration
	for {
		timer := time.NewTimer(wait)
		select {
		case <-o.stop:
			timer.Stop()
			return
		case <-o.wake:
			timer.Stop()
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		sent, err := o.Flush(ctx)
		cancel()
		if err != nil {
			wait = policy.NextBackOff()
			o.log.Warn("NOTIFY", fmt.Sprintf("Outbox pass stopped after %d sent, retrying in %s: %v", sent, wait, err))
			continue
		}
		policy.Reset()
		wait = o.PollInterval
		if sent > 0 {
			o.log.Debug("NOTIFY", fmt.Sprintf("Published %d notifications", sent))
		}
	}
}

// Flush publishes unsent rows oldest first and returns how many went out.
// It stops at the first publish failure.
func (o *Outbox) Flush(ctx context.Context) (int, error) {
	sent := 0
	for {
		batch, err := o.store.ListUnsent(ctx, o.BatchSize)
		if err != nil {
			return sent, err
		}

		for _, n := range batch {
			payload, err := json.Marshal(n)
			if err != nil {
				return sent, fmt.Errorf("encode notification %s: %w", n.ID, err)
			}
			if err := o.publisher.Publish(ctx, n.ItemID, payload); err != nil {
				if rerr := o.store.RecordFailure(ctx, n.ID, err.Error()); rerr != nil {
					o.log.Error("NOTIFY", rerr.Error())
				}
				return sent, fmt.Errorf("publish %s notification %s: %w", n.Type, n.ID, err)
			}
			if err := o.store.MarkSent(ctx, n.ID, o.Now().UTC()); err != nil {
				return sent, err
			}
			sent++
		}

		if len(batch) < o.BatchSize {
			return sent, nil
		}
	}
}

// Close stops the publish loop. Unsent rows stay in the table for the next
// process.
func (o *Outbox) Close(ctx context.Context) error {
	o.stopOnce.Do(func() { close(o.stop) })
	if !o.started.Load() {
		return nil
	}

	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("outbox stop: %w", ctx.Err())
	}
}
