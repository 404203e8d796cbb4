package db

import (
	"context"
	"fmt"
	"time"

	"ms-auction/internal/models"

	"github.com/uptrace/bun"
)

// lastErrorLimit keeps one bad broker message from bloating the row.
const lastErrorLimit = 500

// DB is the notification outbox table. Insert is meant to run on the same
// bun.Tx as the state change that caused the notification.
type DB struct {
	Bun bun.IDB
}

func (d *DB) Insert(ctx context.Context, n *models.Notification) error {
	if _, err := d.Bun.NewInsert().Model(n).Exec(ctx); err != nil {
		return fmt.Errorf("insert %s notification for %s: %w", n.Type, n.ItemID, err)
	}
	return nil
}

// ListUnsent returns up to limit undelivered rows, oldest first.
func (d *DB) ListUnsent(ctx context.Context, limit int) ([]models.Notification, error) {
	var rows []models.Notification
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("sent_at IS NULL").
		Order("created_at ASC", "id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unsent notifications: %w", err)
	}
	return rows, nil
}

func (d *DB) MarkSent(ctx context.Context, id string, at time.Time) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Notification)(nil)).
		Set("sent_at = ?", at).
		Set("attempts = attempts + 1").
		Set("last_error = NULL").
		Where("id = ?", id).
		Where("sent_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark notification %s sent: %w", id, err)
	}
	return nil
}

func (d *DB) RecordFailure(ctx context.Context, id, cause string) error {
	if len(cause) > lastErrorLimit {
		cause = cause[:lastErrorLimit]
	}
	_, err := d.Bun.NewUpdate().
		Model((*models.Notification)(nil)).
		Set("attempts = attempts + 1").
		Set("last_error = ?", cause).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record notification %s failure: %w", id, err)
	}
	return nil
}
