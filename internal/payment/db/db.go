package db

import (
	"context"
	"fmt"
	"time"

	"ms-auction/internal/models"
	notifydb "ms-auction/internal/notify/db"

	"github.com/uptrace/bun"
)

// DB keeps at most one payments row per item. Every write is conditional so
// concurrent completions and retries converge on the same row.
type DB struct {
	Bun bun.IDB
}

// GetByItem returns sql.ErrNoRows (wrapped) when no payment was started.
func (d *DB) GetByItem(ctx context.Context, itemID string) (*models.Payment, error) {
	p := new(models.Payment)
	err := d.Bun.NewSelect().Model(p).Where("item_id = ?", itemID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get payment for item %s: %w", itemID, err)
	}
	return p, nil
}

// GetBySession finds the payment a checkout session was issued for. Sessions
// replaced by a later checkout are not found.
func (d *DB) GetBySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	p := new(models.Payment)
	err := d.Bun.NewSelect().Model(p).Where("session_id = ?", sessionID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get payment for session %s: %w", sessionID, err)
	}
	return p, nil
}

// insertIfAbsent reports whether p was inserted.
func insertIfAbsent(ctx context.Context, idb bun.IDB, p *models.Payment) (bool, error) {
	res, err := idb.NewInsert().
		Model(p).
		On("CONFLICT (item_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("insert payment for item %s: %w", p.ItemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// StartPending records a payment attempt as PENDING with p's method and
// session. An existing row is only taken over while it still carries
// expectSession (empty meaning none), so two concurrent starts cannot both
// attach a checkout. It returns false when the item is already paid or the
// row changed underneath the caller.
func (d *DB) StartPending(ctx context.Context, p *models.Payment, expectSession string) (bool, error) {
	p.Status = models.PaymentPending
	inserted, err := insertIfAbsent(ctx, d.Bun, p)
	if err != nil || inserted {
		return inserted, err
	}

	q := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("method = ?", p.Method).
		Set("status = ?", models.PaymentPending).
		Set("updated_at = ?", p.UpdatedAt).
		Where("item_id = ?", p.ItemID).
		Where("status <> ?", models.PaymentCompleted)
	if p.SessionID != "" {
		q = q.Set("session_id = ?", p.SessionID)
	} else {
		q = q.Set("session_id = NULL")
	}
	if expectSession != "" {
		q = q.Where("session_id = ?", expectSession)
	} else {
		q = q.Where("session_id IS NULL")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("restart payment for item %s: %w", p.ItemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkCompleted moves the item's payment to COMPLETED, creating the row when
// none exists. It returns true only for the call that made the change, and
// that call also writes notice to the outbox in the same transaction. An
// empty p.Method keeps the method already recorded.
func (d *DB) MarkCompleted(ctx context.Context, p *models.Payment, at time.Time, notice *models.Notification) (bool, error) {
	var changed bool
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		changed, err = markCompleted(ctx, tx, p, at)
		if err != nil || !changed || notice == nil {
			return err
		}
		return (&notifydb.DB{Bun: tx}).Insert(ctx, notice)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func markCompleted(ctx context.Context, idb bun.IDB, p *models.Payment, at time.Time) (bool, error) {
	method := p.Method
	row := *p
	row.Status = models.PaymentCompleted
	row.CompletedAt = &at
	if row.Method == "" {
		row.Method = models.MethodCheck
	}

	inserted, err := insertIfAbsent(ctx, idb, &row)
	if err != nil || inserted {
		return inserted, err
	}

	q := idb.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", models.PaymentCompleted).
		Set("completed_at = ?", at).
		Set("updated_at = ?", at).
		Where("item_id = ?", p.ItemID).
		Where("status <> ?", models.PaymentCompleted)
	if method != "" {
		q = q.Set("method = ?", method)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("complete payment for item %s: %w", p.ItemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkPending reverts a COMPLETED payment and forgets its checkout session,
// which no longer counts. It returns false when the row was already PENDING
// or does not exist.
func (d *DB) MarkPending(ctx context.Context, itemID string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", models.PaymentPending).
		Set("completed_at = NULL").
		Set("session_id = NULL").
		Set("updated_at = ?", at).
		Where("item_id = ?", itemID).
		Where("status = ?", models.PaymentCompleted).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("revert payment for item %s: %w", itemID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
