package db

import (
	"context"
	"fmt"
	"time"

	"ms-auction/internal/models"
	notifydb "ms-auction/internal/notify/db"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// DB works on a *bun.DB or on a bun.Tx.
type DB struct {
	Bun bun.IDB
}

// GetItem returns sql.ErrNoRows (wrapped) when the item does not exist.
func (d *DB) GetItem(ctx context.Context, id string) (*models.Item, error) {
	item := new(models.Item)
	err := d.Bun.NewSelect().
		Model(item).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, nil
}

func (d *DB) ListIDsByStatus(ctx context.Context, status models.ItemStatus) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Model((*models.Item)(nil)).
		Column("id").
		Where("status = ?", status).
		Order("created_at ASC", "id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list items by status %s: %w", status, err)
	}
	return ids, nil
}

// CompareAndSetStatus moves an item from one status to another and reports
// whether this call made the move. A false result means the item was no
// longer in the expected status.
func (d *DB) CompareAndSetStatus(ctx context.Context, id string, from, to models.ItemStatus, winnerID *string) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Item)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", from)
	if winnerID != nil {
		q = q.Set("winner_id = ?", *winnerID)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("update item %s status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetCurrentBid only touches items that are still open.
func (d *DB) SetCurrentBid(ctx context.Context, id string, amount decimal.Decimal, at time.Time) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.Item)(nil)).
		Set("current_bid = ?", amount).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", models.ItemApproved).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set current bid on %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("set current bid on %s: item is not open", id)
	}
	return nil
}

// CloseItem settles an APPROVED item. With a winning bid the item becomes
// SOLD only while current_bid still equals that bid; without one it becomes
// UNSOLD only while it has no bids. A false result means the item was closed
// elsewhere or received a bid after winner was read. When the item closes,
// notice is written to the outbox in the same transaction.
func (d *DB) CloseItem(ctx context.Context, id string, winner *models.Bid, notice *models.Notification) (bool, error) {
	var closed bool
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().
			Model((*models.Item)(nil)).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", id).
			Where("status = ?", models.ItemApproved)
		if winner != nil {
			q = q.Set("status = ?", models.ItemSold).
				Set("winner_id = ?", winner.BidderID).
				Where("current_bid = ?", winner.Amount)
		} else {
			q = q.Set("status = ?", models.ItemUnsold).
				Where("current_bid IS NULL")
		}

		res, err := q.Exec(ctx)
		if err != nil {
			return fmt.Errorf("close item %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return nil
		}

		if notice != nil {
			if err := (&notifydb.DB{Bun: tx}).Insert(ctx, notice); err != nil {
				return err
			}
		}
		closed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return closed, nil
}
