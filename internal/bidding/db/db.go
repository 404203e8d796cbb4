package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	itemsdb "ms-auction/internal/items/db"
	"ms-auction/internal/models"
	notifydb "ms-auction/internal/notify/db"
	settingsdb "ms-auction/internal/settings/db"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// TxLedger is the bid ledger bound to one serializable transaction.
type TxLedger interface {
	GetItem(ctx context.Context, itemID string) (*models.Item, error)
	GetSettings(ctx context.Context) (*models.AuctionSettings, error)
	LeadingBid(ctx context.Context, itemID string) (*models.Bid, error)
	InsertBid(ctx context.Context, bid *models.Bid) error
	SetCurrentBid(ctx context.Context, itemID string, amount decimal.Decimal, at time.Time) error
	ExtendEndTime(ctx context.Context, end time.Time) (bool, error)
	AddNotification(ctx context.Context, n *models.Notification) error
}

type DB struct {
	Bun *bun.DB
}

// InSerializableTx runs fn in one SERIALIZABLE transaction. Commit errors,
// including serialization failures, are returned unchanged.
func (d *DB) InSerializableTx(ctx context.Context, fn func(ctx context.Context, tx TxLedger) error) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, newTxLedger(tx))
	})
}

// ListBids returns an item's bids, newest first.
func (d *DB) ListBids(ctx context.Context, itemID string, limit int) ([]models.Bid, error) {
	var bids []models.Bid
	err := d.Bun.NewSelect().
		Model(&bids).
		Where("item_id = ?", itemID).
		Order("created_at DESC", "amount DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list bids for %s: %w", itemID, err)
	}
	return bids, nil
}

func (d *DB) CountBids(ctx context.Context, itemID string) (int, error) {
	return countBids(ctx, d.Bun, itemID)
}

// LeadingBid is exported on the plain DB for settlement, which reads it
// outside any bid transaction.
func (d *DB) LeadingBid(ctx context.Context, itemID string) (*models.Bid, error) {
	return leadingBid(ctx, d.Bun, itemID)
}

type txLedger struct {
	idb      bun.IDB
	items    *itemsdb.DB
	settings *settingsdb.DB
	outbox   *notifydb.DB
}

func newTxLedger(tx bun.Tx) *txLedger {
	return &txLedger{
		idb:      tx,
		items:    &itemsdb.DB{Bun: tx},
		settings: &settingsdb.DB{Bun: tx},
		outbox:   &notifydb.DB{Bun: tx},
	}
}

func (t *txLedger) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	return t.items.GetItem(ctx, itemID)
}

func (t *txLedger) GetSettings(ctx context.Context) (*models.AuctionSettings, error) {
	return t.settings.Get(ctx)
}

func (t *txLedger) LeadingBid(ctx context.Context, itemID string) (*models.Bid, error) {
	return leadingBid(ctx, t.idb, itemID)
}

func (t *txLedger) InsertBid(ctx context.Context, bid *models.Bid) error {
	if _, err := t.idb.NewInsert().Model(bid).Exec(ctx); err != nil {
		return fmt.Errorf("insert bid on %s: %w", bid.ItemID, err)
	}
	return nil
}

func (t *txLedger) SetCurrentBid(ctx context.Context, itemID string, amount decimal.Decimal, at time.Time) error {
	return t.items.SetCurrentBid(ctx, itemID, amount, at)
}

func (t *txLedger) ExtendEndTime(ctx context.Context, end time.Time) (bool, error) {
	return t.settings.ExtendEndTime(ctx, end)
}

func (t *txLedger) AddNotification(ctx context.Context, n *models.Notification) error {
	return t.outbox.Insert(ctx, n)
}

// leadingBid returns nil, nil when the item has no bids.
func leadingBid(ctx context.Context, idb bun.IDB, itemID string) (*models.Bid, error) {
	bid := new(models.Bid)
	err := idb.NewSelect().
		Model(bid).
		Where("item_id = ?", itemID).
		Order("amount DESC", "created_at ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("leading bid for %s: %w", itemID, err)
	}
	return bid, nil
}

func countBids(ctx context.Context, idb bun.IDB, itemID string) (int, error) {
	n, err := idb.NewSelect().
		Model((*models.Bid)(nil)).
		Where("item_id = ?", itemID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count bids for %s: %w", itemID, err)
	}
	return n, nil
}
