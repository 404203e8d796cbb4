// Package dbtest builds throwaway SQLite stores for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-auction/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// NewSQLite opens an in-memory database holding the full auction schema.
// One connection keeps the memory database alive and serializes transactions.
func NewSQLite(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.User)(nil),
		(*models.Item)(nil),
		(*models.Bid)(nil),
		(*models.AuctionSettings)(nil),
		(*models.Payment)(nil),
		(*models.Notification)(nil),
	} {
		_, err := bunDB.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}

	return bunDB
}

// SeedSettings writes the singleton settings row.
func SeedSettings(t *testing.T, db bun.IDB, increment int64, antiSnipingMinutes int, endTime *time.Time) *models.AuctionSettings {
	t.Helper()

	settings := &models.AuctionSettings{
		ID:                  models.SettingsRowID,
		MinBidIncrement:     decimal.NewFromInt(increment),
		AntiSnipingMinutes:  antiSnipingMinutes,
		AuctionEndTime:      endTime,
		CheckPayableTo:      "Auction Committee",
		CheckMailingAddress: "1 Main St, Springfield",
		CheckDeadlineDays:   14,
		UpdatedAt:           time.Now().UTC(),
	}
	_, err := db.NewInsert().Model(settings).Exec(context.Background())
	require.NoError(t, err)
	return settings
}

func SeedUser(t *testing.T, db bun.IDB, id string, eligible bool) *models.User {
	t.Helper()

	user := &models.User{
		ID:               id,
		Email:            id + "@example.com",
		FullName:         "User " + id,
		IsWinnerEligible: eligible,
		CreatedAt:        time.Now().UTC(),
	}
	_, err := db.NewInsert().Model(user).Exec(context.Background())
	require.NoError(t, err)
	return user
}

func SeedItem(t *testing.T, db bun.IDB, id string, status models.ItemStatus, startingBid int64) *models.Item {
	t.Helper()

	now := time.Now().UTC()
	item := &models.Item{
		ID:          id,
		Title:       "Item " + id,
		Status:      status,
		StartingBid: decimal.NewFromInt(startingBid),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	item.SetOwner(models.GuestOwner{Name: "Guest Donor", Email: "donor@example.com"})
	_, err := db.NewInsert().Model(item).Exec(context.Background())
	require.NoError(t, err)
	return item
}

func GetItem(t *testing.T, db bun.IDB, id string) *models.Item {
	t.Helper()

	item := new(models.Item)
	err := db.NewSelect().Model(item).Where("id = ?", id).Scan(context.Background())
	require.NoError(t, err)
	return item
}

func CountBids(t *testing.T, db bun.IDB, itemID string) int {
	t.Helper()

	n, err := db.NewSelect().Model((*models.Bid)(nil)).Where("item_id = ?", itemID).Count(context.Background())
	require.NoError(t, err)
	return n
}

// SeedBid inserts a bid and raises the item's current_bid to match it.
func SeedBid(t *testing.T, db bun.IDB, itemID, bidderID, amount string, at time.Time) *models.Bid {
	t.Helper()

	ctx := context.Background()
	bid := &models.Bid{
		ID:        itemID + "-" + bidderID + "-" + amount,
		ItemID:    itemID,
		BidderID:  bidderID,
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: at.UTC(),
	}
	_, err := db.NewInsert().Model(bid).Exec(ctx)
	require.NoError(t, err)

	_, err = db.NewUpdate().
		Model((*models.Item)(nil)).
		Set("current_bid = ?", bid.Amount).
		Where("id = ?", itemID).
		Exec(ctx)
	require.NoError(t, err)
	return bid
}

// SeedSoldItem creates a SOLD item won by winner at amount.
func SeedSoldItem(t *testing.T, db bun.IDB, id, winner, amount string) *models.Item {
	t.Helper()

	now := time.Now().UTC()
	item := &models.Item{
		ID:          id,
		Title:       "Item " + id,
		Status:      models.ItemSold,
		StartingBid: decimal.NewFromInt(10),
		CurrentBid:  decimal.NewNullDecimal(decimal.RequireFromString(amount)),
		WinnerID:    &winner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	item.SetOwner(models.GuestOwner{Name: "Guest Donor", Email: "donor@example.com"})
	_, err := db.NewInsert().Model(item).Exec(context.Background())
	require.NoError(t, err)
	return item
}

// Notifications returns every outbox row, oldest first.
func Notifications(t *testing.T, db bun.IDB) []models.Notification {
	t.Helper()

	var rows []models.Notification
	err := db.NewSelect().Model(&rows).Order("created_at ASC", "id ASC").Scan(context.Background())
	require.NoError(t, err)
	return rows
}
