package db_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"ms-auction/internal/database/dbtest"
	"ms-auction/internal/models"
	"ms-auction/internal/notify/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 11, 2, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *db.DB {
	bunDB := dbtest.NewSQLite(t)
	dbtest.SeedUser(t, bunDB, "alice", true)
	dbtest.SeedItem(t, bunDB, "item-1", models.ItemApproved, 25)
	return &db.DB{Bun: bunDB}
}

func notification(id string, at time.Time) *models.Notification {
	return &models.Notification{
		ID:          id,
		Type:        models.NotifyOutbid,
		RecipientID: "alice",
		ItemID:      "item-1",
		ItemTitle:   "Quilt",
		Amount:      decimal.RequireFromString("45"),
		CreatedAt:   at,
	}
}

func TestListUnsent_OldestFirst(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, notification("n2", base.Add(time.Minute))))
	require.NoError(t, store.Insert(ctx, notification("n1", base)))
	require.NoError(t, store.Insert(ctx, notification("n3", base.Add(2*time.Minute))))
	require.NoError(t, store.MarkSent(ctx, "n2", base.Add(time.Hour)))

	rows, err := store.ListUnsent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "n1", rows[0].ID)
	assert.Equal(t, "n3", rows[1].ID)
	assert.True(t, rows[0].Amount.Equal(decimal.RequireFromString("45")))

	rows, err = store.ListUnsent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRecordFailureThenSent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, notification("n1", base)))

	require.NoError(t, store.RecordFailure(ctx, "n1", strings.Repeat("x", 2000)))
	rows, err := store.ListUnsent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Attempts)
	assert.Len(t, rows[0].LastError, 500)

	require.NoError(t, store.MarkSent(ctx, "n1", base.Add(time.Minute)))
	rows, err = store.ListUnsent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	all := dbtest.Notifications(t, store.Bun)
	require.Len(t, all, 1)
	assert.Equal(t, 2, all[0].Attempts)
	assert.Empty(t, all[0].LastError)
	require.NotNil(t, all[0].SentAt)
}
