package settings_test

import (
	"context"
	"io"
	"testing"
	"time"

	"ms-auction/internal/database/dbtest"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	"ms-auction/internal/settings"
	settingsdb "ms-auction/internal/settings/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, end *time.Time) (*settings.Service, *settingsdb.DB) {
	bunDB := dbtest.NewSQLite(t)
	dbtest.SeedSettings(t, bunDB, 10, 2, end)
	store := &settingsdb.DB{Bun: bunDB}
	return settings.NewService(store, logger.NewTestLogger(io.Discard)), store
}

func TestUpdate_PartialFields(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()

	increment := decimal.RequireFromString("2.50")
	minutes := 5
	updated, err := svc.Update(ctx, models.UpdateSettingsRequest{
		MinBidIncrement:    &increment,
		AntiSnipingMinutes: &minutes,
	})
	require.NoError(t, err)
	assert.True(t, updated.MinBidIncrement.Equal(increment))

	stored, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, stored.MinBidIncrement.Equal(increment))
	assert.Equal(t, 5, stored.AntiSnipingMinutes)
	assert.Equal(t, "Auction Committee", stored.CheckPayableTo)
	assert.Nil(t, stored.AuctionEndTime)
}

func TestUpdate_RejectsNonPositiveIncrement(t *testing.T) {
	svc, _ := newService(t, nil)

	zero := decimal.Zero
	_, err := svc.Update(context.Background(), models.UpdateSettingsRequest{MinBidIncrement: &zero})
	assert.ErrorIs(t, err, settings.ErrInvalidIncrement)
}

func TestUpdate_EndTimeOnlyMovesForward(t *testing.T) {
	end := time.Date(2026, 11, 1, 20, 0, 0, 0, time.UTC)
	svc, store := newService(t, &end)
	ctx := context.Background()

	earlier := end.Add(-time.Hour)
	_, err := svc.Update(ctx, models.UpdateSettingsRequest{AuctionEndTime: &earlier})
	assert.ErrorIs(t, err, settings.ErrEndTimeDecrease)

	later := end.Add(30 * time.Minute)
	_, err = svc.Update(ctx, models.UpdateSettingsRequest{AuctionEndTime: &later})
	require.NoError(t, err)

	stored, err := store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored.AuctionEndTime)
	assert.True(t, stored.AuctionEndTime.Equal(later))
}

func TestExtendEndTime_NeverShortens(t *testing.T) {
	end := time.Date(2026, 11, 1, 20, 0, 0, 0, time.UTC)
	_, store := newService(t, &end)
	ctx := context.Background()

	moved, err := store.ExtendEndTime(ctx, end.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = store.ExtendEndTime(ctx, end.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, moved)

	stored, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, stored.AuctionEndTime.Equal(end.Add(2*time.Minute)))
}
