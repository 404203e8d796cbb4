package db

import (
	"context"
	"fmt"
	"time"

	"ms-auction/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun bun.IDB
}

func (d *DB) Get(ctx context.Context) (*models.AuctionSettings, error) {
	settings := new(models.AuctionSettings)
	err := d.Bun.NewSelect().
		Model(settings).
		Where("id = ?", models.SettingsRowID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get auction settings: %w", err)
	}
	return settings, nil
}

// Save writes every column of the settings row.
func (d *DB) Save(ctx context.Context, settings *models.AuctionSettings) error {
	settings.ID = models.SettingsRowID
	_, err := d.Bun.NewUpdate().
		Model(settings).
		Column("min_bid_increment", "anti_sniping_minutes", "auction_end_time",
			"check_payable_to", "check_mailing_address", "check_deadline_days", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save auction settings: %w", err)
	}
	return nil
}

// ExtendEndTime moves the end time forward to end. It never moves it back:
// rows whose end time is already at or past end are left untouched.
func (d *DB) ExtendEndTime(ctx context.Context, end time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.AuctionSettings)(nil)).
		Set("auction_end_time = ?", end).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", models.SettingsRowID).
		Where("auction_end_time IS NOT NULL").
		Where("auction_end_time < ?", end).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("extend auction end time: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
