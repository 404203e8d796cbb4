package bidding_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"ms-auction/internal/bidding"
	biddingdb "ms-auction/internal/bidding/db"
	"ms-auction/internal/config"
	"ms-auction/internal/database/dbtest"
	"ms-auction/internal/database/migrations"
	"ms-auction/internal/directory"
	itemsdb "ms-auction/internal/items/db"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	settingsdb "ms-auction/internal/settings/db"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func startPostgres(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "auction",
			"POSTGRES_PASSWORD": "auction",
			"POSTGRES_DB":       "auction",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Skipping postgres integration test, container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://auction:auction@%s:%s/auction?sslmode=disable", host, port.Port())
	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { bunDB.Close() })

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: "../../migrations"}, logger.NewTestLogger(io.Discard))
	require.NoError(t, runner.RunMigrations())
	return bunDB
}

// Concurrent bids for the same amount on Postgres: serializable isolation
// must admit exactly one of them.
func TestPlaceBid_ConcurrentPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping postgres integration test in short mode")
	}
	bunDB := startPostgres(t)

	const bidders = 8
	for i := 0; i < bidders; i++ {
		dbtest.SeedUser(t, bunDB, fmt.Sprintf("bidder-%d", i), true)
	}
	dbtest.SeedItem(t, bunDB, "quilt", models.ItemApproved, 25)

	notifier := new(MockNotifier)
	notifier.On("Wake").Return().Maybe()
	svc := bidding.NewService(
		&biddingdb.DB{Bun: bunDB},
		&itemsdb.DB{Bun: bunDB},
		&settingsdb.DB{Bun: bunDB},
		directory.New(bunDB),
		notifier,
		logger.NewTestLogger(io.Discard),
		config.BiddingConfig{MaxAttempts: 10, RetryDelay: 5 * time.Millisecond},
	)

	amount := decimal.RequireFromString("30")
	var wg sync.WaitGroup
	errs := make([]error, bidders)
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.PlaceBid(context.Background(), "quilt", fmt.Sprintf("bidder-%d", i), amount)
		}()
	}
	wg.Wait()

	var accepted int
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		var tooLow *bidding.BidTooLowError
		if !errors.As(err, &tooLow) && !errors.Is(err, bidding.ErrBidConflict) {
			t.Errorf("unexpected rejection: %v", err)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, dbtest.CountBids(t, bunDB, "quilt"))

	item := dbtest.GetItem(t, bunDB, "quilt")
	require.True(t, item.CurrentBid.Valid)
	assert.True(t, item.CurrentBid.Decimal.Equal(amount))
}
