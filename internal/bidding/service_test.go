package bidding_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"ms-auction/internal/bidding"
	biddingdb "ms-auction/internal/bidding/db"
	"ms-auction/internal/config"
	"ms-auction/internal/database/dbtest"
	"ms-auction/internal/directory"
	itemsdb "ms-auction/internal/items/db"
	"ms-auction/internal/logger"
	"ms-auction/internal/models"
	settingsdb "ms-auction/internal/settings/db"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Wake() {
	m.Called()
}

var auctionEnd = time.Date(2026, 11, 1, 20, 0, 0, 0, time.UTC)

type fixture struct {
	bun      *bun.DB
	svc      *bidding.Service
	notifier *MockNotifier
}

func newFixture(t *testing.T, end *time.Time, now time.Time) *fixture {
	t.Helper()

	bunDB := dbtest.NewSQLite(t)
	dbtest.SeedSettings(t, bunDB, 10, 2, end)
	dbtest.SeedUser(t, bunDB, "alice", true)
	dbtest.SeedUser(t, bunDB, "bob", true)
	dbtest.SeedUser(t, bunDB, "mallory", false)
	dbtest.SeedItem(t, bunDB, "item-1", models.ItemApproved, 25)

	notifier := new(MockNotifier)
	svc := bidding.NewService(
		&biddingdb.DB{Bun: bunDB},
		&itemsdb.DB{Bun: bunDB},
		&settingsdb.DB{Bun: bunDB},
		directory.New(bunDB),
		notifier,
		logger.NewTestLogger(io.Discard),
		config.BiddingConfig{MaxAttempts: 3, RetryDelay: time.Millisecond},
	)
	svc.Now = func() time.Time { return now }

	return &fixture{bun: bunDB, svc: svc, notifier: notifier}
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPlaceBid_MinimumFromStartingBid(t *testing.T) {
	f := newFixture(t, &auctionEnd, auctionEnd.Add(-time.Hour))
	ctx := context.Background()

	_, err := f.svc.PlaceBid(ctx, "item-1", "alice", amount("34"))
	require.Error(t, err)
	assert.ErrorIs(t, err, bidding.ErrBidTooLow)

	var tooLow *bidding.BidTooLowError
	require.True(t, errors.As(err, &tooLow))
	assert.True(t, tooLow.Minimum.Equal(amount("35")))
	assert.Equal(t, 0, dbtest.CountBids(t, f.bun, "item-1"))
	assert.False(t, dbtest.GetItem(t, f.bun, "item-1").CurrentBid.Valid)

	res, err := f.svc.PlaceBid(ctx, "item-1", "alice", amount("35"))
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(amount("35")))
	assert.False(t, res.Extended)
	assert.NotEmpty(t, res.BidID)

	item := dbtest.GetItem(t, f.bun, "item-1")
	require.True(t, item.CurrentBid.Valid)
	assert.True(t, item.CurrentBid.Decimal.Equal(amount("35")))
	assert.Equal(t, 1, dbtest.CountBids(t, f.bun, "item-1"))
	assert.Empty(t, dbtest.Notifications(t, f.bun))
	f.notifier.AssertNotCalled(t, "Wake")
}

func TestPlaceBid_AntiSnipingExtendsEnd(t *testing.T) {
	f := newFixture(t, &auctionEnd, auctionEnd.Add(-time.Minute))

	res, err := f.svc.PlaceBid(context.Background(), "item-1", "alice", amount("35"))
	require.NoError(t, err)
	assert.True(t, res.Extended)
	require.NotNil(t, res.NewEndTime)
	assert.True(t, res.NewEndTime.Equal(auctionEnd.Add(2*time.Minute)))

	stored, err := (&settingsdb.DB{Bun: f.bun}).Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored.AuctionEndTime)
	assert.WithinDuration(t, auctionEnd.Add(2*time.Minute), *stored.AuctionEndTime, time.Millisecond)
}

func TestPlaceBid_OutsideWindowKeepsEnd(t *testing.T) {
	f := newFixture(t, &auctionEnd, auctionEnd.Add(-10*time.Minute))

	res, err := f.svc.PlaceBid(context.Background(), "item-1", "alice", amount("35"))
	require.NoError(t, err)
	assert.False(t, res.Extended)
	require.NotNil(t, res.NewEndTime)
	assert.True(t, res.NewEndTime.Equal(auctionEnd))
}

func TestPlaceBid_OutbidNotifiesPreviousLeader(t *testing.T) {
	f := newFixture(t, nil, auctionEnd)
	ctx := context.Background()

	_, err := f.svc.PlaceBid(ctx, "item-1", "alice", amount("35"))
	require.NoError(t, err)

	f.notifier.On("Wake").Return().Once()
	res, err := f.svc.PlaceBid(ctx, "item-1", "bob", amount("45"))
	require.NoError(t, err)
	assert.Nil(t, res.NewEndTime)
	f.notifier.AssertExpectations(t)

	rows := dbtest.Notifications(t, f.bun)
	require.Len(t, rows, 1)
	n := rows[0]
	assert.Equal(t, models.NotifyOutbid, n.Type)
	assert.Equal(t, "alice", n.RecipientID)
	assert.Equal(t, "item-1", n.ItemID)
	assert.Equal(t, "Item item-1", n.ItemTitle)
	assert.True(t, n.Amount.Equal(amount("45")))
	assert.Nil(t, n.SentAt)
}

// noticeFailingLedger fails every notification write inside the bid
// transaction.
type noticeFailingLedger struct {
	bidding.Ledger
}

type noticeFailingTx struct {
	biddingdb.TxLedger
}

func (noticeFailingTx) AddNotification(ctx context.Context, n *models.Notification) error {
	return errors.New("disk full")
}

func (l *noticeFailingLedger) InSerializableTx(ctx context.Context, fn func(ctx context.Context, tx biddingdb.TxLedger) error) error {
	return l.Ledger.InSerializableTx(ctx, func(ctx context.Context, tx biddingdb.TxLedger) error {
		return fn(ctx, noticeFailingTx{tx})
	})
}

func TestPlaceBid_NotificationWriteFailureRollsBackBid(t *testing.T) {
	f := newFixture(t, nil, auctionEnd)
	ctx := context.Background()

	_, err := f.svc.PlaceBid(ctx, "item-1", "alice", amount("35"))
	require.NoError(t, err)

	f.svc.Ledger = &noticeFailingLedger{Ledger: f.svc.Ledger}
	_, err = f.svc.PlaceBid(ctx, "item-1", "bob", amount("45"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, 1, dbtest.CountBids(t, f.bun, "item-1"))
	assert.True(t, dbtest.GetItem(t, f.bun, "item-1").CurrentBid.Decimal.Equal(amount("35")))
	assert.Empty(t, dbtest.Notifications(t, f.bun))
	f.notifier.AssertNotCalled(t, "Wake")
}

func TestPlaceBid_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, f *fixture)
		itemID  string
		bidder  string
		amount  string
		now     time.Time
		wantErr error
	}{
		{
			name:    "already highest bidder",
			setup:   func(t *testing.T, f *fixture) { mustBid(t, f, "alice", "35") },
			itemID:  "item-1",
			bidder:  "alice",
			amount:  "100",
			now:     auctionEnd.Add(-time.Hour),
			wantErr: bidding.ErrAlreadyHighestBidder,
		},
		{
			name:    "auction ended",
			itemID:  "item-1",
			bidder:  "alice",
			amount:  "35",
			now:     auctionEnd,
			wantErr: bidding.ErrAuctionEnded,
		},
		{
			name: "item not approved",
			setup: func(t *testing.T, f *fixture) {
				dbtest.SeedItem(t, f.bun, "item-2", models.ItemPending, 25)
			},
			itemID:  "item-2",
			bidder:  "alice",
			amount:  "35",
			now:     auctionEnd.Add(-time.Hour),
			wantErr: bidding.ErrItemNotOpen,
		},
		{
			name:    "unknown item",
			itemID:  "missing",
			bidder:  "alice",
			amount:  "35",
			now:     auctionEnd.Add(-time.Hour),
			wantErr: bidding.ErrItemNotFound,
		},
		{
			name:    "ineligible bidder",
			itemID:  "item-1",
			bidder:  "mallory",
			amount:  "35",
			now:     auctionEnd.Add(-time.Hour),
			wantErr: bidding.ErrBidderNotEligible,
		},
		{
			name:    "unknown bidder",
			itemID:  "item-1",
			bidder:  "ghost",
			amount:  "35",
			now:     auctionEnd.Add(-time.Hour),
			wantErr: bidding.ErrBidderNotEligible,
		},
		{
			name:    "fraction of a cent",
			itemID:  "item-1",
			bidder:  "alice",
			amount:  "35.001",
			now:     auctionEnd.Add(-time.Hour),
			wantErr: bidding.ErrInvalidAmount,
		},
		{
			name:    "raise below increment",
			setup:   func(t *testing.T, f *fixture) { mustBid(t, f, "alice", "35") },
			itemID:  "item-1",
			bidder:  "bob",
			amount:  "44.99",
			now:     auctionEnd.Add(-time.Hour),
			wantErr: bidding.ErrBidTooLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &auctionEnd, auctionEnd.Add(-time.Hour))
			f.notifier.On("Wake").Return().Maybe()
			if tt.setup != nil {
				tt.setup(t, f)
			}
			before := dbtest.CountBids(t, f.bun, "item-1")

			f.svc.Now = func() time.Time { return tt.now }
			_, err := f.svc.PlaceBid(context.Background(), tt.itemID, tt.bidder, amount(tt.amount))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, dbtest.CountBids(t, f.bun, "item-1"))
		})
	}
}

func mustBid(t *testing.T, f *fixture, bidder, value string) {
	t.Helper()
	_, err := f.svc.PlaceBid(context.Background(), "item-1", bidder, amount(value))
	require.NoError(t, err)
}

func TestPlaceBid_CurrentBidMatchesLeader(t *testing.T) {
	f := newFixture(t, nil, auctionEnd)
	f.notifier.On("Wake").Return()
	ledger := &biddingdb.DB{Bun: f.bun}
	ctx := context.Background()

	for i, step := range []struct{ bidder, amount string }{
		{"alice", "35"},
		{"bob", "45"},
		{"alice", "60.50"},
		{"bob", "70.50"},
	} {
		f.svc.Now = func() time.Time { return auctionEnd.Add(time.Duration(i) * time.Second) }
		_, err := f.svc.PlaceBid(ctx, "item-1", step.bidder, amount(step.amount))
		require.NoError(t, err)

		leader, err := ledger.LeadingBid(ctx, "item-1")
		require.NoError(t, err)
		item := dbtest.GetItem(t, f.bun, "item-1")
		assert.True(t, item.CurrentBid.Decimal.Equal(leader.Amount))
		assert.Equal(t, step.bidder, leader.BidderID)
	}
}

// flakyLedger fails the first n transactions with a serialization error.
type flakyLedger struct {
	bidding.Ledger
	failures int
	calls    int
}

func (l *flakyLedger) InSerializableTx(ctx context.Context, fn func(ctx context.Context, tx biddingdb.TxLedger) error) error {
	l.calls++
	if l.calls <= l.failures {
		return &pq.Error{Code: "40001", Message: "could not serialize access"}
	}
	return l.Ledger.InSerializableTx(ctx, fn)
}

func TestPlaceBid_RetriesSerializationFailure(t *testing.T) {
	f := newFixture(t, nil, auctionEnd)
	flaky := &flakyLedger{Ledger: f.svc.Ledger, failures: 2}
	f.svc.Ledger = flaky

	res, err := f.svc.PlaceBid(context.Background(), "item-1", "alice", amount("35"))
	require.NoError(t, err)
	assert.True(t, res.Amount.Equal(amount("35")))
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, 1, dbtest.CountBids(t, f.bun, "item-1"))
}

func TestPlaceBid_RetryExhaustion(t *testing.T) {
	f := newFixture(t, nil, auctionEnd)
	flaky := &flakyLedger{Ledger: f.svc.Ledger, failures: 10}
	f.svc.Ledger = flaky

	_, err := f.svc.PlaceBid(context.Background(), "item-1", "alice", amount("35"))
	assert.ErrorIs(t, err, bidding.ErrBidConflict)
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, 0, dbtest.CountBids(t, f.bun, "item-1"))
}

func TestPlaceBid_DomainErrorsAreNotRetried(t *testing.T) {
	f := newFixture(t, nil, auctionEnd)
	flaky := &flakyLedger{Ledger: f.svc.Ledger}
	f.svc.Ledger = flaky

	_, err := f.svc.PlaceBid(context.Background(), "item-1", "alice", amount("20"))
	assert.ErrorIs(t, err, bidding.ErrBidTooLow)
	assert.Equal(t, 1, flaky.calls)
}

func TestItemViewAndHistory(t *testing.T) {
	f := newFixture(t, &auctionEnd, auctionEnd.Add(-time.Hour))
	f.notifier.On("Wake").Return()
	ctx := context.Background()

	view, err := f.svc.ItemView(ctx, "item-1")
	require.NoError(t, err)
	assert.True(t, view.MinimumNextBid.Equal(amount("35")))
	assert.Equal(t, 0, view.BidCount)
	assert.Equal(t, "Guest Donor", view.DonatedBy)

	mustBid(t, f, "alice", "35")
	f.svc.Now = func() time.Time { return auctionEnd.Add(-time.Hour + time.Second) }
	mustBid(t, f, "bob", "50")

	view, err = f.svc.ItemView(ctx, "item-1")
	require.NoError(t, err)
	assert.True(t, view.MinimumNextBid.Equal(amount("60")))
	assert.Equal(t, 2, view.BidCount)

	history, err := f.svc.History(ctx, "item-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Amount.Equal(amount("50")))
	assert.True(t, history[1].Amount.Equal(amount("35")))

	_, err = f.svc.ItemView(ctx, "missing")
	assert.ErrorIs(t, err, bidding.ErrItemNotFound)
	_, err = f.svc.History(ctx, "missing")
	assert.ErrorIs(t, err, bidding.ErrItemNotFound)
}
