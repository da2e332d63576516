package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargebroker/internal/models"
)

func newAuctionMock(t *testing.T) (*AuctionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAuctionRepository(db), mock
}

func auctionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"auction_id", "charging_station_id", "company_id", "license_plate",
		"auction_start_ts", "auction_end_ts", "max_accepted_price", "auto_accept",
		"auction_type", "winning_price", "auction_finished",
	})
}

func TestGetByIDParsesDecimals(t *testing.T) {
	repo, mock := newAuctionMock(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM auctions\s+WHERE auction_id = \$1`).
		WithArgs("auc-1").
		WillReturnRows(auctionRows().
			AddRow("auc-1", "st-1", "co-1", "XX-123",
				start, start.Add(5*time.Minute), "24.50", false,
				models.AuctionTypeSpot, nil, false))

	auction, err := repo.GetByID(context.Background(), "auc-1")
	require.NoError(t, err)
	require.NotNil(t, auction.MaxAcceptedPrice)
	assert.True(t, auction.MaxAcceptedPrice.Equal(decimal.RequireFromString("24.50")))
	assert.Nil(t, auction.WinningPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock := newAuctionMock(t)

	mock.ExpectQuery(`FROM auctions`).
		WithArgs("missing").
		WillReturnRows(auctionRows())

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAuctionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFinishedOnlyOnce(t *testing.T) {
	repo, mock := newAuctionMock(t)
	price := decimal.RequireFromString("12.00")

	mock.ExpectExec(`UPDATE auctions\s+SET auction_finished = true, winning_price = \$2\s+WHERE auction_id = \$1 AND NOT auction_finished`).
		WithArgs("auc-1", "12").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE auctions\s+SET auction_finished = true, winning_price = \$2`).
		WithArgs("auc-1", "12").
		WillReturnResult(sqlmock.NewResult(0, 0))

	closed, err := repo.MarkFinished(context.Background(), "auc-1", &price)
	require.NoError(t, err)
	assert.True(t, closed)

	closed, err = repo.MarkFinished(context.Background(), "auc-1", &price)
	require.NoError(t, err)
	assert.False(t, closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseExpiredReturnsIDs(t *testing.T) {
	repo, mock := newAuctionMock(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE auctions\s+SET auction_finished = true\s+WHERE NOT auction_finished AND auction_end_ts < \$1\s+RETURNING auction_id`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"auction_id"}).AddRow("auc-1").AddRow("auc-2"))

	ids, err := repo.CloseExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"auc-1", "auc-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSpotOffersNilBid(t *testing.T) {
	repo, mock := newAuctionMock(t)
	received := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT auction_id, company_id, charger_id, offer, received_ts\s+FROM spot_auction_offers`).
		WithArgs("auc-1").
		WillReturnRows(sqlmock.NewRows([]string{"auction_id", "company_id", "charger_id", "offer", "received_ts"}).
			AddRow("auc-1", "co-2", "ch-1", "9.75", received).
			AddRow("auc-1", "co-3", "ch-2", nil, nil))

	offers, err := repo.SpotOffers(context.Background(), "auc-1")
	require.NoError(t, err)
	require.Len(t, offers, 2)
	require.NotNil(t, offers[0].Offer)
	assert.True(t, offers[0].Offer.Equal(decimal.RequireFromString("9.75")))
	assert.Nil(t, offers[1].Offer)
	assert.Nil(t, offers[1].ReceivedTs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
