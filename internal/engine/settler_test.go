package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chargebroker/internal/config"
	"chargebroker/internal/models"
)

var settlerCfg = config.EngineConfig{
	OfferChangeGrace:       30,
	SpotAssignLockDuration: 900,
}

func openAuctionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"auction_id", "charging_station_id", "company_id", "license_plate",
		"auction_start_ts", "auction_end_ts", "max_accepted_price", "auto_accept",
		"auction_type", "winning_price", "auction_finished",
	})
}

func TestSettlerSpotWinCreatesLock(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := fixedNow()
	start := now.Add(-10 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM auctions\s+WHERE NOT auction_finished\s+ORDER BY`).
		WillReturnRows(openAuctionRows().
			AddRow("auc-1", "st-1", "co-1", "XX-123",
				start, now.Add(-time.Minute), "30.00", false,
				models.AuctionTypeSpot, nil, false))
	mock.ExpectQuery(`SELECT auction_id, company_id, charger_id, offer, received_ts\s+FROM spot_auction_offers`).
		WithArgs("auc-1").
		WillReturnRows(sqlmock.NewRows([]string{"auction_id", "company_id", "charger_id", "offer", "received_ts"}).
			AddRow("auc-1", "co-2", "ch-1", "25.00", start.Add(time.Minute)).
			AddRow("auc-1", "co-3", "ch-2", "20.00", start.Add(2*time.Minute)))
	mock.ExpectExec(`INSERT INTO spot_assign_locks`).
		WithArgs("st-1", "ch-2", "XX-123", now, now.Add(15*time.Minute), "auc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE auctions\s+SET auction_finished = true, winning_price = \$2`).
		WithArgs("auc-1", "20").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`UPDATE auctions\s+SET auction_finished = true\s+WHERE NOT auction_finished AND auction_end_ts < \$1`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"auction_id"}))
	mock.ExpectCommit()

	settler := NewAuctionSettler(db, settlerCfg, zap.NewNop(), fixedNow)
	changes, err := settler.Run(context.Background())
	require.NoError(t, err)

	var parsed settlerChanges
	require.NoError(t, json.Unmarshal(changes, &parsed))
	require.Len(t, parsed.Settled, 1)
	assert.Equal(t, "co-3", parsed.Settled[0].WinnerCompany)
	assert.Equal(t, "ch-2", parsed.Settled[0].ChargerID)
	assert.Empty(t, parsed.Abandoned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlerReservationWinTransfersOnlySoldWindow(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := fixedNow()
	start := now.Add(-10 * time.Minute)
	windowStart := now.Add(3 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM auctions\s+WHERE NOT auction_finished\s+ORDER BY`).
		WillReturnRows(openAuctionRows().
			AddRow("auc-2", "st-1", "co-1", "XX-123",
				start, now.Add(-time.Minute), nil, true,
				models.AuctionTypeReservation, nil, false))
	mock.ExpectQuery(`FROM reservation_auction_offers`).
		WithArgs("auc-2").
		WillReturnRows(sqlmock.NewRows([]string{
			"auction_id", "charging_station_id", "company_id", "license_plate",
			"start_ts", "end_ts", "offer", "received_ts",
		}).AddRow("auc-2", "st-1", "co-2", "YY-456",
			windowStart, windowStart.Add(time.Hour), "18.00", start.Add(time.Minute)))
	mock.ExpectExec(`UPDATE reservations\s+SET license_plate = \$1\s+WHERE license_plate = \$2 AND charging_station_id = \$3 AND start_ts = \$4`).
		WithArgs("XX-123", "YY-456", "st-1", windowStart).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE auctions\s+SET auction_finished = true, winning_price = \$2`).
		WithArgs("auc-2", "18").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`UPDATE auctions\s+SET auction_finished = true\s+WHERE NOT auction_finished AND auction_end_ts < \$1`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"auction_id"}))
	mock.ExpectCommit()

	settler := NewAuctionSettler(db, settlerCfg, zap.NewNop(), fixedNow)
	changes, err := settler.Run(context.Background())
	require.NoError(t, err)

	var parsed settlerChanges
	require.NoError(t, json.Unmarshal(changes, &parsed))
	require.Len(t, parsed.Settled, 1)
	assert.Equal(t, "YY-456", parsed.Settled[0].TransferPlate)
	assert.Equal(t, "XX-123", parsed.Settled[0].ReceiverPlate)
	assert.False(t, parsed.Settled[0].TransferFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlerAbandonsAuctionWithNoValidBid(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := fixedNow()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM auctions\s+WHERE NOT auction_finished\s+ORDER BY`).
		WillReturnRows(openAuctionRows().
			AddRow("auc-3", "st-1", "co-1", "XX-123",
				now.Add(-10*time.Minute), now.Add(-time.Minute), "10.00", false,
				models.AuctionTypeSpot, nil, false))
	mock.ExpectQuery(`FROM spot_auction_offers`).
		WithArgs("auc-3").
		WillReturnRows(sqlmock.NewRows([]string{"auction_id", "company_id", "charger_id", "offer", "received_ts"}).
			AddRow("auc-3", "co-2", "ch-1", "50.00", now.Add(-5*time.Minute)))
	mock.ExpectExec(`UPDATE auctions\s+SET auction_finished = true, winning_price = \$2`).
		WithArgs("auc-3", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`UPDATE auctions\s+SET auction_finished = true\s+WHERE NOT auction_finished AND auction_end_ts < \$1`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"auction_id"}))
	mock.ExpectCommit()

	settler := NewAuctionSettler(db, settlerCfg, zap.NewNop(), fixedNow)
	changes, err := settler.Run(context.Background())
	require.NoError(t, err)

	var parsed settlerChanges
	require.NoError(t, json.Unmarshal(changes, &parsed))
	assert.Empty(t, parsed.Settled)
	assert.Equal(t, []string{"auc-3"}, parsed.Abandoned)
	assert.NoError(t, mock.ExpectationsWereMet())
}
