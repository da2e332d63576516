package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chargebroker/internal/config"
	"chargebroker/internal/models"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestFlowEnforcerAppliesCorrections(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT session_id, update_col FROM v_loose_flows`).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "update_col"}).
			AddRow("sess-1", "end_charge_ts").
			AddRow("sess-2", "departure_ts"))
	mock.ExpectExec(`UPDATE charging_flows\s+SET end_charge_ts`).
		WithArgs("sess-1", fixedNow()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE charging_flows\s+SET departure_ts`).
		WithArgs("sess-2", fixedNow()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	enforcer := NewFlowEnforcer(db, zap.NewNop(), fixedNow)
	changes, err := enforcer.Run(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"corrected":[
		{"session_id":"sess-1","field":"end_charge_ts"},
		{"session_id":"sess-2","field":"departure_ts"}
	]}`, string(changes))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFlowEnforcerSkipsUnknownField(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT session_id, update_col FROM v_loose_flows`).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "update_col"}).
			AddRow("sess-1", "arrival_ts"))
	mock.ExpectCommit()

	enforcer := NewFlowEnforcer(db, zap.NewNop(), fixedNow)
	changes, err := enforcer.Run(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"corrected":[]}`, string(changes))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type captureNotifier struct {
	jobTypes []string
}

func (c *captureNotifier) NotifyRefresh(rec models.JobAuditRecord) {
	c.jobTypes = append(c.jobTypes, rec.JobType)
}

func TestRefreshContinuesPastFailedStage(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := fixedNow()
	cfg := config.EngineConfig{
		OfferChangeGrace:       30,
		SpotAssignLockDuration: 900,
		EarlyArrivalSlack:      600,
		LateArrivalSlack:       600,
	}

	// Enforcer fails outright.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT session_id, update_col FROM v_loose_flows`).
		WillReturnError(errors.New("view unavailable"))
	mock.ExpectRollback()

	// Settler still runs and gets its audit record.
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM auctions\s+WHERE NOT auction_finished\s+ORDER BY`).
		WillReturnRows(openAuctionRows())
	mock.ExpectQuery(`UPDATE auctions\s+SET auction_finished = true\s+WHERE NOT auction_finished AND auction_end_ts < \$1`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"auction_id"}))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(now, sqlmock.AnyArg(), models.JobTypeAuctionSettling).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// So does the assigner.
	mock.ExpectBegin()
	mock.ExpectQuery(`JOIN spot_assign_locks`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "license_plate", "charging_station_id", "charger_id"}))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT DISTINCT ON \(cf.session_id\)`).
		WithArgs(now.Add(-10*time.Minute), now.Add(10*time.Minute)).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "charging_station_id", "arrival_ts"}))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(`ROW_NUMBER\(\) OVER \(PARTITION BY charging_station_id`).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "charging_station_id", "arrival_ts", "queue_position"}))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(now, sqlmock.AnyArg(), models.JobTypeSpotAssignment).
		WillReturnResult(sqlmock.NewResult(0, 1))

	notifier := &captureNotifier{}
	refresher := NewRefresher(db, cfg, zap.NewNop(), fixedNow, notifier)
	require.NoError(t, refresher.Refresh(context.Background()))

	assert.Equal(t, []string{models.JobTypeAuctionSettling, models.JobTypeSpotAssignment}, notifier.jobTypes,
		"only completed stages are audited and broadcast")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCronRefreshDebounced(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	cfg := config.EngineConfig{CronBlockInterval: 60}
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(fixedNow().Add(-time.Minute)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	refresher := NewRefresher(db, cfg, zap.NewNop(), fixedNow, nil)
	require.NoError(t, refresher.CronRefresh(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
