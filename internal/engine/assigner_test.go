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
)

var assignerCfg = config.EngineConfig{
	EarlyArrivalSlack: 600,
	LateArrivalSlack:  600,
}

func flowColumns() []string {
	return []string{
		"session_id", "license_plate", "charging_station_id", "charger_id",
		"arrival_ts", "spot_assignment_ts", "charger_checkin_ts",
		"start_charge_ts", "end_charge_ts", "departure_ts",
	}
}

func expectEmptyReservationTier(mock sqlmock.Sqlmock, now time.Time) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT DISTINCT ON \(cf.session_id\)`).
		WithArgs(now.Add(-10*time.Minute), now.Add(10*time.Minute)).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "charging_station_id", "arrival_ts"}))
	mock.ExpectCommit()
}

func expectEmptyQueueTier(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(`ROW_NUMBER\(\) OVER \(PARTITION BY charging_station_id`).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "charging_station_id", "arrival_ts", "queue_position"}))
	mock.ExpectCommit()
}

func TestAssignerLockHolderDisplacesOccupant(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := fixedNow()

	mock.ExpectBegin()
	mock.ExpectQuery(`JOIN spot_assign_locks`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "license_plate", "charging_station_id", "charger_id"}).
			AddRow("sess-new", "XX-123", "st-1", "ch-1"))
	mock.ExpectQuery(`FROM charging_flows\s+WHERE charger_id = \$1`).
		WithArgs("ch-1").
		WillReturnRows(sqlmock.NewRows(flowColumns()).
			AddRow("sess-old", "YY-456", "st-1", "ch-1",
				now.Add(-2*time.Hour), now.Add(-2*time.Hour), now.Add(-time.Hour),
				now.Add(-time.Hour), nil, nil))
	mock.ExpectExec(`UPDATE charging_flows\s+SET end_charge_ts`).
		WithArgs("sess-old", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE charging_flows\s+SET spot_assignment_ts = \$3, charger_id = \$2`).
		WithArgs("sess-new", "ch-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	expectEmptyReservationTier(mock, now)
	expectEmptyQueueTier(mock)

	assigner := NewSpotAssigner(db, assignerCfg, zap.NewNop(), fixedNow)
	changes, err := assigner.Run(context.Background())
	require.NoError(t, err)

	var parsed assignerChanges
	require.NoError(t, json.Unmarshal(changes, &parsed))
	require.Len(t, parsed.LockAssignments, 1)
	assert.Equal(t, "sess-new", parsed.LockAssignments[0].SessionID)
	assert.Equal(t, "ch-1", parsed.LockAssignments[0].ChargerID)
	require.NotNil(t, parsed.LockAssignments[0].EndedSession)
	assert.Equal(t, "sess-old", *parsed.LockAssignments[0].EndedSession)
	assert.Empty(t, parsed.ReservationAssignments)
	assert.Empty(t, parsed.QueueAssignments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignerSkipsLockOnUnoccupiedCharger(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := fixedNow()

	mock.ExpectBegin()
	mock.ExpectQuery(`JOIN spot_assign_locks`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "license_plate", "charging_station_id", "charger_id"}).
			AddRow("sess-new", "XX-123", "st-1", "ch-1"))
	mock.ExpectQuery(`FROM charging_flows\s+WHERE charger_id = \$1`).
		WithArgs("ch-1").
		WillReturnRows(sqlmock.NewRows(flowColumns()))
	mock.ExpectCommit()

	expectEmptyReservationTier(mock, now)
	expectEmptyQueueTier(mock)

	assigner := NewSpotAssigner(db, assignerCfg, zap.NewNop(), fixedNow)
	changes, err := assigner.Run(context.Background())
	require.NoError(t, err)

	var parsed assignerChanges
	require.NoError(t, json.Unmarshal(changes, &parsed))
	assert.Empty(t, parsed.LockAssignments,
		"a lock on a charger with no mid-charge occupant resolves through the queue tier")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignerSecondPassMakesNoChanges(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := fixedNow()

	// First pass performs a lock handoff.
	mock.ExpectBegin()
	mock.ExpectQuery(`JOIN spot_assign_locks`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "license_plate", "charging_station_id", "charger_id"}).
			AddRow("sess-new", "XX-123", "st-1", "ch-1"))
	mock.ExpectQuery(`FROM charging_flows\s+WHERE charger_id = \$1`).
		WithArgs("ch-1").
		WillReturnRows(sqlmock.NewRows(flowColumns()).
			AddRow("sess-old", "YY-456", "st-1", "ch-1",
				now.Add(-2*time.Hour), now.Add(-2*time.Hour), now.Add(-time.Hour),
				now.Add(-time.Hour), nil, nil))
	mock.ExpectExec(`UPDATE charging_flows\s+SET end_charge_ts`).
		WithArgs("sess-old", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE charging_flows\s+SET spot_assignment_ts = \$3, charger_id = \$2`).
		WithArgs("sess-new", "ch-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectEmptyReservationTier(mock, now)
	expectEmptyQueueTier(mock)

	// Second pass: the assigned session no longer qualifies anywhere.
	mock.ExpectBegin()
	mock.ExpectQuery(`JOIN spot_assign_locks`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "license_plate", "charging_station_id", "charger_id"}))
	mock.ExpectCommit()
	expectEmptyReservationTier(mock, now)
	expectEmptyQueueTier(mock)

	assigner := NewSpotAssigner(db, assignerCfg, zap.NewNop(), fixedNow)

	first, err := assigner.Run(context.Background())
	require.NoError(t, err)
	var firstParsed assignerChanges
	require.NoError(t, json.Unmarshal(first, &firstParsed))
	require.Len(t, firstParsed.LockAssignments, 1)

	second, err := assigner.Run(context.Background())
	require.NoError(t, err)
	var secondParsed assignerChanges
	require.NoError(t, json.Unmarshal(second, &secondParsed))
	assert.Empty(t, secondParsed.LockAssignments)
	assert.Empty(t, secondParsed.ReservationAssignments)
	assert.Empty(t, secondParsed.QueueAssignments)
	assert.NoError(t, mock.ExpectationsWereMet())
}
