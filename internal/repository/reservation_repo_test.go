package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargebroker/internal/models"
)

func newReservationMock(t *testing.T) (*ReservationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewReservationRepository(db), mock
}

func TestOverlappingCountIsIntersectionCount(t *testing.T) {
	repo, mock := newReservationMock(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)

	// Two reservations each intersecting the window count as two, even when
	// they never run concurrently.
	mock.ExpectQuery(`SELECT COUNT\(\*\)\s+FROM reservations\s+WHERE charging_station_id = \$1\s+AND start_ts < \$3 AND end_ts > \$2`).
		WithArgs("st-1", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.OverlappingCount(context.Background(), "st-1", start, end)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRequiresFullKey(t *testing.T) {
	repo, mock := newReservationMock(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	res := models.Reservation{
		LicensePlate: "XX-123",
		StationID:    "st-1",
		StartTs:      start,
		EndTs:        start.Add(time.Hour),
	}

	mock.ExpectExec(`DELETE FROM reservations\s+WHERE license_plate = \$1 AND charging_station_id = \$2 AND start_ts = \$3 AND end_ts = \$4`).
		WithArgs(res.LicensePlate, res.StationID, res.StartTs, res.EndTs).
		WillReturnResult(sqlmock.NewResult(0, 0))

	removed, err := repo.Delete(context.Background(), res)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
