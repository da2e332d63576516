package repository

import (
	"context"
	"time"

	"chargebroker/internal/models"
)

// ReservationRepository handles persistence of reservations and spot
// assignment locks.
type ReservationRepository struct {
	q Querier
}

// NewReservationRepository returns repository bound to the given querier.
func NewReservationRepository(q Querier) *ReservationRepository {
	return &ReservationRepository{q: q}
}

// List returns all reservations ordered by start time.
func (r *ReservationRepository) List(ctx context.Context) ([]models.Reservation, error) {
	const query = `
		SELECT license_plate, charging_station_id, start_ts, end_ts
		FROM reservations
		ORDER BY start_ts, charging_station_id, license_plate
	`
	return r.queryReservations(ctx, query)
}

// ListByCompany returns reservations whose plate belongs to the given
// company's fleet.
func (r *ReservationRepository) ListByCompany(ctx context.Context, companyID string) ([]models.Reservation, error) {
	const query = `
		SELECT res.license_plate, res.charging_station_id, res.start_ts, res.end_ts
		FROM reservations AS res
		JOIN fleets AS f ON f.license_plate = res.license_plate
		WHERE f.company_id = $1
		ORDER BY res.start_ts, res.charging_station_id, res.license_plate
	`
	return r.queryReservations(ctx, query, companyID)
}

// Insert adds one reservation row.
func (r *ReservationRepository) Insert(ctx context.Context, res models.Reservation) error {
	const query = `
		INSERT INTO reservations (license_plate, charging_station_id, start_ts, end_ts)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.q.ExecContext(ctx, query, res.LicensePlate, res.StationID, res.StartTs, res.EndTs)
	return err
}

// Delete removes one reservation identified by its full key. Returns whether
// a row was removed.
func (r *ReservationRepository) Delete(ctx context.Context, res models.Reservation) (bool, error) {
	const query = `
		DELETE FROM reservations
		WHERE license_plate = $1 AND charging_station_id = $2 AND start_ts = $3 AND end_ts = $4
	`
	result, err := r.q.ExecContext(ctx, query, res.LicensePlate, res.StationID, res.StartTs, res.EndTs)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TransferPlate reassigns one reservation window from the seller's plate to
// the buyer's plate. The update is scoped to the exact window being sold so
// the seller's other reservations are untouched.
func (r *ReservationRepository) TransferPlate(ctx context.Context, fromPlate, toPlate, stationID string, startTs time.Time) (bool, error) {
	const query = `
		UPDATE reservations
		SET license_plate = $1
		WHERE license_plate = $2 AND charging_station_id = $3 AND start_ts = $4
	`
	result, err := r.q.ExecContext(ctx, query, toPlate, fromPlate, stationID, startTs)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OverlappingCount counts the reservations at a station intersecting the
// given window. Capacity admission treats this as a conservative bound
// against max_reservation_spots: reservations that intersect the window but
// not each other still all count.
func (r *ReservationRepository) OverlappingCount(ctx context.Context, stationID string, startTs, endTs time.Time) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM reservations
		WHERE charging_station_id = $1
		  AND start_ts < $3 AND end_ts > $2
	`
	var count int
	if err := r.q.QueryRowContext(ctx, query, stationID, startTs, endTs).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Overlapping returns the reservations at a station that intersect the given
// window.
func (r *ReservationRepository) Overlapping(ctx context.Context, stationID string, startTs, endTs time.Time) ([]models.Reservation, error) {
	const query = `
		SELECT license_plate, charging_station_id, start_ts, end_ts
		FROM reservations
		WHERE charging_station_id = $1
		  AND start_ts < $3 AND end_ts > $2
		ORDER BY start_ts, license_plate
	`
	return r.queryReservations(ctx, query, stationID, startTs, endTs)
}

// HasUpcoming reports whether the plate holds a reservation at the station
// starting within the given horizon from now.
func (r *ReservationRepository) HasUpcoming(ctx context.Context, licensePlate, stationID string, now time.Time, horizon time.Duration) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE license_plate = $1 AND charging_station_id = $2
			  AND start_ts BETWEEN $3 AND $4
		)
	`
	var ok bool
	err := r.q.QueryRowContext(ctx, query, licensePlate, stationID, now, now.Add(horizon)).Scan(&ok)
	return ok, err
}

// HasWindow reports whether the exact reservation window exists for the plate.
func (r *ReservationRepository) HasWindow(ctx context.Context, res models.Reservation) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE license_plate = $1 AND charging_station_id = $2 AND start_ts = $3 AND end_ts = $4
		)
	`
	var ok bool
	err := r.q.QueryRowContext(ctx, query, res.LicensePlate, res.StationID, res.StartTs, res.EndTs).Scan(&ok)
	return ok, err
}

func (r *ReservationRepository) queryReservations(ctx context.Context, query string, args ...interface{}) ([]models.Reservation, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reservations []models.Reservation
	for rows.Next() {
		var res models.Reservation
		if err := rows.Scan(&res.LicensePlate, &res.StationID, &res.StartTs, &res.EndTs); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}
