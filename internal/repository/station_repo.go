package repository

import (
	"context"
	"database/sql"
	"errors"

	"chargebroker/internal/models"
)

// ErrStationNotFound is returned when a station id resolves to no row.
var ErrStationNotFound = errors.New("charging station not found")

// StationRepository handles persistence of charging stations.
type StationRepository struct {
	q Querier
}

// NewStationRepository returns repository bound to the given querier.
func NewStationRepository(q Querier) *StationRepository {
	return &StationRepository{q: q}
}

// GetByID returns a single station.
func (r *StationRepository) GetByID(ctx context.Context, id string) (*models.Station, error) {
	const query = `
		SELECT charging_station_id, charging_station_name, total_charging_spots, max_reservation_spots, active
		FROM charging_stations
		WHERE charging_station_id = $1
	`
	var s models.Station
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.TotalChargingSpots, &s.MaxReservationSpots, &s.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns all stations.
func (r *StationRepository) List(ctx context.Context) ([]models.Station, error) {
	const query = `
		SELECT charging_station_id, charging_station_name, total_charging_spots, max_reservation_spots, active
		FROM charging_stations
		ORDER BY charging_station_id
	`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var s models.Station
		if err := rows.Scan(&s.ID, &s.Name, &s.TotalChargingSpots, &s.MaxReservationSpots, &s.Active); err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

// Upsert inserts a station or updates its mutable fields.
func (r *StationRepository) Upsert(ctx context.Context, s models.Station) error {
	const query = `
		INSERT INTO charging_stations
			(charging_station_id, charging_station_name, total_charging_spots, max_reservation_spots, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (charging_station_id) DO UPDATE SET
			charging_station_name = EXCLUDED.charging_station_name,
			total_charging_spots = EXCLUDED.total_charging_spots,
			max_reservation_spots = EXCLUDED.max_reservation_spots,
			active = EXCLUDED.active
	`
	_, err := r.q.ExecContext(ctx, query, s.ID, s.Name, s.TotalChargingSpots, s.MaxReservationSpots, s.Active)
	return err
}
