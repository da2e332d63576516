package repository

import (
	"context"
	"database/sql"
	"errors"

	"chargebroker/internal/models"
)

// FleetRepository handles the license plate to company mapping.
type FleetRepository struct {
	q Querier
}

// NewFleetRepository returns repository bound to the given querier.
func NewFleetRepository(q Querier) *FleetRepository {
	return &FleetRepository{q: q}
}

// CompanyForPlate returns the company operating the given plate, or empty
// string when the plate is not registered to any active fleet.
func (r *FleetRepository) CompanyForPlate(ctx context.Context, licensePlate string) (string, error) {
	const query = `
		SELECT company_id FROM fleets
		WHERE license_plate = $1 AND active
	`
	var companyID string
	err := r.q.QueryRowContext(ctx, query, licensePlate).Scan(&companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return companyID, nil
}

// ListByCompany returns the active vehicles of one company.
func (r *FleetRepository) ListByCompany(ctx context.Context, companyID string) ([]models.FleetVehicle, error) {
	const query = `
		SELECT license_plate, company_id, active
		FROM fleets
		WHERE company_id = $1 AND active
		ORDER BY license_plate
	`
	rows, err := r.q.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vehicles []models.FleetVehicle
	for rows.Next() {
		var v models.FleetVehicle
		if err := rows.Scan(&v.LicensePlate, &v.CompanyID, &v.Active); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, rows.Err()
}

// Upsert inserts a vehicle or updates its active flag.
func (r *FleetRepository) Upsert(ctx context.Context, v models.FleetVehicle) error {
	const query = `
		INSERT INTO fleets (license_plate, company_id, active)
		VALUES ($1, $2, $3)
		ON CONFLICT (license_plate) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			active = EXCLUDED.active
	`
	_, err := r.q.ExecContext(ctx, query, v.LicensePlate, v.CompanyID, v.Active)
	return err
}
