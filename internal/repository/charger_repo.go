package repository

import (
	"context"

	"chargebroker/internal/models"
)

// Charger availability classes used by reservation fulfillment. Lower class
// wins when ranking target chargers.
const (
	ChargerClassFree     = 1
	ChargerClassIdle     = 2
	ChargerClassBumpable = 3
)

// AvailableCharger is one charger a waiting session could be matched to.
// SessionToEnd is set only for bumpable chargers and names the occupying
// session that must be ended as part of the match.
type AvailableCharger struct {
	StationID    string
	ChargerID    string
	Class        int
	SessionToEnd *string
}

// ChargerRepository handles persistence of chargers.
type ChargerRepository struct {
	q Querier
}

// NewChargerRepository returns repository bound to the given querier.
func NewChargerRepository(q Querier) *ChargerRepository {
	return &ChargerRepository{q: q}
}

// ListAll returns every charger.
func (r *ChargerRepository) ListAll(ctx context.Context) ([]models.Charger, error) {
	const query = `
		SELECT charger_id, charging_station_id, active
		FROM chargers
		ORDER BY charging_station_id, charger_id
	`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chargers []models.Charger
	for rows.Next() {
		var c models.Charger
		if err := rows.Scan(&c.ID, &c.StationID, &c.Active); err != nil {
			return nil, err
		}
		chargers = append(chargers, c)
	}
	return chargers, rows.Err()
}

// ListByStation returns the chargers of one station.
func (r *ChargerRepository) ListByStation(ctx context.Context, stationID string) ([]models.Charger, error) {
	const query = `
		SELECT charger_id, charging_station_id, active
		FROM chargers
		WHERE charging_station_id = $1
		ORDER BY charger_id
	`
	rows, err := r.q.QueryContext(ctx, query, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chargers []models.Charger
	for rows.Next() {
		var c models.Charger
		if err := rows.Scan(&c.ID, &c.StationID, &c.Active); err != nil {
			return nil, err
		}
		chargers = append(chargers, c)
	}
	return chargers, rows.Err()
}

// Upsert inserts a charger or updates its active flag.
func (r *ChargerRepository) Upsert(ctx context.Context, c models.Charger) error {
	const query = `
		INSERT INTO chargers (charger_id, charging_station_id, active)
		VALUES ($1, $2, $3)
		ON CONFLICT (charger_id, charging_station_id) DO UPDATE SET active = EXCLUDED.active
	`
	_, err := r.q.ExecContext(ctx, query, c.ID, c.StationID, c.Active)
	return err
}

// FreeChargers returns active chargers with no open session bound to them
// (class 1), ordered by station then charger id. An empty stationID returns
// all stations.
func (r *ChargerRepository) FreeChargers(ctx context.Context, stationID string) ([]AvailableCharger, error) {
	const query = `
		SELECT c.charging_station_id, c.charger_id
		FROM chargers AS c
		WHERE c.active
		  AND ($1 = '' OR c.charging_station_id = $1)
		  AND NOT EXISTS (
		      SELECT 1 FROM charging_flows AS cf
		      WHERE cf.charger_id = c.charger_id AND cf.departure_ts IS NULL
		  )
		ORDER BY c.charging_station_id, c.charger_id
	`
	return r.queryAvailable(ctx, query, ChargerClassFree, stationID)
}

// IdleChargers returns active chargers whose occupant has finished charging
// but not yet departed (class 2): nothing is drawing power, so a reservation
// holder can be routed there.
func (r *ChargerRepository) IdleChargers(ctx context.Context) ([]AvailableCharger, error) {
	const query = `
		SELECT c.charging_station_id, c.charger_id
		FROM chargers AS c
		WHERE c.active
		  AND NOT EXISTS (
		      SELECT 1 FROM charging_flows AS cf
		      WHERE cf.charger_id = c.charger_id
		        AND cf.end_charge_ts IS NULL AND cf.departure_ts IS NULL
		  )
		  AND EXISTS (
		      SELECT 1 FROM charging_flows AS cf
		      WHERE cf.charger_id = c.charger_id AND cf.departure_ts IS NULL
		  )
		ORDER BY c.charging_station_id, c.charger_id
	`
	return r.queryAvailable(ctx, query, ChargerClassIdle)
}

// BumpableChargers returns chargers occupied mid-charge by a session whose
// plate itself holds a reservation at the station (class 3). The occupant may
// be ended to make room for a waiting reservation holder.
func (r *ChargerRepository) BumpableChargers(ctx context.Context) ([]AvailableCharger, error) {
	const query = `
		SELECT DISTINCT cf.charging_station_id, cf.charger_id, cf.session_id
		FROM charging_flows AS cf
		JOIN reservations AS res ON res.license_plate = cf.license_plate
		  AND res.charging_station_id = cf.charging_station_id
		WHERE cf.charger_id IS NOT NULL
		  AND cf.start_charge_ts IS NOT NULL
		  AND cf.end_charge_ts IS NULL
		ORDER BY cf.charging_station_id, cf.charger_id
	`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chargers []AvailableCharger
	for rows.Next() {
		var c AvailableCharger
		var sessionToEnd string
		if err := rows.Scan(&c.StationID, &c.ChargerID, &sessionToEnd); err != nil {
			return nil, err
		}
		c.Class = ChargerClassBumpable
		c.SessionToEnd = &sessionToEnd
		chargers = append(chargers, c)
	}
	return chargers, rows.Err()
}

// OccupiedCharger pairs a mid-charge charger with its occupant's plate.
type OccupiedCharger struct {
	ChargerID    string
	LicensePlate string
}

// OccupiedChargers returns the chargers of one station currently occupied
// mid-charge.
func (r *ChargerRepository) OccupiedChargers(ctx context.Context, stationID string) ([]OccupiedCharger, error) {
	const query = `
		SELECT cf.charger_id, cf.license_plate
		FROM charging_flows AS cf
		WHERE cf.charging_station_id = $1
		  AND cf.charger_id IS NOT NULL
		  AND cf.start_charge_ts IS NOT NULL
		  AND cf.end_charge_ts IS NULL
		ORDER BY cf.charger_id
	`
	rows, err := r.q.QueryContext(ctx, query, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var occupied []OccupiedCharger
	for rows.Next() {
		var o OccupiedCharger
		if err := rows.Scan(&o.ChargerID, &o.LicensePlate); err != nil {
			return nil, err
		}
		occupied = append(occupied, o)
	}
	return occupied, rows.Err()
}

func (r *ChargerRepository) queryAvailable(ctx context.Context, query string, class int, args ...interface{}) ([]AvailableCharger, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chargers []AvailableCharger
	for rows.Next() {
		var c AvailableCharger
		if err := rows.Scan(&c.StationID, &c.ChargerID); err != nil {
			return nil, err
		}
		c.Class = class
		chargers = append(chargers, c)
	}
	return chargers, rows.Err()
}
