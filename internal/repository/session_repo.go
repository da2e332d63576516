package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chargebroker/internal/models"
)

// ErrSessionNotFound indicates a missing or no longer open session.
var ErrSessionNotFound = errors.New("session not found")

// Corrective fields reported by the loose-flow classification.
const (
	CorrectiveEndCharge = "end_charge_ts"
	CorrectiveDeparture = "departure_ts"
)

// LooseFlow is one session flagged by the collaborator-supplied
// classification as having drifted out of the monotonic lifecycle.
type LooseFlow struct {
	SessionID       string
	CorrectiveField string
}

// SessionRepository handles persistence of charging flow sessions.
type SessionRepository struct {
	q Querier
}

// NewSessionRepository returns repository bound to the given querier.
func NewSessionRepository(q Querier) *SessionRepository {
	return &SessionRepository{q: q}
}

// Insert creates a new session at arrival time.
func (r *SessionRepository) Insert(ctx context.Context, s *models.Session) error {
	const query = `
		INSERT INTO charging_flows (session_id, license_plate, charging_station_id, arrival_ts)
		VALUES ($1, $2, $3, $4)
		RETURNING session_id, arrival_ts
	`
	return r.q.QueryRowContext(ctx, query,
		s.ID,
		s.LicensePlate,
		s.StationID,
		s.ArrivalTs,
	).Scan(&s.ID, &s.ArrivalTs)
}

// OpenByPlate returns all open sessions (departure not set) for a plate.
func (r *SessionRepository) OpenByPlate(ctx context.Context, plate string) ([]models.Session, error) {
	const query = `
		SELECT session_id, license_plate, charging_station_id, charger_id,
		       arrival_ts, spot_assignment_ts, charger_checkin_ts,
		       start_charge_ts, end_charge_ts, departure_ts
		FROM charging_flows
		WHERE license_plate = $1 AND departure_ts IS NULL
	`
	rows, err := r.q.QueryContext(ctx, query, plate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// GetByID returns a single session.
func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	const query = `
		SELECT session_id, license_plate, charging_station_id, charger_id,
		       arrival_ts, spot_assignment_ts, charger_checkin_ts,
		       start_charge_ts, end_charge_ts, departure_ts
		FROM charging_flows
		WHERE session_id = $1
	`
	var s models.Session
	err := scanSessionRow(r.q.QueryRowContext(ctx, query, sessionID), &s)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindEstablished resolves the open session identified by plate, station and
// charger, the tuple established-session operations authenticate with.
func (r *SessionRepository) FindEstablished(ctx context.Context, plate, stationID, chargerID string) (*models.Session, error) {
	const query = `
		SELECT session_id, license_plate, charging_station_id, charger_id,
		       arrival_ts, spot_assignment_ts, charger_checkin_ts,
		       start_charge_ts, end_charge_ts, departure_ts
		FROM charging_flows
		WHERE license_plate = $1
		  AND charging_station_id = $2
		  AND charger_id = $3
		  AND arrival_ts IS NOT NULL
		  AND departure_ts IS NULL
	`
	var s models.Session
	err := scanSessionRow(r.q.QueryRowContext(ctx, query, plate, stationID, chargerID), &s)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LooseFlows reads the externally maintained classification of sessions
// violating the lifecycle invariant. The predicate itself lives in the
// v_loose_flows view and is not owned by the engine.
func (r *SessionRepository) LooseFlows(ctx context.Context) ([]LooseFlow, error) {
	const query = `SELECT session_id, update_col FROM v_loose_flows`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flows []LooseFlow
	for rows.Next() {
		var f LooseFlow
		if err := rows.Scan(&f.SessionID, &f.CorrectiveField); err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

// SetEndCharge stamps the end of charging, scoped to a still-charging row.
func (r *SessionRepository) SetEndCharge(ctx context.Context, sessionID string, ts time.Time) (bool, error) {
	const query = `
		UPDATE charging_flows
		SET end_charge_ts = $2
		WHERE session_id = $1 AND end_charge_ts IS NULL
	`
	return r.execScoped(ctx, query, sessionID, ts)
}

// SetDeparture stamps the departure, scoped to a still-open row.
func (r *SessionRepository) SetDeparture(ctx context.Context, sessionID string, ts time.Time) (bool, error) {
	const query = `
		UPDATE charging_flows
		SET departure_ts = $2
		WHERE session_id = $1 AND departure_ts IS NULL
	`
	return r.execScoped(ctx, query, sessionID, ts)
}

// SetStartCharge stamps the start of charging, scoped to a not-yet-charging row.
func (r *SessionRepository) SetStartCharge(ctx context.Context, sessionID string, ts time.Time) (bool, error) {
	const query = `
		UPDATE charging_flows
		SET start_charge_ts = $2
		WHERE session_id = $1 AND start_charge_ts IS NULL
	`
	return r.execScoped(ctx, query, sessionID, ts)
}

// SetCheckin stamps the charger checkin.
func (r *SessionRepository) SetCheckin(ctx context.Context, sessionID string, ts time.Time) (bool, error) {
	const query = `
		UPDATE charging_flows
		SET charger_checkin_ts = $2
		WHERE session_id = $1 AND charger_checkin_ts IS NULL
	`
	return r.execScoped(ctx, query, sessionID, ts)
}

// SetAssignment binds a session to a charger, scoped to a still-unassigned row.
func (r *SessionRepository) SetAssignment(ctx context.Context, sessionID, chargerID string, ts time.Time) (bool, error) {
	const query = `
		UPDATE charging_flows
		SET spot_assignment_ts = $3, charger_id = $2
		WHERE session_id = $1 AND spot_assignment_ts IS NULL
	`
	res, err := r.q.ExecContext(ctx, query, sessionID, chargerID, ts)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SessionRepository) execScoped(ctx context.Context, query, sessionID string, ts time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, query, sessionID, ts)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ArrivalWithLock pairs a just-arrived unassigned session with the charger
// its plate holds an active spot-assign lock on.
type ArrivalWithLock struct {
	SessionID    string
	LicensePlate string
	StationID    string
	ChargerID    string
}

// ArrivalsWithActiveLock returns unassigned open sessions whose plate holds a
// lock active at the given instant.
func (r *SessionRepository) ArrivalsWithActiveLock(ctx context.Context, now time.Time) ([]ArrivalWithLock, error) {
	const query = `
		SELECT cf.session_id, cf.license_plate, sal.charging_station_id, sal.charger_id
		FROM charging_flows AS cf
		JOIN spot_assign_locks AS sal ON sal.license_plate = cf.license_plate
		WHERE cf.arrival_ts IS NOT NULL
		  AND cf.spot_assignment_ts IS NULL
		  AND cf.departure_ts IS NULL
		  AND cf.charger_id IS NULL
		  AND $1 BETWEEN sal.lock_start_ts AND sal.lock_end_ts
		ORDER BY cf.arrival_ts
	`
	rows, err := r.q.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var arrivals []ArrivalWithLock
	for rows.Next() {
		var a ArrivalWithLock
		if err := rows.Scan(&a.SessionID, &a.LicensePlate, &a.StationID, &a.ChargerID); err != nil {
			return nil, err
		}
		arrivals = append(arrivals, a)
	}
	return arrivals, rows.Err()
}

// ChargingOccupant returns the session currently charging on the given
// charger, or nil when the charger is not occupied mid-charge.
func (r *SessionRepository) ChargingOccupant(ctx context.Context, chargerID string) (*models.Session, error) {
	const query = `
		SELECT session_id, license_plate, charging_station_id, charger_id,
		       arrival_ts, spot_assignment_ts, charger_checkin_ts,
		       start_charge_ts, end_charge_ts, departure_ts
		FROM charging_flows
		WHERE charger_id = $1
		  AND start_charge_ts IS NOT NULL
		  AND end_charge_ts IS NULL
	`
	var s models.Session
	err := scanSessionRow(r.q.QueryRowContext(ctx, query, chargerID), &s)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ReservationCandidate is an unassigned session whose plate has a reservation
// at its station starting within the arrival slack window.
type ReservationCandidate struct {
	SessionID string
	StationID string
	ArrivalTs time.Time
}

// ReservationCandidates returns candidates ordered by arrival. The window is
// [reserved start - early slack, reserved start + late slack] expressed as
// start_ts bounds around now.
func (r *SessionRepository) ReservationCandidates(ctx context.Context, now time.Time, earlySlack, lateSlack time.Duration) ([]ReservationCandidate, error) {
	const query = `
		SELECT DISTINCT ON (cf.session_id) cf.session_id, cf.charging_station_id, cf.arrival_ts
		FROM charging_flows AS cf
		JOIN reservations AS res ON res.license_plate = cf.license_plate
		  AND res.charging_station_id = cf.charging_station_id
		WHERE cf.spot_assignment_ts IS NULL
		  AND cf.start_charge_ts IS NULL
		  AND cf.departure_ts IS NULL
		  AND res.start_ts BETWEEN $1 AND $2
		ORDER BY cf.session_id, cf.arrival_ts
	`
	rows, err := r.q.QueryContext(ctx, query, now.Add(-lateSlack), now.Add(earlySlack))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []ReservationCandidate
	for rows.Next() {
		var c ReservationCandidate
		if err := rows.Scan(&c.SessionID, &c.StationID, &c.ArrivalTs); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// QueueEntry is one waiting session in a station queue.
type QueueEntry struct {
	SessionID     string
	StationID     string
	ArrivalTs     time.Time
	QueuePosition int
}

// StationQueues returns all unassigned open sessions in arrival order,
// positioned per station.
func (r *SessionRepository) StationQueues(ctx context.Context) ([]QueueEntry, error) {
	const query = `
		SELECT session_id, charging_station_id, arrival_ts,
		       ROW_NUMBER() OVER (PARTITION BY charging_station_id ORDER BY arrival_ts) AS queue_position
		FROM charging_flows
		WHERE spot_assignment_ts IS NULL AND departure_ts IS NULL
		ORDER BY charging_station_id, queue_position
	`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(&e.SessionID, &e.StationID, &e.ArrivalTs, &e.QueuePosition); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// QueueForStation returns the waiting queue of a single station.
func (r *SessionRepository) QueueForStation(ctx context.Context, stationID string) ([]QueueEntry, error) {
	const query = `
		SELECT session_id, charging_station_id, arrival_ts,
		       ROW_NUMBER() OVER (ORDER BY arrival_ts) AS queue_position
		FROM charging_flows
		WHERE charging_station_id = $1
		  AND spot_assignment_ts IS NULL
		  AND departure_ts IS NULL
		ORDER BY queue_position
	`
	rows, err := r.q.QueryContext(ctx, query, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(&e.SessionID, &e.StationID, &e.ArrivalTs, &e.QueuePosition); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanSessions(rows *sql.Rows) ([]models.Session, error) {
	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(
			&s.ID,
			&s.LicensePlate,
			&s.StationID,
			&s.ChargerID,
			&s.ArrivalTs,
			&s.SpotAssignTs,
			&s.ChargerCheckin,
			&s.StartChargeTs,
			&s.EndChargeTs,
			&s.DepartureTs,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanSessionRow(row *sql.Row, s *models.Session) error {
	return row.Scan(
		&s.ID,
		&s.LicensePlate,
		&s.StationID,
		&s.ChargerID,
		&s.ArrivalTs,
		&s.SpotAssignTs,
		&s.ChargerCheckin,
		&s.StartChargeTs,
		&s.EndChargeTs,
		&s.DepartureTs,
	)
}
