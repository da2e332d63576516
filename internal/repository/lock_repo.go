package repository

import (
	"context"

	"chargebroker/internal/models"
)

// LockRepository handles persistence of spot assignment locks.
type LockRepository struct {
	q Querier
}

// NewLockRepository returns repository bound to the given querier.
func NewLockRepository(q Querier) *LockRepository {
	return &LockRepository{q: q}
}

// Insert adds one lock row granting the plate exclusive access to a charger
// for the lock window.
func (r *LockRepository) Insert(ctx context.Context, lock models.SpotAssignLock) error {
	const query = `
		INSERT INTO spot_assign_locks
			(charging_station_id, charger_id, license_plate, lock_start_ts, lock_end_ts, auction_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.q.ExecContext(ctx, query,
		lock.StationID, lock.ChargerID, lock.LicensePlate,
		lock.LockStartTs, lock.LockEndTs, lock.AuctionID,
	)
	return err
}

// ListByAuction returns the locks created by one auction.
func (r *LockRepository) ListByAuction(ctx context.Context, auctionID string) ([]models.SpotAssignLock, error) {
	const query = `
		SELECT charging_station_id, charger_id, license_plate, lock_start_ts, lock_end_ts, auction_id
		FROM spot_assign_locks
		WHERE auction_id = $1
		ORDER BY lock_start_ts
	`
	rows, err := r.q.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locks []models.SpotAssignLock
	for rows.Next() {
		var l models.SpotAssignLock
		if err := rows.Scan(&l.StationID, &l.ChargerID, &l.LicensePlate, &l.LockStartTs, &l.LockEndTs, &l.AuctionID); err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}
