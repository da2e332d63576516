package models

import "time"

// Reservation is a pre-booked future time window at a station for a plate.
type Reservation struct {
	LicensePlate string    `db:"license_plate" json:"license_plate"`
	StationID    string    `db:"charging_station_id" json:"charging_station_id"`
	StartTs      time.Time `db:"start_ts" json:"start_ts"`
	EndTs        time.Time `db:"end_ts" json:"end_ts"`
}

// SpotAssignLock is a temporary exclusive hold on a specific charger for a
// specific plate, won via auction. At most one lock may be active per charger
// at any instant.
type SpotAssignLock struct {
	StationID    string    `db:"charging_station_id" json:"charging_station_id"`
	ChargerID    string    `db:"charger_id" json:"charger_id"`
	LicensePlate string    `db:"license_plate" json:"license_plate"`
	LockStartTs  time.Time `db:"lock_start_ts" json:"lock_start_ts"`
	LockEndTs    time.Time `db:"lock_end_ts" json:"lock_end_ts"`
	AuctionID    string    `db:"auction_id" json:"auction_id"`
}

// Active reports whether the lock window covers the given instant.
func (l SpotAssignLock) Active(now time.Time) bool {
	return !now.Before(l.LockStartTs) && !now.After(l.LockEndTs)
}
