package models

import "time"

// Session is the lifecycle record of one vehicle's visit, from arrival to
// departure. Timestamps, once set, are monotonically non-decreasing in field
// order; a session with a nil departure timestamp is "open", and at most one
// open session may exist per plate.
type Session struct {
	ID             string     `db:"session_id" json:"session_id"`
	LicensePlate   string     `db:"license_plate" json:"license_plate"`
	StationID      string     `db:"charging_station_id" json:"charging_station_id"`
	ChargerID      *string    `db:"charger_id" json:"charger_id,omitempty"`
	ArrivalTs      time.Time  `db:"arrival_ts" json:"arrival_ts"`
	SpotAssignTs   *time.Time `db:"spot_assignment_ts" json:"spot_assignment_ts,omitempty"`
	ChargerCheckin *time.Time `db:"charger_checkin_ts" json:"charger_checkin_ts,omitempty"`
	StartChargeTs  *time.Time `db:"start_charge_ts" json:"start_charge_ts,omitempty"`
	EndChargeTs    *time.Time `db:"end_charge_ts" json:"end_charge_ts,omitempty"`
	DepartureTs    *time.Time `db:"departure_ts" json:"departure_ts,omitempty"`
}

// Open reports whether the session is still in flight.
func (s Session) Open() bool { return s.DepartureTs == nil }

// Charging reports whether a vehicle currently occupies the charger mid-charge.
func (s Session) Charging() bool { return s.StartChargeTs != nil && s.EndChargeTs == nil }
