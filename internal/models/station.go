package models

// Station represents a physical site containing multiple chargers.
type Station struct {
	ID                  string `db:"charging_station_id" json:"charging_station_id"`
	Name                string `db:"charging_station_name" json:"charging_station_name"`
	TotalChargingSpots  int    `db:"total_charging_spots" json:"total_charging_spots"`
	MaxReservationSpots int    `db:"max_reservation_spots" json:"max_reservation_spots"`
	Active              bool   `db:"active" json:"active"`
}

// Charger is one physical charging point at a station.
type Charger struct {
	ID        string `db:"charger_id" json:"charger_id"`
	StationID string `db:"charging_station_id" json:"charging_station_id"`
	Active    bool   `db:"active" json:"active"`
}
