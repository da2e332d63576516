package models

// FleetVehicle maps a license plate to the company operating it.
type FleetVehicle struct {
	LicensePlate string `db:"license_plate" json:"license_plate"`
	CompanyID    string `db:"company_id" json:"company_id"`
	Active       bool   `db:"active" json:"active"`
}
