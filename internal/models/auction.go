package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Auction types.
const (
	AuctionTypeSpot        = "SPOT"
	AuctionTypeReservation = "RESERVATION"
)

// Auction is a competitive process to reassign a scarce charger or
// reservation slot when none is freely available.
type Auction struct {
	ID               string           `db:"auction_id" json:"auction_id"`
	StationID        string           `db:"charging_station_id" json:"charging_station_id"`
	CompanyID        string           `db:"company_id" json:"company_id"`
	LicensePlate     string           `db:"license_plate" json:"license_plate"`
	AuctionStartTs   time.Time        `db:"auction_start_ts" json:"auction_start_ts"`
	AuctionEndTs     time.Time        `db:"auction_end_ts" json:"auction_end_ts"`
	MaxAcceptedPrice *decimal.Decimal `db:"max_accepted_price" json:"max_accepted_price,omitempty"`
	AutoAccept       bool             `db:"auto_accept" json:"auto_accept"`
	Type             string           `db:"auction_type" json:"auction_type"`
	WinningPrice     *decimal.Decimal `db:"winning_price" json:"winning_price,omitempty"`
	Finished         bool             `db:"auction_finished" json:"auction_finished"`
}

// SpotOffer is one invited counterparty's row in a SPOT auction. A nil Offer
// means the counterparty has not bid yet.
type SpotOffer struct {
	AuctionID  string           `db:"auction_id" json:"auction_id"`
	CompanyID  string           `db:"company_id" json:"company_id"`
	ChargerID  string           `db:"charger_id" json:"charger_id"`
	Offer      *decimal.Decimal `db:"offer" json:"offer,omitempty"`
	ReceivedTs *time.Time       `db:"received_ts" json:"received_ts,omitempty"`
}

// ReservationOffer is one invited counterparty's row in a RESERVATION
// auction; the row identifies the reservation window that would be handed over.
type ReservationOffer struct {
	AuctionID    string           `db:"auction_id" json:"auction_id"`
	StationID    string           `db:"charging_station_id" json:"charging_station_id"`
	CompanyID    string           `db:"company_id" json:"company_id"`
	LicensePlate string           `db:"license_plate" json:"license_plate"`
	StartTs      time.Time        `db:"start_ts" json:"start_ts"`
	EndTs        time.Time        `db:"end_ts" json:"end_ts"`
	Offer        *decimal.Decimal `db:"offer" json:"offer,omitempty"`
	ReceivedTs   *time.Time       `db:"received_ts" json:"received_ts,omitempty"`
}
