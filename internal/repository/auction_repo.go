package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"chargebroker/internal/models"
)

// ErrAuctionNotFound is returned when an auction id resolves to no row.
var ErrAuctionNotFound = errors.New("auction not found")

const auctionColumns = `auction_id, charging_station_id, company_id, license_plate,
	auction_start_ts, auction_end_ts, max_accepted_price, auto_accept,
	auction_type, winning_price, auction_finished`

// AuctionRepository handles persistence of auctions and their offers.
type AuctionRepository struct {
	q Querier
}

// NewAuctionRepository returns repository bound to the given querier.
func NewAuctionRepository(q Querier) *AuctionRepository {
	return &AuctionRepository{q: q}
}

// GetByID returns one auction.
func (r *AuctionRepository) GetByID(ctx context.Context, id string) (*models.Auction, error) {
	const query = `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE auction_id = $1
	`
	a, err := scanAuctionRow(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListOpen returns all unfinished auctions ordered by start time.
func (r *AuctionRepository) ListOpen(ctx context.Context) ([]models.Auction, error) {
	const query = `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE NOT auction_finished
		ORDER BY auction_start_ts, auction_id
	`
	return r.queryAuctions(ctx, query)
}

// OpenByType returns unfinished auctions of one type ordered by start time.
func (r *AuctionRepository) OpenByType(ctx context.Context, auctionType string) ([]models.Auction, error) {
	const query = `
		SELECT ` + auctionColumns + `
		FROM auctions
		WHERE NOT auction_finished AND auction_type = $1
		ORDER BY auction_start_ts, auction_id
	`
	return r.queryAuctions(ctx, query, auctionType)
}

// Insert adds one auction row.
func (r *AuctionRepository) Insert(ctx context.Context, a models.Auction) error {
	const query = `
		INSERT INTO auctions
			(auction_id, charging_station_id, company_id, license_plate,
			 auction_start_ts, auction_end_ts, max_accepted_price, auto_accept,
			 auction_type, winning_price, auction_finished)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.q.ExecContext(ctx, query,
		a.ID, a.StationID, a.CompanyID, a.LicensePlate,
		a.AuctionStartTs, a.AuctionEndTs, decimalArg(a.MaxAcceptedPrice), a.AutoAccept,
		a.Type, decimalArg(a.WinningPrice), a.Finished,
	)
	return err
}

// MarkFinished closes an auction, recording the winning price when there is
// one. Returns whether the auction was still open.
func (r *AuctionRepository) MarkFinished(ctx context.Context, id string, winningPrice *decimal.Decimal) (bool, error) {
	const query = `
		UPDATE auctions
		SET auction_finished = true, winning_price = $2
		WHERE auction_id = $1 AND NOT auction_finished
	`
	result, err := r.q.ExecContext(ctx, query, id, decimalArg(winningPrice))
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CloseExpired finishes every open auction whose window has already ended
// and returns the ids it closed.
func (r *AuctionRepository) CloseExpired(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
		UPDATE auctions
		SET auction_finished = true
		WHERE NOT auction_finished AND auction_end_ts < $1
		RETURNING auction_id
	`
	rows, err := r.q.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes an auction and its offers. Returns whether the auction
// existed and was still open.
func (r *AuctionRepository) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM spot_auction_offers WHERE auction_id = $1`, id); err != nil {
		return false, err
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM reservation_auction_offers WHERE auction_id = $1`, id); err != nil {
		return false, err
	}
	result, err := r.q.ExecContext(ctx, `DELETE FROM auctions WHERE auction_id = $1 AND NOT auction_finished`, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertSpotOffer seeds one counterparty row in a SPOT auction.
func (r *AuctionRepository) InsertSpotOffer(ctx context.Context, o models.SpotOffer) error {
	const query = `
		INSERT INTO spot_auction_offers (auction_id, company_id, charger_id, offer, received_ts)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.q.ExecContext(ctx, query, o.AuctionID, o.CompanyID, o.ChargerID, decimalArg(o.Offer), o.ReceivedTs)
	return err
}

// InsertReservationOffer seeds one counterparty row in a RESERVATION auction.
func (r *AuctionRepository) InsertReservationOffer(ctx context.Context, o models.ReservationOffer) error {
	const query = `
		INSERT INTO reservation_auction_offers
			(auction_id, charging_station_id, company_id, license_plate, start_ts, end_ts, offer, received_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.q.ExecContext(ctx, query,
		o.AuctionID, o.StationID, o.CompanyID, o.LicensePlate,
		o.StartTs, o.EndTs, decimalArg(o.Offer), o.ReceivedTs,
	)
	return err
}

// SpotOffers returns the offer rows of one SPOT auction, bids first in
// arrival order, then the counterparties that have not bid.
func (r *AuctionRepository) SpotOffers(ctx context.Context, auctionID string) ([]models.SpotOffer, error) {
	const query = `
		SELECT auction_id, company_id, charger_id, offer, received_ts
		FROM spot_auction_offers
		WHERE auction_id = $1
		ORDER BY received_ts ASC NULLS LAST, company_id
	`
	rows, err := r.q.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []models.SpotOffer
	for rows.Next() {
		var o models.SpotOffer
		var offer sql.NullString
		if err := rows.Scan(&o.AuctionID, &o.CompanyID, &o.ChargerID, &offer, &o.ReceivedTs); err != nil {
			return nil, err
		}
		if o.Offer, err = decimalValue(offer); err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// ReservationOffers returns the offer rows of one RESERVATION auction, bids
// first in arrival order, then the counterparties that have not bid.
func (r *AuctionRepository) ReservationOffers(ctx context.Context, auctionID string) ([]models.ReservationOffer, error) {
	const query = `
		SELECT auction_id, charging_station_id, company_id, license_plate, start_ts, end_ts, offer, received_ts
		FROM reservation_auction_offers
		WHERE auction_id = $1
		ORDER BY received_ts ASC NULLS LAST, company_id
	`
	rows, err := r.q.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []models.ReservationOffer
	for rows.Next() {
		var o models.ReservationOffer
		var offer sql.NullString
		if err := rows.Scan(&o.AuctionID, &o.StationID, &o.CompanyID, &o.LicensePlate,
			&o.StartTs, &o.EndTs, &offer, &o.ReceivedTs); err != nil {
			return nil, err
		}
		if o.Offer, err = decimalValue(offer); err != nil {
			return nil, err
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// UpdateSpotOffer records a counterparty's bid. Returns whether a seeded
// offer row existed for the company.
func (r *AuctionRepository) UpdateSpotOffer(ctx context.Context, auctionID, companyID string, bid decimal.Decimal, receivedTs time.Time) (bool, error) {
	const query = `
		UPDATE spot_auction_offers
		SET offer = $3, received_ts = $4
		WHERE auction_id = $1 AND company_id = $2
	`
	result, err := r.q.ExecContext(ctx, query, auctionID, companyID, bid.String(), receivedTs)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateReservationOffer records a counterparty's bid on a RESERVATION
// auction. Returns whether a seeded offer row existed for the company.
func (r *AuctionRepository) UpdateReservationOffer(ctx context.Context, auctionID, companyID string, bid decimal.Decimal, receivedTs time.Time) (bool, error) {
	const query = `
		UPDATE reservation_auction_offers
		SET offer = $3, received_ts = $4
		WHERE auction_id = $1 AND company_id = $2
	`
	result, err := r.q.ExecContext(ctx, query, auctionID, companyID, bid.String(), receivedTs)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *AuctionRepository) queryAuctions(ctx context.Context, query string, args ...interface{}) ([]models.Auction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []models.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, *a)
	}
	return auctions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*models.Auction, error) {
	var a models.Auction
	var maxPrice, winPrice sql.NullString
	err := row.Scan(
		&a.ID, &a.StationID, &a.CompanyID, &a.LicensePlate,
		&a.AuctionStartTs, &a.AuctionEndTs, &maxPrice, &a.AutoAccept,
		&a.Type, &winPrice, &a.Finished,
	)
	if err != nil {
		return nil, err
	}
	if a.MaxAcceptedPrice, err = decimalValue(maxPrice); err != nil {
		return nil, err
	}
	if a.WinningPrice, err = decimalValue(winPrice); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAuctionRow(row *sql.Row) (*models.Auction, error) {
	return scanAuction(row)
}

func decimalArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

func decimalValue(s sql.NullString) (*decimal.Decimal, error) {
	if !s.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
