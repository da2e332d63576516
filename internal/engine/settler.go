package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"chargebroker/internal/config"
	"chargebroker/internal/models"
	"chargebroker/internal/repository"
)

// AuctionSettler is the second pipeline stage. It settles every closeable
// auction: the cheapest acceptable bid wins, a SPOT win materializes as a
// spot assignment lock and a RESERVATION win as a reservation transfer.
type AuctionSettler struct {
	db  *sql.DB
	cfg config.EngineConfig
	log *zap.Logger
	now func() time.Time
}

// NewAuctionSettler constructs the stage.
func NewAuctionSettler(db *sql.DB, cfg config.EngineConfig, log *zap.Logger, now func() time.Time) *AuctionSettler {
	return &AuctionSettler{db: db, cfg: cfg, log: log, now: now}
}

type settlerChanges struct {
	Settled   []settledAuction `json:"settled"`
	Abandoned []string         `json:"abandoned"`
	Expired   []string         `json:"expired"`
}

type settledAuction struct {
	AuctionID      string `json:"auction_id"`
	Type           string `json:"auction_type"`
	WinnerCompany  string `json:"winner_company_id"`
	WinningPrice   string `json:"winning_price"`
	ChargerID      string `json:"charger_id,omitempty"`
	TransferPlate  string `json:"transferred_plate,omitempty"`
	ReceiverPlate  string `json:"receiver_plate,omitempty"`
	TransferFailed bool   `json:"transfer_failed,omitempty"`
}

// Run executes one settling pass in a single transaction.
func (s *AuctionSettler) Run(ctx context.Context) (json.RawMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	auctions := repository.NewAuctionRepository(tx)
	locks := repository.NewLockRepository(tx)
	reservations := repository.NewReservationRepository(tx)

	open, err := auctions.ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	grace := s.cfg.OfferGraceDuration()
	changes := settlerChanges{Settled: []settledAuction{}, Abandoned: []string{}, Expired: []string{}}

	for _, a := range open {
		switch a.Type {
		case models.AuctionTypeSpot:
			if err := s.settleSpot(ctx, auctions, locks, a, now, grace, &changes); err != nil {
				return nil, err
			}
		case models.AuctionTypeReservation:
			if err := s.settleReservation(ctx, auctions, reservations, a, now, grace, &changes); err != nil {
				return nil, err
			}
		default:
			s.log.Warn("unknown auction type",
				zap.String("auctionId", a.ID),
				zap.String("type", a.Type))
		}
	}

	expired, err := auctions.CloseExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	changes.Expired = append(changes.Expired, expired...)

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if len(changes.Settled) > 0 || len(changes.Abandoned) > 0 || len(changes.Expired) > 0 {
		s.log.Info("settled auctions",
			zap.Int("settled", len(changes.Settled)),
			zap.Int("abandoned", len(changes.Abandoned)),
			zap.Int("expired", len(changes.Expired)))
	}
	return json.Marshal(changes)
}

func (s *AuctionSettler) settleSpot(ctx context.Context, auctions *repository.AuctionRepository, locks *repository.LockRepository, a models.Auction, now time.Time, grace time.Duration, changes *settlerChanges) error {
	offers, err := auctions.SpotOffers(ctx, a.ID)
	if err != nil {
		return err
	}
	views := spotBidViews(offers)
	if !auctionCloseable(a, views, now, grace) {
		return nil
	}

	ranked := rankBids(a, views)
	if len(ranked) == 0 {
		if _, err := auctions.MarkFinished(ctx, a.ID, nil); err != nil {
			return err
		}
		changes.Abandoned = append(changes.Abandoned, a.ID)
		return nil
	}

	winner := offers[ranked[0]]
	lock := models.SpotAssignLock{
		StationID:    a.StationID,
		ChargerID:    winner.ChargerID,
		LicensePlate: a.LicensePlate,
		LockStartTs:  now,
		LockEndTs:    now.Add(s.cfg.LockDuration()),
		AuctionID:    a.ID,
	}
	if err := locks.Insert(ctx, lock); err != nil {
		return err
	}
	if _, err := auctions.MarkFinished(ctx, a.ID, winner.Offer); err != nil {
		return err
	}
	changes.Settled = append(changes.Settled, settledAuction{
		AuctionID:     a.ID,
		Type:          a.Type,
		WinnerCompany: winner.CompanyID,
		WinningPrice:  winner.Offer.String(),
		ChargerID:     winner.ChargerID,
	})
	return nil
}

func (s *AuctionSettler) settleReservation(ctx context.Context, auctions *repository.AuctionRepository, reservations *repository.ReservationRepository, a models.Auction, now time.Time, grace time.Duration, changes *settlerChanges) error {
	offers, err := auctions.ReservationOffers(ctx, a.ID)
	if err != nil {
		return err
	}
	views := reservationBidViews(offers)
	if !auctionCloseable(a, views, now, grace) {
		return nil
	}

	ranked := rankBids(a, views)
	if len(ranked) == 0 {
		if _, err := auctions.MarkFinished(ctx, a.ID, nil); err != nil {
			return err
		}
		changes.Abandoned = append(changes.Abandoned, a.ID)
		return nil
	}

	winner := offers[ranked[0]]
	transferred, err := reservations.TransferPlate(ctx, winner.LicensePlate, a.LicensePlate, winner.StationID, winner.StartTs)
	if err != nil {
		return err
	}
	if !transferred {
		s.log.Warn("reservation window gone before transfer",
			zap.String("auctionId", a.ID),
			zap.String("sellerPlate", winner.LicensePlate))
	}
	if _, err := auctions.MarkFinished(ctx, a.ID, winner.Offer); err != nil {
		return err
	}
	changes.Settled = append(changes.Settled, settledAuction{
		AuctionID:      a.ID,
		Type:           a.Type,
		WinnerCompany:  winner.CompanyID,
		WinningPrice:   winner.Offer.String(),
		TransferPlate:  winner.LicensePlate,
		ReceiverPlate:  a.LicensePlate,
		TransferFailed: !transferred,
	})
	return nil
}
