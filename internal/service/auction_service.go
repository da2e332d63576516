package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"chargebroker/internal/config"
	"chargebroker/internal/models"
	"chargebroker/internal/repository"
)

// AuctionService creates auctions, seeds their counterparties and accepts
// bids. Settling itself happens in the refresh pipeline.
type AuctionService struct {
	auctions     *repository.AuctionRepository
	chargers     *repository.ChargerRepository
	reservations *repository.ReservationRepository
	fleets       *repository.FleetRepository
	stations     *repository.StationRepository
	cfg          config.EngineConfig
	logger       *zap.Logger
	now          func() time.Time
}

// NewAuctionService builds service.
func NewAuctionService(
	auctions *repository.AuctionRepository,
	chargers *repository.ChargerRepository,
	reservations *repository.ReservationRepository,
	fleets *repository.FleetRepository,
	stations *repository.StationRepository,
	cfg config.EngineConfig,
	logger *zap.Logger,
	now func() time.Time,
) *AuctionService {
	if now == nil {
		now = time.Now
	}
	return &AuctionService{
		auctions:     auctions,
		chargers:     chargers,
		reservations: reservations,
		fleets:       fleets,
		stations:     stations,
		cfg:          cfg,
		logger:       logger,
		now:          now,
	}
}

// CreateAuctionInput carries the initiator's request for either auction type.
type CreateAuctionInput struct {
	StationID        string
	LicensePlate     string
	CompanyID        string
	MaxAcceptedPrice *decimal.Decimal
	AutoAccept       bool

	// RESERVATION auctions only: the window the initiator wants.
	StartTs time.Time
	EndTs   time.Time
}

// CreateSpotAuction opens a SPOT auction and invites the companies currently
// occupying the station's chargers. Occupants about to serve their own
// reservation are not invited.
func (s *AuctionService) CreateSpotAuction(ctx context.Context, input CreateAuctionInput) (*models.Auction, error) {
	if _, err := s.stations.GetByID(ctx, input.StationID); err != nil {
		return nil, err
	}
	now := s.now().UTC()

	free, err := s.chargers.FreeChargers(ctx, input.StationID)
	if err != nil {
		return nil, err
	}
	if len(free) > 0 {
		return nil, conflictf("a spot is freely available, no auction needed")
	}

	occupied, err := s.chargers.OccupiedChargers(ctx, input.StationID)
	if err != nil {
		return nil, err
	}

	var offers []models.SpotOffer
	for _, occ := range occupied {
		companyID, err := s.fleets.CompanyForPlate(ctx, occ.LicensePlate)
		if err != nil {
			return nil, err
		}
		if companyID == "" || companyID == input.CompanyID {
			continue
		}
		upcoming, err := s.reservations.HasUpcoming(ctx, occ.LicensePlate, input.StationID, now, s.cfg.ReservationCheckDuration())
		if err != nil {
			return nil, err
		}
		if upcoming {
			continue
		}
		offers = append(offers, models.SpotOffer{
			CompanyID: companyID,
			ChargerID: occ.ChargerID,
		})
	}
	if len(offers) == 0 {
		return nil, conflictf("no eligible counterparties at station")
	}

	auction := models.Auction{
		ID:               uuid.NewString(),
		StationID:        input.StationID,
		CompanyID:        input.CompanyID,
		LicensePlate:     input.LicensePlate,
		AuctionStartTs:   now,
		AuctionEndTs:     now.Add(s.cfg.AuctionDuration()),
		MaxAcceptedPrice: input.MaxAcceptedPrice,
		AutoAccept:       input.AutoAccept,
		Type:             models.AuctionTypeSpot,
	}
	if err := s.auctions.Insert(ctx, auction); err != nil {
		return nil, err
	}
	for _, o := range offers {
		o.AuctionID = auction.ID
		if err := s.auctions.InsertSpotOffer(ctx, o); err != nil {
			return nil, err
		}
	}
	s.logger.Info("spot auction opened",
		zap.String("auctionId", auction.ID),
		zap.String("stationId", input.StationID),
		zap.Int("counterparties", len(offers)))
	return &auction, nil
}

// CreateReservationAuction opens a RESERVATION auction over reservations held
// by other companies that intersect the wanted window.
func (s *AuctionService) CreateReservationAuction(ctx context.Context, input CreateAuctionInput) (*models.Auction, error) {
	if _, err := s.stations.GetByID(ctx, input.StationID); err != nil {
		return nil, err
	}
	if !input.EndTs.After(input.StartTs) {
		return nil, validationf("reservation window must end after it starts")
	}
	now := s.now().UTC()

	overlapping, err := s.reservations.Overlapping(ctx, input.StationID, input.StartTs, input.EndTs)
	if err != nil {
		return nil, err
	}

	var offers []models.ReservationOffer
	for _, res := range overlapping {
		companyID, err := s.fleets.CompanyForPlate(ctx, res.LicensePlate)
		if err != nil {
			return nil, err
		}
		if companyID == "" || companyID == input.CompanyID {
			continue
		}
		offers = append(offers, models.ReservationOffer{
			StationID:    res.StationID,
			CompanyID:    companyID,
			LicensePlate: res.LicensePlate,
			StartTs:      res.StartTs,
			EndTs:        res.EndTs,
		})
	}
	if len(offers) == 0 {
		return nil, conflictf("no transferable reservations in window")
	}

	auction := models.Auction{
		ID:               uuid.NewString(),
		StationID:        input.StationID,
		CompanyID:        input.CompanyID,
		LicensePlate:     input.LicensePlate,
		AuctionStartTs:   now,
		AuctionEndTs:     now.Add(s.cfg.AuctionDuration()),
		MaxAcceptedPrice: input.MaxAcceptedPrice,
		AutoAccept:       input.AutoAccept,
		Type:             models.AuctionTypeReservation,
	}
	if err := s.auctions.Insert(ctx, auction); err != nil {
		return nil, err
	}
	for _, o := range offers {
		o.AuctionID = auction.ID
		if err := s.auctions.InsertReservationOffer(ctx, o); err != nil {
			return nil, err
		}
	}
	s.logger.Info("reservation auction opened",
		zap.String("auctionId", auction.ID),
		zap.String("stationId", input.StationID),
		zap.Int("counterparties", len(offers)))
	return &auction, nil
}

// PlaceOffer records a counterparty's bid on an open auction. A bid is
// locked in for the change grace once placed.
func (s *AuctionService) PlaceOffer(ctx context.Context, auctionID, companyID string, bid decimal.Decimal) error {
	auction, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if auction.Finished || auction.AuctionEndTs.Before(now) {
		return conflictf("auction is closed")
	}
	if bid.IsNegative() {
		return validationf("offer must not be negative")
	}

	switch auction.Type {
	case models.AuctionTypeSpot:
		offers, err := s.auctions.SpotOffers(ctx, auctionID)
		if err != nil {
			return err
		}
		for _, o := range offers {
			if o.CompanyID == companyID && o.ReceivedTs != nil &&
				o.ReceivedTs.Add(s.cfg.OfferGraceDuration()).After(now) {
				return conflictf("offer cannot be changed yet")
			}
		}
		updated, err := s.auctions.UpdateSpotOffer(ctx, auctionID, companyID, bid, now)
		if err != nil {
			return err
		}
		if !updated {
			return validationf("company is not invited to this auction")
		}
	case models.AuctionTypeReservation:
		offers, err := s.auctions.ReservationOffers(ctx, auctionID)
		if err != nil {
			return err
		}
		for _, o := range offers {
			if o.CompanyID == companyID && o.ReceivedTs != nil &&
				o.ReceivedTs.Add(s.cfg.OfferGraceDuration()).After(now) {
				return conflictf("offer cannot be changed yet")
			}
		}
		updated, err := s.auctions.UpdateReservationOffer(ctx, auctionID, companyID, bid, now)
		if err != nil {
			return err
		}
		if !updated {
			return validationf("company is not invited to this auction")
		}
	default:
		return validationf("unknown auction type")
	}
	return nil
}

// Remove withdraws an open auction. Only the initiator may remove it.
func (s *AuctionService) Remove(ctx context.Context, auctionID, companyID string) error {
	auction, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return err
	}
	if auction.CompanyID != companyID {
		return validationf("only the initiator may remove an auction")
	}
	removed, err := s.auctions.Delete(ctx, auctionID)
	if err != nil {
		return err
	}
	if !removed {
		return conflictf("auction already finished")
	}
	return nil
}

// Get returns one auction.
func (s *AuctionService) Get(ctx context.Context, auctionID string) (*models.Auction, error) {
	return s.auctions.GetByID(ctx, auctionID)
}

// ListOpen returns unfinished auctions, scoped to the caller's company
// unless admin.
func (s *AuctionService) ListOpen(ctx context.Context, companyID string, isAdmin bool) ([]models.Auction, error) {
	open, err := s.auctions.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	if isAdmin {
		return open, nil
	}
	var scoped []models.Auction
	for _, a := range open {
		if a.CompanyID == companyID {
			scoped = append(scoped, a)
		}
	}
	return scoped, nil
}
