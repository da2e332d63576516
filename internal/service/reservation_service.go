package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"chargebroker/internal/config"
	"chargebroker/internal/models"
	"chargebroker/internal/repository"
)

// ReservationService validates and persists reservation windows. Batch
// creation is all or nothing.
type ReservationService struct {
	db     *sql.DB
	cfg    config.EngineConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewReservationService builds service.
func NewReservationService(db *sql.DB, cfg config.EngineConfig, logger *zap.Logger, now func() time.Time) *ReservationService {
	if now == nil {
		now = time.Now
	}
	return &ReservationService{db: db, cfg: cfg, logger: logger, now: now}
}

// CreateBatch inserts all requested reservations or none. Each window must
// start far enough in the future, stay within the duration cap, belong to
// the caller's fleet and fit the station's reservation capacity.
func (s *ReservationService) CreateBatch(ctx context.Context, companyID string, requested []models.Reservation) error {
	if len(requested) == 0 {
		return validationf("no reservations given")
	}
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	reservations := repository.NewReservationRepository(tx)
	stations := repository.NewStationRepository(tx)
	fleets := repository.NewFleetRepository(tx)

	for _, res := range requested {
		if !res.EndTs.After(res.StartTs) {
			return validationf("reservation window must end after it starts")
		}
		if res.StartTs.Before(now.Add(s.cfg.EarliestLeadDuration())) {
			return validationf("reservation starts too soon")
		}
		if res.EndTs.Sub(res.StartTs) > s.cfg.MaxReservationDurationD() {
			return validationf("reservation window too long")
		}

		owner, err := fleets.CompanyForPlate(ctx, res.LicensePlate)
		if err != nil {
			return err
		}
		if owner != companyID {
			return validationf("plate does not belong to company fleet")
		}

		station, err := stations.GetByID(ctx, res.StationID)
		if err != nil {
			return err
		}
		if !station.Active {
			return validationf("charging station is not active")
		}

		count, err := reservations.OverlappingCount(ctx, res.StationID, res.StartTs, res.EndTs)
		if err != nil {
			return err
		}
		if count >= station.MaxReservationSpots {
			return conflictf("station reservation capacity reached")
		}

		if err := reservations.Insert(ctx, res); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("reservations created",
		zap.String("companyId", companyID),
		zap.Int("count", len(requested)))
	return nil
}

// Remove deletes one reservation. Windows already started may still be
// removed within the deletion slack.
func (s *ReservationService) Remove(ctx context.Context, companyID string, res models.Reservation) error {
	now := s.now().UTC()
	if res.StartTs.Before(now.Add(-s.cfg.DeletionSlackDuration())) {
		return validationf("reservation too far in the past to remove")
	}

	fleets := repository.NewFleetRepository(s.db)
	owner, err := fleets.CompanyForPlate(ctx, res.LicensePlate)
	if err != nil {
		return err
	}
	if owner != companyID {
		return validationf("plate does not belong to company fleet")
	}

	reservations := repository.NewReservationRepository(s.db)
	removed, err := reservations.Delete(ctx, res)
	if err != nil {
		return err
	}
	if !removed {
		return conflictf("reservation not found")
	}
	return nil
}

// List returns reservations, scoped to the caller's company unless admin.
func (s *ReservationService) List(ctx context.Context, companyID string, isAdmin bool) ([]models.Reservation, error) {
	reservations := repository.NewReservationRepository(s.db)
	if isAdmin {
		return reservations.List(ctx)
	}
	return reservations.ListByCompany(ctx, companyID)
}
