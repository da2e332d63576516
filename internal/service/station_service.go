package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chargebroker/internal/config"
	"chargebroker/internal/models"
	"chargebroker/internal/repository"
)

// StationService covers the admin surface for stations and chargers.
type StationService struct {
	stations     *repository.StationRepository
	chargers     *repository.ChargerRepository
	reservations *repository.ReservationRepository
	cfg          config.EngineConfig
	logger       *zap.Logger
	now          func() time.Time
}

// NewStationService builds service.
func NewStationService(
	stations *repository.StationRepository,
	chargers *repository.ChargerRepository,
	reservations *repository.ReservationRepository,
	cfg config.EngineConfig,
	logger *zap.Logger,
	now func() time.Time,
) *StationService {
	if now == nil {
		now = time.Now
	}
	return &StationService{
		stations:     stations,
		chargers:     chargers,
		reservations: reservations,
		cfg:          cfg,
		logger:       logger,
		now:          now,
	}
}

// List returns all stations.
func (s *StationService) List(ctx context.Context) ([]models.Station, error) {
	return s.stations.List(ctx)
}

// Get returns one station.
func (s *StationService) Get(ctx context.Context, id string) (*models.Station, error) {
	return s.stations.GetByID(ctx, id)
}

// UpsertStation creates or updates a station. Shrinking reservation capacity
// is refused while more reservations than the new capacity are booked within
// the look-ahead horizon.
func (s *StationService) UpsertStation(ctx context.Context, station models.Station) error {
	if station.TotalChargingSpots < 0 || station.MaxReservationSpots < 0 {
		return validationf("spot counts must not be negative")
	}
	if station.MaxReservationSpots > station.TotalChargingSpots {
		return validationf("reservation spots exceed total spots")
	}

	current, err := s.stations.GetByID(ctx, station.ID)
	if err != nil && err != repository.ErrStationNotFound {
		return err
	}
	if current != nil && station.MaxReservationSpots < current.MaxReservationSpots {
		now := s.now().UTC()
		booked, err := s.reservations.OverlappingCount(ctx, station.ID, now, now.Add(s.cfg.LookAheadDuration()))
		if err != nil {
			return err
		}
		if booked > station.MaxReservationSpots {
			return conflictf("booked reservations exceed new capacity")
		}
	}

	if err := s.stations.Upsert(ctx, station); err != nil {
		return err
	}
	s.logger.Info("station upserted", zap.String("stationId", station.ID))
	return nil
}

// ListChargers returns chargers, optionally narrowed to one station.
func (s *StationService) ListChargers(ctx context.Context, stationID string) ([]models.Charger, error) {
	if stationID != "" {
		return s.chargers.ListByStation(ctx, stationID)
	}
	return s.chargers.ListAll(ctx)
}

// UpsertCharger creates or updates a charger under an existing station.
func (s *StationService) UpsertCharger(ctx context.Context, charger models.Charger) error {
	if _, err := s.stations.GetByID(ctx, charger.StationID); err != nil {
		return err
	}
	if err := s.chargers.Upsert(ctx, charger); err != nil {
		return err
	}
	s.logger.Info("charger upserted",
		zap.String("chargerId", charger.ID),
		zap.String("stationId", charger.StationID))
	return nil
}
