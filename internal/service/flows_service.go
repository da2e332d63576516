package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chargebroker/internal/models"
	redisstore "chargebroker/internal/redis"
	"chargebroker/internal/repository"
)

// Refresher triggers a synchronous flow-refresh pass. Flow mutations run one
// before reading or writing session rows; mutations that free a charger run
// another one afterwards so the spot is handed on immediately.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// FlowsService drives the session lifecycle endpoints.
type FlowsService struct {
	sessions    *repository.SessionRepository
	stations    *repository.StationRepository
	activeStore *redisstore.Store
	refresher   Refresher
	logger      *zap.Logger
	now         func() time.Time
}

// NewFlowsService builds service.
func NewFlowsService(
	sessions *repository.SessionRepository,
	stations *repository.StationRepository,
	activeStore *redisstore.Store,
	refresher Refresher,
	logger *zap.Logger,
	now func() time.Time,
) *FlowsService {
	if now == nil {
		now = time.Now
	}
	return &FlowsService{
		sessions:    sessions,
		stations:    stations,
		activeStore: activeStore,
		refresher:   refresher,
		logger:      logger,
		now:         now,
	}
}

// Arrival opens a session for a plate at a station. A plate may hold at most
// one open session.
func (s *FlowsService) Arrival(ctx context.Context, licensePlate, stationID string) (*models.Session, error) {
	station, err := s.stations.GetByID(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if !station.Active {
		return nil, validationf("charging station is not active")
	}

	// Settle and enforce first so the open-session check runs against
	// repaired state, not flows a prior pass would have closed.
	if err := s.refresher.Refresh(ctx); err != nil {
		return nil, err
	}

	open, err := s.sessions.OpenByPlate(ctx, licensePlate)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return nil, conflictf("plate already has an open session")
	}

	session := &models.Session{
		ID:           uuid.NewString(),
		LicensePlate: licensePlate,
		StationID:    stationID,
		ArrivalTs:    s.now().UTC(),
	}
	if err := s.sessions.Insert(ctx, session); err != nil {
		return nil, err
	}

	s.cacheFlow(ctx, session)

	if err := s.refresher.Refresh(ctx); err != nil {
		return nil, err
	}
	return s.sessions.GetByID(ctx, session.ID)
}

// Checkin stamps the charger checkin and start of charging for an
// established session.
func (s *FlowsService) Checkin(ctx context.Context, licensePlate, stationID, chargerID string) (*models.Session, error) {
	// Refresh before resolving the session: the checked-in charger may have
	// been assigned by a settlement that has not run yet.
	if err := s.refresher.Refresh(ctx); err != nil {
		return nil, err
	}

	session, err := s.sessions.FindEstablished(ctx, licensePlate, stationID, chargerID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	checked, err := s.sessions.SetCheckin(ctx, session.ID, now)
	if err != nil {
		return nil, err
	}
	if !checked {
		return nil, conflictf("session already checked in")
	}
	if _, err := s.sessions.SetStartCharge(ctx, session.ID, now); err != nil {
		return nil, err
	}

	updated, err := s.sessions.GetByID(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	s.cacheFlow(ctx, updated)
	return updated, nil
}

// ChargingEnd stamps the end of charging for an established session.
func (s *FlowsService) ChargingEnd(ctx context.Context, licensePlate, stationID, chargerID string) (*models.Session, error) {
	if err := s.refresher.Refresh(ctx); err != nil {
		return nil, err
	}

	session, err := s.sessions.FindEstablished(ctx, licensePlate, stationID, chargerID)
	if err != nil {
		return nil, err
	}
	ended, err := s.sessions.SetEndCharge(ctx, session.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !ended {
		return nil, conflictf("session is not charging")
	}

	// The freed charger goes back into the assignment pool right away.
	if err := s.refresher.Refresh(ctx); err != nil {
		return nil, err
	}
	return s.sessions.GetByID(ctx, session.ID)
}

// Departure closes the plate's open session at the station.
func (s *FlowsService) Departure(ctx context.Context, licensePlate, stationID string) (*models.Session, error) {
	if err := s.refresher.Refresh(ctx); err != nil {
		return nil, err
	}

	open, err := s.sessions.OpenByPlate(ctx, licensePlate)
	if err != nil {
		return nil, err
	}
	var session *models.Session
	for i := range open {
		if open[i].StationID == stationID {
			session = &open[i]
			break
		}
	}
	if session == nil {
		return nil, repository.ErrSessionNotFound
	}

	departed, err := s.sessions.SetDeparture(ctx, session.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !departed {
		return nil, conflictf("session already departed")
	}

	if s.activeStore != nil {
		if err := s.activeStore.Delete(ctx, licensePlate); err != nil && err != redis.Nil {
			s.logger.Warn("failed to drop active flow cache", zap.Error(err))
		}
	}

	if err := s.refresher.Refresh(ctx); err != nil {
		return nil, err
	}
	return s.sessions.GetByID(ctx, session.ID)
}

// Lookup resolves the open session of a plate, preferring the cache.
func (s *FlowsService) Lookup(ctx context.Context, licensePlate string) (*models.Session, error) {
	if s.activeStore != nil {
		cached, err := s.activeStore.Get(ctx, licensePlate)
		if err == nil {
			return s.sessions.GetByID(ctx, cached.SessionID)
		}
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("active flow cache lookup failed", zap.Error(err))
		}
	}

	open, err := s.sessions.OpenByPlate(ctx, licensePlate)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, repository.ErrSessionNotFound
	}
	return &open[0], nil
}

// Queues returns the per-station waiting queues, optionally narrowed to one
// station.
func (s *FlowsService) Queues(ctx context.Context, stationID string) ([]repository.QueueEntry, error) {
	if stationID != "" {
		return s.sessions.QueueForStation(ctx, stationID)
	}
	return s.sessions.StationQueues(ctx)
}

func (s *FlowsService) cacheFlow(ctx context.Context, session *models.Session) {
	if s.activeStore == nil {
		return
	}
	err := s.activeStore.Save(ctx, redisstore.ActiveFlow{
		SessionID:    session.ID,
		LicensePlate: session.LicensePlate,
		StationID:    session.StationID,
		ChargerID:    session.ChargerID,
	})
	if err != nil && err != redis.Nil {
		s.logger.Warn("failed to cache active flow", zap.Error(err))
	}
}
