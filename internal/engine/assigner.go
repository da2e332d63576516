package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"chargebroker/internal/config"
	"chargebroker/internal/repository"
)

// SpotAssigner is the third pipeline stage. It binds waiting sessions to
// chargers in three rounds of decreasing priority: auction lock holders,
// reservation holders inside their slack window, then plain queue order.
type SpotAssigner struct {
	db  *sql.DB
	cfg config.EngineConfig
	log *zap.Logger
	now func() time.Time
}

// NewSpotAssigner constructs the stage.
func NewSpotAssigner(db *sql.DB, cfg config.EngineConfig, log *zap.Logger, now func() time.Time) *SpotAssigner {
	return &SpotAssigner{db: db, cfg: cfg, log: log, now: now}
}

type assignerChanges struct {
	LockAssignments        []assignmentChange `json:"lock_assignments"`
	ReservationAssignments []assignmentChange `json:"reservation_assignments"`
	QueueAssignments       []assignmentChange `json:"queue_assignments"`
}

type assignmentChange struct {
	SessionID    string  `json:"session_id"`
	StationID    string  `json:"charging_station_id"`
	ChargerID    string  `json:"charger_id"`
	EndedSession *string `json:"ended_session_id,omitempty"`
}

// Run executes one assignment pass. Each round runs in its own transaction
// so a later round always sees the chargers the earlier one consumed.
func (s *SpotAssigner) Run(ctx context.Context) (json.RawMessage, error) {
	changes := assignerChanges{
		LockAssignments:        []assignmentChange{},
		ReservationAssignments: []assignmentChange{},
		QueueAssignments:       []assignmentChange{},
	}

	if err := s.assignLockHolders(ctx, &changes); err != nil {
		return nil, err
	}
	if err := s.assignReservationHolders(ctx, &changes); err != nil {
		return nil, err
	}
	if err := s.assignQueued(ctx, &changes); err != nil {
		return nil, err
	}

	total := len(changes.LockAssignments) + len(changes.ReservationAssignments) + len(changes.QueueAssignments)
	if total > 0 {
		s.log.Info("assigned spots",
			zap.Int("lockHolders", len(changes.LockAssignments)),
			zap.Int("reservationHolders", len(changes.ReservationAssignments)),
			zap.Int("queued", len(changes.QueueAssignments)))
	}
	return json.Marshal(changes)
}

// assignLockHolders routes arrivals holding an active spot assignment lock to
// their locked charger, ending the seller's charge that the lock displaces.
func (s *SpotAssigner) assignLockHolders(ctx context.Context, changes *assignerChanges) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sessions := repository.NewSessionRepository(tx)
	now := s.now()

	arrivals, err := sessions.ArrivalsWithActiveLock(ctx, now)
	if err != nil {
		return err
	}
	for _, a := range arrivals {
		occupant, err := sessions.ChargingOccupant(ctx, a.ChargerID)
		if err != nil {
			return err
		}
		if occupant == nil {
			continue
		}
		if _, err := sessions.SetEndCharge(ctx, occupant.ID, now); err != nil {
			return err
		}
		assigned, err := sessions.SetAssignment(ctx, a.SessionID, a.ChargerID, now)
		if err != nil {
			return err
		}
		if !assigned {
			continue
		}
		endedID := occupant.ID
		changes.LockAssignments = append(changes.LockAssignments, assignmentChange{
			SessionID:    a.SessionID,
			StationID:    a.StationID,
			ChargerID:    a.ChargerID,
			EndedSession: &endedID,
		})
	}
	return tx.Commit()
}

// assignReservationHolders matches sessions whose plate has a reservation
// starting within the slack window to the best available charger at their
// station, bumping a lower-priority occupant when nothing better is free.
func (s *SpotAssigner) assignReservationHolders(ctx context.Context, changes *assignerChanges) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sessions := repository.NewSessionRepository(tx)
	chargers := repository.NewChargerRepository(tx)
	now := s.now()

	candidates, err := sessions.ReservationCandidates(ctx, now, s.cfg.EarlySlackDuration(), s.cfg.LateSlackDuration())
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return tx.Commit()
	}

	free, err := chargers.FreeChargers(ctx, "")
	if err != nil {
		return err
	}
	idle, err := chargers.IdleChargers(ctx)
	if err != nil {
		return err
	}
	bumpable, err := chargers.BumpableChargers(ctx)
	if err != nil {
		return err
	}

	available := append(append(free, idle...), bumpable...)
	for _, pair := range matchReservationCandidates(candidates, available) {
		if pair.SessionToEnd != nil {
			if _, err := sessions.SetEndCharge(ctx, *pair.SessionToEnd, now); err != nil {
				return err
			}
		}
		assigned, err := sessions.SetAssignment(ctx, pair.SessionID, pair.ChargerID, now)
		if err != nil {
			return err
		}
		if !assigned {
			continue
		}
		changes.ReservationAssignments = append(changes.ReservationAssignments, assignmentChange{
			SessionID:    pair.SessionID,
			StationID:    pair.StationID,
			ChargerID:    pair.ChargerID,
			EndedSession: pair.SessionToEnd,
		})
	}
	return tx.Commit()
}

// assignQueued fills remaining free chargers from each station's queue in
// arrival order.
func (s *SpotAssigner) assignQueued(ctx context.Context, changes *assignerChanges) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sessions := repository.NewSessionRepository(tx)
	chargers := repository.NewChargerRepository(tx)
	now := s.now()

	queue, err := sessions.StationQueues(ctx)
	if err != nil {
		return err
	}
	if len(queue) == 0 {
		return tx.Commit()
	}

	free, err := chargers.FreeChargers(ctx, "")
	if err != nil {
		return err
	}

	for _, pair := range matchQueues(queue, free) {
		assigned, err := sessions.SetAssignment(ctx, pair.SessionID, pair.ChargerID, now)
		if err != nil {
			return err
		}
		if !assigned {
			continue
		}
		changes.QueueAssignments = append(changes.QueueAssignments, assignmentChange{
			SessionID: pair.SessionID,
			StationID: pair.StationID,
			ChargerID: pair.ChargerID,
		})
	}
	return tx.Commit()
}
