package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"chargebroker/internal/repository"
)

// FlowEnforcer is the first pipeline stage. It reads the externally
// maintained loose-flow classification and stamps the corrective timestamp on
// each flagged session, pulling it back into the monotonic lifecycle.
type FlowEnforcer struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// NewFlowEnforcer constructs the stage.
func NewFlowEnforcer(db *sql.DB, log *zap.Logger, now func() time.Time) *FlowEnforcer {
	return &FlowEnforcer{db: db, log: log, now: now}
}

type enforcerChanges struct {
	Corrected []correctedFlow `json:"corrected"`
}

type correctedFlow struct {
	SessionID string `json:"session_id"`
	Field     string `json:"field"`
}

// Run executes one enforcement pass in a single transaction and returns the
// changes applied.
func (e *FlowEnforcer) Run(ctx context.Context) (json.RawMessage, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	sessions := repository.NewSessionRepository(tx)
	loose, err := sessions.LooseFlows(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	changes := enforcerChanges{Corrected: []correctedFlow{}}
	for _, f := range loose {
		var applied bool
		switch f.CorrectiveField {
		case repository.CorrectiveEndCharge:
			applied, err = sessions.SetEndCharge(ctx, f.SessionID, now)
		case repository.CorrectiveDeparture:
			applied, err = sessions.SetDeparture(ctx, f.SessionID, now)
		default:
			e.log.Warn("unknown corrective field",
				zap.String("sessionId", f.SessionID),
				zap.String("field", f.CorrectiveField))
			continue
		}
		if err != nil {
			return nil, err
		}
		if applied {
			changes.Corrected = append(changes.Corrected, correctedFlow{
				SessionID: f.SessionID,
				Field:     f.CorrectiveField,
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if len(changes.Corrected) > 0 {
		e.log.Info("corrected loose flows", zap.Int("count", len(changes.Corrected)))
	}
	return json.Marshal(changes)
}
