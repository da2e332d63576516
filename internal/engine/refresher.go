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

// Notifier receives the audit record of every completed stage. The websocket
// hub implements it; a nil Notifier disables broadcasting.
type Notifier interface {
	NotifyRefresh(rec models.JobAuditRecord)
}

// Refresher sequences the three pipeline stages and writes one audit record
// per stage. Mutation endpoints call Refresh directly; the cron loop calls
// the debounced variant.
type Refresher struct {
	db       *sql.DB
	cfg      config.EngineConfig
	log      *zap.Logger
	now      func() time.Time
	notifier Notifier

	enforcer *FlowEnforcer
	settler  *AuctionSettler
	assigner *SpotAssigner
}

// NewRefresher wires the pipeline over one connection pool.
func NewRefresher(db *sql.DB, cfg config.EngineConfig, log *zap.Logger, now func() time.Time, notifier Notifier) *Refresher {
	if now == nil {
		now = time.Now
	}
	return &Refresher{
		db:       db,
		cfg:      cfg,
		log:      log,
		now:      now,
		notifier: notifier,
		enforcer: NewFlowEnforcer(db, log, now),
		settler:  NewAuctionSettler(db, cfg, log, now),
		assigner: NewSpotAssigner(db, cfg, log, now),
	}
}

// Refresh runs enforcement, settling and assignment back to back. Order
// matters: corrected flows free chargers for settling, and settled auctions
// produce the locks assignment consumes. Each stage rolls back on its own;
// a failed stage is logged and skipped, later stages still run.
func (r *Refresher) Refresh(ctx context.Context) error {
	stages := []struct {
		jobType string
		run     func(context.Context) (json.RawMessage, error)
	}{
		{models.JobTypeFlowEnforcer, r.enforcer.Run},
		{models.JobTypeAuctionSettling, r.settler.Run},
		{models.JobTypeSpotAssignment, r.assigner.Run},
	}

	jobs := repository.NewJobRepository(r.db)
	for _, stage := range stages {
		changes, err := stage.run(ctx)
		if err != nil {
			r.log.Error("refresh stage failed",
				zap.String("jobType", stage.jobType),
				zap.Error(err))
			continue
		}
		rec := models.JobAuditRecord{
			ExecutionTime: r.now(),
			Changes:       changes,
			JobType:       stage.jobType,
		}
		if err := jobs.Insert(ctx, rec); err != nil {
			r.log.Error("refresh audit insert failed",
				zap.String("jobType", stage.jobType),
				zap.Error(err))
			continue
		}
		if r.notifier != nil {
			r.notifier.NotifyRefresh(rec)
		}
	}
	return nil
}

// CronRefresh runs Refresh unless another pass already ran within the block
// interval. The jobs log doubles as the debounce record.
func (r *Refresher) CronRefresh(ctx context.Context) error {
	jobs := repository.NewJobRepository(r.db)
	recent, err := jobs.HasExecutionSince(ctx, r.now().Add(-r.cfg.CronBlockDuration()))
	if err != nil {
		return err
	}
	if recent {
		r.log.Debug("refresh debounced")
		return nil
	}
	return r.Refresh(ctx)
}

// Run drives CronRefresh on a ticker until the context is canceled.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.CronIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.CronRefresh(ctx); err != nil {
				r.log.Error("scheduled refresh failed", zap.Error(err))
			}
		}
	}
}
