package models

import (
	"encoding/json"
	"time"
)

// Job types written to the audit log, one per pipeline stage per pass.
const (
	JobTypeFlowEnforcer    = "FLOW_ENFORCER"
	JobTypeAuctionSettling = "AUCTIONS_SETTLING"
	JobTypeSpotAssignment  = "SPOT_ASSIGNMENT"
)

// JobAuditRecord is one append-only entry in the job audit log.
type JobAuditRecord struct {
	ExecutionTime time.Time       `db:"execution_time" json:"execution_time"`
	Changes       json.RawMessage `db:"changes" json:"changes"`
	JobType       string          `db:"job_type" json:"job_type"`
}
