// Thin recorder over the append-only audit sink.
//
// The sink itself (query, retention) is owned elsewhere; this package only
// appends. Writes are best-effort relative to the primary governance
// mutation: a failed append is logged and counted, never propagated.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pryde-social/governance/models"

	"gorm.io/gorm"
)

// Sink is the external audit log contract.
type Sink interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
}

// DBSink appends audit rows to the shared database.
type DBSink struct {
	db *gorm.DB
}

var _ Sink = (*DBSink)(nil)

func NewDBSink(db *gorm.DB) *DBSink {
	return &DBSink{db: db}
}

func (s *DBSink) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// Entry is one governance-affecting action. Every field must be supplied by
// the caller; Details may be any JSON-serializable value.
type Entry struct {
	ActorID          uint
	Action           string
	TargetType       string
	TargetID         string
	Details          any
	EscalationMethod string
	IPAddress        string
	UserAgent        string
}

type Recorder struct {
	sink Sink
	log  *slog.Logger
}

func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default().With("system", "audit")
	}
	return &Recorder{sink: sink, log: logger}
}

// RecordAction appends one entry to the sink. Failures are swallowed after
// logging; audit must never block or roll back the action it describes.
func (r *Recorder) RecordAction(ctx context.Context, e Entry) {
	details := ""
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			r.log.Warn("audit details not serializable", "action", e.Action, "err", err)
		} else {
			details = string(b)
		}
	}
	row := &models.AuditLogEntry{
		ActorID:          e.ActorID,
		Action:           e.Action,
		TargetType:       e.TargetType,
		TargetID:         e.TargetID,
		Details:          details,
		EscalationMethod: e.EscalationMethod,
		IPAddress:        e.IPAddress,
		UserAgent:        e.UserAgent,
		CreatedAt:        time.Now(),
	}
	if err := r.sink.Append(ctx, row); err != nil {
		auditWriteFailures.Inc()
		r.log.Error("audit write failed", "action", e.Action, "target", e.TargetID, "err", err)
	}
}
