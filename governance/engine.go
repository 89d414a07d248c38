package governance

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/pryde-social/governance/audit"
	"github.com/pryde-social/governance/models"
)

// ActorMeta identifies who (and from where) triggered a governance mutation,
// for the audit trail. Zero ActorID means the automated pipeline.
type ActorMeta struct {
	ActorID          uint
	EscalationMethod string
	IPAddress        string
	UserAgent        string
}

// Engine ties the ledger to the audit recorder and metrics.
//
// The audit write happens after the ledger transaction commits and is
// best-effort: losing an audit row is less harmful than losing the ability to
// enforce a ban, so failures are logged and counted but never roll back the
// governance mutation.
type Engine struct {
	Logger  *slog.Logger
	Ledger  *Ledger
	Auditor *audit.Recorder
}

func NewEngine(logger *slog.Logger, ledger *Ledger, auditor *audit.Recorder) *Engine {
	if logger == nil {
		logger = slog.Default().With("system", "governance")
	}
	return &Engine{
		Logger:  logger,
		Ledger:  ledger,
		Auditor: auditor,
	}
}

// ProcessViolation runs the full strike sequence for one confirmed violation:
// decay, increment, transition evaluation, persistence, moderation event, and
// finally the audit record.
func (eng *Engine) ProcessViolation(ctx context.Context, accountID uint, category models.Category, meta ViolationMeta, actor ActorMeta) (*Outcome, error) {
	// similar to an HTTP server, we want to recover any panics from processing
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("governance violation processing exception", "err", r, "account", accountID, "category", category)
		}
	}()

	start := time.Now()
	out, acct, err := eng.Ledger.RecordViolation(ctx, accountID, category, meta, start)
	if err != nil {
		violationErrorCount.WithLabelValues(category.String()).Inc()
		return nil, err
	}
	violationProcessCount.WithLabelValues(category.String(), out.Action).Inc()
	violationProcessDuration.WithLabelValues(category.String()).Observe(time.Since(start).Seconds())

	eng.Logger.Info("violation recorded",
		"account", acct.ID,
		"category", category,
		"action", out.Action,
		"status", out.Status,
		"globalStrikes", acct.GlobalStrikes)

	eng.Auditor.RecordAction(ctx, audit.Entry{
		ActorID:          actor.ActorID,
		Action:           "governance_strike",
		TargetType:       "account",
		TargetID:         strconv.FormatUint(uint64(acct.ID), 10),
		Details:          map[string]any{"category": category, "action": out.Action, "status": out.Status, "globalStrikes": acct.GlobalStrikes},
		EscalationMethod: actor.EscalationMethod,
		IPAddress:        actor.IPAddress,
		UserAgent:        actor.UserAgent,
	})
	return out, nil
}

// OverrideAccount applies one admin override and audits it. Only the step-up
// gate may route callers here.
func (eng *Engine) OverrideAccount(ctx context.Context, req OverrideRequest, actor ActorMeta) (*models.Account, error) {
	acct, err := eng.Ledger.Override(ctx, req, time.Now())
	if err != nil {
		return nil, err
	}
	overrideCount.WithLabelValues(string(req.Type)).Inc()

	eng.Logger.Info("governance override applied",
		"account", acct.ID,
		"type", req.Type,
		"actor", req.ActorID,
		"status", acct.GovernanceStatus)

	eng.Auditor.RecordAction(ctx, audit.Entry{
		ActorID:          actor.ActorID,
		Action:           "governance_override",
		TargetType:       "account",
		TargetID:         strconv.FormatUint(uint64(acct.ID), 10),
		Details:          map[string]any{"type": req.Type, "reason": req.Reason, "status": acct.GovernanceStatus},
		EscalationMethod: actor.EscalationMethod,
		IPAddress:        actor.IPAddress,
		UserAgent:        actor.UserAgent,
	})
	return acct, nil
}

// RestoreAccount fully restores an account: active status, cleared window,
// zeroed counters. Idempotent, and the only operation besides the 90-day
// decay allowed to reset global strikes.
func (eng *Engine) RestoreAccount(ctx context.Context, accountID uint, reason string, actor ActorMeta) (*models.Account, error) {
	return eng.OverrideAccount(ctx, OverrideRequest{
		AccountID: accountID,
		Type:      OverrideRestore,
		ActorID:   actor.ActorID,
		Reason:    reason,
	}, actor)
}
