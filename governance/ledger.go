package governance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pryde-social/governance/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNoSuchAccount = fmt.Errorf("no such account")

// ViolationMeta is the opaque classifier metadata attached to a confirmed
// violation. The ledger passes it through to the moderation event verbatim.
type ViolationMeta struct {
	IntentScore    float64 `json:"intentScore"`
	BehaviorScore  float64 `json:"behaviorScore"`
	ContentPreview string  `json:"contentPreview"`
}

// OverrideType enumerates the admin override operations. Overrides always set
// governance state, never increment it.
type OverrideType string

const (
	OverrideUnrestrict         = OverrideType("unrestrict")
	OverrideClearStrikes       = OverrideType("clear_strikes")
	OverrideResetBehaviorScore = OverrideType("reset_behavior_score")
	OverrideRestore            = OverrideType("restore")
)

func (t OverrideType) Valid() bool {
	switch t {
	case OverrideUnrestrict, OverrideClearStrikes, OverrideResetBehaviorScore, OverrideRestore:
		return true
	default:
		return false
	}
}

type OverrideRequest struct {
	AccountID uint
	Type      OverrideType
	ActorID   uint
	Reason    string
}

// Ledger owns the per-account governance record. Every mutation runs as a
// single read-modify-write transaction against one account row, so concurrent
// violations for the same account cannot lose updates. The moderation event
// commits in the same transaction as the counter change: either both land or
// neither does.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// lockedAccount loads the account row for update within tx. sqlite has no row
// locks; there the transaction itself is the write boundary.
func lockedAccount(tx *gorm.DB, accountID uint) (*models.Account, error) {
	var acct models.Account
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&acct, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSuchAccount
		}
		return nil, fmt.Errorf("loading account: %w", err)
	}
	return &acct, nil
}

// RecordViolation applies decay, stamps the violation time, increments the
// matching category counter plus the global counter, evaluates the transition
// table, and persists the account together with a moderation event.
func (l *Ledger) RecordViolation(ctx context.Context, accountID uint, category models.Category, meta ViolationMeta, now time.Time) (*Outcome, *models.Account, error) {
	if !category.Valid() {
		return nil, nil, fmt.Errorf("unknown violation category: %q", category)
	}

	var out Outcome
	var acct *models.Account
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		acct, err = lockedAccount(tx, accountID)
		if err != nil {
			return err
		}

		ApplyDecay(acct, now)
		ts := now
		acct.LastViolationAt = &ts
		counter := acct.StrikesFor(category)
		*counter++
		acct.GlobalStrikes++
		acct.BehaviorScore = meta.BehaviorScore

		out = Evaluate(acct.GovernanceStatus, acct.RestrictedUntil, *counter, acct.GlobalStrikes, now)
		acct.GovernanceStatus = out.Status
		acct.RestrictedUntil = out.RestrictedUntil

		if err := tx.Save(acct).Error; err != nil {
			return fmt.Errorf("persisting governance record: %w", err)
		}

		evt := models.ModerationEvent{
			AccountID:       acct.ID,
			Action:          out.Action,
			Category:        category,
			CategoryStrikes: *counter,
			GlobalStrikes:   acct.GlobalStrikes,
			RestrictionSecs: restrictionSeconds(out.RestrictedUntil, now),
			Automated:       true,
			IntentScore:     meta.IntentScore,
			BehaviorScore:   meta.BehaviorScore,
			ContentPreview:  meta.ContentPreview,
			CreatedAt:       now,
		}
		if err := tx.Create(&evt).Error; err != nil {
			return fmt.Errorf("persisting moderation event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &out, acct, nil
}

// Override mutates governance state directly, bypassing the increment path.
// Restore is unconditional: active status, no restriction window, all four
// counters zeroed, whatever the prior state. Idempotent by construction.
func (l *Ledger) Override(ctx context.Context, req OverrideRequest, now time.Time) (*models.Account, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("unknown override type: %q", req.Type)
	}

	var acct *models.Account
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		acct, err = lockedAccount(tx, req.AccountID)
		if err != nil {
			return err
		}

		switch req.Type {
		case OverrideUnrestrict:
			acct.GovernanceStatus = models.StatusActive
			acct.RestrictedUntil = nil
		case OverrideClearStrikes:
			acct.PostStrikes = 0
			acct.CommentStrikes = 0
			acct.DmStrikes = 0
			acct.GlobalStrikes = 0
		case OverrideResetBehaviorScore:
			acct.BehaviorScore = 0
		case OverrideRestore:
			acct.GovernanceStatus = models.StatusActive
			acct.RestrictedUntil = nil
			acct.PostStrikes = 0
			acct.CommentStrikes = 0
			acct.DmStrikes = 0
			acct.GlobalStrikes = 0
		}

		if err := tx.Save(acct).Error; err != nil {
			return fmt.Errorf("persisting governance record: %w", err)
		}

		evt := models.ModerationEvent{
			AccountID:     acct.ID,
			Action:        string(req.Type),
			GlobalStrikes: acct.GlobalStrikes,
			Automated:     false,
			ActorID:       req.ActorID,
			Reason:        req.Reason,
			CreatedAt:     now,
		}
		if err := tx.Create(&evt).Error; err != nil {
			return fmt.Errorf("persisting moderation event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// RefreshDecay applies lazy decay outside the violation path (eg, at login).
// No-op when nothing changed.
func (l *Ledger) RefreshDecay(ctx context.Context, accountID uint, now time.Time) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := lockedAccount(tx, accountID)
		if err != nil {
			return err
		}
		if !ApplyDecay(acct, now) {
			return nil
		}
		if err := tx.Save(acct).Error; err != nil {
			return fmt.Errorf("persisting decayed counters: %w", err)
		}
		return nil
	})
}

func (l *Ledger) GetAccount(ctx context.Context, accountID uint) (*models.Account, error) {
	var acct models.Account
	if err := l.db.WithContext(ctx).First(&acct, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSuchAccount
		}
		return nil, err
	}
	return &acct, nil
}

// ListEvents returns moderation events for an account, newest first.
func (l *Ledger) ListEvents(ctx context.Context, accountID uint, limit int) ([]models.ModerationEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var rows []models.ModerationEvent
	if err := l.db.WithContext(ctx).Where("account_id = ?", accountID).Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func restrictionSeconds(until *time.Time, now time.Time) int64 {
	if until == nil {
		return 0
	}
	return int64(until.Sub(now) / time.Second)
}
