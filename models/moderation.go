package models

import (
	"time"
)

// ModerationEvent is the immutable record of one strike application or one
// admin override outcome. Rows are created once and never mutated; retention
// pruning is handled by an external job.
type ModerationEvent struct {
	ID        uint64 `gorm:"primaryKey"`
	AccountID uint   `gorm:"not null;index"`

	Action          string `gorm:"not null"`
	Category        Category
	CategoryStrikes int
	GlobalStrikes   int
	// RestrictionSecs is the restriction window applied by this event, in
	// seconds. Zero means no window (no restriction, or a permanent ban).
	RestrictionSecs int64
	Automated       bool `gorm:"not null"`
	// ActorID is zero for automated strike events.
	ActorID uint
	Reason  string

	// classifier eventMeta, passed through verbatim
	IntentScore    float64
	BehaviorScore  float64
	ContentPreview string

	CreatedAt time.Time `gorm:"not null"`
}

// AuditLogEntry matches the append-only audit sink contract. Every
// governance-affecting call must fill every field.
type AuditLogEntry struct {
	ID               uint64 `gorm:"primaryKey"`
	ActorID          uint   `gorm:"not null;index"`
	Action           string `gorm:"not null"`
	TargetType       string `gorm:"not null"`
	TargetID         string `gorm:"not null"`
	Details          string
	EscalationMethod string
	IPAddress        string
	UserAgent        string
	CreatedAt        time.Time `gorm:"not null"`
}
