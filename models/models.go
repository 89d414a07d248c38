package models

import (
	"time"

	"gorm.io/gorm"
)

// Status is the governance enforcement state of an account.
type Status string

const (
	StatusActive     = Status("active")
	StatusRestricted = Status("restricted")
	StatusBanned     = Status("banned")
)

func (s Status) String() string {
	return string(s)
}

// Valid reports whether the status is one of the known enforcement states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusRestricted, StatusBanned:
		return true
	default:
		return false
	}
}

// Role is a closed set of account roles. Privilege checks must go through
// Privileged() rather than comparing raw strings.
type Role string

const (
	RoleUser       = Role("user")
	RoleModerator  = Role("moderator")
	RoleAdmin      = Role("admin")
	RoleSuperAdmin = Role("super_admin")
)

func (r Role) String() string {
	return string(r)
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// Privileged reports whether the role may attempt step-up escalation and
// privileged operations. Moderators can review content but cannot override
// governance state.
func (r Role) Privileged() bool {
	switch r {
	case RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// Category scopes a strike to the surface the violation happened on.
type Category string

const (
	CategoryPost    = Category("post")
	CategoryComment = Category("comment")
	CategoryDM      = Category("dm")
)

func (c Category) String() string {
	return string(c)
}

func (c Category) Valid() bool {
	switch c {
	case CategoryPost, CategoryComment, CategoryDM:
		return true
	default:
		return false
	}
}

// Account holds the identity fields plus the governance record owned by the
// strike ledger. The governance fields are created zeroed/active with the
// account and are mutated only by the ledger and the admin override path.
type Account struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`

	Handle   string `gorm:"uniqueIndex"`
	Email    string
	Password string
	Role     Role `gorm:"not null;default:user"`

	PostStrikes    int `gorm:"not null;default:0"`
	CommentStrikes int `gorm:"not null;default:0"`
	DmStrikes      int `gorm:"not null;default:0"`
	GlobalStrikes  int `gorm:"not null;default:0"`

	BehaviorScore    float64
	LastViolationAt  *time.Time
	GovernanceStatus Status `gorm:"not null;default:active"`
	RestrictedUntil  *time.Time
}

// StrikesFor returns a pointer to the counter for the given category, so the
// ledger mutates exactly one category counter per violation.
func (a *Account) StrikesFor(c Category) *int {
	switch c {
	case CategoryPost:
		return &a.PostStrikes
	case CategoryComment:
		return &a.CommentStrikes
	case CategoryDM:
		return &a.DmStrikes
	default:
		return nil
	}
}
