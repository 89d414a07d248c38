package governance

import (
	"time"

	"github.com/pryde-social/governance/models"
)

// Action codes recorded on moderation events and returned to callers.
const (
	ActionStrikeRecorded = "STRIKE_RECORDED"
	ActionRestrict48h    = "TEMP_RESTRICT_48H"
	ActionRestrict30d    = "TEMP_RESTRICT_30D"
	ActionPermanentBan   = "PERMANENT_BAN"
)

const (
	shortRestriction = 48 * time.Hour
	longRestriction  = 30 * 24 * time.Hour
)

// Outcome is the result of evaluating the transition table after a strike.
type Outcome struct {
	Status          models.Status
	RestrictedUntil *time.Time
	Action          string
}

// Evaluate maps post-increment counter levels to the next enforcement state.
// Pure function; the ledger persists the result.
//
// A global count of four or more forces a permanent ban and clears any
// restriction window, superseding a category restriction triggered in the
// same call. Below the thresholds the current status and window carry over
// unchanged: restricted accounts only return to active via an explicit admin
// restore, and so do banned ones.
func Evaluate(current models.Status, restrictedUntil *time.Time, categoryStrikes, globalStrikes int, now time.Time) Outcome {
	// banned is sticky: strikes recorded after a ban (eg, following a full
	// counter decay) never downgrade the account to a mere restriction
	if current == models.StatusBanned {
		return Outcome{
			Status:          models.StatusBanned,
			RestrictedUntil: nil,
			Action:          ActionStrikeRecorded,
		}
	}
	if globalStrikes >= 4 {
		return Outcome{
			Status:          models.StatusBanned,
			RestrictedUntil: nil,
			Action:          ActionPermanentBan,
		}
	}
	if categoryStrikes >= 3 {
		until := now.Add(longRestriction)
		return Outcome{
			Status:          models.StatusRestricted,
			RestrictedUntil: &until,
			Action:          ActionRestrict30d,
		}
	}
	if categoryStrikes == 2 {
		until := now.Add(shortRestriction)
		return Outcome{
			Status:          models.StatusRestricted,
			RestrictedUntil: &until,
			Action:          ActionRestrict48h,
		}
	}
	return Outcome{
		Status:          current,
		RestrictedUntil: restrictedUntil,
		Action:          ActionStrikeRecorded,
	}
}
