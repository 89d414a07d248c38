package governance

import (
	"time"

	"github.com/pryde-social/governance/models"
)

const (
	// PartialDecayWindow is how long an account must stay quiet before each
	// category counter drops by one.
	PartialDecayWindow = 30 * 24 * time.Hour
	// FullDecayWindow is how long an account must stay quiet before all
	// counters reset to zero.
	FullDecayWindow = 90 * 24 * time.Hour
)

// ApplyDecay reduces strike counters as a pure function of the record and the
// current time. There is no background sweep; callers invoke this lazily
// before recording a new violation and on login. Returns true if any counter
// changed.
//
// Past the full window every counter goes to exactly zero. Inside the partial
// window each category counter drops by one (floor zero) and the global
// counter is recomputed as the sum of the categories. Note the global counter
// is otherwise incremented independently on each violation and only reconciled
// with the category sum here.
func ApplyDecay(acct *models.Account, now time.Time) bool {
	if acct.LastViolationAt == nil {
		return false
	}
	elapsed := now.Sub(*acct.LastViolationAt)
	if elapsed > FullDecayWindow {
		changed := acct.PostStrikes != 0 || acct.CommentStrikes != 0 || acct.DmStrikes != 0 || acct.GlobalStrikes != 0
		acct.PostStrikes = 0
		acct.CommentStrikes = 0
		acct.DmStrikes = 0
		acct.GlobalStrikes = 0
		return changed
	}
	if elapsed > PartialDecayWindow {
		changed := false
		for _, c := range []*int{&acct.PostStrikes, &acct.CommentStrikes, &acct.DmStrikes} {
			if *c > 0 {
				*c = *c - 1
				changed = true
			}
		}
		sum := acct.PostStrikes + acct.CommentStrikes + acct.DmStrikes
		if acct.GlobalStrikes != sum {
			acct.GlobalStrikes = sum
			changed = true
		}
		return changed
	}
	return false
}
