// Passkey challenge cache with a fixed TTL.
//
// Includes an interface and implementations using redis and in-process
// memory. Challenges are keyed by account and consumed exactly once; with the
// redis implementation multiple service instances see consistent state.
package challenge

import (
	"context"
	"fmt"
	"time"
)

// DefaultTTL bounds how long a passkey ceremony may take.
const DefaultTTL = 5 * time.Minute

var ErrChallengeNotFound = fmt.Errorf("challenge not found")

type ChallengeStore interface {
	// Put stores the pending challenge for an account, replacing any prior one.
	Put(ctx context.Context, accountID uint, challenge string) error
	// Take returns the pending challenge and removes it, so a challenge can
	// only ever satisfy one verification attempt.
	Take(ctx context.Context, accountID uint) (string, error)
}
