// Package policy implements the reserve-price and anti-snipe checks.
// Both are pure functions over auction state; they require no
// synchronization and never touch storage.
package policy

import (
	"time"

	"github.com/shopspring/decimal"
)

// MeetsReserve reports whether amount satisfies the reserve price.
// A nil reserve means the auction has no reserve and always sells.
func MeetsReserve(amount decimal.Decimal, reserve *decimal.Decimal) bool {
	if reserve == nil {
		return true
	}
	return amount.GreaterThanOrEqual(*reserve)
}

// AntiSnipeResult is the outcome of an anti-snipe check after an accepted bid.
type AntiSnipeResult struct {
	ShouldExtend bool
	NewEndsAt    time.Time
}

// CheckAntiSnipe decides whether an accepted bid landing inside the
// anti-snipe window pushes the auction end out to now+window. It must run
// after every accepted bid — even a losing one that only triggered the
// leader's proxy — since any accepted bid signals continued interest.
// Rejected and tied submissions never extend.
func CheckAntiSnipe(endsAt time.Time, window time.Duration, now time.Time) AntiSnipeResult {
	remaining := endsAt.Sub(now)
	if window > 0 && remaining > 0 && remaining <= window {
		return AntiSnipeResult{ShouldExtend: true, NewEndsAt: now.Add(window)}
	}
	return AntiSnipeResult{ShouldExtend: false, NewEndsAt: endsAt}
}
