// Package proxy implements the eBay-style proxy-bidding price rule.
//
// Each bidder submits a hidden maximum; the engine keeps the publicly
// visible price as low as possible while guaranteeing the highest maximum
// always leads:
//   - The first bid opens at the start price.
//   - A higher maximum takes the lead at min(prevMax + increment, newMax).
//   - An equal maximum loses to the incumbent (time priority).
//   - A lower maximum is countered automatically: the visible price rises
//     to min(newMax + increment, leaderMax) and the incumbent keeps the lead.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Calculate is deterministic and side-effect free; it never touches storage.
package proxy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Leader is the standing leader's hidden state at calculation time.
// A nil *Leader means the auction has no bids yet.
type Leader struct {
	UserID string
	MaxBid decimal.Decimal
}

// Outcome is the result of running the proxy rule for one submission.
type Outcome struct {
	// VisiblePrice is the new public price of the auction.
	VisiblePrice decimal.Decimal

	// NewLeader is true when the submitter takes the lead.
	NewLeader bool

	// AutoBid is true when the incumbent's proxy countered the submission;
	// the caller must synthesize a counter-bid record at VisiblePrice for
	// the incumbent.
	AutoBid bool

	// Tie is true when the submission exactly matched the incumbent's
	// maximum. Time priority keeps the incumbent in the lead and nothing
	// about the auction changes.
	Tie bool

	// Message explains a tie to the submitting user.
	Message string
}

// Calculate applies the proxy rule to one new maximum bid.
//
// visible is the current public price (the start price when no bids exist),
// increment the minimum step, and startPrice the floor for the first bid.
func Calculate(newMax decimal.Decimal, leader *Leader, visible, increment, startPrice decimal.Decimal) Outcome {
	// First bid: the true maximum stays hidden, the price opens at the
	// start price.
	if leader == nil {
		return Outcome{
			VisiblePrice: startPrice,
			NewLeader:    true,
		}
	}

	switch newMax.Cmp(leader.MaxBid) {
	case 1:
		// Challenger wins: pay just enough to beat the previous maximum,
		// never more than their own ceiling.
		price := decimal.Min(leader.MaxBid.Add(increment), newMax)
		return Outcome{
			VisiblePrice: price,
			NewLeader:    true,
		}

	case 0:
		// Tie goes to the incumbent.
		return Outcome{
			VisiblePrice: visible,
			Tie:          true,
			Message: fmt.Sprintf(
				"a bid of %s matches the current leader's maximum; bid more than %s to take the lead",
				newMax, newMax),
		}

	default:
		// Incumbent's proxy counters: price rises to cover the challenge,
		// capped at the incumbent's ceiling.
		price := decimal.Min(newMax.Add(increment), leader.MaxBid)
		return Outcome{
			VisiblePrice: price,
			AutoBid:      true,
		}
	}
}

// MinimumBid returns the lowest maximum a non-leading bidder may submit:
// the current visible price plus one increment, or the start price while
// the auction has no bids.
func MinimumBid(visible, increment, startPrice decimal.Decimal, hasBids bool) decimal.Decimal {
	if !hasBids {
		return startPrice
	}
	return visible.Add(increment)
}
