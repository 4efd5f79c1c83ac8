// Package settle determines the outcome of an expired auction: who won,
// what they pay, and whether the reserve allows the sale at all.
//
// The resolver is a pure function over the bid ledger; the sweeper around
// it decides reserve gating and applies the terminal state transition.
// Charging the winner is the payment layer's job, not this package's.
package settle

import (
	"github.com/shopspring/decimal"

	"github.com/leadex/auction-engine/internal/model"
)

// Result describes the settlement of one auction.
//
// The winner pays the final visible price — the amount of the most recent
// ledger record — not their hidden maximum. SavedAmount is the difference,
// never negative when the calculator behaved.
type Result struct {
	HasWinner    bool            `json:"has_winner"`
	WinnerID     string          `json:"winner_id,omitempty"`
	WinnerMaxBid decimal.Decimal `json:"-"`
	FinalPrice   decimal.Decimal `json:"final_price"`
	SavedAmount  decimal.Decimal `json:"-"`
}

// Resolve computes the settlement for an auction from its full bid list,
// newest record first.
//
// The winner holds the globally highest maximum across all records, not
// necessarily the most recent one; ties on the maximum go to the earliest
// record.
func Resolve(bids []model.Bid) Result {
	if len(bids) == 0 {
		return Result{}
	}

	finalPrice := bids[0].Amount

	// Walk oldest first and require a strict improvement, so the earliest
	// record wins a tie on the maximum.
	winner := &bids[len(bids)-1]
	for i := len(bids) - 2; i >= 0; i-- {
		if bids[i].MaxBid.GreaterThan(winner.MaxBid) {
			winner = &bids[i]
		}
	}

	return Result{
		HasWinner:    true,
		WinnerID:     winner.UserID,
		WinnerMaxBid: winner.MaxBid,
		FinalPrice:   finalPrice,
		SavedAmount:  winner.MaxBid.Sub(finalPrice),
	}
}
