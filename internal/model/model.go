// Package model defines the core domain types shared across the auction engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bid record kinds. The kind makes the shape of a ledger record explicit:
// a leading record's Amount is the public visible price, a challenger
// record's Amount is the bidder's own maximum and must never be shown to
// other users, an auto record is a counter-bid synthesized on behalf of
// the standing leader, and a buyout record closes the auction at the
// instant-buy price.
const (
	KindLead       = "lead"
	KindChallenger = "challenger"
	KindAuto       = "auto"
	KindBuyout     = "buyout"
)

// Bid is an immutable ledger record for one auction.
// Once created, these are never modified or deleted.
//
// MaxBid is the bidder's private ceiling. It is excluded from JSON so it
// can never leak through an API response; clients only ever see Amount.
type Bid struct {
	ID        string          `json:"id" db:"id"`
	AuctionID string          `json:"auction_id" db:"auction_id"`
	UserID    string          `json:"user_id" db:"user_id"`
	MaxBid    decimal.Decimal `json:"-" db:"max_bid"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Kind      string          `json:"kind" db:"kind"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// IsAuto reports whether this record was synthesized by the engine as the
// standing leader's automatic counter-response rather than a direct action.
func (b *Bid) IsAuto() bool {
	return b.Kind == KindAuto
}

// Auction represents one lead listed for sale. Bidding is open while
// IsActive is true and the current time falls in [StartsAt, EndsAt).
// IsSold and "inactive, unsold" are mutually exclusive terminal states.
type Auction struct {
	ID               string           `json:"id" db:"id"`
	SellerID         string           `json:"seller_id" db:"seller_id"`
	Title            string           `json:"title" db:"title"`
	Description      string           `json:"description,omitempty" db:"description"`
	StartPrice       decimal.Decimal  `json:"start_price" db:"start_price"`
	MinIncrement     decimal.Decimal  `json:"min_increment" db:"min_increment"`
	ReservePrice     *decimal.Decimal `json:"reserve_price,omitempty" db:"reserve_price"`
	InstantBuyPrice  *decimal.Decimal `json:"instant_buy_price,omitempty" db:"instant_buy_price"`
	AntiSnipeSeconds int              `json:"anti_snipe_seconds" db:"anti_snipe_seconds"`
	StartsAt         *time.Time       `json:"starts_at,omitempty" db:"starts_at"`
	EndsAt           time.Time        `json:"ends_at" db:"ends_at"`
	IsActive         bool             `json:"is_active" db:"is_active"`
	IsSold           bool             `json:"is_sold" db:"is_sold"`
	Version          int64            `json:"-" db:"version"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// Open reports whether the auction accepts bids at the given instant.
// A missing StartsAt means the bidding window opened at creation.
func (a *Auction) Open(now time.Time) bool {
	if !a.IsActive || a.IsSold {
		return false
	}
	if a.StartsAt != nil && now.Before(*a.StartsAt) {
		return false
	}
	return now.Before(a.EndsAt)
}

// AntiSnipeWindow returns the anti-snipe extension window as a duration.
func (a *Auction) AntiSnipeWindow() time.Duration {
	return time.Duration(a.AntiSnipeSeconds) * time.Second
}

// AuctionUpdate describes a guarded state transition for one auction.
// ExpectedVersion is the optimistic-lock check: the update only applies
// when the stored version still matches, and bumps the version by one.
// Nil fields are left unchanged.
type AuctionUpdate struct {
	ExpectedVersion int64
	EndsAt          *time.Time
	IsActive        *bool
	IsSold          *bool
}
