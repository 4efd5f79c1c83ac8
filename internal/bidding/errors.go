package bidding

import "errors"

// Domain errors surfaced to the caller layer. None are retried by the
// engine itself; ErrConflict may be retried by the caller with the same
// inputs after a short backoff. ErrInvalidBid wraps always carry a
// human-readable reason, since callers display it verbatim to end users.
var (
	// ErrAuctionNotFound is returned when the referenced auction does not exist.
	ErrAuctionNotFound = errors.New("bidding: auction not found")

	// ErrAuctionClosed is returned when the bidding window is not open or
	// the auction already reached a terminal state.
	ErrAuctionClosed = errors.New("bidding: auction is not open for bidding")

	// ErrInvalidBid is returned for a bid below the required minimum, a tie
	// with the standing leader, or a non-increasing self-raise.
	ErrInvalidBid = errors.New("bidding: invalid bid")

	// ErrConflict is returned when a guarded auction update lost an
	// optimistic-lock race with a concurrent writer.
	ErrConflict = errors.New("bidding: concurrent update detected")
)
