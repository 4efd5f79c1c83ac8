// Package store defines the persistence interface for the auction engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/leadex/auction-engine/internal/model"
)

var (
	// ErrAuctionNotFound is returned when the referenced auction does not exist.
	ErrAuctionNotFound = errors.New("store: auction not found")

	// ErrDuplicateAuction is returned when an auction ID is created twice.
	ErrDuplicateAuction = errors.New("store: auction already exists")

	// ErrVersionConflict is returned when a guarded auction update loses an
	// optimistic-lock race: the stored version no longer matches the
	// expected one. Callers may re-read and retry.
	ErrVersionConflict = errors.New("store: auction version conflict")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Auction operations ---

	// CreateAuction persists a new auction.
	CreateAuction(ctx context.Context, a *model.Auction) error

	// GetAuction retrieves an auction by its ID.
	GetAuction(ctx context.Context, id string) (*model.Auction, error)

	// ListAuctions returns all auctions, newest first.
	ListAuctions(ctx context.Context) ([]model.Auction, error)

	// ListExpiredActive returns active, unsold auctions whose end time has
	// passed. Consumed by the expiry sweeper.
	ListExpiredActive(ctx context.Context, now time.Time) ([]model.Auction, error)

	// UpdateAuctionState applies a guarded state transition. Returns
	// ErrVersionConflict when the expected version no longer matches.
	UpdateAuctionState(ctx context.Context, id string, upd model.AuctionUpdate) error

	// --- Append-only bid ledger ---

	// InsertBids appends one or more bid records atomically. A proxy
	// counter-bid is always written in the same call as the bid that
	// triggered it, so the pair can never be half-persisted.
	InsertBids(ctx context.Context, bids ...*model.Bid) error

	// ListBidsByAuction returns bid records for an auction, newest first.
	// limit <= 0 returns all records.
	ListBidsByAuction(ctx context.Context, auctionID string, limit int) ([]model.Bid, error)

	// ListBidsByUser returns all bid records placed by a user, newest first.
	ListBidsByUser(ctx context.Context, userID string) ([]model.Bid, error)
}
