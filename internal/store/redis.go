package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leadex/auction-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for auction snapshots. Writes go to the primary store and
// invalidate the cache; reads check Redis first then fall back to the
// primary. Bid listings are never cached: the ledger is the price source
// of truth and must always be read fresh.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateAuction(ctx context.Context, a *model.Auction) error {
	if err := s.primary.CreateAuction(ctx, a); err != nil {
		return err
	}
	s.cacheAuction(ctx, a)
	return nil
}

func (s *CachedStore) UpdateAuctionState(ctx context.Context, id string, upd model.AuctionUpdate) error {
	if err := s.primary.UpdateAuctionState(ctx, id, upd); err != nil {
		return err
	}
	// Invalidate; next read will re-populate with the bumped version.
	s.rdb.Del(ctx, auctionKey(id))
	return nil
}

func (s *CachedStore) InsertBids(ctx context.Context, bids ...*model.Bid) error {
	return s.primary.InsertBids(ctx, bids...)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAuction(ctx context.Context, id string) (*model.Auction, error) {
	data, err := s.rdb.Get(ctx, auctionKey(id)).Bytes()
	if err == nil {
		var env auctionEnvelope
		if json.Unmarshal(data, &env) == nil {
			a := env.Auction
			a.Version = env.Version
			return &a, nil
		}
	}

	// Cache miss: read from primary.
	a, err := s.primary.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheAuction(ctx, a)
	return a, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	return s.primary.ListAuctions(ctx)
}

func (s *CachedStore) ListExpiredActive(ctx context.Context, now time.Time) ([]model.Auction, error) {
	return s.primary.ListExpiredActive(ctx, now)
}

func (s *CachedStore) ListBidsByAuction(ctx context.Context, auctionID string, limit int) ([]model.Bid, error) {
	return s.primary.ListBidsByAuction(ctx, auctionID, limit)
}

func (s *CachedStore) ListBidsByUser(ctx context.Context, userID string) ([]model.Bid, error) {
	return s.primary.ListBidsByUser(ctx, userID)
}

// --- Cache helpers ---

// auctionEnvelope carries the optimistic-lock version alongside the public
// snapshot, since Auction excludes it from JSON. A stale cached version
// only makes a guarded update fail and re-read, never corrupts.
type auctionEnvelope struct {
	Auction model.Auction `json:"auction"`
	Version int64         `json:"version"`
}

func (s *CachedStore) cacheAuction(ctx context.Context, a *model.Auction) {
	if data, err := json.Marshal(auctionEnvelope{Auction: *a, Version: a.Version}); err == nil {
		s.rdb.Set(ctx, auctionKey(a.ID), data, s.ttl)
	}
}

func auctionKey(id string) string { return fmt.Sprintf("auction:%s", id) }
