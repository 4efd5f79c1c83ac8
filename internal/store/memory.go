package store

import (
	"context"
	"sync"
	"time"

	"github.com/leadex/auction-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	auctions map[string]*model.Auction
	ledger   []model.Bid
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions: make(map[string]*model.Auction),
	}
}

func (s *MemoryStore) CreateAuction(_ context.Context, a *model.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[a.ID]; ok {
		return ErrDuplicateAuction
	}

	// Store a copy to avoid external mutation.
	cp := *a
	s.auctions[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAuction(_ context.Context, id string) (*model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.auctions[id]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAuctions(_ context.Context) ([]model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auctions := make([]model.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		auctions = append(auctions, *a)
	}
	return auctions, nil
}

func (s *MemoryStore) ListExpiredActive(_ context.Context, now time.Time) ([]model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []model.Auction
	for _, a := range s.auctions {
		if a.IsActive && !a.IsSold && !now.Before(a.EndsAt) {
			expired = append(expired, *a)
		}
	}
	return expired, nil
}

func (s *MemoryStore) UpdateAuctionState(_ context.Context, id string, upd model.AuctionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[id]
	if !ok {
		return ErrAuctionNotFound
	}
	if a.Version != upd.ExpectedVersion {
		return ErrVersionConflict
	}

	if upd.EndsAt != nil {
		a.EndsAt = *upd.EndsAt
	}
	if upd.IsActive != nil {
		a.IsActive = *upd.IsActive
	}
	if upd.IsSold != nil {
		a.IsSold = *upd.IsSold
	}
	a.Version++
	return nil
}

func (s *MemoryStore) InsertBids(_ context.Context, bids ...*model.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bids {
		s.ledger = append(s.ledger, *b)
	}
	return nil
}

// ListBidsByAuction walks the append-only ledger backwards so records come
// out newest first; equal timestamps keep insertion order.
func (s *MemoryStore) ListBidsByAuction(_ context.Context, auctionID string, limit int) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bid
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if s.ledger[i].AuctionID != auctionID {
			continue
		}
		result = append(result, s.ledger[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) ListBidsByUser(_ context.Context, userID string) ([]model.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Bid
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if s.ledger[i].UserID == userID {
			result = append(result, s.ledger[i])
		}
	}
	return result, nil
}
