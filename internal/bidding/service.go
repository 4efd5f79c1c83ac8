// Package bidding orchestrates bid submissions for the lead auction engine:
// it reads ledger state, runs the proxy-bid calculator, writes the
// resulting record(s), applies the anti-snipe policy, and publishes price
// updates for the real-time layer.
//
// All monetary values use shopspring/decimal — never float64 for money.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/leadex/auction-engine/internal/clock"
	"github.com/leadex/auction-engine/internal/event"
	"github.com/leadex/auction-engine/internal/metrics"
	"github.com/leadex/auction-engine/internal/model"
	"github.com/leadex/auction-engine/internal/policy"
	"github.com/leadex/auction-engine/internal/proxy"
	"github.com/leadex/auction-engine/internal/store"
)

// Service processes bid submissions and instant purchases.
//
// The read-compute-write sequence for one auction is serialized by a
// per-auction mutex (single-instance). Auction state transitions
// additionally go through a version compare-and-swap in the store, so a
// second instance can never silently overwrite a transition; a lost race
// surfaces as ErrConflict for the caller to retry.
type Service struct {
	store  store.Store
	clk    clock.Clock
	events event.Sink // optional; nil disables broadcasting

	locks sync.Map // auction ID → *sync.Mutex, never evicted
}

// NewService creates a new bidding service.
// Pass nil for events if real-time broadcasting is not needed.
func NewService(st store.Store, clk clock.Clock, events event.Sink) *Service {
	return &Service{
		store:  st,
		clk:    clk,
		events: events,
	}
}

// BidResult is the structured outcome of one accepted submission.
type BidResult struct {
	// Bid is the submitter's new ledger record.
	Bid *model.Bid `json:"bid"`

	// AutoBid is the counter-bid synthesized for the standing leader when
	// their proxy outbid the submission, nil otherwise.
	AutoBid *model.Bid `json:"auto_bid,omitempty"`

	// VisiblePrice is the public price after this submission.
	VisiblePrice decimal.Decimal `json:"visible_price"`

	// IsLeader is true when the submitter now leads the auction.
	IsLeader bool `json:"is_leader"`

	// PreviousLeaderID identifies who led before this submission, empty on
	// a first bid.
	PreviousLeaderID string `json:"previous_leader_id,omitempty"`

	// Extended reports an anti-snipe extension; EndsAt is the (possibly
	// extended) end of the bidding window.
	Extended bool      `json:"extended"`
	EndsAt   time.Time `json:"ends_at"`
}

// SubmitBid processes one maximum bid from userID on an auction.
//
// The submission is rejected with ErrAuctionClosed outside the bidding
// window, and with ErrInvalidBid when the amount is below the required
// minimum, exactly ties the standing leader's maximum, or does not raise
// the submitter's own standing maximum. A tie writes nothing: no auction
// state changed, so no record is kept.
func (s *Service) SubmitBid(ctx context.Context, auctionID, userID string, maxBid decimal.Decimal) (*BidResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidBid)
	}
	if maxBid.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: maximum bid must be positive", ErrInvalidBid)
	}

	mu := s.lock(auctionID)
	mu.Lock()
	defer mu.Unlock()

	a, err := s.getOpenAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	now := s.clk.Now()

	bids, err := s.store.ListBidsByAuction(ctx, auctionID, 0)
	if err != nil {
		return nil, fmt.Errorf("bidding: load ledger for auction %s: %w", auctionID, err)
	}

	visible := a.StartPrice
	if len(bids) > 0 {
		// The most recent record always reflects the current visible price.
		visible = bids[0].Amount
	}
	leader := currentLeader(bids)

	// Increase-only path: the standing leader may raise their own ceiling
	// without moving the visible price.
	if leader != nil && leader.UserID == userID {
		return s.raiseOwnMax(ctx, a, leader, userID, maxBid, visible, now)
	}

	// Defensive minimum check; the caller layer validates this too.
	min := proxy.MinimumBid(visible, a.MinIncrement, a.StartPrice, len(bids) > 0)
	if maxBid.LessThan(min) {
		return nil, fmt.Errorf("%w: minimum acceptable bid is %s", ErrInvalidBid, min)
	}

	out := proxy.Calculate(maxBid, leader, visible, a.MinIncrement, a.StartPrice)
	if out.Tie {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBid, out.Message)
	}

	userBid := &model.Bid{
		ID:        uuid.New().String(),
		AuctionID: a.ID,
		UserID:    userID,
		MaxBid:    maxBid,
		Kind:      model.KindChallenger,
		Amount:    maxBid, // private record of the bidder's own maximum
		CreatedAt: now,
	}
	if out.NewLeader {
		userBid.Kind = model.KindLead
		userBid.Amount = out.VisiblePrice
	}

	records := []*model.Bid{userBid}
	var autoBid *model.Bid
	if out.AutoBid {
		// The incumbent's proxy answers in the same transaction; the pair
		// is never half-persisted.
		autoBid = &model.Bid{
			ID:        uuid.New().String(),
			AuctionID: a.ID,
			UserID:    leader.UserID,
			MaxBid:    leader.MaxBid,
			Kind:      model.KindAuto,
			Amount:    out.VisiblePrice,
			CreatedAt: now,
		}
		records = append(records, autoBid)
	}

	if err := s.store.InsertBids(ctx, records...); err != nil {
		return nil, fmt.Errorf("bidding: persist bid for auction %s: %w", a.ID, err)
	}

	result := &BidResult{
		Bid:          userBid,
		AutoBid:      autoBid,
		VisiblePrice: out.VisiblePrice,
		IsLeader:     out.NewLeader,
		EndsAt:       a.EndsAt,
	}
	if leader != nil {
		result.PreviousLeaderID = leader.UserID
	}

	if err := s.applyAntiSnipe(ctx, a, now, result); err != nil {
		return nil, err
	}

	metrics.BidsAccepted.WithLabelValues(userBid.Kind).Inc()
	if autoBid != nil {
		metrics.BidsAccepted.WithLabelValues(model.KindAuto).Inc()
	}

	slog.Info("bid accepted",
		"auction", a.ID,
		"user", userID,
		"kind", userBid.Kind,
		"visible_price", out.VisiblePrice.String(),
		"is_leader", result.IsLeader,
		"auto_bid", autoBid != nil,
		"extended", result.Extended,
	)

	s.publish(event.Event{
		Type:         event.TypeBidAccepted,
		AuctionID:    a.ID,
		VisiblePrice: result.VisiblePrice.String(),
		LeaderChange: result.IsLeader,
		Extended:     result.Extended,
		EndsAt:       result.EndsAt,
	})

	return result, nil
}

// raiseOwnMax handles the standing leader raising their own maximum. Only a
// strict increase is accepted; the visible price does not move.
func (s *Service) raiseOwnMax(ctx context.Context, a *model.Auction, leader *proxy.Leader,
	userID string, maxBid, visible decimal.Decimal, now time.Time) (*BidResult, error) {

	if maxBid.LessThanOrEqual(leader.MaxBid) {
		return nil, fmt.Errorf("%w: new maximum must exceed current maximum", ErrInvalidBid)
	}

	bid := &model.Bid{
		ID:        uuid.New().String(),
		AuctionID: a.ID,
		UserID:    userID,
		MaxBid:    maxBid,
		Kind:      model.KindLead,
		Amount:    visible,
		CreatedAt: now,
	}
	if err := s.store.InsertBids(ctx, bid); err != nil {
		return nil, fmt.Errorf("bidding: persist raise for auction %s: %w", a.ID, err)
	}

	result := &BidResult{
		Bid:              bid,
		VisiblePrice:     visible,
		IsLeader:         true,
		PreviousLeaderID: userID,
		EndsAt:           a.EndsAt,
	}
	if err := s.applyAntiSnipe(ctx, a, now, result); err != nil {
		return nil, err
	}

	metrics.BidsAccepted.WithLabelValues(model.KindLead).Inc()
	slog.Info("leader raised own maximum",
		"auction", a.ID,
		"user", userID,
		"visible_price", visible.String(),
		"extended", result.Extended,
	)

	s.publish(event.Event{
		Type:         event.TypeBidAccepted,
		AuctionID:    a.ID,
		VisiblePrice: visible.String(),
		Extended:     result.Extended,
		EndsAt:       result.EndsAt,
	})

	return result, nil
}

// BuyNow purchases the lead outright at its instant-buy price, bypassing
// the bidding path entirely. The auction transitions straight to sold.
func (s *Service) BuyNow(ctx context.Context, auctionID, userID string) (*model.Bid, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidBid)
	}

	mu := s.lock(auctionID)
	mu.Lock()
	defer mu.Unlock()

	a, err := s.getOpenAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if a.InstantBuyPrice == nil {
		return nil, fmt.Errorf("%w: auction has no instant-buy price", ErrInvalidBid)
	}
	now := s.clk.Now()

	bid := &model.Bid{
		ID:        uuid.New().String(),
		AuctionID: a.ID,
		UserID:    userID,
		MaxBid:    *a.InstantBuyPrice,
		Kind:      model.KindBuyout,
		Amount:    *a.InstantBuyPrice,
		CreatedAt: now,
	}
	if err := s.store.InsertBids(ctx, bid); err != nil {
		return nil, fmt.Errorf("bidding: persist buyout for auction %s: %w", a.ID, err)
	}

	active, sold := false, true
	err = s.store.UpdateAuctionState(ctx, a.ID, model.AuctionUpdate{
		ExpectedVersion: a.Version,
		IsActive:        &active,
		IsSold:          &sold,
	})
	if err != nil {
		return nil, s.mapStateErr(a.ID, err)
	}

	metrics.BidsAccepted.WithLabelValues(model.KindBuyout).Inc()
	metrics.AuctionsSettled.WithLabelValues("sold").Inc()
	slog.Info("instant buy",
		"auction", a.ID,
		"user", userID,
		"price", a.InstantBuyPrice.String(),
	)

	s.publish(event.Event{
		Type:         event.TypeAuctionSold,
		AuctionID:    a.ID,
		VisiblePrice: a.InstantBuyPrice.String(),
	})

	return bid, nil
}

// --- internal helpers ---

func (s *Service) lock(auctionID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(auctionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// getOpenAuction loads the auction and refuses any that is not accepting
// bids right now.
func (s *Service) getOpenAuction(ctx context.Context, auctionID string) (*model.Auction, error) {
	a, err := s.store.GetAuction(ctx, auctionID)
	if errors.Is(err, store.ErrAuctionNotFound) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bidding: load auction %s: %w", auctionID, err)
	}
	if !a.Open(s.clk.Now()) {
		return nil, ErrAuctionClosed
	}
	return a, nil
}

// applyAntiSnipe extends the bidding window when the accepted bid landed
// inside the anti-snipe window, and records the outcome on the result.
func (s *Service) applyAntiSnipe(ctx context.Context, a *model.Auction, now time.Time, result *BidResult) error {
	res := policy.CheckAntiSnipe(a.EndsAt, a.AntiSnipeWindow(), now)
	if !res.ShouldExtend {
		return nil
	}

	err := s.store.UpdateAuctionState(ctx, a.ID, model.AuctionUpdate{
		ExpectedVersion: a.Version,
		EndsAt:          &res.NewEndsAt,
	})
	if err != nil {
		return s.mapStateErr(a.ID, err)
	}

	metrics.AuctionExtensions.Inc()
	result.Extended = true
	result.EndsAt = res.NewEndsAt
	return nil
}

func (s *Service) mapStateErr(auctionID string, err error) error {
	if errors.Is(err, store.ErrVersionConflict) {
		return fmt.Errorf("%w: auction %s", ErrConflict, auctionID)
	}
	if errors.Is(err, store.ErrAuctionNotFound) {
		return ErrAuctionNotFound
	}
	return fmt.Errorf("bidding: update auction %s: %w", auctionID, err)
}

func (s *Service) publish(ev event.Event) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}

// currentLeader scans the ledger for the holder of the highest hidden
// maximum. Records are newest first; walking backwards (oldest first) and
// requiring a strict improvement gives ties to the earliest record.
func currentLeader(bids []model.Bid) *proxy.Leader {
	var leader *proxy.Leader
	for i := len(bids) - 1; i >= 0; i-- {
		b := &bids[i]
		if leader == nil || b.MaxBid.GreaterThan(leader.MaxBid) {
			leader = &proxy.Leader{UserID: b.UserID, MaxBid: b.MaxBid}
		}
	}
	return leader
}
