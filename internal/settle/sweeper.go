package settle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/leadex/auction-engine/internal/clock"
	"github.com/leadex/auction-engine/internal/event"
	"github.com/leadex/auction-engine/internal/metrics"
	"github.com/leadex/auction-engine/internal/model"
	"github.com/leadex/auction-engine/internal/policy"
	"github.com/leadex/auction-engine/internal/store"
)

// Sweeper periodically settles expired auctions. Sweeping is idempotent:
// only active, unsold auctions are touched, and the terminal transition
// goes through a version compare-and-swap, so a concurrent sweep of the
// same auction is a no-op for the loser of the race.
type Sweeper struct {
	store    store.Store
	clk      clock.Clock
	events   event.Sink // optional; nil disables broadcasting
	interval time.Duration
}

// NewSweeper creates a sweeper that scans every interval.
// Pass nil for events if real-time broadcasting is not needed.
func NewSweeper(st store.Store, clk clock.Clock, events event.Sink, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    st,
		clk:      clk,
		events:   events,
		interval: interval,
	}
}

// Run sweeps on a ticker until ctx is cancelled. Must be called in a
// goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				slog.Error("expiry sweep failed", "err", err)
			}
		}
	}
}

// SweepOnce settles every expired active auction once. Individual auctions
// that lose a settlement race are skipped, not retried; the next sweep is
// a no-op for them.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	expired, err := s.store.ListExpiredActive(ctx, s.clk.Now())
	if err != nil {
		return err
	}

	for i := range expired {
		if err := s.settleOne(ctx, &expired[i]); err != nil {
			slog.Error("auction settlement failed", "auction", expired[i].ID, "err", err)
		}
	}
	return nil
}

func (s *Sweeper) settleOne(ctx context.Context, a *model.Auction) error {
	// Idempotency guard: never re-settle a terminal auction.
	if !a.IsActive || a.IsSold {
		return nil
	}

	bids, err := s.store.ListBidsByAuction(ctx, a.ID, 0)
	if err != nil {
		return err
	}

	res := Resolve(bids)
	sold := res.HasWinner && policy.MeetsReserve(res.FinalPrice, a.ReservePrice)

	active := false
	upd := model.AuctionUpdate{
		ExpectedVersion: a.Version,
		IsActive:        &active,
	}
	if sold {
		upd.IsSold = &sold
	}

	if err := s.store.UpdateAuctionState(ctx, a.ID, upd); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			// Another sweep or a last-moment extension got there first.
			slog.Info("settlement skipped, auction state moved", "auction", a.ID)
			return nil
		}
		return err
	}

	if sold {
		metrics.AuctionsSettled.WithLabelValues("sold").Inc()
		slog.Info("auction sold",
			"auction", a.ID,
			"winner", res.WinnerID,
			"final_price", res.FinalPrice.String(),
			"saved", res.SavedAmount.String(),
		)
		s.publish(event.Event{
			Type:         event.TypeAuctionSold,
			AuctionID:    a.ID,
			VisiblePrice: res.FinalPrice.String(),
		})
		return nil
	}

	metrics.AuctionsSettled.WithLabelValues("unsold").Inc()
	slog.Info("auction closed unsold",
		"auction", a.ID,
		"had_bids", res.HasWinner,
	)
	s.publish(event.Event{
		Type:      event.TypeAuctionUnsold,
		AuctionID: a.ID,
	})
	return nil
}

func (s *Sweeper) publish(ev event.Event) {
	if s.events != nil {
		s.events.Publish(ev)
	}
}
