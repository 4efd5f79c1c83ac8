package bidding_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/leadex/auction-engine/internal/bidding"
	"github.com/leadex/auction-engine/internal/clock"
	"github.com/leadex/auction-engine/internal/model"
	"github.com/leadex/auction-engine/internal/store"
)

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func dp(n int64) *decimal.Decimal {
	v := decimal.NewFromInt(n)
	return &v
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// newTestEnv creates a test Service with in-memory store, fake clock, and
// chi router.
func newTestEnv(t *testing.T) (*bidding.Service, *store.MemoryStore, *clock.Fake, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	clk := clock.NewFake(t0)
	svc := bidding.NewService(ms, clk, nil)

	r := chi.NewRouter()
	r.Post("/api/v1/auctions", svc.CreateAuction)
	r.Get("/api/v1/auctions/{auctionID}", svc.GetAuction)
	r.Get("/api/v1/auctions/{auctionID}/bids", svc.GetAuctionBids)
	r.Post("/api/v1/auctions/{auctionID}/bids", svc.HandleSubmitBid)
	r.Post("/api/v1/auctions/{auctionID}/buy", svc.HandleBuyNow)

	return svc, ms, clk, r
}

// seedAuction creates a test auction directly in the store: start price
// 100, increment 10, ending one hour out.
func seedAuction(t *testing.T, ms *store.MemoryStore, mutate func(*model.Auction)) *model.Auction {
	t.Helper()
	a := &model.Auction{
		ID:           "test-auction",
		SellerID:     "seller1",
		Title:        "solar installation lead, 94103",
		StartPrice:   d(100),
		MinIncrement: d(10),
		EndsAt:       t0.Add(time.Hour),
		IsActive:     true,
		CreatedAt:    t0,
	}
	if mutate != nil {
		mutate(a)
	}
	if err := ms.CreateAuction(context.Background(), a); err != nil {
		t.Fatalf("failed to seed auction: %v", err)
	}
	return a
}

func doBid(t *testing.T, router chi.Router, auctionID, userID string, maxBid int64) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(bidding.SubmitBidRequest{UserID: userID, MaxBid: d(maxBid)})
	req := httptest.NewRequest("POST", "/api/v1/auctions/"+auctionID+"/bids", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) bidding.BidResult {
	t.Helper()
	var res bidding.BidResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	return res
}

// --- Proxy bidding scenarios ---

func TestSubmitBid_FirstBidOpensAtStartPrice(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, nil)

	w := doBid(t, router, "test-auction", "userA", 150)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	res := decodeResult(t, w)
	if !res.VisiblePrice.Equal(d(100)) {
		t.Errorf("expected visible price 100, got %s", res.VisiblePrice)
	}
	if !res.IsLeader {
		t.Error("first bidder should lead")
	}
	if res.PreviousLeaderID != "" {
		t.Errorf("unexpected previous leader %q", res.PreviousLeaderID)
	}
}

func TestSubmitBid_LowerMaxTriggersProxyCounter(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, nil)

	doBid(t, router, "test-auction", "userA", 150)
	w := doBid(t, router, "test-auction", "userB", 130)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	res := decodeResult(t, w)
	if res.IsLeader {
		t.Error("userB must not take the lead")
	}
	if !res.VisiblePrice.Equal(d(140)) {
		t.Errorf("expected visible price 140, got %s", res.VisiblePrice)
	}
	if res.AutoBid == nil {
		t.Fatal("expected an auto-bid for the incumbent")
	}
	if res.AutoBid.UserID != "userA" {
		t.Errorf("auto-bid should belong to userA, got %s", res.AutoBid.UserID)
	}
	if !res.AutoBid.Amount.Equal(d(140)) {
		t.Errorf("auto-bid amount should be 140, got %s", res.AutoBid.Amount)
	}
	if res.PreviousLeaderID != "userA" {
		t.Errorf("expected previous leader userA, got %s", res.PreviousLeaderID)
	}

	// Two new records: B's private max record and A's counter at 140.
	bids, _ := ms.ListBidsByAuction(context.Background(), "test-auction", 0)
	if len(bids) != 3 {
		t.Fatalf("expected 3 ledger records, got %d", len(bids))
	}
	if bids[0].Kind != model.KindAuto || !bids[0].Amount.Equal(d(140)) {
		t.Errorf("most recent record must be the counter at 140, got %s %s", bids[0].Kind, bids[0].Amount)
	}
}

func TestSubmitBid_HigherMaxTakesLead(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, nil)

	doBid(t, router, "test-auction", "userA", 150)
	doBid(t, router, "test-auction", "userB", 130)

	w := doBid(t, router, "test-auction", "userC", 160)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	res := decodeResult(t, w)
	if !res.IsLeader {
		t.Error("userC should take the lead")
	}
	if !res.VisiblePrice.Equal(d(160)) {
		t.Errorf("expected visible price 160, got %s", res.VisiblePrice)
	}
	if res.PreviousLeaderID != "userA" {
		t.Errorf("expected previous leader userA, got %s", res.PreviousLeaderID)
	}
}

func TestSubmitBid_TieRejectedWithoutWriting(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, nil)

	doBid(t, router, "test-auction", "userA", 150)
	before, _ := ms.ListBidsByAuction(context.Background(), "test-auction", 0)

	w := doBid(t, router, "test-auction", "userB", 150)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for tie, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "bid more than") {
		t.Errorf("tie rejection must explain how to take the lead: %s", w.Body.String())
	}

	after, _ := ms.ListBidsByAuction(context.Background(), "test-auction", 0)
	if len(after) != len(before) {
		t.Errorf("tie must not write to the ledger: %d → %d records", len(before), len(after))
	}
}

func TestSubmitBid_SelfRaiseMustIncrease(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, nil)

	doBid(t, router, "test-auction", "userA", 150)

	// Lower than own standing maximum.
	w := doBid(t, router, "test-auction", "userA", 140)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-increasing self-raise, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "must exceed current maximum") {
		t.Errorf("unexpected error message: %s", w.Body.String())
	}

	// Equal is rejected too.
	if w := doBid(t, router, "test-auction", "userA", 150); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for equal self-raise, got %d", w.Code)
	}
}

func TestSubmitBid_SelfRaiseKeepsVisiblePrice(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, nil)

	doBid(t, router, "test-auction", "userA", 150)
	w := doBid(t, router, "test-auction", "userA", 300)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	res := decodeResult(t, w)
	if !res.IsLeader {
		t.Error("raising leader keeps the lead")
	}
	if !res.VisiblePrice.Equal(d(100)) {
		t.Errorf("self-raise must not move the visible price, got %s", res.VisiblePrice)
	}

	// The raised ceiling now defends against a 200 challenge.
	w = doBid(t, router, "test-auction", "userB", 200)
	res = decodeResult(t, w)
	if res.IsLeader {
		t.Error("userB should be outbid by the raised proxy")
	}
	if !res.VisiblePrice.Equal(d(210)) {
		t.Errorf("expected visible price 210, got %s", res.VisiblePrice)
	}
}

func TestSubmitBid_BelowMinimumRejected(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, nil)

	// First bid below the start price.
	w := doBid(t, router, "test-auction", "userA", 90)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "minimum acceptable bid is 100") {
		t.Errorf("rejection must name the minimum: %s", w.Body.String())
	}

	// Later bids must clear visible + increment.
	doBid(t, router, "test-auction", "userA", 150)
	w = doBid(t, router, "test-auction", "userB", 105)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "minimum acceptable bid is 110") {
		t.Errorf("rejection must name the minimum: %s", w.Body.String())
	}
}

func TestSubmitBid_NonPositiveRejected(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, nil)

	if w := doBid(t, router, "test-auction", "userA", 0); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero bid, got %d", w.Code)
	}
	if w := doBid(t, router, "test-auction", "userA", -5); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative bid, got %d", w.Code)
	}
}

// --- Window and lifecycle ---

func TestSubmitBid_AuctionNotFound(t *testing.T) {
	_, _, _, router := newTestEnv(t)

	w := doBid(t, router, "missing", "userA", 150)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestSubmitBid_AfterEndRejected(t *testing.T) {
	_, ms, clk, router := newTestEnv(t)
	seedAuction(t, ms, nil)

	clk.Advance(2 * time.Hour)
	w := doBid(t, router, "test-auction", "userA", 150)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 after end time, got %d", w.Code)
	}
}

func TestSubmitBid_BeforeStartRejected(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, func(a *model.Auction) {
		starts := t0.Add(30 * time.Minute)
		a.StartsAt = &starts
	})

	w := doBid(t, router, "test-auction", "userA", 150)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 before start time, got %d", w.Code)
	}
}

func TestSubmitBid_TerminalAuctionRejected(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, func(a *model.Auction) {
		a.IsActive = false
	})

	w := doBid(t, router, "test-auction", "userA", 150)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for inactive auction, got %d", w.Code)
	}
}

// --- Anti-snipe ---

func TestSubmitBid_AntiSnipeExtendsEnd(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, func(a *model.Auction) {
		a.EndsAt = t0.Add(30 * time.Second)
		a.AntiSnipeSeconds = 120
	})

	w := doBid(t, router, "test-auction", "userA", 150)
	res := decodeResult(t, w)

	if !res.Extended {
		t.Fatal("bid inside the anti-snipe window must extend the auction")
	}
	want := t0.Add(120 * time.Second)
	if !res.EndsAt.Equal(want) {
		t.Errorf("expected new end %v, got %v", want, res.EndsAt)
	}

	a, _ := ms.GetAuction(context.Background(), "test-auction")
	if !a.EndsAt.Equal(want) {
		t.Errorf("extension must be persisted, got %v", a.EndsAt)
	}
}

func TestSubmitBid_AntiSnipeAppliesToLosingBid(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, func(a *model.Auction) {
		a.EndsAt = t0.Add(60 * time.Second)
		a.AntiSnipeSeconds = 120
	})

	doBid(t, router, "test-auction", "userA", 150)
	// A losing challenge still signals interest and still extends.
	w := doBid(t, router, "test-auction", "userB", 130)
	res := decodeResult(t, w)

	if res.IsLeader {
		t.Fatal("userB should lose this exchange")
	}
	if !res.Extended {
		t.Error("an accepted losing bid inside the window must extend")
	}
}

func TestSubmitBid_NoExtensionOutsideWindow(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, func(a *model.Auction) {
		a.AntiSnipeSeconds = 120 // end is one hour out
	})

	w := doBid(t, router, "test-auction", "userA", 150)
	res := decodeResult(t, w)
	if res.Extended {
		t.Error("bid outside the window must not extend")
	}
}

// --- Privacy ---

func TestSubmitBid_ResponseNeverLeaksLeaderMax(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, nil)

	doBid(t, router, "test-auction", "userA", 98765)
	w := doBid(t, router, "test-auction", "userB", 130)

	if strings.Contains(w.Body.String(), "98765") {
		t.Errorf("userB's response leaks userA's hidden maximum: %s", w.Body.String())
	}
}

func TestGetAuctionBids_HidesChallengerMaximums(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, nil)

	doBid(t, router, "test-auction", "userA", 98765)
	doBid(t, router, "test-auction", "userB", 54321)

	req := httptest.NewRequest("GET", "/api/v1/auctions/test-auction/bids", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	body := w.Body.String()
	if strings.Contains(body, "98765") {
		t.Errorf("public history leaks the leader's maximum: %s", body)
	}
	if strings.Contains(body, "54321") {
		t.Errorf("public history leaks a challenger's maximum: %s", body)
	}

	var history []model.Bid
	json.Unmarshal(w.Body.Bytes(), &history)
	for _, b := range history {
		if b.Kind == model.KindChallenger {
			t.Errorf("challenger record exposed in public history: %+v", b)
		}
	}
}

// --- Instant buy ---

func TestBuyNow_ClosesAuctionSold(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, func(a *model.Auction) {
		a.InstantBuyPrice = dp(400)
	})

	body, _ := json.Marshal(bidding.BuyNowRequest{UserID: "userB"})
	req := httptest.NewRequest("POST", "/api/v1/auctions/test-auction/buy", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	a, _ := ms.GetAuction(context.Background(), "test-auction")
	if !a.IsSold || a.IsActive {
		t.Errorf("expected sold terminal state, got active=%v sold=%v", a.IsActive, a.IsSold)
	}

	// No further bids on a terminal auction.
	if w := doBid(t, router, "test-auction", "userC", 500); w.Code != http.StatusConflict {
		t.Errorf("expected 409 after buyout, got %d", w.Code)
	}
}

func TestBuyNow_WithoutInstantPriceRejected(t *testing.T) {
	_, ms, _, router := newTestEnv(t)
	seedAuction(t, ms, nil)

	body, _ := json.Marshal(bidding.BuyNowRequest{UserID: "userB"})
	req := httptest.NewRequest("POST", "/api/v1/auctions/test-auction/buy", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// --- Concurrency and price monotonicity ---

func TestSubmitBid_ConcurrentSubmissionsStaySerialized(t *testing.T) {
	svc, ms, _, _ := newTestEnv(t)
	seedAuction(t, ms, nil)

	const bidders = 20
	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Distinct maximums 110, 120, ... so every accepted bid is
			// above any possible minimum; rejections still occur when a
			// bid arrives after the price passed it.
			svc.SubmitBid(context.Background(), "test-auction",
				fmt.Sprintf("user%d", n), d(int64(110+10*n)))
		}(i)
	}
	wg.Wait()

	bids, _ := ms.ListBidsByAuction(context.Background(), "test-auction", 0)
	if len(bids) == 0 {
		t.Fatal("expected accepted bids")
	}

	// Visible-price records must be non-decreasing in creation order.
	var prev decimal.Decimal
	first := true
	for i := len(bids) - 1; i >= 0; i-- {
		b := bids[i]
		if b.Kind == model.KindChallenger {
			continue
		}
		if !first && b.Amount.LessThan(prev) {
			t.Fatalf("visible price regressed: %s after %s", b.Amount, prev)
		}
		prev = b.Amount
		first = false
	}

	// The highest maximum must lead, and the visible price can never
	// exceed it.
	top := d(int64(110 + 10*(bidders-1)))
	if prev.GreaterThan(top) {
		t.Errorf("final visible price %s exceeds the highest maximum %s", prev, top)
	}
	res, err := svc.SubmitBid(context.Background(), "test-auction", "late", top.Add(d(10)))
	if err != nil {
		t.Fatalf("late overbid should be accepted: %v", err)
	}
	if res.PreviousLeaderID != fmt.Sprintf("user%d", bidders-1) {
		t.Errorf("expected user%d to have led, got %s", bidders-1, res.PreviousLeaderID)
	}
}
