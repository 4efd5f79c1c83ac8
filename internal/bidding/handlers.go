package bidding

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/leadex/auction-engine/internal/metrics"
	"github.com/leadex/auction-engine/internal/model"
)

// --- Request/Response types ---

// CreateAuctionRequest is the JSON body for listing a lead.
type CreateAuctionRequest struct {
	SellerID         string           `json:"seller_id"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	StartPrice       decimal.Decimal  `json:"start_price"`
	MinIncrement     decimal.Decimal  `json:"min_increment"`
	ReservePrice     *decimal.Decimal `json:"reserve_price,omitempty"`
	InstantBuyPrice  *decimal.Decimal `json:"instant_buy_price,omitempty"`
	AntiSnipeSeconds int              `json:"anti_snipe_seconds"`
	StartsAt         *time.Time       `json:"starts_at,omitempty"`
	EndsAt           time.Time        `json:"ends_at"`
}

// SubmitBidRequest is the JSON body for POST /auctions/{auctionID}/bids.
// MaxBid is the bidder's private ceiling, stored but never republished.
type SubmitBidRequest struct {
	UserID string          `json:"user_id"`
	MaxBid decimal.Decimal `json:"max_bid"`
}

// BuyNowRequest is the JSON body for POST /auctions/{auctionID}/buy.
type BuyNowRequest struct {
	UserID string `json:"user_id"`
}

// --- HTTP Handlers ---

// CreateAuction handles POST /api/v1/auctions
func (s *Service) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.SellerID == "" || req.Title == "" {
		writeError(w, "seller_id and title are required", http.StatusBadRequest)
		return
	}
	if req.StartPrice.IsNegative() {
		writeError(w, "start_price must not be negative", http.StatusBadRequest)
		return
	}
	if req.MinIncrement.LessThanOrEqual(decimal.Zero) {
		writeError(w, "min_increment must be positive", http.StatusBadRequest)
		return
	}
	if req.ReservePrice != nil && req.ReservePrice.LessThanOrEqual(decimal.Zero) {
		writeError(w, "reserve_price must be positive when set", http.StatusBadRequest)
		return
	}
	if req.InstantBuyPrice != nil && req.InstantBuyPrice.LessThanOrEqual(decimal.Zero) {
		writeError(w, "instant_buy_price must be positive when set", http.StatusBadRequest)
		return
	}
	if req.AntiSnipeSeconds < 0 {
		writeError(w, "anti_snipe_seconds must not be negative", http.StatusBadRequest)
		return
	}

	now := s.clk.Now()
	if !req.EndsAt.After(now) {
		writeError(w, "ends_at must be in the future", http.StatusBadRequest)
		return
	}
	if req.StartsAt != nil && !req.EndsAt.After(*req.StartsAt) {
		writeError(w, "ends_at must be after starts_at", http.StatusBadRequest)
		return
	}

	auction := &model.Auction{
		ID:               uuid.New().String(),
		SellerID:         req.SellerID,
		Title:            req.Title,
		Description:      req.Description,
		StartPrice:       req.StartPrice,
		MinIncrement:     req.MinIncrement,
		ReservePrice:     req.ReservePrice,
		InstantBuyPrice:  req.InstantBuyPrice,
		AntiSnipeSeconds: req.AntiSnipeSeconds,
		StartsAt:         req.StartsAt,
		EndsAt:           req.EndsAt,
		IsActive:         true,
		CreatedAt:        now,
	}

	if err := s.store.CreateAuction(r.Context(), auction); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("auction created",
		"id", auction.ID,
		"seller", auction.SellerID,
		"start_price", auction.StartPrice.String(),
		"ends_at", auction.EndsAt,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(auction)
}

// ListAuctions handles GET /api/v1/auctions
func (s *Service) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := s.store.ListAuctions(r.Context())
	if err != nil {
		writeError(w, "failed to list auctions", http.StatusInternalServerError)
		return
	}
	if auctions == nil {
		auctions = []model.Auction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(auctions)
}

// GetAuction handles GET /api/v1/auctions/{auctionID}
func (s *Service) GetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionID")

	auction, err := s.store.GetAuction(r.Context(), auctionID)
	if err != nil {
		writeError(w, "auction not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(auction)
}

// GetAuctionBids handles GET /api/v1/auctions/{auctionID}/bids
//
// Returns the public price history: leading, auto, and buyout records,
// whose Amount is a visible price. Challenger records are withheld —
// their Amount is the bidder's own hidden maximum.
func (s *Service) GetAuctionBids(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionID")

	if _, err := s.store.GetAuction(r.Context(), auctionID); err != nil {
		writeError(w, "auction not found", http.StatusNotFound)
		return
	}

	bids, err := s.store.ListBidsByAuction(r.Context(), auctionID, 0)
	if err != nil {
		writeError(w, "failed to list bids", http.StatusInternalServerError)
		return
	}

	history := make([]model.Bid, 0, len(bids))
	for _, b := range bids {
		if b.Kind == model.KindChallenger {
			continue
		}
		history = append(history, b)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(history)
}

// HandleSubmitBid handles POST /api/v1/auctions/{auctionID}/bids
func (s *Service) HandleSubmitBid(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionID")

	var req SubmitBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := s.SubmitBid(r.Context(), auctionID, req.UserID, req.MaxBid)
	metrics.BidLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleBuyNow handles POST /api/v1/auctions/{auctionID}/buy
func (s *Service) HandleBuyNow(w http.ResponseWriter, r *http.Request) {
	auctionID := chi.URLParam(r, "auctionID")

	var req BuyNowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	bid, err := s.BuyNow(r.Context(), auctionID, req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(bid)
}

// writeDomainError maps domain errors to HTTP status codes. ErrInvalidBid
// messages go out verbatim so the client can correct and resubmit.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAuctionNotFound):
		metrics.BidsRejected.WithLabelValues("not_found").Inc()
		writeError(w, "auction not found", http.StatusNotFound)
	case errors.Is(err, ErrAuctionClosed):
		metrics.BidsRejected.WithLabelValues("closed").Inc()
		writeError(w, "auction is not open for bidding", http.StatusConflict)
	case errors.Is(err, ErrInvalidBid):
		metrics.BidsRejected.WithLabelValues("invalid").Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrConflict):
		metrics.BidsRejected.WithLabelValues("conflict").Inc()
		writeError(w, "concurrent update, please retry", http.StatusConflict)
	default:
		metrics.BidsRejected.WithLabelValues("internal").Inc()
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
