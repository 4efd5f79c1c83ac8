package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/leadex/auction-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const auctionColumns = `id, seller_id, title, description,
       start_price::TEXT, min_increment::TEXT,
       reserve_price::TEXT, instant_buy_price::TEXT,
       anti_snipe_seconds, starts_at, ends_at,
       is_active, is_sold, version, created_at`

func (s *PostgresStore) CreateAuction(ctx context.Context, a *model.Auction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO auctions (id, seller_id, title, description,
		        start_price, min_increment, reserve_price, instant_buy_price,
		        anti_snipe_seconds, starts_at, ends_at,
		        is_active, is_sold, version, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC,
		         $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.SellerID, a.Title, a.Description,
		a.StartPrice.String(), a.MinIncrement.String(),
		optDecimalString(a.ReservePrice), optDecimalString(a.InstantBuyPrice),
		a.AntiSnipeSeconds, a.StartsAt, a.EndsAt,
		a.IsActive, a.IsSold, a.Version, a.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetAuction(ctx context.Context, id string) (*model.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)

	a, err := scanAuction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get auction %s: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) ListAuctions(ctx context.Context) ([]model.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionColumns+` FROM auctions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAuctions(rows)
}

func (s *PostgresStore) ListExpiredActive(ctx context.Context, now time.Time) ([]model.Auction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+auctionColumns+`
		 FROM auctions
		 WHERE is_active AND NOT is_sold AND ends_at <= $1
		 ORDER BY ends_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAuctions(rows)
}

// UpdateAuctionState applies a compare-and-swap on the version column so a
// concurrent writer can never silently overwrite a state transition.
func (s *PostgresStore) UpdateAuctionState(ctx context.Context, id string, upd model.AuctionUpdate) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE auctions
		 SET ends_at   = COALESCE($3, ends_at),
		     is_active = COALESCE($4, is_active),
		     is_sold   = COALESCE($5, is_sold),
		     version   = version + 1
		 WHERE id = $1 AND version = $2`,
		id, upd.ExpectedVersion, upd.EndsAt, upd.IsActive, upd.IsSold,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the auction vanished or another writer bumped the version
		// first; distinguish so callers can retry version races.
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrAuctionNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

// InsertBids writes all records in one transaction so an auto-bid pair is
// never half-persisted.
func (s *PostgresStore) InsertBids(ctx context.Context, bids ...*model.Bid) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, b := range bids {
		if _, err := tx.Exec(ctx,
			`INSERT INTO bids (id, auction_id, user_id, max_bid, amount, kind, created_at)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6, $7)`,
			b.ID, b.AuctionID, b.UserID,
			b.MaxBid.String(), b.Amount.String(), b.Kind, b.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListBidsByAuction(ctx context.Context, auctionID string, limit int) ([]model.Bid, error) {
	// seq is the append order of the ledger; it breaks ties when two
	// records share a timestamp (a bid and its proxy counter-bid).
	q := `SELECT id, auction_id, user_id, max_bid::TEXT, amount::TEXT, kind, created_at
	      FROM bids WHERE auction_id = $1 ORDER BY seq DESC`
	args := []any{auctionID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBids(rows)
}

func (s *PostgresStore) ListBidsByUser(ctx context.Context, userID string) ([]model.Bid, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, auction_id, user_id, max_bid::TEXT, amount::TEXT, kind, created_at
		 FROM bids WHERE user_id = $1 ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBids(rows)
}

// --- Row scanning helpers ---

func scanAuction(row pgx.Row) (*model.Auction, error) {
	var a model.Auction
	var startPrice, minIncrement string
	var reserve, instant *string

	err := row.Scan(&a.ID, &a.SellerID, &a.Title, &a.Description,
		&startPrice, &minIncrement, &reserve, &instant,
		&a.AntiSnipeSeconds, &a.StartsAt, &a.EndsAt,
		&a.IsActive, &a.IsSold, &a.Version, &a.CreatedAt)
	if err != nil {
		return nil, err
	}

	a.StartPrice, _ = decimal.NewFromString(startPrice)
	a.MinIncrement, _ = decimal.NewFromString(minIncrement)
	a.ReservePrice = optDecimal(reserve)
	a.InstantBuyPrice = optDecimal(instant)

	return &a, nil
}

func collectAuctions(rows pgx.Rows) ([]model.Auction, error) {
	var auctions []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, *a)
	}
	return auctions, rows.Err()
}

func scanBids(rows pgx.Rows) ([]model.Bid, error) {
	var bids []model.Bid
	for rows.Next() {
		var b model.Bid
		var maxBid, amount string

		if err := rows.Scan(&b.ID, &b.AuctionID, &b.UserID,
			&maxBid, &amount, &b.Kind, &b.CreatedAt); err != nil {
			return nil, err
		}

		b.MaxBid, _ = decimal.NewFromString(maxBid)
		b.Amount, _ = decimal.NewFromString(amount)

		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func optDecimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func optDecimal(s *string) *decimal.Decimal {
	if s == nil {
		return nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil
	}
	return &d
}
