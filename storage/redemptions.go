// Package storage persists terminal redemption facts. Sessions themselves
// never touch the database; only a confirmed redemption is written.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/giftbot/core/logger"
)

// Redemption is one confirmed promo delivery.
type Redemption struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	PromoHash  string    `db:"promo_hash"`
	Phone      string    `db:"phone"`
	RedeemedAt time.Time `db:"redeemed_at"`
}

// RedemptionStore writes and reads the redemptions journal.
type RedemptionStore struct {
	db *sqlx.DB
}

func NewRedemptionStore(db *sqlx.DB) *RedemptionStore {
	return &RedemptionStore{db: db}
}

// RecordRedemption appends one journal row.
func (s *RedemptionStore) RecordRedemption(ctx context.Context, userID int64, promoHash, phone string) error {
	const q = `
		INSERT INTO redemptions (user_id, promo_hash, phone)
		VALUES ($1, $2, $3)`

	start := time.Now()
	if _, err := s.db.ExecContext(ctx, q, userID, promoHash, phone); err != nil {
		return fmt.Errorf("record redemption: %w", err)
	}

	logger.Debug(ctx, "db", "redemption.recorded",
		slog.Int64("user_id", userID),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// CountRedemptions reports the journal size.
func (s *RedemptionStore) CountRedemptions(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM redemptions`); err != nil {
		return 0, fmt.Errorf("count redemptions: %w", err)
	}
	return n, nil
}

// RecentRedemptions returns the latest journal rows, newest first.
func (s *RedemptionStore) RecentRedemptions(ctx context.Context, limit int) ([]Redemption, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
		SELECT id, user_id, promo_hash, phone, redeemed_at
		FROM redemptions
		ORDER BY redeemed_at DESC
		LIMIT $1`

	var rows []Redemption
	if err := s.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("recent redemptions: %w", err)
	}
	return rows, nil
}
