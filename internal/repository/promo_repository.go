package repository

import (
	"context"
	"fmt"
	"strings"
	"ticket-engine/internal/model"
	apperrors "ticket-engine/pkg/app_errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PromoRepository interface {
	Create(ctx context.Context, promo *model.PromoCode) (*model.PromoCode, error)
	ListByEvent(ctx context.Context, eventID int) ([]*model.PromoCode, error)
	FindByCode(ctx context.Context, eventID int, code string) (*model.PromoCode, error)
	// FindValid 購買前預檢：啟用、在有效期內、額度未用完。純查詢。
	FindValid(ctx context.Context, eventID int, code string) (*model.PromoCode, error)
	ToggleActive(ctx context.Context, id int, eventID int) (*model.PromoCode, error)
	Delete(ctx context.Context, id int, eventID int) error

	// Transaction methods
	IncrementUsage(ctx context.Context, tx pgx.Tx, id int) error
	DecrementUsage(ctx context.Context, tx pgx.Tx, id int) error
}

type PromoRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewPromoRepository(pool *pgxpool.Pool) PromoRepository {
	return &PromoRepositoryImpl{
		pool: pool,
	}
}

const promoColumns = `
	id, event_id, code, discount_percentage, usage_limit, used_count,
	is_active, starts_at, expires_at, created_at, updated_at
`

func (r *PromoRepositoryImpl) scanPromo(row pgx.Row) (*model.PromoCode, error) {
	var promo model.PromoCode
	err := row.Scan(
		&promo.ID,
		&promo.EventID,
		&promo.Code,
		&promo.DiscountPercentage,
		&promo.UsageLimit,
		&promo.UsedCount,
		&promo.IsActive,
		&promo.StartsAt,
		&promo.ExpiresAt,
		&promo.CreatedAt,
		&promo.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrPromoNotFound
		}
		return nil, err
	}
	return &promo, nil
}

func (r *PromoRepositoryImpl) Create(ctx context.Context, promo *model.PromoCode) (*model.PromoCode, error) {
	query := `
		INSERT INTO promo_codes (event_id, code, discount_percentage, usage_limit, is_active, starts_at, expires_at)
		VALUES ($1, $2, $3, $4, true, $5, $6)
		RETURNING ` + promoColumns

	created, err := r.scanPromo(r.pool.QueryRow(ctx, query,
		promo.EventID, promo.Code, promo.DiscountPercentage,
		promo.UsageLimit, promo.StartsAt, promo.ExpiresAt,
	))
	if err != nil {
		// unique (event_id, code)
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			return nil, apperrors.ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to create promo code: %w", err)
	}

	return created, nil
}

func (r *PromoRepositoryImpl) ListByEvent(ctx context.Context, eventID int) ([]*model.PromoCode, error) {
	query := `
		SELECT ` + promoColumns + `
		FROM promo_codes
		WHERE event_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promos := make([]*model.PromoCode, 0)
	for rows.Next() {
		promo, err := r.scanPromo(rows)
		if err != nil {
			return nil, err
		}
		promos = append(promos, promo)
	}

	return promos, rows.Err()
}

func (r *PromoRepositoryImpl) FindByCode(ctx context.Context, eventID int, code string) (*model.PromoCode, error) {
	query := `
		SELECT ` + promoColumns + `
		FROM promo_codes
		WHERE event_id = $1 AND code = $2
	`
	return r.scanPromo(r.pool.QueryRow(ctx, query, eventID, code))
}

func (r *PromoRepositoryImpl) FindValid(ctx context.Context, eventID int, code string) (*model.PromoCode, error) {
	query := `
		SELECT ` + promoColumns + `
		FROM promo_codes
		WHERE event_id = $1 AND code = $2 AND is_active = true
			AND (starts_at IS NULL OR starts_at <= NOW())
			AND (expires_at IS NULL OR expires_at > NOW())
			AND (usage_limit = 0 OR used_count < usage_limit)
	`
	return r.scanPromo(r.pool.QueryRow(ctx, query, eventID, code))
}

func (r *PromoRepositoryImpl) ToggleActive(ctx context.Context, id int, eventID int) (*model.PromoCode, error) {
	query := `
		UPDATE promo_codes
		SET is_active = NOT is_active, updated_at = $1
		WHERE id = $2 AND event_id = $3
		RETURNING ` + promoColumns

	return r.scanPromo(r.pool.QueryRow(ctx, query, time.Now().UTC(), id, eventID))
}

func (r *PromoRepositoryImpl) Delete(ctx context.Context, id int, eventID int) error {
	query := `DELETE FROM promo_codes WHERE id = $1 AND event_id = $2`

	result, err := r.pool.Exec(ctx, query, id, eventID)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrPromoNotFound
	}

	return nil
}

// IncrementUsage 條件式 UPDATE，額度用完時 RowsAffected = 0
func (r *PromoRepositoryImpl) IncrementUsage(ctx context.Context, tx pgx.Tx, id int) error {
	query := `
		UPDATE promo_codes
		SET used_count = used_count + 1, updated_at = $1
		WHERE id = $2 AND is_active = true
			AND (usage_limit = 0 OR used_count < usage_limit)
	`

	result, err := tx.Exec(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrPromoLimitReached
	}

	return nil
}

func (r *PromoRepositoryImpl) DecrementUsage(ctx context.Context, tx pgx.Tx, id int) error {
	query := `
		UPDATE promo_codes
		SET used_count = used_count - 1, updated_at = $1
		WHERE id = $2 AND used_count > 0
	`

	_, err := tx.Exec(ctx, query, time.Now().UTC(), id)
	return err
}
