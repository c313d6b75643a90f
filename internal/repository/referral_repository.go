package repository

import (
	"context"
	"fmt"
	"strings"
	"ticket-engine/internal/model"
	apperrors "ticket-engine/pkg/app_errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReferralRepository interface {
	CreateInfluencer(ctx context.Context, influencer *model.Influencer) (*model.Influencer, error)
	ListInfluencers(ctx context.Context, organizerID uuid.UUID) ([]*model.Influencer, error)
	FindInfluencer(ctx context.Context, id int, organizerID uuid.UUID) (*model.Influencer, error)
	// FindActiveByCode 購買時解析 referral code，只回傳啟用中的合作者
	FindActiveByCode(ctx context.Context, code string) (*model.Influencer, error)
	UpdateInfluencer(ctx context.Context, id int, organizerID uuid.UUID, req model.UpdateInfluencerRequest) (*model.Influencer, error)
	DeleteInfluencer(ctx context.Context, id int, organizerID uuid.UUID) error
	ListAttributionsByInfluencer(ctx context.Context, influencerID int) ([]*model.ReferralAttribution, error)

	// Transaction methods
	CreateAttribution(ctx context.Context, tx pgx.Tx, attribution *model.ReferralAttribution) (*model.ReferralAttribution, error)
	AddSale(ctx context.Context, tx pgx.Tx, influencerID int, saleAmount float64) error
}

type ReferralRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewReferralRepository(pool *pgxpool.Pool) ReferralRepository {
	return &ReferralRepositoryImpl{
		pool: pool,
	}
}

const influencerColumns = `
	id, organizer_id, name, email, social_handle, bio, referral_code,
	referral_rate, total_referrals, total_revenue, is_active, created_at, updated_at
`

func scanInfluencer(row pgx.Row) (*model.Influencer, error) {
	var inf model.Influencer
	err := row.Scan(
		&inf.ID,
		&inf.OrganizerID,
		&inf.Name,
		&inf.Email,
		&inf.SocialHandle,
		&inf.Bio,
		&inf.ReferralCode,
		&inf.ReferralRate,
		&inf.TotalReferrals,
		&inf.TotalRevenue,
		&inf.IsActive,
		&inf.CreatedAt,
		&inf.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrInfluencerNotFound
		}
		return nil, err
	}
	return &inf, nil
}

func (r *ReferralRepositoryImpl) CreateInfluencer(ctx context.Context, influencer *model.Influencer) (*model.Influencer, error) {
	query := `
		INSERT INTO influencers (organizer_id, name, email, social_handle, bio, referral_code, referral_rate, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		RETURNING ` + influencerColumns

	created, err := scanInfluencer(r.pool.QueryRow(ctx, query,
		influencer.OrganizerID, influencer.Name, influencer.Email,
		influencer.SocialHandle, influencer.Bio, influencer.ReferralCode, influencer.ReferralRate,
	))
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			return nil, apperrors.ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to create influencer: %w", err)
	}

	return created, nil
}

func (r *ReferralRepositoryImpl) ListInfluencers(ctx context.Context, organizerID uuid.UUID) ([]*model.Influencer, error) {
	query := `
		SELECT ` + influencerColumns + `
		FROM influencers
		WHERE organizer_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, organizerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	influencers := make([]*model.Influencer, 0)
	for rows.Next() {
		inf, err := scanInfluencer(rows)
		if err != nil {
			return nil, err
		}
		influencers = append(influencers, inf)
	}

	return influencers, rows.Err()
}

func (r *ReferralRepositoryImpl) FindInfluencer(ctx context.Context, id int, organizerID uuid.UUID) (*model.Influencer, error) {
	query := `SELECT ` + influencerColumns + ` FROM influencers WHERE id = $1 AND organizer_id = $2`
	return scanInfluencer(r.pool.QueryRow(ctx, query, id, organizerID))
}

func (r *ReferralRepositoryImpl) FindActiveByCode(ctx context.Context, code string) (*model.Influencer, error) {
	query := `SELECT ` + influencerColumns + ` FROM influencers WHERE referral_code = $1 AND is_active = true`
	return scanInfluencer(r.pool.QueryRow(ctx, query, code))
}

func (r *ReferralRepositoryImpl) UpdateInfluencer(ctx context.Context, id int, organizerID uuid.UUID, req model.UpdateInfluencerRequest) (*model.Influencer, error) {
	sets := []string{}
	args := []interface{}{}
	argPos := 1

	appendSet := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}

	if req.Name != nil {
		appendSet("name", *req.Name)
	}
	if req.Email != nil {
		appendSet("email", *req.Email)
	}
	if req.SocialHandle != nil {
		appendSet("social_handle", *req.SocialHandle)
	}
	if req.Bio != nil {
		appendSet("bio", *req.Bio)
	}
	if req.ReferralRate != nil {
		appendSet("referral_rate", *req.ReferralRate)
	}
	if req.IsActive != nil {
		appendSet("is_active", *req.IsActive)
	}

	if len(sets) == 0 {
		return nil, apperrors.ErrInvalidInput
	}

	appendSet("updated_at", time.Now().UTC())

	args = append(args, id, organizerID)
	query := fmt.Sprintf(`
		UPDATE influencers
		SET %s
		WHERE id = $%d AND organizer_id = $%d
		RETURNING `+influencerColumns,
		strings.Join(sets, ", "), argPos, argPos+1)

	return scanInfluencer(r.pool.QueryRow(ctx, query, args...))
}

func (r *ReferralRepositoryImpl) DeleteInfluencer(ctx context.Context, id int, organizerID uuid.UUID) error {
	query := `DELETE FROM influencers WHERE id = $1 AND organizer_id = $2`

	result, err := r.pool.Exec(ctx, query, id, organizerID)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrInfluencerNotFound
	}

	return nil
}

func (r *ReferralRepositoryImpl) ListAttributionsByInfluencer(ctx context.Context, influencerID int) ([]*model.ReferralAttribution, error) {
	query := `
		SELECT id, ticket_id, influencer_id, referral_code, rate, sale_amount, created_at
		FROM referral_attributions
		WHERE influencer_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, influencerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attributions := make([]*model.ReferralAttribution, 0)
	for rows.Next() {
		var a model.ReferralAttribution
		err := rows.Scan(&a.ID, &a.TicketID, &a.InfluencerID, &a.ReferralCode, &a.Rate, &a.SaleAmount, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		attributions = append(attributions, &a)
	}

	return attributions, rows.Err()
}

// CreateAttribution 費率是成交當下的快照，寫入後不再跟著合作者費率變動
func (r *ReferralRepositoryImpl) CreateAttribution(ctx context.Context, tx pgx.Tx, attribution *model.ReferralAttribution) (*model.ReferralAttribution, error) {
	query := `
		INSERT INTO referral_attributions (ticket_id, influencer_id, referral_code, rate, sale_amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := tx.QueryRow(ctx, query,
		attribution.TicketID, attribution.InfluencerID, attribution.ReferralCode,
		attribution.Rate, attribution.SaleAmount,
	).Scan(&attribution.ID, &attribution.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create referral attribution: %w", err)
	}

	return attribution, nil
}

func (r *ReferralRepositoryImpl) AddSale(ctx context.Context, tx pgx.Tx, influencerID int, saleAmount float64) error {
	query := `
		UPDATE influencers
		SET total_referrals = total_referrals + 1,
			total_revenue = total_revenue + $1,
			updated_at = $2
		WHERE id = $3
	`

	result, err := tx.Exec(ctx, query, saleAmount, time.Now().UTC(), influencerID)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrInfluencerNotFound
	}

	return nil
}
