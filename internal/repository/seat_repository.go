package repository

import (
	"context"
	"fmt"
	"ticket-engine/internal/model"
	apperrors "ticket-engine/pkg/app_errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SeatRepository interface {
	// CreateForConfig 依座位表產生全部座位列，建立時都是 available
	CreateForConfig(ctx context.Context, cfg *model.SeatingConfig) (int, error)
	ListByConfig(ctx context.Context, configID int) ([]*model.Seat, error)

	// Transaction methods
	BookSeats(ctx context.Context, tx pgx.Tx, configID int, labels []string, ticketID int) error
	ReleaseSeatsByTicket(ctx context.Context, tx pgx.Tx, ticketID int) error
}

type SeatRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewSeatRepository(pool *pgxpool.Pool) SeatRepository {
	return &SeatRepositoryImpl{
		pool: pool,
	}
}

func (r *SeatRepositoryImpl) CreateForConfig(ctx context.Context, cfg *model.SeatingConfig) (int, error) {
	labels := cfg.SeatLabels()
	if len(labels) == 0 {
		return 0, apperrors.ErrInvalidInput
	}

	query := `
		INSERT INTO seats (seating_config_id, label, state)
		SELECT $1, unnest($2::text[]), 'available'
	`

	result, err := r.pool.Exec(ctx, query, cfg.ID, labels)
	if err != nil {
		return 0, fmt.Errorf("failed to create seats: %w", err)
	}

	return int(result.RowsAffected()), nil
}

func (r *SeatRepositoryImpl) ListByConfig(ctx context.Context, configID int) ([]*model.Seat, error) {
	query := `
		SELECT id, seating_config_id, label, state, ticket_id, updated_at
		FROM seats
		WHERE seating_config_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seats := make([]*model.Seat, 0)
	for rows.Next() {
		var seat model.Seat
		err := rows.Scan(
			&seat.ID,
			&seat.SeatingConfigID,
			&seat.Label,
			&seat.State,
			&seat.TicketID,
			&seat.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		seats = append(seats, &seat)
	}

	return seats, rows.Err()
}

// BookSeats 把座位標為 booked 並綁定票券。已 booked 的座位不會被改寫，
// RowsAffected 不等於座位數就表示撞座，整筆 transaction 應該回滾。
func (r *SeatRepositoryImpl) BookSeats(ctx context.Context, tx pgx.Tx, configID int, labels []string, ticketID int) error {
	query := `
		UPDATE seats
		SET state = 'booked', ticket_id = $1, updated_at = $2
		WHERE seating_config_id = $3 AND label = ANY($4::text[]) AND state != 'booked'
	`

	result, err := tx.Exec(ctx, query, ticketID, time.Now().UTC(), configID, labels)
	if err != nil {
		return err
	}

	if result.RowsAffected() != int64(len(labels)) {
		return apperrors.ErrSeatConflict
	}

	return nil
}

// ReleaseSeatsByTicket 取消票券時把座位放回 available
func (r *SeatRepositoryImpl) ReleaseSeatsByTicket(ctx context.Context, tx pgx.Tx, ticketID int) error {
	query := `
		UPDATE seats
		SET state = 'available', ticket_id = NULL, updated_at = $1
		WHERE ticket_id = $2
	`

	_, err := tx.Exec(ctx, query, time.Now().UTC(), ticketID)
	return err
}
