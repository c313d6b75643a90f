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

type TicketTypeRepository interface {
	Create(ctx context.Context, ticketType *model.TicketType) (*model.TicketType, error)
	ListByEvent(ctx context.Context, eventID int) ([]*model.TicketType, error)
	FindByID(ctx context.Context, id int) (*model.TicketType, error)

	// Transaction methods
	ReserveCapacity(ctx context.Context, tx pgx.Tx, id int, quantity int) error
	ReleaseCapacity(ctx context.Context, tx pgx.Tx, id int, quantity int) error
	GetBuyerQuantity(ctx context.Context, tx pgx.Tx, ticketTypeID int, buyerID string) (int, error)
}

type TicketTypeRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewTicketTypeRepository(pool *pgxpool.Pool) TicketTypeRepository {
	return &TicketTypeRepositoryImpl{
		pool: pool,
	}
}

const ticketTypeColumns = `
	id, event_id, name, price, total_capacity, reserved_count, max_per_user,
	has_seating, seating_config_id, created_at, updated_at, deleted_at
`

func (r *TicketTypeRepositoryImpl) scanTicketType(row pgx.Row) (*model.TicketType, error) {
	var tt model.TicketType
	err := row.Scan(
		&tt.ID,
		&tt.EventID,
		&tt.Name,
		&tt.Price,
		&tt.TotalCapacity,
		&tt.ReservedCount,
		&tt.MaxPerUser,
		&tt.HasSeating,
		&tt.SeatingConfigID,
		&tt.CreatedAt,
		&tt.UpdatedAt,
		&tt.DeletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrTicketTypeNotFound
		}
		return nil, err
	}
	return &tt, nil
}

func (r *TicketTypeRepositoryImpl) Create(ctx context.Context, ticketType *model.TicketType) (*model.TicketType, error) {
	query := `
		INSERT INTO ticket_types (
			event_id, name, price, total_capacity, reserved_count,
			max_per_user, has_seating, seating_config_id)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7)
		RETURNING ` + ticketTypeColumns

	return r.scanTicketType(r.pool.QueryRow(ctx, query,
		ticketType.EventID, ticketType.Name, ticketType.Price, ticketType.TotalCapacity,
		ticketType.MaxPerUser, ticketType.HasSeating, ticketType.SeatingConfigID,
	))
}

func (r *TicketTypeRepositoryImpl) ListByEvent(ctx context.Context, eventID int) ([]*model.TicketType, error) {
	query := `
		SELECT ` + ticketTypeColumns + `
		FROM ticket_types
		WHERE event_id = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ticketTypes := make([]*model.TicketType, 0)
	for rows.Next() {
		tt, err := r.scanTicketType(rows)
		if err != nil {
			return nil, err
		}
		ticketTypes = append(ticketTypes, tt)
	}

	return ticketTypes, rows.Err()
}

func (r *TicketTypeRepositoryImpl) FindByID(ctx context.Context, id int) (*model.TicketType, error) {
	query := `
		SELECT ` + ticketTypeColumns + `
		FROM ticket_types
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.scanTicketType(r.pool.QueryRow(ctx, query, id))
}

// ReserveCapacity 條件式 UPDATE：reserved_count + qty 不能超過 total_capacity，
// RowsAffected = 0 表示容量不足
func (r *TicketTypeRepositoryImpl) ReserveCapacity(ctx context.Context, tx pgx.Tx, id int, quantity int) error {
	query := `
		UPDATE ticket_types
		SET reserved_count = reserved_count + $1, updated_at = $2
		WHERE id = $3 AND deleted_at IS NULL
			AND reserved_count + $1 <= total_capacity
	`

	result, err := tx.Exec(ctx, query, quantity, time.Now().UTC(), id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrCapacityExhausted
	}

	return nil
}

func (r *TicketTypeRepositoryImpl) ReleaseCapacity(ctx context.Context, tx pgx.Tx, id int, quantity int) error {
	query := `
		UPDATE ticket_types
		SET reserved_count = reserved_count - $1, updated_at = $2
		WHERE id = $3 AND reserved_count >= $1
	`

	result, err := tx.Exec(ctx, query, quantity, time.Now().UTC(), id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("release capacity: ticket type %d reserved_count underflow", id)
	}

	return nil
}

// GetBuyerQuantity 買家在這個票種已購（未取消）的總張數，給 max_per_user 檢查用
func (r *TicketTypeRepositoryImpl) GetBuyerQuantity(ctx context.Context, tx pgx.Tx, ticketTypeID int, buyerID string) (int, error) {
	query := `
		SELECT COALESCE(SUM(quantity), 0)
		FROM tickets
		WHERE ticket_type_id = $1 AND buyer_id = $2 AND status NOT IN ('cancelled', 'expired')
	`

	var count int
	err := tx.QueryRow(ctx, query, ticketTypeID, buyerID).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}
