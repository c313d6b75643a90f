package repository

import (
	"context"
	"fmt"
	"ticket-engine/internal/model"
	apperrors "ticket-engine/pkg/app_errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TicketRepository interface {
	FindByCode(ctx context.Context, ticketCode string) (*model.Ticket, error)
	FindByRequestID(ctx context.Context, requestID string) (*model.Ticket, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*model.Ticket, error)
	ListByEvent(ctx context.Context, eventID int) ([]*model.Ticket, error)
	HasBuyerTicket(ctx context.Context, buyerID uuid.UUID, eventID int) (bool, error)

	// Admit 驗票的核心：單一條件式 UPDATE 完成 valid -> used。
	// 同一張票併發掃描時恰好一個呼叫搶到轉換。
	Admit(ctx context.Context, ticketCode string, eventID int, scannedBy *uuid.UUID) (*model.Ticket, error)
	// TransitionStatus 依狀態機做條件轉換，from 不符時回報目前狀態
	TransitionStatus(ctx context.Context, ticketCode string, from, to model.TicketStatus) (*model.Ticket, bool, error)
	ConfirmByPaymentRef(ctx context.Context, paymentRef string) (*model.Ticket, bool, error)
	Stats(ctx context.Context, eventID int) (*model.ScanStats, error)
	ExpireForEvent(ctx context.Context, eventID int) (int, error)
	InsertScanRecord(ctx context.Context, record *model.ScanRecord) error
	InsertPaymentTransaction(ctx context.Context, tx pgx.Tx, ticket *model.Ticket, status string) error

	// Transaction methods
	Create(ctx context.Context, tx pgx.Tx, ticket *model.Ticket) (*model.Ticket, error)
	FindByCodeWithLock(ctx context.Context, tx pgx.Tx, ticketCode string) (*model.Ticket, error)
	UpdateStatusWithLock(ctx context.Context, tx pgx.Tx, id int, status model.TicketStatus) (*model.Ticket, error)
}

type TicketRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &TicketRepositoryImpl{
		pool: pool,
	}
}

const ticketColumns = `
	id, ticket_code, event_id, ticket_type_id, buyer_id, buyer_name, quantity,
	seat_labels, promo_code_id, referral_code, unit_price, discount_applied,
	total_price, currency, status, qr_data, payment_ref, payment_provider,
	request_id, purchased_at, scanned_at, scanned_by, updated_at
`

func scanTicket(row pgx.Row) (*model.Ticket, error) {
	var ticket model.Ticket
	err := row.Scan(
		&ticket.ID,
		&ticket.TicketCode,
		&ticket.EventID,
		&ticket.TicketTypeID,
		&ticket.BuyerID,
		&ticket.BuyerName,
		&ticket.Quantity,
		&ticket.SeatLabels,
		&ticket.PromoCodeID,
		&ticket.ReferralCode,
		&ticket.UnitPrice,
		&ticket.DiscountApplied,
		&ticket.TotalPrice,
		&ticket.Currency,
		&ticket.Status,
		&ticket.QRData,
		&ticket.PaymentRef,
		&ticket.PaymentProvider,
		&ticket.RequestID,
		&ticket.PurchasedAt,
		&ticket.ScannedAt,
		&ticket.ScannedBy,
		&ticket.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *TicketRepositoryImpl) Create(ctx context.Context, tx pgx.Tx, ticket *model.Ticket) (*model.Ticket, error) {
	query := `
		INSERT INTO tickets (
			ticket_code, event_id, ticket_type_id, buyer_id, buyer_name, quantity,
			seat_labels, promo_code_id, referral_code, unit_price, discount_applied,
			total_price, currency, status, qr_data, payment_ref, payment_provider, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING ` + ticketColumns

	created, err := scanTicket(tx.QueryRow(ctx, query,
		ticket.TicketCode, ticket.EventID, ticket.TicketTypeID, ticket.BuyerID,
		ticket.BuyerName, ticket.Quantity, ticket.SeatLabels, ticket.PromoCodeID,
		ticket.ReferralCode, ticket.UnitPrice, ticket.DiscountApplied, ticket.TotalPrice,
		ticket.Currency, ticket.Status, ticket.QRData, ticket.PaymentRef,
		ticket.PaymentProvider, ticket.RequestID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	return created, nil
}

func (r *TicketRepositoryImpl) FindByCode(ctx context.Context, ticketCode string) (*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_code = $1`
	return scanTicket(r.pool.QueryRow(ctx, query, ticketCode))
}

func (r *TicketRepositoryImpl) FindByRequestID(ctx context.Context, requestID string) (*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE request_id = $1`
	return scanTicket(r.pool.QueryRow(ctx, query, requestID))
}

func (r *TicketRepositoryImpl) FindByCodeWithLock(ctx context.Context, tx pgx.Tx, ticketCode string) (*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_code = $1 FOR UPDATE`
	return scanTicket(tx.QueryRow(ctx, query, ticketCode))
}

func (r *TicketRepositoryImpl) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE buyer_id = $1 ORDER BY purchased_at DESC`
	return r.queryTickets(ctx, query, buyerID)
}

func (r *TicketRepositoryImpl) ListByEvent(ctx context.Context, eventID int) ([]*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE event_id = $1 ORDER BY purchased_at DESC`
	return r.queryTickets(ctx, query, eventID)
}

func (r *TicketRepositoryImpl) queryTickets(ctx context.Context, query string, args ...interface{}) ([]*model.Ticket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]*model.Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}

	return tickets, rows.Err()
}

func (r *TicketRepositoryImpl) HasBuyerTicket(ctx context.Context, buyerID uuid.UUID, eventID int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM tickets
			WHERE buyer_id = $1 AND event_id = $2 AND status NOT IN ('cancelled', 'expired')
		)
	`

	var exists bool
	err := r.pool.QueryRow(ctx, query, buyerID, eventID).Scan(&exists)
	return exists, err
}

func (r *TicketRepositoryImpl) Admit(ctx context.Context, ticketCode string, eventID int, scannedBy *uuid.UUID) (*model.Ticket, error) {
	query := `
		UPDATE tickets
		SET status = 'used', scanned_at = $1, scanned_by = $2, updated_at = $1
		WHERE ticket_code = $3 AND event_id = $4 AND status = 'valid'
		RETURNING ` + ticketColumns

	admitted, err := scanTicket(r.pool.QueryRow(ctx, query, time.Now().UTC(), scannedBy, ticketCode, eventID))
	if err == nil {
		return admitted, nil
	}
	if err != apperrors.ErrTicketNotFound {
		return nil, err
	}

	// 沒搶到轉換，讀一次現況來分類拒絕原因
	ticket, findErr := r.FindByCode(ctx, ticketCode)
	if findErr != nil {
		return nil, apperrors.ErrTicketNotFound
	}
	if ticket.EventID != eventID {
		return ticket, apperrors.ErrWrongEvent
	}
	if ticket.Status == model.TicketStatusUsed {
		return ticket, apperrors.ErrTicketAlreadyUsed
	}
	return ticket, apperrors.ErrInvalidTicketState
}

// TransitionStatus 只在目前狀態等於 from 時轉換；回傳值第二個是「這次呼叫完成了轉換」
func (r *TicketRepositoryImpl) TransitionStatus(ctx context.Context, ticketCode string, from, to model.TicketStatus) (*model.Ticket, bool, error) {
	if !from.CanTransitionTo(to) {
		return nil, false, apperrors.ErrInvalidTicketState
	}

	query := `
		UPDATE tickets
		SET status = $1, updated_at = $2
		WHERE ticket_code = $3 AND status = $4
		RETURNING ` + ticketColumns

	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, to, time.Now().UTC(), ticketCode, from))
	if err == nil {
		return ticket, true, nil
	}
	if err != apperrors.ErrTicketNotFound {
		return nil, false, err
	}

	current, findErr := r.FindByCode(ctx, ticketCode)
	if findErr != nil {
		return nil, false, findErr
	}
	return current, false, nil
}

func (r *TicketRepositoryImpl) ConfirmByPaymentRef(ctx context.Context, paymentRef string) (*model.Ticket, bool, error) {
	query := `
		UPDATE tickets
		SET status = 'valid', updated_at = $1
		WHERE payment_ref = $2 AND status = 'pending'
		RETURNING ` + ticketColumns

	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, time.Now().UTC(), paymentRef))
	if err == nil {
		return ticket, true, nil
	}
	if err != apperrors.ErrTicketNotFound {
		return nil, false, err
	}

	query = `SELECT ` + ticketColumns + ` FROM tickets WHERE payment_ref = $1`
	current, findErr := scanTicket(r.pool.QueryRow(ctx, query, paymentRef))
	if findErr != nil {
		return nil, false, findErr
	}
	return current, false, nil
}

func (r *TicketRepositoryImpl) UpdateStatusWithLock(ctx context.Context, tx pgx.Tx, id int, status model.TicketStatus) (*model.Ticket, error) {
	query := `
		UPDATE tickets
		SET status = $1, updated_at = $2
		WHERE id = $3
		RETURNING ` + ticketColumns

	ticket, err := scanTicket(tx.QueryRow(ctx, query, status, time.Now().UTC(), id))
	if err != nil {
		if err == apperrors.ErrTicketNotFound {
			return nil, apperrors.ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to update ticket status: %w", err)
	}

	return ticket, nil
}

func (r *TicketRepositoryImpl) Stats(ctx context.Context, eventID int) (*model.ScanStats, error) {
	query := `
		SELECT
			COALESCE(SUM(quantity), 0) as total,
			COALESCE(SUM(CASE WHEN status = 'used' THEN quantity ELSE 0 END), 0) as scanned,
			COALESCE(SUM(CASE WHEN status = 'valid' THEN quantity ELSE 0 END), 0) as remaining
		FROM tickets
		WHERE event_id = $1 AND status NOT IN ('cancelled', 'expired')
	`

	var stats model.ScanStats
	err := r.pool.QueryRow(ctx, query, eventID).Scan(&stats.TotalTickets, &stats.Scanned, &stats.Remaining)
	if err != nil {
		return nil, err
	}

	if stats.TotalTickets > 0 {
		stats.ScanRate = float64(stats.Scanned) / float64(stats.TotalTickets) * 100
	}

	return &stats, nil
}

// ExpireForEvent 活動結束後把還沒用的 valid 票轉 expired，回傳轉換筆數
func (r *TicketRepositoryImpl) ExpireForEvent(ctx context.Context, eventID int) (int, error) {
	query := `
		UPDATE tickets
		SET status = 'expired', updated_at = $1
		WHERE event_id = $2 AND status = 'valid'
	`

	result, err := r.pool.Exec(ctx, query, time.Now().UTC(), eventID)
	if err != nil {
		return 0, err
	}

	return int(result.RowsAffected()), nil
}

// InsertScanRecord 稽核紀錄，best effort：失敗不影響驗票結果
func (r *TicketRepositoryImpl) InsertScanRecord(ctx context.Context, record *model.ScanRecord) error {
	query := `
		INSERT INTO scan_log (ticket_id, event_id, scanned_by, result, method)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query, record.TicketID, record.EventID, record.ScannedBy, record.Result, record.Method)
	return err
}

func (r *TicketRepositoryImpl) InsertPaymentTransaction(ctx context.Context, tx pgx.Tx, ticket *model.Ticket, status string) error {
	query := `
		INSERT INTO payment_transactions (ticket_id, buyer_id, provider, provider_ref, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := tx.Exec(ctx, query,
		ticket.ID, ticket.BuyerID, ticket.PaymentProvider, ticket.PaymentRef,
		ticket.TotalPrice, ticket.Currency, status,
	)
	return err
}
