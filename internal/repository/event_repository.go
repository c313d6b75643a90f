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

type EventRepository interface {
	Create(ctx context.Context, event *model.Event) (*model.Event, error)
	FindByID(ctx context.Context, id int) (*model.Event, error)
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*model.Event, error)
	UpdateStatus(ctx context.Context, id int, status model.EventStatus) error
	ListEnded(ctx context.Context, now time.Time) ([]*model.Event, error)

	// seating configs
	CreateSeatingConfig(ctx context.Context, cfg *model.SeatingConfig) (*model.SeatingConfig, error)
	FindSeatingConfig(ctx context.Context, id int) (*model.SeatingConfig, error)

	// scanner access codes
	CreateAccessCode(ctx context.Context, code *model.ScannerAccessCode) (*model.ScannerAccessCode, error)
	VerifyAccess(ctx context.Context, eventID uuid.UUID, accessCode string) (*model.VerifyAccessResponse, error)
}

type EventRepositoryImpl struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &EventRepositoryImpl{
		pool: pool,
	}
}

func (r *EventRepositoryImpl) Create(ctx context.Context, event *model.Event) (*model.Event, error) {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.Status == "" {
		event.Status = model.EventStatusDraft
	}
	if event.Currency == "" {
		event.Currency = "NGN"
	}

	query := `
		INSERT INTO events (event_id, organizer_id, title, description, location, currency, status, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, event_id, organizer_id, title, description, location, currency,
			status, starts_at, ends_at, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		event.EventID, event.OrganizerID, event.Title, event.Description,
		event.Location, event.Currency, event.Status, event.StartsAt, event.EndsAt,
	).Scan(
		&event.ID,
		&event.EventID,
		&event.OrganizerID,
		&event.Title,
		&event.Description,
		&event.Location,
		&event.Currency,
		&event.Status,
		&event.StartsAt,
		&event.EndsAt,
		&event.CreatedAt,
		&event.UpdatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	return event, nil
}

const eventColumns = `
	id, event_id, organizer_id, title, description, location, currency,
	status, starts_at, ends_at, created_at, updated_at
`

func (r *EventRepositoryImpl) scanEvent(row pgx.Row) (*model.Event, error) {
	var event model.Event
	err := row.Scan(
		&event.ID,
		&event.EventID,
		&event.OrganizerID,
		&event.Title,
		&event.Description,
		&event.Location,
		&event.Currency,
		&event.Status,
		&event.StartsAt,
		&event.EndsAt,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (r *EventRepositoryImpl) FindByID(ctx context.Context, id int) (*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	return r.scanEvent(r.pool.QueryRow(ctx, query, id))
}

func (r *EventRepositoryImpl) FindByEventID(ctx context.Context, eventID uuid.UUID) (*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE event_id = $1`
	return r.scanEvent(r.pool.QueryRow(ctx, query, eventID))
}

func (r *EventRepositoryImpl) UpdateStatus(ctx context.Context, id int, status model.EventStatus) error {
	query := `
		UPDATE events
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.pool.Exec(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrEventNotFound
	}

	return nil
}

// ListEnded 活動已結束但還是 active 的，給 worker 把剩餘 valid 票轉 expired
func (r *EventRepositoryImpl) ListEnded(ctx context.Context, now time.Time) ([]*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE status = 'active' AND ends_at < $1`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*model.Event, 0)
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

func (r *EventRepositoryImpl) CreateSeatingConfig(ctx context.Context, cfg *model.SeatingConfig) (*model.SeatingConfig, error) {
	query := `
		INSERT INTO seating_configs (event_id, kind, rows, columns, tables, table_size)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		cfg.EventID, cfg.Kind, cfg.Rows, cfg.Columns, cfg.Tables, cfg.TableSize,
	).Scan(&cfg.ID, &cfg.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create seating config: %w", err)
	}

	return cfg, nil
}

func (r *EventRepositoryImpl) FindSeatingConfig(ctx context.Context, id int) (*model.SeatingConfig, error) {
	query := `
		SELECT id, event_id, kind, rows, columns, tables, table_size, created_at
		FROM seating_configs
		WHERE id = $1
	`

	var cfg model.SeatingConfig
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&cfg.ID,
		&cfg.EventID,
		&cfg.Kind,
		&cfg.Rows,
		&cfg.Columns,
		&cfg.Tables,
		&cfg.TableSize,
		&cfg.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrEventNotFound
		}
		return nil, err
	}

	return &cfg, nil
}

func (r *EventRepositoryImpl) CreateAccessCode(ctx context.Context, code *model.ScannerAccessCode) (*model.ScannerAccessCode, error) {
	query := `
		INSERT INTO scanner_access_codes (event_id, code, gate_label, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		code.EventID, code.Code, code.GateLabel, code.IsActive, code.ExpiresAt,
	).Scan(&code.ID, &code.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create access code: %w", err)
	}

	return code, nil
}

// VerifyAccess 通行碼檢查：存在、啟用、未過期。純查詢，不改任何狀態。
func (r *EventRepositoryImpl) VerifyAccess(ctx context.Context, eventID uuid.UUID, accessCode string) (*model.VerifyAccessResponse, error) {
	query := `
		SELECT sac.gate_label, e.event_id, e.title, e.starts_at::text
		FROM scanner_access_codes sac
		JOIN events e ON sac.event_id = e.id
		WHERE sac.code = $1 AND e.event_id = $2 AND sac.is_active = true
			AND (sac.expires_at IS NULL OR sac.expires_at > NOW())
	`

	var gateLabel, title, date string
	var eventUUID uuid.UUID
	err := r.pool.QueryRow(ctx, query, accessCode, eventID).Scan(&gateLabel, &eventUUID, &title, &date)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &model.VerifyAccessResponse{Verified: false}, nil
		}
		return nil, err
	}

	return &model.VerifyAccessResponse{
		Verified: true,
		Event: &model.EventSummary{
			EventID: eventUUID,
			Title:   title,
			Date:    date,
		},
		GateLabel: gateLabel,
	}, nil
}
