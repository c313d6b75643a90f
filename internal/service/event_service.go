package service

import (
	"context"
	"strings"
	"ticket-engine/internal/cache"
	"ticket-engine/internal/model"
	"ticket-engine/internal/repository"
	apperrors "ticket-engine/pkg/app_errors"
	"ticket-engine/pkg/logger"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EventService interface {
	Create(ctx context.Context, organizerID uuid.UUID, req model.CreateEventRequest) (*model.Event, error)
	Get(ctx context.Context, eventID uuid.UUID) (*model.Event, error)
	// Activate 開賣：所有票種與座位表先預熱進 redis 帳本
	Activate(ctx context.Context, eventID uuid.UUID) (*model.Event, error)
	// AddTicketType 建立票種，帶座位表的票種容量以座位數為準
	AddTicketType(ctx context.Context, eventID uuid.UUID, req model.CreateTicketTypeRequest) (*model.TicketType, error)
	ListTicketTypes(ctx context.Context, eventID uuid.UUID) ([]*model.TicketType, error)
	// SeatMap 座位表現況，給前端選位用
	SeatMap(ctx context.Context, eventID uuid.UUID, ticketTypeID int) ([]*model.Seat, error)
	// CreateAccessCode 發掃描員通行碼
	CreateAccessCode(ctx context.Context, eventID uuid.UUID, gateLabel string) (*model.ScannerAccessCode, error)
}

type EventServiceImpl struct {
	eventRepo      repository.EventRepository
	ticketTypeRepo repository.TicketTypeRepository
	seatRepo       repository.SeatRepository
	promoRepo      repository.PromoRepository
	capacityLedger cache.CapacityLedger
	seatLedger     cache.SeatLedger
	promoLedger    cache.PromoLedger
}

func NewEventService(
	eventRepo repository.EventRepository,
	ticketTypeRepo repository.TicketTypeRepository,
	seatRepo repository.SeatRepository,
	promoRepo repository.PromoRepository,
	capacityLedger cache.CapacityLedger,
	seatLedger cache.SeatLedger,
	promoLedger cache.PromoLedger,
) EventService {
	return &EventServiceImpl{
		eventRepo:      eventRepo,
		ticketTypeRepo: ticketTypeRepo,
		seatRepo:       seatRepo,
		promoRepo:      promoRepo,
		capacityLedger: capacityLedger,
		seatLedger:     seatLedger,
		promoLedger:    promoLedger,
	}
}

func (s *EventServiceImpl) Create(ctx context.Context, organizerID uuid.UUID, req model.CreateEventRequest) (*model.Event, error) {
	if !req.EndsAt.After(req.StartsAt) {
		return nil, apperrors.ErrInvalidInput
	}

	currency := req.Currency
	if currency == "" {
		currency = "NGN"
	}

	event := &model.Event{
		EventID:     uuid.New(),
		OrganizerID: organizerID,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Currency:    currency,
		Status:      model.EventStatusDraft,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
	}

	return s.eventRepo.Create(ctx, event)
}

func (s *EventServiceImpl) Get(ctx context.Context, eventID uuid.UUID) (*model.Event, error) {
	return s.eventRepo.FindByEventID(ctx, eventID)
}

func (s *EventServiceImpl) Activate(ctx context.Context, eventID uuid.UUID) (*model.Event, error) {
	event, err := s.eventRepo.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status != model.EventStatusDraft {
		return nil, apperrors.ErrInvalidInput
	}

	// 開賣前把全部帳本預熱好，避免第一波請求打到冷帳本
	if err := s.warmEvent(ctx, event); err != nil {
		return nil, err
	}

	if err := s.eventRepo.UpdateStatus(ctx, event.ID, model.EventStatusActive); err != nil {
		return nil, err
	}
	event.Status = model.EventStatusActive
	return event, nil
}

func (s *EventServiceImpl) warmEvent(ctx context.Context, event *model.Event) error {
	log := logger.WithComponent("event")

	ticketTypes, err := s.ticketTypeRepo.ListByEvent(ctx, event.ID)
	if err != nil {
		return err
	}
	for _, tt := range ticketTypes {
		if err := s.capacityLedger.WarmUp(ctx, tt.ID, tt.TotalCapacity, tt.ReservedCount); err != nil {
			return err
		}
		if tt.HasSeating && tt.SeatingConfigID != nil {
			cfg, err := s.eventRepo.FindSeatingConfig(ctx, *tt.SeatingConfigID)
			if err != nil {
				return err
			}
			if err := s.seatLedger.WarmUp(ctx, cfg.ID, cfg.SeatLabels()); err != nil {
				return err
			}
		}
	}

	promos, err := s.promoRepo.ListByEvent(ctx, event.ID)
	if err != nil {
		return err
	}
	for _, promo := range promos {
		startsAt := timeOrZero(promo.StartsAt)
		expiresAt := timeOrZero(promo.ExpiresAt)
		if err := s.promoLedger.WarmUp(ctx, promo.ID, promo.IsActive, startsAt, expiresAt, promo.UsageLimit, promo.UsedCount); err != nil {
			return err
		}
	}

	log.Info("event ledgers warmed",
		zap.Int("event_id", event.ID),
		zap.Int("ticket_types", len(ticketTypes)),
		zap.Int("promos", len(promos)))
	return nil
}

func (s *EventServiceImpl) AddTicketType(ctx context.Context, eventID uuid.UUID, req model.CreateTicketTypeRequest) (*model.TicketType, error) {
	event, err := s.eventRepo.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	ticketType := &model.TicketType{
		EventID:       event.ID,
		Name:          req.Name,
		Price:         req.Price,
		TotalCapacity: req.TotalCapacity,
		MaxPerUser:    req.MaxPerUser,
	}

	if req.Seating != nil {
		cfg := &model.SeatingConfig{
			EventID:   event.ID,
			Kind:      req.Seating.Kind,
			Rows:      req.Seating.Rows,
			Columns:   req.Seating.Columns,
			Tables:    req.Seating.Tables,
			TableSize: req.Seating.TableSize,
		}
		if cfg.Capacity() == 0 {
			return nil, apperrors.ErrInvalidInput
		}

		created, err := s.eventRepo.CreateSeatingConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if _, err := s.seatRepo.CreateForConfig(ctx, created); err != nil {
			return nil, err
		}

		ticketType.HasSeating = true
		ticketType.SeatingConfigID = &created.ID
		// 座位表的容量就是座位數，兩邊不會對不上
		ticketType.TotalCapacity = created.Capacity()
	}

	return s.ticketTypeRepo.Create(ctx, ticketType)
}

func (s *EventServiceImpl) ListTicketTypes(ctx context.Context, eventID uuid.UUID) ([]*model.TicketType, error) {
	event, err := s.eventRepo.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.ticketTypeRepo.ListByEvent(ctx, event.ID)
}

func (s *EventServiceImpl) SeatMap(ctx context.Context, eventID uuid.UUID, ticketTypeID int) ([]*model.Seat, error) {
	ticketType, err := s.ticketTypeRepo.FindByID(ctx, ticketTypeID)
	if err != nil {
		return nil, err
	}
	if !ticketType.HasSeating || ticketType.SeatingConfigID == nil {
		return nil, apperrors.ErrInvalidInput
	}

	return s.seatRepo.ListByConfig(ctx, *ticketType.SeatingConfigID)
}

func (s *EventServiceImpl) CreateAccessCode(ctx context.Context, eventID uuid.UUID, gateLabel string) (*model.ScannerAccessCode, error) {
	event, err := s.eventRepo.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	code := &model.ScannerAccessCode{
		EventID:   event.ID,
		Code:      newAccessCode(),
		GateLabel: gateLabel,
		IsActive:  true,
	}

	return s.eventRepo.CreateAccessCode(ctx, code)
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// newAccessCode 掃描員通行碼：SCAN- 加上 uuid 前 8 碼，夠短能口頭唸出來
func newAccessCode() string {
	return "SCAN-" + strings.ToUpper(uuid.New().String()[:8])
}
