package service

import (
	"context"
	"encoding/json"
	"errors"
	"ticket-engine/internal/model"
	"ticket-engine/internal/repository"
	apperrors "ticket-engine/pkg/app_errors"
	"ticket-engine/pkg/logger"
	"ticket-engine/pkg/monitoring"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ScannerService interface {
	// VerifyAccess 驗證掃描員通行碼，回傳活動摘要與閘門標籤
	VerifyAccess(ctx context.Context, req model.VerifyAccessRequest) (*model.VerifyAccessResponse, error)
	// ValidateScan 掃 QR 入場：valid 票原子轉 used，一張票只放行一次
	ValidateScan(ctx context.Context, eventID uuid.UUID, req model.ValidateScanRequest) (*model.ScanResult, error)
	// ValidateManual 手動輸入票券代號入場
	ValidateManual(ctx context.Context, eventID uuid.UUID, req model.ManualValidateRequest) (*model.ScanResult, error)
	// MarkUsed 冪等補登：票已是 used 回現狀不報錯
	MarkUsed(ctx context.Context, eventID uuid.UUID, req model.MarkUsedRequest) (*model.ScanResult, error)
	// Stats 活動入場統計
	Stats(ctx context.Context, eventID uuid.UUID) (*model.ScanStats, error)
}

type ScannerServiceImpl struct {
	eventRepo  repository.EventRepository
	ticketRepo repository.TicketRepository
}

func NewScannerService(eventRepo repository.EventRepository, ticketRepo repository.TicketRepository) ScannerService {
	return &ScannerServiceImpl{
		eventRepo:  eventRepo,
		ticketRepo: ticketRepo,
	}
}

func (s *ScannerServiceImpl) VerifyAccess(ctx context.Context, req model.VerifyAccessRequest) (*model.VerifyAccessResponse, error) {
	return s.eventRepo.VerifyAccess(ctx, req.EventID, req.AccessCode)
}

func (s *ScannerServiceImpl) ValidateScan(ctx context.Context, eventID uuid.UUID, req model.ValidateScanRequest) (*model.ScanResult, error) {
	// QR 內容是掃描器給什麼就收什麼，解析失敗一律回 invalid 而不是 500
	var payload model.QRPayload
	if err := json.Unmarshal([]byte(req.QRData), &payload); err != nil || payload.TicketID == "" {
		monitoring.RecordScan(model.ScanResultInvalid)
		return &model.ScanResult{
			Result:  model.ScanResultInvalid,
			Message: "Unreadable QR code",
		}, nil
	}

	if payload.EventID != "" && payload.EventID != eventID.String() {
		monitoring.RecordScan(model.ScanResultWrongEvent)
		return &model.ScanResult{
			Result:  model.ScanResultWrongEvent,
			Message: "Ticket belongs to a different event",
		}, nil
	}

	return s.admit(ctx, eventID, payload.TicketID, req.ScannedBy, "qr")
}

func (s *ScannerServiceImpl) ValidateManual(ctx context.Context, eventID uuid.UUID, req model.ManualValidateRequest) (*model.ScanResult, error) {
	return s.admit(ctx, eventID, req.TicketCode, req.ScannedBy, "manual")
}

func (s *ScannerServiceImpl) MarkUsed(ctx context.Context, eventID uuid.UUID, req model.MarkUsedRequest) (*model.ScanResult, error) {
	result, err := s.admit(ctx, eventID, req.TicketCode, req.ScannedBy, "mark_used")
	if err != nil {
		return nil, err
	}
	// 補登已入場的票是 no-op，回現狀
	if result.Result == model.ScanResultAlreadyUsed {
		result.Message = "Ticket already marked as used"
	}
	return result, nil
}

// admit 入場判定的單一路徑。Admit 是一條 conditional UPDATE，
// 兩個掃描器搶同一張票只有一個會成功。
func (s *ScannerServiceImpl) admit(ctx context.Context, eventUUID uuid.UUID, ticketCode string, scannedBy *uuid.UUID, method string) (*model.ScanResult, error) {
	log := logger.WithComponent("scanner")

	event, err := s.eventRepo.FindByEventID(ctx, eventUUID)
	if err != nil {
		return nil, err
	}

	ticket, err := s.ticketRepo.Admit(ctx, ticketCode, event.ID, scannedBy)

	var result *model.ScanResult
	switch {
	case err == nil:
		result = &model.ScanResult{
			Result:  model.ScanResultValid,
			Message: "Admitted",
			Ticket:  model.NewScanTicketInfo(ticket),
		}
	case errors.Is(err, apperrors.ErrTicketAlreadyUsed):
		result = &model.ScanResult{
			Result:  model.ScanResultAlreadyUsed,
			Message: "Ticket has already been used",
			Ticket:  model.NewScanTicketInfo(ticket),
		}
	case errors.Is(err, apperrors.ErrWrongEvent):
		result = &model.ScanResult{
			Result:  model.ScanResultWrongEvent,
			Message: "Ticket belongs to a different event",
		}
	case errors.Is(err, apperrors.ErrTicketNotFound):
		result = &model.ScanResult{
			Result:  model.ScanResultInvalid,
			Message: "Ticket not found",
		}
	case errors.Is(err, apperrors.ErrInvalidTicketState):
		result = &model.ScanResult{
			Result:  model.ScanResultInvalid,
			Message: "Ticket is not admissible",
			Ticket:  model.NewScanTicketInfo(ticket),
		}
	default:
		return nil, err
	}

	monitoring.RecordScan(result.Result)

	// 稽核紀錄失敗不影響入場結果
	record := &model.ScanRecord{
		EventID:   event.ID,
		Result:    result.Result,
		Method:    method,
		ScannedBy: scannedBy,
	}
	if ticket != nil {
		record.TicketID = &ticket.ID
	}
	if err := s.ticketRepo.InsertScanRecord(ctx, record); err != nil {
		log.Warn("failed to record scan", zap.String("ticket_code", ticketCode), zap.Error(err))
	}

	return result, nil
}

func (s *ScannerServiceImpl) Stats(ctx context.Context, eventID uuid.UUID) (*model.ScanStats, error) {
	event, err := s.eventRepo.FindByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.ticketRepo.Stats(ctx, event.ID)
}
