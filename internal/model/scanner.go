package model

import (
	"time"

	"github.com/google/uuid"
)

// ScannerAccessCode 掃描器通行碼，驗票前必須先通過這關
type ScannerAccessCode struct {
	ID        int        `json:"id" db:"id"`
	EventID   int        `json:"event_id" db:"event_id"`
	Code      string     `json:"code" db:"code"`
	GateLabel string     `json:"gate_label" db:"gate_label"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

const (
	ScanResultValid       = "valid"
	ScanResultAlreadyUsed = "already_used"
	ScanResultInvalid     = "invalid"
	ScanResultWrongEvent  = "wrong_event"
)

type VerifyAccessRequest struct {
	EventID    uuid.UUID `json:"event_id" binding:"required"`
	AccessCode string    `json:"access_code" binding:"required"`
}

type VerifyAccessResponse struct {
	Verified  bool          `json:"verified"`
	Event     *EventSummary `json:"event,omitempty"`
	GateLabel string        `json:"gate_label,omitempty"`
}

type EventSummary struct {
	EventID uuid.UUID `json:"event_id"`
	Title   string    `json:"title"`
	Date    string    `json:"date"`
}

type ValidateScanRequest struct {
	QRData    string     `json:"qr_data" binding:"required"`
	ScannedBy *uuid.UUID `json:"scanned_by"`
}

type ManualValidateRequest struct {
	TicketCode string     `json:"ticket_code" binding:"required"`
	ScannedBy  *uuid.UUID `json:"scanned_by"`
}

type MarkUsedRequest struct {
	TicketCode string     `json:"ticket_code" binding:"required"`
	ScannedBy  *uuid.UUID `json:"scanned_by"`
}

// ScanTicketInfo 驗票結果附帶的票券摘要
type ScanTicketInfo struct {
	TicketCode string  `json:"ticket_code"`
	BuyerName  string  `json:"buyer_name"`
	Quantity   int     `json:"quantity"`
	SeatLabels []string `json:"seat_labels,omitempty"`
	ScannedAt  *string `json:"scanned_at,omitempty"`
}

func NewScanTicketInfo(t *Ticket) *ScanTicketInfo {
	if t == nil {
		return nil
	}
	info := &ScanTicketInfo{
		TicketCode: t.TicketCode,
		BuyerName:  t.BuyerName,
		Quantity:   t.Quantity,
		SeatLabels: t.SeatLabels,
	}
	if t.ScannedAt != nil {
		scanned := t.ScannedAt.UTC().Format(time.RFC3339)
		info.ScannedAt = &scanned
	}
	return info
}

type ScanResult struct {
	Result  string          `json:"result"`
	Ticket  *ScanTicketInfo `json:"ticket,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ScanStats 掃描統計，純讀取不改任何狀態
type ScanStats struct {
	TotalTickets int     `json:"total_tickets"`
	Scanned      int     `json:"scanned"`
	Remaining    int     `json:"remaining"`
	ScanRate     float64 `json:"scan_rate"`
}

// ScanRecord 稽核用掃描紀錄
type ScanRecord struct {
	ID        int        `json:"id" db:"id"`
	TicketID  *int       `json:"ticket_id,omitempty" db:"ticket_id"`
	EventID   int        `json:"event_id" db:"event_id"`
	ScannedBy *uuid.UUID `json:"scanned_by,omitempty" db:"scanned_by"`
	Result    string     `json:"result" db:"result"`
	Method    string     `json:"method" db:"method"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
