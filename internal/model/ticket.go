package model

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TicketStatus 票券狀態類型
type TicketStatus string

const (
	TicketStatusPending   TicketStatus = "pending"   // 付款尚未確認
	TicketStatusValid     TicketStatus = "valid"     // 可入場
	TicketStatusUsed      TicketStatus = "used"      // 已入場
	TicketStatusCancelled TicketStatus = "cancelled" // 已取消
	TicketStatusExpired   TicketStatus = "expired"   // 活動結束未使用
)

// IsValid 驗證狀態是否有效
func (s TicketStatus) IsValid() bool {
	switch s {
	case TicketStatusPending, TicketStatusValid, TicketStatusUsed,
		TicketStatusCancelled, TicketStatusExpired:
		return true
	}
	return false
}

// IsTerminal used / cancelled / expired 不能再轉出
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketStatusUsed, TicketStatusCancelled, TicketStatusExpired:
		return true
	}
	return false
}

// CanTransitionTo 檢查是否可以轉換到目標狀態
func (s TicketStatus) CanTransitionTo(target TicketStatus) bool {
	transitions := map[TicketStatus][]TicketStatus{
		TicketStatusPending:   {TicketStatusValid, TicketStatusCancelled},
		TicketStatusValid:     {TicketStatusUsed, TicketStatusCancelled, TicketStatusExpired},
		TicketStatusUsed:      {},
		TicketStatusCancelled: {},
		TicketStatusExpired:   {},
	}

	allowed, ok := transitions[s]
	if !ok {
		return false
	}

	for _, status := range allowed {
		if status == target {
			return true
		}
	}
	return false
}

// Ticket 入場單位。只由成功 commit 的購買建立，永不實體刪除。
type Ticket struct {
	ID              int          `json:"id" db:"id"`
	TicketCode      string       `json:"ticket_code" db:"ticket_code"`
	EventID         int          `json:"event_id" db:"event_id"`
	TicketTypeID    int          `json:"ticket_type_id" db:"ticket_type_id"`
	BuyerID         uuid.UUID    `json:"buyer_id" db:"buyer_id"`
	BuyerName       string       `json:"buyer_name" db:"buyer_name"`
	Quantity        int          `json:"quantity" db:"quantity"`
	SeatLabels      []string     `json:"seat_labels,omitempty" db:"seat_labels"`
	PromoCodeID     *int         `json:"promo_code_id,omitempty" db:"promo_code_id"`
	ReferralCode    *string      `json:"referral_code,omitempty" db:"referral_code"`
	UnitPrice       float64      `json:"unit_price" db:"unit_price"`
	DiscountApplied float64      `json:"discount_applied" db:"discount_applied"`
	TotalPrice      float64      `json:"total_price" db:"total_price"`
	Currency        string       `json:"currency" db:"currency"`
	Status          TicketStatus `json:"status" db:"status"`
	QRData          string       `json:"qr_data" db:"qr_data"`
	PaymentRef      string       `json:"payment_ref" db:"payment_ref"`
	PaymentProvider string       `json:"payment_provider" db:"payment_provider"`
	RequestID       string       `json:"request_id" db:"request_id"`
	PurchasedAt     time.Time    `json:"purchased_at" db:"purchased_at"`
	ScannedAt       *time.Time   `json:"scanned_at,omitempty" db:"scanned_at"`
	ScannedBy       *uuid.UUID   `json:"scanned_by,omitempty" db:"scanned_by"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// QRPayload 掃描器讀到的 QR JSON
type QRPayload struct {
	TicketID string `json:"ticketId"`
	EventID  string `json:"eventId"`
}

// NewTicketCode 票券代號：BUKR-1234-<event uuid 前 8 碼>
func NewTicketCode(eventID uuid.UUID) string {
	return fmt.Sprintf("BUKR-%04d-%s", rand.Intn(10000), eventID.String()[:8])
}

// NewPaymentRef 付款追蹤編號：BUKR-PAY-<unix>-<hex>
func NewPaymentRef(now time.Time) string {
	return fmt.Sprintf("BUKR-PAY-%d-%06x", now.Unix(), rand.Intn(1<<24))
}

// NewQRData 產生票券的 QR payload
func NewQRData(ticketCode string, eventID uuid.UUID) string {
	data, _ := json.Marshal(QRPayload{
		TicketID: ticketCode,
		EventID:  eventID.String(),
	})
	return string(data)
}

// ComputeTotalPrice 小數運算走 decimal，避免浮點誤差：
// unit × qty × (100 − discount) / 100
func ComputeTotalPrice(unitPrice float64, quantity int, discountPercentage float64) float64 {
	unit := decimal.NewFromFloat(unitPrice)
	qty := decimal.NewFromInt(int64(quantity))
	multiplier := decimal.NewFromInt(100).
		Sub(decimal.NewFromFloat(discountPercentage)).
		Div(decimal.NewFromInt(100))
	total, _ := unit.Mul(qty).Mul(multiplier).Round(2).Float64()
	return total
}

// PurchaseRequest 購票請求。RequestID 由客戶端帶入，重送同一筆
// 請求會拿回既有票券而不是重複扣庫存。
type PurchaseRequest struct {
	RequestID       string    `json:"request_id" binding:"required"`
	BuyerID         uuid.UUID `json:"buyer_id" binding:"required"`
	BuyerName       string    `json:"buyer_name" binding:"required"`
	TicketTypeID    int       `json:"ticket_type_id" binding:"required"`
	Quantity        int       `json:"quantity" binding:"required,min=1,max=10"`
	SeatLabels      []string  `json:"seat_labels"`
	PromoCode       *string   `json:"promo_code"`
	ReferralCode    *string   `json:"referral_code"`
	PaymentProvider string    `json:"payment_provider" binding:"required,oneof=paystack stripe mock"`
}

// PaymentInitResponse 付款起始資訊，實際收款由外部供應商完成
type PaymentInitResponse struct {
	Provider    string  `json:"provider"`
	CheckoutURL string  `json:"checkout_url,omitempty"`
	Reference   string  `json:"reference"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

type PurchaseResponse struct {
	Ticket  *Ticket             `json:"ticket"`
	Payment *PaymentInitResponse `json:"payment"`
}
