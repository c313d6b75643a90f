package model

import "time"

// PromoCode 折扣碼。usage_limit = 0 表示不限次數。
// used_count 只能透過 ledger 的原子操作變動。
type PromoCode struct {
	ID                 int        `json:"id" db:"id"`
	EventID            int        `json:"event_id" db:"event_id"`
	Code               string     `json:"code" db:"code"`
	DiscountPercentage float64    `json:"discount_percentage" db:"discount_percentage"`
	UsageLimit         int        `json:"usage_limit" db:"usage_limit"`
	UsedCount          int        `json:"used_count" db:"used_count"`
	IsActive           bool       `json:"is_active" db:"is_active"`
	StartsAt           *time.Time `json:"starts_at,omitempty" db:"starts_at"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// InWindow 檢查現在是否在折扣碼的有效時間內
func (p *PromoCode) InWindow(now time.Time) bool {
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
		return false
	}
	return true
}

// HasBudget usage_limit 為 0 時不限次數
func (p *PromoCode) HasBudget() bool {
	return p.UsageLimit == 0 || p.UsedCount < p.UsageLimit
}

// RemainingUses 剩餘可用次數，nil 表示不限
func (p *PromoCode) RemainingUses() *int {
	if p.UsageLimit == 0 {
		return nil
	}
	n := p.UsageLimit - p.UsedCount
	if n < 0 {
		n = 0
	}
	return &n
}

type CreatePromoRequest struct {
	Code               string     `json:"code" binding:"required"`
	DiscountPercentage float64    `json:"discount_percentage" binding:"required,gt=0,lte=100"`
	UsageLimit         int        `json:"usage_limit" binding:"min=0"`
	StartsAt           *time.Time `json:"starts_at"`
	ExpiresAt          *time.Time `json:"expires_at"`
}

// PromoValidateResponse 購買前的預檢結果，不做任何扣減
type PromoValidateResponse struct {
	Valid              bool    `json:"valid"`
	Reason             string  `json:"reason,omitempty"`
	DiscountPercentage float64 `json:"discount_percentage,omitempty"`
	RemainingUses      *int    `json:"remaining_uses,omitempty"`
}
