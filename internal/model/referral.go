package model

import (
	"time"

	"github.com/google/uuid"
)

// Influencer 推廣合作者，referral_code 全域唯一
type Influencer struct {
	ID               int       `json:"id" db:"id"`
	OrganizerID      uuid.UUID `json:"organizer_id" db:"organizer_id"`
	Name             string    `json:"name" db:"name"`
	Email            string    `json:"email" db:"email"`
	SocialHandle     string    `json:"social_handle" db:"social_handle"`
	Bio              string    `json:"bio" db:"bio"`
	ReferralCode     string    `json:"referral_code" db:"referral_code"`
	ReferralRate     float64   `json:"referral_rate" db:"referral_rate"`
	TotalReferrals   int       `json:"total_referrals" db:"total_referrals"`
	TotalRevenue     float64   `json:"total_revenue" db:"total_revenue"`
	IsActive         bool      `json:"is_active" db:"is_active"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// ReferralAttribution 歸因紀錄。rate 是成交當下的快照，
// 之後調整合作者費率不會回溯影響歷史紀錄。
type ReferralAttribution struct {
	ID           int       `json:"id" db:"id"`
	TicketID     int       `json:"ticket_id" db:"ticket_id"`
	InfluencerID int       `json:"influencer_id" db:"influencer_id"`
	ReferralCode string    `json:"referral_code" db:"referral_code"`
	Rate         float64   `json:"rate" db:"rate"`
	SaleAmount   float64   `json:"sale_amount" db:"sale_amount"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type CreateInfluencerRequest struct {
	Name         string  `json:"name" binding:"required,min=2"`
	Email        string  `json:"email" binding:"required,email"`
	SocialHandle string  `json:"social_handle"`
	Bio          string  `json:"bio"`
	ReferralRate float64 `json:"referral_rate" binding:"min=0,max=100"`
}

type UpdateInfluencerRequest struct {
	Name         *string  `json:"name"`
	Email        *string  `json:"email"`
	SocialHandle *string  `json:"social_handle"`
	Bio          *string  `json:"bio"`
	ReferralRate *float64 `json:"referral_rate"`
	IsActive     *bool    `json:"is_active"`
}

type ReferralLinkResponse struct {
	ReferralCode string `json:"referral_code"`
	ReferralLink string `json:"referral_link"`
}
