package model

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusActive    EventStatus = "active"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

type Event struct {
	ID          int         `json:"id" db:"id"`
	EventID     uuid.UUID   `json:"event_id" db:"event_id"`
	OrganizerID uuid.UUID   `json:"organizer_id" db:"organizer_id"`
	Title       string      `json:"title" db:"title"`
	Description *string     `json:"description,omitempty" db:"description"`
	Location    string      `json:"location" db:"location"`
	Currency    string      `json:"currency" db:"currency"`
	Status      EventStatus `json:"status" db:"status"`
	StartsAt    time.Time   `json:"starts_at" db:"starts_at"`
	EndsAt      time.Time   `json:"ends_at" db:"ends_at"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// IsActive 檢查活動是否開賣中
func (e *Event) IsActive() bool {
	return e.Status == EventStatusActive
}

// HasEnded 活動結束後未使用的票券會被轉為 expired
func (e *Event) HasEnded(now time.Time) bool {
	return now.After(e.EndsAt)
}

// TicketType 票種：容量在建立時固定，reserved_count 只經由 ledger 變動
type TicketType struct {
	ID              int        `json:"id" db:"id"`
	EventID         int        `json:"event_id" db:"event_id"`
	Name            string     `json:"name" db:"name"`
	Price           float64    `json:"price" db:"price"`
	TotalCapacity   int        `json:"total_capacity" db:"total_capacity"`
	ReservedCount   int        `json:"reserved_count" db:"reserved_count"`
	MaxPerUser      int        `json:"max_per_user" db:"max_per_user"`
	HasSeating      bool       `json:"has_seating" db:"has_seating"`
	SeatingConfigID *int       `json:"seating_config_id,omitempty" db:"seating_config_id"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Remaining 剩餘可售數量
func (t *TicketType) Remaining() int {
	return t.TotalCapacity - t.ReservedCount
}

// IsAvailable 檢查票種是否可購買
func (t *TicketType) IsAvailable() bool {
	return t.DeletedAt == nil && t.Remaining() > 0
}

type CreateEventRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description *string   `json:"description"`
	Location    string    `json:"location" binding:"required"`
	Currency    string    `json:"currency"`
	StartsAt    time.Time `json:"starts_at" binding:"required"`
	EndsAt      time.Time `json:"ends_at" binding:"required"`
}

type CreateTicketTypeRequest struct {
	Name          string  `json:"name" binding:"required"`
	Price         float64 `json:"price" binding:"min=0"`
	TotalCapacity int     `json:"total_capacity" binding:"required,min=1"`
	MaxPerUser    int     `json:"max_per_user" binding:"min=0"`
	Seating       *CreateSeatingConfigRequest `json:"seating"`
}
