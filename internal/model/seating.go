package model

import (
	"fmt"
	"time"
)

type LayoutKind string

const (
	LayoutGrid   LayoutKind = "grid"   // 排 × 列，座位代號 A1..J10
	LayoutTables LayoutKind = "tables" // 圓桌 × 座位，座位代號 T1-S1
)

// SeatingConfig 座位表。grid 與 tables 只是同一個抽象的兩種產生規則：
// 固定、可枚舉的座位代號集合，鎖定與查找不分版型。
type SeatingConfig struct {
	ID        int        `json:"id" db:"id"`
	EventID   int        `json:"event_id" db:"event_id"`
	Kind      LayoutKind `json:"kind" db:"kind"`
	Rows      int        `json:"rows" db:"rows"`
	Columns   int        `json:"columns" db:"columns"`
	Tables    int        `json:"tables" db:"tables"`
	TableSize int        `json:"table_size" db:"table_size"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// SeatLabels 產生這份座位表全部的座位代號，順序固定
func (c *SeatingConfig) SeatLabels() []string {
	switch c.Kind {
	case LayoutGrid:
		labels := make([]string, 0, c.Rows*c.Columns)
		for r := 0; r < c.Rows; r++ {
			for col := 1; col <= c.Columns; col++ {
				labels = append(labels, fmt.Sprintf("%s%d", rowName(r), col))
			}
		}
		return labels
	case LayoutTables:
		labels := make([]string, 0, c.Tables*c.TableSize)
		for tb := 1; tb <= c.Tables; tb++ {
			for s := 1; s <= c.TableSize; s++ {
				labels = append(labels, fmt.Sprintf("T%d-S%d", tb, s))
			}
		}
		return labels
	}
	return nil
}

// Capacity 座位總數
func (c *SeatingConfig) Capacity() int {
	switch c.Kind {
	case LayoutGrid:
		return c.Rows * c.Columns
	case LayoutTables:
		return c.Tables * c.TableSize
	}
	return 0
}

// rowName 第 26 排之後用 AA、AB…，跟試算表欄位一樣
func rowName(index int) string {
	name := ""
	for index >= 0 {
		name = string(rune('A'+index%26)) + name
		index = index/26 - 1
	}
	return name
}

type SeatState string

const (
	SeatAvailable SeatState = "available"
	SeatHeld      SeatState = "held"   // 購票進行中的短暫軟鎖
	SeatBooked    SeatState = "booked" // commit 之後的永久狀態
)

type Seat struct {
	ID              int       `json:"id" db:"id"`
	SeatingConfigID int       `json:"seating_config_id" db:"seating_config_id"`
	Label           string    `json:"label" db:"label"`
	State           SeatState `json:"state" db:"state"`
	TicketID        *int      `json:"ticket_id,omitempty" db:"ticket_id"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

type CreateSeatingConfigRequest struct {
	Kind      LayoutKind `json:"kind" binding:"required,oneof=grid tables"`
	Rows      int        `json:"rows" binding:"min=0"`
	Columns   int        `json:"columns" binding:"min=0"`
	Tables    int        `json:"tables" binding:"min=0"`
	TableSize int        `json:"table_size" binding:"min=0"`
}
