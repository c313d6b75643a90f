package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTicketStatus_CanTransitionTo(t *testing.T) {
	t.Run("Pending", func(t *testing.T) {
		assert.True(t, TicketStatusPending.CanTransitionTo(TicketStatusValid))
		assert.True(t, TicketStatusPending.CanTransitionTo(TicketStatusCancelled))
		assert.False(t, TicketStatusPending.CanTransitionTo(TicketStatusUsed))
		assert.False(t, TicketStatusPending.CanTransitionTo(TicketStatusExpired))
	})

	t.Run("Valid", func(t *testing.T) {
		assert.True(t, TicketStatusValid.CanTransitionTo(TicketStatusUsed))
		assert.True(t, TicketStatusValid.CanTransitionTo(TicketStatusCancelled))
		assert.True(t, TicketStatusValid.CanTransitionTo(TicketStatusExpired))
		assert.False(t, TicketStatusValid.CanTransitionTo(TicketStatusPending))
	})

	t.Run("Terminal states have no outgoing transitions", func(t *testing.T) {
		terminals := []TicketStatus{TicketStatusUsed, TicketStatusCancelled, TicketStatusExpired}
		targets := []TicketStatus{TicketStatusPending, TicketStatusValid, TicketStatusUsed, TicketStatusCancelled, TicketStatusExpired}
		for _, from := range terminals {
			assert.True(t, from.IsTerminal())
			for _, to := range targets {
				assert.False(t, from.CanTransitionTo(to), "%s -> %s should be rejected", from, to)
			}
		}
	})

	t.Run("Self transition rejected", func(t *testing.T) {
		assert.False(t, TicketStatusValid.CanTransitionTo(TicketStatusValid))
	})
}

func TestNewTicketCode(t *testing.T) {
	eventID := uuid.New()
	code := NewTicketCode(eventID)

	assert.True(t, strings.HasPrefix(code, "BUKR-"))
	parts := strings.SplitN(code, "-", 3)
	assert.Len(t, parts, 3)
	assert.Len(t, parts[1], 4)
	assert.Equal(t, eventID.String()[:8], parts[2])
}

func TestNewPaymentRef(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ref := NewPaymentRef(now)

	assert.True(t, strings.HasPrefix(ref, "BUKR-PAY-"))
	assert.Contains(t, ref, "1772366400")
}

func TestNewQRData(t *testing.T) {
	eventID := uuid.New()
	code := NewTicketCode(eventID)

	var payload QRPayload
	err := json.Unmarshal([]byte(NewQRData(code, eventID)), &payload)
	assert.NoError(t, err)
	assert.Equal(t, code, payload.TicketID)
	assert.Equal(t, eventID.String(), payload.EventID)
}

func TestComputeTotalPrice(t *testing.T) {
	t.Run("No discount", func(t *testing.T) {
		assert.Equal(t, 5000.0, ComputeTotalPrice(2500, 2, 0))
	})

	t.Run("Percentage discount", func(t *testing.T) {
		assert.Equal(t, 4500.0, ComputeTotalPrice(2500, 2, 10))
	})

	t.Run("Fractional unit price rounds to cents", func(t *testing.T) {
		// 19.99 × 3 × 0.85 = 50.9745 -> 50.97
		assert.Equal(t, 50.97, ComputeTotalPrice(19.99, 3, 15))
	})

	t.Run("Full discount", func(t *testing.T) {
		assert.Equal(t, 0.0, ComputeTotalPrice(2500, 2, 100))
	})

	t.Run("Avoids float drift", func(t *testing.T) {
		// 0.1 × 3 會在 float64 上出現 0.30000000000000004
		assert.Equal(t, 0.3, ComputeTotalPrice(0.1, 3, 0))
	})
}
