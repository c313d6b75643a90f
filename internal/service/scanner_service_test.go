package service

import (
	"context"
	"sync"
	"testing"
	"ticket-engine/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func purchaseValidTicket(t *testing.T, env *testEnv, ticketTypeID int) *model.Ticket {
	t.Helper()
	resp, err := env.purchase.Purchase(context.Background(), newPurchaseRequest(ticketTypeID, 1))
	if err != nil {
		t.Fatalf("Failed to purchase ticket: %v", err)
	}
	return resp.Ticket
}

func TestScanner_ValidateScan(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 1000, 10, 0)
	ticket := purchaseValidTicket(t, env, tt.ID)

	t.Run("Admits valid ticket", func(t *testing.T) {
		result, err := env.scanner.ValidateScan(ctx, event.EventID, model.ValidateScanRequest{
			QRData: ticket.QRData,
		})
		assert.NoError(t, err)
		assert.Equal(t, model.ScanResultValid, result.Result)
		assert.Equal(t, ticket.TicketCode, result.Ticket.TicketCode)
	})

	t.Run("Second scan is already_used", func(t *testing.T) {
		result, err := env.scanner.ValidateScan(ctx, event.EventID, model.ValidateScanRequest{
			QRData: ticket.QRData,
		})
		assert.NoError(t, err)
		assert.Equal(t, model.ScanResultAlreadyUsed, result.Result)
		assert.NotNil(t, result.Ticket)
	})

	t.Run("Unreadable QR is invalid, not an error", func(t *testing.T) {
		result, err := env.scanner.ValidateScan(ctx, event.EventID, model.ValidateScanRequest{
			QRData: "not json at all",
		})
		assert.NoError(t, err)
		assert.Equal(t, model.ScanResultInvalid, result.Result)
	})

	t.Run("Wrong event rejected without mutating", func(t *testing.T) {
		otherEvent := createTestEvent(t, env)
		otherType := createTestTicketType(t, env, otherEvent.ID, 1000, 10, 0)
		otherTicket := purchaseValidTicket(t, env, otherType.ID)

		result, err := env.scanner.ValidateScan(ctx, event.EventID, model.ValidateScanRequest{
			QRData: otherTicket.QRData,
		})
		assert.NoError(t, err)
		assert.Equal(t, model.ScanResultWrongEvent, result.Result)

		// 票在自己的活動還是能入場
		result, err = env.scanner.ValidateScan(ctx, otherEvent.EventID, model.ValidateScanRequest{
			QRData: otherTicket.QRData,
		})
		assert.NoError(t, err)
		assert.Equal(t, model.ScanResultValid, result.Result)
	})
}

// 兩個閘門同時掃同一張票：恰好放行一次
func TestScanner_ConcurrentExactlyOnce(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 1000, 50, 0)
	ticket := purchaseValidTicket(t, env, tt.ID)

	const scanners = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	alreadyUsed := 0

	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			result, err := env.scanner.ValidateManual(ctx, event.EventID, model.ManualValidateRequest{
				TicketCode: ticket.TicketCode,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			switch result.Result {
			case model.ScanResultValid:
				admitted++
			case model.ScanResultAlreadyUsed:
				alreadyUsed++
			default:
				t.Errorf("unexpected result: %s", result.Result)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Equal(t, scanners-1, alreadyUsed)
}

func TestScanner_MarkUsedIdempotent(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 1000, 10, 0)
	ticket := purchaseValidTicket(t, env, tt.ID)

	scannedBy := uuid.New()
	result, err := env.scanner.MarkUsed(ctx, event.EventID, model.MarkUsedRequest{
		TicketCode: ticket.TicketCode,
		ScannedBy:  &scannedBy,
	})
	assert.NoError(t, err)
	assert.Equal(t, model.ScanResultValid, result.Result)

	// 重複補登回現狀，不報錯
	result, err = env.scanner.MarkUsed(ctx, event.EventID, model.MarkUsedRequest{
		TicketCode: ticket.TicketCode,
		ScannedBy:  &scannedBy,
	})
	assert.NoError(t, err)
	assert.Equal(t, model.ScanResultAlreadyUsed, result.Result)
}

func TestScanner_VerifyAccess(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	code, err := env.events.CreateAccessCode(ctx, event.EventID, "Gate A")
	assert.NoError(t, err)

	t.Run("Valid code", func(t *testing.T) {
		resp, err := env.scanner.VerifyAccess(ctx, model.VerifyAccessRequest{
			EventID:    event.EventID,
			AccessCode: code.Code,
		})
		assert.NoError(t, err)
		assert.True(t, resp.Verified)
		assert.Equal(t, "Gate A", resp.GateLabel)
		assert.Equal(t, event.Title, resp.Event.Title)
	})

	t.Run("Unknown code", func(t *testing.T) {
		resp, err := env.scanner.VerifyAccess(ctx, model.VerifyAccessRequest{
			EventID:    event.EventID,
			AccessCode: "SCAN-NOPE1234",
		})
		assert.NoError(t, err)
		assert.False(t, resp.Verified)
	})
}

func TestScanner_Stats(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 1000, 10, 0)

	first := purchaseValidTicket(t, env, tt.ID)
	purchaseValidTicket(t, env, tt.ID)

	_, err := env.scanner.ValidateManual(ctx, event.EventID, model.ManualValidateRequest{
		TicketCode: first.TicketCode,
	})
	assert.NoError(t, err)

	stats, err := env.scanner.Stats(ctx, event.EventID)
	assert.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTickets)
	assert.Equal(t, 1, stats.Scanned)
	assert.Equal(t, 1, stats.Remaining)
	assert.Equal(t, 50.0, stats.ScanRate)
}
