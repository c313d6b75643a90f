package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"ticket-engine/internal/model"
	apperrors "ticket-engine/pkg/app_errors"

	"github.com/stretchr/testify/assert"
)

func TestTicketRepository_Admit(t *testing.T) {
	setupTestWithTruncate(t)
	ctx := context.Background()

	event := createTestEventRow(t)
	tt := createTestTicketTypeRow(t, event.ID, 100)
	repo := NewTicketRepository(getTestDB())

	t.Run("ValidTicketAdmitted", func(t *testing.T) {
		ticket := createTestTicketRow(t, event, tt.ID, model.TicketStatusValid)

		admitted, err := repo.Admit(ctx, ticket.TicketCode, event.ID, nil)
		assert.NoError(t, err)
		assert.Equal(t, model.TicketStatusUsed, admitted.Status)
		assert.NotNil(t, admitted.ScannedAt)
	})

	t.Run("SecondAdmitReportsAlreadyUsed", func(t *testing.T) {
		ticket := createTestTicketRow(t, event, tt.ID, model.TicketStatusValid)

		_, err := repo.Admit(ctx, ticket.TicketCode, event.ID, nil)
		assert.NoError(t, err)

		again, err := repo.Admit(ctx, ticket.TicketCode, event.ID, nil)
		assert.ErrorIs(t, err, apperrors.ErrTicketAlreadyUsed)
		// 已用票仍回傳內容，閘口端要顯示首掃時間
		assert.NotNil(t, again)
		assert.NotNil(t, again.ScannedAt)
	})

	t.Run("PendingTicketRejected", func(t *testing.T) {
		ticket := createTestTicketRow(t, event, tt.ID, model.TicketStatusPending)

		_, err := repo.Admit(ctx, ticket.TicketCode, event.ID, nil)
		assert.ErrorIs(t, err, apperrors.ErrInvalidTicketState)
	})

	t.Run("WrongEvent", func(t *testing.T) {
		other := createTestEventRow(t)
		ticket := createTestTicketRow(t, event, tt.ID, model.TicketStatusValid)

		_, err := repo.Admit(ctx, ticket.TicketCode, other.ID, nil)
		assert.ErrorIs(t, err, apperrors.ErrWrongEvent)
	})

	t.Run("UnknownCode", func(t *testing.T) {
		_, err := repo.Admit(ctx, "BUKR-NOPE", event.ID, nil)
		assert.ErrorIs(t, err, apperrors.ErrTicketNotFound)
	})
}

func TestTicketRepository_ConcurrentAdmit(t *testing.T) {
	setupTestWithTruncate(t)
	ctx := context.Background()

	event := createTestEventRow(t)
	tt := createTestTicketTypeRow(t, event.ID, 100)
	repo := NewTicketRepository(getTestDB())
	ticket := createTestTicketRow(t, event, tt.ID, model.TicketStatusValid)

	const scanners = 20
	var admitCount, usedCount int64
	var wg sync.WaitGroup
	wg.Add(scanners)

	for i := 0; i < scanners; i++ {
		go func() {
			defer wg.Done()
			_, err := repo.Admit(ctx, ticket.TicketCode, event.ID, nil)
			switch {
			case err == nil:
				atomic.AddInt64(&admitCount, 1)
			case errors.Is(err, apperrors.ErrTicketAlreadyUsed):
				atomic.AddInt64(&usedCount, 1)
			}
		}()
	}
	wg.Wait()

	// 同一張票 20 路併發，恰好一路搶到 valid -> used
	assert.Equal(t, int64(1), admitCount)
	assert.Equal(t, int64(scanners-1), usedCount)
}

func TestTicketRepository_ConfirmByPaymentRef(t *testing.T) {
	setupTestWithTruncate(t)
	ctx := context.Background()

	event := createTestEventRow(t)
	tt := createTestTicketTypeRow(t, event.ID, 100)
	repo := NewTicketRepository(getTestDB())

	ticket := createTestTicketRow(t, event, tt.ID, model.TicketStatusPending)

	confirmed, changed, err := repo.ConfirmByPaymentRef(ctx, ticket.PaymentRef)
	assert.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.TicketStatusValid, confirmed.Status)

	// 重複確認是 no-op，不回錯
	again, changed, err := repo.ConfirmByPaymentRef(ctx, ticket.PaymentRef)
	assert.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, model.TicketStatusValid, again.Status)
}

func TestTicketRepository_FindByRequestID(t *testing.T) {
	setupTestWithTruncate(t)
	ctx := context.Background()

	event := createTestEventRow(t)
	tt := createTestTicketTypeRow(t, event.ID, 100)
	repo := NewTicketRepository(getTestDB())

	ticket := createTestTicketRow(t, event, tt.ID, model.TicketStatusValid)

	found, err := repo.FindByRequestID(ctx, ticket.RequestID)
	assert.NoError(t, err)
	assert.Equal(t, ticket.TicketCode, found.TicketCode)

	_, err = repo.FindByRequestID(ctx, "no-such-request")
	assert.ErrorIs(t, err, apperrors.ErrTicketNotFound)
}

func TestTicketRepository_ExpireForEvent(t *testing.T) {
	setupTestWithTruncate(t)
	ctx := context.Background()

	event := createTestEventRow(t)
	tt := createTestTicketTypeRow(t, event.ID, 100)
	repo := NewTicketRepository(getTestDB())

	valid := createTestTicketRow(t, event, tt.ID, model.TicketStatusValid)
	used := createTestTicketRow(t, event, tt.ID, model.TicketStatusUsed)
	pending := createTestTicketRow(t, event, tt.ID, model.TicketStatusPending)

	n, err := repo.ExpireForEvent(ctx, event.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	// 只有 valid 會過期；pending 的結局由付款確認流程決定
	for _, tc := range []struct {
		code string
		want model.TicketStatus
	}{
		{valid.TicketCode, model.TicketStatusExpired},
		{used.TicketCode, model.TicketStatusUsed},
		{pending.TicketCode, model.TicketStatusPending},
	} {
		got, err := repo.FindByCode(ctx, tc.code)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, got.Status)
	}
}

func TestTicketTypeRepository_ReserveCapacity(t *testing.T) {
	setupTestWithTruncate(t)
	ctx := context.Background()

	event := createTestEventRow(t)
	tt := createTestTicketTypeRow(t, event.ID, 3)
	repo := NewTicketTypeRepository(getTestDB())

	reserve := func(qty int) error {
		tx, err := testDB.Begin(ctx)
		if err != nil {
			t.Fatalf("Failed to begin tx: %v", err)
		}
		defer tx.Rollback(ctx)
		if err := repo.ReserveCapacity(ctx, tx, tt.ID, qty); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	assert.NoError(t, reserve(2))
	// 剩 1，要 2 必須整筆失敗
	assert.ErrorIs(t, reserve(2), apperrors.ErrCapacityExhausted)
	assert.NoError(t, reserve(1))
	assert.ErrorIs(t, reserve(1), apperrors.ErrCapacityExhausted)

	refreshed, err := repo.FindByID(ctx, tt.ID)
	assert.NoError(t, err)
	assert.Equal(t, 3, refreshed.ReservedCount)
}
