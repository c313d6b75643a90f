package service

import (
	"context"
	"sync"
	"testing"
	"ticket-engine/internal/model"
	apperrors "ticket-engine/pkg/app_errors"

	"github.com/stretchr/testify/assert"
)

func TestPurchase_Success(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 2500, 100, 0)

	resp, err := env.purchase.Purchase(ctx, newPurchaseRequest(tt.ID, 2))
	assert.NoError(t, err)
	assert.NotNil(t, resp.Ticket)
	// mock provider 同步成功，票直接 valid
	assert.Equal(t, model.TicketStatusValid, resp.Ticket.Status)
	assert.Equal(t, 5000.0, resp.Ticket.TotalPrice)
	assert.NotEmpty(t, resp.Ticket.TicketCode)
	assert.NotEmpty(t, resp.Ticket.QRData)
	assert.Equal(t, "mock", resp.Payment.Provider)

	// durable 容量也扣掉了
	stored, err := env.ticketTypeRepo.FindByID(ctx, tt.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, stored.ReservedCount)
}

// 100 個買家搶 10 張票：恰好賣出 10 張
func TestPurchase_ConcurrentNoOversell(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 1000, 10, 0)

	concurrentBuyers := 100
	var wg sync.WaitGroup
	var mu sync.Mutex
	successCount := 0
	soldOutCount := 0

	for i := 0; i < concurrentBuyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := env.purchase.Purchase(ctx, newPurchaseRequest(tt.ID, 1))

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successCount++
			} else if err == apperrors.ErrCapacityExhausted {
				soldOutCount++
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	t.Logf("100 buyers competing for 10 tickets - Success: %d, SoldOut: %d", successCount, soldOutCount)

	assert.Equal(t, 10, successCount)
	assert.Equal(t, 90, soldOutCount)

	stored, err := env.ticketTypeRepo.FindByID(ctx, tt.ID)
	assert.NoError(t, err)
	assert.Equal(t, 10, stored.ReservedCount)

	tickets, err := env.ticketRepo.ListByEvent(ctx, event.ID)
	assert.NoError(t, err)
	assert.Len(t, tickets, 10)
}

func TestPurchase_SeatedFlow(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestSeatedTicketType(t, env, event.ID, 5000, 2, 5)

	req := newPurchaseRequest(tt.ID, 2)
	req.SeatLabels = []string{"A1", "A2"}

	resp, err := env.purchase.Purchase(ctx, req)
	assert.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, resp.Ticket.SeatLabels)

	// 同樣的座位第二個人拿不到
	again := newPurchaseRequest(tt.ID, 1)
	again.SeatLabels = []string{"A1"}
	_, err = env.purchase.Purchase(ctx, again)
	assert.Equal(t, apperrors.ErrSeatConflict, err)

	// DB 的座位狀態也是 booked
	seats, err := env.seatRepo.ListByConfig(ctx, *tt.SeatingConfigID)
	assert.NoError(t, err)
	booked := 0
	for _, seat := range seats {
		if seat.State == model.SeatBooked {
			booked++
		}
	}
	assert.Equal(t, 2, booked)
}

func TestPurchase_SeatCountMismatch(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestSeatedTicketType(t, env, event.ID, 5000, 2, 5)

	req := newPurchaseRequest(tt.ID, 3)
	req.SeatLabels = []string{"A1", "A2"}

	_, err := env.purchase.Purchase(ctx, req)
	assert.Equal(t, apperrors.ErrSeatCountMismatch, err)
}

func TestPurchase_PromoApplied(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 2000, 50, 0)
	promo := createTestPromo(t, env, event.ID, "EARLYBIRD", 25, 10)

	req := newPurchaseRequest(tt.ID, 2)
	req.PromoCode = &promo.Code

	resp, err := env.purchase.Purchase(ctx, req)
	assert.NoError(t, err)
	assert.Equal(t, 25.0, resp.Ticket.DiscountApplied)
	assert.Equal(t, 3000.0, resp.Ticket.TotalPrice)

	stored, err := env.promoRepo.FindByCode(ctx, event.ID, promo.Code)
	assert.NoError(t, err)
	assert.Equal(t, 1, stored.UsedCount)
}

// 折扣碼被拒絕時，已拿到的容量與座位 hold 要全部退回
func TestPurchase_RollbackOnPromoRejected(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestSeatedTicketType(t, env, event.ID, 5000, 2, 5)
	promo := createTestPromo(t, env, event.ID, "USEDUP", 10, 1)

	// 先把唯一的名額用掉
	first := newPurchaseRequest(tt.ID, 1)
	first.SeatLabels = []string{"B1"}
	first.PromoCode = &promo.Code
	_, err := env.purchase.Purchase(ctx, first)
	assert.NoError(t, err)

	failed := newPurchaseRequest(tt.ID, 2)
	failed.SeatLabels = []string{"A1", "A2"}
	failed.PromoCode = &promo.Code
	_, err = env.purchase.Purchase(ctx, failed)
	assert.Equal(t, apperrors.ErrPromoLimitReached, err)

	// 容量退回：只剩第一筆的 1 張
	remaining, err := env.capacityLedger.GetRemaining(ctx, tt.ID)
	assert.NoError(t, err)
	assert.Equal(t, 9, remaining)

	// 座位退回：A1 A2 要能再拿
	retry := newPurchaseRequest(tt.ID, 2)
	retry.SeatLabels = []string{"A1", "A2"}
	_, err = env.purchase.Purchase(ctx, retry)
	assert.NoError(t, err)

	// durable 層也只記了兩筆成功
	stored, err := env.ticketTypeRepo.FindByID(ctx, tt.ID)
	assert.NoError(t, err)
	assert.Equal(t, 3, stored.ReservedCount)
}

func TestPurchase_MaxPerUser(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 1000, 100, 3)

	req := newPurchaseRequest(tt.ID, 2)
	_, err := env.purchase.Purchase(ctx, req)
	assert.NoError(t, err)

	// 同一個買家再買 2 張會超過 3 張上限
	again := newPurchaseRequest(tt.ID, 2)
	again.BuyerID = req.BuyerID
	_, err = env.purchase.Purchase(ctx, again)
	assert.Equal(t, apperrors.ErrExceedsMaxPerUser, err)

	// 被擋下的購買不能吃掉容量
	remaining, err := env.capacityLedger.GetRemaining(ctx, tt.ID)
	assert.NoError(t, err)
	assert.Equal(t, 98, remaining)
}

func TestPurchase_IdempotentRetry(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 1000, 10, 0)

	req := newPurchaseRequest(tt.ID, 1)
	first, err := env.purchase.Purchase(ctx, req)
	assert.NoError(t, err)

	// 同一個 request_id 重送拿回同一張票
	second, err := env.purchase.Purchase(ctx, req)
	assert.NoError(t, err)
	assert.Equal(t, first.Ticket.TicketCode, second.Ticket.TicketCode)

	remaining, err := env.capacityLedger.GetRemaining(ctx, tt.ID)
	assert.NoError(t, err)
	assert.Equal(t, 9, remaining)
}

func TestPurchase_ReferralAttribution(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 2000, 50, 0)
	influencer := createTestInfluencer(t, env, 15)

	req := newPurchaseRequest(tt.ID, 2)
	req.ReferralCode = &influencer.ReferralCode

	resp, err := env.purchase.Purchase(ctx, req)
	assert.NoError(t, err)

	attributions, err := env.referralRepo.ListAttributionsByInfluencer(ctx, influencer.ID)
	assert.NoError(t, err)
	assert.Len(t, attributions, 1)
	assert.Equal(t, 15.0, attributions[0].Rate)
	assert.Equal(t, resp.Ticket.TotalPrice, attributions[0].SaleAmount)

	// 事後調費率不能回溯改歷史紀錄
	newRate := 30.0
	_, err = env.referralRepo.UpdateInfluencer(ctx, influencer.ID, influencer.OrganizerID,
		model.UpdateInfluencerRequest{ReferralRate: &newRate})
	assert.NoError(t, err)

	attributions, err = env.referralRepo.ListAttributionsByInfluencer(ctx, influencer.ID)
	assert.NoError(t, err)
	assert.Equal(t, 15.0, attributions[0].Rate)

	stored, err := env.referralRepo.FindInfluencer(ctx, influencer.ID, influencer.OrganizerID)
	assert.NoError(t, err)
	assert.Equal(t, 1, stored.TotalReferrals)
	assert.Equal(t, resp.Ticket.TotalPrice, stored.TotalRevenue)
}

func TestPurchase_UnknownReferralDoesNotBlock(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 1000, 10, 0)

	code := "NOSUCHCODE"
	req := newPurchaseRequest(tt.ID, 1)
	req.ReferralCode = &code

	resp, err := env.purchase.Purchase(ctx, req)
	assert.NoError(t, err)
	assert.Equal(t, model.TicketStatusValid, resp.Ticket.Status)
}

func TestCancel_RestoresResources(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestSeatedTicketType(t, env, event.ID, 5000, 2, 5)
	promo := createTestPromo(t, env, event.ID, "CANCELME", 10, 5)

	req := newPurchaseRequest(tt.ID, 2)
	req.SeatLabels = []string{"A1", "A2"}
	req.PromoCode = &promo.Code

	resp, err := env.purchase.Purchase(ctx, req)
	assert.NoError(t, err)

	cancelled, err := env.purchase.Cancel(ctx, resp.Ticket.TicketCode)
	assert.NoError(t, err)
	assert.Equal(t, model.TicketStatusCancelled, cancelled.Status)

	// durable 容量、座位、折扣碼額度全部退回
	stored, err := env.ticketTypeRepo.FindByID(ctx, tt.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, stored.ReservedCount)

	storedPromo, err := env.promoRepo.FindByCode(ctx, event.ID, promo.Code)
	assert.NoError(t, err)
	assert.Equal(t, 0, storedPromo.UsedCount)

	// 座位可以再賣
	retry := newPurchaseRequest(tt.ID, 2)
	retry.SeatLabels = []string{"A1", "A2"}
	_, err = env.purchase.Purchase(ctx, retry)
	assert.NoError(t, err)
}

func TestCancel_Idempotent(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 1000, 10, 0)

	resp, err := env.purchase.Purchase(ctx, newPurchaseRequest(tt.ID, 2))
	assert.NoError(t, err)

	_, err = env.purchase.Cancel(ctx, resp.Ticket.TicketCode)
	assert.NoError(t, err)

	// 再取消一次是 no-op，容量不能退兩次
	again, err := env.purchase.Cancel(ctx, resp.Ticket.TicketCode)
	assert.NoError(t, err)
	assert.Equal(t, model.TicketStatusCancelled, again.Status)

	stored, err := env.ticketTypeRepo.FindByID(ctx, tt.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, stored.ReservedCount)
}

func TestCancel_UsedTicketRejected(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 1000, 10, 0)

	resp, err := env.purchase.Purchase(ctx, newPurchaseRequest(tt.ID, 1))
	assert.NoError(t, err)

	_, err = env.ticketRepo.Admit(ctx, resp.Ticket.TicketCode, event.ID, nil)
	assert.NoError(t, err)

	_, err = env.purchase.Cancel(ctx, resp.Ticket.TicketCode)
	assert.Equal(t, apperrors.ErrInvalidTicketState, err)
}

func TestClaimFree(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 0, 10, 0)

	req := newPurchaseRequest(tt.ID, 1)
	ticket, err := env.purchase.ClaimFree(ctx, req)
	assert.NoError(t, err)
	assert.Equal(t, model.TicketStatusValid, ticket.Status)
	assert.Equal(t, 0.0, ticket.TotalPrice)

	// 一人一張
	again := newPurchaseRequest(tt.ID, 1)
	again.BuyerID = req.BuyerID
	_, err = env.purchase.ClaimFree(ctx, again)
	assert.Equal(t, apperrors.ErrAlreadyClaimed, err)
}

func TestClaimFree_PaidTypeRejected(t *testing.T) {
	setupTest(t)
	env := newTestEnv(t)
	ctx := context.Background()

	event := createTestEvent(t, env)
	tt := createTestTicketType(t, env, event.ID, 1000, 10, 0)

	_, err := env.purchase.ClaimFree(ctx, newPurchaseRequest(tt.ID, 1))
	assert.Equal(t, apperrors.ErrInvalidInput, err)
}
