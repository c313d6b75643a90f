package service

import (
	"context"
	"ticket-engine/internal/cache"
	"ticket-engine/internal/model"
	"ticket-engine/internal/payment"
	"ticket-engine/internal/queue"
	"ticket-engine/internal/repository"
	apperrors "ticket-engine/pkg/app_errors"
	"ticket-engine/pkg/logger"
	"ticket-engine/pkg/monitoring"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type PurchaseService interface {
	// Purchase 購票：容量、座位、折扣碼、歸因四件事一起成功或一起失敗
	Purchase(ctx context.Context, req model.PurchaseRequest) (*model.PurchaseResponse, error)
	// ClaimFree 免費活動領票，一人一張
	ClaimFree(ctx context.Context, req model.PurchaseRequest) (*model.Ticket, error)
	// Cancel 取消票券並釋放所有資源，冪等
	Cancel(ctx context.Context, ticketCode string) (*model.Ticket, error)
	// Finalize 由 worker 呼叫：等金流確認後把 pending 票轉 valid 或取消
	Finalize(ctx context.Context, job *queue.FinalizeJob) error
	GetTicket(ctx context.Context, ticketCode string) (*model.Ticket, error)
}

type PurchaseServiceImpl struct {
	pool           *pgxpool.Pool
	eventRepo      repository.EventRepository
	ticketTypeRepo repository.TicketTypeRepository
	seatRepo       repository.SeatRepository
	promoRepo      repository.PromoRepository
	ticketRepo     repository.TicketRepository
	referralRepo   repository.ReferralRepository
	capacityLedger cache.CapacityLedger
	seatLedger     cache.SeatLedger
	promoLedger    cache.PromoLedger
	ticketQueue    queue.TicketQueue
	providers      *payment.Registry
	holdTTL        time.Duration
	timeout        time.Duration
}

func NewPurchaseService(
	pool *pgxpool.Pool,
	eventRepo repository.EventRepository,
	ticketTypeRepo repository.TicketTypeRepository,
	seatRepo repository.SeatRepository,
	promoRepo repository.PromoRepository,
	ticketRepo repository.TicketRepository,
	referralRepo repository.ReferralRepository,
	capacityLedger cache.CapacityLedger,
	seatLedger cache.SeatLedger,
	promoLedger cache.PromoLedger,
	ticketQueue queue.TicketQueue,
	providers *payment.Registry,
	holdTTL time.Duration,
	timeout time.Duration,
) PurchaseService {
	return &PurchaseServiceImpl{
		pool:           pool,
		eventRepo:      eventRepo,
		ticketTypeRepo: ticketTypeRepo,
		seatRepo:       seatRepo,
		promoRepo:      promoRepo,
		ticketRepo:     ticketRepo,
		referralRepo:   referralRepo,
		capacityLedger: capacityLedger,
		seatLedger:     seatLedger,
		promoLedger:    promoLedger,
		ticketQueue:    ticketQueue,
		providers:      providers,
		holdTTL:        holdTTL,
		timeout:        timeout,
	}
}

func (s *PurchaseServiceImpl) Purchase(ctx context.Context, req model.PurchaseRequest) (*model.PurchaseResponse, error) {
	log := logger.WithComponent("purchase")

	// 整筆購買有時間上限，卡住的請求不該一直佔著 hold
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// 同一個 request_id 重送直接回既有票券，不會重複扣庫存
	if existing, err := s.ticketRepo.FindByRequestID(ctx, req.RequestID); err == nil {
		return s.buildResponse(ctx, existing)
	}

	provider, err := s.providers.Get(req.PaymentProvider)
	if err != nil {
		return nil, apperrors.ErrInvalidInput
	}

	// 1. 解析票種與活動
	ticketType, err := s.ticketTypeRepo.FindByID(ctx, req.TicketTypeID)
	if err != nil {
		return nil, err
	}
	event, err := s.eventRepo.FindByID(ctx, ticketType.EventID)
	if err != nil {
		return nil, err
	}
	if !event.IsActive() {
		return nil, apperrors.ErrEventNotFound
	}
	if ticketType.HasSeating {
		if len(req.SeatLabels) != req.Quantity {
			return nil, apperrors.ErrSeatCountMismatch
		}
	} else if len(req.SeatLabels) > 0 {
		return nil, apperrors.ErrInvalidInput
	}

	// 失敗時要倒序解開已拿到的 hold；釋放一律用 context.Background()，
	// 用戶斷線也不能讓 hold 漏掉
	var rollbacks []func()
	abort := func() {
		for i := len(rollbacks) - 1; i >= 0; i-- {
			rollbacks[i]()
		}
	}

	// 2. 保留容量
	capStart := time.Now()
	capToken, err := s.capacityLedger.Reserve(ctx, ticketType.ID, req.Quantity, s.holdTTL)
	if err != nil {
		monitoring.RecordPurchase("sold_out")
		return nil, err
	}
	monitoring.HoldAcquired("capacity")
	rollbacks = append(rollbacks, func() {
		s.capacityLedger.Release(context.Background(), capToken)
		monitoring.HoldSettled("capacity", "released", time.Since(capStart))
	})

	// 3. 保留座位
	var seatToken string
	if ticketType.HasSeating {
		seatStart := time.Now()
		seatToken, err = s.seatLedger.Reserve(ctx, *ticketType.SeatingConfigID, req.SeatLabels, req.Quantity, s.holdTTL)
		if err != nil {
			monitoring.RecordPurchase("seat_conflict")
			abort()
			return nil, err
		}
		monitoring.HoldAcquired("seat")
		rollbacks = append(rollbacks, func() {
			s.seatLedger.Release(context.Background(), seatToken)
			monitoring.HoldSettled("seat", "released", time.Since(seatStart))
		})
	}

	// 4. 兌換折扣碼（暫定）
	var promo *model.PromoCode
	var promoToken string
	discount := 0.0
	if req.PromoCode != nil && *req.PromoCode != "" {
		promo, err = s.promoRepo.FindByCode(ctx, event.ID, *req.PromoCode)
		if err != nil {
			abort()
			return nil, err
		}
		promoStart := time.Now()
		promoToken, err = s.promoLedger.TryRedeem(ctx, promo.ID, s.holdTTL)
		if err != nil {
			monitoring.RecordPurchase("promo_rejected")
			abort()
			return nil, err
		}
		monitoring.HoldAcquired("promo")
		rollbacks = append(rollbacks, func() {
			s.promoLedger.Rollback(context.Background(), promoToken)
			monitoring.HoldSettled("promo", "released", time.Since(promoStart))
		})
		discount = promo.DiscountPercentage
	}

	// 5. 解析 referral code，費率在這裡快照
	var influencer *model.Influencer
	if req.ReferralCode != nil && *req.ReferralCode != "" {
		influencer, err = s.referralRepo.FindActiveByCode(ctx, *req.ReferralCode)
		if err != nil && err != apperrors.ErrInfluencerNotFound {
			abort()
			return nil, err
		}
		// 無效的 referral code 不擋購買，只是不記歸因
	}

	// 6. 計算金額、組票券
	now := time.Now().UTC()
	status := model.TicketStatusPending
	if provider.Synchronous() {
		status = model.TicketStatusValid
	}
	ticket := &model.Ticket{
		TicketCode:      model.NewTicketCode(event.EventID),
		EventID:         event.ID,
		TicketTypeID:    ticketType.ID,
		BuyerID:         req.BuyerID,
		BuyerName:       req.BuyerName,
		Quantity:        req.Quantity,
		SeatLabels:      req.SeatLabels,
		ReferralCode:    req.ReferralCode,
		UnitPrice:       ticketType.Price,
		DiscountApplied: discount,
		TotalPrice:      model.ComputeTotalPrice(ticketType.Price, req.Quantity, discount),
		Currency:        event.Currency,
		Status:          status,
		PaymentRef:      model.NewPaymentRef(now),
		PaymentProvider: provider.Name(),
		RequestID:       req.RequestID,
	}
	ticket.QRData = model.NewQRData(ticket.TicketCode, event.EventID)
	if promo != nil {
		ticket.PromoCodeID = &promo.ID
	}

	// 7. 一個 transaction 做完全部持久化：任何失敗整筆回滾，
	// redis hold 留給 abort 釋放
	created, err := s.commitPurchase(ctx, ticket, ticketType, promo, influencer)
	if err != nil {
		monitoring.RecordPurchase("commit_failed")
		abort()
		return nil, err
	}

	// 持久化成功，把 redis hold 轉正。失敗只記 log：帳本回收器
	// 會把殘留 hold 當過期處理，而 DB 才是對帳基準。
	if ok, err := s.capacityLedger.Commit(ctx, capToken); err != nil || !ok {
		log.Warn("capacity hold commit mismatch", zap.String("token", capToken), zap.Error(err))
	}
	monitoring.HoldSettled("capacity", "committed", time.Since(capStart))
	if seatToken != "" {
		if ok, err := s.seatLedger.Commit(ctx, seatToken); err != nil || !ok {
			log.Warn("seat hold commit mismatch", zap.String("token", seatToken), zap.Error(err))
		}
		monitoring.HoldSettled("seat", "committed", 0)
	}
	if promoToken != "" {
		if ok, err := s.promoLedger.Commit(ctx, promoToken); err != nil || !ok {
			log.Warn("promo redemption commit mismatch", zap.String("token", promoToken), zap.Error(err))
		}
		monitoring.HoldSettled("promo", "committed", 0)
	}

	// 8. 非同步金流的票走 finalize 隊列
	if !provider.Synchronous() {
		if err := s.ticketQueue.PublishFinalize(ctx, &queue.FinalizeJob{
			TicketCode: created.TicketCode,
			PaymentRef: created.PaymentRef,
			Provider:   provider.Name(),
		}); err != nil {
			log.Error("failed to publish finalize job", zap.String("ticket_code", created.TicketCode), zap.Error(err))
			// 票已存在，finalize 丟了也能靠取消/重試補救，不回滾購買
		}
	}

	monitoring.RecordPurchase("success")
	return s.buildPaymentResponse(ctx, created, provider)
}

// commitPurchase 購買的 transaction 邊界
func (s *PurchaseServiceImpl) commitPurchase(
	ctx context.Context,
	ticket *model.Ticket,
	ticketType *model.TicketType,
	promo *model.PromoCode,
	influencer *model.Influencer,
) (*model.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// max_per_user 檢查跟容量扣減都在同一個 transaction 裡
	if ticketType.MaxPerUser > 0 {
		bought, err := s.ticketTypeRepo.GetBuyerQuantity(ctx, tx, ticketType.ID, ticket.BuyerID.String())
		if err != nil {
			return nil, err
		}
		if bought+ticket.Quantity > ticketType.MaxPerUser {
			return nil, apperrors.ErrExceedsMaxPerUser
		}
	}

	if err := s.ticketTypeRepo.ReserveCapacity(ctx, tx, ticketType.ID, ticket.Quantity); err != nil {
		return nil, err
	}

	created, err := s.ticketRepo.Create(ctx, tx, ticket)
	if err != nil {
		return nil, err
	}

	if ticketType.HasSeating {
		if err := s.seatRepo.BookSeats(ctx, tx, *ticketType.SeatingConfigID, ticket.SeatLabels, created.ID); err != nil {
			return nil, err
		}
	}

	if promo != nil {
		if err := s.promoRepo.IncrementUsage(ctx, tx, promo.ID); err != nil {
			return nil, err
		}
	}

	if influencer != nil {
		_, err := s.referralRepo.CreateAttribution(ctx, tx, &model.ReferralAttribution{
			TicketID:     created.ID,
			InfluencerID: influencer.ID,
			ReferralCode: influencer.ReferralCode,
			Rate:         influencer.ReferralRate,
			SaleAmount:   created.TotalPrice,
		})
		if err != nil {
			return nil, err
		}
		if err := s.referralRepo.AddSale(ctx, tx, influencer.ID, created.TotalPrice); err != nil {
			return nil, err
		}
	}

	if err := s.ticketRepo.InsertPaymentTransaction(ctx, tx, created, "initiated"); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return created, nil
}

func (s *PurchaseServiceImpl) buildResponse(ctx context.Context, ticket *model.Ticket) (*model.PurchaseResponse, error) {
	provider, err := s.providers.Get(ticket.PaymentProvider)
	if err != nil {
		return &model.PurchaseResponse{Ticket: ticket}, nil
	}
	return s.buildPaymentResponse(ctx, ticket, provider)
}

func (s *PurchaseServiceImpl) buildPaymentResponse(ctx context.Context, ticket *model.Ticket, provider payment.Provider) (*model.PurchaseResponse, error) {
	checkoutURL, err := provider.Init(ctx, ticket.PaymentRef, ticket.TotalPrice, ticket.Currency)
	if err != nil {
		return nil, apperrors.ErrPaymentFailed
	}

	return &model.PurchaseResponse{
		Ticket: ticket,
		Payment: &model.PaymentInitResponse{
			Provider:    provider.Name(),
			CheckoutURL: checkoutURL,
			Reference:   ticket.PaymentRef,
			Amount:      ticket.TotalPrice,
			Currency:    ticket.Currency,
		},
	}, nil
}

func (s *PurchaseServiceImpl) ClaimFree(ctx context.Context, req model.PurchaseRequest) (*model.Ticket, error) {
	ticketType, err := s.ticketTypeRepo.FindByID(ctx, req.TicketTypeID)
	if err != nil {
		return nil, err
	}
	if ticketType.Price > 0 {
		return nil, apperrors.ErrInvalidInput
	}
	event, err := s.eventRepo.FindByID(ctx, ticketType.EventID)
	if err != nil {
		return nil, err
	}
	if !event.IsActive() {
		return nil, apperrors.ErrEventNotFound
	}

	claimed, err := s.ticketRepo.HasBuyerTicket(ctx, req.BuyerID, event.ID)
	if err != nil {
		return nil, err
	}
	if claimed {
		return nil, apperrors.ErrAlreadyClaimed
	}

	capToken, err := s.capacityLedger.Reserve(ctx, ticketType.ID, 1, s.holdTTL)
	if err != nil {
		return nil, err
	}

	ticket := &model.Ticket{
		TicketCode:      model.NewTicketCode(event.EventID),
		EventID:         event.ID,
		TicketTypeID:    ticketType.ID,
		BuyerID:         req.BuyerID,
		BuyerName:       req.BuyerName,
		Quantity:        1,
		Currency:        event.Currency,
		Status:          model.TicketStatusValid, // 免費票不經過金流
		PaymentRef:      model.NewPaymentRef(time.Now().UTC()),
		PaymentProvider: "none",
		RequestID:       req.RequestID,
	}
	ticket.QRData = model.NewQRData(ticket.TicketCode, event.EventID)

	created, err := s.commitPurchase(ctx, ticket, ticketType, nil, nil)
	if err != nil {
		s.capacityLedger.Release(context.Background(), capToken)
		return nil, err
	}

	s.capacityLedger.Commit(ctx, capToken)
	return created, nil
}

func (s *PurchaseServiceImpl) Cancel(ctx context.Context, ticketCode string) (*model.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ticket, err := s.ticketRepo.FindByCodeWithLock(ctx, tx, ticketCode)
	if err != nil {
		return nil, err
	}

	// 已取消的票再取消一次是 no-op，重試取消訊號不會重複退資源
	if ticket.Status == model.TicketStatusCancelled {
		return ticket, nil
	}
	if !ticket.Status.CanTransitionTo(model.TicketStatusCancelled) {
		return ticket, apperrors.ErrInvalidTicketState
	}

	cancelled, err := s.ticketRepo.UpdateStatusWithLock(ctx, tx, ticket.ID, model.TicketStatusCancelled)
	if err != nil {
		return nil, err
	}

	if err := s.ticketTypeRepo.ReleaseCapacity(ctx, tx, ticket.TicketTypeID, ticket.Quantity); err != nil {
		return nil, err
	}

	if len(ticket.SeatLabels) > 0 {
		if err := s.seatRepo.ReleaseSeatsByTicket(ctx, tx, ticket.ID); err != nil {
			return nil, err
		}
	}

	if ticket.PromoCodeID != nil {
		if err := s.promoRepo.DecrementUsage(ctx, tx, *ticket.PromoCodeID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	// 同步 redis 帳本
	ticketType, err := s.ticketTypeRepo.FindByID(ctx, ticket.TicketTypeID)
	if err == nil {
		s.capacityLedger.WarmUp(context.Background(), ticketType.ID, ticketType.TotalCapacity, ticketType.ReservedCount)
		if ticketType.HasSeating && len(ticket.SeatLabels) > 0 {
			s.seatLedger.Free(context.Background(), *ticketType.SeatingConfigID, ticket.SeatLabels)
		}
	}
	if ticket.PromoCodeID != nil {
		s.promoLedger.Refund(context.Background(), *ticket.PromoCodeID)
	}

	return cancelled, nil
}

func (s *PurchaseServiceImpl) Finalize(ctx context.Context, job *queue.FinalizeJob) error {
	provider, err := s.providers.Get(job.Provider)
	if err != nil {
		return err
	}

	ok, err := provider.Confirm(ctx, job.PaymentRef)
	if err != nil {
		return err // worker 會 Nack(requeue) 重試
	}

	if ok {
		// pending -> valid；已經 valid 的重複確認是 no-op
		_, _, err := s.ticketRepo.ConfirmByPaymentRef(ctx, job.PaymentRef)
		if err != nil && err != apperrors.ErrTicketNotFound {
			return err
		}
		return nil
	}

	// 金流確認失敗：取消票券並退回全部資源
	_, err = s.Cancel(ctx, job.TicketCode)
	if err != nil && err != apperrors.ErrInvalidTicketState {
		return err
	}
	return nil
}

func (s *PurchaseServiceImpl) GetTicket(ctx context.Context, ticketCode string) (*model.Ticket, error) {
	return s.ticketRepo.FindByCode(ctx, ticketCode)
}
