package worker

import (
	"context"
	"ticket-engine/internal/cache"
	"ticket-engine/internal/model"
	"ticket-engine/internal/repository"
	"ticket-engine/pkg/logger"
	"ticket-engine/pkg/monitoring"
	"time"

	"go.uber.org/zap"
)

// HoldReaper 定期把過期的 hold 退回帳本，並把已結束活動的
// valid 票標成 expired。hold 釋放是冪等的，跟請求路徑上的
// 釋放撞在一起也只會退一次。
type HoldReaper interface {
	Start(ctx context.Context)
}

type HoldReaperImpl struct {
	capacityLedger cache.CapacityLedger
	seatLedger     cache.SeatLedger
	promoLedger    cache.PromoLedger
	eventRepo      repository.EventRepository
	ticketRepo     repository.TicketRepository
	interval       time.Duration
}

func NewHoldReaper(
	capacityLedger cache.CapacityLedger,
	seatLedger cache.SeatLedger,
	promoLedger cache.PromoLedger,
	eventRepo repository.EventRepository,
	ticketRepo repository.TicketRepository,
	interval time.Duration,
) HoldReaper {
	return &HoldReaperImpl{
		capacityLedger: capacityLedger,
		seatLedger:     seatLedger,
		promoLedger:    promoLedger,
		eventRepo:      eventRepo,
		ticketRepo:     ticketRepo,
		interval:       interval,
	}
}

func (r *HoldReaperImpl) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.reapOnce(ctx)
			}
		}
	}()
}

func (r *HoldReaperImpl) reapOnce(ctx context.Context) {
	log := logger.WithComponent("hold_reaper")
	now := time.Now()

	if n, err := r.capacityLedger.ReapExpired(ctx, now); err != nil {
		log.Error("capacity reap failed", zap.Error(err))
	} else if n > 0 {
		monitoring.HoldsReaped("capacity", n)
		log.Info("reaped expired capacity holds", zap.Int("count", n))
	}

	if n, err := r.seatLedger.ReapExpired(ctx, now); err != nil {
		log.Error("seat reap failed", zap.Error(err))
	} else if n > 0 {
		monitoring.HoldsReaped("seat", n)
		log.Info("reaped expired seat holds", zap.Int("count", n))
	}

	if n, err := r.promoLedger.ReapExpired(ctx, now); err != nil {
		log.Error("promo reap failed", zap.Error(err))
	} else if n > 0 {
		monitoring.HoldsReaped("promo", n)
		log.Info("reaped expired promo redemptions", zap.Int("count", n))
	}

	r.expireEndedEvents(ctx, now, log)
}

// expireEndedEvents 活動結束後還沒掃描的 valid 票轉 expired
func (r *HoldReaperImpl) expireEndedEvents(ctx context.Context, now time.Time, log *zap.Logger) {
	events, err := r.eventRepo.ListEnded(ctx, now)
	if err != nil {
		log.Error("failed to list ended events", zap.Error(err))
		return
	}

	for _, event := range events {
		n, err := r.ticketRepo.ExpireForEvent(ctx, event.ID)
		if err != nil {
			log.Error("failed to expire tickets", zap.Int("event_id", event.ID), zap.Error(err))
			continue
		}
		if err := r.eventRepo.UpdateStatus(ctx, event.ID, model.EventStatusCompleted); err != nil {
			log.Error("failed to complete event", zap.Int("event_id", event.ID), zap.Error(err))
			continue
		}
		if n > 0 {
			log.Info("expired unused tickets for ended event",
				zap.Int("event_id", event.ID), zap.Int("count", n))
		}
	}
}
