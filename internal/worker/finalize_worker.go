package worker

import (
	"context"
	"ticket-engine/internal/queue"
	"ticket-engine/internal/service"
	"ticket-engine/pkg/logger"

	"go.uber.org/zap"
)

type FinalizeWorker interface {
	// 訂閱 finalize 隊列，確認金流後把 pending 票轉正或取消
	Start(ctx context.Context) error
}

type FinalizeWorkerImpl struct {
	service service.PurchaseService
	queue   queue.TicketQueue
	workers int
}

func NewFinalizeWorker(service service.PurchaseService, queue queue.TicketQueue, workers int) FinalizeWorker {
	if workers <= 0 {
		workers = 1
	}
	return &FinalizeWorkerImpl{
		service: service,
		queue:   queue,
		workers: workers,
	}
}

func (w *FinalizeWorkerImpl) Start(ctx context.Context) error {
	msgs, err := w.queue.SubscribeFinalize(ctx)
	if err != nil {
		return err
	}

	log := logger.WithComponent("finalize_worker")

	for i := 0; i < w.workers; i++ {
		go func() {
			for msg := range msgs {
				err := w.service.Finalize(ctx, msg.Data)
				if err != nil {
					log.Warn("finalize failed, requeueing",
						zap.String("ticket_code", msg.Data.TicketCode),
						zap.Error(err))
					// 金流查詢失敗多半是暫時的，重試
					msg.Nack(true)
				} else {
					msg.Ack()
				}
			}
		}()
	}
	return nil
}
