package queue

import (
	"context"
)

// FinalizeJob 購買 commit 後送進隊列的收尾工作：
// 等外部金流確認，把 pending 票轉 valid 或取消退回
type FinalizeJob struct {
	TicketCode string `json:"ticket_code"`
	PaymentRef string `json:"payment_ref"`
	Provider   string `json:"provider"`
}

type Delivery struct {
	Data *FinalizeJob
	Ack  func()
	Nack func(requeue bool)
}

type TicketQueue interface {
	// 發送收尾工作到隊列
	PublishFinalize(ctx context.Context, job *FinalizeJob) error
	// 訂閱收尾工作隊列
	SubscribeFinalize(ctx context.Context) (<-chan Delivery, error)
}

type MemoryTicketQueueImpl struct {
	// 使用 Go channel 來模擬 MQ 隊列，本地開發與測試用
	ch chan *FinalizeJob
}

func NewMemoryTicketQueue(bufferSize int) TicketQueue {
	return &MemoryTicketQueueImpl{
		ch: make(chan *FinalizeJob, bufferSize),
	}
}

func (q *MemoryTicketQueueImpl) PublishFinalize(ctx context.Context, job *FinalizeJob) error {
	q.ch <- job
	return nil
}

func (q *MemoryTicketQueueImpl) SubscribeFinalize(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-q.ch:
				if !ok {
					return
				}

				out <- Delivery{
					Data: job,
					Ack:  func() { /* 記憶體版不用做特別動作 */ },
					Nack: func(requeue bool) {
						if requeue {
							q.ch <- job // 簡單模擬重回隊列
						}
					},
				}
			}
		}
	}()

	return out, nil
}
