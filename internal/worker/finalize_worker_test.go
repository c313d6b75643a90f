package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"ticket-engine/internal/model"
	"ticket-engine/internal/queue"
	"time"

	"github.com/stretchr/testify/assert"
)

// stubPurchaseService 只記錄 Finalize 被叫到的工作
type stubPurchaseService struct {
	mu       sync.Mutex
	jobs     []string
	failOnce map[string]bool
}

func (s *stubPurchaseService) Purchase(ctx context.Context, req model.PurchaseRequest) (*model.PurchaseResponse, error) {
	return nil, errors.New("not implemented")
}

func (s *stubPurchaseService) ClaimFree(ctx context.Context, req model.PurchaseRequest) (*model.Ticket, error) {
	return nil, errors.New("not implemented")
}

func (s *stubPurchaseService) Cancel(ctx context.Context, ticketCode string) (*model.Ticket, error) {
	return nil, errors.New("not implemented")
}

func (s *stubPurchaseService) GetTicket(ctx context.Context, ticketCode string) (*model.Ticket, error) {
	return nil, errors.New("not implemented")
}

func (s *stubPurchaseService) Finalize(ctx context.Context, job *queue.FinalizeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOnce[job.TicketCode] {
		delete(s.failOnce, job.TicketCode)
		return errors.New("transient provider error")
	}
	s.jobs = append(s.jobs, job.TicketCode)
	return nil
}

func (s *stubPurchaseService) finalized() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.jobs))
	copy(out, s.jobs)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFinalizeWorker_ProcessesJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewMemoryTicketQueue(8)
	stub := &stubPurchaseService{}
	w := NewFinalizeWorker(stub, q, 2)

	assert.NoError(t, w.Start(ctx))

	job := &queue.FinalizeJob{TicketCode: "BUKR-0001-abcd1234", Provider: "paystack"}
	assert.NoError(t, q.PublishFinalize(ctx, job))

	waitFor(t, func() bool {
		return len(stub.finalized()) == 1
	})
	assert.Equal(t, []string{"BUKR-0001-abcd1234"}, stub.finalized())
}

func TestFinalizeWorker_RetriesOnFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewMemoryTicketQueue(8)
	stub := &stubPurchaseService{failOnce: map[string]bool{"BUKR-0002-deadbeef": true}}
	w := NewFinalizeWorker(stub, q, 1)

	assert.NoError(t, w.Start(ctx))

	job := &queue.FinalizeJob{TicketCode: "BUKR-0002-deadbeef", Provider: "stripe"}
	assert.NoError(t, q.PublishFinalize(ctx, job))

	// 第一次失敗後 requeue，第二次成功
	waitFor(t, func() bool {
		return len(stub.finalized()) == 1
	})
}
