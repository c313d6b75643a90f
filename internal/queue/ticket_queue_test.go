package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryTicketQueue_PublishAndSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryTicketQueue(8)

	job := &FinalizeJob{
		TicketCode: "BUKR-0042-abcd1234",
		PaymentRef: "BUKR-PAY-1756000000-aabbcc",
		Provider:   "paystack",
	}
	assert.NoError(t, q.PublishFinalize(ctx, job))

	msgs, err := q.SubscribeFinalize(ctx)
	assert.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, job.TicketCode, msg.Data.TicketCode)
		assert.Equal(t, job.PaymentRef, msg.Data.PaymentRef)
		assert.Equal(t, job.Provider, msg.Data.Provider)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job")
	}
}

func TestMemoryTicketQueue_NackRequeues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewMemoryTicketQueue(8)
	msgs, err := q.SubscribeFinalize(ctx)
	assert.NoError(t, err)

	job := &FinalizeJob{TicketCode: "BUKR-0001-deadbeef", Provider: "stripe"}
	assert.NoError(t, q.PublishFinalize(ctx, job))

	msg := <-msgs
	msg.Nack(true)

	// requeue 後同一筆工作要再送一次
	select {
	case again := <-msgs:
		assert.Equal(t, job.TicketCode, again.Data.TicketCode)
		again.Ack()
	case <-time.After(time.Second):
		t.Fatal("requeued job was not redelivered")
	}
}

func TestMemoryTicketQueue_SubscribeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	q := NewMemoryTicketQueue(1)
	msgs, err := q.SubscribeFinalize(ctx)
	assert.NoError(t, err)

	cancel()

	select {
	case _, open := <-msgs:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after cancel")
	}
}
