package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"gateway/internal/domain"
	"gateway/internal/logger"
	"sync/atomic"
	"testing"
	"time"
)

func newFallbackQueue() *Queue {
	q := &Queue{
		l:        logger.Init(true),
		handlers: make(map[Lane]Handler),
	}
	q.fallback.Store(true)
	return q
}

func TestLaneRetryNames(t *testing.T) {
	if LaneMonitorConfirmations.retry() != "tx.confirmations.retry" {
		t.Errorf("retry queue = %q", LaneMonitorConfirmations.retry())
	}
	if len(Lanes) != 3 {
		t.Errorf("expected 3 lanes, got %d", len(Lanes))
	}
}

func TestFallbackEnqueueInvokesHandlerDirectly(t *testing.T) {
	q := newFallbackQueue()

	var got []byte
	q.Consume(LaneSettleMerchant, func(payload []byte) error {
		got = payload
		return nil
	})

	type task struct {
		MerchantID string `json:"merchant_id"`
	}

	if err := q.Enqueue(LaneSettleMerchant, task{MerchantID: "m1"}); err != nil {
		t.Fatal(err)
	}

	var decoded task
	if err := json.Unmarshal(got, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.MerchantID != "m1" {
		t.Errorf("handler got %q", decoded.MerchantID)
	}

	if !q.Fallback() {
		t.Error("queue must report fallback mode")
	}
}

func TestFallbackEnqueueWithoutHandlerFails(t *testing.T) {
	q := newFallbackQueue()

	if err := q.Enqueue(LaneDeliverWebhook, struct{}{}); err == nil {
		t.Fatal("enqueue into a handlerless lane must fail loudly")
	}
}

func TestFallbackEnqueueInRunsAfterDelay(t *testing.T) {
	q := newFallbackQueue()

	done := make(chan struct{})
	q.Consume(LaneDeliverWebhook, func(payload []byte) error {
		close(done)
		return nil
	})

	start := time.Now()
	if err := q.EnqueueIn(LaneDeliverWebhook, struct{}{}, 30*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
		if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
			t.Errorf("handler ran after %v, before the delay", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task never ran")
	}
}

func TestEnqueueInZeroDelayRunsImmediately(t *testing.T) {
	q := newFallbackQueue()

	var ran atomic.Bool
	q.Consume(LaneMonitorConfirmations, func(payload []byte) error {
		ran.Store(true)
		return nil
	})

	if err := q.EnqueueIn(LaneMonitorConfirmations, struct{}{}, 0); err != nil {
		t.Fatal(err)
	}
	if !ran.Load() {
		t.Error("zero delay must dispatch synchronously")
	}
}

func TestPublishWithoutChannelReportsQueueUnavailable(t *testing.T) {
	q := &Queue{l: logger.Init(true), handlers: make(map[Lane]Handler)}

	err := q.publish(tasksExchange, LaneSettleMerchant.String(), nil, "")
	if !errors.Is(err, domain.ErrQueueUnavailable) {
		t.Errorf("err = %v, want ErrQueueUnavailable", err)
	}
}

func TestSafeInvokeContainsPanics(t *testing.T) {
	err := safeInvoke(func(payload []byte) error {
		panic("boom")
	}, nil)

	if err == nil {
		t.Fatal("panic must surface as an error")
	}
}

func TestSafeInvokePassesErrorsThrough(t *testing.T) {
	want := fmt.Errorf("transient")
	err := safeInvoke(func(payload []byte) error {
		return want
	}, nil)

	if err != want {
		t.Errorf("err = %v, want %v", err, want)
	}
}
