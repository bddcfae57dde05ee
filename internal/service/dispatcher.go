package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"gateway/internal/config"
	"gateway/internal/domain"
	"gateway/internal/infra/postgres"
	"gateway/internal/logger"
	"gateway/internal/queue"
	"gateway/internal/repository"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DispatcherService struct {
	db      *gorm.DB
	repo    repository.Webhooks
	breaker *postgres.Breaker
	queue   TaskQueue
	l       logger.Logger
	config  *config.Config
	client  *http.Client
}

func NewDispatcherService(db *gorm.DB, repo repository.Webhooks, breaker *postgres.Breaker, q TaskQueue, l logger.Logger, config *config.Config) *DispatcherService {
	return &DispatcherService{
		db:      db,
		repo:    repo,
		breaker: breaker,
		queue:   q,
		l:       l,
		config:  config,
		client:  &http.Client{Timeout: config.WebhookTimeout()},
	}
}

// Notify fans one event out to every active matching subscription as a
// delivery task. Suspended subscriptions are never dispatched to.
func (s *DispatcherService) Notify(merchantID, event string, payload map[string]any) error {
	subs, err := s.repo.FindActiveByMerchant(s.db, merchantID)
	if err != nil {
		if postgres.IsNotFound(err) {
			return nil
		}
		return err
	}

	for _, sub := range subs {
		if !sub.WantsEvent(event) {
			continue
		}

		maxRetries := sub.MaxRetries
		if maxRetries == 0 {
			maxRetries = s.config.Webhook.MaxRetries
		}

		task := domain.TaskDeliverWebhook{
			SubscriptionID: sub.ID,
			Url:            sub.Url,
			Event:          event,
			Payload:        s.buildPayload(&sub, merchantID, event, payload),
			Secret:         sub.Secret,
			RetryCount:     0,
			MaxRetries:     maxRetries,
		}

		if err := s.queue.Enqueue(queue.LaneDeliverWebhook, task); err != nil {
			s.l.Error("dispatcher: enqueue delivery failed", "Url", sub.Url, "Event", event, "Error", err.Error())
		}
	}

	return nil
}

func (s *DispatcherService) buildPayload(sub *domain.WebhookSubscriptions, merchantID, event string, payload map[string]any) map[string]any {
	if sub.PayloadMode == domain.PAYLOAD_MINIMAL {
		return map[string]any{
			"id":         payload["id"],
			"event":      event,
			"merchantId": merchantID,
		}
	}

	full := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		full[k] = v
	}
	full["event"] = event
	full["merchantId"] = merchantID
	return full
}

// HandleDeliver is the webhook.deliver lane handler. Retry bookkeeping is
// internal: the handler always acks and reschedules itself, so a dead
// endpoint cannot wedge the lane.
func (s *DispatcherService) HandleDeliver(payload []byte) error {
	var task domain.TaskDeliverWebhook
	if err := json.Unmarshal(payload, &task); err != nil {
		s.l.Error("dispatcher: bad delivery task", "Error", err.Error())
		return nil // malformed tasks are dropped, not retried
	}

	sub, err := s.repo.FindByID(s.db, task.SubscriptionID)
	if err != nil {
		if postgres.IsNotFound(err) {
			return nil
		}
		return err
	}

	if !sub.Status.IsActive() {
		return nil
	}

	deliverErr := s.deliver(&task)

	if deliverErr == nil {
		sub.FailureCount = 0
		sub.LastFailureReason = ""
		if err := s.repo.Update(s.db, sub); err != nil {
			s.l.Error("dispatcher: reset failure counter failed", "SubscriptionID", sub.ID, "Error", err.Error())
		}
		return nil
	}

	sub.FailureCount++
	sub.LastFailureReason = deliverErr.Error()
	if err := s.repo.Update(s.db, sub); err != nil {
		s.l.Error("dispatcher: record failure failed", "SubscriptionID", sub.ID, "Error", err.Error())
	}

	backoff := webhookBackoff(task.RetryCount)
	task.RetryCount++

	if task.RetryCount >= task.MaxRetries {
		s.l.Error("dispatcher: delivery abandoned", "Url", task.Url, "Event", task.Event, "Attempts", task.RetryCount, "Error", deliverErr.Error())
		return nil
	}

	if err := s.queue.EnqueueIn(queue.LaneDeliverWebhook, task, backoff); err != nil {
		s.l.Error("dispatcher: reschedule failed", "Url", task.Url, "Error", err.Error())
	}

	return nil
}

// 15 * 2^retryCount seconds
func webhookBackoff(retryCount int) time.Duration {
	return time.Duration(15*(1<<retryCount)) * time.Second
}

func (s *DispatcherService) deliver(task *domain.TaskDeliverWebhook) error {
	body, err := json.Marshal(task.Payload)
	if err != nil {
		return err
	}

	timestamp := time.Now().Unix()

	req, err := http.NewRequest(http.MethodPost, task.Url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gateway-Signature", SignatureHeader(task.Secret, timestamp, body))
	req.Header.Set("X-Idempotency-Key", uuid.NewString()) // fresh per attempt
	req.Header.Set("User-Agent", "gateway-webhook")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("invalid status code: %d", resp.StatusCode)
	}

	return nil
}
