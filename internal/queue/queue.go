package queue

import (
	"encoding/json"
	"fmt"
	"gateway/internal/domain"
	"gateway/internal/logger"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Lane string

const (
	LaneMonitorConfirmations Lane = "tx.confirmations"
	LaneSettleMerchant       Lane = "merchant.settle"
	LaneDeliverWebhook       Lane = "webhook.deliver"
)

var Lanes = [...]Lane{LaneMonitorConfirmations, LaneSettleMerchant, LaneDeliverWebhook}

func (l Lane) String() string {
	return string(l)
}

func (l Lane) retry() string {
	return string(l) + ".retry"
}

const (
	tasksExchange  = "gateway.tasks"
	reconnectDelay = 5 * time.Second
	maxReconnects  = 10
	retryDelay     = 60 * time.Second // dead-letter redelivery delay for failed tasks
)

// Handler is invoked at-least-once per task. A returned error sends the task
// through the lane's retry queue; it never unwinds further.
type Handler func(payload []byte) error

// Queue dispatches named tasks over AMQP with a per-lane retry queue bound
// to a dead-letter exchange. When the broker stays unreachable past the
// reconnect cap it degrades to fallback mode: producers invoke the
// registered lane handler directly in-process, so scheduled work keeps
// running (in-memory only) until the broker returns.
type Queue struct {
	url string
	l   logger.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	pubCh    *amqp.Channel
	handlers map[Lane]Handler
	fallback atomic.Bool
}

func Init(url string, l logger.Logger) *Queue {
	q := &Queue{
		url:      url,
		l:        l,
		handlers: make(map[Lane]Handler),
	}

	if err := q.connect(); err != nil {
		q.l.Error("queue: broker unreachable at boot, starting in fallback mode", "Error", err.Error())
	}

	return q
}

// connect dials with bounded retries. Past the cap the queue gives up and
// flips to fallback mode.
func (q *Queue) connect() error {
	var lastErr error

	for attempt := 1; attempt <= maxReconnects; attempt++ {
		conn, err := amqp.Dial(q.url)
		if err != nil {
			lastErr = err
			q.l.Warn("queue: connect failed", "Attempt", attempt, "Error", err.Error())
			time.Sleep(reconnectDelay)
			continue
		}

		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			lastErr = err
			time.Sleep(reconnectDelay)
			continue
		}

		if err := declareTopology(ch); err != nil {
			conn.Close()
			lastErr = err
			time.Sleep(reconnectDelay)
			continue
		}

		q.mu.Lock()
		q.conn = conn
		q.pubCh = ch
		handlers := make(map[Lane]Handler, len(q.handlers))
		for lane, h := range q.handlers {
			handlers[lane] = h
		}
		q.mu.Unlock()

		q.fallback.Store(false)
		q.watchClose(conn)

		for lane, h := range handlers {
			if err := q.startConsumer(lane, h); err != nil {
				q.l.Error("queue: restart consumer failed", "Lane", lane.String(), "Error", err.Error())
			}
		}

		q.l.Info("queue: connected", "Url", q.url)
		return nil
	}

	q.fallback.Store(true)
	return fmt.Errorf("queue: gave up after %d attempts: %w", maxReconnects, lastErr)
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(tasksExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}

	for _, lane := range Lanes {
		if _, err := ch.QueueDeclare(lane.String(), true, false, false, false, nil); err != nil {
			return err
		}
		if err := ch.QueueBind(lane.String(), lane.String(), tasksExchange, false, nil); err != nil {
			return err
		}

		// expired messages dead-letter back to the originating lane
		if _, err := ch.QueueDeclare(lane.retry(), true, false, false, false, amqp.Table{
			"x-dead-letter-exchange":    tasksExchange,
			"x-dead-letter-routing-key": lane.String(),
		}); err != nil {
			return err
		}
	}

	return nil
}

func (q *Queue) watchClose(conn *amqp.Connection) {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		err := <-closed
		if err == nil {
			return // clean shutdown
		}
		q.l.Warn("queue: connection lost", "Error", err.Error())
		if cerr := q.connect(); cerr != nil {
			q.l.Error("queue: reconnect exhausted, running in fallback mode", "Error", cerr.Error())
		}
	}()
}

func (q *Queue) ensureConn() error {
	q.mu.Lock()
	connected := q.conn != nil && !q.conn.IsClosed()
	q.mu.Unlock()

	if connected {
		return nil
	}
	return q.connect()
}

// Enqueue returns once the task is durably accepted by the broker. In
// fallback mode the lane handler runs directly instead.
func (q *Queue) Enqueue(lane Lane, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if q.fallback.Load() {
		return q.invokeDirect(lane, body)
	}

	if err := q.ensureConn(); err != nil {
		return q.invokeDirect(lane, body)
	}

	return q.publish(tasksExchange, lane.String(), body, "")
}

// EnqueueIn schedules a task after a delay via the lane's TTL'd retry queue.
func (q *Queue) EnqueueIn(lane Lane, payload any, delay time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if delay <= 0 {
		return q.Enqueue(lane, payload)
	}

	if q.fallback.Load() || q.ensureConn() != nil {
		// in-process timer, lost on restart
		time.AfterFunc(delay, func() {
			if err := q.invokeDirect(lane, body); err != nil {
				q.l.Error("queue: fallback task failed", "Lane", lane.String(), "Error", err.Error())
			}
		})
		return nil
	}

	expiration := strconv.FormatInt(delay.Milliseconds(), 10)
	return q.publish("", lane.retry(), body, expiration)
}

func (q *Queue) publish(exchange, routingKey string, body []byte, expiration string) error {
	q.mu.Lock()
	ch := q.pubCh
	q.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("%w: no publish channel", domain.ErrQueueUnavailable)
	}

	return ch.Publish(exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Expiration:   expiration,
		Body:         body,
	})
}

func (q *Queue) invokeDirect(lane Lane, body []byte) error {
	q.mu.Lock()
	h := q.handlers[lane]
	q.mu.Unlock()

	if h == nil {
		return fmt.Errorf("queue: no handler registered for lane %s", lane)
	}

	return safeInvoke(h, body)
}

// Consume registers the lane handler. The registration survives reconnects
// and doubles as the fallback-mode dispatch target.
func (q *Queue) Consume(lane Lane, handler Handler) error {
	q.mu.Lock()
	q.handlers[lane] = handler
	connected := q.conn != nil && !q.conn.IsClosed()
	q.mu.Unlock()

	if !connected {
		return nil // consumer starts on the next successful connect
	}

	return q.startConsumer(lane, handler)
}

func (q *Queue) startConsumer(lane Lane, handler Handler) error {
	q.mu.Lock()
	conn := q.conn
	q.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("queue: not connected")
	}

	// consumers get their own channel, publishing keeps the shared one
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(lane.String(), "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return err
	}

	go func() {
		for d := range msgs {
			if err := safeInvoke(handler, d.Body); err != nil {
				q.l.Warn("queue: task failed, scheduling redelivery", "Lane", lane.String(), "Error", err.Error())
				expiration := strconv.FormatInt(retryDelay.Milliseconds(), 10)
				if perr := q.publish("", lane.retry(), d.Body, expiration); perr != nil {
					d.Nack(false, true) // broker requeues immediately
					continue
				}
			}
			d.Ack(false)
		}
	}()

	return nil
}

// safeInvoke keeps a panicking handler from killing its lane.
func safeInvoke(h Handler, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panic: %v", r)
		}
	}()
	return h(body)
}

// Fallback reports whether the queue is running in degraded in-process mode.
func (q *Queue) Fallback() bool {
	return q.fallback.Load()
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pubCh != nil {
		q.pubCh.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}
