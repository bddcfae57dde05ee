package postgres

import (
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

var ErrBreakerOpen = fmt.Errorf("datastore breaker open")

type breakerState uint8

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// Breaker wraps multi-step datastore mutations and fails fast while the
// datastore is unreachable, so task handlers can schedule a retry instead
// of blocking a shared loop.
type Breaker struct {
	mu        sync.Mutex
	state     breakerState
	failures  int
	openedAt  time.Time
	threshold int
	cooldown  time.Duration
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

func (b *Breaker) Execute(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if !b.allow() {
		return ErrBreakerOpen
	}

	var err error
	if db == nil {
		// no handle, no transaction: callers backed by in-memory stores
		err = fn(nil)
	} else {
		err = db.Transaction(fn)
	}
	b.record(err)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = breakerHalfOpen
			return true // one probe
		}
		return false
	case breakerHalfOpen:
		return false // probe in flight
	}
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// not-found and duplicate are data answers, not datastore health
	if err == nil || IsNotFound(err) || IsDuplicate(err) {
		b.state = breakerClosed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == breakerHalfOpen || b.failures >= b.threshold {
		b.state = breakerOpen
		b.openedAt = time.Now()
		b.failures = 0
	}
}
