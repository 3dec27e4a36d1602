package db

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"pastecap/metrics"
	"pastecap/pkg/domain"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var ErrCircuitOpen = errors.New("store circuit breaker open")

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
	maxFailures     = 5
	cooldownSeconds = 30
)

// breaker trips after maxFailures consecutive storage failures. Once the
// cooldown has passed it goes half-open, and the next failure re-opens it.
type breaker struct {
	backend  string
	failures int32
	state    int32
	opened   int64
	now      func() time.Time
}

func newBreaker(backend string) *breaker {
	return &breaker{backend: backend, now: time.Now}
}

func (b *breaker) allow() error {
	switch atomic.LoadInt32(&b.state) {
	case circuitOpen:
		opened := atomic.LoadInt64(&b.opened)
		if b.now().Unix()-opened >= cooldownSeconds {
			if atomic.CompareAndSwapInt32(&b.state, circuitOpen, circuitHalfOpen) {
				return nil
			}
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (b *breaker) record(err error) {
	if err == nil || !countsAsFailure(err) {
		if atomic.SwapInt32(&b.state, circuitClosed) != circuitClosed {
			metrics.CircuitOpen.WithLabelValues(b.backend).Set(0)
		}
		atomic.StoreInt32(&b.failures, 0)
		return
	}
	failures := atomic.AddInt32(&b.failures, 1)
	if atomic.LoadInt32(&b.state) == circuitHalfOpen {
		b.trip()
		return
	}
	if failures >= maxFailures && atomic.LoadInt32(&b.state) == circuitClosed {
		b.trip()
	}
}

func (b *breaker) trip() {
	atomic.StoreInt32(&b.state, circuitOpen)
	atomic.StoreInt64(&b.opened, b.now().Unix())
	atomic.StoreInt32(&b.failures, 0)
	metrics.CircuitOpen.WithLabelValues(b.backend).Set(1)
}

// Misses and caller cancellations say nothing about store health.
func countsAsFailure(err error) bool {
	return !(errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, redis.Nil) ||
		errors.Is(err, domain.ErrPasteNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded))
}
