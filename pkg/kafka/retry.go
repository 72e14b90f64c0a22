package kafka

import (
	"context"
	"time"
)

// DeliveryState tracks one message through the bounded retry loop:
// Pending -> Retrying(n) -> Succeeded | DeadLettered | Exhausted | Interrupted.
type DeliveryState int

const (
	StatePending DeliveryState = iota
	StateRetrying
	StateSucceeded
	StateDeadLettered
	// StateExhausted means the handler gave up and no dead-letter topic is configured.
	StateExhausted
	// StateInterrupted means shutdown stopped processing; the offset stays uncommitted.
	StateInterrupted
)

func (s DeliveryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateDeadLettered:
		return "dead_lettered"
	case StateExhausted:
		return "exhausted"
	case StateInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

type Delivery struct {
	State    DeliveryState
	Attempts int
	LastErr  error
}

// Settled reports whether the message reached a final state and its offset may be committed.
func (d Delivery) Settled() bool {
	switch d.State {
	case StateSucceeded, StateDeadLettered, StateExhausted:
		return true
	default:
		return false
	}
}

type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Backoff returns the wait before retry n (1-based): base * 2^(n-1), capped at MaxBackoff.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 || p.BaseBackoff <= 0 {
		return 0
	}

	d := p.BaseBackoff
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// sleepCtx waits for d or until ctx is done. It reports whether the full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
