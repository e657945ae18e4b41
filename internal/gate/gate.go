// Package gate implements the adaptive admission-control primitive that
// modulates concurrent load on the embedding service via Additive
// Increase / Multiplicative Decrease (AIMD) feedback.
package gate

import (
	"context"
	"math"
	"sync"
)

// Observer receives gate state changes for telemetry. Implementations
// must not block; a nil Observer is valid and simply drops updates.
type Observer interface {
	SetCapacity(name string, v float64)
	SetInflight(name string, v float64)
	IncThrottled(name string)
	IncSucceeded(name string)
}

// AdaptiveGate is a counting gate whose capacity varies at runtime in
// response to on_throttle/on_success feedback. Waiters are served FIFO:
// release and a capacity-increasing on_success each wake at most one
// waiter, transferring the freed slot directly to it under the same
// lock that released it, so a newly arrived acquirer can never cut in
// line ahead of an existing waiter.
type AdaptiveGate struct {
	name string

	mu                sync.Mutex
	capacity          int
	currentCount      int
	successCount      int
	minValue          int
	decreaseFactor    float64
	increaseThreshold int
	waiters           []chan struct{}

	obs Observer
}

// New constructs a gate. Preconditions: 0 < decreaseFactor < 1,
// initial >= minValue, minValue >= 1. increaseThreshold defaults to
// initial*10 when <= 0, matching the documented default.
func New(name string, initial, minValue int, decreaseFactor float64, increaseThreshold int, obs Observer) *AdaptiveGate {
	if increaseThreshold <= 0 {
		increaseThreshold = initial * 10
	}
	g := &AdaptiveGate{
		name:              name,
		capacity:          initial,
		minValue:          minValue,
		decreaseFactor:    decreaseFactor,
		increaseThreshold: increaseThreshold,
		obs:               obs,
	}
	g.report()
	return g
}

// Acquire suspends until current_count < capacity, then increments
// current_count. Arrival order is preserved: a caller that must wait is
// queued FIFO and is granted its slot before any later arrival.
func (g *AdaptiveGate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.currentCount < g.capacity {
		g.currentCount++
		g.mu.Unlock()
		g.report()
		return nil
	}
	ch := make(chan struct{})
	g.waiters = append(g.waiters, ch)
	g.mu.Unlock()

	select {
	case <-ch:
		g.report()
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		select {
		case <-ch:
			// Already granted the slot by a concurrent release/on_success;
			// give it back rather than leak it.
			g.mu.Unlock()
			g.Release()
			return ctx.Err()
		default:
		}
		for i, w := range g.waiters {
			if w == ch {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				break
			}
		}
		g.mu.Unlock()
		return ctx.Err()
	}
}

// Release decrements current_count and wakes at most one FIFO-earliest
// waiter by transferring the freed slot directly to it.
func (g *AdaptiveGate) Release() {
	g.mu.Lock()
	g.currentCount--
	g.wakeOneLocked()
	g.mu.Unlock()
	g.report()
}

// wakeOneLocked pops the earliest waiter and grants it the slot
// (incrementing current_count on its behalf), but only if capacity
// actually allows another admission right now. A capacity that was
// shrunk by on_throttle below current_count must stay over-subscribed
// until enough releases bring current_count back down — waking a
// waiter unconditionally here would hand back exactly the headroom
// on_throttle just took away. Caller must hold mu.
func (g *AdaptiveGate) wakeOneLocked() {
	if len(g.waiters) == 0 || g.currentCount >= g.capacity {
		return
	}
	ch := g.waiters[0]
	g.waiters = g.waiters[1:]
	g.currentCount++
	close(ch)
}

// OnThrottle computes new = max(min_value, floor(capacity*decrease_factor));
// if that is lower than the current capacity, assigns it and resets
// success_count. Never wakes a waiter: a decrease only restricts future
// acquires, it frees no slot.
func (g *AdaptiveGate) OnThrottle() {
	g.mu.Lock()
	next := int(math.Floor(float64(g.capacity) * g.decreaseFactor))
	if next < g.minValue {
		next = g.minValue
	}
	if next < g.capacity {
		g.capacity = next
		g.successCount = 0
	}
	g.mu.Unlock()
	if g.obs != nil {
		g.obs.IncThrottled(g.name)
	}
	g.report()
}

// OnSuccess increments success_count; upon reaching increase_threshold,
// grows capacity by one, resets success_count, and wakes one waiter
// (the newly added unit of capacity is handed straight to it).
func (g *AdaptiveGate) OnSuccess() {
	g.mu.Lock()
	g.successCount++
	if g.successCount >= g.increaseThreshold {
		g.capacity++
		g.successCount = 0
		g.wakeOneLocked()
	}
	g.mu.Unlock()
	if g.obs != nil {
		g.obs.IncSucceeded(g.name)
	}
	g.report()
}

// Capacity returns the current capacity (for tests and diagnostics).
func (g *AdaptiveGate) Capacity() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.capacity
}

// CurrentCount returns the current in-flight count.
func (g *AdaptiveGate) CurrentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentCount
}

func (g *AdaptiveGate) report() {
	if g.obs == nil {
		return
	}
	g.mu.Lock()
	c, cur := g.capacity, g.currentCount
	g.mu.Unlock()
	g.obs.SetCapacity(g.name, float64(c))
	g.obs.SetInflight(g.name, float64(cur))
}
