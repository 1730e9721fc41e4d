// Copyright 2025 NetApp, Inc. All Rights Reserved.

// Package pausegate holds back publications while a bus is paused and replays them in
// arrival order on resume.
package pausegate

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/netapp/msgbus/config"
	. "github.com/netapp/msgbus/logging"
)

// Deliver publishes a held message through the normal path, bypassing the gate.
type Deliver func(ctx context.Context, message any, async bool)

type entry struct {
	ctx     context.Context
	message any
	async   bool
}

// Gate queues offered messages while paused. While a resume is draining the queue, new
// messages are queued behind the held ones so arrival order is preserved.
type Gate struct {
	ctx context.Context

	paused   atomic.Bool
	draining atomic.Bool

	mu    sync.Mutex
	queue []entry
	// atomicDrain and pausePending are guarded by mu. A Pause during an atomic drain only
	// sets pausePending, which closes the gate when the drain ends.
	atomicDrain  bool
	pausePending bool

	// resumeMu serializes resumes.
	resumeMu sync.Mutex
}

// New creates an open gate.
func New(ctx context.Context) *Gate {
	return &Gate{ctx: WithLogLayer(ctx, LogLayerGate)}
}

// Pause closes the gate. Pause never blocks: during an atomic drain it takes effect once
// the drain has emptied the queue, so it is safe to call from a handler being drained.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.atomicDrain {
		if !g.pausePending {
			g.pausePending = true
			Logc(g.ctx).Debug("Pause deferred until the atomic drain completes.")
		}
		return
	}
	if !g.paused.Swap(true) {
		Logc(g.ctx).Debug("Paused publishing.")
	}
}

// IsPaused reports whether the gate is closed.
func (g *Gate) IsPaused() bool {
	return g.paused.Load()
}

// CountInQueue returns the number of held messages.
func (g *Gate) CountInQueue() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// Offer holds message if the gate is paused or draining and reports whether it did. A
// message that is not held must be published by the caller.
func (g *Gate) Offer(ctx context.Context, message any, async bool) bool {
	if !g.paused.Load() && !g.draining.Load() {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.paused.Load() && !g.draining.Load() {
		return false
	}
	g.queue = append(g.queue, entry{ctx: ctx, message: message, async: async})
	return true
}

// Resume opens the gate and hands every held message to deliver in arrival order,
// returning how many were delivered. With FlushAtomic a Pause during the drain takes effect
// once the queue is empty; with FlushNonAtomic it stops the drain and the remaining
// messages stay held. Concurrent resumes are serialized, so deliver must not call Resume.
func (g *Gate) Resume(mode config.FlushMode, deliver Deliver) int {
	g.resumeMu.Lock()
	defer g.resumeMu.Unlock()

	atomicFlush := mode != config.FlushNonAtomic

	g.mu.Lock()
	g.draining.Store(true)
	g.paused.Store(false)
	g.atomicDrain = atomicFlush
	g.pausePending = false
	held := len(g.queue)
	g.mu.Unlock()

	Logc(g.ctx).WithFields(LogFields{
		"held": held,
		"mode": mode,
	}).Debug("Resuming publishing.")

	delivered := 0
	for {
		e, ok := g.next(atomicFlush)
		if !ok {
			break
		}
		deliver(e.ctx, e.message, e.async)
		delivered++
	}

	if remaining := g.CountInQueue(); remaining > 0 {
		Logc(g.ctx).WithFields(LogFields{
			"delivered": delivered,
			"remaining": remaining,
		}).Debug("Resume interrupted by pause.")
	}
	return delivered
}

// next pops the oldest held message. It ends the drain when the queue is empty or, for a
// non-atomic drain, when the gate was paused again.
func (g *Gate) next(atomicFlush bool) (entry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.queue) == 0 || (!atomicFlush && g.paused.Load()) {
		g.draining.Store(false)
		g.atomicDrain = false
		if g.pausePending {
			g.pausePending = false
			g.paused.Store(true)
			Logc(g.ctx).Debug("Paused publishing after the atomic drain.")
		}
		return entry{}, false
	}
	e := g.queue[0]
	g.queue[0] = entry{}
	g.queue = g.queue[1:]
	return e, true
}
