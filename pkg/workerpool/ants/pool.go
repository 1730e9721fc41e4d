// Copyright 2025 NetApp, Inc. All Rights Reserved.

package ants

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	. "github.com/netapp/msgbus/logging"
	"github.com/netapp/msgbus/pkg/workerpool/types"
	"github.com/netapp/msgbus/utils/errors"
)

// ErrPoolNotStarted is returned by Submit before Start has been called.
var ErrPoolNotStarted = errors.New("worker pool not started")

// Pool is a types.Pool backed by a single ants pool.
type Pool struct {
	name    string
	pool    *ants.Pool
	started atomic.Bool
	closed  atomic.Bool

	shutdownOnce sync.Once
	shutdownErr  error
}

var _ types.Pool = (*Pool)(nil)

// NewPool creates an unstarted pool from cfg. A nil cfg uses DefaultConfig.
func NewPool(ctx context.Context, cfg *Config) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.NumWorkers <= 0 {
		return nil, errors.UnsupportedConfigError("number of workers must be positive, got %d", cfg.NumWorkers)
	}

	name := cfg.Name
	panicHandler := func(recovered any) {
		Logc(ctx).WithFields(LogFields{
			"pool":  name,
			"panic": recovered,
			"stack": string(debug.Stack()),
		}).Error("Worker pool task panicked.")
	}

	pool, err := ants.NewPool(cfg.NumWorkers,
		ants.WithPreAlloc(cfg.PreAlloc),
		ants.WithNonblocking(cfg.NonBlocking),
		ants.WithExpiryDuration(cfg.ExpiryDuration),
		ants.WithDisablePurge(cfg.DisablePurge),
		ants.WithPanicHandler(panicHandler),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool %s; %w", name, err)
	}

	Logc(ctx).WithFields(LogFields{
		"pool":    name,
		"workers": cfg.NumWorkers,
	}).Debug("Created worker pool.")

	return &Pool{name: name, pool: pool}, nil
}

// Start marks the pool ready to accept tasks. Calling Start again is a no-op.
func (p *Pool) Start(_ context.Context) error {
	if p.closed.Load() {
		return ants.ErrPoolClosed
	}
	p.started.Store(true)
	return nil
}

// Submit queues task for execution.
func (p *Pool) Submit(_ context.Context, task func()) error {
	if task == nil {
		return errors.New("task must not be nil")
	}
	if p.closed.Load() {
		return ants.ErrPoolClosed
	}
	if !p.started.Load() {
		return ErrPoolNotStarted
	}
	return p.pool.Submit(task)
}

// Shutdown releases the pool, waiting for running tasks until ctx's deadline
// or a default timeout. It is idempotent.
func (p *Pool) Shutdown(ctx context.Context) error {
	timeout := defaultShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return p.ShutdownWithTimeout(timeout)
}

// ShutdownWithTimeout releases the pool, waiting up to timeout for running tasks.
func (p *Pool) ShutdownWithTimeout(timeout time.Duration) error {
	p.shutdownOnce.Do(func() {
		p.closed.Store(true)
		if timeout <= 0 {
			p.pool.Release()
			return
		}
		if err := p.pool.ReleaseTimeout(timeout); err != nil {
			p.shutdownErr = fmt.Errorf("worker pool %s did not drain within %v; %w", p.name, timeout, err)
		}
	})
	return p.shutdownErr
}

func (p *Pool) IsStarted() bool { return p.started.Load() }

func (p *Pool) IsClosed() bool { return p.closed.Load() }

func (p *Pool) Cap() int { return p.pool.Cap() }

func (p *Pool) Running() int { return p.pool.Running() }

func (p *Pool) Free() int { return p.pool.Free() }

func (p *Pool) Waiting() int { return p.pool.Waiting() }

func (p *Pool) Stats() types.Stats {
	return types.Stats{
		Cap:     p.pool.Cap(),
		Running: p.pool.Running(),
		Free:    p.pool.Free(),
		Waiting: p.pool.Waiting(),
	}
}
