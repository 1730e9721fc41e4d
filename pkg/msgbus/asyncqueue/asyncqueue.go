// Copyright 2025 NetApp, Inc. All Rights Reserved.

// Package asyncqueue runs publications posted for asynchronous delivery on a fixed set of
// dispatcher goroutines.
package asyncqueue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	. "github.com/netapp/msgbus/logging"
	"github.com/netapp/msgbus/pkg/msgbus/publication"
	"github.com/netapp/msgbus/utils/errors"
)

// Config controls the queue shape.
type Config struct {
	// Dispatchers is the number of goroutines executing publications. With one dispatcher,
	// publications start in the order they were posted.
	Dispatchers int
	// Capacity bounds the queue; zero makes it unbounded.
	Capacity int
}

// Queue is a FIFO of scheduled publications.
type Queue struct {
	ctx      context.Context
	capacity int

	// bounded is used when capacity > 0.
	bounded chan *publication.Publication

	// items and notify back the unbounded queue.
	mu     sync.Mutex
	items  []*publication.Publication
	notify chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	// postMu lets Close wait out in-progress posts before draining.
	postMu sync.RWMutex
	closed bool

	group errgroup.Group
}

// New creates a queue and starts its dispatchers.
func New(ctx context.Context, cfg Config) (*Queue, error) {
	if cfg.Dispatchers <= 0 {
		return nil, errors.UnsupportedConfigError("dispatchers must be positive, got %d", cfg.Dispatchers)
	}
	if cfg.Capacity < 0 {
		return nil, errors.UnsupportedConfigError("queue capacity cannot be negative, got %d", cfg.Capacity)
	}

	q := &Queue{
		ctx:      WithLogLayer(ctx, LogLayerQueue),
		capacity: cfg.Capacity,
		done:     make(chan struct{}),
	}
	if cfg.Capacity > 0 {
		q.bounded = make(chan *publication.Publication, cfg.Capacity)
	} else {
		q.notify = make(chan struct{}, 1)
	}

	for i := 0; i < cfg.Dispatchers; i++ {
		if q.bounded != nil {
			q.group.Go(q.dispatchBounded)
		} else {
			q.group.Go(q.dispatchUnbounded)
		}
	}

	Logc(q.ctx).WithFields(LogFields{
		"dispatchers": cfg.Dispatchers,
		"capacity":    cfg.Capacity,
	}).Debug("Started dispatch queue.")

	return q, nil
}

// Post schedules pub and enqueues it. A bounded queue waits up to timeout for room; a
// non-positive timeout waits until ctx ends or the queue closes. Failures are recorded on
// the publication, which is returned in state Error.
func (q *Queue) Post(ctx context.Context, pub *publication.Publication, timeout time.Duration) *publication.Publication {
	pub.MarkScheduled()

	q.postMu.RLock()
	defer q.postMu.RUnlock()

	if q.closed {
		pub.MarkError(errors.BusClosedError())
		return pub
	}

	if q.bounded == nil {
		q.push(pub)
		return pub
	}

	select {
	case q.bounded <- pub:
		return pub
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case q.bounded <- pub:
	case <-expired:
		pub.MarkError(errors.EnqueueTimeoutError(timeout))
	case <-ctx.Done():
		pub.MarkError(errors.WrapWithEnqueueTimeoutError(ctx.Err()))
	case <-q.done:
		pub.MarkError(errors.BusClosedError())
	}
	return pub
}

// Len returns the number of publications waiting for a dispatcher.
func (q *Queue) Len() int {
	if q.bounded != nil {
		return len(q.bounded)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the queue bound, or zero for an unbounded queue.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Close stops the dispatchers after their current publication and fails every queued
// publication that has not started with a bus closed error. It returns ctx.Err() if ctx
// ends before the dispatchers stop; queued publications are failed either way.
func (q *Queue) Close(ctx context.Context) error {
	q.closeOnce.Do(func() {
		close(q.done)

		q.postMu.Lock()
		q.closed = true
		q.postMu.Unlock()

		stopped := make(chan struct{})
		go func() {
			_ = q.group.Wait()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-ctx.Done():
			q.closeErr = ctx.Err()
			Logc(q.ctx).WithError(q.closeErr).Warn("Dispatchers did not stop before the close deadline.")
		}

		abandoned := 0
		for _, pub := range q.drain() {
			if pub.MarkError(errors.BusClosedError()) {
				abandoned++
			}
		}

		Logc(q.ctx).WithField("abandoned", abandoned).Debug("Closed dispatch queue.")
	})
	return q.closeErr
}

func (q *Queue) push(pub *publication.Publication) {
	q.mu.Lock()
	q.items = append(q.items, pub)
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) pop() (*publication.Publication, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	pub := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return pub, true
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) drain() []*publication.Publication {
	if q.bounded != nil {
		var pending []*publication.Publication
		for {
			select {
			case pub := <-q.bounded:
				pending = append(pending, pub)
			default:
				return pending
			}
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	pending := q.items
	q.items = nil
	return pending
}

func (q *Queue) dispatchBounded() error {
	for {
		select {
		case <-q.done:
			return nil
		default:
		}

		select {
		case <-q.done:
			return nil
		case pub := <-q.bounded:
			pub.Execute()
		}
	}
}

func (q *Queue) dispatchUnbounded() error {
	for {
		select {
		case <-q.done:
			return nil
		case <-q.notify:
		}

		if pub, ok := q.pop(); ok {
			pub.Execute()
		}
	}
}
