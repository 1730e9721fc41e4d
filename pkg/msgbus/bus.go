// Copyright 2025 NetApp, Inc. All Rights Reserved.

// Package msgbus is an in-process publish/subscribe message bus. Listeners declare
// handlers for message types; a message is delivered to every subscribed handler
// declared for its type or one of its ancestor types, in priority order.
package msgbus

import (
	"context"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/netapp/msgbus/config"
	. "github.com/netapp/msgbus/logging"
	"github.com/netapp/msgbus/pkg/msgbus/asyncqueue"
	"github.com/netapp/msgbus/pkg/msgbus/pausegate"
	"github.com/netapp/msgbus/pkg/msgbus/publication"
	"github.com/netapp/msgbus/pkg/msgbus/registry"
	"github.com/netapp/msgbus/pkg/msgbus/subscription"
	"github.com/netapp/msgbus/pkg/msgbus/types"
	"github.com/netapp/msgbus/pkg/workerpool"
	"github.com/netapp/msgbus/pkg/workerpool/ants"
	workerpooltypes "github.com/netapp/msgbus/pkg/workerpool/types"
	"github.com/netapp/msgbus/utils/errors"
)

// Bus routes published messages to subscribed listeners.
type Bus struct {
	name string
	ctx  context.Context
	cfg  *Config

	registry *registry.Registry
	queue    *asyncqueue.Queue
	gate     *pausegate.Gate

	workerPool     workerpooltypes.Pool
	ownsWorkerPool bool

	handlersMu          sync.Mutex
	errorHandlers       atomic.Pointer[[]types.ErrorHandler]
	defaultErrorHandler types.ErrorHandler

	counters *busCounters

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// PostOption adjusts a single asynchronous publication.
type PostOption func(*postOptions)

type postOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the configured post timeout for one publication.
func WithTimeout(d time.Duration) PostOption {
	return func(o *postOptions) {
		o.timeout = d
	}
}

// NewBus creates a bus from cfg. A nil cfg uses DefaultConfig. The bus owns the worker
// pool it creates and shuts it down on Close.
func NewBus(ctx context.Context, cfg *Config) (*Bus, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.withDefaults()

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	busCtx := GenerateRequestContext(ctx, "", ContextSourceInternal)
	busCtx = WithLogLayer(WithBusName(busCtx, cfg.Name), LogLayerBus)

	pool, owned := cfg.WorkerPool, false
	if pool == nil {
		poolCfg := cfg.WorkerPoolConfig
		if poolCfg == nil {
			poolCfg = defaultWorkerPoolConfig(cfg.Name)
		}
		antsPool, err := workerpool.New[*ants.Pool](busCtx, poolCfg)
		if err != nil {
			return nil, err
		}
		if err = antsPool.Start(busCtx); err != nil {
			return nil, err
		}
		pool, owned = antsPool, true
	}

	queue, err := asyncqueue.New(busCtx, asyncqueue.Config{
		Dispatchers: cfg.Dispatchers,
		Capacity:    cfg.QueueCapacity,
	})
	if err != nil {
		if owned {
			_ = pool.Shutdown(busCtx)
		}
		return nil, err
	}

	b := &Bus{
		name:                cfg.Name,
		ctx:                 busCtx,
		cfg:                 cfg,
		registry:            registry.New(cfg.Describer, subscription.NewFactory(pool, cfg.DefaultOwnership)),
		queue:               queue,
		gate:                pausegate.New(busCtx),
		workerPool:          pool,
		ownsWorkerPool:      owned,
		defaultErrorHandler: newLoggingErrorHandler(cfg.ErrorLogInterval, cfg.ErrorLogBurst),
		counters:            &busCounters{bus: cfg.Name},
	}
	b.errorHandlers.Store(&[]types.ErrorHandler{})
	b.counters.setPaused(false)

	Logc(busCtx).WithFields(LogFields{
		"dispatchers":    cfg.Dispatchers,
		"queueCapacity":  cfg.QueueCapacity,
		"ownership":      cfg.DefaultOwnership,
		"ownsWorkerPool": owned,
	}).Debug("Created message bus.")

	return b, nil
}

func validateConfig(cfg *Config) error {
	var err error
	if cfg.QueueCapacity < 0 {
		err = errors.Append(err, errors.UnsupportedConfigError(
			"queue capacity must not be negative, got %d", cfg.QueueCapacity))
	}
	if cfg.PostTimeout < 0 {
		err = errors.Append(err, errors.UnsupportedConfigError(
			"post timeout must not be negative, got %v", cfg.PostTimeout))
	}
	if !config.IsValidOwnership(cfg.DefaultOwnership) {
		err = errors.Append(err, errors.UnsupportedConfigError("unknown ownership %q", cfg.DefaultOwnership))
	}
	return err
}

// Name returns the bus name.
func (b *Bus) Name() string {
	return b.name
}

// Subscribe registers every handler the listener's class declares. listener must be a
// non-nil pointer. Subscribing the same listener again has no effect. Malformed
// handlers are reported in the returned error while the valid ones are subscribed.
func (b *Bus) Subscribe(listener any) error {
	if b.closed.Load() {
		return errors.BusClosedError()
	}
	return b.registry.Subscribe(b.ctx, listener)
}

// Unsubscribe removes listener from every handler of its class and reports whether it
// was subscribed. Once Unsubscribe returns, publications created afterwards never
// reach the listener.
func (b *Bus) Unsubscribe(listener any) bool {
	return b.registry.Unsubscribe(listener)
}

// Publish delivers message synchronously on the calling goroutine. Handler failures
// go to the error handlers, not to the caller. While paused, the message is held and
// delivered on Resume.
func (b *Bus) Publish(ctx context.Context, message any) error {
	if message == nil {
		return errors.InvalidMessageError("message cannot be nil")
	}
	if b.closed.Load() {
		return errors.BusClosedError()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx = GenerateRequestContext(ctx, "", ContextSourcePublish)

	if b.gate.Offer(ctx, message, false) {
		return nil
	}
	b.publishSync(ctx, message)
	return nil
}

// PublishAsync queues message for delivery by a dispatcher goroutine and returns its
// publication. Enqueue failures leave the publication in state Error. While paused the
// message is held and both return values are nil.
func (b *Bus) PublishAsync(ctx context.Context, message any, opts ...PostOption) (*publication.Publication, error) {
	if message == nil {
		return nil, errors.InvalidMessageError("message cannot be nil")
	}
	if b.closed.Load() {
		return nil, errors.BusClosedError()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	options := postOptions{timeout: b.cfg.PostTimeout}
	for _, opt := range opts {
		opt(&options)
	}

	ctx = GenerateRequestContext(ctx, "", ContextSourceAsync)

	if b.gate.Offer(ctx, message, true) {
		return nil, nil
	}
	return b.publishAsync(ctx, message, options.timeout), nil
}

// Pause holds every subsequent publication until Resume. Called from a handler during an
// atomic Resume, it takes effect once the held messages have been delivered.
func (b *Bus) Pause() {
	b.gate.Pause()
	b.counters.setPaused(b.gate.IsPaused())
}

// Resume reopens publishing and delivers the held messages in arrival order, each in
// the mode it was published with. It returns the number of messages delivered.
func (b *Bus) Resume(mode config.FlushMode) int {
	b.counters.setPaused(false)
	delivered := b.gate.Resume(mode, b.deliverHeld)
	if b.gate.IsPaused() {
		b.counters.setPaused(true)
	}

	resumeCtx := WithBusName(GenerateRequestContext(context.Background(), "", ContextSourceResume), b.name)
	Logc(WithLogLayer(resumeCtx, LogLayerBus)).WithFields(LogFields{
		"delivered": delivered,
		"held":      b.gate.CountInQueue(),
	}).Debug("Resumed publishing.")
	return delivered
}

// IsPaused reports whether publishing is paused.
func (b *Bus) IsPaused() bool {
	return b.gate.IsPaused()
}

// CountInQueue returns the number of messages held by a pause.
func (b *Bus) CountInQueue() int {
	return b.gate.CountInQueue()
}

// AddErrorHandler registers h to receive every dispatch error. Once any handler is
// registered the default logging handler is no longer used.
func (b *Bus) AddErrorHandler(h types.ErrorHandler) {
	if h == nil {
		return
	}
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()

	current := *b.errorHandlers.Load()
	updated := make([]types.ErrorHandler, 0, len(current)+1)
	updated = append(updated, current...)
	updated = append(updated, h)
	b.errorHandlers.Store(&updated)
}

// SubscriptionsFor returns the subscriptions a message of messageType is delivered to,
// in delivery order, including those declared for its ancestors.
func (b *Bus) SubscriptionsFor(messageType reflect.Type) []*subscription.Subscription {
	return slices.Clone(b.registry.Resolve(messageType))
}

// ClassSubscriptions returns the subscriptions created for a listener class.
func (b *Bus) ClassSubscriptions(class reflect.Type) []*subscription.Subscription {
	return b.registry.ClassSubscriptions(class)
}

// ListenerClasses returns every registered listener class.
func (b *Bus) ListenerClasses() []reflect.Type {
	return b.registry.ListenerClasses()
}

// Metrics returns a snapshot of the bus counters.
func (b *Bus) Metrics() Metrics {
	queueLength := b.queue.Len()
	b.counters.setQueueDepth(queueLength)

	return Metrics{
		Published:        b.counters.published.Load(),
		Delivered:        b.counters.delivered.Load(),
		DeadMessages:     b.counters.deadMessages.Load(),
		FilteredMessages: b.counters.filteredMessages.Load(),
		Errors:           b.counters.errors.Load(),
		EnqueueFailures:  b.counters.enqueueFailures.Load(),
		QueueLength:      queueLength,
		HeldMessages:     b.gate.CountInQueue(),
		Subscriptions:    b.registry.SubscriptionCount(),
		ListenerClasses:  len(b.registry.ListenerClasses()),
		Paused:           b.gate.IsPaused(),
	}
}

// Close stops the dispatchers, fails queued publications that have not started, shuts
// down an owned worker pool and drops the bus metrics. Messages held by a pause are
// discarded. If ctx has no deadline the configured shutdown timeout applies. Calling
// Close again returns the first result.
func (b *Bus) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)

		if ctx == nil {
			ctx = context.Background()
		}
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.cfg.ShutdownTimeout)
			defer cancel()
		}

		var err error
		if qErr := b.queue.Close(ctx); qErr != nil {
			err = errors.Append(err, qErr)
		}
		if b.ownsWorkerPool {
			if pErr := b.workerPool.Shutdown(ctx); pErr != nil {
				err = errors.Append(err, pErr)
			}
		}

		b.counters.delete()
		DeleteBusTelemetry(b.name)

		Logc(b.ctx).WithFields(LogFields{
			"held":      b.gate.CountInQueue(),
			"published": b.counters.published.Load(),
		}).WithError(err).Debug("Closed message bus.")

		b.closeErr = err
	})
	return b.closeErr
}

// IsClosed reports whether Close has been called.
func (b *Bus) IsClosed() bool {
	return b.closed.Load()
}

// ============================================================================
// Delivery
// ============================================================================

func (b *Bus) newPublication(ctx context.Context, message any) *publication.Publication {
	subs := b.registry.Resolve(reflect.TypeOf(message))
	return publication.New(WithBusName(ctx, b.name), message, subs,
		publication.WithRepublisher(b.republish),
		publication.WithErrorHandler(types.ErrorHandlerFunc(b.handleError)),
		publication.WithOnFinished(b.onFinished),
	)
}

func (b *Bus) publishSync(ctx context.Context, message any) publication.Outcome {
	b.counters.recordPublished(modeSync)
	return b.newPublication(ctx, message).Execute()
}

// publishAsync detaches the publication from ctx cancellation; ctx only bounds the enqueue.
func (b *Bus) publishAsync(ctx context.Context, message any, timeout time.Duration) *publication.Publication {
	b.counters.recordPublished(modeAsync)

	pub := b.newPublication(context.WithoutCancel(ctx), message)
	b.queue.Post(ctx, pub, timeout)
	b.counters.setQueueDepth(b.queue.Len())

	if pub.State() == publication.StateError {
		b.counters.recordEnqueueFailure()
		Logc(b.ctx).WithFields(LogFields{
			"publication": pub.ID(),
			"message":     types.MessageTypeName(message),
		}).WithError(pub.Wait(context.Background())).Warn("Could not enqueue publication.")
	}
	return pub
}

// deliverHeld publishes a message released by Resume, bypassing the gate.
func (b *Bus) deliverHeld(ctx context.Context, message any, async bool) {
	if async {
		b.publishAsync(ctx, message, b.cfg.PostTimeout)
		return
	}
	b.publishSync(ctx, message)
}

// republish publishes the DeadMessage and FilteredMessage wrappers synchronously,
// bypassing the gate so they stay within the originating publication.
func (b *Bus) republish(ctx context.Context, message any) {
	b.publishSync(ctx, message)
}

func (b *Bus) onFinished(pub *publication.Publication, outcome publication.Outcome) {
	b.counters.recordDelivered(outcome.Delivered)

	switch outcome.Kind {
	case publication.OutcomeNoMatch:
		if _, isDead := pub.Message().(types.DeadMessage); !isDead {
			b.counters.recordDeadMessage()
		}
	case publication.OutcomeAllFiltered:
		_, isDead := pub.Message().(types.DeadMessage)
		_, isFiltered := pub.Message().(types.FilteredMessage)
		if !isDead && !isFiltered {
			b.counters.recordFilteredMessage()
		}
	}
}

func (b *Bus) handleError(ctx context.Context, err *types.PublicationError) {
	b.counters.recordError(errorKind(err))

	handlers := *b.errorHandlers.Load()
	if len(handlers) == 0 {
		invokeErrorHandler(ctx, b.defaultErrorHandler, err)
		return
	}
	for _, h := range handlers {
		invokeErrorHandler(ctx, h, err)
	}
}
