// Copyright 2025 NetApp, Inc. All Rights Reserved.

package subscription

import (
	"context"
	"io"
	"os"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netapp/msgbus/config"
	"github.com/netapp/msgbus/logging"
	"github.com/netapp/msgbus/pkg/msgbus/types"
	"github.com/netapp/msgbus/pkg/workerpool/ants"
	"github.com/netapp/msgbus/utils/errors"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// fakePublication records what the pipeline reports.
type fakePublication struct {
	mu        sync.Mutex
	delivered int
	filtered  int
	errs      []*types.PublicationError
}

func (p *fakePublication) ID() string               { return "pub-1" }
func (p *fakePublication) Context() context.Context { return context.Background() }
func (p *fakePublication) Message() any             { return nil }

func (p *fakePublication) MarkDelivered() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delivered++
}

func (p *fakePublication) MarkFiltered() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filtered++
}

func (p *fakePublication) HandleError(err *types.PublicationError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, err)
}

func (p *fakePublication) errors() []*types.PublicationError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.errs)
}

type orderCreated struct{ ID int }

type recorder struct {
	mu       sync.Mutex
	messages []any
}

func (r *recorder) record(message any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recorder) received() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.messages)
}

var (
	orderType    = reflect.TypeOf(orderCreated{})
	recorderType = reflect.TypeOf(&recorder{})
)

func recordingHandler(opts ...func(*types.HandlerDescriptor)) types.HandlerDescriptor {
	d := types.HandlerDescriptor{
		Name:         "recorder.Record",
		ListenerType: recorderType,
		MessageTypes: []reflect.Type{orderType},
		Enabled:      true,
		Invoke: func(_ context.Context, listener, message any) error {
			listener.(*recorder).record(message)
			return nil
		},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func rejectAll(context.Context, any, *types.HandlerDescriptor) (bool, error) { return false, nil }

func acceptAll(context.Context, any, *types.HandlerDescriptor) (bool, error) { return true, nil }

// ============================================================================
// Pipeline Tests
// ============================================================================

func TestSubscription_Publish(t *testing.T) {
	tests := []struct {
		name          string
		handler       types.HandlerDescriptor
		listeners     int
		wantDelivered int
		wantFiltered  int
		wantErrors    int
		wantMessage   any
	}{
		{
			name:          "plain delivery reaches every listener",
			handler:       recordingHandler(),
			listeners:     3,
			wantDelivered: 3,
			wantMessage:   orderCreated{ID: 1},
		},
		{
			name:      "no listeners skips the pipeline",
			handler:   recordingHandler(func(d *types.HandlerDescriptor) { d.Filters = []types.Filter{types.FilterFunc(rejectAll)} }),
			listeners: 0,
		},
		{
			name: "accepting filters deliver",
			handler: recordingHandler(func(d *types.HandlerDescriptor) {
				d.Filters = []types.Filter{types.FilterFunc(acceptAll), types.FilterFunc(acceptAll)}
			}),
			listeners:     2,
			wantDelivered: 2,
			wantMessage:   orderCreated{ID: 1},
		},
		{
			name: "one rejecting filter blocks delivery",
			handler: recordingHandler(func(d *types.HandlerDescriptor) {
				d.Filters = []types.Filter{types.FilterFunc(acceptAll), types.FilterFunc(rejectAll)}
			}),
			listeners:    2,
			wantFiltered: 1,
		},
		{
			name: "failing filter counts as rejection and reports an error",
			handler: recordingHandler(func(d *types.HandlerDescriptor) {
				d.Filters = []types.Filter{types.FilterFunc(
					func(context.Context, any, *types.HandlerDescriptor) (bool, error) {
						return true, errors.New("filter broke")
					})}
			}),
			listeners:    1,
			wantFiltered: 1,
			wantErrors:   1,
		},
		{
			name: "panicking filter counts as rejection and reports an error",
			handler: recordingHandler(func(d *types.HandlerDescriptor) {
				d.Filters = []types.Filter{types.FilterFunc(
					func(context.Context, any, *types.HandlerDescriptor) (bool, error) {
						panic("filter exploded")
					})}
			}),
			listeners:    1,
			wantFiltered: 1,
			wantErrors:   1,
		},
		{
			name: "envelope wraps the message",
			handler: recordingHandler(func(d *types.HandlerDescriptor) {
				d.Envelope = true
			}),
			listeners:     1,
			wantDelivered: 1,
			wantMessage:   types.Envelope{Message: orderCreated{ID: 1}},
		},
		{
			name: "returned error is reported per listener",
			handler: recordingHandler(func(d *types.HandlerDescriptor) {
				d.Invoke = func(context.Context, any, any) error { return errors.New("handler broke") }
			}),
			listeners:     2,
			wantDelivered: 2,
			wantErrors:    2,
		},
		{
			name: "panic is recovered and reported",
			handler: recordingHandler(func(d *types.HandlerDescriptor) {
				d.Invoke = func(context.Context, any, any) error { panic("handler exploded") }
			}),
			listeners:     1,
			wantDelivered: 1,
			wantErrors:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := NewFactory(nil, config.OwnershipStrong).New(1, tt.handler)
			listeners := make([]*recorder, tt.listeners)
			for i := range listeners {
				listeners[i] = &recorder{}
				require.True(t, sub.Subscribe(listeners[i]))
			}

			pub := &fakePublication{}
			sub.Publish(pub, orderCreated{ID: 1})

			assert.Equal(t, tt.wantDelivered, pub.delivered)
			assert.Equal(t, tt.wantFiltered, pub.filtered)
			assert.Len(t, pub.errors(), tt.wantErrors)
			for _, l := range listeners {
				if tt.wantMessage != nil {
					assert.Equal(t, []any{tt.wantMessage}, l.received())
				} else {
					assert.Empty(t, l.received())
				}
			}
		})
	}
}

func TestSubscription_ErrorsCarryContext(t *testing.T) {
	handler := recordingHandler(func(d *types.HandlerDescriptor) {
		d.Invoke = func(context.Context, any, any) error { panic("handler exploded") }
	})
	sub := NewFactory(nil, config.OwnershipStrong).New(1, handler)
	listener := &recorder{}
	sub.Subscribe(listener)

	pub := &fakePublication{}
	sub.Publish(pub, orderCreated{ID: 9})

	errs := pub.errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "pub-1", errs[0].PublicationID)
	assert.Same(t, listener, errs[0].Listener)
	assert.Equal(t, orderCreated{ID: 9}, errs[0].Message)
	assert.Equal(t, "recorder.Record", errs[0].Handler.Name)
	assert.True(t, errors.IsHandlerPanicError(errs[0]))
}

func TestSubscription_FilterErrorIsFilterEvaluationError(t *testing.T) {
	handler := recordingHandler(func(d *types.HandlerDescriptor) {
		d.Filters = []types.Filter{types.FilterFunc(
			func(context.Context, any, *types.HandlerDescriptor) (bool, error) {
				return false, errors.New("filter broke")
			})}
	})
	sub := NewFactory(nil, config.OwnershipStrong).New(1, handler)
	sub.Subscribe(&recorder{})

	pub := &fakePublication{}
	sub.Publish(pub, orderCreated{})

	errs := pub.errors()
	require.Len(t, errs, 1)
	assert.True(t, errors.IsFilterEvaluationError(errs[0]))
	assert.Nil(t, errs[0].Listener)
}

func TestSubscription_HandlerReceivesHandlerContext(t *testing.T) {
	var seen atomic.Value
	handler := recordingHandler(func(d *types.HandlerDescriptor) {
		d.Invoke = func(ctx context.Context, _, _ any) error {
			seen.Store(ctx.Value(logging.ContextKeyHandler))
			return nil
		}
	})
	sub := NewFactory(nil, config.OwnershipStrong).New(1, handler)
	sub.Subscribe(&recorder{})
	sub.Publish(&fakePublication{}, orderCreated{})

	assert.Equal(t, "recorder.Record", seen.Load())
}

// ============================================================================
// Async and Synchronized Invocation Tests
// ============================================================================

func startPool(t *testing.T, workers int) *ants.Pool {
	t.Helper()
	ctx := context.Background()
	pool, err := ants.NewPool(ctx, ants.NewConfig(ants.WithNumWorkers(workers)))
	require.NoError(t, err)
	require.NoError(t, pool.Start(ctx))
	t.Cleanup(func() { _ = pool.Shutdown(ctx) })
	return pool
}

func TestSubscription_AsyncDeliveryRunsOnPool(t *testing.T) {
	pool := startPool(t, 2)
	release := make(chan struct{})
	var calls atomic.Int32

	handler := recordingHandler(func(d *types.HandlerDescriptor) {
		d.Delivery = types.DeliveryAsync
		d.Invoke = func(context.Context, any, any) error {
			<-release
			calls.Add(1)
			return nil
		}
	})
	sub := NewFactory(pool, config.OwnershipStrong).New(1, handler)
	sub.Subscribe(&recorder{})

	pub := &fakePublication{}
	done := make(chan struct{})
	go func() {
		sub.Publish(pub, orderCreated{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on an asynchronous handler")
	}
	assert.Equal(t, 1, pub.delivered)
	assert.Equal(t, int32(0), calls.Load())

	close(release)
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSubscription_AsyncSubmitFailureIsReported(t *testing.T) {
	pool := startPool(t, 1)
	require.NoError(t, pool.Shutdown(context.Background()))

	handler := recordingHandler(func(d *types.HandlerDescriptor) { d.Delivery = types.DeliveryAsync })
	sub := NewFactory(pool, config.OwnershipStrong).New(1, handler)
	sub.Subscribe(&recorder{})

	pub := &fakePublication{}
	sub.Publish(pub, orderCreated{})

	errs := pub.errors()
	require.Len(t, errs, 1)
	assert.True(t, errors.IsHandlerInvocationError(errs[0]))
}

func TestSubscription_AsyncWithoutPoolRunsInline(t *testing.T) {
	handler := recordingHandler(func(d *types.HandlerDescriptor) { d.Delivery = types.DeliveryAsync })
	sub := NewFactory(nil, config.OwnershipStrong).New(1, handler)
	listener := &recorder{}
	sub.Subscribe(listener)

	sub.Publish(&fakePublication{}, orderCreated{ID: 3})
	assert.Equal(t, []any{orderCreated{ID: 3}}, listener.received())
}

// concurrencyProbe tracks the peak number of concurrent calls.
type concurrencyProbe struct {
	current atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
}

func (p *concurrencyProbe) enter() {
	n := p.current.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	p.current.Add(-1)
	p.calls.Add(1)
}

func TestSubscription_SynchronizedSerializesPerListener(t *testing.T) {
	tests := []struct {
		name         string
		synchronized bool
		wantPeak     func(peak int32) bool
	}{
		{name: "synchronized", synchronized: true, wantPeak: func(peak int32) bool { return peak == 1 }},
		{name: "unsynchronized", synchronized: false, wantPeak: func(peak int32) bool { return peak > 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := startPool(t, 8)
			handler := types.HandlerDescriptor{
				Name:         "concurrencyProbe.Enter",
				MessageTypes: []reflect.Type{orderType},
				Delivery:     types.DeliveryAsync,
				Synchronized: tt.synchronized,
				Enabled:      true,
				Invoke: func(_ context.Context, listener, _ any) error {
					listener.(*concurrencyProbe).enter()
					return nil
				},
			}
			sub := NewFactory(pool, config.OwnershipStrong).New(1, handler)
			probe := &concurrencyProbe{}
			sub.Subscribe(probe)

			const publications = 40
			for i := 0; i < publications; i++ {
				sub.Publish(&fakePublication{}, orderCreated{ID: i})
			}

			require.Eventually(t, func() bool { return probe.calls.Load() == publications },
				5*time.Second, 5*time.Millisecond)
			assert.True(t, tt.wantPeak(probe.peak.Load()), "peak concurrency %d", probe.peak.Load())
		})
	}
}

func TestSubscription_SynchronizedSpansHandlersOfOneListener(t *testing.T) {
	pool := startPool(t, 8)
	factory := NewFactory(pool, config.OwnershipStrong)

	newHandler := func(name string) types.HandlerDescriptor {
		return types.HandlerDescriptor{
			Name:         name,
			MessageTypes: []reflect.Type{orderType},
			Delivery:     types.DeliveryAsync,
			Synchronized: true,
			Enabled:      true,
			Invoke: func(_ context.Context, listener, _ any) error {
				listener.(*concurrencyProbe).enter()
				return nil
			},
		}
	}
	first := factory.New(1, newHandler("probe.First"))
	second := factory.New(2, newHandler("probe.Second"))
	probe := &concurrencyProbe{}
	first.Subscribe(probe)
	second.Subscribe(probe)

	for i := 0; i < 20; i++ {
		first.Publish(&fakePublication{}, orderCreated{ID: i})
		second.Publish(&fakePublication{}, orderCreated{ID: i})
	}

	require.Eventually(t, func() bool { return probe.calls.Load() == 40 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), probe.peak.Load())
}

// ============================================================================
// Subscription and Factory Tests
// ============================================================================

func TestSubscription_Membership(t *testing.T) {
	sub := NewFactory(nil, config.OwnershipStrong).New(7, recordingHandler())
	listener := &recorder{}

	assert.Equal(t, uint64(7), sub.ID())
	assert.True(t, sub.Subscribe(listener))
	assert.False(t, sub.Subscribe(listener))
	assert.True(t, sub.Contains(listener))
	assert.Equal(t, 1, sub.Size())

	assert.True(t, sub.Unsubscribe(listener))
	assert.False(t, sub.Unsubscribe(listener))
	assert.Equal(t, 0, sub.Size())
}

func TestFactory_New(t *testing.T) {
	handler := recordingHandler(func(d *types.HandlerDescriptor) {
		d.Priority = 5
		d.Filters = []types.Filter{types.FilterFunc(acceptAll)}
	})

	tests := []struct {
		name             string
		ownership        config.Ownership
		defaultOwnership config.Ownership
		want             config.Ownership
	}{
		{name: "descriptor ownership wins", ownership: config.OwnershipWeak, defaultOwnership: config.OwnershipStrong, want: config.OwnershipWeak},
		{name: "default ownership applies", ownership: "", defaultOwnership: config.OwnershipWeak, want: config.OwnershipWeak},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler
			h.Ownership = tt.ownership
			sub := NewFactory(nil, tt.defaultOwnership).New(1, h)

			assert.Equal(t, tt.want, sub.Listeners().Ownership())
			assert.Equal(t, 5, sub.Priority())
			assert.Equal(t, []reflect.Type{orderType}, sub.MessageTypes())
		})
	}
}

func TestFactory_NewCopiesDescriptorSlices(t *testing.T) {
	handler := recordingHandler()
	sub := NewFactory(nil, config.OwnershipStrong).New(1, handler)

	handler.MessageTypes[0] = reflect.TypeOf("")
	assert.Equal(t, orderType, sub.MessageTypes()[0])
}

func TestCompare(t *testing.T) {
	factory := NewFactory(nil, config.OwnershipStrong)
	withPriority := func(id uint64, priority int) *Subscription {
		return factory.New(id, recordingHandler(func(d *types.HandlerDescriptor) { d.Priority = priority }))
	}

	subs := []*Subscription{
		withPriority(1, 0),
		withPriority(2, 10),
		withPriority(3, 0),
		withPriority(4, -5),
		withPriority(5, 10),
	}
	slices.SortFunc(subs, Compare)

	var ids []uint64
	for _, s := range subs {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []uint64{5, 2, 3, 1, 4}, ids)
}
