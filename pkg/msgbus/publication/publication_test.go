// Copyright 2025 NetApp, Inc. All Rights Reserved.

package publication

import (
	"context"
	"io"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/netapp/msgbus/config"
	mockmsgbus "github.com/netapp/msgbus/mocks/mock_pkg/mock_msgbus"
	"github.com/netapp/msgbus/pkg/msgbus/subscription"
	"github.com/netapp/msgbus/pkg/msgbus/types"
	"github.com/netapp/msgbus/utils/errors"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type shipped struct{ Order int }

type counter struct {
	mu    sync.Mutex
	calls int
}

func (c *counter) inc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
}

var factory = subscription.NewFactory(nil, config.OwnershipStrong)

func newSubscription(id uint64, opts ...func(*types.HandlerDescriptor)) *subscription.Subscription {
	d := types.HandlerDescriptor{
		Name:         "counter.Inc",
		MessageTypes: []reflect.Type{reflect.TypeOf(shipped{})},
		Enabled:      true,
		Invoke: func(_ context.Context, listener, _ any) error {
			listener.(*counter).inc()
			return nil
		},
	}
	for _, opt := range opts {
		opt(&d)
	}
	return factory.New(id, d)
}

func rejecting(d *types.HandlerDescriptor) {
	d.Filters = []types.Filter{types.FilterFunc(
		func(context.Context, any, *types.HandlerDescriptor) (bool, error) { return false, nil })}
}

func failing(d *types.HandlerDescriptor) {
	d.Invoke = func(context.Context, any, any) error { return errors.New("cannot ship") }
}

// republished collects synthetic messages handed to the republisher.
type republished struct {
	mu       sync.Mutex
	messages []any
}

func (r *republished) publish(_ context.Context, message any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// ============================================================================
// State Tests
// ============================================================================

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
		terminal bool
	}{
		{StateInitial, "Initial", false},
		{StateScheduled, "Scheduled", false},
		{StateRunning, "Running", false},
		{StateFinished, "Finished", true},
		{StateError, "Error", true},
		{State(42), "State(42)", false},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
			assert.Equal(t, tt.terminal, tt.state.IsTerminal())
		})
	}
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "NotExecuted", Outcome{}.String())
	assert.Equal(t, "Delivered(3)", Outcome{Kind: OutcomeDelivered, Delivered: 3}.String())
	assert.Equal(t, "NoMatch", Outcome{Kind: OutcomeNoMatch}.String())
	assert.Equal(t, "AllFiltered", Outcome{Kind: OutcomeAllFiltered}.String())
}

func TestNew(t *testing.T) {
	//nolint:staticcheck
	p := New(nil, shipped{Order: 1}, nil)

	assert.NotEmpty(t, p.ID())
	assert.NotNil(t, p.Context())
	assert.Equal(t, shipped{Order: 1}, p.Message())
	assert.Equal(t, StateInitial, p.State())
	assert.Equal(t, Outcome{}, p.Outcome())
	assert.Empty(t, p.Errors())
	assert.NotEqual(t, p.ID(), New(context.Background(), shipped{}, nil).ID())
}

func TestPublication_Transitions(t *testing.T) {
	tests := []struct {
		name      string
		drive     func(p *Publication)
		wantState State
	}{
		{
			name:      "scheduled",
			drive:     func(p *Publication) { assert.True(t, p.MarkScheduled()) },
			wantState: StateScheduled,
		},
		{
			name: "scheduling twice is a no-op",
			drive: func(p *Publication) {
				assert.True(t, p.MarkScheduled())
				assert.False(t, p.MarkScheduled())
			},
			wantState: StateScheduled,
		},
		{
			name:      "executed from initial",
			drive:     func(p *Publication) { p.Execute() },
			wantState: StateFinished,
		},
		{
			name: "executed from scheduled",
			drive: func(p *Publication) {
				p.MarkScheduled()
				p.Execute()
			},
			wantState: StateFinished,
		},
		{
			name:      "error from initial",
			drive:     func(p *Publication) { assert.True(t, p.MarkError(errors.BusClosedError())) },
			wantState: StateError,
		},
		{
			name: "error from scheduled",
			drive: func(p *Publication) {
				p.MarkScheduled()
				assert.True(t, p.MarkError(errors.BusClosedError()))
			},
			wantState: StateError,
		},
		{
			name: "error after finishing is ignored",
			drive: func(p *Publication) {
				p.Execute()
				assert.False(t, p.MarkError(errors.BusClosedError()))
			},
			wantState: StateFinished,
		},
		{
			name: "scheduling after error is ignored",
			drive: func(p *Publication) {
				p.MarkError(errors.BusClosedError())
				assert.False(t, p.MarkScheduled())
			},
			wantState: StateError,
		},
		{
			name: "executing after error does nothing",
			drive: func(p *Publication) {
				p.MarkError(errors.BusClosedError())
				assert.Equal(t, Outcome{}, p.Execute())
			},
			wantState: StateError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := newSubscription(1)
			sub.Subscribe(&counter{})
			p := New(context.Background(), shipped{}, []*subscription.Subscription{sub})

			tt.drive(p)
			assert.Equal(t, tt.wantState, p.State())
		})
	}
}

func TestPublication_RejectedTransitionsReturnStateError(t *testing.T) {
	tests := []struct {
		name        string
		drive       func(p *Publication)
		expectState string
	}{
		{
			name:        "after finishing",
			drive:       func(p *Publication) { p.Execute() },
			expectState: "Finished",
		},
		{
			name:        "after failing",
			drive:       func(p *Publication) { p.MarkError(errors.BusClosedError()) },
			expectState: "Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(context.Background(), shipped{}, nil)
			tt.drive(p)

			for _, next := range []State{StateRunning, StateError} {
				err := p.transition(next, "retry")
				var stateErr *errors.StateError
				require.True(t, errors.As(err, &stateErr))
				assert.Equal(t, tt.expectState, stateErr.State)
				assert.Contains(t, stateErr.Message, p.ID())
			}
			assert.False(t, p.MarkError(errors.BusClosedError()))
		})
	}

	t.Run("from scheduled", func(t *testing.T) {
		p := New(context.Background(), shipped{}, nil)
		require.True(t, p.MarkScheduled())
		assert.NoError(t, p.transition(StateRunning, "run"))
		assert.Equal(t, StateRunning, p.State())
	})
}

// ============================================================================
// Execute Tests
// ============================================================================

func TestPublication_Execute(t *testing.T) {
	tests := []struct {
		name        string
		message     any
		build       func() []*subscription.Subscription
		wantOutcome Outcome
		wantRepub   []any
	}{
		{
			name:    "delivered to every listener",
			message: shipped{Order: 1},
			build: func() []*subscription.Subscription {
				a, b := newSubscription(1), newSubscription(2)
				a.Subscribe(&counter{})
				b.Subscribe(&counter{})
				b.Subscribe(&counter{})
				return []*subscription.Subscription{b, a}
			},
			wantOutcome: Outcome{Kind: OutcomeDelivered, Delivered: 3},
		},
		{
			name:        "no subscriptions publishes a dead message",
			message:     shipped{Order: 2},
			build:       func() []*subscription.Subscription { return nil },
			wantOutcome: Outcome{Kind: OutcomeNoMatch},
			wantRepub:   []any{types.DeadMessage{Message: shipped{Order: 2}}},
		},
		{
			name:    "subscriptions without listeners publish a dead message",
			message: shipped{Order: 3},
			build: func() []*subscription.Subscription {
				return []*subscription.Subscription{newSubscription(1, rejecting)}
			},
			wantOutcome: Outcome{Kind: OutcomeNoMatch},
			wantRepub:   []any{types.DeadMessage{Message: shipped{Order: 3}}},
		},
		{
			name:    "dead messages are never wrapped again",
			message: types.DeadMessage{Message: shipped{}},
			build: func() []*subscription.Subscription {
				return nil
			},
			wantOutcome: Outcome{Kind: OutcomeNoMatch},
		},
		{
			name:    "all filtered publishes a filtered message",
			message: shipped{Order: 4},
			build: func() []*subscription.Subscription {
				sub := newSubscription(1, rejecting)
				sub.Subscribe(&counter{})
				return []*subscription.Subscription{sub}
			},
			wantOutcome: Outcome{Kind: OutcomeAllFiltered},
			wantRepub:   []any{types.FilteredMessage{Message: shipped{Order: 4}}},
		},
		{
			name:    "filtered messages are never wrapped again",
			message: types.FilteredMessage{Message: shipped{}},
			build: func() []*subscription.Subscription {
				sub := newSubscription(1, rejecting)
				sub.Subscribe(&counter{})
				return []*subscription.Subscription{sub}
			},
			wantOutcome: Outcome{Kind: OutcomeAllFiltered},
		},
		{
			name:    "filtered dead messages are not wrapped",
			message: types.DeadMessage{Message: shipped{}},
			build: func() []*subscription.Subscription {
				sub := newSubscription(1, rejecting)
				sub.Subscribe(&counter{})
				return []*subscription.Subscription{sub}
			},
			wantOutcome: Outcome{Kind: OutcomeAllFiltered},
		},
		{
			name:    "one delivery outweighs filtered subscriptions",
			message: shipped{Order: 5},
			build: func() []*subscription.Subscription {
				filtered, open := newSubscription(1, rejecting), newSubscription(2)
				filtered.Subscribe(&counter{})
				open.Subscribe(&counter{})
				return []*subscription.Subscription{open, filtered}
			},
			wantOutcome: Outcome{Kind: OutcomeDelivered, Delivered: 1},
		},
		{
			name:    "failing handlers still count as delivered",
			message: shipped{Order: 6},
			build: func() []*subscription.Subscription {
				sub := newSubscription(1, failing)
				sub.Subscribe(&counter{})
				return []*subscription.Subscription{sub}
			},
			wantOutcome: Outcome{Kind: OutcomeDelivered, Delivered: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repub := &republished{}
			var finished []Outcome
			p := New(context.Background(), tt.message, tt.build(),
				WithRepublisher(repub.publish),
				WithOnFinished(func(_ *Publication, o Outcome) { finished = append(finished, o) }),
			)

			outcome := p.Execute()

			assert.Equal(t, tt.wantOutcome, outcome)
			assert.Equal(t, tt.wantOutcome, p.Outcome())
			assert.Equal(t, StateFinished, p.State())
			assert.Equal(t, tt.wantRepub, repub.messages)
			assert.Equal(t, []Outcome{tt.wantOutcome}, finished)
		})
	}
}

func TestPublication_ExecuteRunsOnce(t *testing.T) {
	sub := newSubscription(1)
	listener := &counter{}
	sub.Subscribe(listener)
	repub := &republished{}
	p := New(context.Background(), shipped{}, []*subscription.Subscription{sub}, WithRepublisher(repub.publish))

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 10)
	for i := range outcomes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = p.Execute()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, listener.calls)
	for _, o := range outcomes {
		// Losers of the race may observe the outcome before it is recorded.
		assert.Contains(t, []Outcome{{}, {Kind: OutcomeDelivered, Delivered: 1}}, o)
	}
	assert.Equal(t, Outcome{Kind: OutcomeDelivered, Delivered: 1}, p.Execute())
}

func TestPublication_RepublishHappensBeforeFinished(t *testing.T) {
	var p *Publication
	var stateDuringRepublish State
	p = New(context.Background(), shipped{}, nil, WithRepublisher(func(context.Context, any) {
		stateDuringRepublish = p.State()
		select {
		case <-p.Done():
			t.Error("publication completed before its dead message was published")
		default:
		}
	}))

	p.Execute()
	assert.Equal(t, StateRunning, stateDuringRepublish)
}

// ============================================================================
// Error Handling Tests
// ============================================================================

func TestPublication_ErrorsReachErrorHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	handler := mockmsgbus.NewMockErrorHandler(ctrl)

	sub := newSubscription(1, failing)
	listener := &counter{}
	sub.Subscribe(listener)
	ctx := context.Background()
	p := New(ctx, shipped{Order: 7}, []*subscription.Subscription{sub}, WithErrorHandler(handler))

	handler.EXPECT().Handle(ctx, gomock.Any()).Do(func(_ context.Context, err *types.PublicationError) {
		assert.Equal(t, p.ID(), err.PublicationID)
		assert.Same(t, listener, err.Listener)
		assert.True(t, errors.IsHandlerInvocationError(err))
	}).Times(1)

	p.Execute()

	errs := p.Errors()
	require.Len(t, errs, 1)
	assert.True(t, errors.IsHandlerInvocationError(errs[0]))
	assert.NoError(t, p.Wait(ctx), "handler errors do not fail the publication")
}

func TestPublication_MarkErrorRecordsFailure(t *testing.T) {
	p := New(context.Background(), shipped{}, nil)
	cause := errors.EnqueueTimeoutError(time.Millisecond)

	require.True(t, p.MarkError(cause))

	assert.Equal(t, []error{cause}, p.Errors())
	err := p.Wait(context.Background())
	assert.True(t, errors.IsEnqueueTimeoutError(err))
	assert.Equal(t, Outcome{}, p.Outcome())
}

// ============================================================================
// Wait Tests
// ============================================================================

func TestPublication_Wait(t *testing.T) {
	t.Run("returns once finished", func(t *testing.T) {
		p := New(context.Background(), shipped{}, nil)
		go func() {
			time.Sleep(10 * time.Millisecond)
			p.Execute()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, p.Wait(ctx))
		assert.Equal(t, StateFinished, p.State())
	})

	t.Run("returns the context error when the context ends first", func(t *testing.T) {
		p := New(context.Background(), shipped{}, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		assert.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)
		assert.Equal(t, StateInitial, p.State())
	})

	t.Run("done channel closes on error", func(t *testing.T) {
		p := New(context.Background(), shipped{}, nil)
		p.MarkError(errors.BusClosedError())

		select {
		case <-p.Done():
		default:
			t.Fatal("done channel still open")
		}
		assert.True(t, errors.IsBusClosedError(p.Wait(context.Background())))
	})
}
