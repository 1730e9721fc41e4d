// Copyright 2025 NetApp, Inc. All Rights Reserved.

// Package publication holds the state machine of a single message publication.
package publication

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	. "github.com/netapp/msgbus/logging"
	"github.com/netapp/msgbus/pkg/msgbus/subscription"
	"github.com/netapp/msgbus/pkg/msgbus/types"
	"github.com/netapp/msgbus/utils/errors"
)

// State of a publication. Transitions only move forward:
// Initial -> Scheduled -> Running -> Finished, or Initial|Scheduled -> Error.
type State int32

const (
	StateInitial State = iota
	StateScheduled
	StateRunning
	StateFinished
	StateError
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateScheduled:
		return "Scheduled"
	case StateRunning:
		return "Running"
	case StateFinished:
		return "Finished"
	case StateError:
		return "Error"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// IsTerminal reports whether the publication can no longer change state.
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateError
}

// OutcomeKind classifies what an executed publication achieved.
type OutcomeKind int

const (
	// OutcomeNotExecuted is reported by publications that never ran.
	OutcomeNotExecuted OutcomeKind = iota
	// OutcomeDelivered means at least one listener received the message.
	OutcomeDelivered
	// OutcomeNoMatch means no subscription with listeners matched the message.
	OutcomeNoMatch
	// OutcomeAllFiltered means matching subscriptions existed but all filtered the message out.
	OutcomeAllFiltered
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNotExecuted:
		return "NotExecuted"
	case OutcomeDelivered:
		return "Delivered"
	case OutcomeNoMatch:
		return "NoMatch"
	case OutcomeAllFiltered:
		return "AllFiltered"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of executing a publication.
type Outcome struct {
	Kind OutcomeKind
	// Delivered counts listener deliveries; only set for OutcomeDelivered.
	Delivered int
}

func (o Outcome) String() string {
	if o.Kind == OutcomeDelivered {
		return fmt.Sprintf("Delivered(%d)", o.Delivered)
	}
	return o.Kind.String()
}

// Republisher publishes a synthetic message synchronously on behalf of a publication.
type Republisher func(ctx context.Context, message any)

// Option configures a Publication.
type Option func(*Publication)

// WithRepublisher sets the function used to publish DeadMessage and FilteredMessage wrappers.
func WithRepublisher(r Republisher) Option {
	return func(p *Publication) {
		p.republish = r
	}
}

// WithErrorHandler sets the handler that receives every error caught during dispatch.
func WithErrorHandler(h types.ErrorHandler) Option {
	return func(p *Publication) {
		p.errorHandler = h
	}
}

// WithOnFinished registers a callback invoked once the publication has executed.
func WithOnFinished(f func(*Publication, Outcome)) Option {
	return func(p *Publication) {
		p.onFinished = f
	}
}

// Publication is one message travelling through the bus together with the ordered
// subscription snapshot it is delivered to.
type Publication struct {
	id            string
	ctx           context.Context
	message       any
	subscriptions []*subscription.Subscription

	state     atomic.Int32
	delivered atomic.Int64
	filtered  atomic.Int64
	outcome   atomic.Pointer[Outcome]

	mu      sync.Mutex
	errs    error
	failure error

	done     chan struct{}
	doneOnce sync.Once

	republish    Republisher
	errorHandler types.ErrorHandler
	onFinished   func(*Publication, Outcome)
}

var _ types.Publication = (*Publication)(nil)

// New creates a publication in state Initial. subscriptions must already be in delivery order.
func New(ctx context.Context, message any, subscriptions []*subscription.Subscription, opts ...Option) *Publication {
	if ctx == nil {
		ctx = context.Background()
	}
	p := &Publication{
		id:            uuid.New().String(),
		ctx:           ctx,
		message:       message,
		subscriptions: subscriptions,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publication) ID() string { return p.id }

func (p *Publication) Context() context.Context { return p.ctx }

func (p *Publication) Message() any { return p.message }

// Subscriptions returns the snapshot taken when the publication was created.
func (p *Publication) Subscriptions() []*subscription.Subscription { return p.subscriptions }

func (p *Publication) State() State { return State(p.state.Load()) }

// Done is closed when the publication reaches Finished or Error.
func (p *Publication) Done() <-chan struct{} { return p.done }

// MarkScheduled moves an Initial publication to Scheduled. It is a no-op in any other state.
func (p *Publication) MarkScheduled() bool {
	return p.state.CompareAndSwap(int32(StateInitial), int32(StateScheduled))
}

// MarkError fails a publication that has not started running. It returns false if the
// publication already left Initial and Scheduled.
func (p *Publication) MarkError(err error) bool {
	if stateErr := p.transition(StateError, "fail"); stateErr != nil {
		Logc(p.ctx).WithFields(LogFields{
			"publication": p.id,
			"cause":       err,
		}).WithError(stateErr).Debug("Ignoring failure of a publication that already ran.")
		return false
	}

	p.mu.Lock()
	p.failure = err
	p.errs = errors.Append(p.errs, err)
	p.mu.Unlock()

	Logc(p.ctx).WithFields(LogFields{
		"publication": p.id,
		"message":     types.MessageTypeName(p.message),
	}).WithError(err).Debug("Publication failed before running.")

	p.close()
	return true
}

// MarkDelivered records one delivery to a listener.
func (p *Publication) MarkDelivered() { p.delivered.Add(1) }

// MarkFiltered records one subscription rejecting the message.
func (p *Publication) MarkFiltered() { p.filtered.Add(1) }

// HandleError records a dispatch error and forwards it to the error handler. Errors from
// asynchronous handlers may arrive after the publication finished.
func (p *Publication) HandleError(err *types.PublicationError) {
	p.mu.Lock()
	p.errs = errors.Append(p.errs, err)
	p.mu.Unlock()

	if p.errorHandler != nil {
		p.errorHandler.Handle(p.ctx, err)
	}
}

// Errors returns every error recorded so far.
func (p *Publication) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Errors(p.errs)
}

// Outcome returns the result of Execute, or a NotExecuted outcome if it never ran.
func (p *Publication) Outcome() Outcome {
	if o := p.outcome.Load(); o != nil {
		return *o
	}
	return Outcome{}
}

// Execute delivers the message to every subscription in snapshot order. Only the first
// call on a publication in Initial or Scheduled runs; any other call returns the
// outcome recorded so far.
func (p *Publication) Execute() Outcome {
	if err := p.transition(StateRunning, "run"); err != nil {
		Logc(p.ctx).WithField("publication", p.id).WithError(err).Trace("Publication already executed.")
		return p.Outcome()
	}

	for _, sub := range p.subscriptions {
		sub.Publish(p, p.message)
	}

	outcome := p.evaluate()
	p.outcome.Store(&outcome)
	p.republishIfUndelivered(outcome)

	p.state.Store(int32(StateFinished))
	if p.onFinished != nil {
		p.onFinished(p, outcome)
	}
	p.close()
	return outcome
}

// transition moves a publication that has not started running, in Initial or Scheduled,
// to next. Any other state yields a StateError.
func (p *Publication) transition(next State, action string) error {
	if p.state.CompareAndSwap(int32(StateInitial), int32(next)) ||
		p.state.CompareAndSwap(int32(StateScheduled), int32(next)) {
		return nil
	}
	return errors.NewStateError(p.State().String(), fmt.Sprintf("publication %s cannot %s", p.id, action))
}

func (p *Publication) evaluate() Outcome {
	switch delivered := p.delivered.Load(); {
	case delivered > 0:
		return Outcome{Kind: OutcomeDelivered, Delivered: int(delivered)}
	case p.filtered.Load() > 0:
		return Outcome{Kind: OutcomeAllFiltered}
	default:
		return Outcome{Kind: OutcomeNoMatch}
	}
}

func (p *Publication) republishIfUndelivered(outcome Outcome) {
	if p.republish == nil {
		return
	}

	_, isDead := p.message.(types.DeadMessage)
	_, isFiltered := p.message.(types.FilteredMessage)

	switch {
	case outcome.Kind == OutcomeNoMatch && !isDead:
		Logc(p.ctx).WithFields(LogFields{
			"publication": p.id,
			"message":     types.MessageTypeName(p.message),
		}).Trace("No listener received the message, publishing dead message.")
		p.republish(p.ctx, types.DeadMessage{Message: p.message})
	case outcome.Kind == OutcomeAllFiltered && !isDead && !isFiltered:
		Logc(p.ctx).WithFields(LogFields{
			"publication": p.id,
			"message":     types.MessageTypeName(p.message),
		}).Trace("Every matching handler filtered the message, publishing filtered message.")
		p.republish(p.ctx, types.FilteredMessage{Message: p.message})
	}
}

// Wait blocks until the publication finishes or ctx is done. It returns ctx.Err() if ctx
// ends first, the failure cause for a publication in Error, and nil once Finished.
// Handler errors do not fail a publication; see Errors.
func (p *Publication) Wait(ctx context.Context) error {
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if p.State() == StateError {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.failure
	}
	return nil
}

func (p *Publication) close() {
	p.doneOnce.Do(func() { close(p.done) })
}
