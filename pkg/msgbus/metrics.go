// Copyright 2025 NetApp, Inc. All Rights Reserved.

package msgbus

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/netapp/msgbus/config"
	"github.com/netapp/msgbus/pkg/msgbus/types"
	"github.com/netapp/msgbus/utils/errors"
)

const (
	modeSync  = "sync"
	modeAsync = "async"

	errorKindPanic      = "panic"
	errorKindInvocation = "invocation"
	errorKindFilter     = "filter"
	errorKindEnqueue    = "enqueue"
	errorKindOther      = "other"
)

var (
	publishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.OrchestratorName,
			Name:      "published_total",
			Help:      "The total number of publications, by delivery mode",
		},
		[]string{"bus", "mode"},
	)
	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.OrchestratorName,
			Name:      "deliveries_total",
			Help:      "The total number of messages handed to listeners",
		},
		[]string{"bus"},
	)
	deadMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.OrchestratorName,
			Name:      "dead_messages_total",
			Help:      "The total number of messages no listener received",
		},
		[]string{"bus"},
	)
	filteredMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.OrchestratorName,
			Name:      "filtered_messages_total",
			Help:      "The total number of messages every matching handler filtered out",
		},
		[]string{"bus"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.OrchestratorName,
			Name:      "errors_total",
			Help:      "The total number of dispatch errors, by kind",
		},
		[]string{"bus", "kind"},
	)
	queueDepthGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.OrchestratorName,
			Name:      "queue_depth",
			Help:      "The number of asynchronous publications waiting for a dispatcher",
		},
		[]string{"bus"},
	)
	pausedGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.OrchestratorName,
			Name:      "paused",
			Help:      "Whether publishing is paused",
		},
		[]string{"bus"},
	)
)

// Metrics is a point-in-time snapshot of a bus.
type Metrics struct {
	Published        uint64
	Delivered        uint64
	DeadMessages     uint64
	FilteredMessages uint64
	Errors           uint64
	EnqueueFailures  uint64
	QueueLength      int
	HeldMessages     int
	Subscriptions    int
	ListenerClasses  int
	Paused           bool
}

// busCounters backs both the Metrics snapshot and the exported series of one bus.
type busCounters struct {
	bus string

	published        atomic.Uint64
	delivered        atomic.Uint64
	deadMessages     atomic.Uint64
	filteredMessages atomic.Uint64
	errors           atomic.Uint64
	enqueueFailures  atomic.Uint64
}

func (c *busCounters) recordPublished(mode string) {
	c.published.Add(1)
	publishedTotal.WithLabelValues(c.bus, mode).Inc()
}

func (c *busCounters) recordDelivered(n int) {
	if n <= 0 {
		return
	}
	c.delivered.Add(uint64(n))
	deliveriesTotal.WithLabelValues(c.bus).Add(float64(n))
}

func (c *busCounters) recordDeadMessage() {
	c.deadMessages.Add(1)
	deadMessagesTotal.WithLabelValues(c.bus).Inc()
}

func (c *busCounters) recordFilteredMessage() {
	c.filteredMessages.Add(1)
	filteredMessagesTotal.WithLabelValues(c.bus).Inc()
}

func (c *busCounters) recordError(kind string) {
	c.errors.Add(1)
	errorsTotal.WithLabelValues(c.bus, kind).Inc()
}

func (c *busCounters) recordEnqueueFailure() {
	c.enqueueFailures.Add(1)
	c.recordError(errorKindEnqueue)
}

func (c *busCounters) setQueueDepth(n int) {
	queueDepthGauge.WithLabelValues(c.bus).Set(float64(n))
}

func (c *busCounters) setPaused(paused bool) {
	value := 0.0
	if paused {
		value = 1
	}
	pausedGauge.WithLabelValues(c.bus).Set(value)
}

// delete drops every series labelled with this bus.
func (c *busCounters) delete() {
	labels := prometheus.Labels{"bus": c.bus}
	publishedTotal.DeletePartialMatch(labels)
	deliveriesTotal.DeletePartialMatch(labels)
	deadMessagesTotal.DeletePartialMatch(labels)
	filteredMessagesTotal.DeletePartialMatch(labels)
	errorsTotal.DeletePartialMatch(labels)
	queueDepthGauge.DeletePartialMatch(labels)
	pausedGauge.DeletePartialMatch(labels)
}

// errorKind classifies a dispatch error for the errors_total series.
func errorKind(err *types.PublicationError) string {
	switch cause := err.Cause; {
	case errors.IsHandlerPanicError(cause):
		return errorKindPanic
	case errors.IsHandlerInvocationError(cause):
		return errorKindInvocation
	case errors.IsFilterEvaluationError(cause):
		return errorKindFilter
	default:
		return errorKindOther
	}
}
