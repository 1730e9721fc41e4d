// Copyright 2025 NetApp, Inc. All Rights Reserved.

package logging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/netapp/msgbus/config"
	"github.com/netapp/msgbus/pkg/convert"
)

const (
	metricStatusSuccess          = "success"
	metricStatusFailure          = "failure"
	metricStatusCanceled         = "canceled"
	metricStatusDeadlineExceeded = "deadline_exceeded"

	unknownLabel = "unknown"
)

type (
	// Recorder records metrics by relying on a captured context and errors that have been staged by the Telemeter.
	Recorder func(err *error)
	// Telemeter stages metrics recording by capturing the current state of a context and returns a Recorder.
	Telemeter func(context.Context) Recorder
)

var (
	handlerInvocationSharedLabels = []string{"bus", "handler"}
	// handlerInvocationDurationSeconds tracks how long handler invocations take.
	handlerInvocationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.OrchestratorName,
			Subsystem: "handler",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of handler invocations from start to finish.",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		append([]string{"status"}, handlerInvocationSharedLabels...),
	)
	// handlerInvocationsInFlight tracks the number of handler invocations currently running.
	handlerInvocationsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: config.OrchestratorName,
			Subsystem: "handler",
			Name:      "invocations_in_flight",
			Help:      "Number of handler invocations currently running.",
		},
		handlerInvocationSharedLabels,
	)

	// Compile time safety; every telemeter must conform to the Telemeter type.
	_ Telemeter = HandlerInvocationDurationTelemeter
	_ Telemeter = HandlerInvocationInFlightTelemeter
)

// HandlerInvocationDurationTelemeter creates a Telemeter for measuring how long handler invocations take.
// The returned Recorder captures a context to update metrics.
func HandlerInvocationDurationTelemeter(ctx context.Context) Recorder {
	status := metricStatusSuccess
	values := []string{
		getContextBusName(ctx),
		getContextHandler(ctx),
	}

	startTime := time.Now()
	var once sync.Once
	return func(errPtr *error) {
		once.Do(func() {
			elapsed := time.Since(startTime).Seconds()
			if err := convert.ToVal(errPtr); err != nil {
				status = metricStatusFailure
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				switch ctxErr {
				case context.Canceled:
					status = metricStatusCanceled
				case context.DeadlineExceeded:
					status = metricStatusDeadlineExceeded
				}
			}

			values = append([]string{status}, values...)
			handlerInvocationDurationSeconds.WithLabelValues(values...).Observe(elapsed)
		})
	}
}

// HandlerInvocationInFlightTelemeter creates a Telemeter for gauging running handler invocations.
// The returned Recorder captures a context to update metrics.
func HandlerInvocationInFlightTelemeter(ctx context.Context) Recorder {
	values := []string{
		getContextBusName(ctx),
		getContextHandler(ctx),
	}

	handlerInvocationsInFlight.WithLabelValues(values...).Inc()
	var once sync.Once
	return func(_ *error) {
		once.Do(func() {
			handlerInvocationsInFlight.WithLabelValues(values...).Dec()
		})
	}
}

// DeleteBusTelemetry drops every handler series labelled with the given bus name.
func DeleteBusTelemetry(busName string) {
	labels := prometheus.Labels{"bus": busName}
	handlerInvocationDurationSeconds.DeletePartialMatch(labels)
	handlerInvocationsInFlight.DeletePartialMatch(labels)
}

func getContextBusName(ctx context.Context) string {
	return getContextString(ctx, ContextKeyBusName)
}

func getContextHandler(ctx context.Context) string {
	return getContextString(ctx, ContextKeyHandler)
}

func getContextString(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return unknownLabel
	}
	switch v := ctx.Value(key).(type) {
	case nil:
		return unknownLabel
	case string:
		if v == "" {
			return unknownLabel
		}
		return v
	default:
		return fmt.Sprint(v)
	}
}
