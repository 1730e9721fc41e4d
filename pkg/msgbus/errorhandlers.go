// Copyright 2025 NetApp, Inc. All Rights Reserved.

package msgbus

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	. "github.com/netapp/msgbus/logging"
	"github.com/netapp/msgbus/pkg/msgbus/types"
)

// suppressionLogInterval spaces out the notice that error logs are being dropped.
const suppressionLogInterval = 10 * time.Second

// loggingErrorHandler is used while no error handler is registered. To avoid flooding
// the log when a handler fails on every message, errors beyond the configured rate are
// counted and reported with the next logged error.
type loggingErrorHandler struct {
	limiter       *rate.Limiter
	noteSometimes rate.Sometimes
	suppressed    atomic.Int64
}

func newLoggingErrorHandler(interval time.Duration, burst int) *loggingErrorHandler {
	return &loggingErrorHandler{
		limiter: rate.NewLimiter(rate.Every(interval), burst),
		noteSometimes: rate.Sometimes{
			First:    1,
			Interval: suppressionLogInterval,
		},
	}
}

func (h *loggingErrorHandler) Handle(ctx context.Context, err *types.PublicationError) {
	if !h.limiter.Allow() {
		h.suppressed.Add(1)
		h.noteSometimes.Do(func() {
			Logc(ctx).Warn("Too many message handler errors, suppressing some.")
		})
		return
	}

	fields := LogFields{
		"publication": err.PublicationID,
		"message":     types.MessageTypeName(err.Message),
	}
	if err.Handler != nil {
		fields["handler"] = err.Handler.Name
	}
	if n := h.suppressed.Swap(0); n > 0 {
		fields["suppressed"] = n
	}
	Logc(ctx).WithFields(fields).WithError(err.Cause).Error("Message handler failed.")
}

// invokeErrorHandler shields delivery from a panicking error handler.
func invokeErrorHandler(ctx context.Context, h types.ErrorHandler, err *types.PublicationError) {
	defer func() {
		if r := recover(); r != nil {
			Logc(ctx).WithFields(LogFields{
				"publication": err.PublicationID,
				"panic":       r,
				"stack":       string(debug.Stack()),
			}).Error("Error handler panicked.")
		}
	}()
	h.Handle(ctx, err)
}
