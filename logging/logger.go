// Copyright 2025 NetApp, Inc. All Rights Reserved.

package logging

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Logc returns a log entry decorated with the request fields carried by ctx.
func Logc(ctx context.Context) *log.Entry {
	if ctx == nil {
		ctx = context.Background()
	}

	entry := log.WithFields(log.Fields{
		"requestID":     ctx.Value(ContextKeyRequestID),
		"requestSource": ctx.Value(ContextKeyRequestSource),
	})

	if val := ctx.Value(ContextKeyLogLayer); val != nil {
		entry = entry.WithField(string(ContextKeyLogLayer), val)
	}
	if val := ctx.Value(ContextKeyBusName); val != nil {
		entry = entry.WithField(string(ContextKeyBusName), val)
	}

	return entry
}

func GenerateRequestContext(ctx context.Context, requestID, requestSource string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	} else {
		if v := ctx.Value(ContextKeyRequestID); v != nil {
			requestID = fmt.Sprint(v)
		}
		if v := ctx.Value(ContextKeyRequestSource); v != nil {
			requestSource = fmt.Sprint(v)
		}
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}
	if requestSource == "" {
		requestSource = "Unknown"
	}
	ctx = context.WithValue(ctx, ContextKeyRequestID, requestID)
	ctx = context.WithValue(ctx, ContextKeyRequestSource, requestSource)
	return ctx
}

// WithLogLayer tags ctx so Logc entries carry the given layer.
func WithLogLayer(ctx context.Context, layer LogLayer) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ContextKeyLogLayer, layer)
}

// WithBusName tags ctx with the bus name used for log fields and metric labels.
func WithBusName(ctx context.Context, name string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ContextKeyBusName, name)
}

// WithHandler tags ctx with the name of the handler about to run.
func WithHandler(ctx context.Context, handler string) context.Context {
	return context.WithValue(ctx, ContextKeyHandler, handler)
}
