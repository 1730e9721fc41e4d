// Copyright 2025 NetApp, Inc. All Rights Reserved.

package logging

import (
	log "github.com/sirupsen/logrus"
)

const (
	ContextKeyRequestID     ContextKey = "requestID"
	ContextKeyRequestSource ContextKey = "requestSource"
	ContextKeyLogLayer      ContextKey = "logLayer"
	ContextKeyBusName       ContextKey = "busName"
	ContextKeyHandler       ContextKey = "handler"

	ContextSourceInternal = "Internal"
	ContextSourcePublish  = "Publish"
	ContextSourceAsync    = "AsyncDispatch"
	ContextSourceResume   = "Resume"
	ContextSourceCLI      = "CLI"

	LogSource = "logSource"
)

// ContextKey is used for context.Context value. The value requires a key that is not primitive type.
type ContextKey string

type LogLayer string

func (l LogLayer) String() string {
	return string(l)
}

const (
	LogLayerBus      = LogLayer("bus")
	LogLayerRegistry = LogLayer("registry")
	LogLayerDispatch = LogLayer("dispatch")
	LogLayerQueue    = LogLayer("queue")
	LogLayerGate     = LogLayer("gate")
	LogLayerCLI      = LogLayer("cli")
	LogLayerNone     = LogLayer("none")
)

var Layers = []LogLayer{
	LogLayerBus,
	LogLayerRegistry,
	LogLayerDispatch,
	LogLayerQueue,
	LogLayerGate,
	LogLayerCLI,
}

// LogFields is the field set accepted by Logc(ctx).WithFields.
type LogFields = log.Fields
