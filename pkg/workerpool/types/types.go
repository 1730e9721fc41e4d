// Copyright 2025 NetApp, Inc. All Rights Reserved.

package types

import (
	"context"
	"time"
)

// Config is implemented by every worker pool implementation's configuration.
type Config interface {
	// PoolConfig is a marker method.
	PoolConfig()
	// Copy returns a deep copy so shared defaults are never mutated.
	Copy() Config
}

// Stats is a point-in-time view of a pool's workers.
type Stats struct {
	Cap     int
	Running int
	Free    int
	Waiting int
}

// Pool runs submitted tasks on a bounded set of goroutines.
type Pool interface {
	Start(ctx context.Context) error
	Submit(ctx context.Context, task func()) error
	Shutdown(ctx context.Context) error
	ShutdownWithTimeout(timeout time.Duration) error

	IsStarted() bool
	IsClosed() bool

	Cap() int
	Running() int
	Free() int
	Waiting() int
	Stats() Stats
}
