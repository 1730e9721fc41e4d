// Copyright 2025 NetApp, Inc. All Rights Reserved.

package ants

import (
	"runtime"
	"time"
)

const (
	// defaultExpiryDuration is the default expiryDuration after which expired workers are cleaned up.
	defaultExpiryDuration = 10 * time.Second

	// defaultShutdownTimeout bounds Shutdown when the context carries no deadline.
	defaultShutdownTimeout = 30 * time.Second

	defaultPoolName = "handlers"
)

// defaultNumWorkers is the default number of workers (based on CPU count).
var defaultNumWorkers = runtime.NumCPU()

// DefaultConfig returns the default configuration for a single Pool.
// It uses the number of CPUs for workers and enables pre-allocation.
func DefaultConfig() *Config {
	return NewConfig()
}
