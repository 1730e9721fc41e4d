// Copyright 2025 NetApp, Inc. All Rights Reserved.

package ants

import (
	"time"

	"github.com/brunoga/deep"

	"github.com/netapp/msgbus/pkg/workerpool/types"
)

// ============================================================================
// Pool Configuration
// ============================================================================

// Config holds configuration options for creating an ants worker pool.
type Config struct {
	// Name identifies the pool in logs.
	Name string

	// NumWorkers is the number of worker goroutines.
	NumWorkers int

	// PreAlloc pre-allocates workers on pool creation for better performance.
	PreAlloc bool

	// NonBlocking makes Submit return immediately with an error if the pool is busy.
	NonBlocking bool

	// ExpiryDuration is the period for cleaning up expired workers.
	// Workers that have been idle for longer than this duration will be purged.
	ExpiryDuration time.Duration

	// DisablePurge prevents the pool from purging idle workers.
	DisablePurge bool
}

// PoolConfig is a marker method to implement the workerpool.Config interface.
func (*Config) PoolConfig() {}

// Copy returns a deep copy of this configuration.
func (c *Config) Copy() types.Config {
	if c == nil {
		return nil
	}

	copied, err := deep.Copy(c)
	if err != nil {
		// Fallback to simple struct copy if deep copy fails
		cfgCopy := *c
		return &cfgCopy
	}
	return copied
}

// ============================================================================
// Config Functional Options
// ============================================================================

// ConfigOption is a functional option for configuring a worker pool.
type ConfigOption func(*Config)

// WithName sets the name used in the pool's log entries.
func WithName(name string) ConfigOption {
	return func(c *Config) {
		c.Name = name
	}
}

// WithNumWorkers sets the number of worker goroutines.
func WithNumWorkers(n int) ConfigOption {
	return func(c *Config) {
		c.NumWorkers = n
	}
}

// WithPreAlloc enables pre-allocation of workers on pool creation.
func WithPreAlloc(preAlloc bool) ConfigOption {
	return func(c *Config) {
		c.PreAlloc = preAlloc
	}
}

// WithNonBlocking enables non-blocking mode for Submit operations.
func WithNonBlocking(nonBlocking bool) ConfigOption {
	return func(c *Config) {
		c.NonBlocking = nonBlocking
	}
}

// WithExpiryDuration sets the period for cleaning up expired workers.
func WithExpiryDuration(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.ExpiryDuration = d
	}
}

// WithDisablePurge disables purging of idle workers.
func WithDisablePurge(disable bool) ConfigOption {
	return func(c *Config) {
		c.DisablePurge = disable
	}
}

// NewConfig creates a new Config with the provided options.
func NewConfig(opts ...ConfigOption) *Config {
	// Setting up the necessary defaults
	cfg := &Config{
		Name:           defaultPoolName,
		NumWorkers:     defaultNumWorkers,
		PreAlloc:       true,
		ExpiryDuration: defaultExpiryDuration,
	}

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
