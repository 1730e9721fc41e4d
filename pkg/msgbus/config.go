// Copyright 2025 NetApp, Inc. All Rights Reserved.

package msgbus

import (
	"time"

	"github.com/brunoga/deep"

	"github.com/netapp/msgbus/config"
	"github.com/netapp/msgbus/pkg/msgbus/types"
	"github.com/netapp/msgbus/pkg/workerpool/ants"
	workerpooltypes "github.com/netapp/msgbus/pkg/workerpool/types"
)

// Config holds the configuration for a Bus. Zero values select the defaults.
type Config struct {
	// Name labels the bus in logs and metrics.
	Name string

	// Dispatchers is the number of goroutines executing asynchronous publications.
	// Publications start in posting order only with a single dispatcher.
	Dispatchers int

	// QueueCapacity bounds the asynchronous queue; zero makes it unbounded.
	QueueCapacity int

	// PostTimeout bounds how long PublishAsync waits for room in a bounded queue.
	// Zero waits until the caller's context ends.
	PostTimeout time.Duration

	// ShutdownTimeout bounds Close when its context carries no deadline.
	ShutdownTimeout time.Duration

	// DefaultOwnership applies to listener classes that do not choose their own.
	DefaultOwnership config.Ownership

	// Describer discovers the handlers of a listener class. Defaults to the
	// reflective describer.
	Describer types.Describer

	// WorkerPool runs asynchronous handlers. A supplied pool must be started and is
	// not shut down by the bus.
	WorkerPool workerpooltypes.Pool

	// WorkerPoolConfig configures the pool the bus creates when WorkerPool is nil.
	WorkerPoolConfig *ants.Config

	// ErrorLogInterval and ErrorLogBurst rate-limit the default error handler.
	ErrorLogInterval time.Duration
	ErrorLogBurst    int
}

// Copy returns a deep copy of the configuration. Describer and WorkerPool are shared,
// not copied.
func (c *Config) Copy() *Config {
	if c == nil {
		return nil
	}

	describer, pool := c.Describer, c.WorkerPool
	plain := *c
	plain.Describer, plain.WorkerPool = nil, nil

	copied, err := deep.Copy(&plain)
	if err != nil {
		copied = &plain
		if c.WorkerPoolConfig != nil {
			poolCfg := *c.WorkerPoolConfig
			copied.WorkerPoolConfig = &poolCfg
		}
	}
	copied.Describer, copied.WorkerPool = describer, pool
	return copied
}

// withDefaults fills every zero value with its default.
func (c *Config) withDefaults() *Config {
	cfg := c.Copy()
	if cfg.Name == "" {
		cfg.Name = defaultName
	}
	if cfg.Dispatchers <= 0 {
		cfg.Dispatchers = config.DefaultDispatchers
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = config.DefaultShutdownTimeout
	}
	if cfg.DefaultOwnership == "" {
		cfg.DefaultOwnership = config.OwnershipStrong
	}
	if cfg.Describer == nil {
		cfg.Describer = defaultDescriber()
	}
	if cfg.ErrorLogInterval <= 0 {
		cfg.ErrorLogInterval = config.DefaultErrorLogInterval
	}
	if cfg.ErrorLogBurst <= 0 {
		cfg.ErrorLogBurst = config.DefaultErrorLogBurst
	}
	return cfg
}

// ============================================================================
// Config Functional Options
// ============================================================================

// Option is a functional option for configuring a Bus.
type Option func(*Config)

// WithName sets the bus name.
func WithName(name string) Option {
	return func(c *Config) {
		c.Name = name
	}
}

// WithDispatchers sets the number of asynchronous dispatcher goroutines.
func WithDispatchers(n int) Option {
	return func(c *Config) {
		c.Dispatchers = n
	}
}

// WithQueueCapacity bounds the asynchronous queue. Zero makes it unbounded.
func WithQueueCapacity(capacity int) Option {
	return func(c *Config) {
		c.QueueCapacity = capacity
	}
}

// WithPostTimeout sets how long PublishAsync waits for room in a bounded queue.
func WithPostTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.PostTimeout = d
	}
}

// WithShutdownTimeout sets the default bound on Close.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ShutdownTimeout = d
	}
}

// WithDefaultOwnership sets how listeners are referenced when their class does not say.
func WithDefaultOwnership(o config.Ownership) Option {
	return func(c *Config) {
		c.DefaultOwnership = o
	}
}

// WithDescriber sets the handler discovery strategy.
func WithDescriber(d types.Describer) Option {
	return func(c *Config) {
		c.Describer = d
	}
}

// WithWorkerPool uses an externally managed pool for asynchronous handlers.
func WithWorkerPool(pool workerpooltypes.Pool) Option {
	return func(c *Config) {
		c.WorkerPool = pool
	}
}

// WithWorkerPoolConfig configures the pool created by the bus.
func WithWorkerPoolConfig(cfg *ants.Config) Option {
	return func(c *Config) {
		c.WorkerPoolConfig = cfg
	}
}

// WithErrorLogRate rate-limits the default error handler to one log line per interval
// with the given burst.
func WithErrorLogRate(interval time.Duration, burst int) Option {
	return func(c *Config) {
		c.ErrorLogInterval = interval
		c.ErrorLogBurst = burst
	}
}

// WithSettings applies settings loaded by config.LoadSettings.
func WithSettings(s config.BusSettings) Option {
	return func(c *Config) {
		c.Name = s.Name
		c.Dispatchers = s.Dispatchers
		c.QueueCapacity = s.QueueCapacity
		c.PostTimeout = s.PostTimeout
		c.ShutdownTimeout = s.ShutdownTimeout
		c.DefaultOwnership = s.Ownership
		c.ErrorLogInterval = s.ErrorLogInterval
		c.ErrorLogBurst = s.ErrorLogBurst
		if s.WorkerPoolSize > 0 {
			c.WorkerPoolConfig = ants.NewConfig(
				ants.WithName(s.Name+"-handlers"),
				ants.WithNumWorkers(s.WorkerPoolSize),
			)
		}
	}
}

// NewConfig creates a configuration from the defaults and opts.
//
// Example:
//
//	cfg := msgbus.NewConfig(msgbus.WithName("orders"), msgbus.WithQueueCapacity(1024))
//	bus, _ := msgbus.NewBus(ctx, cfg)
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Name:             defaultName,
		Dispatchers:      config.DefaultDispatchers,
		QueueCapacity:    config.DefaultQueueCapacity,
		PostTimeout:      config.DefaultPostTimeout,
		ShutdownTimeout:  config.DefaultShutdownTimeout,
		DefaultOwnership: config.OwnershipStrong,
		ErrorLogInterval: config.DefaultErrorLogInterval,
		ErrorLogBurst:    config.DefaultErrorLogBurst,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
