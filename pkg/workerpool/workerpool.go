// Copyright 2025 NetApp, Inc. All Rights Reserved.

// Package workerpool provides a factory function for creating worker pools.
// The actual implementations live in subpackages like ants.
package workerpool

import (
	"context"

	"github.com/netapp/msgbus/pkg/workerpool/ants"
	"github.com/netapp/msgbus/pkg/workerpool/types"
	"github.com/netapp/msgbus/utils/errors"
)

// defaultConfig is the shared default; callers always receive a copy.
var defaultConfig types.Config = ants.DefaultConfig()

// New creates a worker pool from the provided implementation-specific config.
// The generic type parameter P constrains the return type, either the types.Pool
// interface or a concrete implementation.
//
// Example usage:
//
//	pool, err := workerpool.New[types.Pool](ctx)
//	pool, err := workerpool.New[*ants.Pool](ctx, ants.NewConfig(ants.WithNumWorkers(4)))
func New[P types.Pool](ctx context.Context, cfgs ...types.Config) (P, error) {
	var zero P

	cfg := defaultConfig.Copy()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}

	var pool any
	var err error
	switch c := cfg.(type) {
	case *ants.Config:
		pool, err = ants.NewPool(ctx, c)
	default:
		return zero, errors.UnsupportedConfigError("unsupported config type %T", cfg)
	}
	if err != nil {
		return zero, err
	}

	result, ok := pool.(P)
	if !ok {
		return zero, errors.UnsupportedConfigError("config %T does not produce a %T", cfg, zero)
	}
	return result, nil
}
