// Copyright 2025 NetApp, Inc. All Rights Reserved.

package msgbus

import (
	"github.com/netapp/msgbus/config"
	"github.com/netapp/msgbus/pkg/msgbus/metadata"
	"github.com/netapp/msgbus/pkg/msgbus/types"
	"github.com/netapp/msgbus/pkg/workerpool/ants"
)

const defaultName = config.OrchestratorName

// defaultDescriber discovers Handle* methods by reflection.
func defaultDescriber() types.Describer {
	return metadata.Reflective{}
}

// defaultWorkerPoolConfig is used when neither a pool nor a pool config is supplied.
func defaultWorkerPoolConfig(busName string) *ants.Config {
	return ants.NewConfig(ants.WithName(busName + "-handlers"))
}

// DefaultConfig returns the default configuration: a single dispatcher over an
// unbounded queue, strong listener references, reflective handler discovery and a
// CPU-sized worker pool for asynchronous handlers.
//
// Example:
//
//	bus, _ := msgbus.NewBus(ctx, msgbus.DefaultConfig())
func DefaultConfig() *Config {
	return NewConfig()
}
