// Copyright 2025 NetApp, Inc. All Rights Reserved.

package config

import (
	"fmt"
	"time"
)

type Ownership string

type FlushMode string

const (
	/* Misc. bus constants */
	OrchestratorName    = "msgbus"
	orchestratorVersion = "25.10.0"
	EnvPrefix           = "MSGBUS_"

	/* Listener ownership constants */
	OwnershipStrong Ownership = "strong"
	OwnershipWeak   Ownership = "weak"

	/* Pause gate flush modes */
	FlushAtomic    FlushMode = "atomic"
	FlushNonAtomic FlushMode = "nonatomic"

	/* Dispatch defaults */
	DefaultDispatchers      = 1
	DefaultQueueCapacity    = 0 // unbounded
	DefaultPostTimeout      = time.Duration(0)
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultErrorLogInterval = 100 * time.Millisecond
	DefaultErrorLogBurst    = 20
)

var (
	validOwnerships = map[Ownership]bool{
		OwnershipStrong: true,
		OwnershipWeak:   true,
	}

	validFlushModes = map[FlushMode]bool{
		FlushAtomic:    true,
		FlushNonAtomic: true,
	}

	// BuildHash is the git hash the binary was built from
	BuildHash = "unknown"

	// BuildType is the type of build: custom, beta or stable
	BuildType = "custom"

	// BuildTypeRev is the revision of the build
	BuildTypeRev = "0"

	// BuildTime is the time the binary was built
	BuildTime = "unknown"

	OrchestratorVersion = version()
)

func IsValidOwnership(o Ownership) bool {
	return validOwnerships[o]
}

func IsValidFlushMode(m FlushMode) bool {
	return validFlushModes[m]
}

func version() string {
	var version string

	if BuildType != "stable" {
		if BuildType == "custom" {
			version = fmt.Sprintf("%v-%v+%v", orchestratorVersion, BuildType, BuildHash)
		} else {
			version = fmt.Sprintf("%v-%v.%v+%v", orchestratorVersion, BuildType, BuildTypeRev, BuildHash)
		}
	} else {
		version = orchestratorVersion
	}

	return version
}
