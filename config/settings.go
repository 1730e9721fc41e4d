// Copyright 2025 NetApp, Inc. All Rights Reserved.

package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/netapp/msgbus/utils/errors"
)

// BusSettings is the on-disk and environment form of a bus configuration.
type BusSettings struct {
	Name             string        `yaml:"name" env:"NAME"`
	Dispatchers      int           `yaml:"dispatchers" env:"DISPATCHERS"`
	QueueCapacity    int           `yaml:"queueCapacity" env:"QUEUE_CAPACITY"`
	PostTimeout      time.Duration `yaml:"postTimeout" env:"POST_TIMEOUT"`
	ShutdownTimeout  time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
	Ownership        Ownership     `yaml:"ownership" env:"OWNERSHIP"`
	WorkerPoolSize   int           `yaml:"workerPoolSize" env:"WORKER_POOL_SIZE"`
	ErrorLogInterval time.Duration `yaml:"errorLogInterval" env:"ERROR_LOG_INTERVAL"`
	ErrorLogBurst    int           `yaml:"errorLogBurst" env:"ERROR_LOG_BURST"`
	LogLevel         string        `yaml:"logLevel" env:"LOG_LEVEL"`
	LogFormat        string        `yaml:"logFormat" env:"LOG_FORMAT"`
}

// DefaultBusSettings returns the settings used when no file or environment override is present.
func DefaultBusSettings() BusSettings {
	return BusSettings{
		Name:             OrchestratorName,
		Dispatchers:      DefaultDispatchers,
		QueueCapacity:    DefaultQueueCapacity,
		PostTimeout:      DefaultPostTimeout,
		ShutdownTimeout:  DefaultShutdownTimeout,
		Ownership:        OwnershipStrong,
		WorkerPoolSize:   0,
		ErrorLogInterval: DefaultErrorLogInterval,
		ErrorLogBurst:    DefaultErrorLogBurst,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// LoadSettings reads settings from path on fs, layering MSGBUS_* environment variables on top.
// An empty path skips the file. A missing file is a NotFoundError.
func LoadSettings(fs afero.Fs, path string) (BusSettings, error) {
	return loadSettings(fs, path, nil)
}

// loadSettings accepts an explicit environment so tests need not touch the process environment.
func loadSettings(fs afero.Fs, path string, environment map[string]string) (BusSettings, error) {
	settings := DefaultBusSettings()

	if path != "" {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			if os.IsNotExist(err) {
				return settings, errors.WrapWithNotFoundError(err, "settings file %s", path)
			}
			return settings, err
		}
		if err = yaml.Unmarshal(data, &settings); err != nil {
			return settings, errors.WrapUnsupportedConfigError(err)
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(&settings, opts); err != nil {
		return settings, errors.WrapUnsupportedConfigError(err)
	}

	return settings, settings.Validate()
}

// Validate checks that every value is in range.
func (s BusSettings) Validate() error {
	var err error
	if s.Name == "" {
		err = errors.Append(err, errors.UnsupportedConfigError("name must not be empty"))
	}
	if s.Dispatchers < 1 {
		err = errors.Append(err, errors.UnsupportedConfigError("dispatchers must be positive, got %d", s.Dispatchers))
	}
	if s.QueueCapacity < 0 {
		err = errors.Append(err, errors.UnsupportedConfigError(
			"queue capacity must not be negative, got %d", s.QueueCapacity))
	}
	if s.PostTimeout < 0 {
		err = errors.Append(err, errors.UnsupportedConfigError(
			"post timeout must not be negative, got %v", s.PostTimeout))
	}
	if s.ShutdownTimeout < 0 {
		err = errors.Append(err, errors.UnsupportedConfigError(
			"shutdown timeout must not be negative, got %v", s.ShutdownTimeout))
	}
	if !IsValidOwnership(s.Ownership) {
		err = errors.Append(err, errors.UnsupportedConfigError("unknown ownership %q", s.Ownership))
	}
	if s.WorkerPoolSize < 0 {
		err = errors.Append(err, errors.UnsupportedConfigError(
			"worker pool size must not be negative, got %d", s.WorkerPoolSize))
	}
	if s.ErrorLogBurst < 1 {
		err = errors.Append(err, errors.UnsupportedConfigError(
			"error log burst must be positive, got %d", s.ErrorLogBurst))
	}
	return err
}
