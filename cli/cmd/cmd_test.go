// Copyright 2025 NetApp, Inc. All Rights Reserved.

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/netapp/msgbus/config"
	"github.com/netapp/msgbus/utils/errors"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// withOutputFormat sets OutputFormat for the duration of a test.
func withOutputFormat(t *testing.T, format string) {
	t.Helper()
	previous := OutputFormat
	OutputFormat = format
	t.Cleanup(func() { OutputFormat = previous })
}

// ---------------------------------------------------------------------------
// Root
// ---------------------------------------------------------------------------

func TestGetExitCodeFromError(t *testing.T) {
	assert.Equal(t, ExitCodeSuccess, GetExitCodeFromError(nil))
	assert.Equal(t, ExitCodeFailure, GetExitCodeFromError(errors.New("failed")))

	SetExitCodeFromError(errors.New("failed"))
	assert.Equal(t, ExitCodeFailure, ExitCode)
	SetExitCodeFromError(nil)
	assert.Equal(t, ExitCodeSuccess, ExitCode)
}

func TestInitCommand(t *testing.T) {
	previousFs, previousPath, previousSettings := AppFs, ConfigPath, Settings
	t.Cleanup(func() {
		AppFs, ConfigPath, Settings = previousFs, previousPath, previousSettings
		OutputFormat, LogLevel, LogFormat, Debug = "", "", "", false
		log.SetLevel(log.InfoLevel)
		log.SetFormatter(&log.TextFormatter{})
	})

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/msgbus/bus.yaml", []byte(`
name: orders
dispatchers: 2
logLevel: warn
logFormat: json
`), 0o644))

	tests := []struct {
		name        string
		args        []string
		path        string
		expectErr   bool
		isErr       func(error) bool
		expectLevel string
		expectName  string
	}{
		{
			name:        "DefaultsWithoutFile",
			expectLevel: "info",
			expectName:  config.OrchestratorName,
		},
		{
			name:        "SettingsFromFile",
			path:        "/etc/msgbus/bus.yaml",
			expectLevel: "warn",
			expectName:  "orders",
		},
		{
			name:        "FlagOverridesFile",
			path:        "/etc/msgbus/bus.yaml",
			args:        []string{"--log-level", "debug"},
			expectLevel: "debug",
			expectName:  "orders",
		},
		{
			name:      "MissingFile",
			path:      "/etc/msgbus/missing.yaml",
			expectErr: true,
			isErr:     errors.IsNotFoundError,
		},
		{
			name:      "UnknownOutputFormat",
			args:      []string{"-o", "xml"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			OutputFormat, LogLevel, LogFormat = "", "", ""
			AppFs, ConfigPath = fs, tt.path

			flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
			addPersistentFlags(flags)
			require.NoError(t, flags.Parse(tt.args))
			ConfigPath = tt.path

			err := initCommand(flags)
			if tt.expectErr {
				require.Error(t, err)
				if tt.isErr != nil {
					assert.True(t, tt.isErr(err))
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectLevel, Settings.LogLevel)
			assert.Equal(t, tt.expectName, Settings.Name)
			level, err := log.ParseLevel(tt.expectLevel)
			require.NoError(t, err)
			assert.Equal(t, level, log.GetLevel())
		})
	}
}

// ---------------------------------------------------------------------------
// Version
// ---------------------------------------------------------------------------

func TestWriteVersion(t *testing.T) {
	version := getVersion()
	assert.Equal(t, config.OrchestratorVersion, version.Version)

	t.Run("JSON", func(t *testing.T) {
		withOutputFormat(t, FormatJSON)
		var out bytes.Buffer
		writeVersion(&out, version)

		var decoded Version
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
		assert.Equal(t, version, decoded)
	})

	t.Run("Table", func(t *testing.T) {
		withOutputFormat(t, "")
		var out bytes.Buffer
		writeVersion(&out, version)
		assert.Contains(t, out.String(), "VERSION")
		assert.Contains(t, out.String(), version.Version)
	})
}

// ---------------------------------------------------------------------------
// Describe
// ---------------------------------------------------------------------------

func TestDescribeDemoListeners(t *testing.T) {
	rows, err := describeDemoListeners()
	require.NoError(t, err)

	byHandler := make(map[string]HandlerRow, len(rows))
	for _, r := range rows {
		byHandler[r.Handler] = r
	}
	require.Len(t, byHandler, 6)

	created := byHandler["capacityListener.created"]
	assert.Equal(t, "*cmd.capacityListener", created.Listener)
	assert.Equal(t, []string{"cmd.VolumeCreated"}, created.MessageTypes)
	assert.Equal(t, 10, created.Priority)
	assert.True(t, byHandler["capacityListener.deleted"].Synchronized)

	quota := byHandler["quotaListener.changed"]
	assert.True(t, quota.Envelope)
	assert.Equal(t, 1, quota.Filters)
	assert.Equal(t, []string{"cmd.VolumeCreated", "cmd.VolumeResized"}, quota.MessageTypes)

	audit := byHandler["auditListener.HandleAudit"]
	assert.Equal(t, "async", audit.Delivery)
	assert.Equal(t, -10, audit.Priority)
	assert.True(t, audit.Synchronized)
	assert.Equal(t, []string{"cmd.Auditable"}, audit.MessageTypes)

	assert.Contains(t, byHandler, "deadLetterListener.HandleDead")
}

func TestWriteHandlers(t *testing.T) {
	rows, err := describeDemoListeners()
	require.NoError(t, err)

	tests := []struct {
		name     string
		format   string
		validate func(t *testing.T, out []byte)
	}{
		{
			name:   "Table",
			format: "",
			validate: func(t *testing.T, out []byte) {
				assert.Contains(t, string(out), "MESSAGE TYPES")
				assert.NotContains(t, string(out), "ENVELOPE")
			},
		},
		{
			name:   "Wide",
			format: FormatWide,
			validate: func(t *testing.T, out []byte) {
				assert.Contains(t, string(out), "ENVELOPE")
			},
		},
		{
			name:   "YAML",
			format: FormatYAML,
			validate: func(t *testing.T, out []byte) {
				var decoded []HandlerRow
				require.NoError(t, yaml.Unmarshal(out, &decoded))
				assert.Equal(t, rows, decoded)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withOutputFormat(t, tt.format)
			var out bytes.Buffer
			writeHandlers(&out, rows)
			tt.validate(t, out.Bytes())
		})
	}
}

// ---------------------------------------------------------------------------
// Bench
// ---------------------------------------------------------------------------

func TestBenchMessage(t *testing.T) {
	tests := []struct {
		index    int
		expected any
	}{
		{index: 0, expected: VolumeCreated{
			VolumeEvent: VolumeEvent{Volume: "pvc-0", SizeBytes: 1 << 29}, Backend: "ontap-nas",
		}},
		{index: 1, expected: VolumeResized{
			VolumeEvent: VolumeEvent{Volume: "pvc-0", SizeBytes: 2 << 30}, PreviousBytes: 2 << 29,
		}},
		{index: 2, expected: VolumeDeleted{VolumeEvent: VolumeEvent{Volume: "pvc-0", SizeBytes: 3 << 29}}},
		{index: deadEvery - 1, expected: NodeEvent{Node: "node-99"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, benchMessage(tt.index))
	}
}

func TestRunBench(t *testing.T) {
	tests := []struct {
		name  string
		async bool
	}{
		{name: "Sync", async: false},
		{name: "Async", async: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const messages, listeners = 300, 2

			result, err := runBench(context.Background(), messages, listeners, tt.async)
			require.NoError(t, err)

			dead := uint64(messages / deadEvery)
			assert.Equal(t, messages, result.Messages)
			assert.Equal(t, uint64(messages)+dead, result.Published, "each unroutable message adds one dead message")
			assert.Equal(t, dead, result.DeadMessages)
			assert.Zero(t, result.Errors)
			assert.Positive(t, result.Delivered)
			assert.Positive(t, result.Rate())

			var out bytes.Buffer
			withOutputFormat(t, FormatWide)
			writeBenchResult(&out, result)
			assert.Contains(t, out.String(), "NET ALLOCATED")
		})
	}
}
