// Copyright 2025 NetApp, Inc. All Rights Reserved.

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/netapp/msgbus/config"
	"github.com/netapp/msgbus/logging"
)

const (
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatTable = "table"
	FormatWide  = "wide"

	ExitCodeSuccess = 0
	ExitCodeFailure = 1
)

var (
	ExitCode int

	Debug        bool
	ConfigPath   string
	LogLevel     string
	LogFormat    string
	OutputFormat string

	// Settings is populated before any subcommand runs.
	Settings = config.DefaultBusSettings()

	// AppFs is the file system settings are read from.
	AppFs = afero.NewOsFs()

	ctx = context.Background
)

var RootCmd = &cobra.Command{
	SilenceUsage: true,
	Use:          "msgbus",
	Short:        "A CLI tool for the msgbus message bus",
	Long:         `A CLI tool for inspecting and benchmarking the msgbus in-process message bus`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initCommand(cmd.Flags()); err != nil {
			return err
		}
		return logging.InitLogging(Settings.LogFormat)
	},
}

func init() {
	addPersistentFlags(RootCmd.PersistentFlags())
}

func addPersistentFlags(flags *pflag.FlagSet) {
	flags.BoolVarP(&Debug, "debug", "d", false, "Debug output")
	flags.StringVar(&ConfigPath, "config", "", "Path to a bus settings file (YAML)")
	flags.StringVar(&LogLevel, "log-level", "", "Logging level (trace, debug, info, warn, error, fatal)")
	flags.StringVar(&LogFormat, "log-format", "", "Logging format (text, json)")
	flags.StringVarP(&OutputFormat, "output", "o", "", "Output format. One of json|yaml|wide|table (default)")
}

// initCommand loads the settings and configures logging. Flags that were set explicitly
// take precedence over the settings file and environment.
func initCommand(flags *pflag.FlagSet) error {
	settings, err := config.LoadSettings(AppFs, ConfigPath)
	if err != nil {
		return err
	}
	if flags.Changed("log-level") {
		settings.LogLevel = LogLevel
	}
	if flags.Changed("log-format") {
		settings.LogFormat = LogFormat
	}
	Settings = settings

	if err = logging.InitLogLevel(Debug, Settings.LogLevel); err != nil {
		return err
	}
	if err = logging.InitLogFormat(Settings.LogFormat); err != nil {
		return err
	}

	switch OutputFormat {
	case "", FormatTable, FormatWide, FormatJSON, FormatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q", OutputFormat)
	}
}

func WriteJSON(w io.Writer, out any) {
	jsonBytes, _ := json.MarshalIndent(out, "", "  ")
	fmt.Fprintln(w, string(jsonBytes))
}

func WriteYAML(w io.Writer, out any) {
	yamlBytes, _ := yaml.Marshal(out)
	fmt.Fprint(w, string(yamlBytes))
}

func SetExitCodeFromError(err error) {
	ExitCode = GetExitCodeFromError(err)
}

func GetExitCodeFromError(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	return ExitCodeFailure
}
