// Copyright 2025 NetApp, Inc. All Rights Reserved.

package cmd

import (
	"io"
	"runtime"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/netapp/msgbus/config"
)

func init() {
	RootCmd.AddCommand(versionCmd)
}

// Version describes the running binary.
type Version struct {
	Version   string `json:"version" yaml:"version"`
	BuildType string `json:"buildType" yaml:"buildType"`
	BuildHash string `json:"buildHash" yaml:"buildHash"`
	BuildTime string `json:"buildTime" yaml:"buildTime"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of msgbus",
	RunE: func(cmd *cobra.Command, args []string) error {
		writeVersion(cmd.OutOrStdout(), getVersion())
		return nil
	},
}

func getVersion() Version {
	return Version{
		Version:   config.OrchestratorVersion,
		BuildType: config.BuildType,
		BuildHash: config.BuildHash,
		BuildTime: config.BuildTime,
		GoVersion: runtime.Version(),
	}
}

func writeVersion(w io.Writer, version Version) {
	switch OutputFormat {
	case FormatJSON:
		WriteJSON(w, version)
	case FormatYAML:
		WriteYAML(w, version)
	case FormatWide:
		writeWideVersionTable(w, version)
	default:
		writeVersionTable(w, version)
	}
}

func writeVersionTable(w io.Writer, version Version) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Version"})

	table.Append([]string{
		version.Version,
	})

	table.Render()
}

func writeWideVersionTable(w io.Writer, version Version) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Version", "Build Type", "Build Time", "Go Version"})

	table.Append([]string{
		version.Version,
		version.BuildType,
		version.BuildTime,
		version.GoVersion,
	})

	table.Render()
}
