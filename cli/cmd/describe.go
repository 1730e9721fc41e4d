// Copyright 2025 NetApp, Inc. All Rights Reserved.

package cmd

import (
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/netapp/msgbus/pkg/convert"
	"github.com/netapp/msgbus/pkg/msgbus/types"
)

func init() {
	RootCmd.AddCommand(describeCmd)
}

// HandlerRow is one described handler.
type HandlerRow struct {
	Listener        string   `json:"listener" yaml:"listener"`
	Handler         string   `json:"handler" yaml:"handler"`
	MessageTypes    []string `json:"messageTypes" yaml:"messageTypes"`
	Priority        int      `json:"priority" yaml:"priority"`
	Delivery        string   `json:"delivery" yaml:"delivery"`
	AcceptsSubtypes bool     `json:"acceptsSubtypes" yaml:"acceptsSubtypes"`
	Synchronized    bool     `json:"synchronized" yaml:"synchronized"`
	Envelope        bool     `json:"envelope" yaml:"envelope"`
	Filters         int      `json:"filters" yaml:"filters"`
	Enabled         bool     `json:"enabled" yaml:"enabled"`
}

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "List the handlers of the demo listeners",
	Long:  "List the handlers the bus discovers for the listeners used by the bench command",
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := describeDemoListeners()
		if err != nil {
			return err
		}
		writeHandlers(cmd.OutOrStdout(), rows)
		return nil
	},
}

func describeDemoListeners() ([]HandlerRow, error) {
	catalog, err := demoCatalog()
	if err != nil {
		return nil, err
	}

	var rows []HandlerRow
	for _, class := range demoListenerClasses {
		descriptors, err := catalog.Describe(class)
		if err != nil {
			return nil, err
		}
		for _, d := range descriptors {
			rows = append(rows, handlerRow(convert.TypeName(class), d))
		}
	}
	return rows, nil
}

func handlerRow(listener string, d types.HandlerDescriptor) HandlerRow {
	messageTypes := make([]string, 0, len(d.MessageTypes))
	for _, t := range d.MessageTypes {
		messageTypes = append(messageTypes, convert.TypeName(t))
	}
	return HandlerRow{
		Listener:        listener,
		Handler:         d.Name,
		MessageTypes:    messageTypes,
		Priority:        d.Priority,
		Delivery:        d.Delivery.String(),
		AcceptsSubtypes: d.AcceptsSubtypes,
		Synchronized:    d.Synchronized,
		Envelope:        d.Envelope,
		Filters:         len(d.Filters),
		Enabled:         d.Enabled,
	}
}

func writeHandlers(w io.Writer, rows []HandlerRow) {
	switch OutputFormat {
	case FormatJSON:
		WriteJSON(w, rows)
	case FormatYAML:
		WriteYAML(w, rows)
	case FormatWide:
		writeWideHandlerTable(w, rows)
	default:
		writeHandlerTable(w, rows)
	}
}

func writeHandlerTable(w io.Writer, rows []HandlerRow) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Listener", "Handler", "Message Types", "Priority", "Delivery"})

	for _, r := range rows {
		table.Append([]string{
			r.Listener,
			r.Handler,
			strings.Join(r.MessageTypes, ", "),
			strconv.Itoa(r.Priority),
			r.Delivery,
		})
	}

	table.Render()
}

func writeWideHandlerTable(w io.Writer, rows []HandlerRow) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"Listener", "Handler", "Message Types", "Priority", "Delivery",
		"Subtypes", "Synchronized", "Envelope", "Filters", "Enabled",
	})

	for _, r := range rows {
		table.Append([]string{
			r.Listener,
			r.Handler,
			strings.Join(r.MessageTypes, ", "),
			strconv.Itoa(r.Priority),
			r.Delivery,
			strconv.FormatBool(r.AcceptsSubtypes),
			strconv.FormatBool(r.Synchronized),
			strconv.FormatBool(r.Envelope),
			strconv.Itoa(r.Filters),
			strconv.FormatBool(r.Enabled),
		})
	}

	table.Render()
}
