// Copyright 2025 NetApp, Inc. All Rights Reserved.

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	. "github.com/netapp/msgbus/logging"
	"github.com/netapp/msgbus/pkg/msgbus"
	"github.com/netapp/msgbus/pkg/msgbus/publication"
)

const (
	defaultBenchMessages  = 100000
	defaultBenchListeners = 8

	// One message in deadEvery has no listener.
	deadEvery = 100
)

var (
	benchMessages  int
	benchListeners int
	benchAsync     bool
)

func init() {
	RootCmd.AddCommand(benchCmd)
	benchCmd.Flags().IntVar(&benchMessages, "messages", defaultBenchMessages, "Number of messages to publish")
	benchCmd.Flags().IntVar(&benchListeners, "listeners", defaultBenchListeners,
		"Number of instances of each demo listener")
	benchCmd.Flags().BoolVar(&benchAsync, "async", false, "Publish through the asynchronous queue")
}

// BenchResult summarizes one bench run.
type BenchResult struct {
	Mode             string        `json:"mode" yaml:"mode"`
	Messages         int           `json:"messages" yaml:"messages"`
	Listeners        int           `json:"listeners" yaml:"listeners"`
	Published        uint64        `json:"published" yaml:"published"`
	Delivered        uint64        `json:"delivered" yaml:"delivered"`
	DeadMessages     uint64        `json:"deadMessages" yaml:"deadMessages"`
	FilteredMessages uint64        `json:"filteredMessages" yaml:"filteredMessages"`
	Errors           uint64        `json:"errors" yaml:"errors"`
	AllocatedBytes   int64         `json:"allocatedBytes" yaml:"allocatedBytes"`
	Elapsed          time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Rate returns published messages per second.
func (r BenchResult) Rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Messages) / r.Elapsed.Seconds()
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Publish demo messages and report throughput",
	Long:  "Publish volume lifecycle messages to the demo listeners on a bus built from the settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if benchMessages <= 0 || benchListeners <= 0 {
			return fmt.Errorf("messages and listeners must be positive")
		}
		result, err := runBench(ctx(), benchMessages, benchListeners, benchAsync)
		if err != nil {
			return err
		}
		writeBenchResult(cmd.OutOrStdout(), result)
		return nil
	},
}

func runBench(ctx context.Context, messages, listeners int, async bool) (BenchResult, error) {
	ctx = GenerateRequestContext(ctx, "", ContextSourceCLI)
	ctx = WithLogLayer(ctx, LogLayerCLI)

	catalog, err := demoCatalog()
	if err != nil {
		return BenchResult{}, err
	}

	bus, err := msgbus.NewBus(ctx, msgbus.NewConfig(
		msgbus.WithSettings(Settings),
		msgbus.WithDescriber(catalog),
	))
	if err != nil {
		return BenchResult{}, err
	}

	capacity := make([]*capacityListener, listeners)
	for i := range capacity {
		capacity[i] = &capacityListener{}
		for _, l := range []any{capacity[i], &quotaListener{}, &auditListener{}} {
			if err = bus.Subscribe(l); err != nil {
				_ = bus.Close(ctx)
				return BenchResult{}, err
			}
		}
	}
	if err = bus.Subscribe(&deadLetterListener{}); err != nil {
		_ = bus.Close(ctx)
		return BenchResult{}, err
	}

	Logc(ctx).WithFields(LogFields{
		"messages":  messages,
		"listeners": listeners,
		"async":     async,
	}).Debug("Starting bench.")

	mode := "sync"
	if async {
		mode = "async"
	}

	start := time.Now()
	var pending []*publication.Publication
	for i := 0; i < messages; i++ {
		message := benchMessage(i)
		if !async {
			if err = bus.Publish(ctx, message); err != nil {
				break
			}
			continue
		}
		var pub *publication.Publication
		if pub, err = bus.PublishAsync(ctx, message); err != nil {
			break
		}
		pending = append(pending, pub)
	}
	for _, pub := range pending {
		if err != nil {
			break
		}
		err = pub.Wait(ctx)
	}
	elapsed := time.Since(start)

	metrics := bus.Metrics()
	if closeErr := bus.Close(ctx); closeErr != nil {
		Logc(ctx).WithError(closeErr).Warn("Could not close bus cleanly.")
	}
	if err != nil {
		return BenchResult{}, err
	}

	result := BenchResult{
		Mode:             mode,
		Messages:         messages,
		Listeners:        listeners,
		Published:        metrics.Published,
		Delivered:        metrics.Delivered,
		DeadMessages:     metrics.DeadMessages,
		FilteredMessages: metrics.FilteredMessages,
		Errors:           metrics.Errors,
		Elapsed:          elapsed,
	}
	for _, l := range capacity {
		result.AllocatedBytes += l.allocated.Load()
	}
	return result, nil
}

// benchMessage cycles through the volume lifecycle, with an occasional unroutable message.
func benchMessage(i int) any {
	if i%deadEvery == deadEvery-1 {
		return NodeEvent{Node: fmt.Sprintf("node-%d", i)}
	}

	volume := VolumeEvent{
		Volume:    fmt.Sprintf("pvc-%d", i/3),
		SizeBytes: uint64(i%7+1) << 29,
	}
	switch i % 3 {
	case 0:
		return VolumeCreated{VolumeEvent: volume, Backend: "ontap-nas"}
	case 1:
		resized := volume
		resized.SizeBytes *= 2
		return VolumeResized{VolumeEvent: resized, PreviousBytes: volume.SizeBytes}
	default:
		return VolumeDeleted{VolumeEvent: volume}
	}
}

func writeBenchResult(w io.Writer, result BenchResult) {
	switch OutputFormat {
	case FormatJSON:
		WriteJSON(w, result)
	case FormatYAML:
		WriteYAML(w, result)
	case FormatWide:
		writeWideBenchTable(w, result)
	default:
		writeBenchTable(w, result)
	}
}

func writeBenchTable(w io.Writer, result BenchResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Mode", "Messages", "Deliveries", "Elapsed", "Rate"})

	table.Append([]string{
		result.Mode,
		humanize.Comma(int64(result.Messages)),
		humanize.Comma(int64(result.Delivered)),
		result.Elapsed.Round(time.Millisecond).String(),
		humanize.SIWithDigits(result.Rate(), 1, "msg/s"),
	})

	table.Render()
}

func writeWideBenchTable(w io.Writer, result BenchResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"Mode", "Messages", "Listeners", "Published", "Deliveries",
		"Dead", "Filtered", "Errors", "Net Allocated", "Elapsed", "Rate",
	})

	allocated := "-" + humanize.IBytes(uint64(-result.AllocatedBytes))
	if result.AllocatedBytes >= 0 {
		allocated = humanize.IBytes(uint64(result.AllocatedBytes))
	}

	table.Append([]string{
		result.Mode,
		humanize.Comma(int64(result.Messages)),
		humanize.Comma(int64(result.Listeners)),
		humanize.Comma(int64(result.Published)),
		humanize.Comma(int64(result.Delivered)),
		humanize.Comma(int64(result.DeadMessages)),
		humanize.Comma(int64(result.FilteredMessages)),
		humanize.Comma(int64(result.Errors)),
		allocated,
		result.Elapsed.Round(time.Millisecond).String(),
		humanize.SIWithDigits(result.Rate(), 1, "msg/s"),
	})

	table.Render()
}
