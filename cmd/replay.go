// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/foclink/pkg/capture"
	"github.com/Thermoquad/foclink/pkg/config"
	"github.com/Thermoquad/foclink/pkg/foclink"
	"github.com/Thermoquad/foclink/pkg/telemetry"
)

var (
	replayOutput string
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture>",
	Short: "Replay a capture file as JSON lines",
	Long: `Feed a capture written by "foclink record" through the telemetry pipeline
and write the rendered samples as JSON lines, one object per sample.

Downsampling and buffer settings come from the telemetry section of the
configuration file. No connection is opened.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayOutput, "output", "o", "-", "JSONL output file (- for stdout)")
}

// loadReplayConfig returns the telemetry settings. Replay opens no link, so
// the link section is not required.
func loadReplayConfig() (telemetry.Config, error) {
	if configPath == "" {
		return telemetry.DefaultConfig(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return telemetry.Config{}, err
	}
	return cfg.Telemetry, nil
}

// replayCapture renders every record read from r into w and returns the
// number of records read
func replayCapture(r io.Reader, w io.Writer, cfg telemetry.Config) (int, telemetry.BufferStats, error) {
	renderer := telemetry.NewJSONLRenderer(w, nil)
	pipeline, err := telemetry.NewPipeline(cfg, nil, renderer)
	if err != nil {
		return 0, telemetry.BufferStats{}, err
	}

	flush := func() {
		for pipeline.Tick() {
		}
	}

	reader := capture.NewReader(r)
	var refs []foclink.RegisterRef
	count := 0
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, pipeline.BufferStats(), err
		}
		count++

		data := rec.TelemetryData()
		if !slices.Equal(refs, data.Registers) {
			flush()
			refs = data.Registers
			pipeline.SetTraces(telemetry.TracesForRefs(nil, refs))
		}
		pipeline.IngestTelemetry(data, rec.Timestamp())

		if pipeline.BufferStats().Size >= cfg.MaxDrainPerTick {
			pipeline.Tick()
		}
	}
	flush()

	return count, pipeline.BufferStats(), renderer.Err()
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadReplayConfig()
	if err != nil {
		return err
	}

	in, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer in.Close()

	var w io.Writer = os.Stdout
	if replayOutput != "-" {
		f, err := os.Create(replayOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	out := bufio.NewWriter(w)

	count, stats, err := replayCapture(bufio.NewReader(in), out, cfg)
	if flushErr := out.Flush(); err == nil {
		err = flushErr
	}
	if err != nil {
		return fmt.Errorf("replay %s after %d records: %w", args[0], count, err)
	}
	fmt.Fprintf(os.Stderr, "Replayed %d records (%d dropped)\n", count, stats.DroppedSamples)
	return nil
}
