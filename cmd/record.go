// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/foclink/pkg/capture"
	"github.com/Thermoquad/foclink/pkg/foclink"
)

var (
	recordOutput   string
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record streamed telemetry to a capture file",
	Long: `Configure a telemetry stream and write every decoded sample to a capture
file until Ctrl+C or --duration elapses.

Captures are a sequence of CBOR records and can be played back with
"foclink replay".`,
	Example: `  foclink -p /dev/ttyACM0 record -r VELOCITY,TARGET --hz 500 -o run1.cbor`,
	RunE:    runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	addStreamFlags(recordCmd)
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "", "Capture file to write")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Stop after this long (0 records until Ctrl+C)")
	recordCmd.MarkFlagRequired("output")
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := loadStreamConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if recordDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, recordDuration)
		defer cancel()
	}

	f, err := os.Create(recordOutput)
	if err != nil {
		return fmt.Errorf("create capture: %w", err)
	}
	defer f.Close()
	out := bufio.NewWriter(f)
	w := capture.NewWriter(out)

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	samples := s.SubscribeTelemetry(4096)
	defer samples.Cancel()

	ids, err := cfg.Monitor.ResolveRegisters(s.Catalog())
	if err != nil {
		return err
	}
	refs := make([]foclink.RegisterRef, len(ids))
	for i, id := range ids {
		refs[i] = foclink.RegisterRef{Motor: cfg.Monitor.Motor, Register: id}
	}
	if err := s.ConfigureTelemetry(ctx, refs, cfg.Monitor.FrequencyHz); err != nil {
		return fmt.Errorf("configure telemetry: %w", err)
	}

	fmt.Printf("foclink - Record\n")
	fmt.Printf("Connection: %s\n", describeLink(cfg.Link))
	fmt.Printf("Writing %s, press Ctrl+C to stop\n\n", recordOutput)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-s.Done():
			log.Printf("Connection closed")
			break loop
		case data := <-samples.C:
			if err := w.Write(data, time.Now()); err != nil {
				return fmt.Errorf("write capture: %w", err)
			}
		}
	}

	if err := out.Flush(); err != nil {
		return fmt.Errorf("write capture: %w", err)
	}
	stats := s.Stats()
	fmt.Printf("Recorded %d samples\n", w.Count())
	fmt.Print(stats.String())
	return nil
}
