// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

var (
	rawLogStatsInterval time.Duration
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw packet log in human-readable format",
	Long: `Continuously decode and display controller packets as they arrive.

Each packet is shown with timestamp, packet kind and decoded payload:
register responses with their values, telemetry headers with their register
list, and telemetry samples decoded against the last header seen.

With --stats, link statistics (CRC and framing errors, rates) are printed
at the given interval and once more on exit.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().DurationVar(&rawLogStatsInterval, "stats", 0, "Print link statistics at this interval (0 disables)")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	packets := s.SubscribePackets(1024)
	defer packets.Cancel()
	telemetry := s.SubscribeTelemetry(1024)
	defer telemetry.Cancel()

	fmt.Printf("foclink - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", describeLink(cfg.Link))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var statsC <-chan time.Time
	if rawLogStatsInterval > 0 {
		ticker := time.NewTicker(rawLogStatsInterval)
		defer ticker.Stop()
		statsC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			stats := s.Stats()
			fmt.Print("\n" + stats.String())
			return nil

		case <-s.Done():
			log.Printf("Connection closed")
			return nil

		case packet := <-packets.C:
			fmt.Print(s.Catalog().FormatPacket(packet))

		case data := <-telemetry.C:
			fmt.Print(s.Catalog().FormatTelemetry(data))

		case <-statsC:
			stats := s.Stats()
			fmt.Print(stats.String())
		}
	}
}
