// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid frame",
	Long: `Wait for a valid frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any
frame that passes the integrity check. Corrupt bytes before the first good
frame are counted and reported.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking wiring and baud rate before running monitor.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	s, err := openSession(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer s.Close()

	packets := s.SubscribePackets(1)
	defer packets.Cancel()

	fmt.Printf("foclink - Packet Test\n")
	fmt.Printf("Connection: %s\n", describeLink(cfg.Link))
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid frame...\n\n")

	select {
	case packet := <-packets.C:
		stats := s.Stats()
		if bad := stats.CRCErrors + stats.FramingErrors; bad > 0 {
			fmt.Printf("(discarded %d corrupt frames before sync)\n", bad)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Kind: %s ('%c' 0x%02X)\n", packet.Kind, packet.RawType, packet.RawType)
		fmt.Printf("  Payload: %d bytes\n", len(packet.Payload))
		s.Close()
		os.Exit(0)

	case <-s.Done():
		fmt.Fprintf(os.Stderr, "Read error: connection closed\n")
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		s.Close()
		os.Exit(1)
	}

	return nil
}
