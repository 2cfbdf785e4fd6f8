// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/foclink/pkg/foclink"
	"github.com/Thermoquad/foclink/pkg/session"
)

var (
	sendConfirm bool
)

var sendCmd = &cobra.Command{
	Use:   "send [command]...",
	Short: "Send command lines to the controller",
	Long: `Send one or more command lines and print what came back.

Each argument is one command line. Without arguments, lines are read from
stdin until EOF. Malformed lines are reported and skipped.

Commands:
  get|read <register>
  set|write <register> <value>
  telemetry <motor> <register>... <rate>hz
  raw <hex bytes>
  sync | save | calibrate | bootloader

Registers may be abbreviated to any unique prefix, e.g. "get vel".`,
	Example: `  foclink -p /dev/ttyACM0 send "get VELOCITY" "set TARGET 2.5"
  foclink -p /dev/ttyACM0 send "telemetry 0 VELOCITY TARGET 100hz"
  echo "raw 52 11" | foclink -p /dev/ttyACM0 send`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().BoolVar(&sendConfirm, "confirm", false, "Read back every written register")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var input io.Reader = os.Stdin
	if len(args) > 0 {
		input = strings.NewReader(strings.Join(args, "\n"))
	}

	ctx := context.Background()
	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	headers := s.SubscribeHeaders(8)
	defer headers.Cancel()

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := sendLine(ctx, s, line, headers, cfg.Link.ReadTimeout()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func sendLine(ctx context.Context, s *session.Session, line string, headers *session.Subscription[foclink.TelemetryHeader], wait time.Duration) error {
	action, ok := s.Catalog().ParseCommand(line)
	if !ok {
		fmt.Printf("? %s (ignored)\n", line)
		return nil
	}

	var result session.Result
	var err error
	if action.Kind == foclink.ActionWrite && sendConfirm {
		result.Action = action
		result.Response, result.Answered, err = s.WriteRegister(ctx, action.RegisterID, foclink.Value{action.Value}, true)
	} else {
		result, err = s.Execute(ctx, action)
	}
	if err != nil {
		if errors.Is(err, session.ErrNotOpen) {
			return err
		}
		fmt.Printf("! %s: %v\n", line, err)
		return nil
	}

	switch {
	case result.Answered:
		fmt.Printf("< %s\n", s.Catalog().FormatResponse(result.Response))
	case action.Kind == foclink.ActionRead || (action.Kind == foclink.ActionWrite && sendConfirm):
		fmt.Printf("< %s: no answer\n", s.Catalog().Name(action.RegisterID))
	case action.Kind == foclink.ActionTelemetry:
		select {
		case h := <-headers.C:
			fmt.Print(s.Catalog().FormatTelemetryHeader(h))
		case <-time.After(wait):
			fmt.Printf("< telemetry: no header\n")
		}
	default:
		fmt.Printf("> %s\n", action.Kind)
	}
	return nil
}
