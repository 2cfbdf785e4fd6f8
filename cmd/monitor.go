// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/foclink/pkg/config"
	"github.com/Thermoquad/foclink/pkg/foclink"
	"github.com/Thermoquad/foclink/pkg/session"
	"github.com/Thermoquad/foclink/pkg/telemetry"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive TUI for live telemetry",
	Long: `Stream telemetry from the controller and plot it in the terminal.

On connect the controller is configured to stream the selected registers at
the requested rate. Samples are buffered and drawn at a fixed render rate;
when the terminal cannot keep up, the oldest buffered samples are dropped
and counted.

Features:
  - Live sparklines and last values per register
  - Ingest rate, render rate, buffer utilization and drop counters
  - Link integrity counters (CRC, framing, unknown telemetry ids)
  - Command prompt accepting the same lines as "send"
  - Automatic reconnection on connection loss

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	addStreamFlags(monitorCmd)
}

// monitorManager owns the session and pipeline behind the monitor TUI and
// handles reconnection
type monitorManager struct {
	cfg      config.File
	session  *session.Session
	pipeline *telemetry.Pipeline
	series   *telemetry.Series
	connInfo string

	mu          sync.Mutex
	p           *tea.Program
	frequencyHz float64
	sub         *session.Subscription[foclink.TelemetryData]

	ctx    context.Context
	cancel context.CancelFunc
}

// tuiRenderer feeds drained batches into the series and wakes the TUI
type tuiRenderer struct {
	series *telemetry.Series
	send   func(tea.Msg)
}

func (r *tuiRenderer) Render(batch telemetry.RenderBatch) {
	r.series.Render(batch)
	r.send(renderedMsg{points: batch.Len()})
}

func (r *tuiRenderer) SetTraces(traces []telemetry.Trace) {
	r.series.SetTraces(traces)
	r.send(tracesChangedMsg{traces: traces})
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadStreamConfig(cmd)
	if err != nil {
		return err
	}

	mgr, err := newMonitorManager(cfg)
	if err != nil {
		return err
	}

	// Open the first connection before starting the TUI so errors land on
	// the terminal
	if err := mgr.connect(); err != nil {
		return err
	}

	m := initialMonitorModel(mgr)
	p := tea.NewProgram(m, tea.WithAltScreen())
	mgr.setProgram(p)

	if err := mgr.pipeline.Start(mgr.ctx); err != nil {
		return err
	}
	go mgr.ingestLoop()
	go mgr.linkLoop()
	go mgr.statsLoop()

	_, err = p.Run()
	mgr.shutdown()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

func newMonitorManager(cfg config.File) (*monitorManager, error) {
	s, err := newSession(cfg, log.New(io.Discard, "", 0))
	if err != nil {
		return nil, err
	}
	ids, err := cfg.Monitor.ResolveRegisters(s.Catalog())
	if err != nil {
		return nil, err
	}
	traces := telemetry.TracesFor(s.Catalog(), cfg.Monitor.Motor, ids)

	mgr := &monitorManager{
		cfg:      cfg,
		session:  s,
		series:   telemetry.NewSeries(traces, cfg.Telemetry.MaxPointsOnChart),
		connInfo: describeLink(cfg.Link),

		frequencyHz: cfg.Monitor.FrequencyHz,
	}
	mgr.ctx, mgr.cancel = context.WithCancel(context.Background())

	renderer := &tuiRenderer{series: mgr.series, send: mgr.send}
	mgr.pipeline, err = telemetry.NewPipeline(cfg.Telemetry, traces, renderer)
	if err != nil {
		return nil, err
	}
	mgr.sub = s.SubscribeTelemetry(cfg.Telemetry.MaxDrainPerTick)
	return mgr, nil
}

func (mgr *monitorManager) setProgram(p *tea.Program) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.p = p
}

// send delivers msg to the TUI, if it is running
func (mgr *monitorManager) send(msg tea.Msg) {
	mgr.mu.Lock()
	p := mgr.p
	mgr.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// connect opens the session and starts the configured telemetry stream
func (mgr *monitorManager) connect() error {
	if err := mgr.session.Open(mgr.ctx); err != nil {
		return err
	}
	return mgr.configureStream(mgr.pipeline.Traces())
}

func (mgr *monitorManager) configureStream(traces []telemetry.Trace) error {
	ctx, cancel := context.WithTimeout(mgr.ctx, 2*mgr.cfg.Link.ReadTimeout())
	defer cancel()
	mgr.mu.Lock()
	hz := mgr.frequencyHz
	mgr.mu.Unlock()
	return mgr.session.ConfigureTelemetry(ctx, telemetry.Refs(traces), hz)
}

// ingestLoop moves decoded telemetry into the pipeline
func (mgr *monitorManager) ingestLoop() {
	for {
		select {
		case <-mgr.ctx.Done():
			return
		case data, ok := <-mgr.sub.C:
			if !ok {
				return
			}
			mgr.pipeline.IngestTelemetry(data, time.Now())
		}
	}
}

// linkLoop waits for the link to drop and reconnects with exponential backoff
func (mgr *monitorManager) linkLoop() {
	for {
		select {
		case <-mgr.ctx.Done():
			return
		case <-mgr.session.Done():
		}

		mgr.send(connectionLostMsg{})
		if !mgr.reconnect() {
			return
		}
		mgr.send(reconnectedMsg{connInfo: mgr.connInfo})
	}
}

// reconnect returns false if shutdown was requested while retrying
func (mgr *monitorManager) reconnect() bool {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-mgr.ctx.Done():
			return false
		case <-time.After(backoff):
		}

		err := mgr.session.Open(mgr.ctx)
		if err == nil {
			if err := mgr.configureStream(mgr.pipeline.Traces()); err != nil {
				mgr.send(eventMsg{text: fmt.Sprintf("Telemetry setup failed: %v", err), isError: true})
			}
			return true
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// statsLoop pushes metrics to the TUI at a fixed rate
func (mgr *monitorManager) statsLoop() {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-mgr.ctx.Done():
			return
		case <-ticker.C:
			mgr.pipeline.UpdateLinkStats(mgr.session.Stats())
			mgr.send(statsMsg{
				metrics: mgr.pipeline.Metrics(),
				buffer:  mgr.pipeline.BufferStats(),
			})
		}
	}
}

// execute runs one prompt line. A telemetry command also re-targets the
// plotted traces.
func (mgr *monitorManager) execute(line string) tea.Cmd {
	return func() tea.Msg {
		catalog := mgr.session.Catalog()
		action, ok := catalog.ParseCommand(line)
		if !ok {
			mgr.pipeline.TrackParseError()
			return commandResultMsg{line: line, err: session.ErrNoAction}
		}

		if action.Kind == foclink.ActionTelemetry {
			traces := telemetry.TracesFor(catalog, action.Motor, action.Registers)
			mgr.pipeline.SetTraces(traces)
			mgr.mu.Lock()
			mgr.frequencyHz = action.FrequencyHz
			mgr.mu.Unlock()
		}

		ctx, cancel := context.WithTimeout(mgr.ctx, 2*mgr.cfg.Link.ReadTimeout())
		defer cancel()
		result, err := mgr.session.Execute(ctx, action)
		return commandResultMsg{line: line, result: result, err: err}
	}
}

func (mgr *monitorManager) shutdown() {
	mgr.setProgram(nil)
	mgr.cancel()
	mgr.pipeline.Stop()
	mgr.sub.Cancel()
	mgr.session.Close()
}
