// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session owns one open link to a motor controller.
//
// A Session runs a read loop that turns inbound bytes into frames, resolves
// outstanding register reads, learns telemetry headers and decodes telemetry
// data. Every decoded message is fanned out to typed subscriptions. Outbound
// frames are serialized through a single writer so they never interleave on
// the wire.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/Thermoquad/foclink/pkg/foclink"
)

// DefaultReadTimeout bounds how long ReadRegister waits for a response
const DefaultReadTimeout = 1000 * time.Millisecond

// readBufferSize is the size of one transport read
const readBufferSize = 1024

// DialFunc opens the underlying byte stream
type DialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger for read loop diagnostics
func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithReadTimeout overrides DefaultReadTimeout
func WithReadTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithFramer selects the wire codec, e.g. foclink.NewLegacyFramer()
func WithFramer(codec foclink.FrameCodec) Option {
	return func(s *Session) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// WithCatalog selects the register catalog
func WithCatalog(c *foclink.Catalog) Option {
	return func(s *Session) {
		if c != nil {
			s.catalog = c
		}
	}
}

// Session is a Closed/Open state machine around one byte stream
type Session struct {
	dial        DialFunc
	logger      *log.Logger
	readTimeout time.Duration
	codec       foclink.FrameCodec
	catalog     *foclink.Catalog

	// lifecycle serializes Open and Close
	lifecycle sync.Mutex

	mu    sync.Mutex
	conn  io.ReadWriteCloser
	done  chan struct{}
	stats *foclink.Statistics
	motor int // addressed motor, -1 when unknown

	writeMu sync.Mutex

	// owned by the read loop while open
	decoder *foclink.TelemetryDecoder

	pending   *pendingTable
	packets   hub[foclink.Packet]
	responses hub[foclink.RegisterResponse]
	headers   hub[foclink.TelemetryHeader]
	telemetry hub[foclink.TelemetryData]
}

// New creates a closed session that opens its stream with dial
func New(dial DialFunc, opts ...Option) *Session {
	s := &Session{
		dial:        dial,
		logger:      log.New(io.Discard, "", 0),
		readTimeout: DefaultReadTimeout,
		codec:       foclink.NewFramer(),
		catalog:     foclink.DefaultCatalog,
		stats:       foclink.NewStatistics(),
		motor:       -1,
		pending:     newPendingTable(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.decoder = foclink.NewTelemetryDecoder(s.catalog)
	s.packets.clone = foclink.Packet.Clone
	s.responses.clone = foclink.RegisterResponse.Clone
	s.headers.clone = foclink.TelemetryHeader.Clone
	s.telemetry.clone = foclink.TelemetryData.Clone
	return s
}

// Catalog returns the register catalog in use
func (s *Session) Catalog() *foclink.Catalog {
	return s.catalog
}

// Open dials the stream and starts the read loop
func (s *Session) Open(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	prev := s.done
	s.mu.Unlock()

	// A read loop that lost its link may still be cleaning up
	if prev != nil {
		<-prev
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	s.codec.Reset()
	s.decoder.Reset()
	s.pending.reopen()

	done := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.done = done
	s.stats = foclink.NewStatistics()
	s.motor = -1
	s.mu.Unlock()

	go s.readLoop(conn, done)
	return nil
}

// Close stops the read loop and releases the stream. Outstanding register
// reads resolve immediately with no answer.
func (s *Session) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	conn, done := s.conn, s.done
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return ErrNotOpen
	}

	// Closing the stream unblocks the pending Read
	err := conn.Close()
	<-done
	s.teardown()
	return err
}

// IsOpen reports whether the session is open
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Done returns a channel closed when the current read loop exits, either
// through Close or because the link failed. Nil before the first Open.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Stats returns a copy of the link statistics
func (s *Session) Stats() foclink.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.stats
}

// ResetStats clears the link statistics
func (s *Session) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Reset()
}

// SubscribePackets returns an inbox for every decoded packet
func (s *Session) SubscribePackets(size int) *Subscription[foclink.Packet] {
	return s.packets.subscribe(size)
}

// SubscribeResponses returns an inbox for register responses
func (s *Session) SubscribeResponses(size int) *Subscription[foclink.RegisterResponse] {
	return s.responses.subscribe(size)
}

// SubscribeHeaders returns an inbox for learned telemetry headers
func (s *Session) SubscribeHeaders(size int) *Subscription[foclink.TelemetryHeader] {
	return s.headers.subscribe(size)
}

// SubscribeTelemetry returns an inbox for decoded telemetry samples
func (s *Session) SubscribeTelemetry(size int) *Subscription[foclink.TelemetryData] {
	return s.telemetry.subscribe(size)
}

// teardown drops per-connection state. Called once the read loop has exited.
func (s *Session) teardown() {
	s.pending.close()
	s.decoder.Reset()
	s.mu.Lock()
	s.motor = -1
	s.mu.Unlock()
}

func (s *Session) readLoop(conn io.ReadWriteCloser, done chan struct{}) {
	defer close(done)

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.handleChunk(buf[:n])
		}
		if err == nil {
			continue
		}

		s.mu.Lock()
		lost := s.conn == conn
		if lost {
			s.conn = nil
		}
		s.mu.Unlock()

		// Close already owns the teardown
		if !lost {
			return
		}
		if errors.Is(err, io.EOF) {
			s.logger.Printf("Link closed by peer")
		} else {
			s.logger.Printf("Read error: %v", err)
		}
		conn.Close()
		s.teardown()
		return
	}
}

func (s *Session) handleChunk(chunk []byte) {
	s.mu.Lock()
	s.stats.BytesReceived += uint64(len(chunk))
	s.mu.Unlock()

	s.codec.FeedFunc(chunk, func(f *foclink.Frame, err error) {
		s.mu.Lock()
		s.stats.Update(f, err)
		s.mu.Unlock()

		if err != nil {
			return
		}
		s.dispatch(*f)
	})
}

func (s *Session) dispatch(f foclink.Frame) {
	packet := foclink.NewPacket(f)
	s.packets.publish(packet)

	switch packet.Kind {
	case foclink.KindResponse:
		res, err := s.catalog.ParseResponse(f.Payload)
		if err != nil {
			return
		}
		s.pending.resolve(res)
		s.responses.publish(res)

	case foclink.KindTelemetryHeader, foclink.KindTelemetry:
		header, data, err := s.decoder.HandleFrame(f)
		if err != nil {
			// Data with an unknown id or shorter than its header
			if packet.Kind == foclink.KindTelemetry &&
				(errors.Is(err, foclink.ErrUnknownSchema) || errors.Is(err, foclink.ErrShortPayload)) {
				s.mu.Lock()
				s.stats.RecordSchemaMiss()
				s.mu.Unlock()
			}
			return
		}
		if header != nil {
			s.headers.publish(*header)
		}
		if data != nil {
			s.telemetry.publish(*data)
		}
	}
}

// writeFrame encodes and sends one frame
func (s *Session) writeFrame(ctx context.Context, frameType byte, payload []byte) error {
	data, err := s.codec.Encode(frameType, payload)
	if err != nil {
		return err
	}
	return s.write(ctx, data)
}

// write sends data as one uninterrupted unit
func (s *Session) write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}
