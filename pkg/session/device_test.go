// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/foclink/pkg/foclink"
)

// fakeDevice simulates a controller on the far end of a net.Pipe. It answers
// reads of known registers, stores writes, and re-emits the telemetry header
// when the schema register is read.
type fakeDevice struct {
	t     *testing.T
	codec foclink.FrameCodec

	mu        sync.Mutex
	conn      net.Conn
	registers map[uint8][]byte
	silent    map[uint8]bool
	received  []foclink.Frame
	schema    []foclink.RegisterRef
}

func newFakeDevice(t *testing.T) *fakeDevice {
	return &fakeDevice{
		t:     t,
		codec: foclink.NewFramer(),
		registers: map[uint8][]byte{
			0x11: foclink.EncodeValue(foclink.Scalar(foclink.PrimitiveF32), foclink.Value{12.5}),
			0x04: {0x01},
		},
		silent: map[uint8]bool{},
	}
}

// dialer returns a DialFunc that connects a fresh pipe to this device
func (d *fakeDevice) dialer() DialFunc {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		client, device := net.Pipe()
		d.mu.Lock()
		d.conn = device
		d.mu.Unlock()
		go d.serve(device)
		return client, nil
	}
}

func (d *fakeDevice) serve(conn net.Conn) {
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			d.codec.FeedFunc(buf[:n], func(f *foclink.Frame, err error) {
				if err == nil {
					d.handle(conn, *f)
				}
			})
		}
		if err != nil {
			return
		}
	}
}

func (d *fakeDevice) handle(conn net.Conn, f foclink.Frame) {
	d.mu.Lock()
	d.received = append(d.received, f)
	var reply [][]byte

	if f.Type == foclink.TypeRegister && len(f.Payload) > 0 {
		id := f.Payload[0]
		switch {
		case len(f.Payload) > 1:
			d.registers[id] = append([]byte(nil), f.Payload[1:]...)
			if id == foclink.RegTelemetryReg {
				d.schema = parseSchema(f.Payload[1:])
			}
		case d.silent[id]:
		case id == foclink.RegTelemetryReg:
			header := foclink.EncodeTelemetryHeader(0, d.schema)
			reply = append(reply, d.encode(foclink.TypeTelemetryHeader, header))
			reply = append(reply, d.encode(foclink.TypeResponse, append([]byte{id}, d.registers[id]...)))
		default:
			if value, ok := d.registers[id]; ok {
				reply = append(reply, d.encode(foclink.TypeResponse, append([]byte{id}, value...)))
			}
		}
	}
	d.mu.Unlock()

	for _, r := range reply {
		conn.Write(r)
	}
}

func parseSchema(b []byte) []foclink.RegisterRef {
	if len(b) == 0 {
		return nil
	}
	var refs []foclink.RegisterRef
	for i := 1; i+1 < len(b) && len(refs) < int(b[0]); i += 2 {
		refs = append(refs, foclink.RegisterRef{Motor: b[i], Register: b[i+1]})
	}
	return refs
}

func (d *fakeDevice) encode(frameType byte, payload []byte) []byte {
	data, err := d.codec.Encode(frameType, payload)
	if err != nil {
		d.t.Errorf("device encode: %v", err)
	}
	return data
}

// send writes raw bytes from the device to the session
func (d *fakeDevice) send(data []byte) {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	conn.Write(data)
}

// hangUp closes the device end of the pipe
func (d *fakeDevice) hangUp() {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	conn.Close()
}

func (d *fakeDevice) frames() []foclink.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]foclink.Frame(nil), d.received...)
}

func (d *fakeDevice) setSilent(id uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent[id] = true
}

// waitFor polls cond until it holds or two seconds pass
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func openSession(t *testing.T, d *fakeDevice, opts ...Option) *Session {
	t.Helper()
	s := New(d.dialer(), opts...)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		if s.IsOpen() {
			s.Close()
		}
	})
	return s
}
