// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/Thermoquad/foclink/pkg/foclink"
)

// ============================================================
// Lifecycle Tests
// ============================================================

func TestSession_OpenClose(t *testing.T) {
	d := newFakeDevice(t)
	s := New(d.dialer())

	if s.IsOpen() {
		t.Fatal("new session should be closed")
	}
	if err := s.Close(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Close on closed session = %v, want ErrNotOpen", err)
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := s.Open(context.Background()); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Open = %v, want ErrAlreadyOpen", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
	if err := s.Close(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("second Close = %v, want ErrNotOpen", err)
	}

	// Reopen on a fresh stream
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	if _, ok, err := s.ReadRegister(context.Background(), 0x11); err != nil || !ok {
		t.Errorf("read after reopen = %v, %v", ok, err)
	}
	s.Close()
}

func TestSession_OperationsWhenClosed(t *testing.T) {
	s := New(newFakeDevice(t).dialer())
	ctx := context.Background()

	if _, _, err := s.ReadRegister(ctx, 0x11); !errors.Is(err, ErrNotOpen) {
		t.Errorf("ReadRegister = %v, want ErrNotOpen", err)
	}
	if _, _, err := s.WriteRegister(ctx, 0x01, foclink.Value{1}, false); !errors.Is(err, ErrNotOpen) {
		t.Errorf("WriteRegister = %v, want ErrNotOpen", err)
	}
	if err := s.SendRaw(ctx, []byte{0x01}); !errors.Is(err, ErrNotOpen) {
		t.Errorf("SendRaw = %v, want ErrNotOpen", err)
	}
	if _, err := s.Send(ctx, "sync"); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send = %v, want ErrNotOpen", err)
	}
}

func TestSession_DialError(t *testing.T) {
	dialErr := errors.New("no such port")
	s := New(func(ctx context.Context) (io.ReadWriteCloser, error) {
		return nil, dialErr
	})
	if err := s.Open(context.Background()); !errors.Is(err, dialErr) {
		t.Errorf("Open = %v, want wrapped dial error", err)
	}
	if s.IsOpen() {
		t.Error("session open after failed dial")
	}
}

func TestSession_LinkLost(t *testing.T) {
	d := newFakeDevice(t)
	d.setSilent(0x65)
	s := openSession(t, d)

	result := make(chan bool, 1)
	go func() {
		_, ok, _ := s.ReadRegister(context.Background(), 0x65)
		result <- ok
	}()
	waitFor(t, "read request", func() bool { return len(d.frames()) == 1 })

	d.hangUp()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done not closed after link loss")
	}
	if s.IsOpen() {
		t.Error("session still open after link loss")
	}
	select {
	case ok := <-result:
		if ok {
			t.Error("pending read answered after link loss")
		}
	case <-time.After(500 * time.Millisecond):
		t.Error("pending read not resolved after link loss")
	}
}

// ============================================================
// Register Tests
// ============================================================

func TestSession_ReadRegister(t *testing.T) {
	d := newFakeDevice(t)
	s := openSession(t, d)

	res, ok, err := s.ReadRegister(context.Background(), 0x11)
	if err != nil || !ok {
		t.Fatalf("ReadRegister = %v, %v", ok, err)
	}
	if res.RegisterID != 0x11 || res.Value.Float() != 12.5 {
		t.Errorf("response = %+v", res)
	}

	frames := d.frames()
	if len(frames) != 1 || frames[0].Type != foclink.TypeRegister || !bytes.Equal(frames[0].Payload, []byte{0x11}) {
		t.Errorf("device received %v, want one read of 0x11", frames)
	}
}

func TestSession_ReadTimeout(t *testing.T) {
	d := newFakeDevice(t)
	d.setSilent(0x65)
	s := openSession(t, d)

	start := time.Now()
	_, ok, err := s.ReadRegister(context.Background(), 0x65)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("timeout should not be an error: %v", err)
	}
	if ok {
		t.Error("silent register reported an answer")
	}
	if elapsed < DefaultReadTimeout {
		t.Errorf("resolved after %v, before the %v timeout", elapsed, DefaultReadTimeout)
	}
	if elapsed > 3*DefaultReadTimeout {
		t.Errorf("resolved after %v, far beyond the timeout", elapsed)
	}
	if s.pending.len() != 0 {
		t.Errorf("pending reads = %d after timeout", s.pending.len())
	}
}

func TestSession_ReadContextCancel(t *testing.T) {
	d := newFakeDevice(t)
	d.setSilent(0x65)
	s := openSession(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, ok, err := s.ReadRegister(ctx, 0x65)
	if ok || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ReadRegister = %v, %v, want deadline exceeded", ok, err)
	}
}

func TestSession_CloseResolvesPending(t *testing.T) {
	d := newFakeDevice(t)
	d.setSilent(0x65)
	s := openSession(t, d)

	result := make(chan bool, 1)
	go func() {
		_, ok, err := s.ReadRegister(context.Background(), 0x65)
		result <- ok || err != nil
	}()
	waitFor(t, "read request", func() bool { return len(d.frames()) == 1 })

	start := time.Now()
	s.Close()
	select {
	case bad := <-result:
		if bad {
			t.Error("pending read should resolve with no answer")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("pending read still waiting after Close")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Close did not resolve the read promptly")
	}
}

func TestSession_WriteRegister(t *testing.T) {
	d := newFakeDevice(t)
	s := openSession(t, d)

	res, ok, err := s.WriteRegister(context.Background(), 0x01, foclink.Value{2.5}, true)
	if err != nil || !ok {
		t.Fatalf("WriteRegister = %v, %v", ok, err)
	}
	if res.Value.Float() != 2.5 {
		t.Errorf("confirmed value = %v, want 2.5", res.Value)
	}

	frames := d.frames()
	if len(frames) != 2 {
		t.Fatalf("device received %d frames, want write + read", len(frames))
	}
	want := append([]byte{0x01}, 0x00, 0x00, 0x20, 0x40)
	if !bytes.Equal(frames[0].Payload, want) {
		t.Errorf("write payload = % X, want % X", frames[0].Payload, want)
	}
}

func TestSession_WriteUnknownRegister(t *testing.T) {
	s := openSession(t, newFakeDevice(t))
	_, _, err := s.WriteRegister(context.Background(), 0xEE, foclink.Value{1}, false)
	if !errors.Is(err, foclink.ErrUnknownRegister) {
		t.Errorf("WriteRegister = %v, want ErrUnknownRegister", err)
	}
}

func TestSession_MotorAddressCache(t *testing.T) {
	d := newFakeDevice(t)
	s := openSession(t, d)
	ctx := context.Background()

	if _, ok := s.MotorAddress(); ok {
		t.Error("motor address should start unknown")
	}
	for i := 0; i < 3; i++ {
		if err := s.SetMotorAddress(ctx, 1); err != nil {
			t.Fatalf("SetMotorAddress error: %v", err)
		}
	}
	waitFor(t, "address write", func() bool { return len(d.frames()) >= 1 })
	if n := len(d.frames()); n != 1 {
		t.Errorf("address writes = %d, want 1 (cached)", n)
	}
	if m, ok := s.MotorAddress(); !ok || m != 1 {
		t.Errorf("MotorAddress = %d, %v", m, ok)
	}

	s.InvalidateMotorAddress()
	s.SetMotorAddress(ctx, 1)
	s.SetMotorAddress(ctx, 0)
	waitFor(t, "address writes", func() bool { return len(d.frames()) >= 3 })
	frames := d.frames()
	if len(frames) != 3 {
		t.Fatalf("address writes = %d, want 3", len(frames))
	}
	if !bytes.Equal(frames[2].Payload, []byte{foclink.RegMotorAddress, 0x00}) {
		t.Errorf("last write = % X", frames[2].Payload)
	}
}

// ============================================================
// Telemetry Tests
// ============================================================

func TestMinElapsedMicros(t *testing.T) {
	tests := []struct {
		hz   float64
		want uint32
	}{
		{50, 20000},
		{1_000_000, 1},
		{10_000_000, 1},
		{3, 333333},
		{1e-6, 4294967295},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.hz), func(t *testing.T) {
			if got := MinElapsedMicros(tt.hz); got != tt.want {
				t.Errorf("MinElapsedMicros(%v) = %d, want %d", tt.hz, got, tt.want)
			}
		})
	}
}

func TestSession_ConfigureTelemetry(t *testing.T) {
	tests := []struct {
		hz         float64
		minElapsed uint32
	}{
		{50, 20000},
		{1_000_000, 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.hz), func(t *testing.T) {
			d := newFakeDevice(t)
			s := openSession(t, d)
			headers := s.SubscribeHeaders(4)
			defer headers.Cancel()

			refs := []foclink.RegisterRef{{Motor: 0, Register: 0x01}, {Motor: 0, Register: 0x11}}
			if err := s.ConfigureTelemetry(context.Background(), refs, tt.hz); err != nil {
				t.Fatalf("ConfigureTelemetry error: %v", err)
			}

			frames := d.frames()
			if len(frames) != 4 {
				t.Fatalf("device received %d frames, want 4", len(frames))
			}
			if !bytes.Equal(frames[0].Payload, []byte{foclink.RegTelemetryCtrl, 0x00}) {
				t.Errorf("select = % X", frames[0].Payload)
			}
			if !bytes.Equal(frames[1].Payload, []byte{foclink.RegTelemetryReg, 0x02, 0x00, 0x01, 0x00, 0x11}) {
				t.Errorf("schema = % X", frames[1].Payload)
			}
			if frames[2].Payload[0] != foclink.RegTelemetryMinElapsed || len(frames[2].Payload) != 5 {
				t.Fatalf("rate write = % X", frames[2].Payload)
			}
			if got := binary.LittleEndian.Uint32(frames[2].Payload[1:]); got != tt.minElapsed {
				t.Errorf("min elapsed = %d, want %d", got, tt.minElapsed)
			}
			if !bytes.Equal(frames[3].Payload, []byte{foclink.RegTelemetryReg}) {
				t.Errorf("header request = % X", frames[3].Payload)
			}

			select {
			case h := <-headers.C:
				if len(h.Registers) != 2 || h.Registers[1] != refs[1] {
					t.Errorf("learned header = %+v", h)
				}
			case <-time.After(time.Second):
				t.Fatal("telemetry header not published")
			}
		})
	}
}

func TestSession_ConfigureTelemetryInvalid(t *testing.T) {
	s := openSession(t, newFakeDevice(t))
	refs := []foclink.RegisterRef{{Motor: 0, Register: 0x11}}
	for _, hz := range []float64{0, -5} {
		if err := s.ConfigureTelemetry(context.Background(), refs, hz); !errors.Is(err, ErrInvalidFrequency) {
			t.Errorf("ConfigureTelemetry(%v) = %v, want ErrInvalidFrequency", hz, err)
		}
	}
}

func TestSession_TelemetryDecode(t *testing.T) {
	d := newFakeDevice(t)
	s := openSession(t, d)
	samples := s.SubscribeTelemetry(4)
	defer samples.Cancel()

	data := []byte{0x00}
	data = append(data, foclink.EncodeValue(foclink.Scalar(foclink.PrimitiveF32), foclink.Value{1.5})...)
	data = append(data, foclink.EncodeValue(foclink.Scalar(foclink.PrimitiveF32), foclink.Value{-2})...)

	// Data before its header is a schema miss
	d.send(foclink.MustEncodeFrame(foclink.TypeTelemetry, data))
	waitFor(t, "schema miss", func() bool { return s.Stats().SchemaMisses == 1 })

	header := foclink.EncodeTelemetryHeader(0, []foclink.RegisterRef{{Motor: 0, Register: 0x01}, {Motor: 0, Register: 0x11}})
	d.send(foclink.MustEncodeFrame(foclink.TypeTelemetryHeader, header))
	d.send(foclink.MustEncodeFrame(foclink.TypeTelemetry, data))

	select {
	case sample := <-samples.C:
		if len(sample.Values) != 2 || sample.Values[0].Float() != 1.5 || sample.Values[1].Float() != -2 {
			t.Errorf("sample = %v", sample.Values)
		}
	case <-time.After(time.Second):
		t.Fatal("no telemetry sample")
	}
}

func TestSession_TelemetrySamplesAreIndependent(t *testing.T) {
	d := newFakeDevice(t)
	s := openSession(t, d)
	samples := s.SubscribeTelemetry(4)
	defer samples.Cancel()
	other := s.SubscribeTelemetry(4)
	defer other.Cancel()

	data := append([]byte{0x00}, foclink.EncodeValue(foclink.Scalar(foclink.PrimitiveF32), foclink.Value{1.5})...)
	header := foclink.EncodeTelemetryHeader(0, []foclink.RegisterRef{{Motor: 0, Register: 0x11}})
	d.send(foclink.MustEncodeFrame(foclink.TypeTelemetryHeader, header))
	d.send(foclink.MustEncodeFrame(foclink.TypeTelemetry, data))

	next := func(sub *Subscription[foclink.TelemetryData]) foclink.TelemetryData {
		t.Helper()
		select {
		case sample := <-sub.C:
			return sample
		case <-time.After(time.Second):
			t.Fatal("no telemetry sample")
		}
		return foclink.TelemetryData{}
	}

	// Rewriting a received sample must not reach the schema or other subscribers
	first := next(samples)
	first.Registers[0].Register = 0x04 // ENABLE, a u8
	first.Values[0][0] = 99
	first.Raw[0] = 0x7F

	if peer := next(other); peer.Registers[0].Register != 0x11 || peer.Values[0].Float() != 1.5 || peer.Raw[0] != 0x00 {
		t.Errorf("other subscriber saw the change: %+v", peer)
	}

	d.send(foclink.MustEncodeFrame(foclink.TypeTelemetry, data))
	second := next(samples)
	if second.Registers[0] != (foclink.RegisterRef{Motor: 0, Register: 0x11}) {
		t.Errorf("second frame registers = %v, want VELOCITY", second.Registers)
	}
	if len(second.Values) != 1 || second.Values[0].Float() != 1.5 {
		t.Errorf("second frame values = %v, want [1.5]", second.Values)
	}
}

func TestSession_HeadersClearedOnClose(t *testing.T) {
	d := newFakeDevice(t)
	s := openSession(t, d)

	header := foclink.EncodeTelemetryHeader(0, []foclink.RegisterRef{{Motor: 0, Register: 0x04}})
	d.send(foclink.MustEncodeFrame(foclink.TypeTelemetryHeader, header))
	waitFor(t, "header", func() bool { return s.Stats().ValidFrames == 1 })
	s.Close()

	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	d.send(foclink.MustEncodeFrame(foclink.TypeTelemetry, []byte{0x00, 0x01}))
	waitFor(t, "schema miss after reopen", func() bool { return s.Stats().SchemaMisses == 1 })
}

// ============================================================
// Link Statistics Tests
// ============================================================

func TestSession_Statistics(t *testing.T) {
	d := newFakeDevice(t)
	s := openSession(t, d)

	good := foclink.MustEncodeFrame(foclink.TypeLog, []byte("boot"))
	bad := append([]byte(nil), good...)
	bad[3] ^= 0x01 // inside TYPE/PAYLOAD, not the marker or LEN

	d.send(bad)
	d.send(good)
	d.send([]byte{foclink.MarkerByte, 0x02})
	waitFor(t, "statistics", func() bool {
		st := s.Stats()
		return st.CRCErrors == 1 && st.ValidFrames == 1 && st.FramingErrors == 1
	})

	if st := s.Stats(); st.BytesReceived != uint64(len(bad)+len(good)+2) {
		t.Errorf("BytesReceived = %d", st.BytesReceived)
	}
	s.ResetStats()
	if s.Stats().TotalFrames != 0 {
		t.Error("ResetStats did not clear counters")
	}
}

func TestSession_SchemaMissCounting(t *testing.T) {
	d := newFakeDevice(t)
	s := openSession(t, d)

	// An empty header is malformed but is not a schema miss
	d.send(foclink.MustEncodeFrame(foclink.TypeTelemetryHeader, nil))
	d.send(foclink.MustEncodeFrame(foclink.TypeLog, []byte("ok")))
	waitFor(t, "frames", func() bool { return s.Stats().ValidFrames == 2 })
	if got := s.Stats().SchemaMisses; got != 0 {
		t.Errorf("SchemaMisses after empty header = %d, want 0", got)
	}

	// Data shorter than its header is
	header := foclink.EncodeTelemetryHeader(0, []foclink.RegisterRef{{Motor: 0, Register: 0x11}})
	d.send(foclink.MustEncodeFrame(foclink.TypeTelemetryHeader, header))
	d.send(foclink.MustEncodeFrame(foclink.TypeTelemetry, []byte{0x00, 0x01}))
	waitFor(t, "short data miss", func() bool { return s.Stats().SchemaMisses == 1 })

	// So is data for an id with no header
	d.send(foclink.MustEncodeFrame(foclink.TypeTelemetry, []byte{0x05, 0x01}))
	waitFor(t, "unknown id miss", func() bool { return s.Stats().SchemaMisses == 2 })
}

// ============================================================
// Command Tests
// ============================================================

func TestSession_Send(t *testing.T) {
	syncWire := foclink.MustEncodeFrame(foclink.TypeSync, nil)

	tests := []struct {
		name    string
		text    string
		typ     byte
		payload []byte
	}{
		{"sync", "sync", foclink.TypeSync, []byte{}},
		{"save", "save", foclink.TypeCommand, []byte{foclink.CmdWrite}},
		{"calibrate", "calibrate", foclink.TypeCommand, []byte{foclink.CmdCalibrate}},
		{"bootloader", "bootloader", foclink.TypeCommand, []byte{foclink.CmdBootloader}},
		{"write", "set ENABLE 0", foclink.TypeRegister, []byte{0x04, 0x00}},
		{"raw wrapped", "raw 11", foclink.TypeRegister, []byte{0x11}},
		{"raw unframed", "raw " + fmt.Sprintf("% X", syncWire), foclink.TypeSync, []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDevice(t)
			s := openSession(t, d)

			if _, err := s.Send(context.Background(), tt.text); err != nil {
				t.Fatalf("Send(%q) error: %v", tt.text, err)
			}
			waitFor(t, "frame", func() bool { return len(d.frames()) >= 1 })

			f := d.frames()[0]
			if f.Type != tt.typ || !bytes.Equal(f.Payload, tt.payload) {
				t.Errorf("device received %q % X, want %q % X", f.Type, f.Payload, tt.typ, tt.payload)
			}
		})
	}
}

func TestSession_SendRead(t *testing.T) {
	s := openSession(t, newFakeDevice(t))
	result, err := s.Send(context.Background(), "get velocity")
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if !result.Answered || result.Response.Value.Float() != 12.5 {
		t.Errorf("result = %+v", result)
	}
	if result.Action.Kind != foclink.ActionRead {
		t.Errorf("action = %s", result.Action.Kind)
	}
}

func TestSession_SendMalformed(t *testing.T) {
	d := newFakeDevice(t)
	s := openSession(t, d)
	for _, text := range []string{"", "frobnicate", "get NOPE", "raw"} {
		if _, err := s.Send(context.Background(), text); !errors.Is(err, ErrNoAction) {
			t.Errorf("Send(%q) = %v, want ErrNoAction", text, err)
		}
	}
	time.Sleep(20 * time.Millisecond)
	if n := len(d.frames()); n != 0 {
		t.Errorf("malformed lines wrote %d frames", n)
	}
}

func TestSession_SendTelemetry(t *testing.T) {
	d := newFakeDevice(t)
	s := openSession(t, d)
	if _, err := s.Send(context.Background(), "telemetry 1 velocity 50hz"); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	frames := d.frames()
	if len(frames) != 4 {
		t.Fatalf("device received %d frames, want 4", len(frames))
	}
	if !bytes.Equal(frames[1].Payload, []byte{foclink.RegTelemetryReg, 0x01, 0x01, 0x11}) {
		t.Errorf("schema = % X", frames[1].Payload)
	}
}

// ============================================================
// Subscription Tests
// ============================================================

func TestSession_PacketSubscription(t *testing.T) {
	d := newFakeDevice(t)
	s := openSession(t, d)
	packets := s.SubscribePackets(8)
	responses := s.SubscribeResponses(8)
	defer packets.Cancel()
	defer responses.Cancel()

	d.send(foclink.MustEncodeFrame(foclink.TypeLog, []byte("hello")))
	select {
	case p := <-packets.C:
		if p.Kind != foclink.KindLog || p.Text() != "hello" {
			t.Errorf("packet = %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no packet delivered")
	}

	// Unsolicited responses are still published
	d.send(foclink.MustEncodeFrame(foclink.TypeResponse, []byte{0x04, 0x01}))
	select {
	case r := <-responses.C:
		if r.RegisterID != 0x04 || r.Value.Float() != 1 {
			t.Errorf("response = %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("no response delivered")
	}
}

func TestSession_LegacyFramer(t *testing.T) {
	d := newFakeDevice(t)
	d.codec = foclink.NewLegacyFramer()
	s := openSession(t, d, WithFramer(foclink.NewLegacyFramer()))

	res, ok, err := s.ReadRegister(context.Background(), 0x04)
	if err != nil || !ok || res.Value.Float() != 1 {
		t.Errorf("legacy read = %+v, %v, %v", res, ok, err)
	}
}
