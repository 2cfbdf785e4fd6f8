// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Thermoquad/foclink/pkg/foclink"
)

// ReadRegister requests register id and waits for the matching response.
// answered is false when no response arrived within the read timeout or the
// session closed first; that is not an error. There is no retry.
func (s *Session) ReadRegister(ctx context.Context, id uint8) (res foclink.RegisterResponse, answered bool, err error) {
	if !s.IsOpen() {
		return res, false, ErrNotOpen
	}

	// Queue before writing so a fast response cannot be missed
	w := s.pending.add(id)
	if w == nil {
		return res, false, ErrNotOpen
	}
	if err := s.writeFrame(ctx, foclink.TypeRegister, []byte{id}); err != nil {
		s.pending.remove(id, w)
		return res, false, err
	}

	timer := time.NewTimer(s.readTimeout)
	defer timer.Stop()

	select {
	case res, ok := <-w.ch:
		return res, ok, nil
	case <-timer.C:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if !s.pending.remove(id, w) {
		// Resolved while timing out; the value is already buffered
		res, ok := <-w.ch
		return res, ok, nil
	}
	return res, false, err
}

// WriteRegister encodes value for register id and writes it. With
// expectResponse, a trailing read confirms the write.
func (s *Session) WriteRegister(ctx context.Context, id uint8, value foclink.Value, expectResponse bool) (foclink.RegisterResponse, bool, error) {
	def, ok := s.catalog.Lookup(id)
	if !ok {
		return foclink.RegisterResponse{}, false, fmt.Errorf("%w: 0x%02X", foclink.ErrUnknownRegister, id)
	}
	if err := s.WriteRegisterBytes(ctx, id, foclink.EncodeRegisterValue(def, value)); err != nil {
		return foclink.RegisterResponse{}, false, err
	}
	if !expectResponse {
		return foclink.RegisterResponse{}, false, nil
	}
	return s.ReadRegister(ctx, id)
}

// WriteRegisterBytes writes an already encoded value to register id
func (s *Session) WriteRegisterBytes(ctx context.Context, id uint8, encoded []byte) error {
	payload := make([]byte, 0, 1+len(encoded))
	payload = append(payload, id)
	payload = append(payload, encoded...)
	return s.writeFrame(ctx, foclink.TypeRegister, payload)
}

// SetMotorAddress addresses motor, skipping the write when the cache already
// says so. The cache only changes after a successful write.
func (s *Session) SetMotorAddress(ctx context.Context, motor uint8) error {
	s.mu.Lock()
	cached := s.motor == int(motor)
	s.mu.Unlock()
	if cached {
		return nil
	}

	if _, _, err := s.WriteRegister(ctx, foclink.RegMotorAddress, foclink.Value{float64(motor)}, false); err != nil {
		return err
	}

	s.mu.Lock()
	s.motor = int(motor)
	s.mu.Unlock()
	return nil
}

// InvalidateMotorAddress forgets the cached motor address so the next
// SetMotorAddress always writes
func (s *Session) InvalidateMotorAddress() {
	s.mu.Lock()
	s.motor = -1
	s.mu.Unlock()
}

// MotorAddress returns the cached motor address
func (s *Session) MotorAddress() (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.motor < 0 {
		return 0, false
	}
	return uint8(s.motor), true
}

// MinElapsedMicros converts a telemetry rate to the minimum frame spacing
// in microseconds, never less than 1
func MinElapsedMicros(frequencyHz float64) uint32 {
	us := math.Floor(1_000_000 / frequencyHz)
	if us < 1 {
		return 1
	}
	if us > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(us)
}

// ConfigureTelemetry streams registers at frequencyHz on telemetry id 0.
// The trailing read of the schema register makes the controller re-emit
// its telemetry header, which the read loop learns.
func (s *Session) ConfigureTelemetry(ctx context.Context, registers []foclink.RegisterRef, frequencyHz float64) error {
	if !(frequencyHz > 0) || math.IsInf(frequencyHz, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidFrequency, frequencyHz)
	}
	schema, err := foclink.EncodeTelemetrySchema(registers)
	if err != nil {
		return err
	}

	if _, _, err := s.WriteRegister(ctx, foclink.RegTelemetryCtrl, foclink.Value{0}, false); err != nil {
		return fmt.Errorf("select telemetry: %w", err)
	}
	if err := s.WriteRegisterBytes(ctx, foclink.RegTelemetryReg, schema); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	minElapsed := foclink.Value{float64(MinElapsedMicros(frequencyHz))}
	if _, _, err := s.WriteRegister(ctx, foclink.RegTelemetryMinElapsed, minElapsed, false); err != nil {
		return fmt.Errorf("write rate: %w", err)
	}
	if _, _, err := s.ReadRegister(ctx, foclink.RegTelemetryReg); err != nil {
		return fmt.Errorf("request header: %w", err)
	}
	return nil
}

// SendRaw writes b unframed when it already starts with the marker byte,
// otherwise wraps it in a register frame
func (s *Session) SendRaw(ctx context.Context, b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("%w: empty raw payload", ErrNoAction)
	}
	if b[0] == foclink.MarkerByte {
		return s.write(ctx, b)
	}
	return s.writeFrame(ctx, foclink.TypeRegister, b)
}

// SendCommand sends a command frame carrying opcode
func (s *Session) SendCommand(ctx context.Context, opcode byte) error {
	return s.writeFrame(ctx, foclink.TypeCommand, []byte{opcode})
}

// Result describes what an executed action produced
type Result struct {
	Action   foclink.Action
	Response foclink.RegisterResponse // set for reads that were answered
	Answered bool
}

// Send parses one command line and executes it. A malformed line returns
// ErrNoAction without touching the link.
func (s *Session) Send(ctx context.Context, text string) (Result, error) {
	action, ok := s.catalog.ParseCommand(text)
	if !ok {
		return Result{}, ErrNoAction
	}
	return s.Execute(ctx, action)
}

// Execute dispatches a parsed action
func (s *Session) Execute(ctx context.Context, action foclink.Action) (Result, error) {
	result := Result{Action: action}
	var err error

	switch action.Kind {
	case foclink.ActionRaw:
		err = s.SendRaw(ctx, action.Bytes)
	case foclink.ActionSync:
		err = s.writeFrame(ctx, foclink.TypeSync, nil)
	case foclink.ActionRead:
		result.Response, result.Answered, err = s.ReadRegister(ctx, action.RegisterID)
	case foclink.ActionWrite:
		_, _, err = s.WriteRegister(ctx, action.RegisterID, foclink.Value{action.Value}, false)
	case foclink.ActionTelemetry:
		refs := make([]foclink.RegisterRef, len(action.Registers))
		for i, id := range action.Registers {
			refs[i] = foclink.RegisterRef{Motor: action.Motor, Register: id}
		}
		err = s.ConfigureTelemetry(ctx, refs, action.FrequencyHz)
	case foclink.ActionSave:
		err = s.SendCommand(ctx, foclink.CmdWrite)
	case foclink.ActionCalibrate:
		err = s.SendCommand(ctx, foclink.CmdCalibrate)
	case foclink.ActionBootloader:
		err = s.SendCommand(ctx, foclink.CmdBootloader)
	default:
		err = fmt.Errorf("%w: %s", ErrNoAction, action.Kind)
	}
	return result, err
}
