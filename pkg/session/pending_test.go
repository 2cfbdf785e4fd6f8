// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"testing"

	"github.com/Thermoquad/foclink/pkg/foclink"
)

func response(id uint8, v float64) foclink.RegisterResponse {
	return foclink.RegisterResponse{RegisterID: id, Value: foclink.Value{v}}
}

func TestPendingTable_FIFO(t *testing.T) {
	p := newPendingTable()
	first := p.add(0x11)
	second := p.add(0x11)
	p.add(0x12)

	if !p.resolve(response(0x11, 1)) || !p.resolve(response(0x11, 2)) {
		t.Fatal("resolve should find queued waiters")
	}
	if got := <-first.ch; got.Value.Float() != 1 {
		t.Errorf("first waiter got %v, want 1", got.Value)
	}
	if got := <-second.ch; got.Value.Float() != 2 {
		t.Errorf("second waiter got %v, want 2", got.Value)
	}
	if p.resolve(response(0x11, 3)) {
		t.Error("resolve with no waiters should report false")
	}
	if p.len() != 1 {
		t.Errorf("len = %d, want 1", p.len())
	}
}

func TestPendingTable_Remove(t *testing.T) {
	p := newPendingTable()
	a := p.add(0x11)
	b := p.add(0x11)
	c := p.add(0x11)

	if !p.remove(0x11, b) {
		t.Fatal("remove of queued waiter failed")
	}
	if p.remove(0x11, b) {
		t.Error("second remove should report false")
	}
	p.resolve(response(0x11, 1))
	p.resolve(response(0x11, 2))
	if got := <-a.ch; got.Value.Float() != 1 {
		t.Errorf("a got %v", got.Value)
	}
	if got := <-c.ch; got.Value.Float() != 2 {
		t.Errorf("c got %v", got.Value)
	}
}

func TestPendingTable_Close(t *testing.T) {
	p := newPendingTable()
	w := p.add(0x11)
	p.close()

	if _, ok := <-w.ch; ok {
		t.Error("closed table should resolve waiters with no answer")
	}
	if p.add(0x11) != nil {
		t.Error("closed table should reject new waiters")
	}
	if p.len() != 0 {
		t.Errorf("len = %d after close", p.len())
	}

	p.reopen()
	if p.add(0x11) == nil {
		t.Error("reopened table should accept waiters")
	}
}

func TestHub_FanOut(t *testing.T) {
	var h hub[int]
	a := h.subscribe(2)
	b := h.subscribe(1)

	h.publish(1)
	h.publish(2) // b is full; dropped for b only

	if got := <-a.C; got != 1 {
		t.Errorf("a first = %d", got)
	}
	if got := <-a.C; got != 2 {
		t.Errorf("a second = %d", got)
	}
	if got := <-b.C; got != 1 {
		t.Errorf("b first = %d", got)
	}
	select {
	case v := <-b.C:
		t.Errorf("b should have dropped the overflow, got %d", v)
	default:
	}
}

func TestHub_Cancel(t *testing.T) {
	var h hub[string]
	sub := h.subscribe(0)
	if cap(sub.ch) != DefaultSubscriptionBuffer {
		t.Errorf("default buffer = %d", cap(sub.ch))
	}
	sub.Cancel()
	sub.Cancel() // idempotent

	if _, ok := <-sub.C; ok {
		t.Error("cancelled subscription channel should be closed")
	}
	h.publish("after cancel")
}

func TestHub_ClonePerSubscriber(t *testing.T) {
	h := hub[foclink.Packet]{clone: foclink.Packet.Clone}
	a := h.subscribe(1)
	b := h.subscribe(1)

	payload := []byte{0x11, 0x22}
	h.publish(foclink.Packet{Kind: foclink.KindLog, Payload: payload})

	pa, pb := <-a.C, <-b.C
	pa.Payload[0] = 0xFF
	if pb.Payload[0] != 0x11 || payload[0] != 0x11 {
		t.Errorf("subscribers share payload: b=%X original=%X", pb.Payload, payload)
	}
}
