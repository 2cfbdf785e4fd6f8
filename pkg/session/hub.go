// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import "sync"

// DefaultSubscriptionBuffer is the inbox size used when none is given
const DefaultSubscriptionBuffer = 64

// Subscription is a typed inbox. Values are delivered on C in publish order;
// when C is full new values are dropped for this subscriber only.
type Subscription[T any] struct {
	C <-chan T

	ch   chan T
	hub  *hub[T]
	once sync.Once
}

// Cancel detaches the subscription and closes C
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// hub fans values out to subscribers without ever blocking the publisher.
// When clone is set every subscriber receives its own copy.
type hub[T any] struct {
	mu    sync.Mutex
	subs  map[*Subscription[T]]struct{}
	clone func(T) T
}

func (h *hub[T]) subscribe(size int) *Subscription[T] {
	if size <= 0 {
		size = DefaultSubscriptionBuffer
	}
	ch := make(chan T, size)
	sub := &Subscription[T]{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[*Subscription[T]]struct{})
	}
	h.subs[sub] = struct{}{}
	return sub
}

func (h *hub[T]) remove(sub *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

func (h *hub[T]) publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		out := v
		if h.clone != nil {
			out = h.clone(v)
		}
		select {
		case sub.ch <- out:
		default:
		}
	}
}
