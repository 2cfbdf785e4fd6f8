// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"sync"

	"github.com/Thermoquad/foclink/pkg/foclink"
)

// waiter receives at most one response; a closed channel means no answer
type waiter struct {
	ch chan foclink.RegisterResponse
}

// pendingTable correlates register reads with responses. Reads of the same
// register queue up and are resolved in the order they were issued.
type pendingTable struct {
	mu      sync.Mutex
	waiters map[uint8][]*waiter
	closed  bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{waiters: make(map[uint8][]*waiter)}
}

// add queues a waiter for id. Returns nil once the table is closed.
func (p *pendingTable) add(id uint8) *waiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	w := &waiter{ch: make(chan foclink.RegisterResponse, 1)}
	p.waiters[id] = append(p.waiters[id], w)
	return w
}

// resolve hands res to the oldest waiter for its register
func (p *pendingTable) resolve(res foclink.RegisterResponse) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	queue := p.waiters[res.RegisterID]
	if len(queue) == 0 {
		return false
	}
	w := queue[0]
	p.dequeue(res.RegisterID, 0)
	w.ch <- res.Clone()
	return true
}

// remove drops w from the queue. Returns false if w was already resolved.
func (p *pendingTable) remove(id uint8, w *waiter) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, queued := range p.waiters[id] {
		if queued == w {
			p.dequeue(id, i)
			return true
		}
	}
	return false
}

func (p *pendingTable) dequeue(id uint8, i int) {
	queue := p.waiters[id]
	if len(queue) == 1 {
		delete(p.waiters, id)
		return
	}
	p.waiters[id] = append(queue[:i:i], queue[i+1:]...)
}

// len returns the number of outstanding reads
func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, queue := range p.waiters {
		n += len(queue)
	}
	return n
}

// close resolves every waiter with no answer and rejects new ones
func (p *pendingTable) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, queue := range p.waiters {
		for _, w := range queue {
			close(w.ch)
		}
		delete(p.waiters, id)
	}
}

// reopen accepts waiters again
func (p *pendingTable) reopen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = false
}
