/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package corepool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// permits is the pool's bounded-concurrency gate (component B). It wraps a
// golang.org/x/sync/semaphore.Weighted the same bare way semaphore/nobar
// wraps it (no progress-bar rendering): a FIFO, context-cancellation-safe
// counting semaphore. A zero hard_limit makes it a no-op so an unbounded
// pool never pays for semaphore bookkeeping.
type permits struct {
	sem     *semaphore.Weighted
	limit   int64
	current int64
}

// newPermits builds a permit gate for the given hard_limit. limit <= 0
// means unbounded: Acquire/Release become no-ops and Current is unused.
func newPermits(limit int64) *permits {
	p := &permits{limit: limit}
	if limit > 0 {
		p.sem = semaphore.NewWeighted(limit)
	}
	return p
}

// Acquire blocks, in FIFO order, until a permit is available or ctx is
// done. Returns the context error on cancellation without consuming a permit.
func (p *permits) Acquire(ctx context.Context) error {
	if p.sem == nil {
		return nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	atomic.AddInt64(&p.current, 1)
	return nil
}

// TryAcquire attempts to acquire a permit without blocking.
func (p *permits) TryAcquire() bool {
	if p.sem == nil {
		return true
	}
	if p.sem.TryAcquire(1) {
		atomic.AddInt64(&p.current, 1)
		return true
	}
	return false
}

// Release returns a permit to the gate. Safe to call even for an unbounded gate.
func (p *permits) Release() {
	if p.sem == nil {
		return
	}
	atomic.AddInt64(&p.current, -1)
	p.sem.Release(1)
}

// Current returns the number of permits currently held.
func (p *permits) Current() int64 {
	return atomic.LoadInt64(&p.current)
}

// Limit returns the configured hard_limit, or 0 for unbounded.
func (p *permits) Limit() int64 {
	return p.limit
}
