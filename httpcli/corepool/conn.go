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
	"net/http"
	"sync"
	"sync/atomic"

	libtls "github.com/nabbar/golib/certificates"
	liberr "github.com/nabbar/golib/errors"
	"github.com/nabbar/golib/httpcli/corepool/h1"
	"github.com/nabbar/golib/httpcli/corepool/h2"
)

// wireEngine is the contract both h1.Engine and h2.Engine satisfy: drive
// one request/response exchange over an already-open connection.
type wireEngine interface {
	RoundTrip(ctx context.Context, req *http.Request) (*http.Response, error)
	Close() error
	IsClosed() bool
}

// connection is component F: the lazily-opened façade over a single
// origin's transport connection. Send dials on first use and picks the h1
// or h2 engine by the opener's negotiated protocol tag. The pool's release
// callback is not held here: Pool.Send attaches it to the Response, whose
// body calls it once drained or closed.
type connection struct {
	origin Origin
	open   *opener
	tls    libtls.TLSConfig
	timers TimeoutConfig

	mu       sync.Mutex
	engine   wireEngine
	protocol string
	onClose  func()

	closed int32
}

// newConnection builds a not-yet-dialed connection. onClose is invoked
// exactly once, the first time this connection is actually Close()'d -
// whether that happens right away (the request that created it failed
// before or during send) or much later (it was kept alive in the pool's
// store and got evicted or closed on pool shutdown). The pool uses it to
// give back the semaphore permit it acquired to construct this connection,
// tying the permit's lifetime to the connection's rather than to any one
// request that happens to use it.
func newConnection(origin Origin, open *opener, tls libtls.TLSConfig, timers TimeoutConfig, onClose func()) *connection {
	return &connection{
		origin:  origin,
		open:    open,
		tls:     tls,
		timers:  timers,
		onClose: onClose,
	}
}

// ensureEngine dials and negotiates a protocol the first time it is called;
// subsequent calls reuse the already-open engine.
func (c *connection) ensureEngine(ctx context.Context) (wireEngine, liberr.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.engine != nil {
		return c.engine, nil
	}

	conn, proto, err := c.open.open(ctx, c.origin, c.tls, c.timers)
	if err != nil {
		return nil, err
	}

	switch proto {
	case "h2":
		eng, e := h2.New(ctx, conn, c.timers.Read.Time())
		if e != nil {
			_ = conn.Close()
			return nil, ErrorDialFailed.Error(e)
		}
		c.engine = eng
	default:
		c.engine = h1.New(conn, c.timers.Read.Time(), c.timers.Write.Time())
	}

	c.protocol = proto
	return c.engine, nil
}

// send drives one request through this connection's engine, dialing lazily
// if needed.
func (c *connection) send(ctx context.Context, req *http.Request) (*http.Response, liberr.Error) {
	eng, err := c.ensureEngine(ctx)
	if err != nil {
		return nil, err
	}

	rsp, e := eng.RoundTrip(ctx, req)
	if e != nil {
		c.markClosed()
		return nil, classifyEngineError(e)
	}

	return rsp, nil
}

// IsClosed reports whether this connection's engine is no longer usable.
// An un-dialed connection (engine == nil) is never considered closed.
func (c *connection) IsClosed() bool {
	if atomic.LoadInt32(&c.closed) != 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine != nil && c.engine.IsClosed()
}

func (c *connection) markClosed() {
	atomic.StoreInt32(&c.closed, 1)
}

// Close releases the underlying transport connection unconditionally and
// fires onClose exactly once, however many times Close is called.
func (c *connection) Close() error {
	c.markClosed()

	c.mu.Lock()
	onClose := c.onClose
	c.onClose = nil
	eng := c.engine
	c.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	if eng != nil {
		return eng.Close()
	}
	return nil
}

// isMultiplexed reports whether this connection supports concurrent
// requests (HTTP/2) as opposed to exactly one in flight at a time (HTTP/1.1).
func (c *connection) isMultiplexed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.protocol == "h2"
}
