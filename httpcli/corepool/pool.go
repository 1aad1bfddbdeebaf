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

// Package corepool implements the connection-pool core of the httpcli
// client: an http.RoundTripper that opens, reuses and bounds connections
// per origin, dispatching HTTP/1.1 or HTTP/2 wire framing depending on
// what TLS ALPN negotiated. Everything above "send one request, get one
// response" - URL/header canonicalization, a sync facade, cookie jars -
// is left to the httpcli package that embeds this pool as its Transport.
package corepool

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"

	libtls "github.com/nabbar/golib/certificates"
	liberr "github.com/nabbar/golib/errors"
	htcdns "github.com/nabbar/golib/httpcli/dns-mapper"
)

// Pool is component G: the bounded, per-origin connection pool. It
// implements http.RoundTripper so a *http.Client can use it directly as
// its Transport, the same plug-in shape dns_mapper.Transport already
// offers for the teacher's bare dialer.
type Pool struct {
	mu    sync.Mutex
	store *store
	gate  *permits

	open    *opener
	opts    Options
	tls     libtls.TLSConfig
	closed  bool
}

// New builds a Pool from Options, wiring an optional DNS mapper into the
// opener the way httpcli's own transports thread one through.
func New(opts Options, dns htcdns.DNSMapper) (*Pool, liberr.Error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &Pool{
		store: newStore(),
		gate:  newPermits(opts.Limits.HardLimit),
		open:  newOpener(dns, opts.ForceIP),
		opts:  opts,
		tls:   opts.tlsConfig(),
	}, nil
}

// RoundTrip implements http.RoundTripper: reuse an idle connection for the
// request's origin or acquire a permit and open one, send the request, and
// hand the connection back to the pool once the caller has fully consumed
// or closed the response body. The permit is given back only when the
// connection itself is closed.
func (p *Pool) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	cr := &Request{
		Method: req.Method,
		URL:    req.URL,
		Header: req.Header,
		Body:   req.Body,
	}

	rsp, err := p.Send(ctx, cr)
	if err != nil {
		return nil, err
	}

	return &http.Response{
		StatusCode:    rsp.StatusCode,
		Status:        rsp.Status,
		Proto:         rsp.Proto,
		Header:        rsp.Header,
		Body:          rsp.Body,
		Request:       req,
		ContentLength: -1,
	}, nil
}

// Send is the core operation behind RoundTrip: acquire -> reuse-or-open ->
// engine.send -> wrap the response so its Body release feeds back into
// release/Close. A permit is only ever acquired by acquireConn's cache-miss
// path, so every error path here closes the connection instead of
// releasing a permit directly; closing is what gives the permit back.
func (p *Pool) Send(ctx context.Context, req *Request) (*Response, liberr.Error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrorPoolClosed.Error(nil)
	}
	p.mu.Unlock()

	origin, err := req.origin()
	if err != nil {
		return nil, err
	}

	waitCtx := ctx
	var cancel context.CancelFunc
	if d := p.opts.Timeout.Pool.Time(); d > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	conn, _, acqErr := p.acquireConn(waitCtx, origin)
	if acqErr != nil {
		return nil, acqErr
	}

	hreq, herr := p.buildRequest(ctx, req)
	if herr != nil {
		_ = conn.Close()
		return nil, ErrorRequestInvalid.Error(herr)
	}

	rsp, sendErr := conn.send(ctx, hreq)
	if sendErr != nil {
		_ = conn.Close()
		return nil, sendErr
	}

	return newResponse(rsp, func(closed bool) {
		p.release(conn, closed)
	}), nil
}

// acquireConn pops a keepalive connection for origin if one is idle,
// otherwise acquires a semaphore permit and opens a fresh (not-yet-dialed)
// one; dialing itself is deferred to the connection's lazy ensureEngine on
// first send. The permit tracks open connections, not in-flight requests:
// it is acquired here exactly once per connection, on the cache-miss path,
// and given back exactly once, when that same connection is actually
// closed - see connection.onClose.
func (p *Pool) acquireConn(ctx context.Context, origin Origin) (c *connection, reused bool, err liberr.Error) {
	p.mu.Lock()
	if conn, ok := p.store.popMostRecentFor(origin); ok && !conn.IsClosed() {
		p.mu.Unlock()
		return conn, true, nil
	}
	p.mu.Unlock()

	if acqErr := p.gate.Acquire(ctx); acqErr != nil {
		return nil, false, ErrorPoolTimeout.Error(acqErr)
	}

	return newConnection(origin, p.open, p.tls, p.opts.Timeout, p.gate.Release), false, nil
}

// release returns conn to the pool after its response body has been
// drained or closed. A connection that failed or that exceeds soft_limit
// is closed eagerly instead of kept for reuse; closing it is what gives
// its semaphore permit back by way of connection.onClose. A connection
// kept alive here stays checked out of the semaphore for as long as it
// sits in the store - it still counts as one open connection.
func (p *Pool) release(conn *connection, closed bool) {
	if closed || conn.IsClosed() || p.opts.DisableKeepAlive {
		_ = conn.Close()
		p.mu.Lock()
		p.store.remove(conn)
		p.mu.Unlock()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = conn.Close()
		return
	}

	soft := p.opts.Limits.SoftLimit
	if soft > 0 && p.store.Len() >= soft {
		_ = conn.Close()
		return
	}

	p.store.add(conn)
}

// buildRequest translates the core Request into a stdlib *http.Request,
// the shape both the h1 and h2 engines drive.
func (p *Pool) buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.ReadCloser
	if req.Body != nil {
		if rc, ok := req.Body.(io.ReadCloser); ok {
			body = rc
		} else {
			body = io.NopCloser(req.Body)
		}
	} else {
		body = io.NopCloser(bytes.NewReader(nil))
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, err
	}
	if req.Header != nil {
		hreq.Header = req.Header.Clone()
	}

	return hreq, nil
}

// Close shuts every pooled connection down and makes the Pool refuse
// further Send/RoundTrip calls.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := p.store.all()
	p.mu.Unlock()

	var firstErr error
	for _, c := range conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CloseIdleConnections closes every currently pooled (not in-flight)
// connection without closing the Pool itself, mirroring the
// http.RoundTripper optional method net/http.Client looks for.
func (p *Pool) CloseIdleConnections() {
	p.mu.Lock()
	conns := p.store.all()
	p.store = newStore()
	p.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Len reports the number of idle, pooled connections across all origins.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Len()
}

// InUse reports the number of permits currently held, i.e. the number of
// open connections across every origin - active or sitting idle in the
// keepalive store - bounded by HardLimit. With HardLimit 0 no permits are
// counted and InUse is always 0.
func (p *Pool) InUse() int64 {
	return p.gate.Current()
}
