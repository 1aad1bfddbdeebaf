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

// Package h1 drives the HTTP/1.1 wire protocol over an already-dialed
// net.Conn: IDLE -> SEND_REQUEST -> SEND_BODY -> RECV_RESPONSE ->
// RECV_BODY -> DONE | CLOSED. Framing itself is delegated to
// (*http.Request).Write and http.ReadResponse, the same primitives the
// teacher trusts net/http.Transport to contain internally; this engine
// only owns the state transitions and the deadline bookkeeping around them.
package h1

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// ErrProtocolState is returned when RoundTrip is called while the engine
// is not IDLE (i.e. a caller tried to reuse a connection concurrently).
var ErrProtocolState = errors.New("h1: request issued from a non-idle protocol state")

// WriteError wraps a failure that occurred while writing the request line,
// headers or body, letting callers tell a write-phase failure (unsent
// request, safe to retry on a fresh connection) from a read-phase one.
type WriteError struct{ Err error }

func (e *WriteError) Error() string { return "h1: write: " + e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }

// ReadError wraps a failure that occurred while reading the response
// status line, headers or body.
type ReadError struct{ Err error }

func (e *ReadError) Error() string { return "h1: read: " + e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

type state uint8

const (
	stateIdle state = iota
	stateSendRequest
	stateSendBody
	stateRecvResponse
	stateRecvBody
	stateDone
	stateClosed
)

// Engine is one HTTP/1.1 connection's protocol state machine. A single
// Engine serves one request at a time; the owning façade (corepool.conn)
// is responsible for not calling RoundTrip concurrently.
type Engine struct {
	mu sync.Mutex

	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer

	readTimeout  time.Duration
	writeTimeout time.Duration

	st     state
	closed bool
}

// New wraps an already-dialed connection with an HTTP/1.1 engine.
func New(conn net.Conn, readTimeout, writeTimeout time.Duration) *Engine {
	return &Engine{
		conn:         conn,
		br:           bufio.NewReader(conn),
		bw:           bufio.NewWriter(conn),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		st:           stateIdle,
	}
}

// RoundTrip drives exactly one request/response cycle through the state
// machine. A write or read error leaves the engine CLOSED: the caller must
// not reuse it. ErrProtocolState is returned without changing the state.
func (e *Engine) RoundTrip(ctx context.Context, req *http.Request) (*http.Response, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st != stateIdle {
		return nil, ErrProtocolState
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = e.conn.SetDeadline(dl)
	} else if e.writeTimeout > 0 {
		_ = e.conn.SetWriteDeadline(time.Now().Add(e.writeTimeout))
	}

	e.st = stateSendRequest
	hasBody := req.Body != nil
	if hasBody {
		e.st = stateSendBody
	}

	// http.Request.Write serializes the request line, headers and body
	// (chunked automatically when ContentLength < 0) in one pass: this is
	// the "SEND_REQUEST -> SEND_BODY" transition collapsed into a single
	// sans-I/O call, the same way the teacher leaves body framing to
	// net/http rather than hand-rolling chunked encoding.
	if err := req.Write(e.bw); err != nil {
		e.fail()
		return nil, &WriteError{Err: err}
	}
	if err := e.bw.Flush(); err != nil {
		e.fail()
		return nil, &WriteError{Err: err}
	}

	e.st = stateRecvResponse

	if _, ok := ctx.Deadline(); !ok && e.readTimeout > 0 {
		_ = e.conn.SetReadDeadline(time.Now().Add(e.readTimeout))
	}

	rsp, err := http.ReadResponse(e.br, req)
	if err != nil {
		e.fail()
		return nil, &ReadError{Err: err}
	}

	e.st = stateRecvBody
	rsp.Body = &bodyTracker{inner: rsp.Body, e: e, closeOnEOF: rsp.Close}

	return rsp, nil
}

// release transitions the engine back to IDLE (keepalive) or CLOSED
// depending on whether the response asked for the connection to close.
func (e *Engine) release(closeConn bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	if closeConn {
		e.st = stateClosed
		e.closed = true
		_ = e.conn.Close()
		return
	}

	e.st = stateIdle
}

func (e *Engine) fail() {
	e.st = stateClosed
	e.closed = true
	_ = e.conn.Close()
}

// Close shuts the underlying connection down unconditionally.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.st = stateClosed
	return e.conn.Close()
}

// IsClosed reports whether this engine's connection is no longer usable.
func (e *Engine) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// bodyTracker completes the RECV_BODY -> DONE|CLOSED transition once the
// caller has fully drained or explicitly closed the response body.
// closeOnEOF carries the parsed "Connection: close" signal (http.Response.Close)
// forward: a clean EOF still closes the connection instead of returning it
// to IDLE when the peer asked for that.
type bodyTracker struct {
	inner interface {
		Read([]byte) (int, error)
		Close() error
	}
	e          *Engine
	closeOnEOF bool
	reachedEOF bool
	done       bool
}

func (b *bodyTracker) Read(p []byte) (int, error) {
	n, err := b.inner.Read(p)
	if err == io.EOF {
		b.reachedEOF = true
		b.finish(err)
	} else if err != nil {
		b.finish(err)
	}
	return n, err
}

func (b *bodyTracker) Close() error {
	err := b.inner.Close()
	b.finish(nil)
	return err
}

// finish decides whether the connection goes back to IDLE or CLOSED. A
// body not fully drained to EOF leaves the wire in an unknown framing
// state and must close the connection even if Close() itself returned no
// error; a clean EOF still closes when the peer asked for Connection: close.
func (b *bodyTracker) finish(readErr error) {
	if b.done {
		return
	}
	b.done = true

	cleanEOF := readErr == io.EOF || (readErr == nil && b.reachedEOF)
	b.e.release(!cleanEOF || b.closeOnEOF)
}
