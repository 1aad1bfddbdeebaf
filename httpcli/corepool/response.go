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
	"errors"
	"io"
	"net/http"
	"sync"
)

// ErrStreamConsumed is returned by Response.Body reads issued after the
// body has already been fully drained.
var ErrStreamConsumed = errors.New("corepool: response body already consumed")

// ErrResponseClosed is returned by Response.Body reads issued after Close.
var ErrResponseClosed = errors.New("corepool: response already closed")

// Response is the core's wire-level response shape, with its Body tied to
// the owning connection's lifetime via the release callback passed in by
// Pool.Send: closing or fully draining Body triggers the pool's release.
type Response struct {
	StatusCode int
	Status     string
	Proto      string
	Header     http.Header
	Body       io.ReadCloser

	once sync.Once
	done func(closed bool)
}

func newResponse(rsp *http.Response, done func(closed bool)) *Response {
	r := &Response{
		StatusCode: rsp.StatusCode,
		Status:     rsp.Status,
		Proto:      rsp.Proto,
		Header:     rsp.Header,
		done:       done,
	}
	r.Body = &releasingBody{inner: rsp.Body, r: r}
	return r
}

// release runs the connection-release callback exactly once, whether
// triggered by a full read-to-EOF or an explicit Close.
func (r *Response) release(closed bool) {
	r.once.Do(func() {
		if r.done != nil {
			r.done(closed)
		}
	})
}

// releasingBody wraps the engine's response body so the pool's release
// callback fires the moment the body is fully drained or explicitly closed,
// whichever happens first, matching the spec's "Connection: close" and
// body-consumed release boundaries.
type releasingBody struct {
	inner  io.ReadCloser
	r      *Response
	eof    bool
	closed bool
}

func (b *releasingBody) Read(p []byte) (int, error) {
	if b.closed {
		return 0, ErrResponseClosed
	} else if b.eof {
		return 0, ErrStreamConsumed
	}
	n, err := b.inner.Read(p)
	if err == io.EOF {
		b.eof = true
		b.r.release(false)
	} else if err != nil {
		b.r.release(true)
	}
	return n, err
}

func (b *releasingBody) Close() error {
	err := b.inner.Close()
	b.closed = true
	b.r.release(true)
	return err
}
