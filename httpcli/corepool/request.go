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
	"io"
	"net/http"
	"net/url"

	libtls "github.com/nabbar/golib/certificates"
	liberr "github.com/nabbar/golib/errors"
)

// Request is the core's wire-level request shape: built once by the
// out-of-scope façade layer (httpcli) and handed to a Pool/connection
// read-only. TLSOverride/TimeoutOverride let a single caller opt a request
// out of the pool-wide TLS/timeout configuration without reconfiguring the
// whole pool.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   io.Reader

	TLSOverride    libtls.TLSConfig
	TimeoutOverride *TimeoutConfig
}

// Validate reports whether the request carries the minimum fields a
// connection needs to dial and frame it.
func (r *Request) Validate() liberr.Error {
	if r == nil || r.Method == "" || r.URL == nil || r.URL.Host == "" {
		return ErrorRequestInvalid.Error(nil)
	}
	return nil
}

// origin derives the Origin this request should be routed to.
func (r *Request) origin() (Origin, liberr.Error) {
	return OriginFromURL(r.URL)
}
