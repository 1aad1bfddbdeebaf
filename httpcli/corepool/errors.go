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
	"errors"
	"fmt"
	"io"
	"net"

	liberr "github.com/nabbar/golib/errors"
	"github.com/nabbar/golib/httpcli/corepool/h1"
	"github.com/nabbar/golib/httpcli/corepool/h2"
	"golang.org/x/net/http2"
)

// Error codes for the connection pool and protocol engines.
// Registered in the same MinPkgHttpCli block used by the httpcli package,
// offset high enough to never collide with httpcli's own codes.
const (
	ErrorParamsInvalid liberr.CodeError = iota + liberr.MinPkgHttpCli + 100
	ErrorPoolClosed
	ErrorPoolTimeout
	ErrorDialFailed
	ErrorConnectTimeout
	ErrorTLSHandshake
	ErrorALPNMismatch
	ErrorConnectionClosed
	ErrorProtocolState
	ErrorStreamReset
	ErrorFrameSizeExceeded
	ErrorReadTimeout
	ErrorWriteTimeout
	ErrorNetwork
	ErrorRequestInvalid
	ErrorResponseInvalid
)

func init() {
	if liberr.ExistInMapMessage(ErrorParamsInvalid) {
		panic(fmt.Errorf("error code collision with package golib/httpcli/corepool"))
	}
	liberr.RegisterIdFctMessage(ErrorParamsInvalid, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case ErrorParamsInvalid:
		return "at least one given parameter is empty or invalid"
	case ErrorPoolClosed:
		return "connection pool is closed"
	case ErrorPoolTimeout:
		return "timed out waiting for a free connection slot"
	case ErrorDialFailed:
		return "error while opening the underlying network connection"
	case ErrorConnectTimeout:
		return "timed out dialing or TLS-handshaking the underlying network connection"
	case ErrorTLSHandshake:
		return "error while performing the TLS handshake"
	case ErrorALPNMismatch:
		return "negotiated ALPN protocol is not supported"
	case ErrorConnectionClosed:
		return "connection is closed or was closed by the remote peer"
	case ErrorProtocolState:
		return "request issued from an invalid protocol state"
	case ErrorStreamReset:
		return "stream was reset by the remote peer"
	case ErrorFrameSizeExceeded:
		return "frame exceeds the negotiated maximum size"
	case ErrorReadTimeout:
		return "timed out reading the response"
	case ErrorWriteTimeout:
		return "timed out writing the request"
	case ErrorNetwork:
		return "network error while sending the request or receiving the response"
	case ErrorRequestInvalid:
		return "request is missing required fields"
	case ErrorResponseInvalid:
		return "response could not be parsed"
	}

	return liberr.NullMessage
}

// isTimeoutErr reports whether err represents a deadline expiring, either
// the context's or the underlying net.Conn's.
func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isClosedErr reports whether err represents the peer (or the transport
// itself) having closed the connection, as opposed to some other network
// failure mid-exchange.
func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, h2.ErrClosed) ||
		errors.Is(err, h2.ErrGoAway)
}

// classifyEngineError turns an error returned by h1.Engine.RoundTrip or
// h2.Engine.RoundTrip into the pool's own error taxonomy: write-phase vs
// read-phase timeouts get distinct codes so a caller can tell "the request
// was never sent, safe to retry" from "the request may have been applied
// twice", and a clean timeout is told apart from a framing violation.
func classifyEngineError(err error) liberr.Error {
	var h1w *h1.WriteError
	if errors.As(err, &h1w) {
		return classifyPhaseError(h1w.Err, ErrorWriteTimeout)
	}
	var h2w *h2.WriteError
	if errors.As(err, &h2w) {
		return classifyPhaseError(h2w.Err, ErrorWriteTimeout)
	}

	var h1r *h1.ReadError
	if errors.As(err, &h1r) {
		return classifyPhaseError(h1r.Err, ErrorReadTimeout)
	}
	var h2r *h2.ReadError
	if errors.As(err, &h2r) {
		return classifyPhaseError(h2r.Err, ErrorReadTimeout)
	}

	switch {
	case errors.Is(err, h1.ErrProtocolState):
		return ErrorProtocolState.Error(err)
	case errors.Is(err, h2.ErrStreamReset):
		return ErrorStreamReset.Error(err)
	case errors.Is(err, http2.ErrFrameTooLarge):
		return ErrorFrameSizeExceeded.Error(err)
	case isClosedErr(err):
		return ErrorConnectionClosed.Error(err)
	case isTimeoutErr(err):
		return ErrorReadTimeout.Error(err)
	}

	return ErrorNetwork.Error(err)
}

// classifyPhaseError resolves a write- or read-phase failure to a timeout,
// a closed-connection, a framing, or a generic network error code.
func classifyPhaseError(err error, timeoutCode liberr.CodeError) liberr.Error {
	switch {
	case errors.Is(err, h2.ErrStreamReset):
		return ErrorStreamReset.Error(err)
	case errors.Is(err, http2.ErrFrameTooLarge):
		return ErrorFrameSizeExceeded.Error(err)
	case isClosedErr(err):
		return ErrorConnectionClosed.Error(err)
	case isTimeoutErr(err):
		return timeoutCode.Error(err)
	}
	return ErrorNetwork.Error(err)
}
