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

// Package h2 drives the HTTP/2 wire protocol over an already-dialed,
// ALPN-negotiated net.Conn: connection preface + SETTINGS on open, then
// HEADERS/DATA/WINDOW_UPDATE per request. One reader goroutine owns every
// inbound frame and demultiplexes it onto per-stream channels; one writer
// mutex serializes every outbound frame. Built directly on
// golang.org/x/net/http2.Framer (a true sans-I/O framer: ReadFrame performs
// one blocking read and returns a frame value, Write* methods only
// serialize) and golang.org/x/net/http2/hpack for header (de)compression,
// the same two primitives the pack's own hand-rolled HTTP/2 clients drive
// by hand.
package h2

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// ClientPreface is the fixed byte sequence a client must send before its
// first SETTINGS frame, as required by RFC 7540 §3.5.
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

const defaultInitialWindow = 65535

var (
	// ErrClosed is returned when RoundTrip is called on, or a stream is
	// reading from, a connection that is already shut down.
	ErrClosed = errors.New("h2: connection is closed")
	// ErrGoAway is the shutdown cause recorded when the peer sends GOAWAY.
	ErrGoAway = errors.New("h2: connection received GOAWAY")
	// ErrStreamReset is delivered to a stream's RoundTrip when the peer
	// sends RST_STREAM for it.
	ErrStreamReset = errors.New("h2: stream reset by peer")
	errBadStatus   = errors.New("h2: response missing :status pseudo-header")
)

// WriteError wraps a failure that occurred while writing HEADERS/DATA
// frames for a request, as opposed to one reading the response back.
type WriteError struct{ Err error }

func (e *WriteError) Error() string { return "h2: write: " + e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }

// ReadError wraps a failure that occurred while reading or decoding the
// response's HEADERS/DATA frames.
type ReadError struct{ Err error }

func (e *ReadError) Error() string { return "h2: read: " + e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

// Engine is one HTTP/2 connection's protocol state machine, multiplexing
// many concurrent requests over the single underlying net.Conn.
type Engine struct {
	conn   net.Conn
	framer *http2.Framer

	writeMu sync.Mutex

	streamsMu sync.Mutex
	streams   map[uint32]*stream
	nextID    uint32

	decoder *hpack.Decoder

	closed   int32
	closeErr error
	doneCh   chan struct{}

	readTimeout time.Duration
}

// New performs the client preface and initial SETTINGS exchange, then
// starts the connection's single frame-reading goroutine.
func New(ctx context.Context, conn net.Conn, readTimeout time.Duration) (*Engine, error) {
	if _, err := conn.Write([]byte(ClientPreface)); err != nil {
		return nil, err
	}

	e := &Engine{
		conn:        conn,
		framer:      http2.NewFramer(conn, bufio.NewReader(conn)),
		streams:     make(map[uint32]*stream),
		nextID:      1,
		doneCh:      make(chan struct{}),
		readTimeout: readTimeout,
	}
	e.decoder = hpack.NewDecoder(4096, nil)

	if err := e.framer.WriteSettings(
		http2.Setting{ID: http2.SettingInitialWindowSize, Val: defaultInitialWindow},
		http2.Setting{ID: http2.SettingEnablePush, Val: 0},
	); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go e.readLoop()

	return e, nil
}

// RoundTrip opens a new stream, sends HEADERS (+DATA if req.Body is set)
// and blocks until that stream's response headers have arrived, returning
// an *http.Response whose Body streams the remaining DATA frames.
func (e *Engine) RoundTrip(ctx context.Context, req *http.Request) (*http.Response, error) {
	if atomic.LoadInt32(&e.closed) != 0 {
		return nil, ErrClosed
	}

	st := e.newStreamLocked()

	if err := e.sendHeaders(st.id, req); err != nil {
		e.dropStream(st.id)
		return nil, &WriteError{Err: err}
	}

	if req.Body != nil {
		if err := e.sendBody(st.id, req.Body); err != nil {
			e.dropStream(st.id)
			return nil, &WriteError{Err: err}
		}
	}

	select {
	case <-st.headers:
	case err := <-st.errCh:
		e.dropStream(st.id)
		return nil, &ReadError{Err: err}
	case <-ctx.Done():
		e.dropStream(st.id)
		return nil, &ReadError{Err: ctx.Err()}
	case <-e.doneCh:
		return nil, &ReadError{Err: e.closeErr}
	}

	status, header, err := e.popHeaderResult(st)
	if err != nil {
		e.dropStream(st.id)
		return nil, &ReadError{Err: err}
	}

	rsp := &http.Response{
		StatusCode: status,
		Status:     strconv.Itoa(status) + " " + http.StatusText(status),
		Proto:      "HTTP/2.0",
		ProtoMajor: 2,
		ProtoMinor: 0,
		Header:     header,
		Body:       &streamBody{e: e, st: st},
		Request:    req,
	}

	return rsp, nil
}

func (e *Engine) newStreamLocked() *stream {
	e.streamsMu.Lock()
	defer e.streamsMu.Unlock()

	id := e.nextID
	e.nextID += 2

	st := newStream(id, defaultInitialWindow)
	e.streams[id] = st
	return st
}

func (e *Engine) dropStream(id uint32) {
	e.streamsMu.Lock()
	defer e.streamsMu.Unlock()
	delete(e.streams, id)
}

func (e *Engine) getStream(id uint32) (*stream, bool) {
	e.streamsMu.Lock()
	defer e.streamsMu.Unlock()
	st, ok := e.streams[id]
	return st, ok
}

// sendHeaders encodes req's pseudo-headers and regular headers with hpack
// and writes a single HEADERS frame (no CONTINUATION: the corepool
// façade never issues header sets large enough to need splitting).
func (e *Engine) sendHeaders(id uint32, req *http.Request) error {
	var buf bytes.Buffer
	enc := hpack.NewEncoder(&buf)

	path := req.URL.RequestURI()
	if path == "" {
		path = "/"
	}

	_ = enc.WriteField(hpack.HeaderField{Name: ":method", Value: req.Method})
	_ = enc.WriteField(hpack.HeaderField{Name: ":scheme", Value: "https"})
	_ = enc.WriteField(hpack.HeaderField{Name: ":authority", Value: req.Host})
	_ = enc.WriteField(hpack.HeaderField{Name: ":path", Value: path})

	for k, vv := range req.Header {
		for _, v := range vv {
			_ = enc.WriteField(hpack.HeaderField{Name: toLowerHeader(k), Value: v})
		}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	return e.framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      id,
		BlockFragment: buf.Bytes(),
		EndStream:     req.Body == nil,
		EndHeaders:    true,
	})
}

func (e *Engine) sendBody(id uint32, body io.ReadCloser) error {
	defer body.Close()

	buf := make([]byte, 16384)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			e.writeMu.Lock()
			werr := e.framer.WriteData(id, false, buf[:n])
			e.writeMu.Unlock()
			if werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			e.writeMu.Lock()
			werr := e.framer.WriteData(id, true, nil)
			e.writeMu.Unlock()
			return werr
		}
		if err != nil {
			return err
		}
	}
}

func (e *Engine) popHeaderResult(st *stream) (int, http.Header, error) {
	select {
	case err := <-st.errCh:
		return 0, nil, err
	default:
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	hdr, status, err := decodeHeaderBlock(e.decoder, st.headerBuf.Bytes())
	if err != nil {
		return 0, nil, err
	}
	if status == 0 {
		return 0, nil, errBadStatus
	}

	return status, hdr, nil
}

// readLoop is the connection's single frame-reading goroutine: it owns
// every call to Framer.ReadFrame and is the only writer of hpack-decoded
// header state, so no additional locking is needed around the decoder.
func (e *Engine) readLoop() {
	defer e.shutdown(nil)

	for {
		if e.readTimeout > 0 {
			_ = e.conn.SetReadDeadline(time.Now().Add(e.readTimeout))
		}

		frame, err := e.framer.ReadFrame()
		if err != nil {
			e.shutdown(err)
			return
		}

		switch f := frame.(type) {
		case *http2.SettingsFrame:
			if !f.IsAck() {
				e.writeMu.Lock()
				_ = e.framer.WriteSettingsAck()
				e.writeMu.Unlock()
			}
		case *http2.PingFrame:
			if !f.IsAck() {
				e.writeMu.Lock()
				_ = e.framer.WritePing(true, f.Data)
				e.writeMu.Unlock()
			}
		case *http2.HeadersFrame:
			if st, ok := e.getStream(f.StreamID); ok {
				st.mu.Lock()
				st.headerBuf.Write(f.HeaderBlockFragment())
				st.mu.Unlock()
				if f.HeadersEnded() {
					st.signalHeaders()
				}
			}
		case *http2.ContinuationFrame:
			if st, ok := e.getStream(f.StreamID); ok {
				st.mu.Lock()
				st.headerBuf.Write(f.HeaderBlockFragment())
				st.mu.Unlock()
				if f.HeadersEnded() {
					st.signalHeaders()
				}
			}
		case *http2.DataFrame:
			if st, ok := e.getStream(f.StreamID); ok {
				if len(f.Data()) > 0 {
					buf := make([]byte, len(f.Data()))
					copy(buf, f.Data())
					st.dataCh <- buf
				}
				if f.StreamEnded() {
					close(st.dataCh)
				}
				e.writeMu.Lock()
				_ = e.framer.WriteWindowUpdate(0, uint32(len(f.Data())))
				if !f.StreamEnded() {
					_ = e.framer.WriteWindowUpdate(f.StreamID, uint32(len(f.Data())))
				}
				e.writeMu.Unlock()
			}
		case *http2.RSTStreamFrame:
			if st, ok := e.getStream(f.StreamID); ok {
				st.fail(ErrStreamReset)
			}
		case *http2.GoAwayFrame:
			e.shutdown(ErrGoAway)
			return
		case *http2.WindowUpdateFrame:
			// connection/stream flow-control credit is ignored: sendBody
			// writes DATA frames without checking the peer's send windows.
		}
	}
}

func (e *Engine) shutdown(err error) {
	if !atomic.CompareAndSwapInt32(&e.closed, 0, 1) {
		return
	}
	if err == nil {
		err = ErrClosed
	}
	e.closeErr = err

	e.streamsMu.Lock()
	for _, st := range e.streams {
		st.fail(err)
	}
	e.streamsMu.Unlock()

	close(e.doneCh)
	_ = e.conn.Close()
}

// Close tears the connection down; any in-flight RoundTrip fails with
// ErrClosed and every stream is released.
func (e *Engine) Close() error {
	e.shutdown(nil)
	return nil
}

// IsClosed reports whether this connection can no longer serve requests.
func (e *Engine) IsClosed() bool {
	return atomic.LoadInt32(&e.closed) != 0
}

// streamBody lets the caller drain a response body one DATA frame payload
// at a time, matching io.ReadCloser.
type streamBody struct {
	e   *Engine
	st  *stream
	buf []byte
}

func (b *streamBody) Read(p []byte) (int, error) {
	for len(b.buf) == 0 {
		select {
		case chunk, ok := <-b.st.dataCh:
			if !ok {
				return 0, io.EOF
			}
			b.buf = chunk
		case err := <-b.st.errCh:
			return 0, err
		case <-b.e.doneCh:
			return 0, b.e.closeErr
		}
	}

	n := copy(p, b.buf)
	b.buf = b.buf[n:]
	return n, nil
}

func (b *streamBody) Close() error {
	b.e.dropStream(b.st.id)
	return nil
}

func decodeHeaderBlock(dec *hpack.Decoder, block []byte) (http.Header, int, error) {
	header := make(http.Header)
	status := 0

	dec.SetEmitFunc(func(f hpack.HeaderField) {
		if f.Name == ":status" {
			if v, err := strconv.Atoi(f.Value); err == nil {
				status = v
			}
			return
		}
		if len(f.Name) > 0 && f.Name[0] == ':' {
			return
		}
		header.Add(http.CanonicalHeaderKey(f.Name), f.Value)
	})

	if _, err := dec.Write(block); err != nil {
		return nil, 0, fmt.Errorf("h2: hpack decode: %w", err)
	}
	if err := dec.Close(); err != nil {
		return nil, 0, fmt.Errorf("h2: hpack decode: %w", err)
	}

	return header, status, nil
}

func toLowerHeader(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
