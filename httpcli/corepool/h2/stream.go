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

package h2

import (
	"bytes"
	"sync"
)

// stream tracks one request/response exchange multiplexed over the shared
// connection. headerBuf accumulates CONTINUATION frames until END_HEADERS;
// dataCh carries DATA frame payloads to the reader goroutine's caller;
// window holds the initial send window; it is not updated as DATA frames
// are sent or as WINDOW_UPDATE frames arrive.
type stream struct {
	id uint32

	mu        sync.Mutex
	headerBuf bytes.Buffer
	headers   chan struct{}
	headersOK bool

	dataCh  chan []byte
	errCh   chan error
	done    chan struct{}

	window int32
}

func newStream(id uint32, initialWindow int32) *stream {
	return &stream{
		id:      id,
		headers: make(chan struct{}, 1),
		dataCh:  make(chan []byte, 16),
		errCh:   make(chan error, 1),
		done:    make(chan struct{}),
		window:  initialWindow,
	}
}

func (s *stream) signalHeaders() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.headersOK {
		s.headersOK = true
		s.headers <- struct{}{}
	}
}

func (s *stream) fail(err error) {
	select {
	case s.errCh <- err:
	default:
	}
	s.closeOnce()
}

func (s *stream) closeOnce() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
