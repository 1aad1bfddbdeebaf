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
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"golang.org/x/net/http2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// h2Server starts a real HTTP/2-over-TLS httptest server (stdlib net/http +
// x/net/http2, the same framer/hpack stack this package's Engine drives by
// hand) and returns it alongside a dialed, ALPN-negotiated *Engine.
func h2Server(handler http.HandlerFunc) *httptest.Server {
	srv := httptest.NewUnstartedServer(handler)
	Expect(http2.ConfigureServer(srv.Config, &http2.Server{})).To(Succeed())
	srv.TLS = srv.Config.TLSConfig
	srv.StartTLS()
	return srv
}

func dialEngine(srv *httptest.Server) *Engine {
	addr := strings.TrimPrefix(srv.URL, "https://")

	conn, err := tls.Dial("tcp", addr, &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{"h2"},
	})
	Expect(err).To(BeNil())
	Expect(conn.ConnectionState().NegotiatedProtocol).To(Equal("h2"))

	e, eerr := New(context.Background(), conn, 5*time.Second)
	Expect(eerr).To(BeNil())
	return e
}

var _ = Describe("Engine", func() {
	It("drives a GET request/response cycle over a real HTTP/2 connection", func() {
		srv := h2Server(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.ProtoMajor).To(Equal(2))
			w.Header().Set("X-Test", "yes")
			_, _ = w.Write([]byte("pong"))
		})
		defer srv.Close()

		e := dialEngine(srv)
		defer e.Close()

		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/ping", nil)
		rsp, err := e.RoundTrip(context.Background(), req)
		Expect(err).To(BeNil())
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
		Expect(rsp.Header.Get("X-Test")).To(Equal("yes"))

		body, rerr := io.ReadAll(rsp.Body)
		Expect(rerr).To(BeNil())
		Expect(string(body)).To(Equal("pong"))
		Expect(rsp.Body.Close()).To(Succeed())

		Expect(e.IsClosed()).To(BeFalse())
	})

	It("round-trips a request body", func() {
		srv := h2Server(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			_, _ = w.Write(b)
		})
		defer srv.Close()

		e := dialEngine(srv)
		defer e.Close()

		req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+"/echo", strings.NewReader("payload"))
		rsp, err := e.RoundTrip(context.Background(), req)
		Expect(err).To(BeNil())

		body, _ := io.ReadAll(rsp.Body)
		Expect(string(body)).To(Equal("payload"))
		_ = rsp.Body.Close()
	})

	It("multiplexes two concurrent streams over the same connection", func() {
		release := make(chan struct{})
		srv := h2Server(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/slow" {
				<-release
			}
			_, _ = w.Write([]byte(r.URL.Path))
		})
		defer srv.Close()

		e := dialEngine(srv)
		defer e.Close()

		type result struct {
			body string
			err  error
		}
		slowCh := make(chan result, 1)

		go func() {
			req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/slow", nil)
			rsp, err := e.RoundTrip(context.Background(), req)
			if err != nil {
				slowCh <- result{err: err}
				return
			}
			b, _ := io.ReadAll(rsp.Body)
			_ = rsp.Body.Close()
			slowCh <- result{body: string(b)}
		}()

		// Give the slow stream time to register before issuing the fast one,
		// so both are genuinely in flight at once.
		time.Sleep(50 * time.Millisecond)

		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/fast", nil)
		rsp, err := e.RoundTrip(context.Background(), req)
		Expect(err).To(BeNil())
		fastBody, _ := io.ReadAll(rsp.Body)
		_ = rsp.Body.Close()
		Expect(string(fastBody)).To(Equal("/fast"))

		close(release)

		var got result
		Eventually(slowCh, 2*time.Second).Should(Receive(&got))
		Expect(got.err).To(BeNil())
		Expect(got.body).To(Equal("/slow"))
	})

	It("reports IsClosed after an explicit Close", func() {
		srv := h2Server(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		})
		defer srv.Close()

		e := dialEngine(srv)
		Expect(e.IsClosed()).To(BeFalse())
		Expect(e.Close()).To(Succeed())
		Expect(e.IsClosed()).To(BeTrue())
	})

	It("fails an in-flight RoundTrip when the context is canceled", func() {
		release := make(chan struct{})
		srv := h2Server(func(w http.ResponseWriter, r *http.Request) {
			<-release
			_, _ = w.Write([]byte("too late"))
		})
		defer srv.Close()

		e := dialEngine(srv)
		defer func() {
			close(release)
			_ = e.Close()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/slow", nil)
		_, err := e.RoundTrip(ctx, req)
		Expect(err).ToNot(BeNil())
	})

	It("fails RoundTrip once the engine is closed", func() {
		srv := h2Server(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		})
		defer srv.Close()

		e := dialEngine(srv)
		Expect(e.Close()).To(Succeed())

		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/ping", nil)
		_, err := e.RoundTrip(context.Background(), req)
		Expect(err).To(Equal(ErrClosed))
	})
})
