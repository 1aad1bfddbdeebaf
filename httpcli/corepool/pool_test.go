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
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	libdur "github.com/nabbar/golib/duration"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// countingServer starts an httptest.Server and counts how many distinct
// TCP connections it accepts, so reuse-vs-redial can be asserted on
// without reaching into the pool's private state.
func countingServer(handler http.HandlerFunc) (*httptest.Server, *int64) {
	var accepted int64

	srv := httptest.NewUnstartedServer(handler)
	srv.Config.ConnState = func(_ net.Conn, state http.ConnState) {
		if state == http.StateNew {
			atomic.AddInt64(&accepted, 1)
		}
	}
	srv.Start()

	return srv, &accepted
}

func mustURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	Expect(err).To(BeNil())
	return u
}

var _ = Describe("Pool", func() {
	Describe("basic request/response round trip", func() {
		It("serves a GET through RoundTrip and reads the body back", func() {
			srv, _ := countingServer(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("hello from pool"))
			})
			defer srv.Close()

			pool, err := New(Options{}, nil)
			Expect(err).To(BeNil())
			defer pool.Close()

			client := &http.Client{Transport: pool}
			rsp, e := client.Get(srv.URL)
			Expect(e).To(BeNil())
			defer rsp.Body.Close()

			body, _ := io.ReadAll(rsp.Body)
			Expect(string(body)).To(Equal("hello from pool"))
			Expect(rsp.StatusCode).To(Equal(http.StatusOK))
		})

		It("rejects a request with no URL host via Send", func() {
			pool, err := New(Options{}, nil)
			Expect(err).To(BeNil())
			defer pool.Close()

			_, sendErr := pool.Send(context.Background(), &Request{Method: http.MethodGet, URL: mustURL("/relative")})
			Expect(sendErr).ToNot(BeNil())
		})
	})

	Describe("keepalive reuse", func() {
		It("reuses the same TCP connection for two requests to the same origin", func() {
			srv, accepted := countingServer(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("ok"))
			})
			defer srv.Close()

			pool, err := New(Options{}, nil)
			Expect(err).To(BeNil())
			defer pool.Close()

			client := &http.Client{Transport: pool}

			rsp1, e1 := client.Get(srv.URL)
			Expect(e1).To(BeNil())
			_, _ = io.ReadAll(rsp1.Body)
			_ = rsp1.Body.Close()

			Eventually(func() int { return pool.Len() }).Should(Equal(1))

			rsp2, e2 := client.Get(srv.URL)
			Expect(e2).To(BeNil())
			_, _ = io.ReadAll(rsp2.Body)
			_ = rsp2.Body.Close()

			Expect(atomic.LoadInt64(accepted)).To(Equal(int64(1)))
		})

		It("does not reuse a connection across two different origins", func() {
			srvA, acceptedA := countingServer(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("a"))
			})
			defer srvA.Close()

			srvB, acceptedB := countingServer(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("b"))
			})
			defer srvB.Close()

			pool, err := New(Options{}, nil)
			Expect(err).To(BeNil())
			defer pool.Close()

			client := &http.Client{Transport: pool}

			rA, _ := client.Get(srvA.URL)
			_, _ = io.ReadAll(rA.Body)
			_ = rA.Body.Close()

			rB, _ := client.Get(srvB.URL)
			_, _ = io.ReadAll(rB.Body)
			_ = rB.Body.Close()

			Expect(atomic.LoadInt64(acceptedA)).To(Equal(int64(1)))
			Expect(atomic.LoadInt64(acceptedB)).To(Equal(int64(1)))
			Eventually(func() int { return pool.Len() }).Should(Equal(2))
		})

		It("closes the connection instead of pooling it when DisableKeepAlive is set", func() {
			srv, accepted := countingServer(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("ok"))
			})
			defer srv.Close()

			pool, err := New(Options{DisableKeepAlive: true}, nil)
			Expect(err).To(BeNil())
			defer pool.Close()

			client := &http.Client{Transport: pool}

			rsp1, _ := client.Get(srv.URL)
			_, _ = io.ReadAll(rsp1.Body)
			_ = rsp1.Body.Close()

			rsp2, _ := client.Get(srv.URL)
			_, _ = io.ReadAll(rsp2.Body)
			_ = rsp2.Body.Close()

			Expect(pool.Len()).To(Equal(0))
			Expect(atomic.LoadInt64(accepted)).To(Equal(int64(2)))
		})

		It("closes idle connections above soft_limit instead of pooling them", func() {
			srv, _ := countingServer(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("ok"))
			})
			defer srv.Close()

			pool, err := New(Options{Limits: PoolLimits{SoftLimit: 1}}, nil)
			Expect(err).To(BeNil())
			defer pool.Close()

			client := &http.Client{Transport: pool}

			for i := 0; i < 3; i++ {
				rsp, e := client.Get(srv.URL)
				Expect(e).To(BeNil())
				_, _ = io.ReadAll(rsp.Body)
				_ = rsp.Body.Close()
			}

			Expect(pool.Len()).To(BeNumerically("<=", 1))
		})
	})

	Describe("hard_limit bound", func() {
		It("never lets more in-flight requests than hard_limit through at once", func() {
			release := make(chan struct{})
			var inFlight int64
			var maxSeen int64

			srv, _ := countingServer(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt64(&inFlight, 1)
				for {
					old := atomic.LoadInt64(&maxSeen)
					if n <= old || atomic.CompareAndSwapInt64(&maxSeen, old, n) {
						break
					}
				}
				<-release
				atomic.AddInt64(&inFlight, -1)
				_, _ = w.Write([]byte("ok"))
			})
			defer srv.Close()

			pool, err := New(Options{Limits: PoolLimits{HardLimit: 2}}, nil)
			Expect(err).To(BeNil())
			defer pool.Close()

			client := &http.Client{Transport: pool}

			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					rsp, e := client.Get(srv.URL)
					if e == nil {
						_, _ = io.ReadAll(rsp.Body)
						_ = rsp.Body.Close()
					}
				}()
			}

			Eventually(func() int64 { return atomic.LoadInt64(&inFlight) }, time.Second).Should(Equal(int64(2)))
			Expect(pool.InUse()).To(BeNumerically("<=", int64(2)))

			close(release)
			wg.Wait()

			Expect(atomic.LoadInt64(&maxSeen)).To(Equal(int64(2)))

			// Requests are done, but with keepalive on the connections they rode
			// are pooled rather than closed: the permit stays checked out for as
			// long as its connection sits in the store, so InUse does not drop
			// to zero on its own - only closing the pool gives every permit back.
			var inUse int64
			Eventually(func() int64 {
				inUse = pool.InUse()
				return inUse
			}).Should(BeNumerically(">", int64(0)))
			Expect(inUse).To(BeNumerically("<=", int64(2)))
			Expect(int64(pool.Len())).To(Equal(inUse))

			Expect(pool.Close()).To(Succeed())
			Expect(pool.InUse()).To(Equal(int64(0)))
		})

		It("keeps active+keepalive connections within hard_limit across sequential requests to different origins", func() {
			// A kept-alive connection still counts against hard_limit: with no
			// soft_limit to evict it, a second origin has no permit free to
			// acquire and must time out rather than silently being let through
			// (the regression this guards is the old bug where both origins'
			// connections ended up in the keepalive store at once, even though
			// hard_limit only allowed one open connection).
			srvA, _ := countingServer(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("a")) })
			defer srvA.Close()
			srvB, _ := countingServer(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("b")) })
			defer srvB.Close()

			pool, err := New(Options{
				Limits:  PoolLimits{HardLimit: 1},
				Timeout: TimeoutConfig{Pool: libdur.ParseDuration(50 * time.Millisecond)},
			}, nil)
			Expect(err).To(BeNil())
			defer pool.Close()

			client := &http.Client{Transport: pool}

			rspA, eA := client.Get(srvA.URL)
			Expect(eA).To(BeNil())
			_, _ = io.ReadAll(rspA.Body)
			_ = rspA.Body.Close()

			Eventually(func() int64 { return pool.InUse() }).Should(Equal(int64(1)))
			Expect(pool.Len()).To(Equal(1))

			_, eB := client.Get(srvB.URL)
			Expect(eB).ToNot(BeNil())

			Expect(pool.Len()).To(Equal(1))
			Expect(pool.InUse()).To(Equal(int64(1)))
		})

		It("never leaks a permit when the request fails before a connection is reused", func() {
			pool, err := New(Options{Limits: PoolLimits{HardLimit: 1}}, nil)
			Expect(err).To(BeNil())
			defer pool.Close()

			client := &http.Client{Transport: pool}

			for i := 0; i < 3; i++ {
				req, e := http.NewRequest(http.MethodGet, "http://127.0.0.1:1", nil)
				Expect(e).To(BeNil())

				_, e = client.Do(req)
				Expect(e).ToNot(BeNil())
			}

			Expect(pool.InUse()).To(Equal(int64(0)))
		})
	})

	Describe("pool timeout", func() {
		It("fails a Send that cannot get a permit before the pool timeout elapses", func() {
			release := make(chan struct{})
			srv, _ := countingServer(func(w http.ResponseWriter, r *http.Request) {
				<-release
				_, _ = w.Write([]byte("ok"))
			})
			defer srv.Close()

			pool, err := New(Options{
				Limits:  PoolLimits{HardLimit: 1},
				Timeout: TimeoutConfig{Pool: libdur.ParseDuration(50 * time.Millisecond)},
			}, nil)
			Expect(err).To(BeNil())
			defer pool.Close()

			client := &http.Client{Transport: pool}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				rsp, e := client.Get(srv.URL)
				if e == nil {
					_, _ = io.ReadAll(rsp.Body)
					_ = rsp.Body.Close()
				}
			}()

			Eventually(func() int64 { return pool.InUse() }, time.Second).Should(Equal(int64(1)))

			_, sendErr := pool.Send(context.Background(), &Request{Method: http.MethodGet, URL: mustURL(srv.URL)})
			Expect(sendErr).ToNot(BeNil())

			close(release)
			wg.Wait()
		})
	})

	Describe("Close / CloseIdleConnections", func() {
		It("refuses further Send calls once closed", func() {
			pool, err := New(Options{}, nil)
			Expect(err).To(BeNil())
			Expect(pool.Close()).To(Succeed())

			_, sendErr := pool.Send(context.Background(), &Request{Method: http.MethodGet, URL: mustURL("https://example.com")})
			Expect(sendErr).ToNot(BeNil())
		})

		It("is safe to call Close twice", func() {
			pool, err := New(Options{}, nil)
			Expect(err).To(BeNil())
			Expect(pool.Close()).To(Succeed())
			Expect(pool.Close()).To(Succeed())
		})

		It("drops idle connections without closing the pool", func() {
			srv, _ := countingServer(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("ok"))
			})
			defer srv.Close()

			pool, err := New(Options{}, nil)
			Expect(err).To(BeNil())
			defer pool.Close()

			client := &http.Client{Transport: pool}
			rsp, _ := client.Get(srv.URL)
			_, _ = io.ReadAll(rsp.Body)
			_ = rsp.Body.Close()

			Eventually(func() int { return pool.Len() }).Should(Equal(1))

			pool.CloseIdleConnections()
			Expect(pool.Len()).To(Equal(0))

			rsp2, e2 := client.Get(srv.URL)
			Expect(e2).To(BeNil())
			_, _ = io.ReadAll(rsp2.Body)
			_ = rsp2.Body.Close()
		})
	})
})
