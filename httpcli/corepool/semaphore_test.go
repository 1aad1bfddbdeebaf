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
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("permits", func() {
	Describe("unbounded gate", func() {
		It("never blocks Acquire", func() {
			p := newPermits(0)
			ctx := context.Background()

			for i := 0; i < 100; i++ {
				Expect(p.Acquire(ctx)).To(Succeed())
			}
			Expect(p.Current()).To(Equal(int64(0)))
		})

		It("TryAcquire always succeeds", func() {
			p := newPermits(0)
			Expect(p.TryAcquire()).To(BeTrue())
		})
	})

	Describe("bounded gate", func() {
		It("reports its configured limit", func() {
			p := newPermits(3)
			Expect(p.Limit()).To(Equal(int64(3)))
		})

		It("tracks Current as permits are acquired and released", func() {
			p := newPermits(2)
			ctx := context.Background()

			Expect(p.Acquire(ctx)).To(Succeed())
			Expect(p.Current()).To(Equal(int64(1)))

			Expect(p.Acquire(ctx)).To(Succeed())
			Expect(p.Current()).To(Equal(int64(2)))

			p.Release()
			Expect(p.Current()).To(Equal(int64(1)))

			p.Release()
			Expect(p.Current()).To(Equal(int64(0)))
		})

		It("refuses a third TryAcquire once the hard limit is held", func() {
			p := newPermits(2)

			Expect(p.TryAcquire()).To(BeTrue())
			Expect(p.TryAcquire()).To(BeTrue())
			Expect(p.TryAcquire()).To(BeFalse())

			p.Release()
			Expect(p.TryAcquire()).To(BeTrue())
		})

		It("blocks Acquire beyond the hard limit until a Release frees a slot", func() {
			p := newPermits(1)
			ctx := context.Background()

			Expect(p.Acquire(ctx)).To(Succeed())

			var wg sync.WaitGroup
			wg.Add(1)
			acquired := make(chan struct{})
			go func() {
				defer wg.Done()
				_ = p.Acquire(ctx)
				close(acquired)
			}()

			Consistently(acquired, 100*time.Millisecond).ShouldNot(BeClosed())

			p.Release()
			Eventually(acquired, time.Second).Should(BeClosed())

			wg.Wait()
		})

		It("returns the context error and consumes no permit on cancellation", func() {
			p := newPermits(1)
			Expect(p.Acquire(context.Background())).To(Succeed())

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			err := p.Acquire(ctx)
			Expect(err).ToNot(BeNil())
			Expect(p.Current()).To(Equal(int64(1)))
		})

		It("never lets Current go negative from an extra Release on an unbounded gate", func() {
			p := newPermits(0)
			p.Release()
			Expect(p.Current()).To(Equal(int64(0)))
		})
	})
})
