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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("store", func() {
	originA := Origin{Scheme: "https", Host: "a.example.com", Port: "443"}
	originB := Origin{Scheme: "https", Host: "b.example.com", Port: "443"}

	It("starts empty", func() {
		s := newStore()
		Expect(s.Len()).To(Equal(0))
		Expect(s.all()).To(BeEmpty())
	})

	It("pops nothing for an origin it has never seen", func() {
		s := newStore()
		_, ok := s.popMostRecentFor(originA)
		Expect(ok).To(BeFalse())
	})

	It("pops the most recently added connection for an origin (LIFO)", func() {
		s := newStore()
		c1 := &connection{origin: originA}
		c2 := &connection{origin: originA}

		s.add(c1)
		s.add(c2)

		got, ok := s.popMostRecentFor(originA)
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(c2))

		got, ok = s.popMostRecentFor(originA)
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(c1))

		_, ok = s.popMostRecentFor(originA)
		Expect(ok).To(BeFalse())
	})

	It("never hands out a connection from a different origin", func() {
		s := newStore()
		ca := &connection{origin: originA}
		cb := &connection{origin: originB}

		s.add(ca)
		s.add(cb)

		got, ok := s.popMostRecentFor(originB)
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(cb))

		_, ok = s.popMostRecentFor(originB)
		Expect(ok).To(BeFalse())

		got, ok = s.popMostRecentFor(originA)
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(ca))
	})

	It("removes a connection from both indices", func() {
		s := newStore()
		c1 := &connection{origin: originA}
		c2 := &connection{origin: originA}

		s.add(c1)
		s.add(c2)
		s.remove(c1)

		Expect(s.Len()).To(Equal(1))
		got, ok := s.popMostRecentFor(originA)
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(c2))
	})

	It("remove is a no-op for a connection not tracked", func() {
		s := newStore()
		c1 := &connection{origin: originA}
		s.add(c1)

		untracked := &connection{origin: originA}
		s.remove(untracked)

		Expect(s.Len()).To(Equal(1))
	})

	It("all returns every tracked connection as a snapshot", func() {
		s := newStore()
		c1 := &connection{origin: originA}
		c2 := &connection{origin: originB}
		s.add(c1)
		s.add(c2)

		snap := s.all()
		Expect(snap).To(HaveLen(2))
		Expect(snap).To(ContainElements(c1, c2))

		s.add(&connection{origin: originA})
		Expect(snap).To(HaveLen(2))
	})

	It("Len reflects additions and removals across origins", func() {
		s := newStore()
		c1 := &connection{origin: originA}
		c2 := &connection{origin: originB}

		s.add(c1)
		s.add(c2)
		Expect(s.Len()).To(Equal(2))

		s.remove(c1)
		Expect(s.Len()).To(Equal(1))

		s.remove(c2)
		Expect(s.Len()).To(Equal(0))
	})
})
