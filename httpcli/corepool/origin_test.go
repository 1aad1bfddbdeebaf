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
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Origin", func() {
	Describe("OriginFromURL", func() {
		It("canonicalizes the default https port", func() {
			u, _ := url.Parse("https://api.example.com/v1/things")
			o, err := OriginFromURL(u)

			Expect(err).To(BeNil())
			Expect(o.Scheme).To(Equal("https"))
			Expect(o.Host).To(Equal("api.example.com"))
			Expect(o.Port).To(Equal("443"))
		})

		It("canonicalizes the default http port", func() {
			u, _ := url.Parse("http://api.example.com/v1/things")
			o, err := OriginFromURL(u)

			Expect(err).To(BeNil())
			Expect(o.Port).To(Equal("80"))
		})

		It("keeps an explicit non-default port", func() {
			u, _ := url.Parse("https://api.example.com:8443/v1")
			o, err := OriginFromURL(u)

			Expect(err).To(BeNil())
			Expect(o.Port).To(Equal("8443"))
		})

		It("lower-cases the scheme", func() {
			u, _ := url.Parse("HTTPS://api.example.com")
			o, err := OriginFromURL(u)

			Expect(err).To(BeNil())
			Expect(o.Scheme).To(Equal("https"))
		})

		It("rejects a nil URL", func() {
			_, err := OriginFromURL(nil)
			Expect(err).ToNot(BeNil())
		})

		It("rejects a URL without a host", func() {
			u, _ := url.Parse("/just/a/path")
			_, err := OriginFromURL(u)
			Expect(err).ToNot(BeNil())
		})

		It("treats explicit and default ports as the same origin", func() {
			a, _ := url.Parse("https://api.example.com")
			b, _ := url.Parse("https://api.example.com:443")

			oa, _ := OriginFromURL(a)
			ob, _ := OriginFromURL(b)

			Expect(oa).To(Equal(ob))
		})

		It("treats different hosts as different origins", func() {
			a, _ := url.Parse("https://a.example.com")
			b, _ := url.Parse("https://b.example.com")

			oa, _ := OriginFromURL(a)
			ob, _ := OriginFromURL(b)

			Expect(oa).ToNot(Equal(ob))
		})
	})

	Describe("Origin methods", func() {
		It("renders String as scheme://host:port", func() {
			o := Origin{Scheme: "https", Host: "example.com", Port: "443"}
			Expect(o.String()).To(Equal("https://example.com:443"))
		})

		It("renders Address as host:port", func() {
			o := Origin{Host: "example.com", Port: "8080"}
			Expect(o.Address()).To(Equal("example.com:8080"))
		})

		It("reports IsTLS for https", func() {
			Expect(Origin{Scheme: "https"}.IsTLS()).To(BeTrue())
		})

		It("reports not IsTLS for http", func() {
			Expect(Origin{Scheme: "http"}.IsTLS()).To(BeFalse())
		})
	})
})
