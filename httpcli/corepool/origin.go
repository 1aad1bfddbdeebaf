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
	"fmt"
	"net/url"
	"strings"

	liberr "github.com/nabbar/golib/errors"
)

// Origin is the partition key a connection pool hands out connections by:
// scheme, host and port, with scheme-default ports canonicalized so that
// "https://api.example.com" and "https://api.example.com:443" share a slot.
type Origin struct {
	Scheme string
	Host   string
	Port   string
}

// defaultPort returns the canonical port for a scheme, or "" if unknown.
func defaultPort(scheme string) string {
	switch strings.ToLower(scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

// OriginFromURL derives an Origin from a parsed request URL.
func OriginFromURL(u *url.URL) (Origin, liberr.Error) {
	if u == nil || u.Host == "" {
		return Origin{}, ErrorParamsInvalid.Error(nil)
	}

	scheme := strings.ToLower(u.Scheme)
	host := u.Hostname()
	port := u.Port()

	if port == "" {
		port = defaultPort(scheme)
	}

	return Origin{Scheme: scheme, Host: host, Port: port}, nil
}

// String renders the Origin as "scheme://host:port", the pool's internal key form.
func (o Origin) String() string {
	return fmt.Sprintf("%s://%s:%s", o.Scheme, o.Host, o.Port)
}

// Address returns the dial target "host:port" for this origin.
func (o Origin) Address() string {
	return o.Host + ":" + o.Port
}

// IsTLS reports whether connections for this origin must be TLS-wrapped.
func (o Origin) IsTLS() bool {
	return o.Scheme == "https"
}
