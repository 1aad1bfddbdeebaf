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
	"crypto/tls"
	"net"

	libtls "github.com/nabbar/golib/certificates"
	liberr "github.com/nabbar/golib/errors"
	htcdns "github.com/nabbar/golib/httpcli/dns-mapper"
)

// alpnProtocols is the ALPN offer order the opener advertises: prefer h2,
// fall back to http/1.1, matching the negotiation the h2 engine expects.
var alpnProtocols = []string{"h2", "http/1.1"}

// opener is component A: it turns an Origin into a live net.Conn plus the
// negotiated application protocol tag ("h1" or "h2"). An optional DNS
// mapper rewrites host:port before dialing, reusing the teacher's proven
// "dial somewhere other than the literal host" mechanism instead of
// inventing a new one. forceIP, when enabled, overrides the dial target
// with a fixed IP/network (the origin's port is kept), the same knob
// httpcli.OptionForceIP exposes to single-client callers.
type opener struct {
	dialer  *net.Dialer
	dns     htcdns.DNSMapper
	forceIP OptionForceIP
}

func newOpener(dns htcdns.DNSMapper, forceIP OptionForceIP) *opener {
	return &opener{
		dialer:  &net.Dialer{},
		dns:     dns,
		forceIP: forceIP,
	}
}

// open dials origin, performing the TLS handshake with ALPN offers for
// https origins. It returns the negotiated protocol tag ("h1" for plain
// TCP or a negotiated "http/1.1", "h2" when ALPN selected HTTP/2).
func (o *opener) open(ctx context.Context, origin Origin, tlsCfg libtls.TLSConfig, timeout TimeoutConfig) (net.Conn, string, liberr.Error) {
	network := "tcp"
	address := origin.Address()
	dialer := o.dialer

	if o.forceIP.Enable {
		if n := o.forceIP.Net.String(); n != "" {
			network = n
		}
		if o.forceIP.IP != "" {
			address = net.JoinHostPort(o.forceIP.IP, origin.Port)
		}
		if o.forceIP.Local != "" {
			local := *o.dialer
			local.LocalAddr = &net.TCPAddr{IP: net.ParseIP(o.forceIP.Local)}
			dialer = &local
		}
	} else if o.dns != nil {
		if rewritten, err := o.dns.SearchWithCache(address); err == nil && rewritten != "" {
			address = rewritten
		}
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if d := timeout.Connect.Time(); d > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	conn, err := dialer.DialContext(dialCtx, network, address)
	if err != nil {
		if isTimeoutErr(err) {
			return nil, "", ErrorConnectTimeout.Error(err)
		}
		return nil, "", ErrorDialFailed.Error(err)
	}

	if !origin.IsTLS() {
		return conn, "h1", nil
	}

	if tlsCfg == nil {
		tlsCfg = libtls.Default
	}

	cfg := tlsCfg.TLS(origin.Host)
	if cfg == nil {
		cfg = &tls.Config{ServerName: origin.Host}
	} else {
		cfg = cfg.Clone()
	}
	if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = alpnProtocols
	}

	tlsConn := tls.Client(conn, cfg)
	if err = tlsConn.HandshakeContext(dialCtx); err != nil {
		_ = conn.Close()
		if isTimeoutErr(err) {
			return nil, "", ErrorConnectTimeout.Error(err)
		}
		return nil, "", ErrorTLSHandshake.Error(err)
	}

	switch tlsConn.ConnectionState().NegotiatedProtocol {
	case "h2":
		return tlsConn, "h2", nil
	case "http/1.1", "":
		return tlsConn, "h1", nil
	default:
		_ = tlsConn.Close()
		return nil, "", ErrorALPNMismatch.Error(nil)
	}
}
