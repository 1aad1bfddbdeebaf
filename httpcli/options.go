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

package httpcli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	libval "github.com/go-playground/validator/v10"
	libtls "github.com/nabbar/golib/certificates"
	libdur "github.com/nabbar/golib/duration"
	liberr "github.com/nabbar/golib/errors"
	"github.com/nabbar/golib/httpcli/corepool"
	libptc "github.com/nabbar/golib/network/protocol"
	"golang.org/x/net/http2"
)

const jsonIndent = "  "

// defaultTLSConfigJSON mirrors certificates.Config's own zero-value JSON
// shape so this package's default config never has to import the
// config/components/tls facade for a single fragment.
const defaultTLSConfigJSON = `{
       "curveList": [],
       "cipherList": [],
       "rootCA": [],
       "clientCA": [],
       "certs": [],
       "versionMin": "",
       "versionMax": "",
       "authClient": "",
       "inheritDefault": true,
       "dynamicSizingDisable": false,
       "sessionTicketDisable": false
     }`

type OptionForceIP struct {
	Enable bool                   `json:"enable" yaml:"enable" toml:"enable" mapstructure:"enable"`
	Net    libptc.NetworkProtocol `json:"net,omitempty" yaml:"net,omitempty" toml:"net,omitempty" mapstructure:"net,omitempty"`
	IP     string                 `json:"ip,omitempty" yaml:"ip,omitempty" toml:"ip,omitempty" mapstructure:"ip,omitempty"`
	Local  string                 `json:"local,omitempty" yaml:"local,omitempty" toml:"local,omitempty" mapstructure:"local,omitempty"`
}

type OptionTLS struct {
	Enable bool          `json:"enable" yaml:"enable" toml:"enable" mapstructure:"enable"`
	Config libtls.Config `json:"tls" yaml:"tls" toml:"tls" mapstructure:"tls"`
}

type OptionProxy struct {
	Enable   bool     `json:"enable" yaml:"enable" toml:"enable" mapstructure:"enable"`
	Endpoint *url.URL `json:"endpoint" yaml:"endpoint" toml:"endpoint" mapstructure:"endpoint"`
	Username string   `json:"username" yaml:"username" toml:"username" mapstructure:"username"`
	Password string   `json:"password" yaml:"password" toml:"password" mapstructure:"password"`
}

// Options is the single-client configuration shape: a thinner cousin of
// corepool.Options aimed at "one client, one set of knobs" callers such as
// config-file-driven setups. GetClient turns it into a *http.Client backed
// by a corepool.Pool, except when a proxy is configured: dialing through a
// proxy is out of the pool's scope, so that path falls back to a plain
// *http.Transport the way the teacher's pre-pool client did.
type Options struct {
	Timeout            time.Duration `json:"timeout" yaml:"timeout" toml:"timeout" mapstructure:"timeout"`
	DisableKeepAlive   bool          `json:"disable_keepalive" yaml:"disable_keepalive" toml:"disable_keepalive" mapstructure:"disable_keepalive"`
	DisableCompression bool          `json:"disable_compression" yaml:"disable_compression" toml:"disable_compression" mapstructure:"disable_compression"`
	Http2              bool          `json:"http2" yaml:"http2" toml:"http2" mapstructure:"http2"`
	TLS                OptionTLS     `json:"tls" yaml:"tls" toml:"tls" mapstructure:"tls"`
	ForceIP            OptionForceIP `json:"force_ip" yaml:"force_ip" toml:"force_ip" mapstructure:"force_ip"`
	Proxy              OptionProxy   `json:"proxy" yaml:"proxy" toml:"proxy" mapstructure:"proxy"`
}

func DefaultConfig(indent string) []byte {
	var (
		res = bytes.NewBuffer(make([]byte, 0))
		def = []byte(`{
       "timeout":"0s",
       "disable_keepalive": false,
       "disable_compression": false,
       "http2": true,
       "tls": ` + defaultTLSConfigJSON + `,
       "force_ip": {
         "enable": false,
         "net":"tcp",
         "ip":"127.0.0.1",
         "local":"127.0.0.1"
       },
       "proxy": {
         "enable": false,
         "endpoint":"http://example.com",
         "username":"example",
         "password":"example"
       }
}`)
	)
	if err := json.Indent(res, def, indent, jsonIndent); err != nil {
		return def
	} else {
		return res.Bytes()
	}
}

func (o Options) Validate() liberr.Error {
	var e = ErrorValidatorError.Error(nil)

	if err := libval.New().Struct(o); err != nil {
		if er, ok := err.(*libval.InvalidValidationError); ok {
			e.Add(er)
		}

		for _, er := range err.(libval.ValidationErrors) {
			//nolint #goerr113
			e.Add(fmt.Errorf("config field '%s' is not validated by constraint '%s'", er.Namespace(), er.ActualTag()))
		}
	}

	if !e.HasParent() {
		e = nil
	}

	return e
}

// GetClient builds a *http.Client for this Options. def is the fallback
// TLSConfig used when TLS.Enable is false; servername is only used to
// pick the ALPN server name when it differs from the request's own host.
func (o Options) GetClient(def libtls.TLSConfig, servername string) (*http.Client, liberr.Error) {
	tls, e := o._GetTLS(def)
	if e != nil {
		return nil, e
	}

	if o.Proxy.Enable && o.Proxy.Endpoint != nil {
		return o._GetProxiedClient(tls, servername)
	}

	opts := corepool.Options{
		Http2:            o.Http2,
		TLSConfig:        tls,
		DisableKeepAlive: o.DisableKeepAlive,
		Timeout: corepool.TimeoutConfig{
			Pool: libdur.ParseDuration(o.Timeout),
		},
	}

	if o.ForceIP.Enable {
		opts.ForceIP = corepool.OptionForceIP{
			Enable: true,
			Net:    o.ForceIP.Net,
			IP:     o.ForceIP.IP,
			Local:  o.ForceIP.Local,
		}
	}

	pool, err := corepool.New(opts, nil)
	if err != nil {
		return nil, err
	}

	return &http.Client{Transport: pool, Timeout: o.Timeout}, nil
}

// _GetProxiedClient builds a plain net/http client routed through the
// configured proxy. Proxy tunneling is not implemented by corepool, so
// proxied requests bypass the pool entirely rather than fake support for it.
func (o Options) _GetProxiedClient(tls libtls.TLSConfig, servername string) (*http.Client, liberr.Error) {
	edp := &url.URL{
		Scheme:      o.Proxy.Endpoint.Scheme,
		Opaque:      o.Proxy.Endpoint.Opaque,
		User:        nil,
		Host:        o.Proxy.Endpoint.Host,
		Path:        o.Proxy.Endpoint.Path,
		RawPath:     o.Proxy.Endpoint.RawPath,
		OmitHost:    o.Proxy.Endpoint.OmitHost,
		ForceQuery:  o.Proxy.Endpoint.ForceQuery,
		RawQuery:    o.Proxy.Endpoint.RawQuery,
		Fragment:    o.Proxy.Endpoint.Fragment,
		RawFragment: o.Proxy.Endpoint.RawFragment,
	}

	if len(o.Proxy.Password) > 0 {
		edp.User = url.UserPassword(o.Proxy.Username, o.Proxy.Password)
	} else if len(o.Proxy.Username) > 0 {
		edp.User = url.User(o.Proxy.Username)
	} else if o.Proxy.Endpoint.User != nil {
		if p, k := o.Proxy.Endpoint.User.Password(); k {
			edp.User = url.UserPassword(o.Proxy.Endpoint.User.Username(), p)
		} else {
			edp.User = url.User(o.Proxy.Endpoint.User.Username())
		}
	}

	tr := &http.Transport{
		Proxy:              http.ProxyURL(edp),
		DisableKeepAlives:  o.DisableKeepAlive,
		DisableCompression: o.DisableCompression,
	}

	if tls != nil {
		tr.TLSClientConfig = tls.TLS(servername)
	}

	if o.Http2 {
		if err := http2.ConfigureTransport(tr); err != nil {
			return nil, ErrorClientTransportHttp2.Error(err)
		}
	}

	return &http.Client{Transport: tr, Timeout: o.Timeout}, nil
}

func (o Options) _GetTLS(def libtls.TLSConfig) (libtls.TLSConfig, liberr.Error) {
	if o.TLS.Enable {
		return o.TLS.Config.NewFrom(def), nil
	} else if def != nil {
		return def.Clone(), nil
	} else {
		return libtls.Default.Clone(), nil
	}
}
