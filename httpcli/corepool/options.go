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
	"bytes"
	"encoding/json"
	"fmt"

	libval "github.com/go-playground/validator/v10"
	libtls "github.com/nabbar/golib/certificates"
	libdur "github.com/nabbar/golib/duration"
	liberr "github.com/nabbar/golib/errors"
	libptc "github.com/nabbar/golib/network/protocol"
)

const jsonIndent = "  "

// PoolLimits bounds the pool's concurrency (component B/G). SoftLimit, if
// set and lower than HardLimit, causes idle connections above it to be
// closed on release instead of kept for reuse; HardLimit, if set, is the
// semaphore's permit count. Zero means unbounded for either.
type PoolLimits struct {
	SoftLimit int   `json:"soft_limit" yaml:"soft_limit" toml:"soft_limit" mapstructure:"soft_limit"`
	HardLimit int64 `json:"hard_limit" yaml:"hard_limit" toml:"hard_limit" mapstructure:"hard_limit" validate:"gte=0"`
}

// TimeoutConfig carries every timeout the pool and its engines observe.
// Zero value on any field means "no deadline" for that phase.
type TimeoutConfig struct {
	Connect libdur.Duration `json:"connect" yaml:"connect" toml:"connect" mapstructure:"connect"`
	Read    libdur.Duration `json:"read" yaml:"read" toml:"read" mapstructure:"read"`
	Write   libdur.Duration `json:"write" yaml:"write" toml:"write" mapstructure:"write"`
	Pool    libdur.Duration `json:"pool" yaml:"pool" toml:"pool" mapstructure:"pool"`
}

// OptionForceIP mirrors httpcli.OptionForceIP: dial a fixed address instead
// of the origin's own host, optionally binding to a local address.
type OptionForceIP struct {
	Enable bool                   `json:"enable" yaml:"enable" toml:"enable" mapstructure:"enable"`
	Net    libptc.NetworkProtocol `json:"net,omitempty" yaml:"net,omitempty" toml:"net,omitempty" mapstructure:"net,omitempty"`
	IP     string                 `json:"ip,omitempty" yaml:"ip,omitempty" toml:"ip,omitempty" mapstructure:"ip,omitempty"`
	Local  string                 `json:"local,omitempty" yaml:"local,omitempty" toml:"local,omitempty" mapstructure:"local,omitempty"`
}

// Options configures a Pool end to end: limits, timeouts, TLS and the
// optional force-IP dial override, following the same struct-tag and
// Validate() conventions as httpcli.Options.
type Options struct {
	Limits           PoolLimits     `json:"limits" yaml:"limits" toml:"limits" mapstructure:"limits"`
	Timeout          TimeoutConfig  `json:"timeout" yaml:"timeout" toml:"timeout" mapstructure:"timeout"`
	Http2            bool           `json:"http2" yaml:"http2" toml:"http2" mapstructure:"http2"`
	DisableKeepAlive bool           `json:"disable_keepalive" yaml:"disable_keepalive" toml:"disable_keepalive" mapstructure:"disable_keepalive"`
	TLS              *libtls.Config `json:"tls,omitempty" yaml:"tls,omitempty" toml:"tls,omitempty" mapstructure:"tls,omitempty"`
	ForceIP          OptionForceIP  `json:"force_ip" yaml:"force_ip" toml:"force_ip" mapstructure:"force_ip"`

	// TLSConfig, when set, overrides TLS entirely with an already-built
	// libtls.TLSConfig instance. Used by callers that already hold a
	// resolved TLSConfig instead of the serializable *Config shape.
	TLSConfig libtls.TLSConfig `json:"-" yaml:"-" toml:"-" mapstructure:"-"`
}

// DefaultConfig returns a default Options serialized as indented JSON, the
// same shape httpcli.DefaultConfig returns for a single client.
func DefaultConfig(indent string) []byte {
	var (
		res = bytes.NewBuffer(make([]byte, 0))
		def = []byte(`{
  "limits": {
    "soft_limit": 10,
    "hard_limit": 100
  },
  "timeout": {
    "connect": "10s",
    "read": "30s",
    "write": "30s",
    "pool": "0s"
  },
  "http2": true,
  "force_ip": {
    "enable": false,
    "net": "tcp",
    "ip": "127.0.0.1",
    "local": "127.0.0.1"
  }
}`)
	)
	if err := json.Indent(res, def, indent, jsonIndent); err != nil {
		return def
	}
	return res.Bytes()
}

// Validate checks the Options struct against its `validate` tags, the
// same go-playground/validator pattern used by httpcli.Options.Validate.
func (o Options) Validate() liberr.Error {
	var e = ErrorParamsInvalid.Error(nil)

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

// tlsConfig resolves the TLSConfig this Options should use, falling back
// to the process-wide certificates.Default the way httpcli.Options does.
func (o Options) tlsConfig() libtls.TLSConfig {
	if o.TLSConfig != nil {
		return o.TLSConfig
	}
	if o.TLS == nil {
		return libtls.Default
	}
	return o.TLS.NewFrom(libtls.Default)
}
