/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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

package protocol

import (
	"fmt"
	"math"
	"reflect"
)

var protocolType = reflect.TypeOf(NetworkProtocol(0))

// ViperDecoderHook returns a mapstructure.DecodeHookFunc (viper's config
// decoder uses the same signature) that turns a string or integer config
// value into a NetworkProtocol, leaving every other conversion untouched.
func ViperDecoderHook() func(reflect.Type, reflect.Type, interface{}) (interface{}, error) {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != protocolType {
			return data, nil
		}

		switch from.Kind() {
		case reflect.String:
			if s, ok := data.(string); ok {
				return Parse(s), nil
			}
		case reflect.Int:
			if v, ok := data.(int); ok {
				return decodeInt64(int64(v))
			}
		case reflect.Int8:
			if v, ok := data.(int8); ok {
				return decodeInt64(int64(v))
			}
		case reflect.Int16:
			if v, ok := data.(int16); ok {
				return decodeInt64(int64(v))
			}
		case reflect.Int32:
			if v, ok := data.(int32); ok {
				return decodeInt64(int64(v))
			}
		case reflect.Int64:
			if v, ok := data.(int64); ok {
				return decodeInt64(v)
			}
		case reflect.Uint:
			if v, ok := data.(uint); ok {
				return decodeUint64(uint64(v))
			}
		case reflect.Uint8:
			if v, ok := data.(uint8); ok {
				return decodeUint64(uint64(v))
			}
		case reflect.Uint16:
			if v, ok := data.(uint16); ok {
				return decodeUint64(uint64(v))
			}
		case reflect.Uint32:
			if v, ok := data.(uint32); ok {
				return decodeUint64(uint64(v))
			}
		case reflect.Uint64:
			if v, ok := data.(uint64); ok {
				return decodeUint64(v)
			}
		}

		return data, nil
	}
}

func decodeInt64(v int64) (interface{}, error) {
	if v <= 0 || v > math.MaxUint16 {
		return nil, fmt.Errorf("network protocol: invalid value %d", v)
	}
	p := ParseInt64(v)
	if p == NetworkEmpty {
		return nil, fmt.Errorf("network protocol: invalid value %d", v)
	}
	return p, nil
}

func decodeUint64(v uint64) (interface{}, error) {
	if v == 0 || v > math.MaxUint16 {
		return nil, fmt.Errorf("network protocol: invalid value %d", v)
	}
	return decodeInt64(int64(v))
}
