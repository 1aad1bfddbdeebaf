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
	"fmt"

	liberr "github.com/nabbar/golib/errors"
)

// Error codes for HTTP client operations.
// These errors are registered with the golib/errors package for consistent error handling.
const (
	ErrorParamsInvalid        liberr.CodeError = iota + liberr.MinPkgHttpCli // at least one given parameter is empty or invalid
	ErrorValidatorError                                                      // configuration validation failed
	ErrorClientTransportHttp2                                                // HTTP/2 transport configuration error
	ErrorURLParse                                                            // uri/url parse error
	ErrorCreateRequest                                                       // error on creating a new http/http2 request
	ErrorSendRequest                                                         // error on sending a http/http2 request
	ErrorResponseInvalid                                                     // response is nil or malformed
	ErrorResponseLoadBody                                                    // error on reading the response body
	ErrorResponseStatus                                                      // response status is not in the accepted list
	ErrorResponseUnmarshall                                                  // error unmarshalling response body into the target model
)

func init() {
	if liberr.ExistInMapMessage(ErrorParamsInvalid) {
		panic(fmt.Errorf("error code collision with package golib/httpcli"))
	}
	liberr.RegisterIdFctMessage(ErrorParamsInvalid, getMessage)
}

func getMessage(code liberr.CodeError) (message string) {
	switch code {
	case ErrorParamsInvalid:
		return "at least one given parameter is empty or invalid"
	case ErrorValidatorError:
		return "config seems to be invalid"
	case ErrorClientTransportHttp2:
		return "error while configure http2 transport for client"
	case ErrorURLParse:
		return "uri/url parse error"
	case ErrorCreateRequest:
		return "error on creating a new http/http2 request"
	case ErrorSendRequest:
		return "error on sending a http/http2 request"
	case ErrorResponseInvalid:
		return "response is nil or malformed"
	case ErrorResponseLoadBody:
		return "error on reading the response body"
	case ErrorResponseStatus:
		return "response status is not in the accepted list"
	case ErrorResponseUnmarshall:
		return "error unmarshalling response body into the target model"
	}

	return liberr.NullMessage
}
