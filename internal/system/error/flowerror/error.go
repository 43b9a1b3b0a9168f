/*
 * Copyright (c) 2025, WSO2 LLC. (http://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package flowerror defines the error taxonomy shared by the flow engine, the transition executor and
// the out-of-band poller.
package flowerror

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a flow error so that callers can choose a retry policy.
type Kind string

const (
	// KindValidation denotes caller supplied inputs that do not match a remediation option's schema.
	KindValidation Kind = "validation"
	// KindInvalidTransition denotes a remediation option that is not currently available.
	KindInvalidTransition Kind = "invalid_transition"
	// KindTransport denotes a network or connection level failure.
	KindTransport Kind = "transport"
	// KindProtocol denotes a well formed error response returned by a remote party.
	KindProtocol Kind = "protocol"
	// KindDecode denotes a response body that did not match the expected model shape.
	KindDecode Kind = "decode"
	// KindSessionExpired denotes a session that outlived its validity window.
	KindSessionExpired Kind = "session_expired"
	// KindTimeout denotes out-of-band content that did not arrive before the deadline.
	KindTimeout Kind = "timeout"
)

// Error is the single error type returned by the flow packages. Only the fields relevant to the kind
// are populated.
type Error struct {
	Kind    Kind
	Code    string
	Message string

	// Fields lists the missing or invalid input fields of a validation error.
	Fields []string
	// Status is the HTTP status of a protocol error.
	Status int
	// Payload is the remote error body, kept verbatim.
	Payload []byte
	// ProviderCodes are the error codes or message keys found in Payload.
	ProviderCodes []string
	// Attempts is the number of fetch attempts made before a timeout.
	Attempts int

	Cause error
}

// Sentinels for errors.Is checks. They match any error of the same kind.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrTransport         = &Error{Kind: KindTransport}
	ErrProtocol          = &Error{Kind: KindProtocol}
	ErrDecode            = &Error{Kind: KindDecode}
	ErrSessionExpired    = &Error{Kind: KindSessionExpired}
	ErrTimeout           = &Error{Kind: KindTimeout}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Code != "" {
		b.WriteString(" [" + e.Code + "]")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if len(e.Fields) > 0 {
		b.WriteString(" (fields: " + strings.Join(e.Fields, ", ") + ")")
	}
	if e.Status != 0 {
		b.WriteString(fmt.Sprintf(" (status: %d)", e.Status))
	}
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a flow error of the same kind. A target carrying a code only matches
// errors with that code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Retryable reports whether the same request may be repeated without changing the inputs.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport
}

// KindOf returns the kind of the first flow error in err's chain, or an empty kind.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// CodeOf returns the code of the first flow error in err's chain, or an empty string.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsRetryable reports whether err is a flow error that may be retried as is.
func IsRetryable(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Retryable()
}
