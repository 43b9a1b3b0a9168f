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

package flowerror

import (
	"fmt"
	"strings"
)

// Client side error codes.
const (
	CodeMissingRequiredFields = "IDX-60001"
	CodeInvalidFieldValue     = "IDX-60002"
	CodeOptionNotAvailable    = "IDX-60003"
	CodeSessionTerminal       = "IDX-60004"
	CodeSessionExpired        = "IDX-60005"
	CodeContentTimeout        = "IDX-60006"
	CodeInvalidConfiguration  = "IDX-60007"
)

// Remote side error codes.
const (
	CodeTransportFailure      = "IDX-65001"
	CodeProviderError         = "IDX-65002"
	CodeSideChannelError      = "IDX-65003"
	CodeMalformedResponse     = "IDX-65004"
	CodeProviderSessionExpiry = "IDX-65005"
)

// NewValidationError creates a validation error naming the offending fields.
func NewValidationError(code, message string, fields ...string) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    code,
		Message: message,
		Fields:  append([]string(nil), fields...),
	}
}

// NewMissingFieldsError creates a validation error for required fields that were not supplied.
func NewMissingFieldsError(option string, fields []string) *Error {
	return NewValidationError(CodeMissingRequiredFields,
		fmt.Sprintf("missing required inputs for remediation %q", option), fields...)
}

// NewConfigurationError creates a validation error for an incomplete client configuration.
func NewConfigurationError(fields ...string) *Error {
	return NewValidationError(CodeInvalidConfiguration, "client configuration is incomplete", fields...)
}

// NewInvalidTransitionError creates an error for an option that is not among the advertised ones.
func NewInvalidTransitionError(option string, available []string) *Error {
	return &Error{
		Kind: KindInvalidTransition,
		Code: CodeOptionNotAvailable,
		Message: fmt.Sprintf("remediation %q is not available, expected one of [%s]",
			option, strings.Join(available, ", ")),
	}
}

// NewTerminalSessionError creates an error for a transition attempted on a terminal session.
func NewTerminalSessionError(option string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Code:    CodeSessionTerminal,
		Message: fmt.Sprintf("session is terminal, remediation %q rejected", option),
	}
}

// NewTransportError wraps a network level failure.
func NewTransportError(message string, cause error) *Error {
	return &Error{
		Kind:    KindTransport,
		Code:    CodeTransportFailure,
		Message: message,
		Cause:   cause,
	}
}

// NewProtocolError creates an error for a non-successful response. The payload is kept as received.
func NewProtocolError(code string, status int, payload []byte, providerCodes []string) *Error {
	message := "remote returned an error response"
	if len(providerCodes) > 0 {
		message += ": " + strings.Join(providerCodes, ", ")
	}
	return &Error{
		Kind:          KindProtocol,
		Code:          code,
		Message:       message,
		Status:        status,
		Payload:       append([]byte(nil), payload...),
		ProviderCodes: append([]string(nil), providerCodes...),
	}
}

// NewDecodeError creates an error for a response that could not be decoded into the model.
func NewDecodeError(message string, cause error) *Error {
	return &Error{
		Kind:    KindDecode,
		Code:    CodeMalformedResponse,
		Message: message,
		Cause:   cause,
	}
}

// NewSessionExpiredError creates an error for a session past its validity window.
func NewSessionExpiredError(message string) *Error {
	return &Error{
		Kind:    KindSessionExpired,
		Code:    CodeSessionExpired,
		Message: message,
	}
}

// NewTimeoutError creates an error for out-of-band content that did not arrive in time.
func NewTimeoutError(attempts int, cause error) *Error {
	return &Error{
		Kind:     KindTimeout,
		Code:     CodeContentTimeout,
		Message:  fmt.Sprintf("no content received after %d attempts", attempts),
		Attempts: attempts,
		Cause:    cause,
	}
}
