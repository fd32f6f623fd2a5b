/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package brokererror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrFeedUnavailable    ErrorCode = "FEED_UNAVAILABLE"
	ErrPayloadAbsent      ErrorCode = "PAYLOAD_ABSENT"
	ErrNotaryUnreachable  ErrorCode = "NOTARY_UNREACHABLE"
	ErrBadSignature       ErrorCode = "BAD_SIGNATURE"
	ErrDecryptFailed      ErrorCode = "DECRYPT_FAILED"
	ErrBadEncoding        ErrorCode = "BAD_ENCODING"
	ErrUnknownKind        ErrorCode = "UNKNOWN_KIND"
	ErrPriceTooLow        ErrorCode = "PRICE_TOO_LOW"
	ErrProvisioningFailed ErrorCode = "PROVISIONING_FAILED"
	ErrRefundFailed       ErrorCode = "REFUND_FAILED"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrInternal           ErrorCode = "INTERNAL"
)

// BrokerError is a classified failure of the pipeline. Details holds the
// underlying error when there is one.
type BrokerError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details error     `json:"-"`
}

func (e BrokerError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e BrokerError) Unwrap() error {
	return e.Details
}

func New(code ErrorCode, message string, details error) BrokerError {
	return BrokerError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func Newf(code ErrorCode, format string, args ...interface{}) BrokerError {
	return BrokerError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether any error in err's chain is a BrokerError with the given code.
func Is(err error, code ErrorCode) bool {
	var brokerErr BrokerError
	if errors.As(err, &brokerErr) {
		if brokerErr.Code == code {
			return true
		}
		return Is(brokerErr.Details, code)
	}
	return false
}

// CodeOf returns the outermost code in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var brokerErr BrokerError
	if errors.As(err, &brokerErr) {
		return brokerErr.Code
	}
	return ErrInternal
}

func MapErrorToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUnknownKind, ErrPriceTooLow, ErrBadEncoding:
		return http.StatusBadRequest
	case ErrFeedUnavailable, ErrNotaryUnreachable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
