package marketdata

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies ingestion failures. Fatal codes terminate a single fetch;
// RecordParse is recovered per record and never fails a batch.
type Code string

const (
	CodeNotFound            Code = "not_found"
	CodeInactiveDataSource  Code = "inactive_data_source"
	CodeProviderUnsupported Code = "provider_unsupported"
	CodeCredentialMissing   Code = "credential_missing"
	CodeTokenExchange       Code = "token_exchange_failure"
	CodeProviderHTTP        Code = "provider_http_error"
	CodeProviderPayload     Code = "provider_payload_error"
	CodeRecordParse         Code = "record_parse_error"
	CodeInternal            Code = "internal"
)

// Error is the single domain error type carried out of the pipeline. Status
// and Body are populated for upstream HTTP failures.
type Error struct {
	Code    Code
	Message string
	Status  int
	Body    string
	cause   error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		body := strings.TrimSpace(e.Body)
		if body != "" {
			return fmt.Sprintf("%s (%d): %s", e.Message, e.Status, body)
		}
		return fmt.Sprintf("%s (%d)", e.Message, e.Status)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Errorf builds a domain error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an upstream error.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// HTTPError builds a provider HTTP failure carrying the upstream status and body.
func HTTPError(status int, body, message string) *Error {
	return &Error{Code: CodeProviderHTTP, Message: message, Status: status, Body: body}
}

// CodeOf extracts the domain code from an error chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
