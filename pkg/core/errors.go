package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of an exchange error.
type ErrorType int

// Error type constants separate fatal remote failures from record-level problems
// that are reported and skipped.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRemote indicates a connectivity failure, a non-success status or an invalid body.
	ErrorTypeRemote
	// ErrorTypePermission indicates the API key lacks the required scope or is invalid.
	ErrorTypePermission
	// ErrorTypeUnprocessableTradePair indicates a venue symbol that cannot be split into two assets.
	ErrorTypeUnprocessableTradePair
	// ErrorTypeUnknownAsset indicates an asset identifier the resolver does not know.
	ErrorTypeUnknownAsset
	// ErrorTypeUnsupportedAsset indicates a known asset that is not supported.
	ErrorTypeUnsupportedAsset
	// ErrorTypeDeserialization indicates a missing or malformed field in a venue record.
	ErrorTypeDeserialization
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return [...]string{
		"UNKNOWN",
		"REMOTE",
		"PERMISSION",
		"UNPROCESSABLE_TRADE_PAIR",
		"UNKNOWN_ASSET",
		"UNSUPPORTED_ASSET",
		"DESERIALIZATION",
	}[t]
}

// Sentinel errors for common error conditions.
var (
	// ErrClientClosed is returned when attempting to use a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrNoCredentials is returned when no API credentials are configured.
	ErrNoCredentials = errors.New("no credentials configured")
)

// ExchangeError represents a structured, classified error.
type ExchangeError struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType `json:"type"`
	// StatusCode is the HTTP status code from the response, zero when none was received.
	StatusCode int `json:"status_code"`
	// Code is a machine-readable error code.
	Code string `json:"code"`
	// Message is the human-readable error description.
	Message string `json:"message"`
	// Subject is the asset name or trading pair symbol the error refers to.
	Subject string `json:"subject,omitempty"`
	// Exchange identifies which exchange produced this error.
	Exchange string `json:"exchange"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`

	cause error
}

// Error implements the error interface for ExchangeError.
func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s (%d/%s): %s",
			e.Exchange, e.Type, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s (%d): %s",
		e.Exchange, e.Type, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *ExchangeError) Unwrap() error {
	return e.cause
}

// WithCode sets the error code and returns the error for chaining.
func (e *ExchangeError) WithCode(code ErrorCode) *ExchangeError {
	e.Code = string(code)
	return e
}

// WithSubject sets the subject and returns the error for chaining.
func (e *ExchangeError) WithSubject(subject string) *ExchangeError {
	e.Subject = subject
	return e
}

// WithCause attaches the underlying cause and returns the error for chaining.
func (e *ExchangeError) WithCause(err error) *ExchangeError {
	e.cause = err
	return e
}

// NewExchangeError creates a new ExchangeError with the specified details.
// The timestamp is automatically set to the current time.
func NewExchangeError(exchange string, errorType ErrorType, statusCode int, message string) *ExchangeError {
	return &ExchangeError{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
		Exchange:   exchange,
		Timestamp:  time.Now(),
	}
}

// NewRemoteError creates a remote error carrying the HTTP status (zero when the
// request never produced a response).
func NewRemoteError(exchange string, statusCode int, message string) *ExchangeError {
	return NewExchangeError(exchange, ErrorTypeRemote, statusCode, message)
}

// NewPermissionError creates a permission error.
func NewPermissionError(exchange string, statusCode int, message string) *ExchangeError {
	return NewExchangeError(exchange, ErrorTypePermission, statusCode, message).WithCode(ErrCodeForbidden)
}

// NewUnknownAssetError reports an asset name the resolver does not know.
func NewUnknownAssetError(name string) *ExchangeError {
	return NewExchangeError("", ErrorTypeUnknownAsset, 0, fmt.Sprintf("unknown asset %s", name)).
		WithCode(ErrCodeUnknownAsset).
		WithSubject(name)
}

// NewUnsupportedAssetError reports a known asset that is not supported.
func NewUnsupportedAssetError(name string) *ExchangeError {
	return NewExchangeError("", ErrorTypeUnsupportedAsset, 0, fmt.Sprintf("unsupported asset %s", name)).
		WithCode(ErrCodeUnsupportedAsset).
		WithSubject(name)
}

// NewUnprocessableTradePairError reports a venue symbol that cannot be decomposed.
func NewUnprocessableTradePairError(exchange, symbol string) *ExchangeError {
	return NewExchangeError(exchange, ErrorTypeUnprocessableTradePair, 0,
		fmt.Sprintf("unprocessable trading pair %s", symbol)).
		WithCode(ErrCodeInvalidSymbol).
		WithSubject(symbol)
}

// NewDeserializationError reports a missing or malformed record field.
func NewDeserializationError(exchange string, code ErrorCode, message string) *ExchangeError {
	return NewExchangeError(exchange, ErrorTypeDeserialization, 0, message).WithCode(code)
}

func hasType(err error, t ErrorType) bool {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return exErr.Type == t
	}
	return false
}

// ErrorTypeOf returns the type of the first ExchangeError in the chain.
func ErrorTypeOf(err error) ErrorType {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return exErr.Type
	}
	return ErrorTypeUnknown
}

// SubjectOf returns the subject of the first ExchangeError in the chain.
func SubjectOf(err error) string {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return exErr.Subject
	}
	return ""
}

// IsRemoteError returns true if the error is a venue or connectivity failure.
func IsRemoteError(err error) bool {
	return hasType(err, ErrorTypeRemote)
}

// IsPermissionError returns true if the error is a credential or scope failure.
// Permission errors are never retried.
func IsPermissionError(err error) bool {
	return hasType(err, ErrorTypePermission)
}

// IsUnknownAssetError returns true if the error names an unknown asset.
func IsUnknownAssetError(err error) bool {
	return hasType(err, ErrorTypeUnknownAsset)
}

// IsUnsupportedAssetError returns true if the error names an unsupported asset.
func IsUnsupportedAssetError(err error) bool {
	return hasType(err, ErrorTypeUnsupportedAsset)
}

// IsUnprocessableTradePairError returns true if a trading pair symbol could not be decomposed.
func IsUnprocessableTradePairError(err error) bool {
	return hasType(err, ErrorTypeUnprocessableTradePair)
}

// IsDeserializationError returns true if a record had a missing or malformed field.
func IsDeserializationError(err error) bool {
	return hasType(err, ErrorTypeDeserialization)
}

// IsRecordError returns true for record-level errors that are reported and skipped
// rather than propagated.
func IsRecordError(err error) bool {
	switch ErrorTypeOf(err) {
	case ErrorTypeUnprocessableTradePair, ErrorTypeUnknownAsset,
		ErrorTypeUnsupportedAsset, ErrorTypeDeserialization:
		return true
	}
	return false
}
