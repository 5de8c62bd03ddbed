package core

import "errors"

// ErrorCode represents a machine-readable error identifier.
type ErrorCode string

const (
	// ErrCodeConnection indicates the request never produced a response.
	ErrCodeConnection ErrorCode = "CONNECTION_ERROR"
	// ErrCodeStatus indicates a non-success HTTP status.
	ErrCodeStatus ErrorCode = "BAD_STATUS"
	// ErrCodeInvalidJSON indicates a response body that is not the expected JSON shape.
	ErrCodeInvalidJSON ErrorCode = "INVALID_JSON"
	// ErrCodeForbidden indicates the API key lacks permission for the endpoint.
	ErrCodeForbidden ErrorCode = "FORBIDDEN"
	// ErrCodeInvalidSignature indicates the venue rejected the key or secret.
	ErrCodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"
	// ErrCodeInvalidSymbol indicates the trading pair is not recognized.
	ErrCodeInvalidSymbol ErrorCode = "INVALID_SYMBOL"
	// ErrCodeUnknownAsset indicates an asset the resolver does not know.
	ErrCodeUnknownAsset ErrorCode = "UNKNOWN_ASSET"
	// ErrCodeUnsupportedAsset indicates an asset the resolver knows but does not support.
	ErrCodeUnsupportedAsset ErrorCode = "UNSUPPORTED_ASSET"
	// ErrCodeMissingField indicates a required record field was absent.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrCodeMalformedField indicates a record field with an unusable value.
	ErrCodeMalformedField ErrorCode = "MALFORMED_FIELD"

	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Authentication errors
	ErrCodeNoCredentials ErrorCode = "NO_CREDENTIALS"
)

// IsErrorCode checks if the error matches the specified error code.
func IsErrorCode(err error, code ErrorCode) bool {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return ErrorCode(exErr.Code) == code
	}
	return false
}
