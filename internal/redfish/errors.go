package redfish

import "codeberg.org/mutker/rfhealth/internal/errors"

const (
	// Connection Errors
	ErrUnreachable       = errors.ErrorCode("redfish_unreachable")
	ErrAuthFailed        = errors.ErrorCode("redfish_auth_failed")
	ErrInvalidDescriptor = errors.ErrorCode("redfish_invalid_descriptor")

	// Request Errors
	ErrTransient   = errors.ErrorCode("redfish_transient")
	ErrNotFound    = errors.ErrorCode("redfish_not_found")
	ErrAuthExpired = errors.ErrorCode("redfish_auth_expired")
	ErrBadResponse = errors.ErrorCode("redfish_bad_response")

	// Payload Errors
	ErrDecodeFailed = errors.ErrorCode("redfish_decode_failed")

	// Session Errors
	ErrSessionClosed = errors.ErrInvalidOperation
	ErrCanceled      = errors.ErrCanceled
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrUnreachable:       "Endpoint unreachable",
		ErrAuthFailed:        "Authentication rejected",
		ErrInvalidDescriptor: "Invalid connection descriptor",
		ErrTransient:         "Transient endpoint failure",
		ErrNotFound:          "Resource not found",
		ErrAuthExpired:       "Session no longer accepted",
		ErrBadResponse:       "Unexpected endpoint response",
		ErrDecodeFailed:      "Failed to decode payload",
	})
}

var errFactory = errors.New()

// NotFound builds the error Fetch returns for an absent resource.
func NotFound(path string) error {
	return errFactory.WithData(ErrNotFound, path)
}

// IsNotFound reports whether err means the resource does not exist on the
// endpoint.
func IsNotFound(err error) bool {
	return errors.HasCode(err, ErrNotFound)
}

// IsTransient reports whether err is a retryable failure.
func IsTransient(err error) bool {
	return errors.HasCode(err, ErrTransient)
}
