package aggregator

import "codeberg.org/mutker/rfhealth/internal/errors"

const (
	ErrConnectFailed = errors.ErrorCode("poll_connect_failed")
	ErrAuthFailed    = errors.ErrorCode("poll_auth_failed")
	ErrCanceled      = errors.ErrorCode("poll_canceled")
	ErrSinkFailed    = errors.ErrorCode("poll_sink_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrConnectFailed: "Could not open a session with the device",
		ErrAuthFailed:    "Device rejected credentials during collection",
		ErrCanceled:      "Device poll canceled",
		ErrSinkFailed:    "Failed to write health record",
	})
}
