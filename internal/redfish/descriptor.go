package redfish

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Descriptor holds the connection parameters for one management endpoint.
// It is read-only once passed to Connect.
type Descriptor struct {
	ID           string
	Host         string
	Port         int
	Username     string
	Secret       string
	VerifyTLS    bool
	Scheme       string
	ProtocolHint string
}

// Name returns the device id, falling back to the host.
func (d Descriptor) Name() string {
	if d.ID != "" {
		return d.ID
	}

	return d.Host
}

func (d Descriptor) scheme() string {
	if d.Scheme == "" {
		return "https"
	}

	return strings.ToLower(d.Scheme)
}

func (d Descriptor) port() int {
	if d.Port != 0 {
		return d.Port
	}
	if d.scheme() == "http" {
		return 80
	}

	return 443
}

// BaseURL returns scheme://host:port without a trailing slash.
func (d Descriptor) BaseURL() string {
	return d.scheme() + "://" + net.JoinHostPort(d.Host, strconv.Itoa(d.port()))
}

// Validate checks the fields required before a connection is attempted.
func (d Descriptor) Validate() error {
	switch {
	case strings.TrimSpace(d.Host) == "":
		return errFactory.WithMessage(ErrInvalidDescriptor, "host is required")
	case d.Username == "":
		return errFactory.WithMessage(ErrInvalidDescriptor, fmt.Sprintf("%s: username is required", d.Name()))
	case d.Secret == "":
		return errFactory.WithMessage(ErrInvalidDescriptor, fmt.Sprintf("%s: secret is required", d.Name()))
	case d.Port < 0 || d.Port > 65535:
		return errFactory.WithMessage(ErrInvalidDescriptor, fmt.Sprintf("%s: port %d out of range", d.Name(), d.Port))
	}

	if s := d.scheme(); s != "http" && s != "https" {
		return errFactory.WithMessage(ErrInvalidDescriptor, fmt.Sprintf("%s: unsupported scheme %q", d.Name(), d.Scheme))
	}

	return nil
}

// String never includes the secret.
func (d Descriptor) String() string {
	return fmt.Sprintf("%s(%s@%s)", d.Name(), d.Username, d.BaseURL())
}
