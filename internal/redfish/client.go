package redfish

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/logger"
)

const (
	ServiceRoot  = "/redfish/v1/"
	SessionsPath = "/redfish/v1/SessionService/Sessions"
	SystemsPath  = "/redfish/v1/Systems"

	maxBodySize = 16 << 20
)

// AuthMode selects how a session authenticates.
type AuthMode string

const (
	AuthSession AuthMode = "session"
	AuthBasic   AuthMode = "basic"
)

// Options tunes request timeouts, retries and session handling.
type Options struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	SessionTTL     time.Duration
	AuthMode       AuthMode
	UserAgent      string

	// Wait replaces the backoff sleep. Nil sleeps on a timer.
	Wait WaitFunc
	// Now replaces the clock used for session expiry.
	Now func() time.Time
}

// DefaultOptions returns the values used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Timeout:        15 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		SessionTTL:     25 * time.Minute,
		AuthMode:       AuthSession,
		UserAgent:      "rfhealth",
	}
}

// Client opens sessions against management endpoints. It holds no
// per-device state; every Session gets its own transport.
type Client struct {
	opts Options
	log  logger.Logger
	wait WaitFunc
	now  func() time.Time
}

func NewClient(opts Options, log logger.Logger) *Client {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = def.SessionTTL
	}
	if opts.AuthMode == "" {
		opts.AuthMode = def.AuthMode
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if log == nil {
		log = logger.Nop()
	}

	c := &Client{opts: opts, log: log, wait: opts.Wait, now: opts.Now}
	if c.wait == nil {
		c.wait = sleepContext
	}
	if c.now == nil {
		c.now = time.Now
	}

	return c
}

// Connect validates d, reads the service root and authenticates. It fails
// with ErrUnreachable or ErrAuthFailed (or ErrInvalidDescriptor).
func (c *Client) Connect(ctx context.Context, d Descriptor) (*Session, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	log := c.log.With("device", d.Name())

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if d.scheme() == "https" && !d.VerifyTLS {
		log.Warn().
			Str("host", d.Host).
			Msg("TLS certificate verification disabled for this endpoint")
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit per-device opt-out
	}

	s := &Session{
		client: c,
		desc:   d,
		log:    log,
		base:   d.BaseURL(),
		http:   &http.Client{Timeout: c.opts.Timeout, Transport: transport},
	}

	if d.ProtocolHint != "" {
		log.Debug().Str("protocol", d.ProtocolHint).Msg("protocol hint")
	}

	var rootBody []byte
	err := c.retry(ctx, log, ServiceRoot, func(ctx context.Context) error {
		status, body, _, err := s.send(ctx, http.MethodGet, ServiceRoot, nil, nil)
		if err != nil {
			return err
		}
		switch {
		case status/100 == 2:
			rootBody = body
			return nil
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			// Root requires credentials on some firmware; authentication
			// below decides.
			return nil
		}
		return classify(http.MethodGet, ServiceRoot, status)
	})
	if err != nil {
		if errors.HasCode(err, ErrCanceled) {
			return nil, err
		}
		return nil, errFactory.Wrap(ErrUnreachable, err).WithData(d.Name())
	}

	if rootBody != nil {
		root, err := Decode(ServiceRoot, rootBody)
		if err != nil {
			return nil, errFactory.Wrap(ErrUnreachable, err).WithData(d.Name())
		}
		s.root = root
	}

	if err := s.authenticate(ctx); err != nil {
		s.http.CloseIdleConnections()
		return nil, err
	}

	return s, nil
}

// send performs one request. Network errors become ErrTransient, a done
// context becomes ErrCanceled; HTTP statuses are left to the caller.
func (s *Session) send(ctx context.Context, method, path string, body any, creds *credentials) (int, []byte, http.Header, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, nil, errFactory.Wrap(errors.ErrInternal, err)
		}
		reader = bytes.NewReader(raw)
	}

	target, err := s.resolve(path)
	if err != nil {
		return 0, nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, nil, errFactory.Wrap(ErrBadResponse, err).WithData(path)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-Version", "4.0")
	req.Header.Set("User-Agent", s.client.opts.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	s.applyAuth(req, creds)

	resp, err := s.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, nil, errFactory.Wrap(ErrCanceled, ctx.Err()).WithData(path)
		}
		return 0, nil, nil, errFactory.Wrap(ErrTransient, err).WithData(path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, nil, errFactory.Wrap(ErrCanceled, ctx.Err()).WithData(path)
		}
		return 0, nil, nil, errFactory.Wrap(ErrTransient, err).WithData(path)
	}

	return resp.StatusCode, data, resp.Header, nil
}

// resolve turns a payload link into a request URL. Absolute links must
// point back at the session's own endpoint; credentials never leave it.
func (s *Session) resolve(path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		u, err := url.Parse(path)
		if err != nil {
			return "", errFactory.Wrap(ErrBadResponse, err).WithData(path)
		}
		if !sameOrigin(s.base, u) {
			return "", errFactory.WithMessage(ErrBadResponse,
				fmt.Sprintf("link %s leaves endpoint %s", path, s.base))
		}
		return u.String(), nil
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	return s.base + path, nil
}

// sameOrigin compares scheme and host:port, filling in default ports.
func sameOrigin(base string, u *url.URL) bool {
	b, err := url.Parse(base)
	if err != nil {
		return false
	}

	return strings.EqualFold(b.Scheme, u.Scheme) &&
		strings.EqualFold(b.Hostname(), u.Hostname()) &&
		originPort(b) == originPort(u)
}

func originPort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if strings.EqualFold(u.Scheme, "http") {
		return "80"
	}

	return "443"
}

// classify maps a non-2xx status onto the error taxonomy.
func classify(method, path string, status int) error {
	msg := fmt.Sprintf("%s %s: HTTP %d", method, path, status)

	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return errFactory.WithMessage(ErrNotFound, msg)
	case status == http.StatusUnauthorized:
		return errFactory.WithMessage(ErrAuthExpired, msg)
	case status == http.StatusForbidden:
		return errFactory.WithMessage(ErrAuthFailed, msg)
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return errFactory.WithMessage(ErrTransient, msg)
	}

	return errFactory.WithMessage(ErrBadResponse, msg)
}
