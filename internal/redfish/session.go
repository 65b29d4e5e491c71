package redfish

import (
	"context"
	"net/http"
	"sync"
	"time"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/logger"
)

// Session is an authenticated connection to one endpoint. It is owned by
// a single device poll; Fetch is safe for concurrent use by that poll's
// category workers.
type Session struct {
	client *Client
	desc   Descriptor
	log    logger.Logger
	base   string
	http   *http.Client
	root   *Payload

	mu      sync.Mutex
	token   string
	logout  string
	basic   bool
	expires time.Time
	gen     uint64
	closed  bool
}

// credentials is a consistent snapshot of the session's auth state.
type credentials struct {
	token string
	basic bool
	gen   uint64
}

// Descriptor returns the descriptor the session was opened with.
func (s *Session) Descriptor() Descriptor {
	return s.desc
}

// Root returns the service root read during Connect, or nil when the
// endpoint required credentials for it.
func (s *Session) Root() *Payload {
	return s.root
}

// UsesBasicAuth reports whether the session fell back to basic auth.
func (s *Session) UsesBasicAuth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.basic
}

func (s *Session) snapshot() credentials {
	s.mu.Lock()
	defer s.mu.Unlock()

	return credentials{token: s.token, basic: s.basic, gen: s.gen}
}

func (s *Session) applyAuth(req *http.Request, c *credentials) {
	if c == nil {
		return
	}
	if c.basic {
		req.SetBasicAuth(s.desc.Username, s.desc.Secret)
		return
	}
	if c.token != "" {
		req.Header.Set("X-Auth-Token", c.token)
	}
}

// authenticate logs in for the first time.
func (s *Session) authenticate(ctx context.Context) error {
	token, logout, basic, err := s.login(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.token, s.logout, s.basic = token, logout, basic
	s.expires = s.client.now().Add(s.client.opts.SessionTTL)
	s.gen++
	s.mu.Unlock()

	return nil
}

// login obtains fresh credentials without touching session state.
func (s *Session) login(ctx context.Context) (token, logout string, basic bool, err error) {
	if s.client.opts.AuthMode == AuthBasic {
		return "", "", true, s.verifyBasic(ctx)
	}

	payload := map[string]string{"UserName": s.desc.Username, "Password": s.desc.Secret}

	var (
		status int
		hdr    http.Header
		body   []byte
	)
	err = s.client.retry(ctx, s.log, SessionsPath, func(ctx context.Context) error {
		var sendErr error
		status, body, hdr, sendErr = s.send(ctx, http.MethodPost, SessionsPath, payload, nil)
		if sendErr != nil {
			return sendErr
		}
		if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500 {
			return classify(http.MethodPost, SessionsPath, status)
		}
		return nil
	})
	if err != nil {
		return "", "", false, s.connectFailure(err)
	}

	switch {
	case status/100 == 2:
		token = hdr.Get("X-Auth-Token")
		if token == "" {
			s.log.Warn().Msg("session service returned no token, falling back to basic auth")
			return "", "", true, s.verifyBasic(ctx)
		}
		logout = hdr.Get("Location")
		if logout == "" {
			if p, decErr := Decode(SessionsPath, body); decErr == nil {
				logout = p.Get("@odata.id").String()
			}
		}
		return token, logout, false, nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "", "", false, errFactory.WithMessage(ErrAuthFailed, "session login rejected").WithData(s.desc.Name())
	case status == http.StatusNotFound || status == http.StatusMethodNotAllowed:
		s.log.Warn().Int("status", status).Msg("session service unavailable, falling back to basic auth")
		return "", "", true, s.verifyBasic(ctx)
	}

	return "", "", false, errFactory.Wrap(ErrUnreachable, classify(http.MethodPost, SessionsPath, status)).WithData(s.desc.Name())
}

// verifyBasic checks basic credentials against the systems collection.
func (s *Session) verifyBasic(ctx context.Context) error {
	creds := &credentials{basic: true}

	var status int
	err := s.client.retry(ctx, s.log, SystemsPath, func(ctx context.Context) error {
		var sendErr error
		status, _, _, sendErr = s.send(ctx, http.MethodGet, SystemsPath, nil, creds)
		if sendErr != nil {
			return sendErr
		}
		if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500 {
			return classify(http.MethodGet, SystemsPath, status)
		}
		return nil
	})
	if err != nil {
		return s.connectFailure(err)
	}

	switch {
	case status/100 == 2:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errFactory.WithMessage(ErrAuthFailed, "basic credentials rejected").WithData(s.desc.Name())
	}

	return errFactory.Wrap(ErrUnreachable, classify(http.MethodGet, SystemsPath, status)).WithData(s.desc.Name())
}

func (s *Session) connectFailure(err error) error {
	if errors.HasCode(err, ErrCanceled) || errors.HasCode(err, ErrAuthFailed) {
		return err
	}

	return errFactory.Wrap(ErrUnreachable, err).WithData(s.desc.Name())
}

// renew replaces the credentials unless a concurrent caller already did so
// since seen was observed.
func (s *Session) renew(ctx context.Context, seen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errFactory.WithMessage(ErrSessionClosed, "session closed")
	}
	if s.gen != seen {
		return nil
	}

	old := credentials{token: s.token, basic: s.basic}
	oldLogout := s.logout

	token, logout, basic, err := s.login(ctx)
	if err != nil {
		return err
	}

	s.token, s.logout, s.basic = token, logout, basic
	s.expires = s.client.now().Add(s.client.opts.SessionTTL)
	s.gen++

	s.log.Debug().Msg("session renewed")

	if oldLogout != "" && !old.basic {
		// Best effort; the old session may already be gone.
		_, _, _, _ = s.send(ctx, http.MethodDelete, oldLogout, nil, &old)
	}

	return nil
}

func (s *Session) renewIfExpired(ctx context.Context) error {
	s.mu.Lock()
	expired := !s.basic && !s.expires.IsZero() && !s.client.now().Before(s.expires)
	gen := s.gen
	s.mu.Unlock()

	if !expired {
		return nil
	}

	return s.renew(ctx, gen)
}

// Fetch GETs path and decodes the body. Transient failures are retried
// with backoff; a 401 triggers one re-authentication and one replay.
func (s *Session) Fetch(ctx context.Context, path string) (*Payload, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, errFactory.WithMessage(ErrSessionClosed, "session closed")
	}

	if err := s.renewIfExpired(ctx); err != nil {
		return nil, err
	}

	body, gen, err := s.get(ctx, path)
	if errors.HasCode(err, ErrAuthExpired) {
		s.log.Debug().Str("path", path).Msg("session rejected, re-authenticating")
		if rerr := s.renew(ctx, gen); rerr != nil {
			return nil, rerr
		}
		body, _, err = s.get(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	return Decode(path, body)
}

func (s *Session) get(ctx context.Context, path string) ([]byte, uint64, error) {
	var (
		body []byte
		gen  uint64
	)
	err := s.client.retry(ctx, s.log, path, func(ctx context.Context) error {
		creds := s.snapshot()
		gen = creds.gen

		status, data, _, err := s.send(ctx, http.MethodGet, path, nil, &creds)
		if err != nil {
			return err
		}
		if status/100 == 2 {
			body = data
			return nil
		}
		return classify(http.MethodGet, path, status)
	})

	return body, gen, err
}

// Close logs out of the session service. Calling it again is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	creds := credentials{token: s.token, basic: s.basic}
	logout := s.logout
	s.mu.Unlock()

	defer s.http.CloseIdleConnections()

	if creds.basic || logout == "" {
		return nil
	}

	status, _, _, err := s.send(ctx, http.MethodDelete, logout, nil, &creds)
	if err != nil {
		return err
	}
	if status/100 != 2 && status != http.StatusNotFound {
		return classify(http.MethodDelete, logout, status)
	}

	return nil
}
