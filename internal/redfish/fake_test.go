package redfish

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/rfhealth/internal/logger"
	"github.com/stretchr/testify/require"
)

// fakeBMC is a minimal session-aware Redfish service.
type fakeBMC struct {
	mu        sync.Mutex
	srv       *httptest.Server
	resources map[string]any
	tokens    map[string]bool
	logins    int
	deletes   []string
	hits      map[string]int
	// status overrides the response for a path; consumed front to back,
	// the last entry repeats.
	status       map[string][]int
	noSessions   bool
	rejectLogin  bool
	basicAllowed bool
}

func newFakeBMC(t *testing.T) *fakeBMC {
	t.Helper()

	return startFakeBMC(t, httptest.NewServer)
}

// newFakeTLSBMC serves the same resources over HTTPS with a self-signed
// certificate.
func newFakeTLSBMC(t *testing.T) *fakeBMC {
	t.Helper()

	return startFakeBMC(t, httptest.NewTLSServer)
}

func startFakeBMC(t *testing.T, start func(http.Handler) *httptest.Server) *fakeBMC {
	t.Helper()

	f := &fakeBMC{
		resources: map[string]any{
			ServiceRoot: map[string]any{
				"@odata.id":      ServiceRoot,
				"RedfishVersion": "1.6.0",
				"Systems":        map[string]any{"@odata.id": SystemsPath},
			},
			SystemsPath: map[string]any{
				"Members": []any{map[string]any{"@odata.id": SystemsPath + "/1"}},
			},
		},
		tokens: map[string]bool{},
		hits:   map[string]int{},
		status: map[string][]int{},
	}
	f.srv = start(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeBMC) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	f.hits[r.Method+" "+path]++

	if path == SessionsPath && r.Method == http.MethodPost {
		if f.noSessions {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.rejectLogin || body["UserName"] != "root" || body["Password"] != "calvin" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.logins++
		token := "tok-" + strconv.Itoa(f.logins)
		f.tokens[token] = true
		w.Header().Set("X-Auth-Token", token)
		w.Header().Set("Location", SessionsPath+"/"+strconv.Itoa(f.logins))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
		return
	}

	if r.Method == http.MethodDelete {
		f.deletes = append(f.deletes, path)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if path != ServiceRoot && !f.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if codes := f.status[path]; len(codes) > 0 {
		code := codes[0]
		if len(codes) > 1 {
			f.status[path] = codes[1:]
		}
		if code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
	}

	res, ok := f.resources[path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if raw, ok := res.(string); ok {
		_, _ = w.Write([]byte(raw))
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

func (f *fakeBMC) authorized(r *http.Request) bool {
	if u, p, ok := r.BasicAuth(); ok {
		return f.basicAllowed && u == "root" && p == "calvin"
	}

	return f.tokens[r.Header.Get("X-Auth-Token")]
}

func (f *fakeBMC) revokeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = map[string]bool{}
}

func (f *fakeBMC) set(path string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resources[path] = v
}

func (f *fakeBMC) setStatus(path string, codes ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[path] = codes
}

func (f *fakeBMC) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}

func (f *fakeBMC) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeBMC) descriptor(t *testing.T) Descriptor {
	t.Helper()

	host, port, err := net.SplitHostPort(f.srv.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	scheme := "http"
	if f.srv.TLS != nil {
		scheme = "https"
	}

	return Descriptor{
		ID:       "bmc-test",
		Host:     host,
		Port:     p,
		Username: "root",
		Secret:   "calvin",
		Scheme:   scheme,
	}
}

// waitRecorder captures backoff waits without sleeping.
type waitRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (w *waitRecorder) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.waits = append(w.waits, d)
	w.mu.Unlock()

	return ctx.Err()
}

func testClient(opts Options, rec *waitRecorder) *Client {
	if rec == nil {
		rec = &waitRecorder{}
	}
	opts.Wait = rec.wait

	return NewClient(opts, logger.Nop())
}

func connect(t *testing.T, c *Client, d Descriptor) *Session {
	t.Helper()

	s, err := c.Connect(context.Background(), d)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	return s
}

func closedAddr(t *testing.T) (string, int) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	require.NoError(t, l.Close())

	return addr.IP.String(), addr.Port
}
