package aggregator

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"codeberg.org/mutker/rfhealth/internal/health"
	"codeberg.org/mutker/rfhealth/internal/logger"
	"codeberg.org/mutker/rfhealth/internal/redfish"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redfishServer serves docs behind session authentication.
func redfishServer(t *testing.T, docs map[string]any) (*httptest.Server, *[]string) {
	t.Helper()

	var (
		mu      sync.Mutex
		logouts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == redfish.SessionsPath:
			w.Header().Set("X-Auth-Token", "token")
			w.Header().Set("Location", redfish.SessionsPath+"/7")
			w.WriteHeader(http.StatusCreated)
			return
		case r.Method == http.MethodDelete:
			mu.Lock()
			logouts = append(logouts, r.URL.Path)
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
			return
		case r.URL.Path != redfish.ServiceRoot && r.Header.Get("X-Auth-Token") != "token":
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		doc, ok := docs[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)

	return srv, &logouts
}

func httpDescriptor(t *testing.T, id string, srv *httptest.Server) redfish.Descriptor {
	t.Helper()

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	return redfish.Descriptor{ID: id, Host: host, Port: p, Username: "root", Secret: "calvin", Scheme: "http"}
}

func TestClientDialerEndToEnd(t *testing.T) {
	srv, logouts := redfishServer(t, criticalFanDevice())

	opts := redfish.DefaultOptions()
	opts.MaxRetries = 0
	dialer := ClientDialer{Client: redfish.NewClient(opts, logger.Nop())}
	sink := &memorySink{}

	unreachable := redfish.Descriptor{ID: "dead", Host: "127.0.0.1", Port: 1, Username: "root", Secret: "calvin", Scheme: "http"}
	outcomes := newAggregator(dialer, sink, Options{PoolSize: 4}).
		Poll(context.Background(), []redfish.Descriptor{httpDescriptor(t, "r640", srv), unreachable})

	require.Len(t, outcomes, 2)
	require.NoError(t, outcomes[0].Err)
	rec := outcomes[0].Record
	assert.Equal(t, health.Critical, rec.Overall())
	assert.False(t, rec.Partial())
	assert.Equal(t, health.Unknown, rec.Status(health.Storage))
	assert.Equal(t, []string{redfish.SessionsPath + "/7"}, *logouts)

	assert.True(t, errors.HasCode(outcomes[1].Err, ErrConnectFailed))
	assert.True(t, errors.HasCode(outcomes[1].Err, redfish.ErrUnreachable))
	assert.Len(t, sink.records, 1)
}
