package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/mutker/rfhealth/internal/health"
	"codeberg.org/mutker/rfhealth/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestKeepsNewest(t *testing.T) {
	l := NewLatest()

	newer := okRecord("dev1", collected.Add(time.Minute))
	require.NoError(t, l.Write(context.Background(), newer))
	require.NoError(t, l.Write(context.Background(), criticalRecord("dev1", collected)))

	rec, ok := l.Get("dev1")
	require.True(t, ok)
	assert.Equal(t, health.OK, rec.Overall())

	require.NoError(t, l.Write(context.Background(), criticalRecord("dev0", collected)))
	records := l.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "dev0", records[0].DeviceID())
	assert.Equal(t, "dev1", records[1].DeviceID())

	_, ok = l.Get("missing")
	assert.False(t, ok)
}

func serve(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	return w.Code, body
}

func TestRouter(t *testing.T) {
	l := NewLatest()
	require.NoError(t, l.Write(context.Background(), okRecord("a", collected)))
	require.NoError(t, l.Write(context.Background(), criticalRecord("b", collected)))
	h := NewRouter(l, logger.Nop())

	code, body := serve(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 2, body["devices"])

	code, body = serve(t, h, "/api/v1/devices")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["count"])
	devices := body["devices"].([]any)
	require.Len(t, devices, 2)
	assert.Equal(t, "a", devices[0].(map[string]any)["device_id"])

	code, body = serve(t, h, "/api/v1/devices?min_status=warning")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["count"])

	code, body = serve(t, h, "/api/v1/devices/b")
	assert.Equal(t, http.StatusOK, code)
	rec := body["record"].(map[string]any)
	assert.Equal(t, "Critical", rec["overall_status"])
	assert.Equal(t, true, rec["partial"])
	sys := rec["system"].(map[string]any)
	assert.Equal(t, "Warning", sys["health"])
	assert.Equal(t, "On", sys["power_state"])
	assert.Equal(t, "7.00.00.171", sys["firmware_version"])

	code, body = serve(t, h, "/api/v1/devices/zzz")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", body["status"])

	code, _ = serve(t, h, "/api/v1/devices?min_status=bogus")
	assert.Equal(t, http.StatusBadRequest, code)
}
