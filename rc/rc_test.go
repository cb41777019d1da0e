package rc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbockelm/XrdAdaptor/adaptor"
	"github.com/bbockelm/XrdAdaptor/xrd"
	"github.com/bbockelm/XrdAdaptor/xrdclient"
	"github.com/bbockelm/XrdAdaptor/xrdtest"
)

func newManager(t *testing.T) *adaptor.RequestManager {
	t.Helper()
	server := xrdtest.NewServer(make([]byte, 4096), &xrdtest.Host{Name: "host1.example.com:1094"})
	m, err := adaptor.OpenWithClient(context.Background(), server.Client(), "mem://c//store/f.dat",
		xrdclient.OpenRead, xrdclient.AccessNone, xrd.DefaultOptions(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestStatusEndpoint(t *testing.T) {
	m := newManager(t)
	ts := httptest.NewServer(NewServer("127.0.0.1:0", m).Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st adaptor.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "mem://c//store/f.dat", st.Name)
	require.Len(t, st.Active, 1)
	assert.Equal(t, "host1.example.com:1094", st.Active[0].ID)
}

func TestMetricsEndpoint(t *testing.T) {
	m := newManager(t)

	// Push at least one sample through so the per-source gauges exist.
	_, err := m.Read(make([]byte, 128), 0).Wait(context.Background())
	require.NoError(t, err)

	ts := httptest.NewServer(NewServer("127.0.0.1:0", m).Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "xrdadaptor_source_quality")
	assert.Contains(t, body, "xrdadaptor_requests_total")
}

func TestStartAndShutdown(t *testing.T) {
	m := newManager(t)
	srv := NewServer("127.0.0.1:0", m)
	addr, err := srv.Start()
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))
}
