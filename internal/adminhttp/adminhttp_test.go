package adminhttp_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qsdfplkj/azure-functions-host/internal/adminhttp"
	"github.com/qsdfplkj/azure-functions-host/internal/concurrency"
)

type fakeSnapshotSource struct {
	snapshot map[string]concurrency.WorkerView
	state    concurrency.State
}

func (f fakeSnapshotSource) Snapshot() map[string]concurrency.WorkerView { return f.snapshot }
func (f fakeSnapshotSource) State() concurrency.State                    { return f.state }

// newTestServer constructs the server and swaps in an httptest.Server for
// the handler so we can exercise routes without binding a real port.
func newTestServer(t *testing.T, src adminhttp.SnapshotSource) *httptest.Server {
	t.Helper()
	srv := adminhttp.New("127.0.0.1:0", src, zap.NewNop())
	return httptest.NewServer(srv.Handler())
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, fakeSnapshotSource{state: concurrency.StateRunning})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConcurrencyStatus_EmptyBeforeFirstTick(t *testing.T) {
	ts := newTestServer(t, fakeSnapshotSource{state: concurrency.StateWarmingUp})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/concurrency/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"workers":{}}`, string(body))
}

func TestConcurrencyStatus_ReflectsSnapshot(t *testing.T) {
	src := fakeSnapshotSource{
		state: concurrency.StateRunning,
		snapshot: map[string]concurrency.WorkerView{
			"worker-1": {IsReady: true, History: []time.Duration{time.Millisecond}},
		},
	}
	ts := newTestServer(t, src)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/concurrency/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"workers":{"worker-1":{"IsReady":true,"History":[1000000]}}}`, string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, fakeSnapshotSource{state: concurrency.StateRunning})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
