package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/parley/internal/log"
	"github.com/teslashibe/parley/pkg/controller"
	"github.com/teslashibe/parley/pkg/metrics"
	"github.com/teslashibe/parley/pkg/recorder"
	"github.com/teslashibe/parley/pkg/render"
)

type fakeSession struct {
	mu     sync.Mutex
	err    error
	taps   int
	screen render.Screen
}

func (f *fakeSession) TapMic(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taps++
	return f.err
}

func (f *fakeSession) Screen() render.Screen {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.screen
}

func (f *fakeSession) Taps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.taps
}

func newTestServer(t *testing.T, sess *fakeSession, opts ...Option) *Server {
	t.Helper()
	return NewServer(":0", sess, append([]Option{WithLogger(log.Discard())}, opts...)...)
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestScreenEndpoint(t *testing.T) {
	sess := &fakeSession{screen: render.Screen{Seq: 4, Status: render.StatusReady, AgentText: "Welcome"}}
	s := newTestServer(t, sess)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/screen", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got render.Screen
	require.NoError(t, json.Unmarshal([]byte(body(t, resp)), &got))
	assert.Equal(t, uint64(4), got.Seq)
	assert.Equal(t, "Welcome", got.AgentText)
}

func TestMicEndpoint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"accepted", nil, http.StatusOK},
		{"busy", controller.ErrMicDisabled, http.StatusConflict},
		{"denied", fmt.Errorf("%w: no device", recorder.ErrPermissionDenied), http.StatusForbidden},
		{"stopped", controller.ErrStopped, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{err: tt.err}
			s := newTestServer(t, sess)

			resp, err := s.App().Test(httptest.NewRequest(http.MethodPost, "/api/mic", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode, body(t, resp))
			assert.Equal(t, 1, sess.Taps())
		})
	}
}

func TestProductImages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1.png"), []byte("PNGDATA"), 0o600))
	s := newTestServer(t, &fakeSession{}, WithProductsDir(dir))

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/products/1.png", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "PNGDATA", body(t, resp))

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/products/9.png", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "svg")
	assert.Contains(t, body(t, resp), "No Image")
}

func TestProductImagesStayInDir(t *testing.T) {
	dir := t.TempDir()
	s := newTestServer(t, &fakeSession{}, WithProductsDir(filepath.Join(dir, "products")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("secret"), 0o600))

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/products/..%2Fsecret.txt", nil))
	require.NoError(t, err)
	assert.NotContains(t, body(t, resp), "secret")
}

func TestHealthAndIndex(t *testing.T) {
	s := newTestServer(t, &fakeSession{})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","clients":0}`, body(t, resp))

	resp, err = s.App().Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Contains(t, body(t, resp), "/ws/screen")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := metrics.NewRegistry("")
	reg.RecordMicDenied()
	s := newTestServer(t, &fakeSession{}, WithMetrics(reg.Handler()))

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Contains(t, body(t, resp), "parley_mic_denials_total 1")
}

func TestWebSocketRouteRequiresUpgrade(t *testing.T) {
	s := newTestServer(t, &fakeSession{})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/ws/screen", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestInboundTap(t *testing.T) {
	sess := &fakeSession{}
	s := newTestServer(t, sess)

	s.handleInbound([]byte(`{"action":"tap"}`))
	s.handleInbound([]byte(`{"action":"dance"}`))
	s.handleInbound([]byte(`not json`))

	assert.Equal(t, 1, sess.Taps())
}
