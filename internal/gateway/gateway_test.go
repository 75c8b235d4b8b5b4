// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/gestprep/internal/config"
	"github.com/ManuGH/gestprep/internal/frontconfig"
	"github.com/ManuGH/gestprep/internal/rewrite"
	gtls "github.com/ManuGH/gestprep/internal/tls"
)

// echo answers with what the upstream saw.
type echo struct {
	Host           string `json:"host"`
	URI            string `json:"uri"`
	ForwardedFor   string `json:"xff"`
	ForwardedHost  string `json:"xfh"`
	ForwardedProto string `json:"xfp"`
}

func echoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Upstream", "backend")
	_ = json.NewEncoder(w).Encode(echo{
		Host:           r.Host,
		URI:            r.RequestURI,
		ForwardedFor:   r.Header.Get("X-Forwarded-For"),
		ForwardedHost:  r.Header.Get("X-Forwarded-Host"),
		ForwardedProto: r.Header.Get("X-Forwarded-Proto"),
	})
}

func gatewayConfig(backendURL string) config.GatewayConfig {
	cfg := config.Defaults().Gateway
	cfg.Rewrites = []config.RewriteConfig{{Source: "/api/:path*", Destination: backendURL + "/api/:path*"}}
	cfg.UpstreamCA = ""
	return cfg
}

func newTestGateway(t *testing.T, backend *httptest.Server, cfg config.GatewayConfig) *Gateway {
	t.Helper()
	g, err := New(context.Background(), cfg, Options{Transport: backend.Client().Transport})
	require.NoError(t, err)
	return g
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Host = "front.example.org"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestForwardsWithoutChangingPath(t *testing.T) {
	backend := httptest.NewTLSServer(http.HandlerFunc(echoHandler))
	defer backend.Close()
	g := newTestGateway(t, backend, gatewayConfig(backend.URL))
	h := g.Handler()

	tests := []struct {
		target string
		want   string
	}{
		{"/api/articles/", "/api/articles/"},
		{"/api/mouvements/12/validate/", "/api/mouvements/12/validate/"},
		{"/api/articles/?search=joint&page=2", "/api/articles/?search=joint&page=2"},
		{"/api/auth/password/reset/MQ/abc-123/verify/", "/api/auth/password/reset/MQ/abc-123/verify/"},
		{"/api/sites/%C3%A9t%C3%A9/", "/api/sites/%C3%A9t%C3%A9/"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(t, h, tt.target)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "backend", rec.Header().Get("X-Upstream"))

			var got echo
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got.URI)
			assert.Equal(t, backend.Listener.Addr().String(), got.Host)
			assert.Equal(t, "front.example.org", got.ForwardedHost)
			assert.Equal(t, "http", got.ForwardedProto)
			assert.Equal(t, "192.0.2.1", got.ForwardedFor)
		})
	}
}

func TestUpstreamUnreachable(t *testing.T) {
	backend := httptest.NewTLSServer(http.HandlerFunc(echoHandler))
	g := newTestGateway(t, backend, gatewayConfig(backend.URL))
	backend.Close()

	rec := get(t, g.Handler(), "/api/sites/")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bad_gateway", body["error"])
	assert.NotEmpty(t, body["detail"])
}

func TestUnmatchedRequests(t *testing.T) {
	backend := httptest.NewTLSServer(http.HandlerFunc(echoHandler))
	defer backend.Close()
	cfg := gatewayConfig(backend.URL)
	g := newTestGateway(t, backend, cfg)

	rec := get(t, g.Handler(), "/dashboard")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not_found"}`, rec.Body.String())

	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<html>home</html>"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(static, "articles"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(static, "articles", "index.html"), []byte("<html>articles</html>"), 0o600))
	cfg.StaticDir = static
	require.NoError(t, g.Reload(context.Background(), cfg))
	h := g.Handler()

	rec = get(t, h, "/articles/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>articles</html>", rec.Body.String())

	rec = get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>home</html>", rec.Body.String())

	rec = get(t, h, "/missing.js")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInternalRewriteServesStatic(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "help.html"), []byte("aide"), 0o600))

	backend := httptest.NewTLSServer(http.HandlerFunc(echoHandler))
	defer backend.Close()
	g := newTestGateway(t, backend, gatewayConfig(backend.URL))
	require.NoError(t, g.Apply(context.Background(), frontconfig.Config{
		Rewrites: frontconfig.Static(rewrite.Rule{Source: "/aide", Destination: "/help.html"}),
	}, static))

	rec := get(t, g.Handler(), "/aide")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "aide", rec.Body.String())
}

func TestConfigEndpoint(t *testing.T) {
	backend := httptest.NewTLSServer(http.HandlerFunc(echoHandler))
	defer backend.Close()
	g := newTestGateway(t, backend, gatewayConfig(backend.URL))

	rec := get(t, g.Handler(), "/_gateway/config")
	require.Equal(t, http.StatusOK, rec.Code)

	var got frontconfig.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	want := frontconfig.Snapshot{
		ReactStrictMode: true,
		Rewrites:        []rewrite.Rule{{Source: "/api/:path*", Destination: backend.URL + "/api/:path*"}},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(frontconfig.Snapshot{}, "BuiltAt")); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestReloadSwapsBuild(t *testing.T) {
	backend := httptest.NewTLSServer(http.HandlerFunc(echoHandler))
	defer backend.Close()
	cfg := gatewayConfig(backend.URL)
	g := newTestGateway(t, backend, cfg)
	first := g.Current()

	cfg.ReactStrictMode = false
	cfg.Rewrites = append(cfg.Rewrites, config.RewriteConfig{Source: "/media/:file+", Destination: backend.URL + "/media/:file+"})
	require.NoError(t, g.Reload(context.Background(), cfg))

	assert.NotSame(t, first, g.Current())
	assert.Equal(t, 1, first.Table.Len(), "previous build is never mutated")
	assert.Equal(t, 2, g.Current().Table.Len())
	assert.False(t, g.Current().ReactStrictMode)

	rec := get(t, g.Handler(), "/media/documents/articles/fiche.pdf")
	require.Equal(t, http.StatusOK, rec.Code)

	// A broken table is rejected and the active one stays.
	cfg.Rewrites = []config.RewriteConfig{{Source: "api", Destination: backend.URL}}
	require.Error(t, g.Reload(context.Background(), cfg))
	assert.Equal(t, 2, g.Current().Table.Len())

	boom := errors.New("producer failed")
	err := g.Apply(context.Background(), frontconfig.Config{
		Rewrites: func(context.Context) ([]rewrite.Rule, error) { return nil, boom },
	}, "")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, g.Current().Table.Len())
}

func TestReloadSwapsStaticDirWithTable(t *testing.T) {
	backend := httptest.NewTLSServer(http.HandlerFunc(echoHandler))
	defer backend.Close()
	oldDir, newDir := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, "index.html"), []byte("old"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(newDir, "index.html"), []byte("new"), 0o600))
	cfg := gatewayConfig(backend.URL)
	cfg.StaticDir = oldDir
	g := newTestGateway(t, backend, cfg)
	first := g.Current()

	cfg.StaticDir = newDir
	cfg.Rewrites = append(cfg.Rewrites, config.RewriteConfig{Source: "/media/:file+", Destination: backend.URL + "/media/:file+"})
	require.NoError(t, g.Reload(context.Background(), cfg))
	assert.NotSame(t, first, g.Current())
	assert.Equal(t, newDir, g.StaticDir())
	assert.Equal(t, "new", get(t, g.Handler(), "/").Body.String())

	// A rejected reload keeps both the table and the directory.
	cfg.StaticDir = oldDir
	cfg.Rewrites = []config.RewriteConfig{{Source: "api", Destination: backend.URL}}
	require.Error(t, g.Reload(context.Background(), cfg))
	assert.Equal(t, newDir, g.StaticDir())
	assert.Equal(t, 2, g.Current().Table.Len())
}

func TestProducerEvaluatedOncePerBuild(t *testing.T) {
	backend := httptest.NewTLSServer(http.HandlerFunc(echoHandler))
	defer backend.Close()
	g := newTestGateway(t, backend, gatewayConfig(backend.URL))

	calls := 0
	fc := frontconfig.Config{Rewrites: func(context.Context) ([]rewrite.Rule, error) {
		calls++
		return []rewrite.Rule{{Source: "/api/:path*", Destination: backend.URL + "/api/:path*"}}, nil
	}}
	require.NoError(t, g.Apply(context.Background(), fc, ""))

	h := g.Handler()
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, get(t, h, "/api/sites/").Code)
	}
	assert.Equal(t, 1, calls)
}

func TestUpstreamTransportTrustsConfiguredCA(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem")
	require.NoError(t, gtls.GenerateSelfSigned(certPath, keyPath, 1, nil, nil))
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	require.NoError(t, err)

	backend := httptest.NewUnstartedServer(http.HandlerFunc(echoHandler))
	backend.TLS = &tls.Config{Certificates: []tls.Certificate{pair}, MinVersion: tls.VersionTLS12}
	backend.StartTLS()
	defer backend.Close()

	cfg := gatewayConfig(backend.URL)
	cfg.UpstreamCA = certPath
	g, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer g.proxy.Transport.(interface{ CloseIdleConnections() }).CloseIdleConnections()

	rec := get(t, g.Handler(), "/api/sites/")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Without the CA the self-signed backend is refused.
	cfg.UpstreamCA = ""
	untrusted, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer untrusted.proxy.Transport.(interface{ CloseIdleConnections() }).CloseIdleConnections()
	assert.Equal(t, http.StatusBadGateway, get(t, untrusted.Handler(), "/api/sites/").Code)

	cfg.UpstreamCA = filepath.Join(dir, "missing.pem")
	_, err = New(context.Background(), cfg, Options{})
	require.Error(t, err)
}

func TestNoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	backend := httptest.NewTLSServer(http.HandlerFunc(echoHandler))
	g := newTestGateway(t, backend, gatewayConfig(backend.URL))
	srv := httptest.NewServer(g.Handler())

	resp, err := srv.Client().Get(srv.URL + "/api/sites/?page=1")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	srv.Close()
	backend.Close()
}
