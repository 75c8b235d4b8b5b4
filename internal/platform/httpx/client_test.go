package httpx

import (
	"crypto/x509"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(0)
	assert.Equal(t, defaultClientTimeout, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok, "transport type = %T", client.Transport)
	assert.Equal(t, defaultMaxIdleConns, transport.MaxIdleConns)
	assert.Equal(t, defaultMaxIdleConnsPerHost, transport.MaxIdleConnsPerHost)
	assert.Equal(t, defaultIdleConnTimeout, transport.IdleConnTimeout)
}

func TestNewClient_Timeouts(t *testing.T) {
	tests := []struct {
		name        string
		timeout     time.Duration
		wantDial    time.Duration
		wantHeaders time.Duration
	}{
		{"long timeout is capped", 10 * time.Second, defaultDialTimeout, defaultResponseHeaderTimeout},
		{"short timeout is kept", 1500 * time.Millisecond, 1500 * time.Millisecond, 1500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.timeout)
			transport := client.Transport.(*http.Transport)
			assert.Equal(t, tt.timeout, client.Timeout)
			assert.Equal(t, tt.wantDial, transport.TLSHandshakeTimeout)
			assert.Equal(t, tt.wantHeaders, transport.ResponseHeaderTimeout)
		})
	}
}

func TestNewUpstreamTransport(t *testing.T) {
	pool := x509.NewCertPool()
	rt := NewUpstreamTransport(UpstreamOptions{RootCAs: pool, ResponseHeaderTimeout: 30 * time.Second})

	transport, ok := rt.(*http.Transport)
	require.True(t, ok, "untraced transport must be a plain *http.Transport")
	require.NotNil(t, transport.TLSClientConfig)
	assert.Same(t, pool, transport.TLSClientConfig.RootCAs)
	assert.False(t, transport.TLSClientConfig.InsecureSkipVerify)
	assert.Equal(t, 30*time.Second, transport.ResponseHeaderTimeout)

	insecure := NewUpstreamTransport(UpstreamOptions{InsecureSkipVerify: true}).(*http.Transport)
	assert.True(t, insecure.TLSClientConfig.InsecureSkipVerify)

	traced := NewUpstreamTransport(UpstreamOptions{Traced: true})
	_, plain := traced.(*http.Transport)
	assert.False(t, plain, "traced transport is wrapped")
}
