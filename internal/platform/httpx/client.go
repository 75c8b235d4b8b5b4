// Package httpx builds the outbound HTTP clients and transports: short
// probes (health checks, CLI) and the gateway's upstream transport.
package httpx

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultClientTimeout         = 5 * time.Second
	defaultDialTimeout           = 3 * time.Second
	defaultResponseHeaderTimeout = 3 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 16
	defaultMaxIdleConnsPerHost   = 4

	upstreamIdleConnTimeout     = 90 * time.Second
	upstreamMaxIdleConnsPerHost = 32
)

// NewClient returns a hardened HTTP client for probes.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	dialTimeout := min(timeout, defaultDialTimeout)
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          defaultMaxIdleConns,
			MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   dialTimeout,
			ResponseHeaderTimeout: min(timeout, defaultResponseHeaderTimeout),
			ExpectContinueTimeout: defaultExpectContinueTimeout,
		},
	}
}

// UpstreamOptions configures the transport used to reach rewrite destinations.
type UpstreamOptions struct {
	// RootCAs trusted for the upstream certificate; nil uses the system pool.
	RootCAs *x509.CertPool
	// InsecureSkipVerify disables certificate verification entirely.
	InsecureSkipVerify bool
	// ResponseHeaderTimeout bounds the wait for upstream headers; 0 means none.
	ResponseHeaderTimeout time.Duration
	// Traced wraps the transport with OpenTelemetry client spans.
	Traced bool
}

// NewUpstreamTransport returns a pooled TLS transport for reverse proxying.
// Responses are streamed, so there is no overall client timeout.
func NewUpstreamTransport(opts UpstreamOptions) http.RoundTripper {
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          upstreamMaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost:   upstreamMaxIdleConnsPerHost,
		IdleConnTimeout:       upstreamIdleConnTimeout,
		TLSHandshakeTimeout:   defaultDialTimeout,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			RootCAs:            opts.RootCAs,
			InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed development backends
		},
	}
	if !opts.Traced {
		return t
	}
	return otelhttp.NewTransport(t, otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
		return "gateway.upstream " + r.Method
	}))
}
