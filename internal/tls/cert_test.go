// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadCertificate(t *testing.T, path string) *x509.Certificate {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	return cert
}

func TestGenerateSelfSigned(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "c", "cert.pem")
	keyPath := filepath.Join(dir, "k", "key.pem")

	require.NoError(t, GenerateSelfSigned(certPath, keyPath, 1, []net.IP{net.ParseIP("10.1.2.3")}, []string{"backend"}))

	_, err := tls.LoadX509KeyPair(certPath, keyPath)
	require.NoError(t, err)

	cert := loadCertificate(t, certPath)
	assert.True(t, cert.IsCA)
	assert.Contains(t, cert.DNSNames, "localhost")
	assert.Contains(t, cert.DNSNames, "backend")
	assert.NoError(t, cert.VerifyHostname("127.0.0.1"))
	assert.NoError(t, cert.VerifyHostname("10.1.2.3"))

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEnsureCertificatesIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		CertPath: filepath.Join(dir, "cert.pem"),
		KeyPath:  filepath.Join(dir, "key.pem"),
		Hosts:    []string{"gestprep.local", "192.168.1.9"},
		Logger:   zerolog.Nop(),
	}

	c1, k1, err := EnsureCertificates(cfg)
	require.NoError(t, err)
	first := loadCertificate(t, c1)
	assert.Contains(t, first.DNSNames, "gestprep.local")

	c2, k2, err := EnsureCertificates(cfg)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
	assert.Equal(t, k1, k2)
	assert.Equal(t, first.SerialNumber, loadCertificate(t, c2).SerialNumber)
}

func TestEnsureCertificatesRegeneratesIncompletePair(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{CertPath: filepath.Join(dir, "cert.pem"), KeyPath: filepath.Join(dir, "key.pem"), Logger: zerolog.Nop()}
	require.NoError(t, os.WriteFile(cfg.CertPath, []byte("stale"), 0o600))

	_, _, err := EnsureCertificates(cfg)
	require.NoError(t, err)
	_, err = tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	assert.NoError(t, err)
}

func TestLoadCertPool(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	require.NoError(t, GenerateSelfSigned(certPath, filepath.Join(dir, "key.pem"), 1, nil, nil))

	pool, err := LoadCertPool(certPath)
	require.NoError(t, err)

	cert := loadCertificate(t, certPath)
	_, err = cert.Verify(x509.VerifyOptions{Roots: pool, DNSName: "localhost"})
	assert.NoError(t, err)

	bad := filepath.Join(dir, "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not pem"), 0o600))
	_, err = LoadCertPool(bad)
	assert.ErrorIs(t, err, ErrNoCertificates)
}
