// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package tls manages the backend's self-signed certificate and the trust
// pool the gateway uses to reach it.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

const (
	DefaultCertPath      = "certs/cert.pem"
	DefaultKeyPath       = "certs/key.pem"
	DefaultValidityYears = 5
)

// ErrNoCertificates is returned when a PEM file holds no certificate.
var ErrNoCertificates = errors.New("tls: no certificates found")

// Config holds configuration for certificate generation.
type Config struct {
	CertPath string
	KeyPath  string
	Hosts    []string // extra DNS names or IPs for the SAN list
	Logger   zerolog.Logger
}

// EnsureCertificates generates a self-signed pair unless both files exist.
func EnsureCertificates(cfg Config) (certPath, keyPath string, err error) {
	certPath, keyPath = cfg.CertPath, cfg.KeyPath
	if certPath == "" {
		certPath = DefaultCertPath
	}
	if keyPath == "" {
		keyPath = DefaultKeyPath
	}

	certExists, keyExists := fileExists(certPath), fileExists(keyPath)
	if certExists && keyExists {
		cfg.Logger.Debug().Str("cert", certPath).Str("key", keyPath).Msg("TLS certificates found")
		return certPath, keyPath, nil
	}
	if certExists || keyExists {
		cfg.Logger.Warn().
			Bool("cert_exists", certExists).
			Bool("key_exists", keyExists).
			Msg("incomplete TLS certificate pair found, regenerating both")
	}

	ips, dns := splitHosts(cfg.Hosts)
	if detected, err := GetNetworkIPs(); err != nil {
		cfg.Logger.Warn().Err(err).Msg("failed to detect network IPs, certificate will only cover localhost")
	} else {
		ips = append(ips, detected...)
	}

	if err := GenerateSelfSigned(certPath, keyPath, DefaultValidityYears, ips, dns); err != nil {
		return "", "", fmt.Errorf("generate self-signed certificates: %w", err)
	}
	cfg.Logger.Info().
		Str("event", "tls.generated").
		Str("cert", certPath).
		Str("key", keyPath).
		Int("validity_years", DefaultValidityYears).
		Int("san_ips", len(ips)).
		Msg("self-signed TLS certificate generated")
	return certPath, keyPath, nil
}

func splitHosts(hosts []string) (ips []net.IP, dns []string) {
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			ips = append(ips, ip)
		} else if h != "" {
			dns = append(dns, h)
		}
	}
	return ips, dns
}

// GenerateSelfSigned writes an ECDSA P-256 certificate and key.
// localhost, 127.0.0.1 and ::1 are always part of the SAN list. The
// certificate is its own CA so it can be installed as a trust anchor.
func GenerateSelfSigned(certPath, keyPath string, validityYears int, extraIPs []net.IP, extraDNS []string) error {
	for _, dir := range []string{filepath.Dir(certPath), filepath.Dir(keyPath)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create cert directory: %w", err)
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial number: %w", err)
	}

	ipSet := map[string]net.IP{}
	for _, ip := range append([]net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}, extraIPs...) {
		if ip != nil {
			ipSet[ip.String()] = ip
		}
	}
	dnsSet := map[string]bool{"localhost": true}
	for _, d := range extraDNS {
		dnsSet[d] = true
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"gestprep"}, CommonName: "gestprep backend"},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.AddDate(validityYears, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           sortedIPs(ipSet),
		DNSNames:              sortedKeys(dnsSet),
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	privBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}

	if err := renameio.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privBytes}), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	if err := renameio.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil {
		return fmt.Errorf("write cert file: %w", err)
	}
	return nil
}

// LoadCertPool reads every certificate of a PEM bundle into a fresh pool.
func LoadCertPool(path string) (*x509.CertPool, error) {
	// #nosec G304 -- operator supplied path
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%w in %s", ErrNoCertificates, path)
	}
	return pool, nil
}

func sortedIPs(set map[string]net.IP) []net.IP {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]net.IP, len(keys))
	for i, k := range keys {
		out[i] = set[k]
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// GetNetworkIPs returns the non-loopback, non-link-local addresses of up interfaces.
func GetNetworkIPs() ([]net.IP, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("get network interfaces: %w", err)
	}
	var ips []net.IP
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
				continue
			}
			ips = append(ips, ip)
		}
	}
	return ips, nil
}
