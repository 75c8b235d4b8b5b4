// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/gestprep/internal/config"
)

func TestBackendChecks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Server.TLSAutoGenerate = false
	cfg.Server.TLSCert, cfg.Server.TLSKey = "", ""

	media := filepath.Join(dir, "media", "documents")
	require.NoError(t, BackendChecks(cfg, dir, media))
	assert.DirExists(t, media, "missing directories are created")
	assert.NoFileExists(t, filepath.Join(media, ".write_test"))

	cfg.Server.TLSCert = filepath.Join(dir, "missing.pem")
	cfg.Server.TLSKey = filepath.Join(dir, "missing-key.pem")
	err := BackendChecks(cfg, dir, media)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.pem")
	assert.Contains(t, err.Error(), "missing-key.pem")
}

func TestBackendChecks_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "media")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	cfg := config.Defaults()
	err := BackendChecks(cfg, dir, file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "media root")
}

func TestGatewayChecks(t *testing.T) {
	dir := t.TempDir()
	ca := filepath.Join(dir, "cert.pem")
	require.NoError(t, os.WriteFile(ca, []byte("pem"), 0o600))

	cfg := config.Defaults().Gateway
	cfg.UpstreamCA = ca
	cfg.StaticDir = dir
	require.NoError(t, GatewayChecks(cfg))

	cfg.UpstreamCA = filepath.Join(dir, "absent.pem")
	cfg.StaticDir = filepath.Join(dir, "build")
	err := GatewayChecks(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream CA")
	assert.Contains(t, err.Error(), "static dir")

	cfg.InsecureSkipVerify = true
	cfg.StaticDir = ""
	require.NoError(t, GatewayChecks(cfg), "CA is not needed when verification is off")
}
