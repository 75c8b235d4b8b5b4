// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validation runs pre-flight checks against the environment before
// a server starts.
package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ManuGH/gestprep/internal/config"
	"github.com/ManuGH/gestprep/internal/log"
)

// BackendChecks verifies that the backend can write its database and
// uploaded documents, and that a configured certificate pair is readable.
// dbDir and mediaRoot are resolved paths.
func BackendChecks(cfg config.AppConfig, dbDir, mediaRoot string) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	var errs []error
	if err := checkWritableDir(logger, dbDir, true); err != nil {
		errs = append(errs, fmt.Errorf("database directory: %w", err))
	}
	if err := checkWritableDir(logger, mediaRoot, true); err != nil {
		errs = append(errs, fmt.Errorf("media root: %w", err))
	}
	if !cfg.Server.TLSAutoGenerate && cfg.Server.TLSCert != "" {
		for _, f := range []string{cfg.Server.TLSCert, cfg.Server.TLSKey} {
			if err := checkReadable(f); err != nil {
				errs = append(errs, fmt.Errorf("tls: %w", err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.Info().Msg("all startup checks passed")
	return nil
}

// GatewayChecks verifies the upstream CA and the static directory.
func GatewayChecks(cfg config.GatewayConfig) error {
	logger := log.WithComponent("startup-check")

	var errs []error
	if !cfg.InsecureSkipVerify && cfg.UpstreamCA != "" {
		if err := checkReadable(cfg.UpstreamCA); err != nil {
			errs = append(errs, fmt.Errorf("upstream CA: %w", err))
		}
	}
	if cfg.StaticDir != "" {
		if err := checkDir(cfg.StaticDir); err != nil {
			errs = append(errs, fmt.Errorf("static dir: %w", err))
		} else {
			logger.Info().Str("path", cfg.StaticDir).Msg("static directory found")
		}
	}
	return errors.Join(errs...)
}

// checkWritableDir creates path when create is set, then probes it with a
// temporary file.
func checkWritableDir(logger zerolog.Logger, path string, create bool) error {
	if create {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return err
		}
	}
	if err := checkDir(path); err != nil {
		return err
	}
	probe := filepath.Join(path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", path, err)
	}
	_ = os.Remove(probe)
	logger.Debug().Str("path", path).Msg("directory is writable")
	return nil
}

func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}
	return nil
}

func checkReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return err
	}
	return f.Close()
}
