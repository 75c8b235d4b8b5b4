// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package media stores uploaded document files under a media root.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ManuGH/gestprep/internal/fsutil"
	xglog "github.com/ManuGH/gestprep/internal/log"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
)

// ErrEmptyName is returned when an upload has no usable file name.
var ErrEmptyName = errors.New("empty file name")

// Storage writes files below Root. Stored names are slash separated and
// relative to Root.
type Storage struct {
	root string
}

// NewStorage creates the root directory if needed.
func NewStorage(root string) (*Storage, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &Storage{root: root}, nil
}

// Root returns the media root directory.
func (s *Storage) Root() string { return s.root }

// Save writes r to dir/name atomically and returns the stored name. An
// existing file is never overwritten: a random suffix is added instead.
func (s *Storage) Save(ctx context.Context, dir, name string, r io.Reader) (string, error) {
	logger := xglog.FromContext(ctx)

	clean := ValidFilename(name)
	if clean == "" {
		return "", ErrEmptyName
	}
	rel := path.Join(dir, clean)
	full, err := fsutil.ConfineRelPath(s.root, rel)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Lstat(full); errors.Is(err, os.ErrNotExist) {
			break
		}
		rel = path.Join(dir, withSuffix(clean, uuid.NewString()[:7]))
		if full, err = fsutil.ConfineRelPath(s.root, rel); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	pending, err := renameio.NewPendingFile(full)
	if err != nil {
		return "", fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending upload")
		}
	}()
	if _, err := io.Copy(pending, r); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("atomically replace upload: %w", err)
	}
	logger.Info().Str(xglog.FieldEvent, "media.saved").Str(xglog.FieldPath, rel).Msg("file stored")
	return rel, nil
}

// Remove deletes stored files. Missing files are ignored; the first other
// error is returned after every file was attempted.
func (s *Storage) Remove(ctx context.Context, names ...string) error {
	logger := xglog.FromContext(ctx)
	var first error
	for _, n := range names {
		if n == "" {
			continue
		}
		full, err := fsutil.ConfineRelPath(s.root, n)
		if err == nil {
			err = os.Remove(full)
		}
		switch {
		case err == nil:
			logger.Info().Str(xglog.FieldEvent, "media.removed").Str(xglog.FieldPath, n).Msg("file removed")
		case errors.Is(err, os.ErrNotExist):
		default:
			logger.Warn().Err(err).Str(xglog.FieldPath, n).Msg("remove stored file")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Open opens a stored file for reading.
func (s *Storage) Open(name string) (*os.File, error) {
	full, err := fsutil.ConfineRelPath(s.root, strings.TrimPrefix(name, "/"))
	if err != nil {
		return nil, err
	}
	if err := fsutil.IsRegularFile(full); err != nil {
		return nil, err
	}
	return os.Open(full)
}

// ValidFilename keeps the base name and replaces spaces with underscores,
// dropping characters other than letters, digits, '-', '_' and '.'.
func ValidFilename(name string) string {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == ' ':
			b.WriteRune('_')
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "." || out == ".." || out == "/" {
		return ""
	}
	return out
}

func withSuffix(name, suffix string) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + suffix + ext
}
