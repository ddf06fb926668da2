// Package inifile stores settings in a sectioned INI file, the on-disk shape
// the gateway's own configuration system uses.
package inifile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/ini.v1"
)

type Store struct {
	path string

	mu sync.Mutex
	f  *ini.File
}

func loadOptions() ini.LoadOptions {
	return ini.LoadOptions{
		// Cached payloads are JSON and may contain '#' or ';'.
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
	}
}

// Open loads path. A missing file is an empty store.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("inifile store requires a path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Store{path: path, f: ini.Empty(loadOptions())}, nil
		}
		return nil, err
	}
	f, err := ini.LoadSources(loadOptions(), b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Store{path: path, f: f}, nil
}

func (s *Store) Get(_ context.Context, section, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, err := s.f.GetSection(section)
	if err != nil {
		return "", false, nil
	}
	if !sec.HasKey(key) {
		return "", false, nil
	}
	return sec.Key(key).String(), true, nil
}

func (s *Store) Set(_ context.Context, section, key, value string) error {
	if strings.TrimSpace(section) == "" || strings.TrimSpace(key) == "" {
		return errors.New("section and key are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.f.Section(section).Key(key).SetValue(value)
	return nil
}

// Save writes the file atomically.
func (s *Store) Save(_ context.Context) error {
	s.mu.Lock()
	var buf bytes.Buffer
	_, err := s.f.WriteTo(&buf)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
