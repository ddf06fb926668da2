package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/exeteres/wg-relay/internal/model"
)

// Sealed age-encrypts the cached server list blob before it reaches the
// underlying store. Other keys pass through untouched.
type Sealed struct {
	inner    ConfigStore
	identity *age.X25519Identity
}

func NewSealed(inner ConfigStore, identity *age.X25519Identity) *Sealed {
	return &Sealed{inner: inner, identity: identity}
}

func ParseAgeIdentity(raw string) (*age.X25519Identity, error) {
	id, err := age.ParseX25519Identity(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse age identity: %w", err)
	}
	return id, nil
}

func isSealedKey(section, key string) bool {
	return section == SectionServers && key == KeyServersData
}

// Get returns a ParseError for a sealed value that cannot be decrypted so
// callers treat it like any other corrupt payload.
func (s *Sealed) Get(ctx context.Context, section, key string) (string, bool, error) {
	v, ok, err := s.inner.Get(ctx, section, key)
	if err != nil || !ok || !isSealedKey(section, key) || strings.TrimSpace(v) == "" {
		return v, ok, err
	}
	r, err := age.Decrypt(armor.NewReader(strings.NewReader(v)), s.identity)
	if err != nil {
		return "", true, &model.ParseError{Source: "sealed store value", Err: err}
	}
	pt, err := io.ReadAll(r)
	if err != nil {
		return "", true, &model.ParseError{Source: "sealed store value", Err: err}
	}
	return string(pt), true, nil
}

func (s *Sealed) Set(ctx context.Context, section, key, value string) error {
	if !isSealedKey(section, key) || value == "" {
		return s.inner.Set(ctx, section, key, value)
	}
	var buf bytes.Buffer
	aw := armor.NewWriter(&buf)
	w, err := age.Encrypt(aw, s.identity.Recipient())
	if err != nil {
		_ = aw.Close()
		return fmt.Errorf("seal %s/%s: %w", section, key, err)
	}
	if _, err := io.WriteString(w, value); err != nil {
		_ = w.Close()
		_ = aw.Close()
		return fmt.Errorf("seal %s/%s: %w", section, key, err)
	}
	if err := w.Close(); err != nil {
		_ = aw.Close()
		return fmt.Errorf("seal %s/%s: %w", section, key, err)
	}
	if err := aw.Close(); err != nil {
		return fmt.Errorf("seal %s/%s: %w", section, key, err)
	}
	return s.inner.Set(ctx, section, key, buf.String())
}

func (s *Sealed) Save(ctx context.Context) error {
	return s.inner.Save(ctx)
}

func (s *Sealed) Unwrap() ConfigStore {
	return s.inner
}
