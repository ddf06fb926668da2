package switcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/exeteres/wg-relay/internal/model"
)

type selection struct {
	Hostname  string          `json:"hostname"`
	PublicKey string          `json:"public_key"`
	IPv4      string          `json:"ipv4"`
	Port      json.RawMessage `json:"port,omitempty"`
}

// EncodeSelection renders a request as the opaque value a selection list
// carries for each server.
func EncodeSelection(req model.SwitchRequest) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseSelection decodes and validates a selection value. An empty value is
// ErrNoSelection; anything else that does not describe a usable endpoint is a
// SelectionFormatError.
func ParseSelection(raw string) (model.SwitchRequest, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.SwitchRequest{}, ErrNoSelection
	}

	var sel selection
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&sel); err != nil {
		return model.SwitchRequest{}, &SelectionFormatError{Value: raw, Err: err}
	}
	port, err := parsePort(sel.Port)
	if err != nil {
		return model.SwitchRequest{}, &SelectionFormatError{Value: raw, Err: err}
	}

	req := model.SwitchRequest{
		Hostname:  strings.TrimSpace(sel.Hostname),
		PublicKey: strings.TrimSpace(sel.PublicKey),
		IPv4:      strings.TrimSpace(sel.IPv4),
		Port:      port,
	}
	if err := ValidateRequest(req); err != nil {
		return model.SwitchRequest{}, &SelectionFormatError{Value: raw, Err: err}
	}
	return req, nil
}

// ValidateRequest checks that a request names a complete endpoint.
func ValidateRequest(req model.SwitchRequest) error {
	if req.Hostname == "" {
		return errors.New("hostname is required")
	}
	if _, err := wgtypes.ParseKey(req.PublicKey); err != nil {
		return fmt.Errorf("public_key: %w", err)
	}
	addr, err := netip.ParseAddr(req.IPv4)
	if err != nil || !addr.Is4() {
		return fmt.Errorf("ipv4: %q is not an IPv4 address", req.IPv4)
	}
	if req.Port < 1 || req.Port > 65535 {
		return fmt.Errorf("port: %d out of range", req.Port)
	}
	return nil
}

// parsePort accepts a JSON number or a numeric string; a missing port is the
// WireGuard default.
func parsePort(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return model.DefaultPort, nil
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("port: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return model.DefaultPort, nil
		}
	}
	p, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("port: %q is not a number", s)
	}
	return p, nil
}
