package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ParseError reports structured text that could not be decoded. Source names
// where the text came from (a cache tier, the status action, a selection).
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	src := strings.TrimSpace(e.Source)
	if src == "" {
		src = "input"
	}
	return fmt.Sprintf("parse %s: %v", src, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func AsParseError(err error) (*ParseError, bool) {
	var e *ParseError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// DecodeRelayList decodes a server-list payload. Missing maps and slices are
// normalized to empty values so callers never see nil collections.
func DecodeRelayList(source string, b []byte) (RelayList, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return RelayList{}, &ParseError{Source: source, Err: errors.New("empty payload")}
	}
	var l RelayList
	if err := json.Unmarshal(b, &l); err != nil {
		return RelayList{}, &ParseError{Source: source, Err: err}
	}
	if l.Locations == nil {
		l.Locations = map[string]Location{}
	}
	if l.WireGuard.Relays == nil {
		l.WireGuard.Relays = []Relay{}
	}
	return l, nil
}

func EncodeRelayList(l RelayList) ([]byte, error) {
	return json.Marshal(l)
}

// DecodeConnectionStatus decodes the status action's stdout. Empty output is an
// empty object, as the action prints nothing when no tunnel is configured.
func DecodeConnectionStatus(stdout string) (ConnectionStatus, error) {
	raw := strings.TrimSpace(stdout)
	if raw == "" {
		raw = "{}"
	}
	var s ConnectionStatus
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return ConnectionStatus{}, &ParseError{Source: "status", Err: err}
	}
	return s, nil
}
