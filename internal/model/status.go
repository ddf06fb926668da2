package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ConnectionStatus is the status action's report. Empty fields mean the action
// did not report them; Display fills in presentation defaults.
type ConnectionStatus struct {
	Connected       bool   `json:"connected"`
	CurrentServer   string `json:"current_server,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	LatestHandshake string `json:"latest_handshake,omitempty"`
	TransferRx      string `json:"transfer_rx,omitempty"`
	TransferTx      string `json:"transfer_tx,omitempty"`
	Error           string `json:"error,omitempty"`
}

const (
	NotConfigured = "Not configured"
	NotAvailable  = "N/A"
	Never         = "Never"
	ZeroBytes     = "0 B"
)

func (s ConnectionStatus) Display() ConnectionStatus {
	out := s
	if out.CurrentServer == "" {
		out.CurrentServer = NotConfigured
	}
	if out.Endpoint == "" {
		out.Endpoint = NotAvailable
	}
	if out.LatestHandshake == "" {
		out.LatestHandshake = Never
	}
	if out.TransferRx == "" {
		out.TransferRx = ZeroBytes
	}
	if out.TransferTx == "" {
		out.TransferTx = ZeroBytes
	}
	return out
}

// UnmarshalJSON accepts numbers as well as strings for the textual fields; some
// status scripts report transfer counters and handshake ages as raw numbers.
func (s *ConnectionStatus) UnmarshalJSON(b []byte) error {
	var aux struct {
		Connected       bool            `json:"connected"`
		CurrentServer   json.RawMessage `json:"current_server"`
		Endpoint        json.RawMessage `json:"endpoint"`
		LatestHandshake json.RawMessage `json:"latest_handshake"`
		TransferRx      json.RawMessage `json:"transfer_rx"`
		TransferTx      json.RawMessage `json:"transfer_tx"`
		Error           json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	out := ConnectionStatus{Connected: aux.Connected}
	fields := []struct {
		raw json.RawMessage
		dst *string
		key string
	}{
		{aux.CurrentServer, &out.CurrentServer, "current_server"},
		{aux.Endpoint, &out.Endpoint, "endpoint"},
		{aux.LatestHandshake, &out.LatestHandshake, "latest_handshake"},
		{aux.TransferRx, &out.TransferRx, "transfer_rx"},
		{aux.TransferTx, &out.TransferTx, "transfer_tx"},
		{aux.Error, &out.Error, "error"},
	}
	for _, f := range fields {
		v, err := textValue(f.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = v
	}
	*s = out
	return nil
}

func textValue(raw json.RawMessage) (string, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return "", err
		}
		return v, nil
	case '{', '[':
		return "", fmt.Errorf("expected string or number")
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("expected string or number")
		}
		return n.String(), nil
	}
}
