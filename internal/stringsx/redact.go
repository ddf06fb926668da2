package stringsx

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Redact returns a stable, non-secret representation of a backend address
// for logs. Userinfo, path and query are dropped; a short hash keeps distinct
// addresses distinguishable.
func Redact(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "endpoint#empty"
	}

	sum := sha256.Sum256([]byte(raw))
	id := hex.EncodeToString(sum[:4])

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		// host:port without a scheme carries no secrets.
		if !strings.ContainsAny(raw, "@/?") {
			return raw
		}
		return "endpoint#" + id
	}

	host := u.Hostname()
	if host == "" {
		host = u.Host
	}
	if p := u.Port(); p != "" {
		host += ":" + p
	}
	return fmt.Sprintf("%s://%s#%s", u.Scheme, host, id)
}

// RedactAll applies Redact to every address and joins them with commas.
func RedactAll(raws []string) string {
	out := make([]string, 0, len(raws))
	for _, r := range raws {
		out = append(out, Redact(r))
	}
	return strings.Join(out, ",")
}
