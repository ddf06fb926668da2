// Package relaylist turns a fetched relay payload into the sorted list of
// selectable servers.
package relaylist

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/exeteres/wg-relay/internal/model"
)

// Parse keeps active relays that are included in their country, normalizes
// them into server records and sorts by (country, city, hostname). Relays
// without a hostname or public key are dropped; a repeated hostname keeps its
// first occurrence.
func Parse(l model.RelayList) []model.ServerRecord {
	out := make([]model.ServerRecord, 0, len(l.WireGuard.Relays))
	seen := make(map[string]struct{}, len(l.WireGuard.Relays))

	for _, r := range l.WireGuard.Relays {
		if !r.Active || !r.IncludeInCountry {
			continue
		}
		hostname := strings.TrimSpace(r.Hostname)
		publicKey := strings.TrimSpace(r.PublicKey)
		if hostname == "" || publicKey == "" {
			continue
		}
		if _, dup := seen[hostname]; dup {
			continue
		}
		seen[hostname] = struct{}{}

		loc := l.Locations[r.Location]
		out = append(out, model.ServerRecord{
			Hostname:    hostname,
			Country:     orUnknown(loc.Country),
			CountryCode: CountryCode(r.Location),
			City:        orUnknown(loc.City),
			CityCode:    r.Location,
			PublicKey:   publicKey,
			IPv4:        r.IPv4AddrIn,
			IPv6:        r.IPv6AddrIn,
			Port:        model.DefaultPort,
			Owned:       r.Owned,
			Provider:    orUnknown(r.Provider),
			Weight:      weight(r.Weight),
		})
	}

	Sort(out)
	return out
}

// Sort orders records by country and city using locale-aware collation, then
// by hostname byte-wise.
func Sort(records []model.ServerRecord) {
	// Collators keep internal buffers and must not be shared.
	c := collate.New(language.Und)
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Country != b.Country {
			if r := c.CompareString(a.Country, b.Country); r != 0 {
				return r < 0
			}
			return a.Country < b.Country
		}
		if a.City != b.City {
			if r := c.CompareString(a.City, b.City); r != 0 {
				return r < 0
			}
			return a.City < b.City
		}
		return a.Hostname < b.Hostname
	})
}

// CountryCode returns the upper-cased part of a location identifier before its
// first '-', or "XX" when the identifier is empty.
func CountryCode(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return model.UnknownCountryCode
	}
	code, _, _ := strings.Cut(location, "-")
	if code == "" {
		return model.UnknownCountryCode
	}
	return strings.ToUpper(code)
}

// Find returns the record with the given hostname.
func Find(records []model.ServerRecord, hostname string) (model.ServerRecord, bool) {
	hostname = strings.TrimSpace(hostname)
	for _, r := range records {
		if r.Hostname == hostname {
			return r, true
		}
	}
	return model.ServerRecord{}, false
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return model.UnknownName
	}
	return s
}

func weight(w int) int {
	if w <= 0 {
		return model.DefaultWeight
	}
	return w
}
