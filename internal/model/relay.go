package model

// RelayList is the server-list payload produced by the fetch action and held by
// both cache tiers.
type RelayList struct {
	Locations map[string]Location `json:"locations"`
	WireGuard WireGuardRelays     `json:"wireguard"`
}

type Location struct {
	Country   string  `json:"country"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

type WireGuardRelays struct {
	Relays []Relay `json:"relays"`
}

type Relay struct {
	Hostname         string `json:"hostname"`
	Location         string `json:"location"`
	Active           bool   `json:"active"`
	Owned            bool   `json:"owned"`
	Provider         string `json:"provider"`
	IPv4AddrIn       string `json:"ipv4_addr_in"`
	IPv6AddrIn       string `json:"ipv6_addr_in,omitempty"`
	IncludeInCountry bool   `json:"include_in_country"`
	Weight           int    `json:"weight"`
	PublicKey        string `json:"public_key"`
}

// EmptyRelayList is the degraded payload returned when no tier can produce data.
func EmptyRelayList() RelayList {
	return RelayList{
		Locations: map[string]Location{},
		WireGuard: WireGuardRelays{Relays: []Relay{}},
	}
}

const (
	DefaultPort        = 51820
	DefaultWeight      = 100
	UnknownName        = "Unknown"
	UnknownCountryCode = "XX"
)

// ServerRecord is one selectable relay after filtering and normalization.
type ServerRecord struct {
	Hostname    string `json:"hostname"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	City        string `json:"city"`
	CityCode    string `json:"city_code"`
	PublicKey   string `json:"public_key"`
	IPv4        string `json:"ipv4"`
	IPv6        string `json:"ipv6,omitempty"`
	Port        int    `json:"port"`
	Owned       bool   `json:"owned"`
	Provider    string `json:"provider"`
	Weight      int    `json:"weight"`
}

// Label renders the record the way the selection list shows it.
func (r ServerRecord) Label() string {
	label := r.Country + " - " + r.City + " - " + r.Hostname
	if r.Owned {
		return label + " (Mullvad Owned)"
	}
	return label + " (" + r.Provider + ")"
}

// SwitchRequest identifies the endpoint a switch applies. It is built once from
// a selection and never mutated afterwards.
type SwitchRequest struct {
	Hostname  string `json:"hostname"`
	PublicKey string `json:"public_key"`
	IPv4      string `json:"ipv4"`
	Port      int    `json:"port"`
}

func NewSwitchRequest(r ServerRecord) SwitchRequest {
	port := r.Port
	if port <= 0 {
		port = DefaultPort
	}
	return SwitchRequest{Hostname: r.Hostname, PublicKey: r.PublicKey, IPv4: r.IPv4, Port: port}
}

func (r SwitchRequest) IsZero() bool {
	return r == SwitchRequest{}
}
