// BuffaLogs - Login Anomaly Detection and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/buffalogs

package vpn

import "time"

// Source labels where an entry of the lookup came from.
const (
	SourceConfig  = "config"
	SourceFile    = "file"
	SourceRemote  = "remote"
	providerLocal = "custom"
)

// Config configures the anonymizer lookup. It is embedded in the
// application config under "anonymizer".
type Config struct {
	// Networks are literal IPs or CIDR prefixes always treated as anonymous.
	Networks []string `koanf:"networks"`

	// DataFile is an optional gluetun servers.json or plain IP/CIDR list.
	DataFile string `koanf:"data_file"`

	// SourceURL is fetched on Load and then every UpdateInterval.
	SourceURL string `koanf:"source_url"`

	// UpdateInterval is how often SourceURL is refreshed; zero disables
	// periodic refresh.
	UpdateInterval time.Duration `koanf:"update_interval"`

	// HTTPTimeout bounds one fetch of SourceURL.
	HTTPTimeout time.Duration `koanf:"http_timeout"`

	// RetryAttempts is the number of extra fetch attempts on failure.
	RetryAttempts int `koanf:"retry_attempts"`

	// RetryDelay is the first backoff delay; it doubles per attempt.
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// DefaultConfig returns the defaults: no networks, no remote source.
func DefaultConfig() Config {
	return Config{
		Networks:       []string{},
		UpdateInterval: 24 * time.Hour,
		HTTPTimeout:    60 * time.Second,
		RetryAttempts:  3,
		RetryDelay:     5 * time.Second,
	}
}

// LookupResult describes a match. Network is the matching prefix, or the
// address itself for exact matches.
type LookupResult struct {
	Anonymous bool   `json:"anonymous"`
	Provider  string `json:"provider,omitempty"`
	Country   string `json:"country,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
	Network   string `json:"network,omitempty"`
	Source    string `json:"source,omitempty"`
}

// ImportResult counts what an import added.
type ImportResult struct {
	Providers int           `json:"providers"`
	Servers   int           `json:"servers"`
	Entries   int           `json:"entries"`
	Errors    []string      `json:"errors,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// GluetunProvider is one provider of gluetun's servers.json.
type GluetunProvider struct {
	Version   int             `json:"version"`
	Timestamp int64           `json:"timestamp"`
	Servers   []GluetunServer `json:"servers"`
}

// GluetunServer is one server entry; only the fields used for lookups are
// decoded.
type GluetunServer struct {
	Country  string   `json:"country"`
	City     string   `json:"city,omitempty"`
	Hostname string   `json:"hostname,omitempty"`
	IPs      []string `json:"ips"`
}

var providerDisplayNames = map[string]string{
	"airvpn":         "AirVPN",
	"cyberghost":     "CyberGhost",
	"expressvpn":     "ExpressVPN",
	"fastestvpn":     "FastestVPN",
	"hidemyass":      "HideMyAss",
	"ipvanish":       "IPVanish",
	"ivpn":           "IVPN",
	"mullvad":        "Mullvad",
	"nordvpn":        "NordVPN",
	"perfectprivacy": "Perfect Privacy",
	"privado":        "Privado VPN",
	"privatevpn":     "PrivateVPN",
	"protonvpn":      "ProtonVPN",
	"purevpn":        "PureVPN",
	"surfshark":      "Surfshark",
	"torguard":       "TorGuard",
	"vyprvpn":        "VyprVPN",
	"windscribe":     "Windscribe",
	"pia":            "Private Internet Access",
}

// DisplayName returns the human-readable name of a provider.
func DisplayName(provider string) string {
	if name, ok := providerDisplayNames[provider]; ok {
		return name
	}
	return provider
}
