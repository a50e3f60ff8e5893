package models

import (
	"fmt"
	"time"
)

// Family identifies a supported device family. Each family has its own
// normaliser that maps CLI output into the canonical POWEFF records.
type Family string

const (
	FamilyCat9300 Family = "cat9300"
	FamilyASR1k   Family = "asr1k"
)

// KnownFamilies lists every family a normaliser is registered for.
// Inventory validation rejects anything else before scheduling begins.
var KnownFamilies = []Family{FamilyCat9300, FamilyASR1k}

// Site is a physical location hosting one or more devices. Coordinates are
// used for carbon-intensity lookups; AvgCO2Intensity is the configured
// fallback (gCO2e/kWh) when the external service is unavailable.
type Site struct {
	Name            string   `mapstructure:"-" json:"name"`
	Latitude        float64  `mapstructure:"latitude" json:"latitude"`
	Longitude       float64  `mapstructure:"longitude" json:"longitude"`
	Timezone        string   `mapstructure:"timezone" json:"timezone"`
	AvgCO2Intensity *float64 `mapstructure:"avg_co2_intensity" json:"avg_co2_intensity,omitempty"`
}

// ConnectionConfig holds everything needed to reach a device over SSH.
type ConnectionConfig struct {
	// Address is the device management IP or hostname.
	Address string `mapstructure:"address"`

	// Port number (default: 22)
	Port int `mapstructure:"port"`

	// Username for authentication
	Username string `mapstructure:"username"`

	// CredentialRef is an opaque reference to the device password,
	// resolved by the secrets package at connect time ("env:NAME",
	// "file:/path" or a literal). Never logged.
	CredentialRef string `mapstructure:"credential_ref"`

	// PrivateKeyPath enables key-based authentication when set.
	PrivateKeyPath string `mapstructure:"private_key_path"`

	// Timeout in seconds for connection establishment and per-command
	// execution (default: 30)
	Timeout int `mapstructure:"timeout"`

	// PTY terminal configuration
	PTYConfig *PTYConfig `mapstructure:"pty"`
}

// PTYConfig holds configuration for the pseudo-terminal requested on the
// device session. Network gear expects a terminal even for scripted use.
type PTYConfig struct {
	Term    string `mapstructure:"term"`
	Columns int    `mapstructure:"columns"`
	Rows    int    `mapstructure:"rows"`
}

// DefaultPTYConfig returns a default PTY configuration
func DefaultPTYConfig() *PTYConfig {
	return &PTYConfig{
		Term:    "dumb",
		Columns: 80,
		Rows:    24,
	}
}

// CollectionPolicy controls whether and how often a device is collected.
type CollectionPolicy struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// Device is one managed network element. Devices are independent of each
// other; a failure on one never affects another's schedule.
type Device struct {
	Name       string           `mapstructure:"-" json:"name"`
	Site       string           `mapstructure:"site" json:"site"`
	Family     Family           `mapstructure:"family" json:"family"`
	OSType     string           `mapstructure:"os_type" json:"os_type"`
	OSVersion  string           `mapstructure:"os_version" json:"os_version"`
	Connection ConnectionConfig `mapstructure:"connection" json:"-"`
	Collection CollectionPolicy `mapstructure:"collection" json:"-"`
}

// Inventory is the validated in-memory view of the configuration file:
// sites and devices keyed by name. Immutable once loaded.
type Inventory struct {
	Sites   map[string]Site
	Devices map[string]Device
}

// SiteFor returns the site a device belongs to.
func (inv *Inventory) SiteFor(d Device) (Site, error) {
	site, ok := inv.Sites[d.Site]
	if !ok {
		return Site{}, fmt.Errorf("device %s references unknown site %q", d.Name, d.Site)
	}
	return site, nil
}

// EnabledDevices returns the devices with collection enabled.
func (inv *Inventory) EnabledDevices() []Device {
	devices := make([]Device, 0, len(inv.Devices))
	for _, d := range inv.Devices {
		if d.Collection.Enabled {
			devices = append(devices, d)
		}
	}
	return devices
}
