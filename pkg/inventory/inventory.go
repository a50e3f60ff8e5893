// Package inventory loads and validates the site/device configuration the
// scheduler runs against. Validation is fail-fast: a schema violation stops
// the process before any scheduling begins.
package inventory

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/susgrid/poweff-collector/pkg/models"
)

// rawConfig mirrors the sites/devices sections of the config file.
type rawConfig struct {
	Sites   map[string]models.Site   `mapstructure:"sites"`
	Devices map[string]models.Device `mapstructure:"devices"`
}

// Load reads the configuration file and returns a validated inventory.
func Load(path string) (*models.Inventory, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*models.Inventory, error) {
	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	inv := &models.Inventory{
		Sites:   make(map[string]models.Site, len(raw.Sites)),
		Devices: make(map[string]models.Device, len(raw.Devices)),
	}

	for name, site := range raw.Sites {
		site.Name = name
		if err := validateSite(site); err != nil {
			return nil, fmt.Errorf("site %s: %w", name, err)
		}
		inv.Sites[name] = site
	}

	for name, device := range raw.Devices {
		device.Name = name
		applyConnectionDefaults(&device.Connection)
		if err := validateDevice(device, inv.Sites); err != nil {
			return nil, fmt.Errorf("device %s: %w", name, err)
		}
		inv.Devices[name] = device
	}

	if len(inv.Devices) == 0 {
		return nil, fmt.Errorf("no devices configured")
	}
	return inv, nil
}

// applyConnectionDefaults fills the same defaults the SSH client would
// otherwise assume, so the validated inventory is complete as loaded.
func applyConnectionDefaults(c *models.ConnectionConfig) {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.PTYConfig == nil {
		c.PTYConfig = models.DefaultPTYConfig()
	}
}

func validateSite(site models.Site) error {
	if site.Timezone == "" {
		return fmt.Errorf("timezone is required")
	}
	if _, err := time.LoadLocation(site.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q", site.Timezone)
	}
	if site.Latitude < -90 || site.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", site.Latitude)
	}
	if site.Longitude < -180 || site.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", site.Longitude)
	}
	if site.AvgCO2Intensity != nil && *site.AvgCO2Intensity < 0 {
		return fmt.Errorf("avg_co2_intensity must not be negative")
	}
	return nil
}

func validateDevice(device models.Device, sites map[string]models.Site) error {
	if _, ok := sites[device.Site]; !ok {
		return fmt.Errorf("references unknown site %q", device.Site)
	}
	if !knownFamily(device.Family) {
		return fmt.Errorf("unknown family %q", device.Family)
	}
	if device.Connection.Address == "" {
		return fmt.Errorf("connection address is required")
	}
	if device.Connection.Username == "" {
		return fmt.Errorf("connection username is required")
	}
	if device.Connection.CredentialRef == "" && device.Connection.PrivateKeyPath == "" {
		return fmt.Errorf("either credential_ref or private_key_path is required")
	}
	if device.Connection.Timeout < 0 {
		return fmt.Errorf("connection timeout must not be negative")
	}
	if device.Collection.Enabled && device.Collection.Interval <= 0 {
		return fmt.Errorf("collection interval must be positive when enabled")
	}
	return nil
}

func knownFamily(f models.Family) bool {
	for _, known := range models.KnownFamilies {
		if f == known {
			return true
		}
	}
	return false
}
