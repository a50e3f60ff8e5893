package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susgrid/poweff-collector/pkg/models"
)

const validConfig = `
sites:
  rtp:
    latitude: 35.77
    longitude: -78.67
    timezone: America/New_York
    avg_co2_intensity: 60
  sjc:
    latitude: 37.33
    longitude: -121.89
    timezone: America/Los_Angeles

devices:
  edge-sw-01:
    site: rtp
    family: cat9300
    connection:
      address: 10.1.0.11
      username: netops
      credential_ref: env:EDGE_SW_01_PASSWORD
    collection:
      enabled: true
      interval: 5m
  core-rt-01:
    site: sjc
    family: asr1k
    connection:
      address: 10.2.0.21
      port: 2222
      username: netops
      private_key_path: /etc/poweff/keys/core-rt-01
    collection:
      enabled: false
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poweff.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	inv, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Len(t, inv.Sites, 2)
	assert.Len(t, inv.Devices, 2)

	site := inv.Sites["rtp"]
	assert.Equal(t, "rtp", site.Name)
	require.NotNil(t, site.AvgCO2Intensity)
	assert.Equal(t, 60.0, *site.AvgCO2Intensity)
	assert.Nil(t, inv.Sites["sjc"].AvgCO2Intensity)

	sw := inv.Devices["edge-sw-01"]
	assert.Equal(t, "edge-sw-01", sw.Name)
	assert.Equal(t, models.FamilyCat9300, sw.Family)
	assert.Equal(t, 22, sw.Connection.Port)
	assert.Equal(t, 30, sw.Connection.Timeout)
	require.NotNil(t, sw.Connection.PTYConfig)
	assert.Equal(t, "dumb", sw.Connection.PTYConfig.Term)
	assert.True(t, sw.Collection.Enabled)
	assert.Equal(t, "5m0s", sw.Collection.Interval.String())

	rt := inv.Devices["core-rt-01"]
	assert.Equal(t, 2222, rt.Connection.Port)
	assert.False(t, rt.Collection.Enabled)

	enabled := inv.EnabledDevices()
	require.Len(t, enabled, 1)
	assert.Equal(t, "edge-sw-01", enabled[0].Name)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  string
		wantErr string
	}{
		{
			name: "unknown site reference",
			mutate: `
sites:
  rtp: {latitude: 35.77, longitude: -78.67, timezone: America/New_York}
devices:
  sw: {site: nowhere, family: cat9300, connection: {address: 10.0.0.1, username: a, credential_ref: x}, collection: {enabled: true, interval: 5m}}
`,
			wantErr: "unknown site",
		},
		{
			name: "unknown family",
			mutate: `
sites:
  rtp: {latitude: 35.77, longitude: -78.67, timezone: America/New_York}
devices:
  sw: {site: rtp, family: cat6500, connection: {address: 10.0.0.1, username: a, credential_ref: x}, collection: {enabled: true, interval: 5m}}
`,
			wantErr: "unknown family",
		},
		{
			name: "invalid timezone",
			mutate: `
sites:
  rtp: {latitude: 35.77, longitude: -78.67, timezone: Mars/Olympus}
devices:
  sw: {site: rtp, family: cat9300, connection: {address: 10.0.0.1, username: a, credential_ref: x}, collection: {enabled: true, interval: 5m}}
`,
			wantErr: "invalid timezone",
		},
		{
			name: "no credential and no key",
			mutate: `
sites:
  rtp: {latitude: 35.77, longitude: -78.67, timezone: America/New_York}
devices:
  sw: {site: rtp, family: cat9300, connection: {address: 10.0.0.1, username: a}, collection: {enabled: true, interval: 5m}}
`,
			wantErr: "credential_ref or private_key_path",
		},
		{
			name: "enabled without interval",
			mutate: `
sites:
  rtp: {latitude: 35.77, longitude: -78.67, timezone: America/New_York}
devices:
  sw: {site: rtp, family: cat9300, connection: {address: 10.0.0.1, username: a, credential_ref: x}, collection: {enabled: true}}
`,
			wantErr: "interval must be positive",
		},
		{
			name:    "no devices at all",
			mutate:  "sites:\n  rtp: {latitude: 35.77, longitude: -78.67, timezone: America/New_York}\n",
			wantErr: "no devices configured",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.mutate))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSiteForUnknownSite(t *testing.T) {
	inv := &models.Inventory{Sites: map[string]models.Site{}}
	_, err := inv.SiteFor(models.Device{Name: "sw", Site: "ghost"})
	assert.Error(t, err)
}
