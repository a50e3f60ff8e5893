package normalise

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPhysicalInterface(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"GigabitEthernet1/0/1", true},
		{"TenGigabitEthernet1/1/4", true},
		{"FortyGigabitEthernet1/1/1", true},
		{"GigE0/0/0/1", true},
		{"MgmtEth0/RP0/CPU0/0", false}, // management, not forwarding
		{"GigabitEthernet0/0/0.100", false},
		{"Loopback0", false},
		{"Port-channel10", false},
		{"Po1", false},
		{"Vlan1", false},
		{"Tunnel0", false},
		{"Bundle-Ether1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isPhysicalInterface(tt.name))
		})
	}
}

func TestParseInventoryNormalisesMissingFields(t *testing.T) {
	assets := parseInventory(`
NAME: "Switch 1", DESCR: "C9300-24T"
PID: C9300-24T         , VID: N/A  , SN:

NAME: "StackPort1/1", DESCR: "StackPort1/1"
PID: STACK-T1-50CM     , VID: V01  , SN: MOC7777G7GG
`)
	require.Len(t, assets, 2)

	assert.Equal(t, "Chassis", assets[0].slot)
	assert.Equal(t, "NA", assets[0].vid)
	assert.Equal(t, "NA", assets[0].serial)
	assert.Equal(t, "None", assets[1].slot)
	assert.Equal(t, "MOC7777G7GG", assets[1].serial)
}

func TestParseMemoryRejectsInconsistentFigures(t *testing.T) {
	// Free plus used disagrees with total by more than the tolerance.
	_, err := parseMemory(` Slot  Status    Total     Used (Pct)     Free (Pct)
 1-RP0 Healthy 8000000  3000000 (38%)  2000000 (25%)
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not add up")
}

func TestParseMemoryAcceptsRoundingSlack(t *testing.T) {
	reading, err := parseMemory(` Slot  Status    Total     Used (Pct)     Free (Pct)
 1-RP0 Healthy 8000005  3000000 (38%)  5000000 (62%)
`)
	require.NoError(t, err)
	assert.InDelta(t, 37.5, reading.reading, 0.01)
}

func TestParseCPURequiresFiveMinuteAverage(t *testing.T) {
	reading, err := parseCPU("CPU utilization for five seconds: 31%/12%; one minute: 19%; five minutes: 13%")
	require.NoError(t, err)
	assert.InDelta(t, 13, reading.reading, 0.001)

	_, err = parseCPU("CPU utilization for five seconds: 31%/12%")
	assert.Error(t, err)
}

func TestParseInterfacesKeepsAbsentRates(t *testing.T) {
	ifaces := parseInterfaces(`GigabitEthernet1/0/3 is up, line protocol is up
  Hardware is Gigabit Ethernet, address is 00aa.bb11.cc03 (bia 00aa.bb11.cc03)
  MTU 1500 bytes, BW 1000000 Kbit/sec, DLY 10 usec,
`)
	require.Len(t, ifaces, 1)
	assert.True(t, ifaces[0].linkUp)
	assert.InDelta(t, 1000000, ifaces[0].bandwidthKbps, 0.001)
	assert.Nil(t, ifaces[0].inKbps, "unreported rate stays absent")
	assert.Nil(t, ifaces[0].outKbps)
}
