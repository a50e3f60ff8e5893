package normalise

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susgrid/poweff-collector/pkg/models"
)

const asr1kInventory = `
NAME: "Chassis", DESCR: "Cisco ASR1001-X Chassis"
PID: ASR1001-X         , VID: V07  , SN: FXS3333C3CC

NAME: "Power Supply Module 0", DESCR: "Cisco ASR1001-X AC Power Supply"
PID: ASR1000X-AC-750W  , VID: V01  , SN: ART4444D4DD
`

const asr1kEnvironment = `
Number of Critical alarms:  0
Number of Major alarms:     0
Number of Minor alarms:     0

  Sensor List:  Environmental Monitoring
  Sensor           Location          State             Reading
  V1: VMA          R0                Normal            1801
  P0: Vin          P0                Normal            230         V AC
  P0: Iin          P0                Normal            1           A
  P0: Vout         P0                Normal            12          V DC
  P0: Iout         P0                Normal            17          A
  P1: Vin          P1                Normal            230         V AC
  P1: Iin          P1                Normal            1           A
  Temp: Inlet      R0                Normal            28          Celsius
  Temp: Outlet     R0                Normal            41          Celsius
`

const asr1kInterfaces = `GigabitEthernet0/0/0 is up, line protocol is up
  Hardware is BUILT-IN-2T+6X1GE, address is 00cc.dd22.ee01 (bia 00cc.dd22.ee01)
  MTU 1500 bytes, BW 1000000 Kbit/sec, DLY 10 usec,
  5 minute input rate 4000000 bits/sec, 420 packets/sec
  5 minute output rate 3000000 bits/sec, 377 packets/sec
Loopback0 is up, line protocol is up
  Hardware is Loopback
  MTU 1514 bytes, BW 8000000 Kbit/sec, DLY 5000 usec,
`

func asr1kSamples(outputs map[string]string) []models.RawSample {
	at := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	samples := make([]models.RawSample, 0, len(outputs))
	for command, output := range outputs {
		samples = append(samples, models.RawSample{
			CollectionID: "pass-2",
			Device:       "edge-sw-01",
			Command:      command,
			Output:       output,
			CollectedAt:  at,
		})
	}
	return samples
}

func TestASR1kNormaliseSynthesisesPowerFromVoltageCurrent(t *testing.T) {
	n := NewASR1kNormaliser()
	result, err := n.Normalise(testSite(), testDevice(models.FamilyASR1k), asr1kSamples(map[string]string{
		"show-inventory":   asr1kInventory,
		"show-environment": asr1kEnvironment,
		"show-interfaces":  asr1kInterfaces,
	}))
	require.NoError(t, err)
	require.NotNil(t, result.Power)

	// P0 reports both sides: Pin = 230*1, Pout = 12*17. P1 reports only
	// the input side; output is estimated at the assumed efficiency.
	require.Len(t, result.PSUs, 2)

	p0 := result.PSUs[0]
	assert.Equal(t, "P0", p0.PSU)
	assert.InDelta(t, 230, *p0.PowerIn, 0.001)
	assert.InDelta(t, 204, *p0.PowerOut, 0.001)
	assert.InDelta(t, 204.0*100/230, *p0.PowerEfficiency, 0.01)

	p1 := result.PSUs[1]
	assert.Equal(t, "P1", p1.PSU)
	assert.InDelta(t, 230, *p1.PowerIn, 0.001)
	assert.InDelta(t, 230*0.88, *p1.PowerOut, 0.001)
	assert.InDelta(t, 88, *p1.PowerEfficiency, 0.001)

	power := result.Power
	require.NotNil(t, power.PowerIn)
	assert.InDelta(t, 460, *power.PowerIn, 0.001)
	require.NotNil(t, power.PowerOut)
	assert.InDelta(t, 204+230*0.88, *power.PowerOut, 0.001)

	// ASR1000X-AC-750W from the nominal output table.
	require.NotNil(t, power.PowerAvailable)
	assert.InDelta(t, 750, *power.PowerAvailable, 0.001)

	// Highest Celsius reading wins.
	require.NotNil(t, power.Temperature)
	assert.InDelta(t, 41, *power.Temperature, 0.001)

	// Loopback0 is filtered; only the physical port counts.
	require.Len(t, result.Interfaces, 1)
	assert.Equal(t, "GigabitEthernet0/0/0", result.Interfaces[0].Interface)
	require.NotNil(t, power.TrafficIn)
	assert.InDelta(t, 4000, *power.TrafficIn, 0.001)
	require.NotNil(t, power.TrafficOut)
	assert.InDelta(t, 3000, *power.TrafficOut, 0.001)

	// CPU and memory samples were not collected this pass.
	assert.Nil(t, power.CPUUsage)
	assert.Nil(t, power.MemoryUsage)
	assert.NotEmpty(t, result.Warnings)
}

func TestASR1kAvailablePowerFromPIDWattage(t *testing.T) {
	// A PID absent from the nominal table falls back to the wattage
	// encoded in the PID string.
	assets := parseInventory(`
NAME: "Power Supply Module 0", DESCR: "AC Power Supply"
PID: ASR1013-PWR-1.4KW , VID: V01  , SN: ART5555E5EE
`)
	require.Len(t, assets, 1)
	assert.InDelta(t, 1400, availablePower(assets), 0.001)

	assets = parseInventory(`
NAME: "Power Supply Module 0", DESCR: "AC Power Supply"
PID: PWR-4430-AC-950W  , VID: V01  , SN: ART6666F6FF
`)
	require.Len(t, assets, 1)
	assert.InDelta(t, 950, availablePower(assets), 0.001)
}
