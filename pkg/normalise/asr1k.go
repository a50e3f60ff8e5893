package normalise

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/susgrid/poweff-collector/pkg/models"
)

// ASR1kNormaliser parses ASR 1000 series CLI output. These routers report
// per-supply voltage and current instead of power; Pin/Pout are synthesised
// as V*I during aggregation.
type ASR1kNormaliser struct{}

// NewASR1kNormaliser returns the ASR1k normaliser.
func NewASR1kNormaliser() *ASR1kNormaliser {
	return &ASR1kNormaliser{}
}

var _ Normaliser = (*ASR1kNormaliser)(nil)

func (n *ASR1kNormaliser) Commands() map[string]string {
	return map[string]string{
		"show-inventory":     "show inventory",
		"show-interfaces":    "show interfaces",
		"show-environment":   "show environment",
		"show-processes-cpu": "show processes cpu",
		"show-memory":        "show platform software status control-processor brief",
	}
}

func (n *ASR1kNormaliser) Normalise(site models.Site, device models.Device, samples []models.RawSample) (*Result, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%s no samples to normalise", device.Name)
	}
	byCommand := samplesByCommand(samples)
	at := collectionTime(samples)

	assets := parseInventory(byCommand["show-inventory"])
	ifaces := parseInterfaces(byCommand["show-interfaces"])

	var warnings []string
	sensors := n.parseSensors(byCommand, &warnings)

	result := buildResult(site, device, at, assets, ifaces, sensors)
	result.Warnings = append(warnings, result.Warnings...)
	return result, nil
}

// asr1kEnvRe matches one row of "show environment": sensor name (possibly
// "P0: Vin" style), slot, state, numeric reading and trailing units.
var asr1kEnvRe = regexp.MustCompile(`^\s*(\S+(?::\s*\S+)?)\s{2,}(\S+)\s+(\S+)\s+(-?\d+(?:\.\d+)?)\s*(.*)$`)

func (n *ASR1kNormaliser) parseSensors(byCommand map[string]string, warnings *[]string) []sensorReading {
	sensors := n.parseEnvironment(byCommand["show-environment"], warnings)

	if cpu, err := parseCPU(byCommand["show-processes-cpu"]); err == nil {
		sensors = append(sensors, *cpu)
	} else {
		*warnings = append(*warnings, fmt.Sprintf("cpu: %v", err))
	}
	if mem, err := parseMemory(byCommand["show-memory"]); err == nil {
		sensors = append(sensors, *mem)
	} else {
		*warnings = append(*warnings, fmt.Sprintf("memory: %v", err))
	}
	return sensors
}

// parseEnvironment turns sensor rows into readings. Voltage and current
// sensors keep their slot as location so that aggregation can pair Vin
// with Iin (and Vout with Iout) per supply; everything else is carried
// through with its own name and units.
func (n *ASR1kNormaliser) parseEnvironment(output string, warnings *[]string) []sensorReading {
	var sensors []sensorReading
	for _, line := range strings.Split(output, "\n") {
		m := asr1kEnvRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name, slot, state := m[1], m[2], m[3]
		reading, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			continue
		}
		units := firstField(m[5])

		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "vout"):
			sensors = append(sensors, sensorReading{location: slot, name: "Vout", state: state, units: "V", reading: reading})
		case strings.Contains(lower, "vin"):
			sensors = append(sensors, sensorReading{location: slot, name: "Vin", state: state, units: "V", reading: reading})
		case strings.Contains(lower, "iout"):
			sensors = append(sensors, sensorReading{location: slot, name: "Iout", state: state, units: "A", reading: reading})
		case strings.Contains(lower, "iin"):
			sensors = append(sensors, sensorReading{location: slot, name: "Iin", state: state, units: "A", reading: reading})
		default:
			sensors = append(sensors, sensorReading{location: slot, name: name, state: state, units: units, reading: reading})
		}
	}
	if len(sensors) == 0 {
		*warnings = append(*warnings, "environment: no sensors found")
	}
	return sensors
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) > 0 {
		return fields[0]
	}
	return ""
}
