package normalise

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/susgrid/poweff-collector/pkg/models"
)

// Cat9300Normaliser parses Catalyst 9300 (IOS-XE) CLI output. Power comes
// from per-supply POWin/POWout sensors reported in milliwatts by
// "show environment all".
type Cat9300Normaliser struct{}

// NewCat9300Normaliser returns the Catalyst 9300 normaliser.
func NewCat9300Normaliser() *Cat9300Normaliser {
	return &Cat9300Normaliser{}
}

var _ Normaliser = (*Cat9300Normaliser)(nil)

func (n *Cat9300Normaliser) Commands() map[string]string {
	return map[string]string{
		"show-inventory":     "show inventory",
		"show-interfaces":    "show interfaces",
		"show-environment":   "show environment all",
		"show-processes-cpu": "show processes cpu",
		"show-memory":        "show platform software status control-processor brief",
	}
}

func (n *Cat9300Normaliser) Normalise(site models.Site, device models.Device, samples []models.RawSample) (*Result, error) {
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

// cat9300EnvRe matches one row of the environmental sensor table:
// sensor name, location, state, numeric reading, units.
var cat9300EnvRe = regexp.MustCompile(`^\s*(\S+(?: \S+)*?)\s{2,}(\S+)\s+(\S+)\s+(-?\d+(?:\.\d+)?)\s*(\S*)`)

func (n *Cat9300Normaliser) parseSensors(byCommand map[string]string, warnings *[]string) []sensorReading {
	var sensors []sensorReading
	sensors = append(sensors, n.parsePowerSensors(byCommand["show-environment"], warnings)...)
	sensors = append(sensors, n.parseTemperature(byCommand["show-environment"], warnings)...)

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

// parsePowerSensors extracts POWin/POWout readings, grouped per supply by
// the sensor name prefix (e.g. "PS1 POWin" and "PS1 POWout" belong to
// supply PS1). Milliwatt readings are converted to watts.
func (n *Cat9300Normaliser) parsePowerSensors(output string, warnings *[]string) []sensorReading {
	var sensors []sensorReading
	for _, line := range strings.Split(output, "\n") {
		m := cat9300EnvRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name, state, units := m[1], m[3], m[5]
		reading, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			continue
		}

		switch strings.ToLower(units) {
		case "mw":
			reading /= 1000
		case "w", "watt", "watts":
		default:
			klog.V(4).Infof("[normalise] skipping sensor %q, units %q not watts", name, units)
			continue
		}

		var poweffName string
		lower := strings.ToLower(name)
		switch {
		case strings.Contains(lower, "powin"):
			poweffName = "Pin"
		case strings.Contains(lower, "powout"):
			poweffName = "Pout"
		default:
			continue
		}

		sensors = append(sensors, sensorReading{
			location: supplyName(name),
			name:     poweffName,
			state:    state,
			units:    "W",
			reading:  reading,
		})
	}
	if len(sensors) == 0 {
		*warnings = append(*warnings, "environment: no power sensors found")
	}
	return sensors
}

// parseTemperature extracts the inlet temperature sensors. Platform state
// colours are mapped onto the Normal/Warning/Critical vocabulary.
func (n *Cat9300Normaliser) parseTemperature(output string, warnings *[]string) []sensorReading {
	var sensors []sensorReading
	for _, line := range strings.Split(output, "\n") {
		m := cat9300EnvRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name, state, units := m[1], m[3], m[5]
		if !strings.Contains(strings.ToLower(name), "inlet") {
			continue
		}
		if !strings.EqualFold(units, "celsius") {
			*warnings = append(*warnings, fmt.Sprintf("temperature: unrecognised unit %q", units))
			continue
		}
		reading, err := strconv.ParseFloat(m[4], 64)
		if err != nil {
			continue
		}
		sensors = append(sensors, sensorReading{
			location: name,
			name:     "Temp",
			state:    temperatureState(state),
			units:    "Celsius",
			reading:  reading,
		})
	}
	return sensors
}

// supplyName returns the grouping key for a power sensor: the first word
// of the sensor name ("PS1 POWin" belongs to PS1).
func supplyName(sensor string) string {
	fields := strings.Fields(sensor)
	if len(fields) > 0 {
		return fields[0]
	}
	return sensor
}

func temperatureState(state string) string {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "normal", "good", "green":
		return "Normal"
	case "yellow":
		return "Warning"
	case "red":
		return "Critical"
	default:
		return state
	}
}

func collectionTime(samples []models.RawSample) time.Time {
	at := samples[0].CollectedAt
	for _, s := range samples[1:] {
		if s.CollectedAt.Before(at) && !s.CollectedAt.IsZero() {
			at = s.CollectedAt
		}
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return at
}
