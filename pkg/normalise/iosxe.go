package normalise

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Intermediate parse products shared by the IOS-XE based families. Field
// presence is tracked explicitly so absence survives to the records.

type asset struct {
	entity      string
	description string
	pid         string
	serial      string
	vid         string
	slot        string
}

type ifaceStats struct {
	name          string
	hardwareType  string
	linkUp        bool
	bandwidthKbps float64
	inKbps        *float64
	outKbps       *float64
	inPps         *float64
	outPps        *float64
}

// sensorReading is one normalised environmental reading. Names follow the
// POWEFF sensor vocabulary: Pin, Pout, Vin, Vout, Iin, Iout, CPU-5Min,
// Memory, Temp; anything else is carried through untouched.
type sensorReading struct {
	location string
	name     string
	state    string
	units    string
	reading  float64
}

var (
	inventoryNameRe = regexp.MustCompile(`NAME:\s*"([^"]*)"\s*,\s*DESCR:\s*"([^"]*)"`)
	inventoryPIDRe  = regexp.MustCompile(`PID:\s*(\S*)\s*,\s*VID:\s*(\S*)\s*,\s*SN:\s*(\S*)`)

	ifaceHeaderRe = regexp.MustCompile(`^(\S+) is ([^,]+), line protocol is (\S+)`)
	ifaceHwRe     = regexp.MustCompile(`Hardware is ([^,]+)`)
	ifaceBwRe     = regexp.MustCompile(`BW (\d+) Kbit`)
	ifaceInRe     = regexp.MustCompile(`input rate (\d+) bits/sec, (\d+) packets/sec`)
	ifaceOutRe    = regexp.MustCompile(`output rate (\d+) bits/sec, (\d+) packets/sec`)

	cpuFiveMinRe = regexp.MustCompile(`five minutes?: (\d+(?:\.\d+)?)%`)

	// First data row of "show platform software status control-processor
	// brief" memory section: slot, status, total, used (pct), free (pct).
	memoryRowRe = regexp.MustCompile(`(?m)^\s*(\S+)\s+(?:Healthy|Warning|Critical)\s+(\d+)\s+(\d+)\s*\(\s*\d+%?\)\s+(\d+)\s*\(\s*\d+%?\)`)

	physicalIfaceRe = regexp.MustCompile(`(?i)ethernet\s?[\d/]+|gige\s?[\d/]+|mgmteth`)
	virtualIfaceRe  = regexp.MustCompile(`(?i)\.\d+$|^Loopback|^Port-channel|^Vlan|^mgmt|^Po\d|^Tunnel|^Bundle`)
)

// parseInventory extracts the asset list from "show inventory". The first
// asset is tagged as the chassis, matching how the device reports itself.
func parseInventory(output string) []asset {
	var assets []asset
	var current *asset

	for _, line := range strings.Split(output, "\n") {
		if m := inventoryNameRe.FindStringSubmatch(line); m != nil {
			assets = append(assets, asset{
				entity:      strings.TrimSpace(m[1]),
				description: strings.TrimSpace(m[2]),
				slot:        "None",
			})
			current = &assets[len(assets)-1]
			continue
		}
		if m := inventoryPIDRe.FindStringSubmatch(line); m != nil && current != nil {
			current.pid = normaliseInventoryField(m[1])
			current.vid = normaliseInventoryField(m[2])
			current.serial = normaliseInventoryField(m[3])
			current = nil
		}
	}

	if len(assets) > 0 {
		assets[0].slot = "Chassis"
	}
	return assets
}

func normaliseInventoryField(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "N/A") {
		return "NA"
	}
	return v
}

// parseInterfaces walks "show interfaces" output block by block. Data
// rates stay absent on interfaces that do not report them (loopbacks and
// the like); they are filtered later anyway.
func parseInterfaces(output string) []ifaceStats {
	var interfaces []ifaceStats
	var current *ifaceStats

	for _, line := range strings.Split(output, "\n") {
		if m := ifaceHeaderRe.FindStringSubmatch(line); m != nil {
			interfaces = append(interfaces, ifaceStats{
				name:   m[1],
				linkUp: strings.Contains(m[2], "up") && m[3] == "up",
			})
			current = &interfaces[len(interfaces)-1]
			continue
		}
		if current == nil {
			continue
		}
		if m := ifaceHwRe.FindStringSubmatch(line); m != nil {
			current.hardwareType = strings.TrimSpace(m[1])
		}
		if m := ifaceBwRe.FindStringSubmatch(line); m != nil {
			if bw, err := strconv.ParseFloat(m[1], 64); err == nil {
				current.bandwidthKbps = bw
			}
		}
		if m := ifaceInRe.FindStringSubmatch(line); m != nil {
			if bps, err := strconv.ParseFloat(m[1], 64); err == nil {
				kbps := bps / 1000
				current.inKbps = &kbps
			}
			if pps, err := strconv.ParseFloat(m[2], 64); err == nil {
				current.inPps = &pps
			}
		}
		if m := ifaceOutRe.FindStringSubmatch(line); m != nil {
			if bps, err := strconv.ParseFloat(m[1], 64); err == nil {
				kbps := bps / 1000
				current.outKbps = &kbps
			}
			if pps, err := strconv.ParseFloat(m[2], 64); err == nil {
				current.outPps = &pps
			}
		}
	}
	return interfaces
}

// isPhysicalInterface filters out loopbacks, VLANs, port-channels,
// tunnels, management ports and subinterfaces.
func isPhysicalInterface(name string) bool {
	if virtualIfaceRe.MatchString(name) {
		return false
	}
	return physicalIfaceRe.MatchString(strings.ToLower(name))
}

// parseCPU reads the five-minute average from "show processes cpu".
func parseCPU(output string) (*sensorReading, error) {
	m := cpuFiveMinRe.FindStringSubmatch(output)
	if m == nil {
		return nil, fmt.Errorf("no five-minute CPU average found")
	}
	reading, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil, fmt.Errorf("CPU average %q is not numeric", m[1])
	}
	return &sensorReading{
		location: "Chassis",
		name:     "CPU-5Min",
		state:    "NA",
		units:    "Percentage",
		reading:  reading,
	}, nil
}

// parseMemory reads the control-processor memory row and cross-checks the
// totals before trusting them.
func parseMemory(output string) (*sensorReading, error) {
	m := memoryRowRe.FindStringSubmatch(output)
	if m == nil {
		return nil, fmt.Errorf("no memory status row found")
	}
	total, err1 := strconv.ParseFloat(m[2], 64)
	used, err2 := strconv.ParseFloat(m[3], 64)
	free, err3 := strconv.ParseFloat(m[4], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, fmt.Errorf("memory figures are not numeric")
	}
	if total <= 0 || math.Abs(free+used-total) > 10 {
		return nil, fmt.Errorf("memory figures do not add up (total=%v used=%v free=%v)", total, used, free)
	}
	reading := math.Round(used/total*100*100) / 100
	return &sensorReading{
		location: "Chassis",
		name:     "Memory",
		state:    "NA",
		units:    "Percentage",
		reading:  reading,
	}, nil
}
