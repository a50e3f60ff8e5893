package normalise

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/susgrid/poweff-collector/pkg/models"
)

// assumedPSUEfficiency is used when a PSU reports only one of Pin/Pout.
const assumedPSUEfficiency = 0.88

// psuAvailableWatts holds nominal available output for known PSU product
// IDs. PIDs not listed fall back to the wattage encoded in the PID itself.
var psuAvailableWatts = map[string]float64{
	"PWR-C1-715WAC":    715,
	"PWR-C1-1100WAC":   1100,
	"ASR1000X-AC-750W": 750,
	"NXA-PAC-650W-PE":  598,
	"N2200-PAC-400W":   400,
}

var (
	pidKilowattRe = regexp.MustCompile(`(\d+\.?\d*)KW`)
	pidWattRe     = regexp.MustCompile(`(\d+)W`)
)

// buildResult assembles the canonical records of one collection pass from
// the family parser's intermediate products. Absent stays absent: a field
// only appears when at least one measurement backs it.
func buildResult(site models.Site, device models.Device, at time.Time, assets []asset, ifaces []ifaceStats, sensors []sensorReading) *Result {
	result := &Result{}

	power := models.PowerMetricRecord{
		Timestamp: at,
		Site:      site.Name,
		Hostname:  device.Name,
		Family:    device.Family,
	}

	result.PSUs = buildPSURecords(device.Name, at, sensors, result)
	fillChassisPower(&power, result.PSUs)

	if avail := availablePower(assets); avail > 0 {
		power.PowerAvailable = models.Float(avail)
		if power.PowerIn != nil {
			power.PowerUtilization = models.Percent(*power.PowerIn * 100 / avail)
		}
	}

	result.Interfaces = buildInterfaceRecords(device.Name, at, ifaces)
	fillTraffic(&power, result.Interfaces)

	fillVitals(&power, sensors)

	if usableFieldCount(&power) == 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%s no usable fields parsed, dropping power record", device.Name))
	} else {
		result.Power = &power
	}
	return result
}

// buildPSURecords groups power sensors by location and derives per-PSU
// in/out/efficiency. A PSU reporting only voltage and current gets its
// power synthesised as V*I; one reporting a single side of the pair gets
// the other side estimated at the assumed efficiency.
func buildPSURecords(hostname string, at time.Time, sensors []sensorReading, result *Result) []models.PsuMetricRecord {
	byLocation := make(map[string]map[string]float64)
	for _, s := range sensors {
		switch s.name {
		case "Pin", "Pout", "Vin", "Vout", "Iin", "Iout":
			if byLocation[s.location] == nil {
				byLocation[s.location] = make(map[string]float64)
			}
			byLocation[s.location][s.name] = s.reading
		}
	}

	locations := make([]string, 0, len(byLocation))
	for loc := range byLocation {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	var records []models.PsuMetricRecord
	for _, loc := range locations {
		v := byLocation[loc]

		pin, hasPin := v["Pin"]
		pout, hasPout := v["Pout"]
		if !hasPin {
			if vin, ok1 := v["Vin"]; ok1 {
				if iin, ok2 := v["Iin"]; ok2 {
					pin, hasPin = vin*iin, true
				}
			}
		}
		if !hasPout {
			if vout, ok1 := v["Vout"]; ok1 {
				if iout, ok2 := v["Iout"]; ok2 {
					pout, hasPout = vout*iout, true
				}
			}
		}

		record := models.PsuMetricRecord{Timestamp: at, Hostname: hostname, PSU: loc}
		switch {
		case hasPin && hasPout:
			record.PowerIn = models.Float(pin)
			record.PowerOut = models.Float(pout)
			if pin > 0 {
				record.PowerEfficiency = models.Percent(pout * 100 / pin)
			}
		case hasPin:
			record.PowerIn = models.Float(pin)
			record.PowerOut = models.Float(pin * assumedPSUEfficiency)
			record.PowerEfficiency = models.Percent(assumedPSUEfficiency * 100)
		case hasPout:
			record.PowerOut = models.Float(pout)
			record.PowerIn = models.Float(pout / assumedPSUEfficiency)
			record.PowerEfficiency = models.Percent(assumedPSUEfficiency * 100)
		default:
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s PSU %s has no power measurements", hostname, loc))
			continue
		}
		records = append(records, record)
	}
	return records
}

func fillChassisPower(power *models.PowerMetricRecord, psus []models.PsuMetricRecord) {
	var in, out float64
	var hasIn, hasOut bool
	for _, psu := range psus {
		if psu.PowerIn != nil {
			in += *psu.PowerIn
			hasIn = true
		}
		if psu.PowerOut != nil {
			out += *psu.PowerOut
			hasOut = true
		}
	}
	if hasIn {
		power.PowerIn = models.Float(in)
	}
	if hasOut {
		power.PowerOut = models.Float(out)
	}
	if hasIn && hasOut && in > 0 {
		power.PowerEfficiency = models.Percent(out * 100 / in)
	}
}

// availablePower sums nominal PSU output over the asset list: known PIDs
// from the nominal table, unknown ones from the wattage encoded in the PID.
func availablePower(assets []asset) float64 {
	var total float64
	for _, a := range assets {
		if watts, ok := psuAvailableWatts[a.pid]; ok {
			total += watts
			continue
		}
		if m := pidKilowattRe.FindStringSubmatch(a.pid); m != nil {
			if kw, err := strconv.ParseFloat(m[1], 64); err == nil {
				total += kw * 1000
			}
			continue
		}
		if m := pidWattRe.FindStringSubmatch(a.pid); m != nil {
			if w, err := strconv.ParseFloat(m[1], 64); err == nil {
				total += w
			}
		}
	}
	return total
}

func buildInterfaceRecords(hostname string, at time.Time, ifaces []ifaceStats) []models.InterfaceMetricRecord {
	var records []models.InterfaceMetricRecord
	for _, iface := range ifaces {
		if !isPhysicalInterface(iface.name) || !iface.linkUp {
			continue
		}
		// Old gear occasionally reports zero bandwidth; utilization
		// would be meaningless.
		if iface.bandwidthKbps <= 0 {
			continue
		}
		record := models.InterfaceMetricRecord{
			Timestamp: at,
			Hostname:  hostname,
			Interface: iface.name,
			Bandwidth: models.Float(iface.bandwidthKbps),
		}
		record.TrafficIn = iface.inKbps
		record.TrafficOut = iface.outKbps
		if iface.inKbps != nil && iface.outKbps != nil {
			record.Utilization = models.Percent((*iface.inKbps + *iface.outKbps) * 100 / iface.bandwidthKbps)
		}
		records = append(records, record)
	}
	return records
}

func fillTraffic(power *models.PowerMetricRecord, ifaces []models.InterfaceMetricRecord) {
	var in, out float64
	var hasIn, hasOut bool
	for _, iface := range ifaces {
		if iface.TrafficIn != nil {
			in += *iface.TrafficIn
			hasIn = true
		}
		if iface.TrafficOut != nil {
			out += *iface.TrafficOut
			hasOut = true
		}
	}
	if hasIn {
		power.TrafficIn = models.Float(in)
	}
	if hasOut {
		power.TrafficOut = models.Float(out)
	}

	// Traffic in/out are Kbps; efficiency is watts per Gbps moved.
	if hasIn && hasOut && power.PowerIn != nil {
		totalGbps := (in + out) / 1e6
		if totalGbps > 0 {
			power.TrafficEfficiency = models.Float(*power.PowerIn / totalGbps)
		}
	}
}

func fillVitals(power *models.PowerMetricRecord, sensors []sensorReading) {
	var maxTemp float64
	var hasTemp bool
	for _, s := range sensors {
		switch {
		case s.name == "CPU-5Min":
			power.CPUUsage = models.Percent(s.reading)
		case s.name == "Memory":
			power.MemoryUsage = models.Percent(s.reading)
		case strings.EqualFold(s.units, "Celsius"):
			if !hasTemp || s.reading > maxTemp {
				maxTemp = s.reading
				hasTemp = true
			}
		}
	}
	if hasTemp {
		power.Temperature = models.Float(maxTemp)
	}
}

func usableFieldCount(power *models.PowerMetricRecord) int {
	fields := []*float64{
		power.PowerIn, power.PowerOut, power.PowerEfficiency,
		power.PowerAvailable, power.PowerUtilization,
		power.TrafficIn, power.TrafficOut, power.TrafficEfficiency,
		power.Temperature, power.CPUUsage, power.MemoryUsage,
	}
	count := 0
	for _, f := range fields {
		if f != nil {
			count++
		}
	}
	return count
}
