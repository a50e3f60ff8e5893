package models

import "time"

// PowerMetricRecord is the canonical per-device metric unit produced by the
// normalisers and enriched by the emissions processor. Every numeric field
// is a pointer: nil means the measurement is explicitly absent. Fields are
// never defaulted to zero on parse failure.
type PowerMetricRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Site      string    `json:"site"`
	Hostname  string    `json:"hostname"`
	Family    Family    `json:"family"`

	// PowerIn/PowerOut are chassis totals in watts.
	PowerIn  *float64 `json:"power_in,omitempty"`
	PowerOut *float64 `json:"power_out,omitempty"`

	// PowerEfficiency is PowerOut over PowerIn as a percentage, 0-100.
	PowerEfficiency *float64 `json:"power_efficiency,omitempty"`

	// PowerAvailable is the summed nominal output of installed PSUs, watts.
	PowerAvailable *float64 `json:"power_available,omitempty"`

	// PowerUtilization is PowerIn over PowerAvailable as a percentage, 0-100.
	PowerUtilization *float64 `json:"power_utilization,omitempty"`

	// TrafficIn/TrafficOut are totals across physical interfaces, Kbps.
	TrafficIn  *float64 `json:"traffic_in,omitempty"`
	TrafficOut *float64 `json:"traffic_out,omitempty"`

	// TrafficEfficiency is watts consumed per Gbps moved.
	TrafficEfficiency *float64 `json:"traffic_efficiency,omitempty"`

	// Temperature is the highest sensor reading in Celsius.
	Temperature *float64 `json:"temperature,omitempty"`

	// CPUUsage and MemoryUsage are percentages, 0-100.
	CPUUsage    *float64 `json:"cpu_usage,omitempty"`
	MemoryUsage *float64 `json:"memory_usage,omitempty"`

	// CO2Intensity is the grid carbon intensity applied, gCO2e/kWh.
	CO2Intensity *float64 `json:"co2_intensity,omitempty"`

	// CO2Emission is the derived emission for one collection interval,
	// gCO2e. Absent unless PowerIn and CO2Intensity are both present.
	CO2Emission *float64 `json:"co2_emission,omitempty"`
}

// PsuMetricRecord is the per-PSU breakdown behind a PowerMetricRecord,
// keyed by timestamp + hostname + PSU slot name.
type PsuMetricRecord struct {
	Timestamp       time.Time `json:"timestamp"`
	Hostname        string    `json:"hostname"`
	PSU             string    `json:"psu"`
	PowerIn         *float64  `json:"power_in,omitempty"`
	PowerOut        *float64  `json:"power_out,omitempty"`
	PowerEfficiency *float64  `json:"power_efficiency,omitempty"`
}

// InterfaceMetricRecord is the per-interface traffic breakdown. Bandwidth
// and traffic rates are in Kbps, utilization in percent.
type InterfaceMetricRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Hostname    string    `json:"hostname"`
	Interface   string    `json:"interface"`
	Bandwidth   *float64  `json:"bandwidth,omitempty"`
	TrafficIn   *float64  `json:"traffic_in,omitempty"`
	TrafficOut  *float64  `json:"traffic_out,omitempty"`
	Utilization *float64  `json:"utilization,omitempty"`
}

// MetricEnvelope carries all records from one device collection pass to the
// publisher. Records within the envelope keep timestamp order; ordering
// across envelopes from different devices is not guaranteed.
type MetricEnvelope struct {
	CollectionID string                  `json:"collection_id"`
	Device       string                  `json:"device"`
	Site         string                  `json:"site"`
	Power        *PowerMetricRecord      `json:"power,omitempty"`
	PSUs         []PsuMetricRecord       `json:"psus,omitempty"`
	Interfaces   []InterfaceMetricRecord `json:"interfaces,omitempty"`
}

// Float wraps a measured value for an optional record field.
func Float(v float64) *float64 { return &v }

// Percent bounds a computed percentage to [0, 100] before wrapping it.
func Percent(v float64) *float64 {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return &v
}
