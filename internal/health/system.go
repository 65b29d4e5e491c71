package health

// System is the device-level state reported by the computer system and its
// manager. It describes the device; it does not enter the rollup.
type System struct {
	Health          Severity `json:"health"`
	RawHealth       string   `json:"raw_health,omitempty"`
	HealthRollup    Severity `json:"health_rollup"`
	PowerState      string   `json:"power_state,omitempty"`
	ProcessorCount  int      `json:"processor_count,omitempty"`
	MemoryGiB       float64  `json:"memory_gib,omitempty"`
	BIOSVersion     string   `json:"bios_version,omitempty"`
	FirmwareVersion string   `json:"firmware_version,omitempty"`
	RedfishVersion  string   `json:"redfish_version,omitempty"`
}

// UnknownSystem is the state of a device whose system resource was never
// read.
func UnknownSystem() System {
	return System{Health: Unknown, HealthRollup: Unknown}
}

func (s System) normalized() System {
	if !s.Health.Valid() {
		s.Health = Unknown
	}
	if !s.HealthRollup.Valid() {
		s.HealthRollup = Unknown
	}

	return s
}
