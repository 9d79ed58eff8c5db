package main

import (
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// hostProbe logs the test rig's ambient conditions next to each trial. The
// adapter has no sensor of its own, so the closest available reading is the
// host's thermal zone; voltage is not exposed by the platform and stays zero.
type hostProbe struct{}

func (hostProbe) TemperatureC() float64 {
	temps, err := host.SensorsTemperatures()
	if err != nil || len(temps) == 0 {
		return 0
	}

	// Prefer a CPU/package sensor; fall back to the first reading.
	for _, t := range temps {
		key := strings.ToLower(t.SensorKey)
		if strings.Contains(key, "cpu") || strings.Contains(key, "package") || strings.Contains(key, "coretemp") {
			return t.Temperature
		}
	}
	return temps[0].Temperature
}

func (hostProbe) VoltageV() float64 { return 0 }
