package capability

import (
	"github.com/psantana5/edgecap/pkg/models"
)

// Advise returns operator-facing hints for improving a node's contribution
func (p Policy) Advise(s models.DeviceSnapshot) []string {
	var advice []string

	if s.CPUCores < 4 {
		advice = append(advice, "upgrade to a device with at least 4 CPU cores for better training throughput")
	}
	if s.MemoryMB < 2048 {
		advice = append(advice, "more memory allows a larger recommended model dimension")
	}

	switch {
	case s.NetworkType.Metered():
		advice = append(advice, "switch to WiFi to reduce tick interval and enable dense snapshots")
	case s.NetworkType == models.NetworkUnknown:
		advice = append(advice, "network type is unknown; check connectivity reporting")
	case s.NetworkType == models.NetworkOffline:
		advice = append(advice, "device is offline; training is paused until connectivity returns")
	}

	if s.BatteryKnown() && !s.IsCharging && s.BatteryLevel < 0.3 {
		advice = append(advice, "connect a charger for long training sessions")
	}

	return advice
}

// Advise applies the default policy
func Advise(s models.DeviceSnapshot) []string {
	return DefaultPolicy().Advise(s)
}
