package models

import (
	"math"
	"time"
)

const (
	// DefaultMemoryMB is the memory assumed before any telemetry arrives
	DefaultMemoryMB uint32 = 2048
	// DefaultCPUCores is the core count assumed before any telemetry arrives
	DefaultCPUCores uint32 = 4
	// BatteryUnknown is the sentinel battery level for "not reported"
	BatteryUnknown = -1.0

	// MinMemoryMB and MinCPUCores are storage floors; a snapshot never holds zero
	MinMemoryMB uint32 = 1
	MinCPUCores uint32 = 1
)

// SnapshotSource records who last wrote a snapshot
type SnapshotSource string

const (
	SourceDefaults  SnapshotSource = "defaults"
	SourceManual    SnapshotSource = "manual"
	SourceTelemetry SnapshotSource = "telemetry"
)

// DeviceSnapshot is the last-known device telemetry of a node.
// It is a plain value: copies never alias the owner's state.
type DeviceSnapshot struct {
	MemoryMB        uint32         `json:"memory_mb" yaml:"memory_mb"`
	CPUCores        uint32         `json:"cpu_cores" yaml:"cpu_cores"`
	NetworkType     NetworkType    `json:"network_type" yaml:"network_type"`
	BatteryLevel    float64        `json:"battery_level" yaml:"battery_level"` // [0,1] or -1 (unknown)
	IsCharging      bool           `json:"is_charging" yaml:"is_charging"`
	Source          SnapshotSource `json:"source" yaml:"source"`
	LastRefreshedAt time.Time      `json:"last_refreshed_at" yaml:"last_refreshed_at"`
	UpdatedAt       time.Time      `json:"updated_at" yaml:"updated_at"`
}

// DefaultSnapshot returns the conservative starting snapshot of every node
func DefaultSnapshot() DeviceSnapshot {
	return DeviceSnapshot{
		MemoryMB:     DefaultMemoryMB,
		CPUCores:     DefaultCPUCores,
		NetworkType:  NetworkUnknown,
		BatteryLevel: BatteryUnknown,
		IsCharging:   false,
		Source:       SourceDefaults,
	}
}

// BatteryKnown reports whether the battery level was actually reported
func (s DeviceSnapshot) BatteryKnown() bool {
	return s.BatteryLevel != BatteryUnknown
}

// Refreshed reports whether telemetry has ever been applied
func (s DeviceSnapshot) Refreshed() bool {
	return !s.LastRefreshedAt.IsZero()
}

// Age returns the time since the last successful refresh.
// A snapshot that was never refreshed has no meaningful age and returns -1.
func (s DeviceSnapshot) Age(now time.Time) time.Duration {
	if !s.Refreshed() {
		return -1
	}
	return now.Sub(s.LastRefreshedAt)
}

// IsStale reports whether the telemetry is older than maxAge.
// A never-refreshed snapshot is always stale.
func (s DeviceSnapshot) IsStale(now time.Time, maxAge time.Duration) bool {
	if !s.Refreshed() {
		return true
	}
	return s.Age(now) > maxAge
}

// WithFloors returns a copy with memory and cores raised to their storage floors
func (s DeviceSnapshot) WithFloors() DeviceSnapshot {
	if s.MemoryMB < MinMemoryMB {
		s.MemoryMB = MinMemoryMB
	}
	if s.CPUCores < MinCPUCores {
		s.CPUCores = MinCPUCores
	}
	return s
}

// ClampBatteryLevel enforces the battery invariant: the exact unknown sentinel
// passes through, everything else lands in [0,1]. NaN has no nearest bound
// and is treated as empty.
func ClampBatteryLevel(level float64) float64 {
	switch {
	case level == BatteryUnknown:
		return BatteryUnknown
	case math.IsNaN(level):
		return 0
	case level < 0:
		return 0
	case level > 1:
		return 1
	default:
		return level
	}
}
