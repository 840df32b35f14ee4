package capability

import (
	"fmt"
)

const (
	// DefaultLowBatteryThreshold pauses training below this level when discharging
	DefaultLowBatteryThreshold = 0.2
	// DefaultMidBatteryThreshold is the level above which ticking runs at full speed
	DefaultMidBatteryThreshold = 0.5
	// DefaultPauseMinMemoryMB is the absolute memory floor for training
	DefaultPauseMinMemoryMB uint32 = 256
	// DefaultPauseMinCPUCores is the absolute core floor for training
	DefaultPauseMinCPUCores uint32 = 2

	DefaultMinModelDim = 64
	DefaultMaxModelDim = 4096

	DefaultMinTickMS int64 = 1000
	DefaultMaxTickMS int64 = 300000
)

// Policy holds every threshold the deriver uses.
// The zero value is not usable; start from DefaultPolicy.
type Policy struct {
	LowBatteryThreshold float64 `json:"low_battery_threshold" yaml:"low_battery_threshold"`
	MidBatteryThreshold float64 `json:"mid_battery_threshold" yaml:"mid_battery_threshold"`
	PauseMinMemoryMB    uint32  `json:"pause_min_memory_mb" yaml:"pause_min_memory_mb"`
	PauseMinCPUCores    uint32  `json:"pause_min_cpu_cores" yaml:"pause_min_cpu_cores"`
	MinModelDim         int     `json:"min_model_dim" yaml:"min_model_dim"`
	MaxModelDim         int     `json:"max_model_dim" yaml:"max_model_dim"`
	MinTickMS           int64   `json:"min_tick_ms" yaml:"min_tick_ms"`
	MaxTickMS           int64   `json:"max_tick_ms" yaml:"max_tick_ms"`
}

// DefaultPolicy returns the conservative defaults shared by every node
func DefaultPolicy() Policy {
	return Policy{
		LowBatteryThreshold: DefaultLowBatteryThreshold,
		MidBatteryThreshold: DefaultMidBatteryThreshold,
		PauseMinMemoryMB:    DefaultPauseMinMemoryMB,
		PauseMinCPUCores:    DefaultPauseMinCPUCores,
		MinModelDim:         DefaultMinModelDim,
		MaxModelDim:         DefaultMaxModelDim,
		MinTickMS:           DefaultMinTickMS,
		MaxTickMS:           DefaultMaxTickMS,
	}
}

// Validate checks that the policy keeps the deriver total and bounded
func (p Policy) Validate() error {
	if p.LowBatteryThreshold <= 0 || p.LowBatteryThreshold >= 1 {
		return fmt.Errorf("low_battery_threshold must be in (0,1), got %.2f", p.LowBatteryThreshold)
	}
	if p.MidBatteryThreshold < p.LowBatteryThreshold || p.MidBatteryThreshold >= 1 {
		return fmt.Errorf("mid_battery_threshold must be in [%.2f,1), got %.2f",
			p.LowBatteryThreshold, p.MidBatteryThreshold)
	}
	if p.MinModelDim <= 0 || p.MaxModelDim < p.MinModelDim {
		return fmt.Errorf("model dim bounds invalid: min=%d max=%d", p.MinModelDim, p.MaxModelDim)
	}
	if p.MinTickMS <= 0 || p.MaxTickMS < p.MinTickMS {
		return fmt.Errorf("tick bounds invalid: min=%dms max=%dms", p.MinTickMS, p.MaxTickMS)
	}
	return nil
}
