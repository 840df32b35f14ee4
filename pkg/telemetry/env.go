package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/psantana5/edgecap/pkg/models"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces the variables read by Env
const EnvPrefix = "EDGECAP"

// Profiles are canned device classes selectable with EDGECAP_DEVICE_PROFILE
var Profiles = map[string]Reading{
	"low": {
		MemoryMB:     512,
		CPUCores:     2,
		NetworkType:  string(models.NetworkCellular),
		BatteryLevel: 0.5,
		IsCharging:   false,
	},
	"mid": {
		MemoryMB:     1024,
		CPUCores:     4,
		NetworkType:  string(models.NetworkCellular5G),
		BatteryLevel: 0.7,
		IsCharging:   false,
	},
	"high": {
		MemoryMB:     2048,
		CPUCores:     8,
		NetworkType:  string(models.NetworkWiFi),
		BatteryLevel: 0.9,
		IsCharging:   true,
	},
	"desktop": {
		MemoryMB:     2048,
		CPUCores:     4,
		NetworkType:  string(models.NetworkWiFi),
		BatteryLevel: models.BatteryUnknown,
		IsCharging:   true,
	},
}

// Env reads telemetry from EDGECAP_* environment variables:
// DEVICE_PROFILE, MEMORY_MB, CPU_CORES, NETWORK_TYPE, BATTERY_LEVEL, BATTERY_CHARGING.
// Individual variables override the profile. With nothing set, Fill fails so
// the node keeps what it has.
type Env struct {
	v *viper.Viper
}

// NewEnv creates an environment-backed source
func NewEnv() *Env {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return &Env{v: v}
}

// Fill implements Source. The environment is re-read on every call.
func (e *Env) Fill(_ context.Context, r *Reading) error {
	reading := Reading{
		MemoryMB:     models.DefaultMemoryMB,
		CPUCores:     models.DefaultCPUCores,
		NetworkType:  string(models.NetworkUnknown),
		BatteryLevel: models.BatteryUnknown,
	}
	configured := false

	if name := strings.ToLower(e.v.GetString("device_profile")); name != "" {
		profile, ok := Profiles[name]
		if !ok {
			return fmt.Errorf("unknown device profile %q", name)
		}
		reading = profile
		configured = true
	}

	if raw := e.v.GetString("memory_mb"); raw != "" {
		memoryMB, err := parseUint32("memory_mb", raw)
		if err != nil {
			return err
		}
		reading.MemoryMB = memoryMB
		configured = true
	}

	if raw := e.v.GetString("cpu_cores"); raw != "" {
		cores, err := parseUint32("cpu_cores", raw)
		if err != nil {
			return err
		}
		reading.CPUCores = cores
		configured = true
	}

	if raw := e.v.GetString("network_type"); raw != "" {
		reading.NetworkType = raw
		configured = true
	}

	if raw := e.v.GetString("battery_level"); raw != "" {
		level, err := strconv.ParseFloat(strings.TrimSpace(raw), 32)
		if err != nil {
			return fmt.Errorf("invalid battery_level %q: %w", raw, err)
		}
		reading.BatteryLevel = float32(level)
		configured = true
	}

	if raw := e.v.GetString("battery_charging"); raw != "" {
		reading.IsCharging = e.v.GetBool("battery_charging")
		configured = true
	}

	if !configured {
		return ErrNotConfigured
	}

	*r = reading
	return nil
}

func parseUint32(key, raw string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return uint32(v), nil
}
