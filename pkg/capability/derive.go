package capability

import (
	"fmt"
	"math"

	"github.com/psantana5/edgecap/pkg/models"
)

// Pause reasons reported in descriptors
const (
	ReasonLowBattery         = "low_battery"
	ReasonOffline            = "offline"
	ReasonInsufficientMemory = "insufficient_memory"
	ReasonInsufficientCPU    = "insufficient_cpu"
)

// Upper bounds (exclusive) of the memory tiers, in MB.
// Tier i covers [bounds[i-1], bounds[i]); the last tier is open-ended.
var memoryTierBoundsMB = []uint32{512, 1024, 2048, 4096, 8192, 16384}

// Per-tier outputs, indexed by ResourceTier
var (
	tierModelDims = []int{64, 128, 256, 512, 1024, 2048, 4096}
	tierTickMS    = []int64{20000, 17500, 15000, 10000, 8000, 6500, 5000}
)

func memoryTier(memoryMB uint32) int {
	for i, bound := range memoryTierBoundsMB {
		if memoryMB < bound {
			return i
		}
	}
	return len(memoryTierBoundsMB)
}

// cpuTierCap is the highest tier a core count can unlock
func cpuTierCap(cores uint32) int {
	switch {
	case cores >= 8:
		return 6
	case cores >= 5:
		return 5
	case cores >= 3:
		return 4
	case cores == 2:
		return 2
	default:
		return 1
	}
}

// ResourceTier buckets a snapshot's memory and cores into 0..6.
// Both inputs only ever raise the tier, so every tier-driven output is monotonic.
func ResourceTier(s models.DeviceSnapshot) int {
	return min(memoryTier(s.MemoryMB), cpuTierCap(s.CPUCores))
}

// ModelDim returns the recommended model dimension for s
func (p Policy) ModelDim(s models.DeviceSnapshot) int {
	dim := tierModelDims[ResourceTier(s)]
	if dim < p.MinModelDim {
		dim = p.MinModelDim
	}
	if dim > p.MaxModelDim {
		dim = p.MaxModelDim
	}
	return dim
}

// batteryFactor is a per-mille slowdown for the battery state
func (p Policy) batteryFactor(s models.DeviceSnapshot) int64 {
	switch {
	case s.IsCharging:
		return 1000
	case !s.BatteryKnown():
		return 1500
	case s.BatteryLevel > p.MidBatteryThreshold:
		return 1000
	case s.BatteryLevel > p.LowBatteryThreshold:
		return 3000
	default:
		return 6000
	}
}

// networkFactor is a per-mille slowdown for costlier links
func networkFactor(nt models.NetworkType) int64 {
	switch nt {
	case models.NetworkWiFi, models.NetworkEthernet:
		return 1000
	case models.NetworkCellular5G, models.NetworkUnknown:
		return 1500
	case models.NetworkCellular:
		return 2000
	case models.NetworkOffline:
		return 4000
	default:
		return 1500
	}
}

// TickIntervalMS returns the recommended tick interval in milliseconds.
// The result is always within [MinTickMS, MaxTickMS] and never zero.
func (p Policy) TickIntervalMS(s models.DeviceSnapshot) int64 {
	interval := tierTickMS[ResourceTier(s)]
	interval = interval * p.batteryFactor(s) / 1000
	interval = interval * networkFactor(s.NetworkType) / 1000

	if interval < p.MinTickMS {
		interval = p.MinTickMS
	}
	if interval > p.MaxTickMS {
		interval = p.MaxTickMS
	}
	return interval
}

// PauseReasons lists every hard constraint s violates, in a fixed order.
// An unknown battery is never a constraint.
func (p Policy) PauseReasons(s models.DeviceSnapshot) []string {
	var reasons []string

	if s.BatteryKnown() && !s.IsCharging && s.BatteryLevel < p.LowBatteryThreshold {
		reasons = append(reasons, ReasonLowBattery)
	}
	if s.NetworkType == models.NetworkOffline {
		reasons = append(reasons, ReasonOffline)
	}
	if s.MemoryMB < p.PauseMinMemoryMB {
		reasons = append(reasons, ReasonInsufficientMemory)
	}
	if s.CPUCores < p.PauseMinCPUCores {
		reasons = append(reasons, ReasonInsufficientCPU)
	}

	return reasons
}

// ShouldPause reports whether training must stop for s
func (p Policy) ShouldPause(s models.DeviceSnapshot) bool {
	return len(p.PauseReasons(s)) > 0
}

// PerformanceScore rates s in [0,1], rounded to three decimals
func (p Policy) PerformanceScore(s models.DeviceSnapshot) float64 {
	score := 0.0

	cpuScore := math.Min(float64(s.CPUCores), 16) / 16
	score += cpuScore * 0.35

	memoryScore := math.Min(float64(s.MemoryMB), 16384) / 16384
	score += memoryScore * 0.35

	switch s.NetworkType {
	case models.NetworkWiFi, models.NetworkEthernet:
		score += 0.15
	case models.NetworkCellular5G:
		score += 0.09
	case models.NetworkCellular:
		score += 0.06
	case models.NetworkUnknown:
		score += 0.03
	}

	switch {
	case s.IsCharging:
		score += 0.15
	case !s.BatteryKnown():
		score += 0.1
	default:
		score += s.BatteryLevel * 0.15
	}

	return math.Round(math.Min(score, 1)*1000) / 1000
}

// MaxNeighbors is the recommended peer count for gossip
func (p Policy) MaxNeighbors(s models.DeviceSnapshot) int {
	switch tier := ResourceTier(s); {
	case tier <= 1:
		return 4
	case tier <= 3:
		return 6
	default:
		return 8
	}
}

// FailoverPool is the recommended number of standby peers
func (p Policy) FailoverPool(s models.DeviceSnapshot) int {
	return p.MaxNeighbors(s) / 2
}

// BandwidthFactor scales a bandwidth budget by link class
func BandwidthFactor(nt models.NetworkType) float64 {
	switch nt {
	case models.NetworkWiFi, models.NetworkEthernet:
		return 1.0
	case models.NetworkCellular5G:
		return 0.5
	case models.NetworkCellular:
		return 0.3
	case models.NetworkOffline:
		return 0
	default:
		return 0.2
	}
}

// AllowsDenseSnapshot reports whether full model snapshots may be exchanged
func AllowsDenseSnapshot(nt models.NetworkType) bool {
	return nt == models.NetworkWiFi || nt == models.NetworkEthernet
}

// BatteryStatus renders the battery state for humans
func BatteryStatus(s models.DeviceSnapshot) string {
	if !s.BatteryKnown() {
		if s.IsCharging {
			return "unknown (charging)"
		}
		return "unknown"
	}
	if s.IsCharging {
		return fmt.Sprintf("%.0f%% (charging)", s.BatteryLevel*100)
	}
	return fmt.Sprintf("%.0f%% (on battery)", s.BatteryLevel*100)
}

// Derive builds the full descriptor for s. Its recommendation fields always
// equal ModelDim, TickIntervalMS and ShouldPause for the same snapshot.
func (p Policy) Derive(s models.DeviceSnapshot) models.CapabilityDescriptor {
	reasons := p.PauseReasons(s)

	desc := models.CapabilityDescriptor{
		RecommendedModelDim:       p.ModelDim(s),
		RecommendedTickIntervalMS: p.TickIntervalMS(s),
		ShouldPauseTraining:       len(reasons) > 0,
		PauseReasons:              reasons,
		MemoryMB:                  s.MemoryMB,
		CPUCores:                  s.CPUCores,
		NetworkType:               s.NetworkType,
		BatteryLevel:              s.BatteryLevel,
		IsCharging:                s.IsCharging,
		TelemetrySource:           s.Source,
		PerformanceScore:          p.PerformanceScore(s),
		MaxNeighbors:              p.MaxNeighbors(s),
		FailoverPool:              p.FailoverPool(s),
		BandwidthFactor:           BandwidthFactor(s.NetworkType),
		AllowsDenseSnapshot:       AllowsDenseSnapshot(s.NetworkType),
		BatteryStatus:             BatteryStatus(s),
	}

	if s.Refreshed() {
		at := s.LastRefreshedAt
		desc.LastRefreshedAt = &at
	}

	return desc
}

// ModelDim applies the default policy
func ModelDim(s models.DeviceSnapshot) int {
	return DefaultPolicy().ModelDim(s)
}

// TickIntervalMS applies the default policy
func TickIntervalMS(s models.DeviceSnapshot) int64 {
	return DefaultPolicy().TickIntervalMS(s)
}

// ShouldPause applies the default policy
func ShouldPause(s models.DeviceSnapshot) bool {
	return DefaultPolicy().ShouldPause(s)
}

// Derive applies the default policy
func Derive(s models.DeviceSnapshot) models.CapabilityDescriptor {
	return DefaultPolicy().Derive(s)
}

// Conservative is the descriptor of a node nobody has told anything.
// Boundary fallbacks (bad handle, failed serialization) report these values.
func Conservative() models.CapabilityDescriptor {
	return Derive(models.DefaultSnapshot())
}
