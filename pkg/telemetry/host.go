package telemetry

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/psantana5/edgecap/internal/cgroups"
	"github.com/psantana5/edgecap/pkg/models"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// DefaultPowerSupplyDir is where Linux exposes batteries
const DefaultPowerSupplyDir = "/sys/class/power_supply"

// Host reads telemetry from the machine the process runs on
type Host struct {
	// PowerSupplyDir is scanned for BAT* entries
	PowerSupplyDir string
	// CgroupRoot caps memory and cores to the container's limits
	CgroupRoot     string

	// Hooks default to gopsutil; tests replace them
	VirtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	CPUCounts     func(ctx context.Context, logical bool) (int, error)
	Interfaces    func(ctx context.Context) (net.InterfaceStatList, error)
	Limits        func(root string) (cgroups.Limits, error)
}

// NewHost creates a host source backed by gopsutil
func NewHost() *Host {
	return &Host{
		PowerSupplyDir: DefaultPowerSupplyDir,
		CgroupRoot:     cgroups.DefaultRoot,
		VirtualMemory:  mem.VirtualMemoryWithContext,
		CPUCounts:      cpu.CountsWithContext,
		Interfaces:     net.InterfacesWithContext,
		Limits:         cgroups.Read,
	}
}

// Fill implements Source. Memory and CPU failures fail the whole reading;
// interface and battery detection degrade to unknown.
func (h *Host) Fill(ctx context.Context, r *Reading) error {
	vm, err := h.VirtualMemory(ctx)
	if err != nil {
		return fmt.Errorf("failed to read memory: %w", err)
	}

	cores, err := h.CPUCounts(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to read cpu count: %w", err)
	}

	network := models.NetworkUnknown
	if ifaces, err := h.Interfaces(ctx); err == nil {
		network = ClassifyInterfaces(ifaces)
	}

	level, charging, ok := readBattery(h.PowerSupplyDir)
	if !ok {
		// No battery: mains powered
		level, charging = models.BatteryUnknown, true
	}

	memoryMB := vm.Total / (1024 * 1024)
	if h.Limits != nil {
		// Unreadable limits are treated as none
		if limits, err := h.Limits(h.CgroupRoot); err == nil {
			if capMB := limits.MemoryMB(); capMB > 0 && capMB < memoryMB {
				memoryMB = capMB
			}
			if capCores := int(limits.Cores()); capCores > 0 && capCores < cores {
				cores = capCores
			}
		}
	}
	if memoryMB > math.MaxUint32 {
		memoryMB = math.MaxUint32
	}

	*r = Reading{
		MemoryMB:     uint32(memoryMB),
		CPUCores:     uint32(max(cores, 0)),
		NetworkType:  string(network),
		BatteryLevel: float32(level),
		IsCharging:   charging,
	}
	return nil
}

var virtualPrefixes = []string{"lo", "docker", "veth", "br-", "virbr", "tun", "tap", "utun", "awdl", "llw"}

func interfaceClass(name string) models.NetworkType {
	for _, prefix := range virtualPrefixes {
		if strings.HasPrefix(name, prefix) {
			return ""
		}
	}

	switch {
	case strings.HasPrefix(name, "wl"):
		return models.NetworkWiFi
	case strings.HasPrefix(name, "eth"), strings.HasPrefix(name, "en"):
		return models.NetworkEthernet
	case strings.HasPrefix(name, "wwan"), strings.HasPrefix(name, "rmnet"),
		strings.HasPrefix(name, "ccmni"), strings.HasPrefix(name, "pdp_ip"):
		return models.NetworkCellular
	default:
		return models.NetworkUnknown
	}
}

// ClassifyInterfaces picks the best link class among interfaces that are up.
// Preference is ethernet, wifi, cellular, then unrecognized; no usable link is offline.
func ClassifyInterfaces(ifaces net.InterfaceStatList) models.NetworkType {
	rank := map[models.NetworkType]int{
		models.NetworkEthernet: 4,
		models.NetworkWiFi:     3,
		models.NetworkCellular: 2,
		models.NetworkUnknown:  1,
	}

	best := models.NetworkOffline
	bestRank := 0
	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		class := interfaceClass(iface.Name)
		if class == "" {
			continue
		}
		if rank[class] > bestRank {
			best, bestRank = class, rank[class]
		}
	}
	return best
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

// readBattery reads the first BAT* supply under dir
func readBattery(dir string) (level float64, charging bool, ok bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, false, false
	}

	for _, entry := range entries {
		if !strings.Contains(strings.ToUpper(entry.Name()), "BAT") {
			continue
		}
		base := filepath.Join(dir, entry.Name())

		raw, err := os.ReadFile(filepath.Join(base, "capacity"))
		if err != nil {
			continue
		}
		percent, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
		if err != nil {
			continue
		}

		status := ""
		if raw, err := os.ReadFile(filepath.Join(base, "status")); err == nil {
			status = strings.TrimSpace(string(raw))
		}

		charging = status == "Charging" || status == "Full"
		return models.ClampBatteryLevel(percent / 100), charging, true
	}

	return 0, false, false
}
