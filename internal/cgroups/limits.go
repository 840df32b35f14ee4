// Package cgroups reads the resource limits imposed on this process.
// It never writes; a missing or unreadable controller means no limit.
package cgroups

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultRoot is where the unified or legacy hierarchy is mounted
const DefaultRoot = "/sys/fs/cgroup"

// v1 reports this (or larger) when memory is unlimited
const v1Unlimited = int64(1) << 60

// Limits are the effective caps for the current cgroup.
// Zero values mean unlimited.
type Limits struct {
	MemoryMaxBytes int64
	CPUQuotaCores  float64
}

// MemoryMB returns the memory cap in MB, 0 when unlimited
func (l Limits) MemoryMB() uint64 {
	if l.MemoryMaxBytes <= 0 {
		return 0
	}
	return uint64(l.MemoryMaxBytes) / (1024 * 1024)
}

// Cores returns the CPU cap rounded up to whole cores, 0 when unlimited
func (l Limits) Cores() uint32 {
	if l.CPUQuotaCores <= 0 {
		return 0
	}
	cores := uint32(l.CPUQuotaCores)
	if float64(cores) < l.CPUQuotaCores {
		cores++
	}
	return cores
}

// Version returns detected cgroup version (1 or 2) under root
func Version(root string) int {
	if _, err := os.Stat(filepath.Join(root, "cgroup.controllers")); err == nil {
		return 2
	}
	return 1
}

// Read returns the limits visible under root
func Read(root string) (Limits, error) {
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Limits{}, nil
		}
		return Limits{}, err
	}

	if Version(root) == 2 {
		return readV2(root)
	}
	return readV1(root)
}

func readV2(root string) (Limits, error) {
	var l Limits

	if raw, ok := readTrimmed(filepath.Join(root, "memory.max")); ok && raw != "max" {
		bytes, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Limits{}, fmt.Errorf("invalid memory.max %q: %w", raw, err)
		}
		l.MemoryMaxBytes = bytes
	}

	// "quota period" or "max period"
	if raw, ok := readTrimmed(filepath.Join(root, "cpu.max")); ok {
		fields := strings.Fields(raw)
		if len(fields) == 2 && fields[0] != "max" {
			cores, err := quotaCores(fields[0], fields[1])
			if err != nil {
				return Limits{}, fmt.Errorf("invalid cpu.max %q: %w", raw, err)
			}
			l.CPUQuotaCores = cores
		}
	}
	return l, nil
}

func readV1(root string) (Limits, error) {
	var l Limits

	if raw, ok := readTrimmed(filepath.Join(root, "memory", "memory.limit_in_bytes")); ok {
		bytes, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Limits{}, fmt.Errorf("invalid memory.limit_in_bytes %q: %w", raw, err)
		}
		if bytes < v1Unlimited {
			l.MemoryMaxBytes = bytes
		}
	}

	quota, okQuota := readTrimmed(filepath.Join(root, "cpu", "cpu.cfs_quota_us"))
	period, okPeriod := readTrimmed(filepath.Join(root, "cpu", "cpu.cfs_period_us"))
	if okQuota && okPeriod && quota != "-1" {
		cores, err := quotaCores(quota, period)
		if err != nil {
			return Limits{}, fmt.Errorf("invalid cfs quota %q/%q: %w", quota, period, err)
		}
		l.CPUQuotaCores = cores
	}
	return l, nil
}

func quotaCores(quota, period string) (float64, error) {
	q, err := strconv.ParseFloat(quota, 64)
	if err != nil {
		return 0, err
	}
	p, err := strconv.ParseFloat(period, 64)
	if err != nil {
		return 0, err
	}
	if q <= 0 || p <= 0 {
		return 0, nil
	}
	return q / p, nil
}

func readTrimmed(path string) (string, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(raw)), true
}
