package models

import (
	"time"
)

// CapabilityDescriptor is the derived, advertisable view of a node.
// It is always recomputed from a DeviceSnapshot and never edited in place.
type CapabilityDescriptor struct {
	NodeID string `json:"node_id,omitempty" yaml:"node_id,omitempty"`

	RecommendedModelDim       int      `json:"recommended_model_dim" yaml:"recommended_model_dim"`
	RecommendedTickIntervalMS int64    `json:"recommended_tick_interval_ms" yaml:"recommended_tick_interval_ms"`
	ShouldPauseTraining       bool     `json:"should_pause_training" yaml:"should_pause_training"`
	PauseReasons              []string `json:"pause_reasons,omitempty" yaml:"pause_reasons,omitempty"`

	// Echoed snapshot fields for peers
	MemoryMB        uint32         `json:"memory_mb" yaml:"memory_mb"`
	CPUCores        uint32         `json:"cpu_cores" yaml:"cpu_cores"`
	NetworkType     NetworkType    `json:"network_type" yaml:"network_type"`
	BatteryLevel    float64        `json:"battery_level" yaml:"battery_level"`
	IsCharging      bool           `json:"is_charging" yaml:"is_charging"`
	TelemetrySource SnapshotSource `json:"telemetry_source" yaml:"telemetry_source"`
	LastRefreshedAt *time.Time     `json:"last_refreshed_at,omitempty" yaml:"last_refreshed_at,omitempty"`

	// Peer-selection hints
	PerformanceScore    float64 `json:"performance_score" yaml:"performance_score"`
	MaxNeighbors        int     `json:"max_neighbors" yaml:"max_neighbors"`
	FailoverPool        int     `json:"failover_pool" yaml:"failover_pool"`
	BandwidthFactor     float64 `json:"bandwidth_factor" yaml:"bandwidth_factor"`
	AllowsDenseSnapshot bool    `json:"allows_dense_snapshot" yaml:"allows_dense_snapshot"`
	BatteryStatus       string  `json:"battery_status" yaml:"battery_status"`

	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}
