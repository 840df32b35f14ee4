package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/psantana5/edgecap/pkg/node"
)

// NodeLister yields the nodes to export; *node.Registry satisfies it
type NodeLister interface {
	Nodes() []*node.Node
}

// NodeCollector exports the current descriptor of every node as gauges.
// Values are derived at scrape time, so they never lag the snapshot.
type NodeCollector struct {
	nodes NodeLister

	modelDim         *prometheus.Desc
	tickInterval     *prometheus.Desc
	paused           *prometheus.Desc
	performanceScore *prometheus.Desc
	memory           *prometheus.Desc
	cores            *prometheus.Desc
	battery          *prometheus.Desc
	stale            *prometheus.Desc
}

// NewNodeCollector creates a collector over nodes
func NewNodeCollector(nodes NodeLister) *NodeCollector {
	labels := []string{"node_id"}
	return &NodeCollector{
		nodes: nodes,
		modelDim: prometheus.NewDesc("edgecap_recommended_model_dim",
			"Recommended model dimensionality", labels, nil),
		tickInterval: prometheus.NewDesc("edgecap_recommended_tick_interval_seconds",
			"Recommended interval between training ticks", labels, nil),
		paused: prometheus.NewDesc("edgecap_should_pause_training",
			"1 if training should pause", labels, nil),
		performanceScore: prometheus.NewDesc("edgecap_performance_score",
			"Peer selection score in [0,1]", labels, nil),
		memory: prometheus.NewDesc("edgecap_device_memory_mb",
			"Device memory in MB", labels, nil),
		cores: prometheus.NewDesc("edgecap_device_cpu_cores",
			"Device CPU cores", labels, nil),
		battery: prometheus.NewDesc("edgecap_device_battery_level",
			"Battery level in [0,1], -1 when unknown", []string{"node_id", "network_type", "charging"}, nil),
		stale: prometheus.NewDesc("edgecap_telemetry_stale",
			"1 if telemetry is older than the freshness window", labels, nil),
	}
}

// Describe implements prometheus.Collector
func (c *NodeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.modelDim
	ch <- c.tickInterval
	ch <- c.paused
	ch <- c.performanceScore
	ch <- c.memory
	ch <- c.cores
	ch <- c.battery
	ch <- c.stale
}

// Collect implements prometheus.Collector
func (c *NodeCollector) Collect(ch chan<- prometheus.Metric) {
	for _, n := range c.nodes.Nodes() {
		desc, err := n.Descriptor()
		if err != nil {
			// destroyed between listing and scrape
			continue
		}
		id := desc.NodeID

		ch <- prometheus.MustNewConstMetric(c.modelDim, prometheus.GaugeValue, float64(desc.RecommendedModelDim), id)
		ch <- prometheus.MustNewConstMetric(c.tickInterval, prometheus.GaugeValue, float64(desc.RecommendedTickIntervalMS)/1000, id)
		ch <- prometheus.MustNewConstMetric(c.paused, prometheus.GaugeValue, boolToFloat(desc.ShouldPauseTraining), id)
		ch <- prometheus.MustNewConstMetric(c.performanceScore, prometheus.GaugeValue, desc.PerformanceScore, id)
		ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, float64(desc.MemoryMB), id)
		ch <- prometheus.MustNewConstMetric(c.cores, prometheus.GaugeValue, float64(desc.CPUCores), id)
		ch <- prometheus.MustNewConstMetric(c.battery, prometheus.GaugeValue, desc.BatteryLevel,
			id, string(desc.NetworkType), boolLabel(desc.IsCharging))
		ch <- prometheus.MustNewConstMetric(c.stale, prometheus.GaugeValue, boolToFloat(n.Stale()), id)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
