package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/psantana5/edgecap/pkg/metrics"
	"github.com/psantana5/edgecap/pkg/models"
	"github.com/psantana5/edgecap/pkg/node"
	"gopkg.in/yaml.v3"
)

// Format selects an output encoding
type Format string

const (
	FormatText  Format = "text"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
	FormatBash  Format = "bash"
	FormatProm  Format = "prom"
)

// Formats lists every supported format
var Formats = []Format{FormatText, FormatJSON, FormatYAML, FormatTable, FormatBash, FormatProm}

// ParseFormat validates a user-supplied format name
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatText, nil
	}
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (want one of %v)", s, Formats)
}

// Report is what describe and simulate print for one node
type Report struct {
	Capabilities models.CapabilityDescriptor `json:"capabilities" yaml:"capabilities"`
	Snapshot     models.DeviceSnapshot       `json:"snapshot" yaml:"snapshot"`
	Stale        bool                        `json:"stale" yaml:"stale"`
	Advice       []string                    `json:"advice,omitempty" yaml:"advice,omitempty"`
}

// NewReport captures the current state of n
func NewReport(n *node.Node) (Report, error) {
	desc, err := n.Descriptor()
	if err != nil {
		return Report{}, err
	}
	snap, err := n.Snapshot()
	if err != nil {
		return Report{}, err
	}
	return Report{
		Capabilities: desc,
		Snapshot:     snap,
		Stale:        n.Stale(),
		Advice:       n.Advise(),
	}, nil
}

type singleNode struct{ n *node.Node }

func (s singleNode) Nodes() []*node.Node { return []*node.Node{s.n} }

// Node writes the state of n in format f
func Node(w io.Writer, n *node.Node, f Format) error {
	if f == FormatProm {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewNodeCollector(singleNode{n}))
		return metrics.WriteText(w, reg)
	}

	rep, err := NewReport(n)
	if err != nil {
		return err
	}
	return Write(w, rep, f)
}

// Write encodes rep in format f
func Write(w io.Writer, rep Report, f Format) error {
	c := rep.Capabilities

	switch f {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rep)

	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(rep); err != nil {
			return err
		}
		return encoder.Close()

	case FormatBash:
		fmt.Fprintln(w, "# edgecap scheduling recommendations")
		fmt.Fprintf(w, "export EDGECAP_NODE_ID=%s\n", c.NodeID)
		fmt.Fprintf(w, "export EDGECAP_MODEL_DIM=%d\n", c.RecommendedModelDim)
		fmt.Fprintf(w, "export EDGECAP_TICK_INTERVAL_MS=%d\n", c.RecommendedTickIntervalMS)
		fmt.Fprintf(w, "export EDGECAP_PAUSE_TRAINING=%t\n", c.ShouldPauseTraining)
		fmt.Fprintf(w, "export EDGECAP_MAX_NEIGHBORS=%d\n", c.MaxNeighbors)
		if len(c.PauseReasons) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintf(w, "# paused: %s\n", strings.Join(c.PauseReasons, ", "))
		}
		return nil

	case FormatTable:
		return Table(w, []models.CapabilityDescriptor{c})

	case FormatText, "":
		fmt.Fprintln(w, "Device:")
		fmt.Fprintf(w, "  Memory: %d MB\n", c.MemoryMB)
		fmt.Fprintf(w, "  CPU: %d cores\n", c.CPUCores)
		fmt.Fprintf(w, "  Network: %s\n", c.NetworkType)
		fmt.Fprintf(w, "  Battery: %s\n", c.BatteryStatus)
		fmt.Fprintf(w, "  Telemetry: %s", c.TelemetrySource)
		if rep.Stale {
			fmt.Fprint(w, " (stale)")
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w)

		fmt.Fprintln(w, "Recommendations:")
		fmt.Fprintf(w, "  Model dim: %d\n", c.RecommendedModelDim)
		fmt.Fprintf(w, "  Tick interval: %dms\n", c.RecommendedTickIntervalMS)
		fmt.Fprintf(w, "  Pause training: %s", boolToYesNo(c.ShouldPauseTraining))
		if len(c.PauseReasons) > 0 {
			fmt.Fprintf(w, " (%s)", strings.Join(c.PauseReasons, ", "))
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w)

		fmt.Fprintln(w, "Peer Advertisement:")
		fmt.Fprintf(w, "  Performance score: %.3f\n", c.PerformanceScore)
		fmt.Fprintf(w, "  Neighbors: %d (failover pool %d)\n", c.MaxNeighbors, c.FailoverPool)
		fmt.Fprintf(w, "  Bandwidth factor: %.1f\n", c.BandwidthFactor)
		fmt.Fprintf(w, "  Dense snapshots: %s\n", boolToYesNo(c.AllowsDenseSnapshot))

		if len(rep.Advice) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Advice:")
			for _, a := range rep.Advice {
				fmt.Fprintf(w, "  - %s\n", a)
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported output format %q", f)
	}
}

// Table writes one row per descriptor
func Table(w io.Writer, descs []models.CapabilityDescriptor) error {
	table := tablewriter.NewWriter(w)
	table.Header("Node", "Memory", "CPU", "Network", "Battery", "Dim", "Tick", "Pause", "Score")

	for _, c := range descs {
		pause := boolToYesNo(c.ShouldPauseTraining)
		if len(c.PauseReasons) > 0 {
			pause = strings.Join(c.PauseReasons, ",")
		}
		if err := table.Append([]string{
			shortID(c.NodeID),
			fmt.Sprintf("%d MB", c.MemoryMB),
			fmt.Sprintf("%d", c.CPUCores),
			string(c.NetworkType),
			c.BatteryStatus,
			fmt.Sprintf("%d", c.RecommendedModelDim),
			fmt.Sprintf("%dms", c.RecommendedTickIntervalMS),
			pause,
			fmt.Sprintf("%.3f", c.PerformanceScore),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func boolToYesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
