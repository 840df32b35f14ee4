package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/psantana5/edgecap/internal/render"
	"github.com/psantana5/edgecap/pkg/models"
	"github.com/psantana5/edgecap/pkg/node"
	"github.com/psantana5/edgecap/pkg/telemetry"
	"github.com/spf13/cobra"
)

var (
	simMemoryMB uint32
	simCPUCores uint32
	simNetwork  string
	simBattery  float64
	simCharging bool
	simProfile  string
	simOutput   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Derive capabilities for a hypothetical device",
	Long: `Simulate applies the given telemetry to a fresh node and prints what it
would recommend. A --profile is applied first as if reported by the device;
explicit flags then override it.

Example:
  edgecap simulate --memory-mb 1024 --cpu-cores 2 --network cellular --battery 0.15
  edgecap simulate --profile high -o json`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().Uint32Var(&simMemoryMB, "memory-mb", models.DefaultMemoryMB, "device memory in MB")
	simulateCmd.Flags().Uint32Var(&simCPUCores, "cpu-cores", models.DefaultCPUCores, "device CPU cores")
	simulateCmd.Flags().StringVar(&simNetwork, "network", string(models.NetworkUnknown), "network type: wifi, ethernet, cellular, cellular_5g, offline")
	simulateCmd.Flags().Float64Var(&simBattery, "battery", models.BatteryUnknown, "battery level in [0,1], -1 for unknown")
	simulateCmd.Flags().BoolVar(&simCharging, "charging", false, "device is charging")
	simulateCmd.Flags().StringVar(&simProfile, "profile", "", "device preset: "+strings.Join(profileNames(), ", "))
	simulateCmd.Flags().StringVarP(&simOutput, "output", "o", "text", "output format: text, json, yaml, table, bash, prom")
}

func profileNames() []string {
	names := make([]string, 0, len(telemetry.Profiles))
	for name := range telemetry.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runSimulate(cmd *cobra.Command, args []string) error {
	format, err := render.ParseFormat(simOutput)
	if err != nil {
		return err
	}

	n := node.New(nodeOptions(node.WithID("simulated"))...)
	defer n.Close()

	if simProfile != "" {
		profile, ok := telemetry.Profiles[strings.ToLower(simProfile)]
		if !ok {
			return fmt.Errorf("unknown profile %q (want one of %s)", simProfile, strings.Join(profileNames(), ", "))
		}
		if err := n.SetSource(telemetry.Static(profile)); err != nil {
			return err
		}
		if err := n.Refresh(context.Background()); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if simProfile == "" || flags.Changed("memory-mb") || flags.Changed("cpu-cores") {
		s, err := n.Snapshot()
		if err != nil {
			return err
		}
		memoryMB, cores := s.MemoryMB, s.CPUCores
		if simProfile == "" || flags.Changed("memory-mb") {
			memoryMB = simMemoryMB
		}
		if simProfile == "" || flags.Changed("cpu-cores") {
			cores = simCPUCores
		}
		if err := n.UpdateHardware(memoryMB, cores); err != nil {
			return err
		}
	}
	if simProfile == "" || flags.Changed("network") {
		if err := n.UpdateNetworkType(simNetwork); err != nil {
			return err
		}
	}
	if simProfile == "" || flags.Changed("battery") || flags.Changed("charging") {
		s, err := n.Snapshot()
		if err != nil {
			return err
		}
		level, charging := s.BatteryLevel, s.IsCharging
		if simProfile == "" || flags.Changed("battery") {
			level = simBattery
		}
		if simProfile == "" || flags.Changed("charging") {
			charging = simCharging
		}
		if err := n.UpdateBattery(level, charging); err != nil {
			return err
		}
	}

	return render.Node(cmd.OutOrStdout(), n, format)
}
