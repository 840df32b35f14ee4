package cmd

import (
	"context"
	"strings"

	"github.com/psantana5/edgecap/internal/render"
	"github.com/psantana5/edgecap/pkg/node"
	"github.com/psantana5/edgecap/pkg/telemetry"
	"github.com/spf13/cobra"
)

var (
	describeSource string
	describeOutput string
	describeNodeID string
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Read this device and print its capability descriptor",
	Long: `Describe refreshes telemetry once from the configured source and prints
the derived capabilities.

Sources:
  host  memory, CPU and interfaces of this machine, battery from sysfs
  env   EDGECAP_DEVICE_PROFILE / EDGECAP_MEMORY_MB / ... variables
  none  conservative defaults only

Example:
  edgecap describe
  edgecap describe --source env -o json
  EDGECAP_DEVICE_PROFILE=low edgecap describe --source env -o bash`,
	RunE: runDescribe,
}

func init() {
	rootCmd.AddCommand(describeCmd)

	describeCmd.Flags().StringVar(&describeSource, "source", "", "telemetry source: host, env or none (default from config)")
	describeCmd.Flags().StringVarP(&describeOutput, "output", "o", "text", "output format: text, json, yaml, table, bash, prom")
	describeCmd.Flags().StringVar(&describeNodeID, "id", "", "node id to advertise (default random)")
}

// resolveSource applies a --source override to the loaded configuration
func resolveSource(override string) (telemetry.Source, error) {
	if override != "" {
		appConfig.Source = strings.ToLower(override)
		if err := appConfig.Validate(); err != nil {
			return nil, err
		}
	}
	return appConfig.TelemetrySource()
}

func runDescribe(cmd *cobra.Command, args []string) error {
	format, err := render.ParseFormat(describeOutput)
	if err != nil {
		return err
	}

	src, err := resolveSource(describeSource)
	if err != nil {
		return err
	}

	n := node.New(nodeOptions(node.WithID(describeNodeID), node.WithSource(src))...)
	defer n.Close()

	if n.HasSource() {
		if err := n.Refresh(context.Background()); err != nil {
			appLogger.Warn("Using defaults, telemetry unavailable", map[string]interface{}{
				"source": appConfig.Source,
				"error":  err.Error(),
			})
		}
	}

	return render.Node(cmd.OutOrStdout(), n, format)
}
