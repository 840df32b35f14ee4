package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/psantana5/edgecap/internal/config"
	"github.com/psantana5/edgecap/pkg/logging"
	"github.com/psantana5/edgecap/pkg/node"
	"github.com/psantana5/edgecap/pkg/tracing"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Build metadata, set with -ldflags
var (
	Version = "dev"
)

var (
	cfgFile      string
	logLevel     string
	logJSON      bool
	otlpEndpoint string

	appConfig *config.Config
	appLogger *logging.Logger
	appTracer *tracing.Provider
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "edgecap",
	Short: "Device capability engine for adaptive mesh nodes",
	Long: `edgecap inspects the device it runs on (memory, CPU, network, battery)
and derives the scheduling parameters an adaptive training node should use:
model dimensionality, tick interval and whether to pause training.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./edgecap.yaml or $HOME/.edgecap/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit JSON logs")
	rootCmd.PersistentFlags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "export refresh traces to this OTLP HTTP collector (host:port)")
}

func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := config.NewViper()
	flags := cmd.Flags()
	for key, flag := range map[string]string{
		"log.level": "log-level",
		"log.json":  "log-json",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return nil, err
		}
	}
	if otlpEndpoint != "" {
		v.Set("tracing.enabled", true)
		v.Set("tracing.endpoint", otlpEndpoint)
	}
	return v, nil
}

func setup(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	appConfig = cfg

	level := logging.ParseLevel(cfg.Log.Level)
	if cfg.Log.File {
		appLogger, err = logging.NewFileLogger("edgecap", cmd.Name(), level, cfg.Log.JSON)
		if err != nil {
			return err
		}
	} else {
		appLogger = logging.NewLogger(level, cfg.Log.JSON)
		appLogger.SetOutput(cmd.ErrOrStderr())
	}

	appTracer, err = tracing.InitTracer(tracing.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Enabled:        cfg.Tracing.Enabled,
	}, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	return nil
}

func teardown() error {
	if appTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := appTracer.Shutdown(ctx); err != nil {
			appLogger.Warn("Failed to flush traces", map[string]interface{}{"error": err.Error()})
		}
	}
	if appLogger != nil {
		return appLogger.Close()
	}
	return nil
}

// nodeOptions combines configuration, logging and tracing for a new node
func nodeOptions(extra ...node.Option) []node.Option {
	opts := append(appConfig.NodeOptions(),
		node.WithLogger(appLogger),
		node.WithTracer(appTracer.Tracer()),
	)
	return append(opts, extra...)
}
