package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/psantana5/edgecap/internal/render"
	"github.com/psantana5/edgecap/internal/shutdown"
	"github.com/psantana5/edgecap/pkg/logging"
	"github.com/psantana5/edgecap/pkg/metrics"
	"github.com/psantana5/edgecap/pkg/models"
	"github.com/psantana5/edgecap/pkg/node"
	edgetls "github.com/psantana5/edgecap/pkg/tls"
	"github.com/spf13/cobra"
)

var (
	watchInterval time.Duration
	watchListen   string
	watchCount    int
	watchSource   string
	watchFollow   bool
	watchOutput   string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh telemetry periodically and report recommendations",
	Long: `Watch refreshes this device's telemetry on a fixed interval, or with
--follow at the tick interval the node itself recommends, and prints one
row per refresh. With --listen it also serves /metrics, /capabilities and
/healthz until interrupted.

Example:
  edgecap watch --interval 10s
  edgecap watch --follow --listen :9109
  edgecap watch --source env --count 3 -o json`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "refresh period (default refresh.interval from config)")
	watchCmd.Flags().StringVar(&watchListen, "listen", "", "serve metrics and capabilities on this address (default server.listen)")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "stop after this many refreshes (0 = until interrupted)")
	watchCmd.Flags().StringVar(&watchSource, "source", "", "telemetry source: host, env or none (default from config)")
	watchCmd.Flags().BoolVar(&watchFollow, "follow", false, "wait the recommended tick interval between refreshes")
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "table", "row format: table or json")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchOutput != "table" && watchOutput != "json" {
		return fmt.Errorf("watch output must be table or json, got %q", watchOutput)
	}

	src, err := resolveSource(watchSource)
	if err != nil {
		return err
	}

	interval := appConfig.Refresh.Interval
	if watchInterval > 0 {
		interval = watchInterval
	}
	listen := appConfig.Server.Listen
	if watchListen != "" {
		listen = watchListen
	}

	promReg := prometheus.NewRegistry()
	recorder, err := metrics.NewRefreshRecorder(promReg)
	if err != nil {
		return err
	}

	reg := node.NewRegistry(appLogger, nodeOptions(node.WithRefreshObserver(recorder))...)
	promReg.MustRegister(metrics.NewNodeCollector(reg))

	h := reg.Create()
	if st := reg.SetSource(h, src); st != node.StatusOK {
		return fmt.Errorf("failed to register telemetry source: %s", st)
	}

	mgr := shutdown.New(appConfig.Server.ShutdownTimeout, appLogger)
	mgr.Register("registry", func(context.Context) error {
		reg.Close()
		return nil
	})

	if listen != "" {
		srv := &http.Server{
			Addr:              listen,
			Handler:           newRouter(reg, promReg, appLogger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		tlsCfg := appConfig.Server.TLS
		if tlsCfg.Enabled() {
			if srv.TLSConfig, err = edgetls.LoadServerConfig(tlsCfg); err != nil {
				mgr.Shutdown()
				return err
			}
		}
		mgr.Register("http", shutdown.StopHTTPServer(srv))

		go func() {
			appLogger.Info("Serving capabilities", map[string]interface{}{
				"addr": listen,
				"tls":  srv.TLSConfig != nil,
			})
			serve := srv.ListenAndServe
			if srv.TLSConfig != nil {
				serve = func() error { return srv.ListenAndServeTLS("", "") }
			}
			if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error("HTTP server failed", map[string]interface{}{"error": err.Error()})
				mgr.Trigger()
			}
		}()
	}

	loopDone := make(chan struct{})
	mgr.Register("watch loop", func(ctx context.Context) error {
		select {
		case <-loopDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go func() {
		defer close(loopDone)
		watchLoop(ctx, cmd.OutOrStdout(), reg, h, interval, mgr.Done())
		mgr.Trigger()
	}()

	return mgr.Wait(ctx)
}

// watchLoop refreshes h until done is closed or the count is reached
func watchLoop(ctx context.Context, w io.Writer, reg *node.Registry, h node.Handle, interval time.Duration, done <-chan struct{}) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for i := 0; watchCount <= 0 || i < watchCount; i++ {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if st := reg.RefreshDeviceInfoContext(ctx, h); st != node.StatusOK {
			appLogger.Warn("Refresh failed, keeping last snapshot", map[string]interface{}{
				"status": st.String(),
			})
		}

		if err := printRow(w, reg, h); err != nil {
			appLogger.Error("Failed to print row", map[string]interface{}{"error": err.Error()})
		}
		if appConfig.Log.File {
			rotateLogs(appLogger, appConfig.Log.MaxSizeMB<<20)
		}

		next := interval
		if watchFollow {
			next = time.Duration(reg.RecommendedTickInterval(h)) * time.Millisecond
		}
		timer.Reset(next)
	}
}

// rotateLogs moves the log file aside once it passes maxBytes
func rotateLogs(logger *logging.Logger, maxBytes int64) {
	if err := logger.RotateIfNeeded(maxBytes); err != nil {
		logger.Warn("Log rotation failed", map[string]interface{}{"error": err.Error()})
	}
}

func printRow(w io.Writer, reg *node.Registry, h node.Handle) error {
	if watchOutput == "json" {
		_, err := fmt.Fprintln(w, reg.GetCapabilities(h))
		return err
	}

	n, ok := reg.Lookup(h)
	if !ok {
		return node.ErrInvalidHandle
	}
	desc, err := n.Descriptor()
	if err != nil {
		return err
	}
	return render.Table(w, []models.CapabilityDescriptor{desc})
}
