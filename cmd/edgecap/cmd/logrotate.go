package cmd

import (
	"fmt"

	"github.com/psantana5/edgecap/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	rotateComponent string
	rotateDays      int
	rotateUser      string
)

var logrotateCmd = &cobra.Command{
	Use:   "logrotate",
	Short: "Print a logrotate configuration for edgecap file logs",
	Long: `Logrotate prints a configuration covering the files written when
log.file is enabled.

Example:
  edgecap logrotate | sudo tee /etc/logrotate.d/edgecap-edgecap`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := logging.DefaultRotateOptions()
		opts.Days = rotateDays
		if rotateUser != "" {
			opts.User, opts.Group = rotateUser, rotateUser
		}
		_, err := fmt.Fprint(cmd.OutOrStdout(), logging.GenerateLogrotateConfig(rotateComponent, opts))
		return err
	},
}

func init() {
	rootCmd.AddCommand(logrotateCmd)

	logrotateCmd.Flags().StringVar(&rotateComponent, "component", "edgecap", "log component directory")
	logrotateCmd.Flags().IntVar(&rotateDays, "days", 14, "days of logs to keep")
	logrotateCmd.Flags().StringVar(&rotateUser, "user", "", "owner of rotated files (default edgecap)")
}
