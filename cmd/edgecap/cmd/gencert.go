package cmd

import (
	"fmt"
	"os"
	"time"

	edgetls "github.com/psantana5/edgecap/pkg/tls"
	"github.com/spf13/cobra"
)

var (
	certOut      string
	keyOut       string
	certName     string
	certHosts    []string
	certValidity time.Duration
)

var gencertCmd = &cobra.Command{
	Use:   "gencert",
	Short: "Generate a self-signed certificate for watch --listen",
	Long: `Gencert writes a self-signed ECDSA certificate and key. Point
server.tls.cert_file and server.tls.key_file at them to serve the
capability endpoint over HTTPS.

Example:
  edgecap gencert --host 10.0.0.7 --host node-1.mesh
  EDGECAP_SERVER_TLS_CERT_FILE=edgecap.crt EDGECAP_SERVER_TLS_KEY_FILE=edgecap.key edgecap watch --listen :9443`,
	RunE: runGencert,
}

func init() {
	rootCmd.AddCommand(gencertCmd)

	gencertCmd.Flags().StringVar(&certOut, "cert", "edgecap.crt", "certificate output path")
	gencertCmd.Flags().StringVar(&keyOut, "key", "edgecap.key", "private key output path")
	gencertCmd.Flags().StringVar(&certName, "common-name", "", "certificate common name (default hostname)")
	gencertCmd.Flags().StringSliceVar(&certHosts, "host", nil, "additional IP address or DNS name (repeatable)")
	gencertCmd.Flags().DurationVar(&certValidity, "validity", edgetls.DefaultValidity, "certificate lifetime")
}

func runGencert(cmd *cobra.Command, args []string) error {
	name := certName
	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		name = host
	}

	if err := edgetls.GenerateSelfSignedCert(certOut, keyOut, name, certValidity, certHosts...); err != nil {
		return err
	}

	appLogger.Info("Certificate generated", map[string]interface{}{
		"cert":        certOut,
		"key":         keyOut,
		"common_name": name,
	})
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", certOut, keyOut)
	return nil
}
