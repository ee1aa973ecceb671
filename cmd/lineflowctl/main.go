// Command lineflowctl is the operator-facing CLI: seed reference data into
// the manufacturing database and drive the scheduling pipeline by hand
// against a running control plane, for the scenarios this system is built
// around. Grounded on codeNERD's cmd/nerd's root-command-plus-subcommand-
// files cobra layout, scaled down to this project's much smaller command
// surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "lineflowctl",
	Short: "Operator CLI for the Line Scheduling Engine",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envDefault("LINEFLOWCTL_SERVER", "http://localhost:8080"), "control plane base URL")
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(statusCmd)
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
