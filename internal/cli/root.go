// Package cli wires the kestrel commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BuildInfo is the version information stamped in at link time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var (
	cfgFile string
	build   = BuildInfo{Version: "dev", Commit: "none", BuildDate: "unknown"}
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "kestrel",
	Short: "Kestrel - insurance claim fraud risk scoring",
	Long: `Kestrel scores insurance claims for fraud risk.

A gradient-boosted classifier trained on standardized, one-hot encoded and
SMOTE-balanced claims produces a 0-100 score, a risk tier and the reasons
behind it. Every scored claim is written to an append-only audit ledger with
an HMAC integrity tag.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute(info BuildInfo) error {
	build = info
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "kestrel %s (commit %s, built %s)\n", build.Version, build.Commit, build.BuildDate)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); KESTREL_* environment variables override it")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}
