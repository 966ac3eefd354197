package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/spf13/cobra"
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <audit-id>",
	Short: "Recompute and check the integrity tag of an audit record",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	setupLogging(cfg.Logging, os.Stderr)
	if err := cfg.Audit.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var cleanup closers
	defer cleanup.closeAll()

	ledger, err := openLedger(cfg, &cleanup)
	if err != nil {
		return err
	}
	signer, err := audit.NewSigner(cfg.Audit)
	if err != nil {
		return err
	}

	rec, err := ledger.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get audit record %s: %w", args[0], err)
	}

	result := audit.Verify(signer, rec, cfg.Audit.IncludeDay)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("integrity tag mismatch for %s", rec.ID)
	}
	return nil
}
