package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soloport/devicegate/internal/decisionlog"
)

func init() {
	rootCmd.AddCommand(verifyLogCmd)
}

var verifyLogCmd = &cobra.Command{
	Use:   "verify-log",
	Short: "Verify hash chain integrity of the decision audit log",
	Long: "Walks the JSONL audit log and validates that every entry's prev_hash\n" +
		"matches the SHA-256 of the previous line. Exits 0 if valid, 1 if tampered.",
	RunE: runVerifyLog,
}

func runVerifyLog(cmd *cobra.Command, args []string) error {
	result := decisionlog.Verify(flagAuditLog)
	if result.Valid {
		fmt.Printf("OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}
