package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soloport/devicegate/internal/decisionlog"
)

var decisionsTail int

func init() {
	rootCmd.AddCommand(decisionsCmd)
	decisionsCmd.Flags().IntVarP(&decisionsTail, "tail", "n", 10, "Number of recent entries to show")
}

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Show recent decision audit entries",
	RunE:  runDecisions,
}

func runDecisions(cmd *cobra.Command, args []string) error {
	entries, err := decisionlog.Tail(flagAuditLog, decisionsTail)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("no decisions recorded")
		return nil
	}

	for _, e := range entries {
		out, _ := json.MarshalIndent(e, "", "  ")
		fmt.Println(string(out))
	}
	return nil
}
