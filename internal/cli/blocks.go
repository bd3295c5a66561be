package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var blocksFormat string

func init() {
	rootCmd.AddCommand(blocksCmd)
	blocksCmd.Flags().StringVarP(&blocksFormat, "format", "f", "text", "Output format (text|json)")
}

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List block records from the durable store",
	RunE:  runBlocks,
}

func runBlocks(cmd *cobra.Command, args []string) error {
	backend, err := openBackend()
	if err != nil {
		return err
	}
	defer backend.Close()

	recs, err := backend.LoadBlocks(context.Background())
	if err != nil {
		return fmt.Errorf("load blocks: %w", err)
	}

	if blocksFormat == "json" {
		out, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	if len(recs) == 0 {
		fmt.Println("no block records")
		return nil
	}
	for _, r := range recs {
		fmt.Printf("%s  attempts=%d  first=%s  last=%s\n",
			r.Fingerprint.Prefix(), r.AttemptCount,
			r.FirstSeenAt.Format(time.RFC3339), r.LastSeenAt.Format(time.RFC3339))
		fmt.Printf("    reason:  %s\n", r.Reason)
		if len(r.SourceAddresses) > 0 {
			fmt.Printf("    sources: %s\n", strings.Join(r.SourceAddresses, ", "))
		}
	}
	return nil
}
