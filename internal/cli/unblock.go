package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soloport/devicegate/internal/decisionlog"
	"github.com/soloport/devicegate/internal/model"
)

func init() {
	rootCmd.AddCommand(unblockCmd)
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <fingerprint>",
	Short: "Remove a block record (privileged)",
	Long: "Deletes a block record from the durable store by full fingerprint or\n" +
		"unique prefix. The removal is written to the decision audit log.\n\n" +
		"A running server holds its own in-memory block list; use the admin\n" +
		"API to unblock live, or restart after unblocking here.",
	Args: cobra.ExactArgs(1),
	RunE: runUnblock,
}

func runUnblock(cmd *cobra.Command, args []string) error {
	backend, err := openBackend()
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx := context.Background()
	recs, err := backend.LoadBlocks(ctx)
	if err != nil {
		return fmt.Errorf("load blocks: %w", err)
	}

	var matches []model.Fingerprint
	for _, r := range recs {
		if strings.HasPrefix(string(r.Fingerprint), args[0]) {
			matches = append(matches, r.Fingerprint)
		}
	}
	switch len(matches) {
	case 0:
		return fmt.Errorf("no block record matches %q", args[0])
	case 1:
	default:
		return fmt.Errorf("%q matches %d records, use a longer prefix", args[0], len(matches))
	}
	fp := matches[0]

	if err := backend.DeleteBlock(ctx, fp); err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if err := auditPrivileged(fp, model.PathPrivilegedUnblock, "operator removed block record"); err != nil {
		return err
	}

	fmt.Printf("unblocked %s\n", fp.Prefix())
	return nil
}

// auditPrivileged appends an operator action to the decision audit log.
func auditPrivileged(fp model.Fingerprint, path, reason string) error {
	log, err := decisionlog.Open(flagAuditLog)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer log.Close()

	d := model.AccessDecision{
		Allow:             false,
		DeviceType:        model.DeviceUnknown,
		Reasons:           []string{reason},
		FingerprintPrefix: fp.Prefix(),
		RulePath:          path,
		Timestamp:         time.Now().UTC(),
	}
	if err := log.Record(decisionlog.FromDecision(d, "")); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}
