package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soloport/devicegate/internal/model"
)

var ownerReset bool

func init() {
	rootCmd.AddCommand(ownerCmd)
	ownerCmd.Flags().BoolVar(&ownerReset, "reset", false, "Clear the registration so the next authentic device re-registers")
}

var ownerCmd = &cobra.Command{
	Use:   "owner",
	Short: "Show or reset the registered owner device",
	Long: "Shows the registered owner record from the durable store.\n\n" +
		"--reset clears the registration. This is the only reset path: it is\n" +
		"deliberately not exposed over HTTP. The reset is audited. A running\n" +
		"server keeps its in-memory registration until restart.",
	RunE: runOwner,
}

func runOwner(cmd *cobra.Command, args []string) error {
	backend, err := openBackend()
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx := context.Background()
	rec, ok, err := backend.LoadOwner(ctx)
	if err != nil {
		return fmt.Errorf("load owner: %w", err)
	}
	if !ok {
		fmt.Println("no owner registered")
		return nil
	}

	fmt.Printf("owner:      %s\n", rec.Fingerprint.Prefix())
	fmt.Printf("registered: %s\n", rec.RegisteredAt.Format(time.RFC3339))

	if !ownerReset {
		return nil
	}

	if err := backend.DeleteOwner(ctx); err != nil {
		return fmt.Errorf("delete owner: %w", err)
	}
	if err := auditPrivileged(rec.Fingerprint, model.PathPrivilegedReset, "operator reset owner registration"); err != nil {
		return err
	}
	fmt.Println("registration cleared")
	return nil
}
