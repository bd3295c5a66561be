package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soloport/devicegate/internal/classifier"
	"github.com/soloport/devicegate/internal/fingerprint"
	"github.com/soloport/devicegate/internal/model"
)

var (
	checkBundle string
	checkConfig string
	checkFormat string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkBundle, "bundle", "", "Path to attribute bundle JSON file (required)")
	checkCmd.Flags().StringVar(&checkConfig, "config", "", "Path to classifier config YAML (built-in defaults when empty)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
	checkCmd.MarkFlagRequired("bundle")
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Classify an attribute bundle offline",
	Long: "Reads an attribute bundle from a JSON file, runs it through the\n" +
		"classifier, and prints the verdict and fingerprint prefix.\n\n" +
		"Exit code 0 when the verdict is authentic, 1 otherwise.\n" +
		"Use in CI to validate classifier config changes against known bundles.",
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(checkBundle)
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}
	var bundle model.AttributeBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}

	cfg, err := classifier.Load(checkConfig)
	if err != nil {
		return fmt.Errorf("load classifier config: %w", err)
	}

	result := classifier.New(cfg).Classify(bundle)
	fp := fingerprint.Compute(bundle)

	switch checkFormat {
	case "json":
		out, err := json.MarshalIndent(map[string]any{
			"fingerprint_prefix": fp.Prefix(),
			"device_type":        result.DeviceType,
			"confidence":         result.Confidence,
			"reasons":            result.Reasons,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		fmt.Printf("fingerprint: %s\n", fp.Prefix())
		fmt.Printf("verdict:     %s (confidence %d)\n", result.DeviceType, result.Confidence)
		if len(result.Reasons) > 0 {
			fmt.Printf("reasons:     %s\n", strings.Join(result.Reasons, "; "))
		}
	}

	if result.DeviceType != model.DeviceAuthentic {
		os.Exit(1)
	}
	return nil
}
