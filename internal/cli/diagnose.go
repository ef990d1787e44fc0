package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(diagnoseCmd)
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose USER_ID",
	Short: "Run the combined model-health check for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiagnose,
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}

	report, err := eng.Diagnose(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("diagnose %s: %w", args[0], err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
