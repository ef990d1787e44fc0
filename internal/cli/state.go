package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stateCmd)
}

var stateCmd = &cobra.Command{
	Use:   "state USER_ID",
	Short: "Print a user's current live state",
	Args:  cobra.ExactArgs(1),
	RunE:  runState,
}

func runState(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}

	state, found, err := eng.UserState(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("load state for %s: %w", args[0], err)
	}
	if !found {
		return fmt.Errorf("no state recorded for user %q", args[0])
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}
