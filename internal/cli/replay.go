package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tutu-network/tutu/internal/domain"
)

func init() {
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay FILE.jsonl",
	Short: "Replay a JSONL event log through the engine",
	Long: `Replay reads one domain.RawEvent per line from FILE.jsonl and feeds
each through the engine in order, printing the resulting decision summary
for every event.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	eng, err := buildEngine()
	if err != nil {
		return err
	}

	ctx := context.Background()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var processed int
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event domain.RawEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return fmt.Errorf("line %d: decode event: %w", processed+1, err)
		}

		result, err := eng.Process(ctx, event)
		if err != nil {
			return fmt.Errorf("line %d: process event: %w", processed+1, err)
		}
		processed++

		fmt.Fprintf(cmd.OutOrStdout(), "%d: user=%s item=%s phase=%s strategy_difficulty=%s mastery=%.1f reward=%.3f\n",
			processed, result.UserID, result.ItemID, result.Explanation.Phase, result.Strategy.Difficulty,
			result.MasteryScore, result.Reward.Value)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event log: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "processed %d events\n", processed)
	return nil
}
