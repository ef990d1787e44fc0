package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempJSONL(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("write temp jsonl: %v", err)
	}
	return path
}

func TestRunReplayProcessesEachLine(t *testing.T) {
	path := writeTempJSONL(t,
		`{"user_id":"u1","item_id":"item-1","correct":true,"response_time_ms":1800,"difficulty":1}`,
		`{"user_id":"u1","item_id":"item-1","correct":false,"response_time_ms":5000,"difficulty":1}`,
	)

	cmd := replayCmd
	var out bytes.Buffer
	cmd.SetOut(&out)
	configPath = ""

	if err := runReplay(cmd, []string{path}); err != nil {
		t.Fatalf("runReplay() error: %v", err)
	}
	if !strings.Contains(out.String(), "processed 2 events") {
		t.Fatalf("expected summary line in output, got: %s", out.String())
	}
}

func TestRunReplayRejectsMalformedLine(t *testing.T) {
	path := writeTempJSONL(t, "not json")

	cmd := replayCmd
	var out bytes.Buffer
	cmd.SetOut(&out)
	configPath = ""

	if err := runReplay(cmd, []string{path}); err == nil {
		t.Fatal("expected an error for a malformed event line")
	}
}

func TestRunReplayRejectsMissingFile(t *testing.T) {
	cmd := replayCmd
	var out bytes.Buffer
	cmd.SetOut(&out)
	configPath = ""

	if err := runReplay(cmd, []string{"/nonexistent/path.jsonl"}); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
