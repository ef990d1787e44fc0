package diagnostics

import (
	"math"
	"testing"

	"github.com/tutu-network/tutu/internal/bandit"
	"github.com/tutu-network/tutu/internal/memory"
	"github.com/tutu-network/tutu/internal/vark"
)

func TestDiagnoseHealthyByDefault(t *testing.T) {
	model := bandit.NewModel(bandit.DefaultConfig())
	items := map[string]memory.ItemState{
		"item-1": {Strength: 0.5, Consolidation: 0.3},
	}
	classifier := vark.New()

	report := Diagnose(model, items, classifier)
	if !report.IsHealthy {
		t.Fatalf("expected healthy report, got %+v", report)
	}
	if Summarize(report) != "model health: ok" {
		t.Fatalf("got %q", Summarize(report))
	}
}

func TestDiagnoseFlagsOutOfBoundsItemState(t *testing.T) {
	model := bandit.NewModel(bandit.DefaultConfig())
	items := map[string]memory.ItemState{
		"item-bad": {Strength: 1.5, Consolidation: math.NaN()},
	}
	report := Diagnose(model, items, vark.New())

	if report.IsHealthy {
		t.Fatal("expected unhealthy report")
	}
	if len(report.MdmIssues) != 2 {
		t.Fatalf("got %d mdm issues, want 2: %v", len(report.MdmIssues), report.MdmIssues)
	}
}

func TestDiagnoseFlagsDivergingClassifierWeights(t *testing.T) {
	model := bandit.NewModel(bandit.DefaultConfig())
	classifier := vark.New()
	for i := range classifier.Visual.Weights {
		classifier.Visual.Weights[i] = 1000
	}
	report := Diagnose(model, nil, classifier)

	if report.IsHealthy {
		t.Fatal("expected unhealthy report due to diverging weights")
	}
	if len(report.VarkIssues) == 0 {
		t.Fatal("expected vark issues to be reported")
	}
}

func TestDiagnoseNilClassifierSkipsVarkCheck(t *testing.T) {
	model := bandit.NewModel(bandit.DefaultConfig())
	report := Diagnose(model, nil, nil)
	if len(report.VarkIssues) != 0 {
		t.Fatalf("expected no vark issues with nil classifier, got %v", report.VarkIssues)
	}
}
