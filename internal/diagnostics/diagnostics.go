// Package diagnostics combines the numerical self-checks each core model
// exposes into one whole-engine health report.
package diagnostics

import (
	"fmt"
	"math"

	"github.com/tutu-network/tutu/internal/bandit"
	"github.com/tutu-network/tutu/internal/memory"
	"github.com/tutu-network/tutu/internal/numerics"
	"github.com/tutu-network/tutu/internal/vark"
)

// maxWeightMagnitude is the bound a VARK classifier weight is expected to
// stay under during normal operation; well past this and online SGD is
// diverging rather than converging.
const maxWeightMagnitude = 100.0

// ModelHealthReport is the combined health snapshot across the bandit,
// per-item memory states, and the VARK classifier for one user.
type ModelHealthReport struct {
	Bandit     numerics.DiagnosticResult
	MdmIssues  []string
	VarkIssues []string
	IsHealthy  bool
}

// Diagnose runs all three sub-checks and folds them into one report. mdmItems
// is the set of per-item memory states currently tracked for the user.
func Diagnose(model *bandit.Model, mdmItems map[string]memory.ItemState, classifier *vark.Classifier) ModelHealthReport {
	report := ModelHealthReport{
		Bandit: model.Diagnose(),
	}

	for itemID, s := range mdmItems {
		report.MdmIssues = append(report.MdmIssues, checkItemState(itemID, s)...)
	}

	if classifier != nil {
		report.VarkIssues = checkClassifier(classifier)
	}

	report.IsHealthy = report.Bandit.IsHealthy && len(report.MdmIssues) == 0 && len(report.VarkIssues) == 0
	return report
}

func checkItemState(itemID string, s memory.ItemState) []string {
	var issues []string
	if math.IsNaN(s.Strength) || math.IsInf(s.Strength, 0) || s.Strength < 0 || s.Strength > 1 {
		issues = append(issues, fmt.Sprintf("%s: strength out of [0,1] or non-finite", itemID))
	}
	if math.IsNaN(s.Consolidation) || math.IsInf(s.Consolidation, 0) || s.Consolidation < 0 || s.Consolidation > 1 {
		issues = append(issues, fmt.Sprintf("%s: consolidation out of [0,1] or non-finite", itemID))
	}
	return issues
}

func checkClassifier(c *vark.Classifier) []string {
	var issues []string
	check := func(name string, bc vark.BinaryClassifier) {
		if math.IsNaN(bc.Bias) || math.IsInf(bc.Bias, 0) || math.Abs(bc.Bias) >= maxWeightMagnitude {
			issues = append(issues, fmt.Sprintf("%s: bias non-finite or diverging", name))
		}
		for i, w := range bc.Weights {
			switch {
			case math.IsNaN(w) || math.IsInf(w, 0):
				issues = append(issues, fmt.Sprintf("%s: weight non-finite at index %d", name, i))
			case math.Abs(w) >= maxWeightMagnitude:
				issues = append(issues, fmt.Sprintf("%s: weight diverging at index %d", name, i))
			}
		}
	}
	check("visual", c.Visual)
	check("auditory", c.Auditory)
	check("reading", c.Reading)
	check("kinesthetic", c.Kinesthetic)
	return issues
}

// Summarize turns a report into a one-line human-readable verdict, the way
// the bandit's own DiagnosticResult.Message does.
func Summarize(r ModelHealthReport) string {
	if r.IsHealthy {
		return "model health: ok"
	}
	n := len(r.MdmIssues) + len(r.VarkIssues)
	if !r.Bandit.IsHealthy {
		n++
	}
	return fmt.Sprintf("model health: %d issue(s) detected", n)
}
