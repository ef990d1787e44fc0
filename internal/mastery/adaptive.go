// Package mastery implements the adaptive mastery decision: a personal,
// difficulty- and history-adjusted threshold compared against a four-factor
// score blending memory-trace strength, cognitive state, performance, and
// review context.
package mastery

import (
	"math"

	"github.com/tutu-network/tutu/internal/domain"
	"github.com/tutu-network/tutu/internal/memory"
)

// Context is the per-review input the mastery decision is computed from,
// beyond the MDM trace and cognitive profile already carried on UserState.
type Context struct {
	IsCorrect          bool
	IsFirstAttempt     bool
	ResponseTimeMs     float64
	HintUsed           bool
	ConsecutiveCorrect int
	CorrectCount       int
	AttemptCount       int
	IndecisionIndex    *float64 // nil if not measured this review
	FluencyScore       *float64 // nil if keystroke fluency wasn't measured
}

// Factors is the four capped contributions that sum (after their own caps)
// into the raw score compared against the threshold.
type Factors struct {
	MDM         float64
	Cognitive   float64
	Performance float64
	Context     float64
}

// Result is the full adaptive mastery decision.
type Result struct {
	IsMastered bool
	Confidence float64
	Score      float64
	Threshold  float64
	Factors    Factors
}

// PersonalBaseline computes the cognitive-profile-derived base threshold,
// clamped to [35, 70].
func PersonalBaseline(cognitive domain.CognitiveProfile) float64 {
	factor := cognitive.Factor()
	return clamp(70-35*factor, 35, 70)
}

// AdjustedThreshold applies the difficulty multiplier on top of the
// personal baseline, clamped to [25, 80].
func AdjustedThreshold(cognitive domain.CognitiveProfile, difficulty domain.DifficultyLevel) float64 {
	base := PersonalBaseline(cognitive)
	return clamp(base*difficulty.Multiplier(), 25, 80)
}

// Compute runs the full adaptive mastery decision, folding in the supplied
// MasteryHistory's threshold_adjustment multiplier. The caller is
// responsible for recording this decision into history afterward.
func Compute(
	mdmState memory.ItemState,
	cognitive domain.CognitiveProfile,
	state domain.UserState,
	difficulty domain.DifficultyLevel,
	ctx Context,
	history *History,
) Result {
	threshold := AdjustedThreshold(cognitive, difficulty)
	if history != nil {
		threshold = clamp(threshold*history.ThresholdAdjustment(), 25, 80)
	}

	factor := cognitive.Factor()
	factors := Factors{
		MDM:         mdmContribution(mdmState, cognitive, factor),
		Cognitive:   cognitiveContribution(state, cognitive),
		Performance: performanceContribution(ctx, cognitive),
		Context:     contextContribution(ctx, factor),
	}

	score := factors.MDM + factors.Cognitive + factors.Performance + factors.Context
	isMastered := score >= threshold
	confidence := sigmoid((score - threshold) / 10)

	return Result{
		IsMastered: isMastered,
		Confidence: confidence,
		Score:      score,
		Threshold:  threshold,
		Factors:    factors,
	}
}

func mdmContribution(s memory.ItemState, cognitive domain.CognitiveProfile, cognitiveFactor float64) float64 {
	v := s.Strength*(2+cognitiveFactor) + s.Consolidation*(8+4*cognitive.Mem)
	return math.Min(v, 35)
}

func cognitiveContribution(state domain.UserState, cognitive domain.CognitiveProfile) float64 {
	fatigueFused := state.FatigueFused()
	v := 10*state.Attention - 8*fatigueFused + 10*math.Max(state.Motivation-0.5, 0)
	return clamp(v, 0, 25)
}

func performanceContribution(ctx Context, cognitive domain.CognitiveProfile) float64 {
	if !ctx.IsCorrect {
		return 0
	}

	expectedRT := 2500 + (1-cognitive.Speed)*7500
	var speedScore float64
	if ctx.ResponseTimeMs <= expectedRT {
		speedScore = 15 * math.Max(1-ctx.ResponseTimeMs/(2*expectedRT), 0.5)
	} else {
		speedScore = 15 * math.Max(expectedRT/ctx.ResponseTimeMs, 0.3)
	}

	accuracyScore := 10.0
	if ctx.AttemptCount > 0 {
		accuracyScore = 10 * (float64(ctx.CorrectCount) / float64(ctx.AttemptCount))
	}

	streakScore := math.Min(math.Sqrt(float64(ctx.ConsecutiveCorrect))*(2.5+1.5*cognitive.Stability), 7)

	base := math.Min(speedScore+accuracyScore+streakScore, 30)

	if ctx.IndecisionIndex != nil {
		penalty := math.Min(*ctx.IndecisionIndex*0.3, 0.3)
		base *= 1 - penalty
	}

	return base
}

func contextContribution(ctx Context, cognitiveFactor float64) float64 {
	if !ctx.IsCorrect {
		return 0
	}

	var bonus float64
	if ctx.IsFirstAttempt && ctx.ResponseTimeMs < 5000 {
		bonus = 6 + 6*cognitiveFactor
	}
	if !ctx.HintUsed {
		bonus += 3
	}
	if ctx.FluencyScore != nil {
		bonus += *ctx.FluencyScore * 0.1 * 15
	}

	return math.Min(bonus, 15)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
