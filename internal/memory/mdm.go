// Package memory implements the MDM (memory-dynamics model): per-item
// strength/consolidation state, updated on every review and decayed between
// them, feeding an activation and recall-probability estimate into the
// adaptive mastery engine.
package memory

import (
	"math"
	"time"
)

// Config holds the MDM's calibration constants. τ_s/τ_c (exp(-t/τ) decay time constants)
// and η_s/η_f/η_c (integration rates) are explicitly uncalibrated in the
// source this model was distilled from — these are the values chosen for
// this engine; see DESIGN.md.
type Config struct {
	TauStrength      time.Duration // strength decay time constant
	TauConsolidation time.Duration // consolidation decay time constant
	EtaSuccess       float64       // strength gain per unit of recall quality
	EtaFail          float64       // strength loss per unit of recall failure
	EtaConsolidation float64       // consolidation integration rate from strength

	AlphaStrength      float64 // activation weight on strength
	AlphaConsolidation float64 // activation weight on consolidation
	NoiseScale         float64 // std-dev scale of the activation noise term
	RecallThreshold    float64 // activation threshold recall_probability centers on
}

// DefaultConfig returns this engine's calibrated MDM constants.
func DefaultConfig() Config {
	return Config{
		TauStrength:        24 * time.Hour,
		TauConsolidation:   7 * 24 * time.Hour,
		EtaSuccess:         0.18,
		EtaFail:            0.22,
		EtaConsolidation:   0.10,
		AlphaStrength:      0.6,
		AlphaConsolidation: 0.4,
		NoiseScale:         0.03,
		RecallThreshold:    0.5,
	}
}

// ItemState is one user×item's memory trace.
type ItemState struct {
	Strength      float64
	Consolidation float64
	LastTS        time.Time
	ReviewCount   int
}

// Update applies exponential decay since LastTS, then integrates the new
// review's quality q ∈ [0,1]. Strength and consolidation are always clamped
// to [0,1] and rise monotonically under a sequence of perfect (q=1) recalls.
func Update(cfg Config, s *ItemState, quality float64, now time.Time) {
	if !s.LastTS.IsZero() && now.After(s.LastTS) {
		elapsed := now.Sub(s.LastTS)
		s.Strength *= math.Exp(-float64(elapsed) / float64(cfg.TauStrength))
		s.Consolidation *= math.Exp(-float64(elapsed) / float64(cfg.TauConsolidation))
	}

	q := clamp01(quality)
	s.Strength = clamp01(s.Strength + cfg.EtaSuccess*q - cfg.EtaFail*(1-q))
	s.Consolidation = clamp01(s.Consolidation + cfg.EtaConsolidation*s.Strength)

	s.LastTS = now
	s.ReviewCount++
}

// Activation computes the noisy activation used for recall probability,
// alongside the noise-free base activation. noiseSample is a caller-supplied
// draw from N(0,1); tests can pin it to make the result deterministic.
func Activation(cfg Config, s ItemState, noiseSample float64) (activation, baseActivation, recallProbability float64) {
	baseActivation = cfg.AlphaStrength*s.Strength + cfg.AlphaConsolidation*s.Consolidation
	activation = baseActivation + noiseSample*cfg.NoiseScale
	recallProbability = sigmoid(activation - cfg.RecallThreshold)
	return activation, baseActivation, recallProbability
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
