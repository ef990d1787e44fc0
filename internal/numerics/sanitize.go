// Package numerics holds the numerical-stability kernel shared by the
// bandit and diagnostics packages: sanitization of feature vectors and
// covariance matrices, and the rank-1 Cholesky update used to avoid
// recomputing a full matrix inverse on every observation.
package numerics

import "math"

// Constants of the sanitization kernel. They bound what "numerically
// healthy" means for this engine and are fixed values, not tuning knobs;
// see DESIGN.md.
const (
	MaxFeatureAbs = 50.0
	MaxCovariance = 1e9
	MinLambda     = 1e-3
	MinRank1Diag  = 1e-6
	Epsilon       = 1e-10
)

// HasInvalidValues reports whether any element is NaN or infinite.
func HasInvalidValues(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// SanitizeFeatureVector replaces NaN/Inf with 0 and clamps every element to
// [-MaxFeatureAbs, MaxFeatureAbs], in place.
func SanitizeFeatureVector(x []float64) {
	for i, v := range x {
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			x[i] = 0
		case v > MaxFeatureAbs:
			x[i] = MaxFeatureAbs
		case v < -MaxFeatureAbs:
			x[i] = -MaxFeatureAbs
		}
	}
}

// SanitizeCovariance repairs a row-major d×d covariance matrix in place:
// NaN/Inf diagonal entries reset to a safe lambda floor, NaN/Inf off-diagonal
// entries reset to 0, magnitudes are clamped to MaxCovariance, diagonal
// entries are floored at max(lambda, MinLambda), and symmetry is enforced by
// averaging each (i,j)/(j,i) pair.
func SanitizeCovariance(a []float64, d int, lambda float64) {
	safeLambda := math.Max(lambda, MinLambda)

	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			idx := i*d + j
			val := a[idx]

			if math.IsNaN(val) || math.IsInf(val, 0) {
				if i == j {
					a[idx] = safeLambda
				} else {
					a[idx] = 0
				}
				continue
			}

			if math.Abs(val) > MaxCovariance {
				a[idx] = math.Copysign(MaxCovariance, val)
			}
		}

		diagIdx := i*d + i
		if a[diagIdx] < safeLambda {
			a[diagIdx] = safeLambda
		}
	}

	for i := 0; i < d; i++ {
		for j := i + 1; j < d; j++ {
			avg := (a[i*d+j] + a[j*d+i]) / 2
			a[i*d+j] = avg
			a[j*d+i] = avg
		}
	}
}

// NeedsFullRecompute reports whether the rank-1-updated Cholesky factor L
// (row-major d×d) should be discarded and recomputed from scratch: every
// 100th update unconditionally, or when L's diagonal shows NaN/Inf/too-small
// entries, or when the raw (unsquared) diagonal ratio exceeds 1e8.
func NeedsFullRecompute(updateCount uint64, l []float64, d int) bool {
	if updateCount%100 == 0 {
		return true
	}

	for i := 0; i < d; i++ {
		diag := l[i*d+i]
		if math.IsNaN(diag) || math.IsInf(diag, 0) || diag < MinRank1Diag {
			return true
		}
	}

	minDiag := math.MaxFloat64
	maxDiag := -math.MaxFloat64
	for i := 0; i < d; i++ {
		diag := l[i*d+i]
		if diag > 0 {
			minDiag = math.Min(minDiag, diag)
			maxDiag = math.Max(maxDiag, diag)
		}
	}

	if minDiag > 0 {
		if maxDiag/minDiag > 1e8 {
			return true
		}
	}

	return false
}

// DiagnosticResult is the health report for a bandit's (A, L) pair.
type DiagnosticResult struct {
	IsHealthy       bool
	HasNaN          bool
	HasInf          bool
	ConditionNumber float64
	MinDiagonal     float64
	MaxDiagonal     float64
	Message         string
}

// DiagnoseModel inspects A (row-major d×d) and L's diagonal for NaN/Inf and
// estimates a condition number as the SQUARED ratio of max to min diagonal
// of L — deliberately a different statistic from NeedsFullRecompute's raw
// ratio; both are kept, each tuned to its own use (a cheap per-update tripwire
// vs. a stricter on-demand health report).
func DiagnoseModel(a []float64, l []float64, d int) DiagnosticResult {
	var hasNaN, hasInf bool
	minDiagonal := math.MaxFloat64
	maxDiagonal := -math.MaxFloat64

	for _, v := range a {
		if math.IsNaN(v) {
			hasNaN = true
		}
		if math.IsInf(v, 0) {
			hasInf = true
		}
	}

	for i := 0; i < d; i++ {
		diag := l[i*d+i]
		if math.IsNaN(diag) {
			hasNaN = true
		}
		if math.IsInf(diag, 0) {
			hasInf = true
		}
		if diag > 0 && !math.IsNaN(diag) && !math.IsInf(diag, 0) {
			minDiagonal = math.Min(minDiagonal, diag)
			maxDiagonal = math.Max(maxDiagonal, diag)
		}
	}

	var conditionNumber float64
	if minDiagonal > Epsilon {
		ratio := maxDiagonal / minDiagonal
		conditionNumber = ratio * ratio
	} else {
		conditionNumber = math.MaxFloat64
	}

	isHealthy := !hasNaN && !hasInf && conditionNumber < 1e12

	var message string
	switch {
	case isHealthy:
		message = "Model is healthy"
	case hasNaN:
		message = "Model contains NaN values"
	case hasInf:
		message = "Model contains infinite values"
	default:
		message = "Model has high condition number"
	}

	if minDiagonal == math.MaxFloat64 {
		minDiagonal = 0
	}
	if maxDiagonal == -math.MaxFloat64 {
		maxDiagonal = 0
	}

	return DiagnosticResult{
		IsHealthy:       isHealthy,
		HasNaN:          hasNaN,
		HasInf:          hasInf,
		ConditionNumber: conditionNumber,
		MinDiagonal:     minDiagonal,
		MaxDiagonal:     maxDiagonal,
		Message:         message,
	}
}
