package numerics

import "math"

// All matrices here are row-major, flattened d*d slices. L is always lower
// triangular: A = L L^T. Direct matrix inversion is never used — every
// consumer goes through L via forward/backward substitution.

// RankOneUpdateMatrix performs A += x x^T in place.
func RankOneUpdateMatrix(a []float64, x []float64, d int) {
	for i := 0; i < d; i++ {
		xi := x[i]
		if xi == 0 {
			continue
		}
		row := i * d
		for j := 0; j < d; j++ {
			a[row+j] += xi * x[j]
		}
	}
}

// VecAddScaled performs b += scale * x in place.
func VecAddScaled(b []float64, x []float64, scale float64) {
	for i := range b {
		b[i] += scale * x[i]
	}
}

// DotProduct returns the inner product of two equal-length vectors.
func DotProduct(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// CholeskyDecompose computes the lower-triangular Cholesky factor of a d×d
// matrix a, flooring diagonal pivots at lambda to stay numerically safe on
// near-singular input.
func CholeskyDecompose(a []float64, d int, lambda float64) []float64 {
	l := make([]float64, d*d)
	floor := math.Max(lambda, MinLambda)

	for i := 0; i < d; i++ {
		for j := 0; j <= i; j++ {
			sum := a[i*d+j]
			for k := 0; k < j; k++ {
				sum -= l[i*d+k] * l[j*d+k]
			}
			if i == j {
				v := sum
				if v < floor {
					v = floor
				}
				l[i*d+i] = math.Sqrt(v)
			} else {
				diag := l[j*d+j]
				if diag < MinRank1Diag {
					diag = MinRank1Diag
				}
				l[i*d+j] = sum / diag
			}
		}
	}
	return l
}

// CholeskyRankOneUpdate updates L in place so that L L^T reflects the old
// A plus x x^T, without recomputing the full factorization (Seeger's rank-1
// Cholesky update). Returns false if the update would produce a diagonal
// pivot below minDiag or a non-finite value, in which case the caller should
// fall back to a full CholeskyDecompose.
func CholeskyRankOneUpdate(l []float64, x []float64, d int, minDiag float64) bool {
	work := make([]float64, d)
	copy(work, x)

	for k := 0; k < d; k++ {
		diag := l[k*d+k]
		if diag < minDiag || math.IsNaN(diag) || math.IsInf(diag, 0) {
			return false
		}

		r := math.Sqrt(diag*diag + work[k]*work[k])
		if math.IsNaN(r) || math.IsInf(r, 0) || r < minDiag {
			return false
		}
		c := r / diag
		s := work[k] / diag

		l[k*d+k] = r
		for i := k + 1; i < d; i++ {
			updated := (l[i*d+k] + s*work[i]) / c
			work[i] = c*work[i] - s*updated
			l[i*d+k] = updated
		}
	}
	return true
}

// SolveCholesky solves (L L^T) theta = b via forward then backward
// substitution, returning theta.
func SolveCholesky(l []float64, b []float64, d int) []float64 {
	y := forwardSubstitute(l, b, d)
	return backwardSubstituteTranspose(l, y, d)
}

// ComputeQuadraticForm returns x^T A^{-1} x = ||L^{-1} x||^2, computed via a
// single forward substitution rather than an explicit inverse.
func ComputeQuadraticForm(l []float64, x []float64, d int) float64 {
	z := forwardSubstitute(l, x, d)
	var sum float64
	for _, v := range z {
		sum += v * v
	}
	return sum
}

// forwardSubstitute solves L y = b for a lower-triangular L.
func forwardSubstitute(l []float64, b []float64, d int) []float64 {
	y := make([]float64, d)
	for i := 0; i < d; i++ {
		sum := b[i]
		for j := 0; j < i; j++ {
			sum -= l[i*d+j] * y[j]
		}
		diag := l[i*d+i]
		if diag < MinRank1Diag {
			diag = MinRank1Diag
		}
		y[i] = sum / diag
	}
	return y
}

// backwardSubstituteTranspose solves L^T theta = y.
func backwardSubstituteTranspose(l []float64, y []float64, d int) []float64 {
	theta := make([]float64, d)
	for i := d - 1; i >= 0; i-- {
		sum := y[i]
		for j := i + 1; j < d; j++ {
			sum -= l[j*d+i] * theta[j]
		}
		diag := l[i*d+i]
		if diag < MinRank1Diag {
			diag = MinRank1Diag
		}
		theta[i] = sum / diag
	}
	return theta
}
