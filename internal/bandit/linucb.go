// Package bandit implements the LinUCB contextual bandit that chooses a
// review difficulty for each item: a disjoint linear model per observation
// stream, scored as exploitation (θ·x) plus an α-scaled confidence radius
// (√(x^T A^{-1} x)), with the covariance inverse tracked as a Cholesky
// factor and updated rank-1 per observation instead of being recomputed
// from scratch every time.
package bandit

import (
	"math"
	"sync"

	"github.com/tutu-network/tutu/internal/domain"
	"github.com/tutu-network/tutu/internal/numerics"
)

// FeatureDimension is the fixed width of the bandit's feature vector: 5
// state + 1 error-rate + 5 one-hot difficulty + 1 interaction + 3 time +
// 6 cross-terms + 1 bias.
const FeatureDimension = 22

// ─── Configuration ──────────────────────────────────────────────────────────

// Config configures a Model.
type Config struct {
	// Alpha scales the exploration (confidence) term. Higher explores more.
	Alpha float64
	// Lambda is the ridge-regression regularization strength; also floors
	// the covariance diagonal during sanitization.
	Lambda float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{Alpha: 0.3, Lambda: 1.0}
}

func (c Config) sanitized() Config {
	if c.Lambda < numerics.MinLambda {
		c.Lambda = 1.0
	}
	if c.Alpha < 0 {
		c.Alpha = DefaultConfig().Alpha
	}
	return c
}

// ─── Model ──────────────────────────────────────────────────────────────────

// Model is one disjoint LinUCB arm set, guarded by a mutex so concurrent
// callers serialize safely — though §5 of the engine design expects callers
// to already serialize per user, this makes Model safe to share regardless.
type Model struct {
	mu sync.RWMutex

	a           []float64 // d*d, A = X^T X + λI
	b           []float64 // d, b = X^T y
	l           []float64 // d*d, Cholesky factor of A
	lambda      float64
	alpha       float64
	d           int
	updateCount uint64
}

// NewModel constructs a Model with A = λI, b = 0, L = √λ·I.
func NewModel(cfg Config) *Model {
	cfg = cfg.sanitized()
	d := FeatureDimension
	sqrtLambda := math.Sqrt(cfg.Lambda)

	a := make([]float64, d*d)
	l := make([]float64, d*d)
	for i := 0; i < d; i++ {
		a[i*d+i] = cfg.Lambda
		l[i*d+i] = sqrtLambda
	}

	return &Model{
		a:      a,
		b:      make([]float64, d),
		l:      l,
		lambda: cfg.Lambda,
		alpha:  cfg.Alpha,
		d:      d,
	}
}

// Candidate pairs an action with the context it would be evaluated under.
type Candidate struct {
	Difficulty domain.Difficulty
}

// Selection is the outcome of SelectAction.
type Selection struct {
	Index        int
	Difficulty   domain.Difficulty
	Exploitation float64
	Exploration  float64
	Score        float64
	AllScores    []float64
}

// BuildFeatureVector constructs the 22-dimensional feature vector for a
// (state, difficulty, context) triple. Exported so the engine can build and
// sanitize a feature vector once and reuse it for both selection and the
// later Update call, keeping the two in lockstep.
func BuildFeatureVector(state domain.UserState, difficulty domain.Difficulty, ctx domain.BanditContext) []float64 {
	x := make([]float64, FeatureDimension)
	idx := 0

	// state features (5)
	x[idx] = state.MasteryLevel
	idx++
	x[idx] = state.RecentAccuracy
	idx++
	x[idx] = math.Min(float64(state.StudyStreak), 30) / 30
	idx++
	x[idx] = math.Log1p(float64(state.TotalInteractions)) / 10
	idx++
	x[idx] = math.Min(state.AverageResponseTimeMs/10000, 1)
	idx++

	// error-rate feature (1)
	x[idx] = 1 - state.RecentAccuracy
	idx++

	// one-hot difficulty (5)
	diffIdx := int(difficulty)
	for i := 0; i < 5; i++ {
		if i == diffIdx {
			x[idx+i] = 1
		}
	}
	idx += 5

	// interaction feature (1)
	diffWeight := difficulty.Weight()
	x[idx] = state.MasteryLevel * diffWeight
	idx++

	// time features (3)
	x[idx] = ctx.TimeOfDay
	idx++
	x[idx] = float64(ctx.DayOfWeek) / 6
	idx++
	x[idx] = math.Min(ctx.SessionDurationSec/3600, 1)
	idx++

	// cross features (6)
	fatigue := ctx.FatigueFactor
	x[idx] = state.MasteryLevel * state.RecentAccuracy
	idx++
	x[idx] = state.MasteryLevel * ctx.TimeOfDay
	idx++
	x[idx] = state.RecentAccuracy * diffWeight
	idx++
	x[idx] = ctx.TimeOfDay * diffWeight
	idx++
	x[idx] = state.MasteryLevel * (1 - fatigue)
	idx++
	x[idx] = state.RecentAccuracy * (1 - fatigue)
	idx++

	// bias (1)
	x[idx] = 1.0

	return x
}

type ucbStats struct {
	theta        []float64
	exploitation float64
	confidence   float64
	score        float64
}

func (m *Model) computeUCBStats(x []float64) ucbStats {
	theta := numerics.SolveCholesky(m.l, m.b, m.d)
	exploitation := numerics.DotProduct(theta, x)
	quadratic := numerics.ComputeQuadraticForm(m.l, x, m.d)
	confidence := math.Sqrt(math.Max(quadratic, 0))
	score := exploitation + m.alpha*confidence
	return ucbStats{theta: theta, exploitation: exploitation, confidence: confidence, score: score}
}

// SelectAction scores every candidate and returns the best-scoring one. If
// candidates is empty, returns a zero-value Selection with Score = -Inf and a
// nil error: an empty candidate list is a sentinel result, not a failure.
func (m *Model) SelectAction(state domain.UserState, candidates []Candidate, ctx domain.BanditContext) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{Score: math.Inf(-1)}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	bestIdx := 0
	bestScore := math.Inf(-1)
	allScores := make([]float64, len(candidates))
	var bestExploit, bestExplore float64

	for i, c := range candidates {
		x := BuildFeatureVector(state, c.Difficulty, ctx)
		numerics.SanitizeFeatureVector(x)

		stats := m.computeUCBStats(x)
		allScores[i] = stats.score

		if stats.score > bestScore {
			bestScore = stats.score
			bestIdx = i
			bestExploit = stats.exploitation
			bestExplore = stats.confidence
		}
	}

	return Selection{
		Index:        bestIdx,
		Difficulty:   candidates[bestIdx].Difficulty,
		Exploitation: bestExploit,
		Exploration:  bestExplore,
		Score:        bestScore,
		AllScores:    allScores,
	}, nil
}

// Update folds one (state, difficulty, context, reward) observation into the
// model: A += x x^T, b += reward*x, then either a rank-1 Cholesky update or a
// full recompute depending on numerics.NeedsFullRecompute.
func (m *Model) Update(state domain.UserState, difficulty domain.Difficulty, ctx domain.BanditContext, reward float64) {
	x := BuildFeatureVector(state, difficulty, ctx)
	m.UpdateWithFeatureVector(x, reward)
}

// UpdateWithFeatureVector updates the model directly from a precomputed
// feature vector — used when the caller already built one during selection
// and wants to guarantee the update uses the exact same vector.
func (m *Model) UpdateWithFeatureVector(x []float64, reward float64) {
	if len(x) != m.d {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	xs := append([]float64(nil), x...)
	numerics.SanitizeFeatureVector(xs)

	needRecompute := numerics.NeedsFullRecompute(m.updateCount, m.l, m.d)

	numerics.RankOneUpdateMatrix(m.a, xs, m.d)
	numerics.VecAddScaled(m.b, xs, reward)

	if needRecompute {
		numerics.SanitizeCovariance(m.a, m.d, m.lambda)
		m.l = numerics.CholeskyDecompose(m.a, m.d, m.lambda)
	} else {
		ok := numerics.CholeskyRankOneUpdate(m.l, xs, m.d, numerics.MinRank1Diag)
		if !ok {
			numerics.SanitizeCovariance(m.a, m.d, m.lambda)
			m.l = numerics.CholeskyDecompose(m.a, m.d, m.lambda)
		}
	}

	m.updateCount++
}

// UpdateBatch applies a batch of (featureVector, reward) pairs, skipping any
// vector whose dimension doesn't match. Returns the number applied.
func (m *Model) UpdateBatch(vectors [][]float64, rewards []float64) int {
	n := len(vectors)
	if len(rewards) < n {
		n = len(rewards)
	}
	applied := 0
	for i := 0; i < n; i++ {
		if len(vectors[i]) != FeatureDimension {
			continue
		}
		m.UpdateWithFeatureVector(vectors[i], rewards[i])
		applied++
	}
	return applied
}

// Diagnose reports the model's numerical health (C8 bandit self-diagnosis).
func (m *Model) Diagnose() numerics.DiagnosticResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return numerics.DiagnoseModel(m.a, m.l, m.d)
}

// SelfTest reports whether Diagnose() considers the model healthy.
func (m *Model) SelfTest() bool {
	return m.Diagnose().IsHealthy
}

// Snapshot returns the model's persistable state.
func (m *Model) Snapshot() domain.BanditModelSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.BanditModelSnapshot{
		D:           m.d,
		Lambda:      m.lambda,
		Alpha:       m.alpha,
		UpdateCount: int64(m.updateCount),
		A:           unflatten(m.a, m.d),
		B:           append([]float64(nil), m.b...),
		L:           unflatten(m.l, m.d),
	}
}

// Restore replaces the model's state from a snapshot, refusing a dimension
// mismatch rather than silently truncating.
func (m *Model) Restore(snap domain.BanditModelSnapshot) error {
	if snap.D != m.d {
		return domain.ErrStateDimensionMismatch
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.a = flatten(snap.A, m.d)
	m.b = append([]float64(nil), snap.B...)
	m.l = flatten(snap.L, m.d)
	m.lambda = snap.Lambda
	m.alpha = snap.Alpha
	m.updateCount = uint64(snap.UpdateCount)
	return nil
}

// Reset discards all observations, returning the model to its initial state.
func (m *Model) Reset() {
	m.mu.Lock()
	lambda, alpha := m.lambda, m.alpha
	m.mu.Unlock()
	fresh := NewModel(Config{Alpha: alpha, Lambda: lambda})
	m.mu.Lock()
	defer m.mu.Unlock()
	m.a, m.b, m.l, m.updateCount = fresh.a, fresh.b, fresh.l, 0
}

// Alpha returns the current exploration parameter.
func (m *Model) Alpha() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alpha
}

// SetAlpha sets the exploration parameter, clamped to be non-negative.
func (m *Model) SetAlpha(v float64) {
	if v < 0 {
		v = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alpha = v
}

// UpdateCount returns the number of observations folded in so far.
func (m *Model) UpdateCount() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updateCount
}

// ColdStartAlpha computes an adaptive exploration rate for a user who hasn't
// accumulated much history yet: more exploration with fewer interactions or
// an unstable accuracy signal, less when visibly fatigued.
func ColdStartAlpha(interactionCount int64, recentAccuracy, fatigue float64) float64 {
	const baseAlpha = 0.3

	var interactionFactor float64
	switch {
	case interactionCount < 10:
		interactionFactor = 2.0
	case interactionCount < 50:
		interactionFactor = 1.5
	case interactionCount < 200:
		interactionFactor = 1.2
	default:
		interactionFactor = 1.0
	}

	accuracyFactor := 1.0
	if recentAccuracy < 0.3 || recentAccuracy > 0.9 {
		accuracyFactor = 1.3
	}

	fatigueFactor := 1.0 - fatigue*0.3

	return baseAlpha * interactionFactor * accuracyFactor * fatigueFactor
}

func unflatten(v []float64, d int) [][]float64 {
	out := make([][]float64, d)
	for i := 0; i < d; i++ {
		out[i] = append([]float64(nil), v[i*d:i*d+d]...)
	}
	return out
}

func flatten(m [][]float64, d int) []float64 {
	out := make([]float64, d*d)
	for i := 0; i < d && i < len(m); i++ {
		copy(out[i*d:i*d+d], m[i])
	}
	return out
}
