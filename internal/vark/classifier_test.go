package vark

import (
	"math"
	"testing"
	"time"

	"github.com/tutu-network/tutu/internal/domain"
)

// S7 — time decay monotone: w(0)=1.0, w(τ)=1/e, strictly decreasing.
func TestTimeDecayWeightMonotoneAndBounded(t *testing.T) {
	if w := TimeDecayWeight(0); w != 1.0 {
		t.Fatalf("w(0) = %v, want 1.0", w)
	}
	if w := TimeDecayWeight(Tau); math.Abs(w-1/math.E) > 1e-9 {
		t.Fatalf("w(tau) = %v, want 1/e", w)
	}

	ages := []time.Duration{
		0, time.Second, time.Minute, time.Hour, 24 * time.Hour,
		Tau / 2, Tau, 2 * Tau, 10 * Tau,
	}
	prev := math.Inf(1)
	for _, age := range ages {
		w := TimeDecayWeight(age)
		if w <= 0 || w > 1 {
			t.Fatalf("w(%v) = %v, out of (0,1]", age, w)
		}
		if w >= prev {
			t.Fatalf("weight not strictly decreasing at age %v: prev=%v got=%v", age, prev, w)
		}
		prev = w
	}
}

func TestPredictProbaIsBoundedProbability(t *testing.T) {
	c := newBinaryClassifier()
	x := make([]float64, FeatureDimension)
	for i := range x {
		x[i] = float64(i) / float64(FeatureDimension)
	}
	p := c.PredictProba(x)
	if p <= 0 || p >= 1 {
		t.Fatalf("p = %v, want in (0,1)", p)
	}
}

func TestUpdateMovesPredictionTowardLabel(t *testing.T) {
	c := newBinaryClassifier()
	x := make([]float64, FeatureDimension)
	for i := range x {
		x[i] = 1.0
	}
	now := time.Now()

	before := c.PredictProba(x)
	for i := 0; i < 200; i++ {
		c.Update(x, 1.0, now, now)
	}
	after := c.PredictProba(x)

	if after <= before {
		t.Fatalf("prediction should move toward label 1: before=%v after=%v", before, after)
	}
}

func TestWeightsStayFiniteAndBounded(t *testing.T) {
	c := newBinaryClassifier()
	x := make([]float64, FeatureDimension)
	for i := range x {
		x[i] = 1.0
	}
	now := time.Now()
	for i := 0; i < 5000; i++ {
		label := 0.0
		if i%2 == 0 {
			label = 1.0
		}
		c.Update(x, label, now, now)
	}
	for i, w := range c.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			t.Fatalf("weight[%d] is non-finite: %v", i, w)
		}
		if math.Abs(w) >= 100 {
			t.Fatalf("weight[%d] = %v, should stay well under 100", i, w)
		}
	}
}

func TestClassifierGatingByColdStartThreshold(t *testing.T) {
	c := New()
	x := make([]float64, FeatureDimension)
	labels := Labels{Visual: 1}
	now := time.Now()

	for i := 0; i < ColdStartThreshold-1; i++ {
		c.Update(x, labels, now, now)
	}
	if c.IsEnabled() {
		t.Fatal("should not be enabled below cold start threshold")
	}
	c.Update(x, labels, now, now)
	if !c.IsEnabled() {
		t.Fatal("should be enabled at cold start threshold")
	}
}

func TestNeedsCalibrationPeriodic(t *testing.T) {
	c := New()
	x := make([]float64, FeatureDimension)
	now := time.Now()
	for i := 0; i < CalibrationPeriod; i++ {
		c.Update(x, Labels{}, now, now)
	}
	if !c.NeedsCalibration() {
		t.Fatal("expected calibration needed after CalibrationPeriod samples")
	}
	c.Calibrate()
	if c.NeedsCalibration() {
		t.Fatal("should not need calibration immediately after calibrating")
	}
}

// S3 (VARK analogue) — property 3: normalize sums to 1, all-zero stays zero.
func TestLearningStyleScoresNormalizeSumsToOne(t *testing.T) {
	s := domain.LearningStyleScores{Visual: 0.8, Auditory: 0.1, Reading: 0.05, Kinesthetic: 0.3}
	n := s.Normalize()
	sum := n.Visual + n.Auditory + n.Reading + n.Kinesthetic
	if math.Abs(sum-1.0) > 1e-9 {
		t.Fatalf("sum = %v, want 1.0", sum)
	}
}

func TestLearningStyleScoresAllZeroStaysZero(t *testing.T) {
	s := domain.LearningStyleScores{}
	n := s.Normalize()
	if n.Visual != 0 || n.Auditory != 0 || n.Reading != 0 || n.Kinesthetic != 0 {
		t.Fatalf("got %+v, want all zeros", n)
	}
}

func TestLearningStyleScoresIsMultimodalWhenFlat(t *testing.T) {
	s := domain.LearningStyleScores{Visual: 0.25, Auditory: 0.25, Reading: 0.25, Kinesthetic: 0.25}
	if !s.IsMultimodal() {
		t.Fatal("expected flat scores to be multimodal")
	}
}

func TestLearningStyleScoresDominantStyle(t *testing.T) {
	s := domain.LearningStyleScores{Visual: 0.7, Auditory: 0.1, Reading: 0.1, Kinesthetic: 0.1}
	if got := s.DominantStyle(); got != "visual" {
		t.Fatalf("got %v, want visual", got)
	}
}

func TestLearningStyleScoresLegacyStyleCollapsesReadingToMixed(t *testing.T) {
	s := domain.LearningStyleScores{Visual: 0.1, Auditory: 0.1, Reading: 0.7, Kinesthetic: 0.1}
	if got := s.LegacyStyle(); got != "mixed" {
		t.Fatalf("got %v, want mixed", got)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	c := New()
	x := make([]float64, FeatureDimension)
	for i := range x {
		x[i] = 0.5
	}
	now := time.Now()
	for i := 0; i < 10; i++ {
		c.Update(x, Labels{Visual: 1, Kinesthetic: 0}, now, now)
	}

	snap := c.Snapshot()
	restored := Restore(snap)

	if restored.SampleCount != c.SampleCount {
		t.Fatalf("sample count mismatch: %d vs %d", restored.SampleCount, c.SampleCount)
	}
	for i := range c.Visual.Weights {
		if restored.Visual.Weights[i] != c.Visual.Weights[i] {
			t.Fatalf("visual weight[%d] mismatch: %v vs %v", i, restored.Visual.Weights[i], c.Visual.Weights[i])
		}
	}
}
