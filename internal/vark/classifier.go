// Package vark implements the four-dimensional VARK learning-style
// classifier: one independent one-vs-rest logistic-regression model per
// style (Visual, Auditory, Reading, Kinesthetic), trained online with
// time-decayed SGD.
package vark

import (
	"math"
	"time"

	"github.com/tutu-network/tutu/internal/domain"
)

// FeatureDimension is the shared input feature vector width for all four
// binary classifiers.
const FeatureDimension = 16

// Calibration constants, fixed by the source this classifier was
// distilled from.
const (
	LearningRate       = 0.005
	L2Lambda           = 0.001
	Tau                = 14 * 24 * time.Hour
	ColdStartThreshold = 50
	CalibrationPeriod  = 100
)

// TimeDecayWeight returns exp(-age/τ): strictly decreasing in age, always
// in (0, 1].
func TimeDecayWeight(age time.Duration) float64 {
	return math.Exp(-float64(age) / float64(Tau))
}

// BinaryClassifier is one style's logistic-regression model.
type BinaryClassifier struct {
	Weights []float64
	Bias    float64
}

func newBinaryClassifier() BinaryClassifier {
	return BinaryClassifier{Weights: make([]float64, FeatureDimension)}
}

// PredictProba returns σ(w·x + b).
func (c BinaryClassifier) PredictProba(x []float64) float64 {
	z := c.Bias
	for i, v := range x {
		if i >= len(c.Weights) {
			break
		}
		z += c.Weights[i] * v
	}
	return sigmoid(z)
}

// Update applies one time-decayed, L2-regularized SGD step toward label y,
// where the sample was observed at tSample and the update is applied at
// tNow.
func (c *BinaryClassifier) Update(x []float64, y float64, tSample, tNow time.Time) {
	age := tNow.Sub(tSample)
	if age < 0 {
		age = 0
	}
	weight := TimeDecayWeight(age)

	p := c.PredictProba(x)
	err := y - p

	for i := range c.Weights {
		var xi float64
		if i < len(x) {
			xi = x[i]
		}
		c.Weights[i] += LearningRate * (weight*err*xi - L2Lambda*c.Weights[i])
	}
	c.Bias += LearningRate * weight * err
}

func (c BinaryClassifier) snapshot() domain.BinaryClassifierSnapshot {
	return domain.BinaryClassifierSnapshot{Weights: append([]float64(nil), c.Weights...), Bias: c.Bias}
}

// Classifier is the four-dimensional VARK ensemble for one user.
type Classifier struct {
	Visual      BinaryClassifier
	Auditory    BinaryClassifier
	Reading     BinaryClassifier
	Kinesthetic BinaryClassifier

	SampleCount     int
	LastCalibration int
}

// New returns a freshly initialized (all-zero) classifier ensemble.
func New() *Classifier {
	return &Classifier{
		Visual:      newBinaryClassifier(),
		Auditory:    newBinaryClassifier(),
		Reading:     newBinaryClassifier(),
		Kinesthetic: newBinaryClassifier(),
	}
}

// Labels is the observed ground truth for one update, one bit per style.
type Labels struct {
	Visual      float64
	Auditory    float64
	Reading     float64
	Kinesthetic float64
}

// Predict returns the raw (pre-normalization) probability from each of the
// four classifiers.
func (c *Classifier) Predict(x []float64) domain.LearningStyleScores {
	return domain.LearningStyleScores{
		Visual:      c.Visual.PredictProba(x),
		Auditory:    c.Auditory.PredictProba(x),
		Reading:     c.Reading.PredictProba(x),
		Kinesthetic: c.Kinesthetic.PredictProba(x),
	}
}

// Update folds one labeled observation into all four classifiers and
// advances the sample counter.
func (c *Classifier) Update(x []float64, labels Labels, tSample, tNow time.Time) {
	c.Visual.Update(x, labels.Visual, tSample, tNow)
	c.Auditory.Update(x, labels.Auditory, tSample, tNow)
	c.Reading.Update(x, labels.Reading, tSample, tNow)
	c.Kinesthetic.Update(x, labels.Kinesthetic, tSample, tNow)
	c.SampleCount++
}

// IsEnabled reports whether the ensemble has cleared the cold-start
// threshold and can be trusted by callers.
func (c *Classifier) IsEnabled() bool {
	return c.SampleCount >= ColdStartThreshold
}

// NeedsCalibration reports whether CalibrationPeriod new samples have
// accumulated since the last calibration.
func (c *Classifier) NeedsCalibration() bool {
	return c.SampleCount-c.LastCalibration >= CalibrationPeriod
}

// Calibrate records that a recalibration pass has just run.
func (c *Classifier) Calibrate() {
	c.LastCalibration = c.SampleCount
}

// Snapshot returns the ensemble's persistable state.
func (c *Classifier) Snapshot() domain.VarkSnapshot {
	return domain.VarkSnapshot{
		Visual:          c.Visual.snapshot(),
		Auditory:        c.Auditory.snapshot(),
		Reading:         c.Reading.snapshot(),
		Kinesthetic:     c.Kinesthetic.snapshot(),
		SampleCount:     c.SampleCount,
		LastCalibration: c.LastCalibration,
	}
}

// Restore rebuilds a Classifier from a persisted snapshot.
func Restore(snap domain.VarkSnapshot) *Classifier {
	restoreOne := func(s domain.BinaryClassifierSnapshot) BinaryClassifier {
		w := make([]float64, FeatureDimension)
		copy(w, s.Weights)
		return BinaryClassifier{Weights: w, Bias: s.Bias}
	}
	return &Classifier{
		Visual:          restoreOne(snap.Visual),
		Auditory:        restoreOne(snap.Auditory),
		Reading:         restoreOne(snap.Reading),
		Kinesthetic:     restoreOne(snap.Kinesthetic),
		SampleCount:     snap.SampleCount,
		LastCalibration: snap.LastCalibration,
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
