package domain

import "time"

// Snapshot types are the concrete, serializable shapes of each component's
// internal state. They live in domain (not the owning package) so the
// persistence layer can depend on domain alone without importing every
// component package, and so components can convert to/from them without a
// cyclic import.

// BanditModelSnapshot is the LinUCB model's persisted state. L is always the
// canonical inverse representation (never a direct matrix inverse).
type BanditModelSnapshot struct {
	D           int         `json:"d"`
	Lambda      float64     `json:"lambda"`
	Alpha       float64     `json:"alpha"`
	UpdateCount int64       `json:"update_count"`
	A           [][]float64 `json:"a"`
	B           []float64   `json:"b"`
	L           [][]float64 `json:"l"`
}

// MdmItemState is one item's memory-trace state within MDM.
type MdmItemState struct {
	Strength      float64   `json:"strength"`
	Consolidation float64   `json:"consolidation"`
	LastReviewed  time.Time `json:"last_reviewed"`
	ReviewCount   int       `json:"review_count"`
}

// MasteryAttempt is one recorded attempt in a user's mastery history.
type MasteryAttempt struct {
	Score     float64   `json:"score"`
	Margin    float64   `json:"margin"`
	Timestamp time.Time `json:"timestamp"`
}

// MasteryHistorySnapshot is the persisted ring of recent attempts plus the
// running counters derived from them.
type MasteryHistorySnapshot struct {
	Attempts      []MasteryAttempt `json:"attempts"`
	NearMissCount int              `json:"near_miss_count"`
	EasyPassCount int              `json:"easy_pass_count"`
}

// BinaryClassifierSnapshot is one VARK dimension's logistic-regression state.
type BinaryClassifierSnapshot struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// VarkSnapshot is the full persisted VARK classifier ensemble.
type VarkSnapshot struct {
	Visual          BinaryClassifierSnapshot `json:"visual"`
	Auditory        BinaryClassifierSnapshot `json:"auditory"`
	Reading         BinaryClassifierSnapshot `json:"reading"`
	Kinesthetic     BinaryClassifierSnapshot `json:"kinesthetic"`
	SampleCount     int                      `json:"sample_count"`
	LastCalibration int                      `json:"last_calibration"`
}

// LearningStyleScores is the normalized output of the VARK ensemble for a
// single prediction, with the richer analysis surface recovered from the
// original implementation this classifier was distilled from.
type LearningStyleScores struct {
	Visual      float64 `json:"visual"`
	Auditory    float64 `json:"auditory"`
	Reading     float64 `json:"reading"`
	Kinesthetic float64 `json:"kinesthetic"`
}

// Normalize returns a copy scaled so the four scores sum to 1. If all scores
// are zero it returns all zeros.
func (s LearningStyleScores) Normalize() LearningStyleScores {
	sum := s.Visual + s.Auditory + s.Reading + s.Kinesthetic
	if sum <= 0 {
		return LearningStyleScores{}
	}
	return LearningStyleScores{
		Visual:      s.Visual / sum,
		Auditory:    s.Auditory / sum,
		Reading:     s.Reading / sum,
		Kinesthetic: s.Kinesthetic / sum,
	}
}

// Variance returns the population variance across the four (already
// normalized) scores — low variance means no single style dominates.
func (s LearningStyleScores) Variance() float64 {
	vals := [4]float64{s.Visual, s.Auditory, s.Reading, s.Kinesthetic}
	mean := (vals[0] + vals[1] + vals[2] + vals[3]) / 4
	var sumSq float64
	for _, v := range vals {
		d := v - mean
		sumSq += d * d
	}
	return sumSq / 4
}

// IsMultimodal reports whether no single style clearly dominates.
func (s LearningStyleScores) IsMultimodal() bool {
	return s.Normalize().Variance() < 0.01
}

// DominantStyle returns the name of the highest-scoring style.
func (s LearningStyleScores) DominantStyle() string {
	n := s.Normalize()
	best, name := n.Visual, "visual"
	if n.Auditory > best {
		best, name = n.Auditory, "auditory"
	}
	if n.Reading > best {
		best, name = n.Reading, "reading"
	}
	if n.Kinesthetic > best {
		best, name = n.Kinesthetic, "kinesthetic"
	}
	return name
}

// LegacyStyle maps the fine-grained dominant style onto the coarser
// visual/auditory/kinesthetic/mixed buckets older consumers expect: reading
// and multimodal profiles both collapse to "mixed".
func (s LearningStyleScores) LegacyStyle() string {
	if s.IsMultimodal() {
		return "mixed"
	}
	d := s.DominantStyle()
	if d == "reading" {
		return "mixed"
	}
	return d
}
