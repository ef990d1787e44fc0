package mastery

import "github.com/tutu-network/tutu/internal/domain"

// MaxHistory is the fixed ring capacity — per-item memory stays O(1).
const MaxHistory = 20

const (
	nearMissThreshold = -0.1
	easyPassThreshold = 0.2
)

// Attempt is one recorded mastery decision.
type Attempt struct {
	Score     float64
	Threshold float64
	Mastered  bool
}

// Margin returns the attempt's normalized margin: (score-threshold)/threshold.
func (a Attempt) Margin() float64 {
	if a.Threshold == 0 {
		return 0
	}
	return (a.Score - a.Threshold) / a.Threshold
}

func (a Attempt) isNearMiss() bool {
	return !a.Mastered && a.Margin() > nearMissThreshold
}

func (a Attempt) isEasyPass() bool {
	return a.Mastered && a.Margin() > easyPassThreshold
}

// History is the fixed-capacity ring of recent mastery attempts for one
// item, tracking near-miss/easy-pass counters incrementally as entries are
// pushed and popped.
type History struct {
	attempts      []Attempt
	nearMissCount int
	easyPassCount int
	avgMargin     float64
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{attempts: make([]Attempt, 0, MaxHistory)}
}

// Record pushes a new attempt, evicting the oldest once at capacity, and
// adjusts the near-miss/easy-pass counters for the attempts added and evicted.
func (h *History) Record(score, threshold float64, mastered bool) {
	a := Attempt{Score: score, Threshold: threshold, Mastered: mastered}

	if len(h.attempts) >= MaxHistory {
		popped := h.attempts[0]
		h.attempts = h.attempts[1:]
		if popped.isNearMiss() {
			h.nearMissCount--
			if h.nearMissCount < 0 {
				h.nearMissCount = 0
			}
		}
		if popped.isEasyPass() {
			h.easyPassCount--
			if h.easyPassCount < 0 {
				h.easyPassCount = 0
			}
		}
	}

	h.attempts = append(h.attempts, a)
	if a.isNearMiss() {
		h.nearMissCount++
	}
	if a.isEasyPass() {
		h.easyPassCount++
	}

	h.avgMargin = h.computeAvgMargin()
}

func (h *History) computeAvgMargin() float64 {
	if len(h.attempts) == 0 {
		return 0
	}
	var sum float64
	for _, a := range h.attempts {
		sum += a.Margin()
	}
	return sum / float64(len(h.attempts))
}

// Len returns the number of recorded attempts (≤ MaxHistory).
func (h *History) Len() int { return len(h.attempts) }

// NearMissCount returns the current near-miss counter.
func (h *History) NearMissCount() int { return h.nearMissCount }

// EasyPassCount returns the current easy-pass counter.
func (h *History) EasyPassCount() int { return h.easyPassCount }

// AvgMargin returns the current average normalized margin across the ring.
func (h *History) AvgMargin() float64 { return h.avgMargin }

// Attempts returns a copy of the current ring, oldest first.
func (h *History) Attempts() []Attempt {
	out := make([]Attempt, len(h.attempts))
	copy(out, h.attempts)
	return out
}

// Snapshot returns the history's persistable state. Per-attempt timestamps
// aren't tracked internally, so they come back zero-valued; only the
// outcome counters and margins that drive ThresholdAdjustment round-trip.
func (h *History) Snapshot() domain.MasteryHistorySnapshot {
	attempts := make([]domain.MasteryAttempt, len(h.attempts))
	for i, a := range h.attempts {
		attempts[i] = domain.MasteryAttempt{Score: a.Score, Margin: a.Margin()}
	}
	return domain.MasteryHistorySnapshot{
		Attempts:      attempts,
		NearMissCount: h.nearMissCount,
		EasyPassCount: h.easyPassCount,
	}
}

// RestoreHistory rebuilds a History from a persisted snapshot. Each
// attempt's threshold is recovered from score and margin
// (threshold = score / (1 + margin)); Mastered is recovered from the sign
// of the margin, exactly as it was when first recorded.
func RestoreHistory(snap domain.MasteryHistorySnapshot) *History {
	h := NewHistory()
	for _, a := range snap.Attempts {
		threshold := a.Score
		if denom := 1 + a.Margin; denom != 0 {
			threshold = a.Score / denom
		}
		h.Record(a.Score, threshold, a.Margin >= 0)
	}
	return h
}

// ThresholdAdjustment computes the history-driven multiplier applied on top
// of the difficulty-adjusted threshold, clamped to [0.85, 1.15].
func (h *History) ThresholdAdjustment() float64 {
	n := len(h.attempts)
	if n < 3 {
		return 1.0
	}

	nmr := float64(h.nearMissCount) / float64(n)
	epr := float64(h.easyPassCount) / float64(n)

	var mult float64
	switch {
	case nmr > 0.4:
		mult = 0.85 + maxFloat(0.4-nmr, -0.15)*0.5
	case epr > 0.5:
		mult = 1.0 + minFloat(epr-0.5, 0.3)*0.5
	default:
		mult = 1.0 + clamp(h.avgMargin, -0.1, 0.1)*0.5
	}

	return clamp(mult, 0.85, 1.15)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
