// Package segment classifies a user into an activity segment and an
// intervention-worthy trend from pre-aggregated event counts. Nothing here
// queries a database — the caller supplies already-aggregated counts.
package segment

import (
	"time"

	"github.com/tutu-network/tutu/internal/domain"
)

// Classify applies the priority-ordered segmentation rules: new > at_risk >
// returning > active > activity-level fallback.
func Classify(in domain.SegmentInput) domain.Segment {
	daysSinceRegistration := in.Now.Sub(in.RegisteredAt) / (24 * time.Hour)

	switch {
	case daysSinceRegistration < 7 && in.TotalEvents < 5:
		return domain.SegmentNew
	case in.EventsLast7d == 0:
		return domain.SegmentAtRisk
	case in.EventsLast7d > 0 && in.StudyDays8to30d == 0 && in.HadActivityBeforeDay30:
		return domain.SegmentReturning
	case in.StudyDaysLast7d >= 3:
		return domain.SegmentActive
	default:
		return activityFallback(in)
	}
}

// activityFallback buckets users that didn't match any named segment by how
// much they've studied in the last week.
func activityFallback(in domain.SegmentInput) domain.Segment {
	switch {
	case in.StudyDaysLast7d >= 1:
		return domain.SegmentCasual
	default:
		return domain.SegmentDormant
	}
}

// Trend is the classified direction plus the recommended intervention.
type Trend struct {
	State          domain.TrendState
	Intervention   string
	ActionableList []string
}

// ClassifyTrend maps a trend state and a consecutive-days count (only
// meaningful for Down) to an intervention recommendation.
func ClassifyTrend(state domain.TrendState, consecutiveDays int) Trend {
	switch state {
	case domain.TrendDown:
		if consecutiveDays > 3 {
			return Trend{
				State:        state,
				Intervention: "warning",
				ActionableList: []string{
					"schedule a short review session today",
					"reduce new-item ratio until accuracy recovers",
					"switch to easier difficulty for the next session",
				},
			}
		}
		return Trend{State: state, Intervention: "suggestion"}
	case domain.TrendStuck:
		return Trend{State: state, Intervention: "encouragement"}
	default: // Up, Flat
		return Trend{State: state, Intervention: "none"}
	}
}
