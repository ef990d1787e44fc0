package segment

import (
	"testing"
	"time"

	"github.com/tutu-network/tutu/internal/domain"
)

func TestClassifyNewTakesPriorityOverEverything(t *testing.T) {
	now := time.Now()
	in := domain.SegmentInput{
		Now:          now,
		RegisteredAt: now.Add(-2 * 24 * time.Hour),
		TotalEvents:  2,
		EventsLast7d: 0,
	}
	if got := Classify(in); got != domain.SegmentNew {
		t.Fatalf("got %v, want SegmentNew", got)
	}
}

func TestClassifyAtRiskWhenNoRecentActivity(t *testing.T) {
	now := time.Now()
	in := domain.SegmentInput{
		Now:          now,
		RegisteredAt: now.Add(-90 * 24 * time.Hour),
		TotalEvents:  200,
		EventsLast7d: 0,
	}
	if got := Classify(in); got != domain.SegmentAtRisk {
		t.Fatalf("got %v, want SegmentAtRisk", got)
	}
}

func TestClassifyReturningAfterGap(t *testing.T) {
	now := time.Now()
	in := domain.SegmentInput{
		Now:                    now,
		RegisteredAt:           now.Add(-90 * 24 * time.Hour),
		TotalEvents:            200,
		EventsLast7d:           3,
		StudyDaysLast7d:        1,
		StudyDays8to30d:        0,
		HadActivityBeforeDay30: true,
	}
	if got := Classify(in); got != domain.SegmentReturning {
		t.Fatalf("got %v, want SegmentReturning", got)
	}
}

func TestClassifyActiveWithThreeOrMoreStudyDays(t *testing.T) {
	now := time.Now()
	in := domain.SegmentInput{
		Now:             now,
		RegisteredAt:    now.Add(-90 * 24 * time.Hour),
		TotalEvents:     200,
		EventsLast7d:    10,
		StudyDaysLast7d: 4,
		StudyDays8to30d: 5,
	}
	if got := Classify(in); got != domain.SegmentActive {
		t.Fatalf("got %v, want SegmentActive", got)
	}
}

func TestClassifyFallbackCasualVsDormant(t *testing.T) {
	now := time.Now()
	casual := domain.SegmentInput{
		Now:             now,
		RegisteredAt:    now.Add(-90 * 24 * time.Hour),
		TotalEvents:     200,
		EventsLast7d:    2,
		StudyDaysLast7d: 1,
		StudyDays8to30d: 5,
	}
	if got := Classify(casual); got != domain.SegmentCasual {
		t.Fatalf("got %v, want SegmentCasual", got)
	}

	dormant := domain.SegmentInput{
		Now:             now,
		RegisteredAt:    now.Add(-90 * 24 * time.Hour),
		TotalEvents:     200,
		EventsLast7d:    2,
		StudyDaysLast7d: 0,
		StudyDays8to30d: 5,
	}
	if got := Classify(dormant); got != domain.SegmentDormant {
		t.Fatalf("got %v, want SegmentDormant", got)
	}
}

func TestClassifyTrendDownLongRunWarns(t *testing.T) {
	trend := ClassifyTrend(domain.TrendDown, 5)
	if trend.Intervention != "warning" {
		t.Fatalf("got %v, want warning", trend.Intervention)
	}
	if len(trend.ActionableList) == 0 {
		t.Fatal("expected actionable suggestions for a sustained downward trend")
	}
}

func TestClassifyTrendDownShortRunSuggests(t *testing.T) {
	trend := ClassifyTrend(domain.TrendDown, 2)
	if trend.Intervention != "suggestion" {
		t.Fatalf("got %v, want suggestion", trend.Intervention)
	}
}

func TestClassifyTrendStuckEncourages(t *testing.T) {
	trend := ClassifyTrend(domain.TrendStuck, 0)
	if trend.Intervention != "encouragement" {
		t.Fatalf("got %v, want encouragement", trend.Intervention)
	}
}

func TestClassifyTrendUpAndFlatNeedNoIntervention(t *testing.T) {
	for _, st := range []domain.TrendState{domain.TrendUp, domain.TrendFlat} {
		if trend := ClassifyTrend(st, 0); trend.Intervention != "none" {
			t.Fatalf("state %v: got %v, want none", st, trend.Intervention)
		}
	}
}
