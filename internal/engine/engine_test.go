package engine

import (
	"context"
	"testing"
	"time"

	"github.com/tutu-network/tutu/internal/domain"
	"github.com/tutu-network/tutu/internal/store/memstore"
)

func newTestEngine() *Engine {
	return New(memstore.New(), DefaultConfig())
}

func makeEvent(userID, itemID string, correct bool, rtMs float64, at time.Time) domain.RawEvent {
	return domain.RawEvent{
		UserID:         userID,
		ItemID:         itemID,
		Correct:        correct,
		ResponseTimeMs: rtMs,
		Difficulty:     domain.Recall,
		Timestamp:      at,
	}
}

func TestProcessRejectsEmptyIdentifiers(t *testing.T) {
	e := newTestEngine()
	_, err := e.Process(context.Background(), domain.RawEvent{})
	if err != domain.ErrEmptyInput {
		t.Fatalf("got %v, want ErrEmptyInput", err)
	}
}

func TestProcessFirstEventStartsInClassifyPhase(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	result, err := e.Process(context.Background(), makeEvent("u1", "item-1", true, 2000, now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Explanation.Phase != domain.PhaseClassify {
		t.Fatalf("got phase %v, want classify", result.Explanation.Phase)
	}
	if result.Reward.Value < 0 || result.Reward.Value > 1 {
		t.Fatalf("reward value %v out of [0,1]", result.Reward.Value)
	}
}

func TestProcessAdvancesThroughColdStartPhases(t *testing.T) {
	e := newTestEngine()
	now := time.Now()

	var lastPhase domain.ColdStartPhase
	for i := 0; i < 12; i++ {
		result, err := e.Process(context.Background(), makeEvent("u2", "item-1", true, 1800, now.Add(time.Duration(i)*time.Hour)))
		if err != nil {
			t.Fatalf("event %d: unexpected error: %v", i, err)
		}
		lastPhase = result.Explanation.Phase
	}
	if lastPhase != domain.PhaseNormal {
		t.Fatalf("after 12 events expected normal phase, got %v", lastPhase)
	}
}

func TestProcessPersistsStateAcrossCalls(t *testing.T) {
	e := newTestEngine()
	now := time.Now()

	if _, err := e.Process(context.Background(), makeEvent("u3", "item-1", true, 2000, now)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Process(context.Background(), makeEvent("u3", "item-1", true, 2000, now.Add(time.Hour))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	persisted, found, err := e.store.Load(context.Background(), "u3")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !found {
		t.Fatal("expected persisted state after two events")
	}
	if persisted.State.TotalInteractions != 2 {
		t.Fatalf("total interactions = %d, want 2", persisted.State.TotalInteractions)
	}
	if persisted.State.StudyStreak != 2 {
		t.Fatalf("study streak = %d, want 2 after two correct answers", persisted.State.StudyStreak)
	}
	if persisted.Mdm["item-1"].ReviewCount != 2 {
		t.Fatalf("review count = %d, want 2", persisted.Mdm["item-1"].ReviewCount)
	}
}

func TestProcessResetsStreakOnIncorrectAnswer(t *testing.T) {
	e := newTestEngine()
	now := time.Now()

	if _, err := e.Process(context.Background(), makeEvent("u4", "item-1", true, 2000, now)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Process(context.Background(), makeEvent("u4", "item-1", false, 6000, now.Add(time.Hour))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	persisted, _, err := e.store.Load(context.Background(), "u4")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if persisted.State.StudyStreak != 0 {
		t.Fatalf("study streak = %d, want 0 after an incorrect answer", persisted.State.StudyStreak)
	}
}

func TestProcessExplanationFactorsSumToApproximatelyOne(t *testing.T) {
	e := newTestEngine()
	result, err := e.Process(context.Background(), makeEvent("u5", "item-1", true, 2000, time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var weightSum float64
	for _, f := range result.Explanation.Factors {
		if f.Name == "bandit_exploration" {
			continue
		}
		weightSum += f.Weight
	}
	if weightSum < 0.99 || weightSum > 1.01 {
		t.Fatalf("factor weights sum to %v, want ~1.0", weightSum)
	}
}

func TestUserStateReturnsNotFoundForUnknownUser(t *testing.T) {
	e := newTestEngine()
	_, found, err := e.UserState(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected found=false for a user never processed")
	}
}

func TestDiagnoseReportsHealthyForFreshUser(t *testing.T) {
	e := newTestEngine()
	if _, err := e.Process(context.Background(), makeEvent("u7", "item-1", true, 2000, time.Now())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := e.Diagnose(context.Background(), "u7")
	if err != nil {
		t.Fatalf("Diagnose() error: %v", err)
	}
	if !report.IsHealthy {
		t.Fatalf("expected a freshly-seeded user's models to report healthy, got %+v", report)
	}
}

func TestProcessIsSerializedPerUserUnderConcurrency(t *testing.T) {
	e := newTestEngine()
	now := time.Now()
	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		i := i
		go func() {
			_, err := e.Process(context.Background(), makeEvent("u6", "item-1", i%2 == 0, 2000, now.Add(time.Duration(i)*time.Minute)))
			done <- err
		}()
	}
	for i := 0; i < 20; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent process failed: %v", err)
		}
	}

	persisted, _, err := e.store.Load(context.Background(), "u6")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if persisted.State.TotalInteractions != 20 {
		t.Fatalf("total interactions = %d, want 20 (no lost updates)", persisted.State.TotalInteractions)
	}
}
