package sqlite

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/tutu-network/tutu/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func samplePersistedState(userID string) *domain.PersistedState {
	return &domain.PersistedState{
		UserID: userID,
		State: domain.UserState{
			UserID:            userID,
			Attention:         0.6,
			Fatigue:           0.2,
			Motivation:        0.7,
			Confidence:        0.5,
			Cognitive:         domain.DefaultCognitiveProfile(),
			RecentAccuracy:    0.8,
			StudyStreak:       3,
			TotalInteractions: 10,
			ColdStart:         domain.ColdStartState{Phase: domain.PhaseExplore, UserType: domain.Fast, ProbeIndex: 2, UpdateCount: 6},
		},
		Bandit: domain.BanditModelSnapshot{
			D:           4,
			Lambda:      1.0,
			Alpha:       0.3,
			UpdateCount: 6,
			A: [][]float64{
				{1.0, 0.1234567891234, 0, 0},
				{0.1234567891234, 1.0, 0, 0},
				{0, 0, 1.0, 0},
				{0, 0, 0, 1.0},
			},
			B: []float64{0.5, -0.25, 0.125, math.Pi},
			L: [][]float64{
				{1.0, 0, 0, 0},
				{0.1, 0.99, 0, 0},
				{0, 0, 1.0, 0},
				{0, 0, 0, 1.0},
			},
		},
		Mdm: map[string]domain.MdmItemState{
			"item-1": {Strength: 0.4, Consolidation: 0.3, ReviewCount: 5, LastReviewed: time.Now().Add(-time.Hour)},
		},
		Mastery: domain.MasteryHistorySnapshot{
			Attempts:      []domain.MasteryAttempt{{Score: 72.5, Margin: 0.1}},
			NearMissCount: 1,
			EasyPassCount: 2,
		},
		Vark: domain.VarkSnapshot{
			Visual:      domain.BinaryClassifierSnapshot{Weights: []float64{0.1, 0.2}, Bias: 0.05},
			Auditory:    domain.BinaryClassifierSnapshot{Weights: []float64{0.1, 0.2}, Bias: 0.05},
			Reading:     domain.BinaryClassifierSnapshot{Weights: []float64{0.1, 0.2}, Bias: 0.05},
			Kinesthetic: domain.BinaryClassifierSnapshot{Weights: []float64{0.1, 0.2}, Bias: 0.05},
			SampleCount: 6,
		},
		UpdatedAt: time.Now(),
	}
}

func TestLoadMissingUserReturnsNotFound(t *testing.T) {
	db := newTestDB(t)
	_, found, err := db.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatal("expected found=false for a user never saved")
	}
}

func TestSaveThenLoadRoundTripsExactly(t *testing.T) {
	db := newTestDB(t)
	want := samplePersistedState("u1")

	if err := db.Save(context.Background(), "u1", want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, found, err := db.Load(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !found {
		t.Fatal("expected found=true after Save")
	}

	if got.State.RecentAccuracy != want.State.RecentAccuracy {
		t.Errorf("RecentAccuracy = %v, want %v", got.State.RecentAccuracy, want.State.RecentAccuracy)
	}
	if got.State.ColdStart.ProbeIndex != want.State.ColdStart.ProbeIndex {
		t.Errorf("ColdStart.ProbeIndex = %v, want %v", got.State.ColdStart.ProbeIndex, want.State.ColdStart.ProbeIndex)
	}
	if got.Bandit.D != want.Bandit.D {
		t.Fatalf("Bandit.D = %d, want %d", got.Bandit.D, want.Bandit.D)
	}
	for i := range want.Bandit.A {
		for j := range want.Bandit.A[i] {
			if got.Bandit.A[i][j] != want.Bandit.A[i][j] {
				t.Errorf("A[%d][%d] = %v, want %v (bit-exact round trip expected)", i, j, got.Bandit.A[i][j], want.Bandit.A[i][j])
			}
		}
	}
	for i := range want.Bandit.B {
		if got.Bandit.B[i] != want.Bandit.B[i] {
			t.Errorf("B[%d] = %v, want %v", i, got.Bandit.B[i], want.Bandit.B[i])
		}
	}
	if got.Mdm["item-1"].ReviewCount != 5 {
		t.Errorf("Mdm[item-1].ReviewCount = %d, want 5", got.Mdm["item-1"].ReviewCount)
	}
	if len(got.Mastery.Attempts) != 1 || got.Mastery.Attempts[0].Score != 72.5 {
		t.Errorf("Mastery attempts not round-tripped: %+v", got.Mastery.Attempts)
	}
	if got.Vark.SampleCount != 6 {
		t.Errorf("Vark.SampleCount = %d, want 6", got.Vark.SampleCount)
	}
}

func TestSaveOverwritesExistingRow(t *testing.T) {
	db := newTestDB(t)
	first := samplePersistedState("u2")
	if err := db.Save(context.Background(), "u2", first); err != nil {
		t.Fatalf("first Save() error: %v", err)
	}

	second := samplePersistedState("u2")
	second.State.TotalInteractions = 99
	second.Bandit.UpdateCount = 42
	if err := db.Save(context.Background(), "u2", second); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	got, _, err := db.Load(context.Background(), "u2")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.State.TotalInteractions != 99 {
		t.Errorf("TotalInteractions = %d, want 99 after overwrite", got.State.TotalInteractions)
	}
	if got.Bandit.UpdateCount != 42 {
		t.Errorf("Bandit.UpdateCount = %d, want 42 after overwrite", got.Bandit.UpdateCount)
	}
}

func TestLoadIsolatesUsers(t *testing.T) {
	db := newTestDB(t)
	a := samplePersistedState("alice")
	b := samplePersistedState("bob")
	b.State.TotalInteractions = 500

	if err := db.Save(context.Background(), "alice", a); err != nil {
		t.Fatalf("save alice: %v", err)
	}
	if err := db.Save(context.Background(), "bob", b); err != nil {
		t.Fatalf("save bob: %v", err)
	}

	gotA, _, err := db.Load(context.Background(), "alice")
	if err != nil {
		t.Fatalf("load alice: %v", err)
	}
	gotB, _, err := db.Load(context.Background(), "bob")
	if err != nil {
		t.Fatalf("load bob: %v", err)
	}
	if gotA.State.TotalInteractions == gotB.State.TotalInteractions {
		t.Fatal("alice and bob rows should not collide")
	}
}

func TestEncodeDecodeMatrixRoundTrip(t *testing.T) {
	m := [][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, math.Pi}}
	blob := encodeMatrix(m)
	got, err := decodeMatrix(blob, 3)
	if err != nil {
		t.Fatalf("decodeMatrix() error: %v", err)
	}
	for i := range m {
		for j := range m[i] {
			if got[i][j] != m[i][j] {
				t.Errorf("got[%d][%d] = %v, want %v", i, j, got[i][j], m[i][j])
			}
		}
	}
}

func TestDecodeMatrixRejectsMisalignedBlob(t *testing.T) {
	if _, err := decodeMatrix([]byte{1, 2, 3}, 2); err == nil {
		t.Fatal("expected error for a blob length not a multiple of the row size")
	}
}
