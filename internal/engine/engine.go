// Package engine orchestrates the bandit, memory-trace, adaptive-mastery,
// and VARK components into the single per-event pipeline: load state,
// advance the memory-trace, mastery and bandit models, decide a strategy,
// explain the decision, and save the result — all serialized per user so no
// partial state is ever published to a concurrent caller. The VARK
// classifier is loaded and saved with the rest of the state but is not
// trained by the pipeline.
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tutu-network/tutu/internal/bandit"
	"github.com/tutu-network/tutu/internal/diagnostics"
	"github.com/tutu-network/tutu/internal/domain"
	"github.com/tutu-network/tutu/internal/mastery"
	"github.com/tutu-network/tutu/internal/memory"
	"github.com/tutu-network/tutu/internal/observability"
	"github.com/tutu-network/tutu/internal/vark"
)

// Config bundles the per-component configuration the engine wires together.
type Config struct {
	Bandit bandit.Config
	Mdm    memory.Config
}

// DefaultConfig returns production defaults for every wired component.
func DefaultConfig() Config {
	return Config{Bandit: bandit.DefaultConfig(), Mdm: memory.DefaultConfig()}
}

// Engine is the stateless façade over a StateStore: all mutable state lives
// in what's loaded and saved around each call, nothing is cached between
// requests beyond the store's own caching choices.
type Engine struct {
	store  domain.StateStore
	cfg    Config
	locks  keyedLock
	tracer *observability.Tracer
}

// New constructs an Engine backed by the given store.
func New(store domain.StateStore, cfg Config) *Engine {
	return &Engine{store: store, cfg: cfg, tracer: observability.NewTracer(observability.DefaultTracerConfig())}
}

// Tracer returns the engine's span tracer, for a host process that wants to
// expose recent spans (e.g. a debug endpoint).
func (e *Engine) Tracer() *observability.Tracer { return e.tracer }

// userRecord is the live, in-process working set for one user, reconstructed
// from a PersistedState at the start of Process and flattened back at the
// end of it.
type userRecord struct {
	state      domain.UserState
	model      *bandit.Model
	items      map[string]*memory.ItemState
	history    *mastery.History
	classifier *vark.Classifier
}

func (e *Engine) load(ctx context.Context, userID string) (*userRecord, error) {
	persisted, found, err := e.store.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load state for %s: %w", userID, err)
	}

	rec := &userRecord{
		model:      bandit.NewModel(e.cfg.Bandit),
		items:      make(map[string]*memory.ItemState),
		history:    mastery.NewHistory(),
		classifier: vark.New(),
	}

	if !found {
		rec.state = domain.UserState{
			UserID:    userID,
			Cognitive: domain.DefaultCognitiveProfile(),
		}
		return rec, nil
	}

	rec.state = persisted.State
	rec.state.UserID = userID
	if persisted.Bandit.D == bandit.FeatureDimension {
		if restoreErr := rec.model.Restore(persisted.Bandit); restoreErr != nil {
			return nil, restoreErr
		}
	}
	for itemID, s := range persisted.Mdm {
		rec.items[itemID] = &memory.ItemState{
			Strength:      s.Strength,
			Consolidation: s.Consolidation,
			LastTS:        s.LastReviewed,
			ReviewCount:   s.ReviewCount,
		}
	}
	rec.history = mastery.RestoreHistory(persisted.Mastery)
	rec.classifier = vark.Restore(persisted.Vark)
	return rec, nil
}

func (e *Engine) save(ctx context.Context, userID string, rec *userRecord, now time.Time) error {
	mdm := make(map[string]domain.MdmItemState, len(rec.items))
	for itemID, s := range rec.items {
		mdm[itemID] = domain.MdmItemState{
			Strength:      s.Strength,
			Consolidation: s.Consolidation,
			LastReviewed:  s.LastTS,
			ReviewCount:   s.ReviewCount,
		}
	}

	persisted := &domain.PersistedState{
		UserID:    userID,
		State:     rec.state,
		Bandit:    rec.model.Snapshot(),
		Mdm:       mdm,
		Mastery:   rec.history.Snapshot(),
		Vark:      rec.classifier.Snapshot(),
		UpdatedAt: now,
	}
	if err := e.store.Save(ctx, userID, persisted); err != nil {
		return fmt.Errorf("save state for %s: %w", userID, err)
	}
	return nil
}

// Process runs one RawEvent through the full pipeline and returns the
// immutable, fully-materialized decision for it. Events for the same user
// are serialized against each other; events for different users run
// concurrently.
func (e *Engine) Process(ctx context.Context, event domain.RawEvent) (result *domain.ProcessResult, err error) {
	if event.UserID == "" || event.ItemID == "" {
		return nil, domain.ErrEmptyInput
	}

	span := e.tracer.StartSpan(ctx, "engine.Process", map[string]string{"user_id": event.UserID, "item_id": event.ItemID})
	start := time.Now()
	defer func() {
		e.tracer.EndSpan(span, err)
		observability.ProcessLatency.Observe(float64(time.Since(start).Milliseconds()))
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		observability.EventsProcessed.WithLabelValues(outcome).Inc()
	}()

	e.locks.Lock(event.UserID)
	defer e.locks.Unlock(event.UserID)

	rec, loadErr := e.load(ctx, event.UserID)
	if loadErr != nil {
		err = loadErr
		return nil, err
	}

	now := event.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	if w := rec.state.VisualFatigue.FreshnessWeight(now); w > 0 {
		fused := w*rec.state.VisualFatigue.Score + (1-w)*rec.state.Fatigue
		rec.state.FusedFatigue = &fused
	} else {
		rec.state.FusedFatigue = nil
	}

	preUpdateState := rec.state

	item, ok := rec.items[event.ItemID]
	if !ok {
		item = &memory.ItemState{}
		rec.items[event.ItemID] = item
	}
	quality := 0.0
	if event.Correct {
		quality = 1.0
	}
	memory.Update(e.cfg.Mdm, item, quality, now)
	_, _, recallProbability := memory.Activation(e.cfg.Mdm, *item, 0)

	bctx := buildBanditContext(preUpdateState, now)
	difficultyLevel := levelForDifficulty(event.Difficulty)

	masteryCtx := mastery.Context{
		IsCorrect:          event.Correct,
		IsFirstAttempt:     item.ReviewCount <= 1,
		ResponseTimeMs:     event.ResponseTimeMs,
		HintUsed:           preUpdateState.ColdStart.SettledStrategy != nil && preUpdateState.ColdStart.SettledStrategy.HintLevel > 0,
		ConsecutiveCorrect: consecutiveCorrect(preUpdateState, event.Correct),
		CorrectCount:       correctCount(preUpdateState, event.Correct),
		AttemptCount:       int(preUpdateState.TotalInteractions) + 1,
	}
	if event.Hesitations > 0 {
		idx := math.Min(float64(event.Hesitations)/10, 1)
		masteryCtx.IndecisionIndex = &idx
	}

	masteryResult := mastery.Compute(*item, preUpdateState.Cognitive, preUpdateState, difficultyLevel, masteryCtx, rec.history)
	rec.history.Record(masteryResult.Score, masteryResult.Threshold, masteryResult.IsMastered)

	reward := computeReward(event, preUpdateState.Cognitive, masteryResult)

	featureVector := bandit.BuildFeatureVector(preUpdateState, event.Difficulty, bctx)
	rec.model.UpdateWithFeatureVector(featureVector, reward.Value)

	phase, userType, probeDifficulty := advanceColdStart(&rec.state.ColdStart, preUpdateState)

	selection, strategy, err := e.chooseStrategy(rec.model, rec.state, bctx, phase, userType, probeDifficulty)
	if err != nil {
		return nil, err
	}
	strategy.HintLevel = hintLevelFor(masteryResult.Confidence)

	updateRollingAggregates(&rec.state, event, masteryResult, now)
	rec.state.ColdStart.Phase = phase
	rec.state.ColdStart.UserType = userType
	rec.state.UpdatedAt = now

	explanation := buildExplanation(phase, masteryResult, selection)

	observability.RewardObserved.Observe(reward.Value)
	masteryOutcome := "not_mastered"
	if masteryResult.IsMastered {
		masteryOutcome = "mastered"
	}
	observability.MasteryPassed.WithLabelValues(masteryOutcome).Inc()
	observability.ColdStartPhaseEvents.WithLabelValues(phase.String()).Inc()

	result = &domain.ProcessResult{
		UserID:            event.UserID,
		ItemID:            event.ItemID,
		Strategy:          strategy,
		Explanation:       explanation,
		Reward:            reward,
		MasteryScore:      masteryResult.Score,
		MasteryPassed:     masteryResult.IsMastered,
		RecallProbability: recallProbability,
		Segment:           0, // always SegmentNew here; segmentation runs separately over aggregated counts (POST /api/segment)
		Trend:             rec.state.Trend,
		ProcessedAt:       now,
	}

	if saveErr := e.save(ctx, event.UserID, rec, now); saveErr != nil {
		err = saveErr
		return nil, err
	}
	return result, nil
}

func (e *Engine) chooseStrategy(model *bandit.Model, state domain.UserState, bctx domain.BanditContext, phase domain.ColdStartPhase, userType domain.UserType, probeDifficulty domain.Difficulty) (bandit.Selection, domain.StrategyParams, error) {
	switch phase {
	case domain.PhaseClassify:
		return bandit.Selection{}, domain.ForUserType(domain.Stable), nil
	case domain.PhaseExplore:
		strategy := domain.ForUserType(userType)
		strategy.Difficulty = probeDifficulty
		return bandit.Selection{Difficulty: probeDifficulty}, strategy, nil
	}

	candidates := make([]bandit.Candidate, len(domain.AllDifficulties))
	for i, d := range domain.AllDifficulties {
		candidates[i] = bandit.Candidate{Difficulty: d}
	}

	alpha := bandit.ColdStartAlpha(state.TotalInteractions, state.RecentAccuracy, state.FatigueFused())
	originalAlpha := model.Alpha()
	model.SetAlpha(alpha)
	defer model.SetAlpha(originalAlpha)

	selection, err := model.SelectAction(state, candidates, bctx)
	if err != nil {
		return bandit.Selection{}, domain.StrategyParams{}, err
	}

	strategy := domain.StrategyParams{
		IntervalScale: 1.0,
		NewRatio:      0.2,
		Difficulty:    selection.Difficulty,
		BatchSize:     8,
	}
	return selection, strategy, nil
}

func buildBanditContext(state domain.UserState, now time.Time) domain.BanditContext {
	secondsSinceMidnight := float64(now.Hour()*3600 + now.Minute()*60 + now.Second())
	weekday := (int(now.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	return domain.BanditContext{
		TimeOfDay:          secondsSinceMidnight / 86400,
		DayOfWeek:          weekday,
		SessionDurationSec: 0,
		FatigueFactor:      state.FatigueFused(),
	}
}

func levelForDifficulty(d domain.Difficulty) domain.DifficultyLevel {
	switch {
	case d.Weight() <= 0.4:
		return domain.Easy
	case d.Weight() <= 0.8:
		return domain.Mid
	default:
		return domain.Hard
	}
}

func consecutiveCorrect(state domain.UserState, correct bool) int {
	if !correct {
		return 0
	}
	return state.StudyStreak + 1
}

func correctCount(state domain.UserState, correct bool) int {
	total := int(state.TotalInteractions) + 1
	approxCorrect := int(state.RecentAccuracy * float64(state.TotalInteractions))
	if correct {
		approxCorrect++
	}
	if approxCorrect > total {
		approxCorrect = total
	}
	return approxCorrect
}

func computeReward(event domain.RawEvent, cognitive domain.CognitiveProfile, m mastery.Result) domain.Reward {
	correctness := 0.0
	if event.Correct {
		correctness = 1.0
	}

	speedComponent := 0.0
	if event.Correct && event.ResponseTimeMs > 0 {
		expectedRT := 2500 + (1-cognitive.Speed)*7500
		if event.ResponseTimeMs <= expectedRT {
			speedComponent = clamp01(1 - event.ResponseTimeMs/(2*expectedRT))
		} else {
			speedComponent = clamp01(expectedRT / event.ResponseTimeMs)
		}
	}

	margin := 0.0
	if m.Threshold > 0 {
		margin = clamp(-1, 1, (m.Score-m.Threshold)/m.Threshold)
	}
	marginComponent := (margin + 1) / 2

	value := clamp01(0.5*correctness + 0.3*speedComponent + 0.2*marginComponent)
	return domain.Reward{
		Value:           value,
		Correctness:     correctness,
		SpeedComponent:  speedComponent,
		MarginComponent: marginComponent,
	}
}

// advanceColdStart increments the interaction counter and returns the next
// phase, the (possibly newly classified) user type, and — during the
// explore phase only — the next difficulty to probe, taken in order from
// AllDifficulties via ProbeIndex. The explore phase lasts three events, so
// only the first three of the five difficulties are probed. Classification
// happens once, at the
// classify→explore boundary, from the rolling aggregates accumulated during
// the classify phase.
func advanceColdStart(cs *domain.ColdStartState, prior domain.UserState) (domain.ColdStartPhase, domain.UserType, domain.Difficulty) {
	cs.UpdateCount++
	total := cs.UpdateCount

	userType := cs.UserType
	if total == 5 {
		userType = classifyUserType(prior)
	}

	var phase domain.ColdStartPhase
	switch {
	case total < 5:
		phase = domain.PhaseClassify
	case total < 8:
		phase = domain.PhaseExplore
	default:
		phase = domain.PhaseNormal
	}

	var probe domain.Difficulty
	if phase == domain.PhaseExplore {
		probe = domain.AllDifficulties[cs.ProbeIndex%len(domain.AllDifficulties)]
		cs.ProbeIndex++
	}

	return phase, userType, probe
}

func classifyUserType(state domain.UserState) domain.UserType {
	switch {
	case state.AverageResponseTimeMs > 0 && state.AverageResponseTimeMs < 3000 && state.RecentAccuracy > 0.8:
		return domain.Fast
	case state.RecentAccuracy < 0.5:
		return domain.Cautious
	default:
		return domain.Stable
	}
}

func hintLevelFor(confidence float64) int {
	switch {
	case confidence < 0.4:
		return 2
	case confidence < 0.7:
		return 1
	default:
		return 0
	}
}

const aggregateEma = 0.2

func updateRollingAggregates(state *domain.UserState, event domain.RawEvent, m mastery.Result, now time.Time) {
	correctness := 0.0
	if event.Correct {
		correctness = 1.0
	}

	if state.TotalInteractions == 0 {
		state.RecentAccuracy = correctness
		state.AverageResponseTimeMs = event.ResponseTimeMs
	} else {
		state.RecentAccuracy = ema(state.RecentAccuracy, correctness)
		state.AverageResponseTimeMs = ema(state.AverageResponseTimeMs, event.ResponseTimeMs)
	}

	if event.Correct {
		state.StudyStreak++
	} else {
		state.StudyStreak = 0
	}

	normalizedMastery := clamp01(m.Score / 100)
	if state.TotalInteractions == 0 {
		state.MasteryLevel = normalizedMastery
	} else {
		state.MasteryLevel = ema(state.MasteryLevel, normalizedMastery)
	}

	state.TotalInteractions++
	state.Trend = trendFrom(state.MasteryLevel, normalizedMastery)
}

func ema(prev, sample float64) float64 {
	return prev*(1-aggregateEma) + sample*aggregateEma
}

func trendFrom(smoothed, sample float64) domain.TrendState {
	delta := sample - smoothed
	switch {
	case delta > 0.05:
		return domain.TrendUp
	case delta < -0.05:
		return domain.TrendDown
	case math.Abs(delta) < 0.01:
		return domain.TrendStuck
	default:
		return domain.TrendFlat
	}
}

func buildExplanation(phase domain.ColdStartPhase, m mastery.Result, selection bandit.Selection) domain.DecisionExplanation {
	total := m.Factors.MDM + m.Factors.Cognitive + m.Factors.Performance + m.Factors.Context
	if total <= 0 {
		total = 1
	}
	factors := []domain.DecisionFactor{
		{Name: "memory_trace", Value: m.Factors.MDM, Weight: m.Factors.MDM / total},
		{Name: "cognitive_state", Value: m.Factors.Cognitive, Weight: m.Factors.Cognitive / total},
		{Name: "performance", Value: m.Factors.Performance, Weight: m.Factors.Performance / total},
		{Name: "context", Value: m.Factors.Context, Weight: m.Factors.Context / total},
	}
	if phase == domain.PhaseNormal {
		factors = append(factors, domain.DecisionFactor{
			Name:   "bandit_exploration",
			Value:  selection.Exploration,
			Weight: 0,
		})
	}

	verdict := "not yet mastered"
	if m.IsMastered {
		verdict = "mastered"
	}
	summary := fmt.Sprintf("%s (score %.1f vs threshold %.1f) during %s phase", verdict, m.Score, m.Threshold, phase)

	return domain.DecisionExplanation{
		Phase:      phase,
		Factors:    factors,
		Confidence: m.Confidence,
		Summary:    summary,
	}
}

// UserState returns the live UserState for a user, for introspection by a
// host process (API/CLI). Returns found=false if the user has never been
// processed.
func (e *Engine) UserState(ctx context.Context, userID string) (domain.UserState, bool, error) {
	persisted, found, err := e.store.Load(ctx, userID)
	if err != nil {
		return domain.UserState{}, false, fmt.Errorf("load state for %s: %w", userID, err)
	}
	if !found {
		return domain.UserState{}, false, nil
	}
	return persisted.State, true, nil
}

// Diagnose reconstructs a user's live models from their persisted snapshot
// and runs the combined bandit/MDM/VARK health check over them, updating the
// engine-wide ModelHealth gauge as a side effect.
func (e *Engine) Diagnose(ctx context.Context, userID string) (diagnostics.ModelHealthReport, error) {
	rec, err := e.load(ctx, userID)
	if err != nil {
		return diagnostics.ModelHealthReport{}, err
	}

	items := make(map[string]memory.ItemState, len(rec.items))
	for itemID, s := range rec.items {
		items[itemID] = *s
	}

	report := diagnostics.Diagnose(rec.model, items, rec.classifier)
	if report.IsHealthy {
		observability.ModelHealth.Set(1)
	} else {
		observability.ModelHealth.Set(0)
	}
	return report, nil
}

func clamp01(v float64) float64 { return clamp(0, 1, v) }

func clamp(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
