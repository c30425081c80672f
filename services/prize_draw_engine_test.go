package services

import (
	"errors"
	"testing"

	"loyalty-draw-system/models"
	"loyalty-draw-system/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateOutcomes(t *testing.T) {
	db := setupServicesDB(t)
	engine := newTestEngine(db, UniquePerDefinition, 1)
	user := seedUser(t, db, "u-1")
	defs := seedDefinitions(t, db, 3)

	threshold := mustDrawType(t, engine.DrawTypes, "instant", string(scoring.Hamming), f64(0.9))
	ranking := mustDrawType(t, engine.DrawTypes, "ranking", string(scoring.Hamming), nil)
	winning := mustWinning(t, engine.DrawTypes, threshold.ID, "abd")

	exact := seedInstance(t, db, user.ID, defs[0].ID, "ABD")
	near := seedInstance(t, db, user.ID, defs[1].ID, "ABC")

	ev, err := engine.Evaluate(t.Context(), &exact, threshold, winning, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeWin, ev.Result.Outcome)
	require.NotNil(t, ev.Result.SimilarityScore)
	assert.Equal(t, 1.0, *ev.Result.SimilarityScore)
	assert.Equal(t, ev.DrawNumber.TopDigits(), ev.Result.DrawTopDigits)
	assert.Equal(t, scoring.WinningTopDigits("abd"), ev.Result.WinningTopDigits)
	require.NotNil(t, ev.Result.WinningNumberID)
	assert.Equal(t, winning.ID, *ev.Result.WinningNumberID)

	ev, err = engine.Evaluate(t.Context(), &near, threshold, winning, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeLose, ev.Result.Outcome)
	assert.InDelta(t, 0.875, *ev.Result.SimilarityScore, 1e-12)
	assert.Equal(t, 0.9, *ev.Result.ThresholdUsed)

	// Override lowers the bar for this evaluation only.
	ev, err = engine.Evaluate(t.Context(), &near, threshold, winning, f64(0.8))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeWin, ev.Result.Outcome)
	assert.Equal(t, 0.8, *ev.Result.ThresholdUsed)

	// No threshold: scored but pending.
	ev, err = engine.Evaluate(t.Context(), &near, ranking, winning, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePending, ev.Result.Outcome)
	assert.NotNil(t, ev.Result.SimilarityScore)
	assert.Nil(t, ev.Score.Passed)

	// No winning number: pending without a score.
	ev, err = engine.Evaluate(t.Context(), &exact, ranking, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomePending, ev.Result.Outcome)
	assert.Nil(t, ev.Result.SimilarityScore)
	assert.Nil(t, ev.Result.WinningNumberID)
	assert.Nil(t, ev.Score)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	db := setupServicesDB(t)
	engine := newTestEngine(db, UniquePerDefinition, 1)
	user := seedUser(t, db, "u-1")
	def := seedDefinition(t, db, "TKY", false)
	dt := mustDrawType(t, engine.DrawTypes, "instant", "", f64(0.5))
	winning := mustWinning(t, engine.DrawTypes, dt.ID, "lucky-seven")
	inst := seedInstance(t, db, user.ID, def.ID, "tokyo-2024")

	first, err := engine.Evaluate(t.Context(), &inst, dt, winning, nil)
	require.NoError(t, err)
	second, err := engine.Evaluate(t.Context(), &inst, dt, winning, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), countResults(t, db))
	assert.Equal(t, first.Result.ID, second.Result.ID)
	assert.Equal(t, first.Result.DrawNumber, second.Result.DrawNumber)
	assert.Equal(t, *first.Result.SimilarityScore, *second.Result.SimilarityScore)
	assert.Equal(t, first.Result.Outcome, second.Result.Outcome)
	assert.True(t, second.Result.EvaluatedAt.After(first.Result.EvaluatedAt))

	var stored models.PrizeDrawResult
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, "def:"+def.ID, stored.ResultKey)
}

func TestEvaluateRejectsBadInput(t *testing.T) {
	db := setupServicesDB(t)
	engine := newTestEngine(db, UniquePerDefinition, 1)
	user := seedUser(t, db, "u-1")
	def := seedDefinition(t, db, "TKY", false)
	dt := mustDrawType(t, engine.DrawTypes, "instant", "", f64(0.5))
	winning := mustWinning(t, engine.DrawTypes, dt.ID, "lucky")

	blank := seedInstance(t, db, user.ID, def.ID, "   ")
	_, err := engine.Evaluate(t.Context(), &blank, dt, winning, nil)
	assert.ErrorIs(t, err, scoring.ErrInvalidOrigin)

	good := seedInstance(t, db, user.ID, def.ID, "fine")
	broken := *dt
	broken.Algorithm = "levenshtein"
	_, err = engine.Evaluate(t.Context(), &good, &broken, winning, nil)
	assert.ErrorIs(t, err, scoring.ErrUnknownAlgorithm)

	_, err = engine.Evaluate(t.Context(), &good, dt, winning, f64(-0.1))
	assert.ErrorIs(t, err, scoring.ErrInvalidThreshold)

	_, err = engine.Evaluate(t.Context(), nil, dt, winning, nil)
	assert.ErrorIs(t, err, ErrMissingInstanceOrType)

	assert.Zero(t, countResults(t, db))
}

func TestPerDefinitionPolicyRefusesSecondInstance(t *testing.T) {
	db := setupServicesDB(t)
	engine := newTestEngine(db, UniquePerDefinition, 1)
	user := seedUser(t, db, "u-1")
	def := seedDefinition(t, db, "TKY", false)
	dt := mustDrawType(t, engine.DrawTypes, "instant", "", f64(0.5))
	winning := mustWinning(t, engine.DrawTypes, dt.ID, "lucky")

	a := seedInstance(t, db, user.ID, def.ID, "first")
	b := seedInstance(t, db, user.ID, def.ID, "second")

	_, err := engine.Evaluate(t.Context(), &a, dt, winning, nil)
	require.NoError(t, err)

	_, err = engine.Evaluate(t.Context(), &b, dt, winning, nil)
	require.ErrorIs(t, err, ErrDuplicateDefinition)
	var dup *DuplicateDefinitionError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{a.ID, b.ID}, dup.Instances[def.ID])

	var stored models.PrizeDrawResult
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, a.ID, stored.InstanceID)
	assert.Equal(t, int64(1), countResults(t, db))
}

func TestPerInstancePolicyKeepsBoth(t *testing.T) {
	db := setupServicesDB(t)
	engine := newTestEngine(db, UniquePerInstance, 1)
	user := seedUser(t, db, "u-1")
	def := seedDefinition(t, db, "TKY", false)
	dt := mustDrawType(t, engine.DrawTypes, "instant", "", f64(0.5))
	winning := mustWinning(t, engine.DrawTypes, dt.ID, "lucky")

	a := seedInstance(t, db, user.ID, def.ID, "first")
	b := seedInstance(t, db, user.ID, def.ID, "second")

	report, err := engine.EvaluateBatch(t.Context(), BatchRequest{
		DrawType: dt, WinningNumber: winning, Candidates: []models.NFTInstance{a, b},
	})
	require.NoError(t, err)
	assert.Len(t, report.Succeeded, 2)
	assert.Equal(t, int64(2), countResults(t, db))
}

func TestBatchWithDuplicateDefinitionsWritesNothing(t *testing.T) {
	db := setupServicesDB(t)
	engine := newTestEngine(db, UniquePerDefinition, 1)
	user := seedUser(t, db, "u-1")
	defs := seedDefinitions(t, db, 2)
	dt := mustDrawType(t, engine.DrawTypes, "instant", "", f64(0.5))
	winning := mustWinning(t, engine.DrawTypes, dt.ID, "lucky")

	a := seedInstance(t, db, user.ID, defs[0].ID, "a")
	b := seedInstance(t, db, user.ID, defs[0].ID, "b")
	c := seedInstance(t, db, user.ID, defs[1].ID, "c")

	report, err := engine.EvaluateBatch(t.Context(), BatchRequest{
		DrawType: dt, WinningNumber: winning, Candidates: []models.NFTInstance{c, a, b},
	})
	require.ErrorIs(t, err, ErrDuplicateDefinition)
	assert.Nil(t, report)
	var dup *DuplicateDefinitionError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, []string{a.ID, b.ID}, dup.Instances[defs[0].ID])
	assert.NotContains(t, dup.Instances, defs[1].ID)

	assert.Zero(t, countResults(t, db))
}

func TestBatchReportsPerInstanceFailures(t *testing.T) {
	db := setupServicesDB(t)
	engine := newTestEngine(db, UniquePerDefinition, 1)
	user := seedUser(t, db, "u-1")
	defs := seedDefinitions(t, db, 3)
	dt := mustDrawType(t, engine.DrawTypes, "instant", "", f64(0.5))
	winning := mustWinning(t, engine.DrawTypes, dt.ID, "lucky")

	ok1 := seedInstance(t, db, user.ID, defs[0].ID, "fine")
	bad := seedInstance(t, db, user.ID, defs[1].ID, "\t")
	ok2 := seedInstance(t, db, user.ID, defs[2].ID, "also fine")

	report, err := engine.EvaluateBatch(t.Context(), BatchRequest{
		DrawType: dt, WinningNumber: winning, Candidates: []models.NFTInstance{ok1, bad, ok2, ok1},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, scoring.ErrInvalidOrigin)
	require.NotNil(t, report)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, bad.ID, report.Failed[0].InstanceID)
	assert.Len(t, report.Succeeded, 2)
	assert.Equal(t, int64(2), countResults(t, db))
}

func TestBatchDefaultsToBingoEligible(t *testing.T) {
	db := setupServicesDB(t)
	engine := newTestEngine(db, UniquePerDefinition, 4)
	svc := newTestBingoService(db)
	user := seedUser(t, db, "u-1")
	trigger := seedDefinition(t, db, "TRIG", true)
	seedDefinitions(t, db, 8)
	triggerInst := seedInstance(t, db, user.ID, trigger.ID, "trigger")

	card, err := svc.GenerateCard(t.Context(), user.ID, trigger.ID, nil, nil)
	require.NoError(t, err)
	col := unlockPositions(t, db, svc, card, 1, 7)
	unlockPositions(t, db, svc, card, 0) // not on a completed line

	dt := mustDrawType(t, engine.DrawTypes, "bingo", "", nil)
	winning := mustWinning(t, engine.DrawTypes, dt.ID, "bingo-night")

	report, err := engine.EvaluateBatch(t.Context(), BatchRequest{DrawType: dt, WinningNumber: winning})
	require.NoError(t, err)

	var got []string
	for _, ev := range report.Succeeded {
		got = append(got, ev.Result.InstanceID)
		assert.Equal(t, models.OutcomePending, ev.Result.Outcome)
		assert.NotNil(t, ev.Result.SimilarityScore)
	}
	assert.ElementsMatch(t, []string{triggerInst.ID, col[0].ID, col[1].ID}, got)

	empty, err := engine.EvaluateBatch(t.Context(), BatchRequest{DrawType: dt, WinningNumber: winning, Candidates: []models.NFTInstance{}})
	require.NoError(t, err)
	assert.Empty(t, empty.Succeeded)
	assert.Empty(t, empty.Failed)
}

func TestBatchRejectsUnknownAlgorithmUpFront(t *testing.T) {
	db := setupServicesDB(t)
	engine := newTestEngine(db, UniquePerDefinition, 1)
	user := seedUser(t, db, "u-1")
	def := seedDefinition(t, db, "TKY", false)
	inst := seedInstance(t, db, user.ID, def.ID, "x")

	_, err := engine.EvaluateBatch(t.Context(), BatchRequest{
		DrawType:   &models.PrizeDrawType{ID: "dt", Algorithm: "nope"},
		Candidates: []models.NFTInstance{inst},
	})
	assert.ErrorIs(t, err, scoring.ErrUnknownAlgorithm)
	assert.Zero(t, countResults(t, db))
}

func TestSettlePendingScoresOnceWinningNumberExists(t *testing.T) {
	db := setupServicesDB(t)
	engine := newTestEngine(db, UniquePerDefinition, 1)
	user := seedUser(t, db, "u-1")
	defs := seedDefinitions(t, db, 2)
	dt := mustDrawType(t, engine.DrawTypes, "final", string(scoring.Hamming), f64(0.9))

	a := seedInstance(t, db, user.ID, defs[0].ID, "abc")
	b := seedInstance(t, db, user.ID, defs[1].ID, "zzz")
	_, err := engine.EvaluateBatch(t.Context(), BatchRequest{DrawType: dt, Candidates: []models.NFTInstance{a, b}})
	require.NoError(t, err)

	settled, err := engine.SettlePending(t.Context())
	require.NoError(t, err)
	assert.Zero(t, settled)

	mustWinning(t, engine.DrawTypes, dt.ID, "abc")
	settled, err = engine.SettlePending(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, settled)

	var results []models.PrizeDrawResult
	require.NoError(t, db.Order("instance_id").Find(&results).Error)
	require.Len(t, results, 2)
	outcomes := map[string]models.Outcome{}
	for _, r := range results {
		assert.NotNil(t, r.WinningNumberID)
		outcomes[r.InstanceID] = r.Outcome
	}
	assert.Equal(t, models.OutcomeWin, outcomes[a.ID])
	assert.Equal(t, models.OutcomeLose, outcomes[b.ID])

	settled, err = engine.SettlePending(t.Context())
	require.NoError(t, err)
	assert.Zero(t, settled)
}
