package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loyalty-draw-system/metrics"
	"loyalty-draw-system/models"
	"loyalty-draw-system/scoring"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var drawLog = logrus.WithField("component", "prize_draw")

// EngineConfig tunes the engine; zero values fall back to defaults.
type EngineConfig struct {
	Uniqueness UniquenessPolicy
	Workers    int // parallel evaluations per batch, default 1
}

type PrizeDrawEngine struct {
	DB          *gorm.DB
	Eligibility *EligibilitySelector
	DrawTypes   *DrawTypeService
	Policy      UniquenessPolicy
	Workers     int
	Now         func() time.Time
}

func NewPrizeDrawEngine(db *gorm.DB, cfg EngineConfig) *PrizeDrawEngine {
	if cfg.Uniqueness == "" {
		cfg.Uniqueness = UniquePerDefinition
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &PrizeDrawEngine{
		DB:          db,
		Eligibility: NewEligibilitySelector(db),
		DrawTypes:   NewDrawTypeService(db),
		Policy:      cfg.Uniqueness,
		Workers:     cfg.Workers,
		Now:         utcNow,
	}
}

// PrizeDrawEvaluation is one persisted result plus how it was reached.
type PrizeDrawEvaluation struct {
	Result     models.PrizeDrawResult `json:"result"`
	DrawNumber scoring.DrawNumber     `json:"draw_number"`
	Score      *scoring.Evaluation    `json:"score,omitempty"` // nil while no winning number exists
}

// columns refreshed when a result is re-evaluated
var resultUpdateColumns = []string{
	"instance_id", "definition_id", "user_id", "winning_number_id",
	"draw_number", "draw_value", "similarity_score", "draw_top_digits",
	"winning_top_digits", "threshold_used", "outcome", "evaluated_at", "updated_at",
}

// Evaluate derives the instance's draw number, scores it against winning
// (when given) and stores the result. threshold overrides the draw type's
// default. Re-evaluating overwrites the previous result for the same key.
func (e *PrizeDrawEngine) Evaluate(ctx context.Context, instance *models.NFTInstance, drawType *models.PrizeDrawType, winning *models.PrizeDrawWinningNumber, threshold *float64) (*PrizeDrawEvaluation, error) {
	start := time.Now()
	ev, err := e.score(instance, drawType, winning, threshold)
	if err != nil {
		metrics.RecordEvaluationFailure(failureReason(err))
		return nil, err
	}

	err = e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return e.persist(tx, &ev.Result)
	})
	if err != nil {
		metrics.RecordEvaluationFailure(failureReason(err))
		return nil, err
	}

	metrics.RecordEvaluation(drawType.InternalName, string(ev.Result.Outcome), time.Since(start))
	drawLog.WithFields(logrus.Fields{
		"draw_type":   drawType.InternalName,
		"instance_id": instance.ID,
		"draw_digits": ev.Result.DrawTopDigits,
		"outcome":     ev.Result.Outcome,
	}).Debug("prize draw evaluated")
	return ev, nil
}

func (e *PrizeDrawEngine) score(instance *models.NFTInstance, drawType *models.PrizeDrawType, winning *models.PrizeDrawWinningNumber, threshold *float64) (*PrizeDrawEvaluation, error) {
	if instance == nil || drawType == nil {
		return nil, ErrMissingInstanceOrType
	}
	algorithm, err := scoring.ParseAlgorithm(drawType.Algorithm)
	if err != nil {
		return nil, err
	}
	draw, err := scoring.Derive(instance.Origin)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", instance.ID, err)
	}

	if threshold == nil {
		threshold = drawType.DefaultThreshold
	}
	if err := scoring.ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	result := models.PrizeDrawResult{
		DrawTypeID:    drawType.ID,
		ResultKey:     e.Policy.ResultKey(instance),
		InstanceID:    instance.ID,
		DefinitionID:  instance.DefinitionID,
		UserID:        instance.UserID,
		DrawNumber:    draw.Hex,
		DrawValue:     draw.Value,
		DrawTopDigits: draw.TopDigits(),
		Outcome:       models.OutcomePending,
		EvaluatedAt:   e.Now(),
	}
	if threshold != nil {
		t := *threshold
		result.ThresholdUsed = &t
	}

	out := &PrizeDrawEvaluation{DrawNumber: draw}
	if winning != nil {
		ev, err := algorithm.Evaluate(draw, winning.Value, result.ThresholdUsed)
		if err != nil {
			return nil, err
		}
		id, score := winning.ID, ev.Score
		result.WinningNumberID = &id
		result.WinningTopDigits = scoring.WinningTopDigits(winning.Value)
		result.SimilarityScore = &score
		if ev.Passed != nil {
			result.Outcome = models.OutcomeLose
			if *ev.Passed {
				result.Outcome = models.OutcomeWin
			}
		}
		out.Score = &ev
	}
	out.Result = result
	return out, nil
}

// persist upserts on (draw_type_id, result_key). The update only applies when
// the stored row belongs to the same instance; otherwise the key is held by
// another instance of the definition and the write is refused.
func (e *PrizeDrawEngine) persist(tx *gorm.DB, row *models.PrizeDrawResult) error {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "draw_type_id"}, {Name: "result_key"}},
		DoUpdates: clause.AssignmentColumns(resultUpdateColumns),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "prize_draw_results.instance_id = excluded.instance_id"},
		}},
	}).Create(row).Error
	if err != nil {
		return err
	}

	var stored models.PrizeDrawResult
	if err := tx.Where("draw_type_id = ? AND result_key = ?", row.DrawTypeID, row.ResultKey).First(&stored).Error; err != nil {
		return err
	}
	if stored.InstanceID != row.InstanceID {
		return &DuplicateDefinitionError{
			DrawTypeID: row.DrawTypeID,
			Instances:  map[string][]string{row.DefinitionID: {stored.InstanceID, row.InstanceID}},
		}
	}
	*row = stored
	return nil
}

// BatchRequest evaluates many instances against one draw type.
type BatchRequest struct {
	DrawType      *models.PrizeDrawType
	WinningNumber *models.PrizeDrawWinningNumber
	Threshold     *float64
	// Candidates defaults to the bingo-eligible instances when nil.
	Candidates []models.NFTInstance
}

type BatchFailure struct {
	InstanceID string `json:"instance_id"`
	Error      string `json:"error"`
	Err        error  `json:"-"`
}

// BatchReport lists what was stored and what was rejected, per instance.
type BatchReport struct {
	DrawTypeID string                `json:"draw_type_id"`
	Succeeded  []PrizeDrawEvaluation `json:"succeeded"`
	Failed     []BatchFailure        `json:"failed"`
}

// Err joins the per-instance failures, nil when everything was stored.
func (r *BatchReport) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("instance %s: %w", f.InstanceID, f.Err))
	}
	return errors.Join(errs...)
}

// EvaluateBatch evaluates every candidate. Under the per-definition policy a
// batch holding two instances of one definition is refused before anything
// is written. Otherwise each instance is stored on its own, and a failing
// instance does not stop the others; the report says which failed.
func (e *PrizeDrawEngine) EvaluateBatch(ctx context.Context, req BatchRequest) (*BatchReport, error) {
	if req.DrawType == nil {
		return nil, ErrMissingInstanceOrType
	}
	if _, err := scoring.ParseAlgorithm(req.DrawType.Algorithm); err != nil {
		return nil, err
	}
	if err := scoring.ValidateThreshold(req.Threshold); err != nil {
		return nil, err
	}

	candidates := req.Candidates
	if candidates == nil {
		var err error
		if candidates, err = e.Eligibility.BingoEligible(ctx); err != nil {
			return nil, fmt.Errorf("select bingo-eligible instances: %w", err)
		}
	}
	candidates = dedupeInstances(candidates)
	if err := e.checkCollisions(req.DrawType.ID, candidates); err != nil {
		metrics.RecordEvaluationFailure("duplicate_definition")
		return nil, err
	}

	type outcome struct {
		ev  *PrizeDrawEvaluation
		err error
	}
	outcomes := make([]outcome, len(candidates))

	var g errgroup.Group
	g.SetLimit(e.Workers)
	for i := range candidates {
		g.Go(func() error {
			ev, err := e.Evaluate(ctx, &candidates[i], req.DrawType, req.WinningNumber, req.Threshold)
			outcomes[i] = outcome{ev: ev, err: err}
			return nil
		})
	}
	_ = g.Wait()

	report := &BatchReport{
		DrawTypeID: req.DrawType.ID,
		Succeeded:  make([]PrizeDrawEvaluation, 0, len(candidates)),
		Failed:     []BatchFailure{},
	}
	for i, o := range outcomes {
		if o.err != nil {
			report.Failed = append(report.Failed, BatchFailure{
				InstanceID: candidates[i].ID,
				Error:      o.err.Error(),
				Err:        o.err,
			})
			continue
		}
		report.Succeeded = append(report.Succeeded, *o.ev)
	}

	entry := drawLog.WithFields(logrus.Fields{
		"draw_type": req.DrawType.InternalName,
		"succeeded": len(report.Succeeded),
		"failed":    len(report.Failed),
	})
	if len(report.Failed) > 0 {
		entry.Warn("⚠️ prize draw batch finished with failures")
	} else {
		entry.Info("✅ prize draw batch evaluated")
	}
	return report, report.Err()
}

func (e *PrizeDrawEngine) checkCollisions(drawTypeID string, candidates []models.NFTInstance) error {
	groups := make(map[string][]string)
	for i := range candidates {
		key := e.Policy.groupKey(&candidates[i])
		groups[key] = append(groups[key], candidates[i].ID)
	}
	collisions := make(map[string][]string)
	for key, ids := range groups {
		if len(ids) > 1 {
			collisions[key] = ids
		}
	}
	if len(collisions) == 0 {
		return nil
	}
	return &DuplicateDefinitionError{DrawTypeID: drawTypeID, Instances: collisions}
}

// SettlePending re-evaluates results stored before their draw type had a
// winning number, once one is active. Each result keeps the threshold it was
// evaluated with. Returns how many results were settled.
func (e *PrizeDrawEngine) SettlePending(ctx context.Context) (int, error) {
	var drawTypes []models.PrizeDrawType
	if err := e.DB.WithContext(ctx).Find(&drawTypes).Error; err != nil {
		return 0, err
	}

	settled := 0
	for i := range drawTypes {
		drawType := &drawTypes[i]
		winning, err := e.DrawTypes.ActiveWinningNumber(ctx, drawType.ID, e.Now())
		if isMissingWinningNumber(err) {
			continue
		}
		if err != nil {
			return settled, err
		}

		var pending []models.PrizeDrawResult
		if err := e.DB.WithContext(ctx).
			Where("draw_type_id = ? AND winning_number_id IS NULL", drawType.ID).
			Order("evaluated_at, id").
			Find(&pending).Error; err != nil {
			return settled, err
		}
		if len(pending) == 0 {
			continue
		}

		instances, err := e.instancesByID(ctx, pending)
		if err != nil {
			return settled, err
		}
		for _, result := range pending {
			instance, ok := instances[result.InstanceID]
			if !ok {
				drawLog.WithField("instance_id", result.InstanceID).Warn("pending result references a missing instance")
				continue
			}
			if _, err := e.Evaluate(ctx, instance, drawType, winning, result.ThresholdUsed); err != nil {
				drawLog.WithError(err).WithField("instance_id", result.InstanceID).Warn("settlement evaluation failed")
				continue
			}
			settled++
		}
		drawLog.WithFields(logrus.Fields{
			"draw_type": drawType.InternalName,
			"pending":   len(pending),
		}).Info("🎟️ pending results settled")
	}
	return settled, nil
}

func (e *PrizeDrawEngine) instancesByID(ctx context.Context, results []models.PrizeDrawResult) (map[string]*models.NFTInstance, error) {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.InstanceID)
	}
	var instances []models.NFTInstance
	if err := e.DB.WithContext(ctx).Where("id IN ?", ids).Find(&instances).Error; err != nil {
		return nil, err
	}
	out := make(map[string]*models.NFTInstance, len(instances))
	for i := range instances {
		out[instances[i].ID] = &instances[i]
	}
	return out, nil
}

func dedupeInstances(in []models.NFTInstance) []models.NFTInstance {
	seen := make(map[string]bool, len(in))
	out := make([]models.NFTInstance, 0, len(in))
	for _, inst := range in {
		if seen[inst.ID] {
			continue
		}
		seen[inst.ID] = true
		out = append(out, inst)
	}
	return out
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, scoring.ErrInvalidOrigin):
		return "invalid_origin"
	case errors.Is(err, scoring.ErrUnknownAlgorithm):
		return "unknown_algorithm"
	case errors.Is(err, scoring.ErrInvalidThreshold):
		return "invalid_threshold"
	case errors.Is(err, ErrDuplicateDefinition):
		return "duplicate_definition"
	case errors.Is(err, ErrMissingInstanceOrType):
		return "invalid_request"
	}
	return "storage"
}
