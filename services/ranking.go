package services

import (
	"context"
	"fmt"
	"sort"

	"loyalty-draw-system/models"

	"gorm.io/gorm"
)

// RankingSelector orders persisted results by similarity.
type RankingSelector struct {
	DB        *gorm.DB
	DrawTypes *DrawTypeService
}

func NewRankingSelector(db *gorm.DB, drawTypes *DrawTypeService) *RankingSelector {
	return &RankingSelector{DB: db, DrawTypes: drawTypes}
}

// SelectTop returns the best results for the draw type and winning number.
// A nil winning number means the currently active one. Every result tied
// with the score at the cutoff is included, so more than limit rows may
// come back. Ties are ordered by evaluation time, then instance id.
func (r *RankingSelector) SelectTop(ctx context.Context, drawType *models.PrizeDrawType, winning *models.PrizeDrawWinningNumber, limit int, includePending bool) ([]models.PrizeDrawResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	if drawType == nil {
		return nil, ErrMissingInstanceOrType
	}
	winning, err := r.DrawTypes.resolveWinningNumber(ctx, drawType.ID, winning)
	if err != nil {
		return nil, err
	}

	q := r.DB.WithContext(ctx).
		Where("draw_type_id = ? AND winning_number_id = ? AND similarity_score IS NOT NULL", drawType.ID, winning.ID)
	if !includePending {
		q = q.Where("outcome <> ?", models.OutcomePending)
	}
	var results []models.PrizeDrawResult
	if err := q.Order("similarity_score DESC").Find(&results).Error; err != nil {
		return nil, err
	}

	SortResults(results)
	return TopWithTies(results, limit), nil
}

// SortResults orders by score descending, then evaluated_at, then instance id.
func SortResults(results []models.PrizeDrawResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		sa, sb := scoreOf(a), scoreOf(b)
		if sa != sb {
			return sa > sb
		}
		if !a.EvaluatedAt.Equal(b.EvaluatedAt) {
			return a.EvaluatedAt.Before(b.EvaluatedAt)
		}
		return a.InstanceID < b.InstanceID
	})
}

// TopWithTies keeps the first limit results of a sorted slice plus every
// following result whose score equals the score at the cutoff.
func TopWithTies(sorted []models.PrizeDrawResult, limit int) []models.PrizeDrawResult {
	if limit <= 0 || len(sorted) == 0 {
		return []models.PrizeDrawResult{}
	}
	if len(sorted) <= limit {
		return sorted
	}
	cutoff := scoreOf(sorted[limit-1])
	end := limit
	for end < len(sorted) && scoreOf(sorted[end]) == cutoff {
		end++
	}
	return sorted[:end]
}

func scoreOf(r models.PrizeDrawResult) float64 {
	if r.SimilarityScore == nil {
		return -1
	}
	return *r.SimilarityScore
}
