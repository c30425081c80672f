package services

import (
	"context"
	"fmt"

	"loyalty-draw-system/bingo"
	"loyalty-draw-system/models"

	"gorm.io/gorm"
)

// EligibilitySelector picks the instances that enter a draw.
type EligibilitySelector struct {
	DB *gorm.DB
}

func NewEligibilitySelector(db *gorm.DB) *EligibilitySelector {
	return &EligibilitySelector{DB: db}
}

// BingoEligible returns every instance sitting in a cell on at least one
// completed line, across all cards of all users, without duplicates.
// Completed lines are recomputed from cell state on every call.
func (s *EligibilitySelector) BingoEligible(ctx context.Context) ([]models.NFTInstance, error) {
	var cards []models.BingoCard
	if err := preloadCells(s.DB.WithContext(ctx)).Order("id").Find(&cards).Error; err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for i := range cards {
		byPosition := make(map[int]*models.BingoCell, len(cards[i].Cells))
		for j := range cards[i].Cells {
			byPosition[cards[i].Cells[j].Position] = &cards[i].Cells[j]
		}
		for _, pos := range bingo.PositionsOnCompletedLines(cards[i].UnlockState()) {
			cell := byPosition[pos]
			if cell == nil || cell.InstanceID == nil || seen[*cell.InstanceID] {
				continue
			}
			seen[*cell.InstanceID] = true
			ids = append(ids, *cell.InstanceID)
		}
	}

	instances := []models.NFTInstance{}
	if len(ids) == 0 {
		return instances, nil
	}
	if err := s.DB.WithContext(ctx).Where("id IN ?", ids).Order("acquired_at, id").Find(&instances).Error; err != nil {
		return nil, err
	}
	return instances, nil
}

// FinalDay returns every instance minted from the definition.
func (s *EligibilitySelector) FinalDay(ctx context.Context, definitionID string) ([]models.NFTInstance, error) {
	if definitionID == "" {
		return nil, fmt.Errorf("final day selection: definition id is required")
	}
	instances := []models.NFTInstance{}
	err := s.DB.WithContext(ctx).
		Where("definition_id = ?", definitionID).
		Order("acquired_at, id").
		Find(&instances).Error
	return instances, err
}
