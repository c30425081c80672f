package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"loyalty-draw-system/models"
	"loyalty-draw-system/scoring"

	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var drawTypeLog = logrus.WithField("component", "draw_types")

// DrawTypeInput is what an operator supplies to configure a draw.
type DrawTypeInput struct {
	InternalName     string         `json:"internal_name" yaml:"internal_name" validate:"required,max=64"`
	DisplayName      string         `json:"display_name" yaml:"display_name" validate:"max=255"`
	Description      string         `json:"description" yaml:"description"`
	Algorithm        string         `json:"algorithm" yaml:"algorithm"`
	DefaultThreshold *float64       `json:"default_threshold" yaml:"default_threshold" validate:"omitempty,gte=0,lte=1"`
	Metadata         map[string]any `json:"metadata" yaml:"metadata"`
}

type DrawTypeService struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewDrawTypeService(db *gorm.DB) *DrawTypeService {
	return &DrawTypeService{DB: db, Now: utcNow}
}

// NormalizeInternalName turns "Final Day" into "final-day".
func NormalizeInternalName(name string) string {
	return slug.Make(strings.TrimSpace(name))
}

// Create validates and stores a draw type. The algorithm key is checked
// here so an unknown key never reaches evaluation.
func (s *DrawTypeService) Create(ctx context.Context, in DrawTypeInput) (*models.PrizeDrawType, error) {
	name := NormalizeInternalName(in.InternalName)
	if name == "" {
		return nil, fmt.Errorf("%w: internal name is required", ErrInvalidDrawType)
	}

	algorithm := in.Algorithm
	if algorithm == "" {
		algorithm = string(scoring.DefaultAlgorithm)
	}
	if _, err := scoring.ParseAlgorithm(algorithm); err != nil {
		return nil, err
	}
	if err := scoring.ValidateThreshold(in.DefaultThreshold); err != nil {
		return nil, err
	}

	display := strings.TrimSpace(in.DisplayName)
	if display == "" {
		display = strings.TrimSpace(in.InternalName)
	}

	drawType := models.PrizeDrawType{
		InternalName:     name,
		DisplayName:      display,
		Description:      in.Description,
		Algorithm:        algorithm,
		DefaultThreshold: in.DefaultThreshold,
	}
	drawType.CreatedAt = s.Now()
	drawType.UpdatedAt = drawType.CreatedAt
	if len(in.Metadata) > 0 {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidDrawType, err)
		}
		drawType.Metadata = datatypes.JSON(raw)
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.PrizeDrawType{}).Where("internal_name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrDrawTypeExists, name)
		}
		return tx.Create(&drawType).Error
	})
	if err != nil {
		return nil, err
	}

	drawTypeLog.WithFields(logrus.Fields{
		"draw_type": drawType.InternalName,
		"algorithm": drawType.Algorithm,
	}).Info("🎯 draw type created")
	return &drawType, nil
}

func (s *DrawTypeService) Get(ctx context.Context, id string) (*models.PrizeDrawType, error) {
	var drawType models.PrizeDrawType
	if err := s.DB.WithContext(ctx).First(&drawType, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "draw type "+id)
	}
	return &drawType, nil
}

func (s *DrawTypeService) GetByInternalName(ctx context.Context, name string) (*models.PrizeDrawType, error) {
	normalized := NormalizeInternalName(name)
	var drawType models.PrizeDrawType
	if err := s.DB.WithContext(ctx).First(&drawType, "internal_name = ?", normalized).Error; err != nil {
		return nil, notFound(err, "draw type "+normalized)
	}
	return &drawType, nil
}

// List returns every draw type, newest first.
func (s *DrawTypeService) List(ctx context.Context) ([]models.PrizeDrawType, error) {
	var drawTypes []models.PrizeDrawType
	err := s.DB.WithContext(ctx).Order("created_at DESC, id DESC").Find(&drawTypes).Error
	return drawTypes, err
}

// SubmitWinningNumber publishes a winning value. The value must survive the
// same normalization as origins, and the window, when given, must be non-empty.
func (s *DrawTypeService) SubmitWinningNumber(ctx context.Context, drawTypeID, value string, effectiveAt, expiresAt *time.Time) (*models.PrizeDrawWinningNumber, error) {
	value = strings.TrimSpace(value)
	if _, err := scoring.NormalizeOrigin(value); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWinningNumber, err)
	}
	if effectiveAt != nil && expiresAt != nil && !expiresAt.After(*effectiveAt) {
		return nil, fmt.Errorf("%w: expires_at must be after effective_at", ErrInvalidWinningNumber)
	}

	if _, err := s.Get(ctx, drawTypeID); err != nil {
		return nil, err
	}

	winning := models.PrizeDrawWinningNumber{
		DrawTypeID:  drawTypeID,
		Value:       value,
		EffectiveAt: effectiveAt,
		ExpiresAt:   expiresAt,
		CreatedAt:   s.Now(),
	}
	if err := s.DB.WithContext(ctx).Create(&winning).Error; err != nil {
		return nil, err
	}

	drawTypeLog.WithFields(logrus.Fields{
		"draw_type_id":      drawTypeID,
		"winning_number_id": winning.ID,
		"top_digits":        scoring.WinningTopDigits(value),
	}).Info("🎰 winning number submitted")
	return &winning, nil
}

// ActiveWinningNumber returns the newest winning number whose window
// contains at, or ErrMissingWinningNumber.
func (s *DrawTypeService) ActiveWinningNumber(ctx context.Context, drawTypeID string, at time.Time) (*models.PrizeDrawWinningNumber, error) {
	var numbers []models.PrizeDrawWinningNumber
	if err := s.DB.WithContext(ctx).Where("draw_type_id = ?", drawTypeID).Find(&numbers).Error; err != nil {
		return nil, err
	}
	// newest first
	sort.SliceStable(numbers, func(i, j int) bool {
		if !numbers[i].CreatedAt.Equal(numbers[j].CreatedAt) {
			return numbers[i].CreatedAt.After(numbers[j].CreatedAt)
		}
		return numbers[i].ID > numbers[j].ID
	})
	for i := range numbers {
		if numbers[i].ActiveAt(at) {
			return &numbers[i], nil
		}
	}
	return nil, fmt.Errorf("draw type %s: %w", drawTypeID, ErrMissingWinningNumber)
}

// resolveWinningNumber returns winning when given, otherwise the active one.
func (s *DrawTypeService) resolveWinningNumber(ctx context.Context, drawTypeID string, winning *models.PrizeDrawWinningNumber) (*models.PrizeDrawWinningNumber, error) {
	if winning != nil {
		return winning, nil
	}
	return s.ActiveWinningNumber(ctx, drawTypeID, s.Now())
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func isMissingWinningNumber(err error) bool {
	return errors.Is(err, ErrMissingWinningNumber)
}
