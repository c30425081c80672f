package services

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"loyalty-draw-system/bingo"
	"loyalty-draw-system/metrics"
	"loyalty-draw-system/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var bingoLog = logrus.WithField("component", "bingo")

type BingoService struct {
	DB  *gorm.DB
	Now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func NewBingoService(db *gorm.DB) *BingoService {
	seed := uint64(time.Now().UnixNano())
	return &BingoService{
		DB:  db,
		Now: utcNow,
		rng: rand.New(rand.NewPCG(seed, rand.Uint64())),
	}
}

// WithRand swaps the layout generator, e.g. for a seeded one in tests.
func (s *BingoService) WithRand(rng *rand.Rand) *BingoService {
	s.mu.Lock()
	s.rng = rng
	s.mu.Unlock()
	return s
}

// CellView and CardView are the card shape handed to the reporting layer.
type CellView struct {
	Position     int    `json:"position"`
	DefinitionID string `json:"definitionId"`
	Unlocked     bool   `json:"unlocked"`
}

type CardView struct {
	CardID              string           `json:"cardId"`
	TriggerDefinitionID string           `json:"triggerDefinitionId"`
	State               models.CardState `json:"state"`
	Cells               []CellView       `json:"cells"`
	CompletedLines      []bingo.Line     `json:"completedLines"`
}

func NewCardView(card *models.BingoCard) CardView {
	view := CardView{
		CardID:              card.ID,
		TriggerDefinitionID: card.TriggerDefinitionID,
		State:               card.State,
		Cells:               make([]CellView, 0, len(card.Cells)),
		CompletedLines:      bingo.CompletedLines(card.UnlockState()),
	}
	if view.CompletedLines == nil {
		view.CompletedLines = []bingo.Line{}
	}
	for _, cell := range card.Cells {
		view.Cells = append(view.Cells, CellView{
			Position:     cell.Position,
			DefinitionID: cell.DefinitionID,
			Unlocked:     cell.Unlocked,
		})
	}
	return view
}

// GenerateCard issues the card for (user, trigger definition). It is
// idempotent: an existing card is returned unchanged.
func (s *BingoService) GenerateCard(ctx context.Context, userID, triggerDefinitionID string, included, excluded []string) (*models.BingoCard, error) {
	var (
		card  *models.BingoCard
		tally bingoTally
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		card, err = s.generateCard(tx, userID, triggerDefinitionID, included, excluded, &tally)
		return err
	})
	if err != nil {
		return nil, err
	}
	tally.record()
	return card, nil
}

// bingoTally holds metric updates until the transaction that made them commits.
type bingoTally struct {
	cards int
	cells int
}

func (t *bingoTally) record() {
	metrics.RecordCardsGenerated(t.cards)
	metrics.RecordCellsUnlocked(t.cells)
}

func (s *BingoService) generateCard(tx *gorm.DB, userID, triggerDefinitionID string, included, excluded []string, tally *bingoTally) (*models.BingoCard, error) {
	existing, err := findCard(tx, userID, triggerDefinitionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var trigger models.NFTDefinition
	if err := tx.First(&trigger, "id = ?", triggerDefinitionID).Error; err != nil {
		return nil, notFound(err, "trigger definition "+triggerDefinitionID)
	}

	var pool []string
	if err := tx.Model(&models.NFTDefinition{}).
		Where("excluded_from_bingo = ? AND status = ?", false, models.DefinitionStatusActive).
		Order("prefix").
		Pluck("id", &pool).Error; err != nil {
		return nil, err
	}

	layout, err := s.assign(trigger.ID, bingo.Candidates(pool, included, excluded, trigger.ID))
	if err != nil {
		return nil, err
	}

	now := s.Now()
	card := models.BingoCard{
		UserID:              userID,
		TriggerDefinitionID: trigger.ID,
		State:               models.CardStateActive,
		IssuedAt:            now,
	}
	// The savepoint keeps tx usable when a concurrent issuer wins the unique
	// index on (user, trigger); their card is returned instead.
	if err := tx.Transaction(func(sp *gorm.DB) error {
		return sp.Omit(clause.Associations).Create(&card).Error
	}); err != nil {
		if existing, findErr := findCard(tx, userID, trigger.ID); findErr == nil {
			return existing, nil
		}
		return nil, err
	}

	var triggerInstance models.NFTInstance
	found := tx.Where("user_id = ? AND definition_id = ?", userID, trigger.ID).
		Order("acquired_at, id").Limit(1).Find(&triggerInstance)
	if found.Error != nil {
		return nil, found.Error
	}

	cells := make([]models.BingoCell, bingo.CellCount)
	for pos, definitionID := range layout {
		cells[pos] = models.BingoCell{CardID: card.ID, Position: pos, DefinitionID: definitionID}
	}
	centre := &cells[bingo.CenterPosition]
	centre.Unlocked = true
	centre.UnlockedAt = &now
	if found.RowsAffected > 0 {
		centre.InstanceID = &triggerInstance.ID
	}
	if err := tx.Create(&cells).Error; err != nil {
		return nil, err
	}
	card.Cells = cells

	// Instances acquired before the card existed count right away.
	var owned []models.NFTInstance
	if err := tx.Where("user_id = ?", userID).Order("acquired_at, id").Find(&owned).Error; err != nil {
		return nil, err
	}
	unlocked := 0
	for i := range owned {
		ok, err := unlockOnCard(tx, &card, &owned[i], now)
		if err != nil {
			return nil, err
		}
		if ok {
			unlocked++
		}
	}
	if err := completeIfFull(tx, &card, now); err != nil {
		return nil, err
	}

	tally.cards++
	tally.cells += unlocked
	bingoLog.WithFields(logrus.Fields{
		"user_id":  userID,
		"trigger":  trigger.Prefix,
		"card_id":  card.ID,
		"unlocked": unlocked,
	}).Info("🃏 bingo card issued")
	return &card, nil
}

func (s *BingoService) assign(trigger string, candidates []string) ([bingo.CellCount]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bingo.AssignCells(trigger, candidates, s.rng)
}

// UnlockCellsForInstance unlocks, on each of the owner's cards, the first
// locked cell that targets the instance's definition. Returns the number of
// cells unlocked.
func (s *BingoService) UnlockCellsForInstance(ctx context.Context, instance *models.NFTInstance) (int, error) {
	var (
		unlocked int
		tally    bingoTally
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		unlocked, err = s.unlockCells(tx, instance, &tally)
		return err
	})
	if err != nil {
		return 0, err
	}
	tally.record()
	return unlocked, nil
}

func (s *BingoService) unlockCells(tx *gorm.DB, instance *models.NFTInstance, tally *bingoTally) (int, error) {
	var cards []models.BingoCard
	if err := preloadCells(tx).
		Where("user_id = ? AND state = ?", instance.UserID, models.CardStateActive).
		Order("issued_at, id").
		Find(&cards).Error; err != nil {
		return 0, err
	}

	now := s.Now()
	unlocked := 0
	for i := range cards {
		ok, err := unlockOnCard(tx, &cards[i], instance, now)
		if err != nil {
			return unlocked, err
		}
		if !ok {
			continue
		}
		unlocked++
		if err := completeIfFull(tx, &cards[i], now); err != nil {
			return unlocked, err
		}
	}
	tally.cells += unlocked
	return unlocked, nil
}

// EnsureCards issues the missing cards for every card-triggering definition
// the user owns. Returns the number of cards created.
func (s *BingoService) EnsureCards(ctx context.Context, userID string) (int, error) {
	var triggers []string
	if err := s.DB.WithContext(ctx).Model(&models.NFTInstance{}).
		Joins("JOIN nft_definitions ON nft_definitions.id = nft_instances.definition_id").
		Where("nft_instances.user_id = ? AND nft_definitions.triggers_bingo_card = ?", userID, true).
		Distinct("nft_instances.definition_id").
		Pluck("nft_instances.definition_id", &triggers).Error; err != nil {
		return 0, err
	}

	var have []string
	if err := s.DB.WithContext(ctx).Model(&models.BingoCard{}).
		Where("user_id = ?", userID).
		Pluck("trigger_definition_id", &have).Error; err != nil {
		return 0, err
	}
	issued := make(map[string]bool, len(have))
	for _, id := range have {
		issued[id] = true
	}

	created := 0
	for _, trigger := range triggers {
		if issued[trigger] {
			continue
		}
		if _, err := s.GenerateCard(ctx, userID, trigger, nil, nil); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// EnsureCells replays every instance the user owns against their cards.
// Returns the number of cells unlocked.
func (s *BingoService) EnsureCells(ctx context.Context, userID string) (int, error) {
	var (
		total int
		tally bingoTally
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned []models.NFTInstance
		if err := tx.Where("user_id = ?", userID).Order("acquired_at, id").Find(&owned).Error; err != nil {
			return err
		}
		for i := range owned {
			n, err := s.unlockCells(tx, &owned[i], &tally)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	tally.record()
	return total, nil
}

func (s *BingoService) UserCards(ctx context.Context, userID string) ([]models.BingoCard, error) {
	var cards []models.BingoCard
	err := preloadCells(s.DB.WithContext(ctx)).
		Where("user_id = ?", userID).
		Order("issued_at, id").
		Find(&cards).Error
	return cards, err
}

func (s *BingoService) GetCard(ctx context.Context, cardID string) (*models.BingoCard, error) {
	var card models.BingoCard
	if err := preloadCells(s.DB.WithContext(ctx)).First(&card, "id = ?", cardID).Error; err != nil {
		return nil, notFound(err, "bingo card "+cardID)
	}
	return &card, nil
}

func preloadCells(db *gorm.DB) *gorm.DB {
	return db.Preload("Cells", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	})
}

func findCard(db *gorm.DB, userID, triggerDefinitionID string) (*models.BingoCard, error) {
	var card models.BingoCard
	err := preloadCells(db).
		Where("user_id = ? AND trigger_definition_id = ?", userID, triggerDefinitionID).
		First(&card).Error
	if err != nil {
		return nil, notFound(err, "bingo card")
	}
	return &card, nil
}

// unlockOnCard unlocks the first locked cell for the instance's definition.
// An instance unlocks at most one cell per card.
func unlockOnCard(tx *gorm.DB, card *models.BingoCard, instance *models.NFTInstance, now time.Time) (bool, error) {
	target := -1
	for i, cell := range card.Cells {
		if cell.InstanceID != nil && *cell.InstanceID == instance.ID {
			return false, nil
		}
		if target < 0 && !cell.Unlocked && cell.DefinitionID == instance.DefinitionID {
			target = i
		}
	}
	if target < 0 {
		return false, nil
	}

	cell := &card.Cells[target]
	if err := tx.Model(cell).Updates(map[string]any{
		"unlocked":    true,
		"unlocked_at": now,
		"instance_id": instance.ID,
	}).Error; err != nil {
		return false, err
	}
	cell.Unlocked = true
	cell.UnlockedAt = &now
	id := instance.ID
	cell.InstanceID = &id
	return true, nil
}

func completeIfFull(tx *gorm.DB, card *models.BingoCard, now time.Time) error {
	if card.State != models.CardStateActive || !card.UnlockState().Complete() {
		return nil
	}
	if err := tx.Model(card).Updates(map[string]any{
		"state":        models.CardStateCompleted,
		"completed_at": now,
	}).Error; err != nil {
		return err
	}
	card.State = models.CardStateCompleted
	card.CompletedAt = &now
	bingoLog.WithFields(logrus.Fields{"card_id": card.ID, "user_id": card.UserID}).Info("🏁 bingo card completed")
	return nil
}
