package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"loyalty-draw-system/bingo"
	"loyalty-draw-system/models"
	"loyalty-draw-system/scoring"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var issuanceLog = logrus.WithField("component", "issuance")

const (
	uniqueIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	uniqueIDLength   = 12
)

// IssuanceService records instances handed out to users. Minting on chain
// happens elsewhere; the origin it produced is an input here.
type IssuanceService struct {
	DB    *gorm.DB
	Bingo *BingoService
	Now   func() time.Time
}

func NewIssuanceService(db *gorm.DB, bingoService *BingoService) *IssuanceService {
	return &IssuanceService{DB: db, Bingo: bingoService, Now: utcNow}
}

// Issue creates an instance of the definition for the user, counts it
// against the definition's supply, issues the bingo card the definition
// triggers and unlocks matching cells, all in one transaction.
func (s *IssuanceService) Issue(ctx context.Context, userID, definitionID, origin string) (*models.NFTInstance, error) {
	origin = strings.TrimSpace(origin)
	if _, err := scoring.NormalizeOrigin(origin); err != nil {
		return nil, err
	}

	var (
		instance models.NFTInstance
		tally    bingoTally
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return notFound(err, "user "+userID)
		}
		var def models.NFTDefinition
		if err := tx.First(&def, "id = ?", definitionID).Error; err != nil {
			return notFound(err, "definition "+definitionID)
		}
		if def.Status != models.DefinitionStatusActive {
			return fmt.Errorf("%w: %s is %s", ErrDefinitionInactive, def.Prefix, def.Status)
		}

		// Conditional increment so concurrent issuers cannot overshoot the supply.
		res := tx.Model(&models.NFTDefinition{}).
			Where("id = ? AND (max_supply IS NULL OR minted_count < max_supply)", def.ID).
			UpdateColumn("minted_count", gorm.Expr("minted_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrSupplyExhausted, def.Prefix)
		}

		suffix, err := randomSuffix(uniqueIDLength)
		if err != nil {
			return err
		}
		instance = models.NFTInstance{
			UserID:       user.ID,
			DefinitionID: def.ID,
			Origin:       origin,
			UniqueNFTID:  def.Prefix + "-" + suffix,
			AcquiredAt:   s.Now(),
		}
		if err := tx.Create(&instance).Error; err != nil {
			return err
		}

		return s.afterAcquire(tx, &def, &instance, &tally)
	})
	if err != nil {
		return nil, err
	}
	tally.record()

	issuanceLog.WithFields(logrus.Fields{
		"user_id":       userID,
		"unique_nft_id": instance.UniqueNFTID,
	}).Info("🏅 nft instance issued")
	return &instance, nil
}

// afterAcquire issues the triggered card and unlocks matching cells. A card
// that cannot be laid out yet is logged, not fatal: the instance still counts.
func (s *IssuanceService) afterAcquire(tx *gorm.DB, def *models.NFTDefinition, instance *models.NFTInstance, tally *bingoTally) error {
	if def.TriggersBingoCard {
		_, err := s.Bingo.generateCard(tx, instance.UserID, def.ID, nil, nil, tally)
		if errors.Is(err, bingo.ErrInsufficientCandidates) {
			issuanceLog.WithError(err).WithField("trigger", def.Prefix).Warn("bingo card not issued")
		} else if err != nil {
			return err
		}
	}
	_, err := s.Bingo.unlockCells(tx, instance, tally)
	return err
}

func randomSuffix(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate unique id: %w", err)
	}
	for i, b := range buf {
		buf[i] = uniqueIDAlphabet[int(b)%len(uniqueIDAlphabet)]
	}
	return string(buf), nil
}

// ChainInstance is an instance as reported by the chain indexer.
type ChainInstance struct {
	UniqueNFTID      string
	ExternalUserID   string
	DefinitionPrefix string
	Origin           string
	OnChainID        *int64
	Metadata         datatypes.JSON
	AcquiredAt       time.Time
}

// Reconcile applies one indexer record. A known instance only has its chain
// id and metadata refreshed; the origin is never rewritten. An unknown one is
// recorded for its owner, counted against the definition and run through the
// same bingo upkeep as Issue. Returns true when the instance was created.
func (s *IssuanceService) Reconcile(ctx context.Context, rec ChainInstance) (bool, error) {
	var (
		created bool
		tally   bingoTally
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.NFTInstance
		found := tx.Where("unique_nft_id = ?", rec.UniqueNFTID).Limit(1).Find(&existing)
		if found.Error != nil {
			return found.Error
		}
		if found.RowsAffected > 0 {
			if rec.Origin != "" && rec.Origin != existing.Origin {
				issuanceLog.WithField("unique_nft_id", rec.UniqueNFTID).Warn("⚠️ indexer reports a different origin; keeping the recorded one")
			}
			updates := map[string]any{"on_chain_id": rec.OnChainID}
			if len(rec.Metadata) > 0 {
				updates["metadata"] = rec.Metadata
			}
			return tx.Model(&existing).Updates(updates).Error
		}

		origin := strings.TrimSpace(rec.Origin)
		if _, err := scoring.NormalizeOrigin(origin); err != nil {
			return fmt.Errorf("instance %s: %w", rec.UniqueNFTID, err)
		}
		var user models.User
		if err := tx.First(&user, "external_user_id = ?", rec.ExternalUserID).Error; err != nil {
			return notFound(err, "user "+rec.ExternalUserID)
		}
		var def models.NFTDefinition
		if err := tx.First(&def, "prefix = ?", rec.DefinitionPrefix).Error; err != nil {
			return notFound(err, "definition "+rec.DefinitionPrefix)
		}

		if err := tx.Model(&def).UpdateColumn("minted_count", gorm.Expr("minted_count + ?", 1)).Error; err != nil {
			return err
		}
		instance := models.NFTInstance{
			UserID:       user.ID,
			DefinitionID: def.ID,
			Origin:       origin,
			UniqueNFTID:  rec.UniqueNFTID,
			OnChainID:    rec.OnChainID,
			Metadata:     rec.Metadata,
			AcquiredAt:   rec.AcquiredAt,
		}
		if err := tx.Create(&instance).Error; err != nil {
			return err
		}
		created = true
		return s.afterAcquire(tx, &def, &instance, &tally)
	})
	if err != nil {
		return false, err
	}
	tally.record()
	return created, nil
}
