// services/users.go
package services

import (
	"context"
	"strings"

	"loyalty-draw-system/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var userLog = logrus.WithField("component", "users")

// UserService keeps the local user mirror. Accounts are owned by the
// profile service; rows here are keyed by its external id.
type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// ByExternalID resolves the local user for an account id.
func (s *UserService) ByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "external_user_id = ?", strings.TrimSpace(externalID)).Error; err != nil {
		return nil, notFound(err, "user "+externalID)
	}
	return &user, nil
}

// Upsert creates or refreshes the mirror row for an account.
func (s *UserService) Upsert(ctx context.Context, externalID, nickname string) (*models.User, error) {
	user := models.User{ExternalUserID: strings.TrimSpace(externalID), Nickname: nickname}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"nickname", "updated_at"}),
	}).Create(&user).Error
	if err != nil {
		return nil, err
	}
	// The insert-time id is discarded on conflict; read the stored row back.
	return s.ByExternalID(ctx, user.ExternalUserID)
}

// LinkWallet records the chain address of an account. An address moves to
// the latest account that claims it.
func (s *UserService) LinkWallet(ctx context.Context, externalID, address string) error {
	address = strings.TrimSpace(address)
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "external_user_id = ?", externalID).Error; err != nil {
			return notFound(err, "user "+externalID)
		}
		if user.Wallet != nil && *user.Wallet == address {
			return nil
		}
		if err := tx.Model(&models.User{}).
			Where("wallet = ? AND id <> ?", address, user.ID).
			Update("wallet", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&user).Update("wallet", address).Error; err != nil {
			return err
		}
		userLog.WithFields(logrus.Fields{"external_user_id": externalID, "wallet": address}).Info("👛 wallet linked")
		return nil
	})
}

// SearchUsers matches nickname or external id, case-insensitively.
func (s *UserService) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	db := s.DB.WithContext(ctx).Model(&models.User{}).Order("nickname, id").Limit(limit)
	if query = strings.TrimSpace(query); query != "" {
		term := "%" + strings.ToLower(query) + "%"
		db = db.Where("LOWER(nickname) LIKE ? OR LOWER(external_user_id) LIKE ?", term, term)
	}
	var users []models.User
	err := db.Find(&users).Error
	return users, err
}
