package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a loyalty member. Identity lives in the app and on chain; this row
// only links the two so instances and cards can be attributed.
type User struct {
	ID             string  `gorm:"primaryKey;size:36" json:"id"`
	ExternalUserID string  `gorm:"uniqueIndex;size:64;not null" json:"external_user_id"` // in-app id
	Wallet         *string `gorm:"uniqueIndex;size:128" json:"wallet,omitempty"`         // chain identity
	Nickname       string  `gorm:"size:64" json:"nickname"`
	Timestamps
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	assignID(&u.ID)
	return nil
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// assignID fills an empty primary key.
func assignID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
