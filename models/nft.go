package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrOriginImmutable is returned when an update tries to rewrite an instance origin.
var ErrOriginImmutable = errors.New("models: nft instance origin is immutable")

// DefinitionStatus is the lifecycle of an NFT definition
type DefinitionStatus string

const (
	DefinitionStatusActive   DefinitionStatus = "active"
	DefinitionStatusInactive DefinitionStatus = "inactive"
	DefinitionStatusArchived DefinitionStatus = "archived"
)

// NFTDefinition is a badge template (an event, a place, a campaign). Instances
// are minted from it. Definitions are archived, never deleted, once referenced.
type NFTDefinition struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	Prefix      string `gorm:"uniqueIndex;size:16;not null" json:"prefix"` // e.g. "TKY24"
	Name        string `gorm:"not null" json:"name"`
	Category    string `gorm:"size:64;index" json:"category"`
	Subcategory string `gorm:"size:64" json:"subcategory,omitempty"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	// TriggersBingoCard issues a card, with this definition at the centre,
	// to every user who acquires an instance.
	TriggersBingoCard bool `gorm:"not null" json:"triggers_bingo_card"`
	// ExcludedFromBingo keeps the definition out of generated card cells.
	ExcludedFromBingo bool `gorm:"not null" json:"excluded_from_bingo"`

	MaxSupply   *int             `json:"max_supply,omitempty"` // nil = unlimited
	MintedCount int              `gorm:"not null" json:"minted_count"`
	Status      DefinitionStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Metadata    datatypes.JSON   `json:"metadata,omitempty"`
	Timestamps
}

func (d *NFTDefinition) BeforeCreate(tx *gorm.DB) error {
	assignID(&d.ID)
	if d.Status == "" {
		d.Status = DefinitionStatusActive
	}
	return nil
}

// SupplyLeft reports whether another instance may be minted.
func (d *NFTDefinition) SupplyLeft() bool {
	return d.MaxSupply == nil || d.MintedCount < *d.MaxSupply
}

// NFTInstance is one minted badge owned by a user.
type NFTInstance struct {
	ID           string `gorm:"primaryKey;size:36" json:"id"`
	UserID       string `gorm:"size:36;not null;index" json:"user_id"`
	DefinitionID string `gorm:"size:36;not null;index" json:"definition_id"`

	// Origin is the provenance string recorded at mint time. Draw numbers are
	// derived from it, so it never changes.
	Origin      string         `gorm:"type:text;not null" json:"origin"`
	UniqueNFTID string         `gorm:"uniqueIndex;size:64;not null" json:"unique_nft_id"` // PREFIX-xxxxxxxxxxxx
	OnChainID   *int64         `gorm:"index" json:"on_chain_id,omitempty"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	AcquiredAt  time.Time      `gorm:"not null" json:"acquired_at"`
	Timestamps
}

func (i *NFTInstance) BeforeCreate(tx *gorm.DB) error {
	assignID(&i.ID)
	if i.AcquiredAt.IsZero() {
		i.AcquiredAt = time.Now().UTC()
	}
	return nil
}

func (i *NFTInstance) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("Origin") {
		return ErrOriginImmutable
	}
	return nil
}
