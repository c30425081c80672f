package models

import (
	"time"

	"loyalty-draw-system/bingo"

	"gorm.io/gorm"
)

// CardState indicates where a bingo card is in its lifecycle
type CardState string

const (
	CardStateActive    CardState = "active"
	CardStateCompleted CardState = "completed" // all nine cells unlocked
)

// BingoCard is a 3x3 grid issued to a user when they acquire an instance of
// a card-triggering definition. One card per (user, trigger definition).
type BingoCard struct {
	ID                  string      `gorm:"primaryKey;size:36" json:"id"`
	UserID              string      `gorm:"size:36;not null;uniqueIndex:uq_bingo_card_user_trigger" json:"user_id"`
	TriggerDefinitionID string      `gorm:"size:36;not null;uniqueIndex:uq_bingo_card_user_trigger" json:"trigger_definition_id"`
	State               CardState   `gorm:"type:varchar(16);not null;index" json:"state"`
	IssuedAt            time.Time   `gorm:"not null" json:"issued_at"`
	CompletedAt         *time.Time  `json:"completed_at,omitempty"`
	Cells               []BingoCell `gorm:"foreignKey:CardID" json:"cells,omitempty"`
	Timestamps
}

func (c *BingoCard) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	if c.State == "" {
		c.State = CardStateActive
	}
	if c.IssuedAt.IsZero() {
		c.IssuedAt = time.Now().UTC()
	}
	return nil
}

// UnlockState maps the loaded cells onto positions. Cells must be preloaded.
func (c *BingoCard) UnlockState() bingo.State {
	var s bingo.State
	for _, cell := range c.Cells {
		if cell.Position >= 0 && cell.Position < bingo.CellCount {
			s[cell.Position] = cell.Unlocked
		}
	}
	return s
}

// BingoCell targets one definition. It unlocks once, when the owner acquires
// an instance of that definition, and is never locked again.
type BingoCell struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	CardID       string     `gorm:"size:36;not null;uniqueIndex:uq_bingo_cell_position" json:"card_id"`
	Position     int        `gorm:"not null;uniqueIndex:uq_bingo_cell_position" json:"position"` // 0..8 row-major
	DefinitionID string     `gorm:"size:36;not null;index" json:"definition_id"`
	Unlocked     bool       `gorm:"not null" json:"unlocked"`
	UnlockedAt   *time.Time `json:"unlocked_at,omitempty"`
	InstanceID   *string    `gorm:"size:36;index" json:"instance_id,omitempty"` // instance that unlocked the cell
	Timestamps
}

func (c *BingoCell) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	return nil
}
