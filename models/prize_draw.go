package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outcome is the decision recorded for one evaluated instance
type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLose    Outcome = "lose"
	OutcomePending Outcome = "pending" // no winning number yet, or a ranking draw without threshold
)

// PrizeDrawType configures one kind of draw: how similarity is scored and
// the default pass threshold. A nil threshold makes it a ranking draw.
type PrizeDrawType struct {
	ID               string         `gorm:"primaryKey;size:36" json:"id"`
	InternalName     string         `gorm:"uniqueIndex;size:64;not null" json:"internal_name"`
	DisplayName      string         `gorm:"not null" json:"display_name"`
	Description      string         `gorm:"type:text" json:"description,omitempty"`
	Algorithm        string         `gorm:"size:32;not null" json:"algorithm"`
	DefaultThreshold *float64       `json:"default_threshold,omitempty"`
	Metadata         datatypes.JSON `json:"metadata,omitempty"`
	Timestamps
}

func (t *PrizeDrawType) BeforeCreate(tx *gorm.DB) error {
	assignID(&t.ID)
	return nil
}

// PrizeDrawWinningNumber is a winning value published for a draw type, valid
// inside an optional [EffectiveAt, ExpiresAt) window.
type PrizeDrawWinningNumber struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	DrawTypeID  string     `gorm:"size:36;not null;index" json:"draw_type_id"`
	Value       string     `gorm:"type:text;not null" json:"value"`
	EffectiveAt *time.Time `json:"effective_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (w *PrizeDrawWinningNumber) BeforeCreate(tx *gorm.DB) error {
	assignID(&w.ID)
	return nil
}

// ActiveAt reports whether t falls inside the validity window.
func (w *PrizeDrawWinningNumber) ActiveAt(t time.Time) bool {
	if w.EffectiveAt != nil && t.Before(*w.EffectiveAt) {
		return false
	}
	if w.ExpiresAt != nil && !t.Before(*w.ExpiresAt) {
		return false
	}
	return true
}

// PrizeDrawResult is the persisted evaluation of one instance for one draw
// type. ResultKey decides what counts as "the same entry": the definition
// (one result per definition) or the instance, depending on policy.
type PrizeDrawResult struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	DrawTypeID       string    `gorm:"size:36;not null;uniqueIndex:uq_prize_draw_result_key,priority:1" json:"draw_type_id"`
	ResultKey        string    `gorm:"size:80;not null;uniqueIndex:uq_prize_draw_result_key,priority:2" json:"result_key"`
	InstanceID       string    `gorm:"size:36;not null;index" json:"instance_id"`
	DefinitionID     string    `gorm:"size:36;not null;index" json:"definition_id"`
	UserID           string    `gorm:"size:36;not null;index" json:"user_id"`
	WinningNumberID  *string   `gorm:"size:36;index" json:"winning_number_id,omitempty"`
	DrawNumber       string    `gorm:"size:64;not null" json:"draw_number"`
	DrawValue        float64   `gorm:"not null" json:"draw_value"`
	SimilarityScore  *float64  `gorm:"index" json:"similarity_score,omitempty"`
	DrawTopDigits    string    `gorm:"size:16" json:"draw_top_digits"`
	WinningTopDigits string    `gorm:"size:16" json:"winning_top_digits,omitempty"`
	ThresholdUsed    *float64  `json:"threshold_used,omitempty"`
	Outcome          Outcome   `gorm:"type:varchar(16);not null;index" json:"outcome"`
	EvaluatedAt      time.Time `gorm:"not null" json:"evaluated_at"`
	Timestamps
}

func (r *PrizeDrawResult) BeforeCreate(tx *gorm.DB) error {
	assignID(&r.ID)
	return nil
}
