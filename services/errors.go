package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrDuplicateDefinition   = errors.New("prize draw: more than one instance of a definition for one draw type")
	ErrMissingWinningNumber  = errors.New("prize draw: no active winning number")
	ErrInvalidLimit          = errors.New("prize draw: limit must be positive")
	ErrInvalidWinningNumber  = errors.New("prize draw: invalid winning number")
	ErrInvalidDrawType       = errors.New("prize draw: invalid draw type")
	ErrDrawTypeExists        = errors.New("prize draw: draw type already exists")
	ErrSupplyExhausted       = errors.New("issuance: definition supply exhausted")
	ErrDefinitionInactive    = errors.New("issuance: definition is not active")
	ErrUnknownUniqueness     = errors.New("prize draw: unknown uniqueness policy")
	ErrMissingInstanceOrType = errors.New("prize draw: instance and draw type are required")
)

// DuplicateDefinitionError lists, per definition, the instances that compete
// for a single result under the per-definition policy.
type DuplicateDefinitionError struct {
	DrawTypeID string
	Instances  map[string][]string // definition id -> instance ids
}

func (e *DuplicateDefinitionError) Error() string {
	defs := make([]string, 0, len(e.Instances))
	for def := range e.Instances {
		defs = append(defs, def)
	}
	sort.Strings(defs)

	parts := make([]string, 0, len(defs))
	for _, def := range defs {
		parts = append(parts, fmt.Sprintf("definition %s: instances %s", def, strings.Join(e.Instances[def], ", ")))
	}
	return fmt.Sprintf("prize draw %s: duplicate definitions (%s)", e.DrawTypeID, strings.Join(parts, "; "))
}

func (e *DuplicateDefinitionError) Is(target error) bool {
	return target == ErrDuplicateDefinition
}

// notFound maps gorm's missing-row error onto ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}
