package services

import (
	"fmt"
	"strings"

	"loyalty-draw-system/models"
)

// UniquenessPolicy decides what counts as one entry in a draw.
type UniquenessPolicy string

const (
	// UniquePerDefinition keeps one result per (draw type, definition). A user
	// holding two instances of one definition gets a single entry.
	UniquePerDefinition UniquenessPolicy = "per_definition"
	// UniquePerInstance keeps one result per (draw type, instance).
	UniquePerInstance UniquenessPolicy = "per_instance"
)

func ParseUniquenessPolicy(s string) (UniquenessPolicy, error) {
	switch p := UniquenessPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return UniquePerDefinition, nil
	case UniquePerDefinition, UniquePerInstance:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUniqueness, s)
}

// ResultKey is the value stored in prize_draw_results.result_key.
func (p UniquenessPolicy) ResultKey(instance *models.NFTInstance) string {
	if p == UniquePerInstance {
		return "inst:" + instance.ID
	}
	return "def:" + instance.DefinitionID
}

// groupKey is the in-batch collision key; instances sharing one collide.
func (p UniquenessPolicy) groupKey(instance *models.NFTInstance) string {
	if p == UniquePerInstance {
		return instance.ID
	}
	return instance.DefinitionID
}
