package bingo

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

// ErrInsufficientCandidates is returned when fewer than eight definitions
// are available for the non-centre cells.
var ErrInsufficientCandidates = errors.New("bingo: insufficient candidate definitions")

type InsufficientCandidatesError struct {
	Need int
	Have int
}

func (e *InsufficientCandidatesError) Error() string {
	return fmt.Sprintf("bingo: need %d candidate definitions, have %d", e.Need, e.Have)
}

func (e *InsufficientCandidatesError) Is(target error) bool {
	return target == ErrInsufficientCandidates
}

// Candidates returns the pool for the non-centre cells: all minus excluded,
// narrowed to included when included is non-empty. The trigger never appears
// in the pool and input order is preserved.
func Candidates(all, included, excluded []string, trigger string) []string {
	skip := map[string]bool{trigger: true}
	for _, id := range excluded {
		skip[id] = true
	}
	var allow map[string]bool
	if len(included) > 0 {
		allow = make(map[string]bool, len(included))
		for _, id := range included {
			allow[id] = true
		}
	}

	out := make([]string, 0, len(all))
	for _, id := range all {
		if skip[id] || (allow != nil && !allow[id]) {
			continue
		}
		skip[id] = true
		out = append(out, id)
	}
	return out
}

// AssignCells lays out a card: trigger at the centre, eight distinct
// candidates drawn without replacement around it.
func AssignCells(trigger string, candidates []string, rng *rand.Rand) ([CellCount]string, error) {
	var layout [CellCount]string
	need := CellCount - 1
	if len(candidates) < need {
		return layout, &InsufficientCandidatesError{Need: need, Have: len(candidates)}
	}

	picks := rng.Perm(len(candidates))[:need]
	layout[CenterPosition] = trigger
	i := 0
	for pos := range layout {
		if pos == CenterPosition {
			continue
		}
		layout[pos] = candidates[picks[i]]
		i++
	}
	return layout, nil
}
