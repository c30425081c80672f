package scoring

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOrigin is returned when an origin is empty or malformed.
	ErrInvalidOrigin = errors.New("scoring: invalid origin")
	// ErrUnknownAlgorithm is returned when an algorithm key is not part of the closed set.
	ErrUnknownAlgorithm = errors.New("scoring: unknown algorithm")
	// ErrInvalidThreshold is returned for thresholds outside [0,1].
	ErrInvalidThreshold = errors.New("scoring: threshold must be within [0,1]")
)

// UnknownAlgorithmError carries the rejected key.
type UnknownAlgorithmError struct {
	Key string
}

func (e *UnknownAlgorithmError) Error() string {
	return fmt.Sprintf("scoring: unknown algorithm %q", e.Key)
}

func (e *UnknownAlgorithmError) Is(target error) bool {
	return target == ErrUnknownAlgorithm
}
