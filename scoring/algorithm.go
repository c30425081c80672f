package scoring

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/bits"
	"sort"

	"lukechampine.com/blake3"
)

// Algorithm names a similarity function. The set is closed: only the
// constants below are accepted anywhere a key is parsed.
type Algorithm string

const (
	// SHA256HexProximity compares the SHA-256 digests digit by digit.
	SHA256HexProximity Algorithm = "sha256_hex_proximity"
	// Blake3HexProximity compares BLAKE3-256 digests digit by digit.
	Blake3HexProximity Algorithm = "blake3_hex_proximity"
	// Hamming compares the normalized strings bit by bit.
	Hamming Algorithm = "hamming"
)

// DefaultAlgorithm is used when a draw type does not name one.
const DefaultAlgorithm = SHA256HexProximity

type similarityFunc func(draw, winning DrawNumber) float64

var algorithms = map[Algorithm]similarityFunc{
	SHA256HexProximity: func(draw, winning DrawNumber) float64 {
		return hexProximity(draw.Hex, winning.Hex)
	},
	Blake3HexProximity: func(draw, winning DrawNumber) float64 {
		a := blake3.Sum256([]byte(draw.Origin))
		b := blake3.Sum256([]byte(winning.Origin))
		return hexProximity(hex.EncodeToString(a[:]), hex.EncodeToString(b[:]))
	},
	Hamming: func(draw, winning DrawNumber) float64 {
		return bitSimilarity([]byte(draw.Origin), []byte(winning.Origin))
	},
}

// ParseAlgorithm resolves a key against the closed set.
func ParseAlgorithm(key string) (Algorithm, error) {
	a := Algorithm(key)
	if _, ok := algorithms[a]; !ok {
		return "", &UnknownAlgorithmError{Key: key}
	}
	return a, nil
}

// Algorithms lists the supported keys in lexical order.
func Algorithms() []Algorithm {
	out := make([]Algorithm, 0, len(algorithms))
	for a := range algorithms {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Score compares a draw number with a winning value. The winning value goes
// through the same derivation as origins, so Score is symmetric in its inputs
// and returns 1.0 when both normalize to the same string.
func (a Algorithm) Score(draw DrawNumber, winningValue string) (float64, error) {
	fn, ok := algorithms[a]
	if !ok {
		return 0, &UnknownAlgorithmError{Key: string(a)}
	}
	winning, err := Derive(winningValue)
	if err != nil {
		return 0, fmt.Errorf("winning number: %w", err)
	}
	return clamp(fn(draw, winning)), nil
}

// Evaluation is the outcome of scoring one draw number against a winning value.
type Evaluation struct {
	Algorithm Algorithm `json:"algorithm"`
	Score     float64   `json:"score"`
	Threshold *float64  `json:"threshold,omitempty"`
	// Passed is nil when no threshold applies.
	Passed *bool `json:"passed,omitempty"`
}

// Evaluate scores and, when a threshold is given, decides pass or fail.
func (a Algorithm) Evaluate(draw DrawNumber, winningValue string, threshold *float64) (Evaluation, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return Evaluation{}, err
	}
	score, err := a.Score(draw, winningValue)
	if err != nil {
		return Evaluation{}, err
	}
	ev := Evaluation{Algorithm: a, Score: score, Threshold: threshold}
	if threshold != nil {
		passed := score >= *threshold
		ev.Passed = &passed
	}
	return ev, nil
}

// ValidateThreshold accepts nil or a value within [0,1].
func ValidateThreshold(threshold *float64) error {
	if threshold == nil {
		return nil
	}
	if math.IsNaN(*threshold) || *threshold < 0 || *threshold > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, *threshold)
	}
	return nil
}

// WinningTopDigits returns the display digits of a winning value's SHA-256 digest.
func WinningTopDigits(winningValue string) string {
	winning, err := Derive(winningValue)
	if err != nil {
		return ""
	}
	return winning.TopDigits()
}

func hexProximity(a, b string) float64 {
	n := len(a)
	if len(b) != n || n == 0 {
		return 0
	}
	distance := 0
	for i := 0; i < n; i++ {
		d := hexValue(a[i]) - hexValue(b[i])
		if d < 0 {
			d = -d
		}
		distance += d
	}
	return 1 - float64(distance)/float64(n*15)
}

func hexValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 0
}

// bitSimilarity zero-pads the shorter input and returns the share of equal bits.
func bitSimilarity(a, b []byte) float64 {
	n := max(len(a), len(b))
	if n == 0 {
		return 1
	}
	diff := 0
	for i := 0; i < n; i++ {
		var x, y byte
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		diff += bits.OnesCount8(x ^ y)
	}
	return 1 - float64(diff)/float64(n*8)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
