package scoring

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DisplayDigits is how many leading hex digits are stored for display.
const DisplayDigits = 10

// DrawNumber is the deterministic, comparable form of an NFT origin.
type DrawNumber struct {
	// Origin is the normalized origin the digest was computed from.
	Origin string `json:"origin"`
	// Hex is the SHA-256 digest of Origin, 64 lower-case hex digits.
	Hex string `json:"hex"`
	// Value is the first 8 digest bytes read as a big-endian uint64 and scaled to [0,1].
	Value float64 `json:"value"`
}

// TopDigits returns the leading hex digits used in reports.
func (d DrawNumber) TopDigits() string {
	if len(d.Hex) < DisplayDigits {
		return d.Hex
	}
	return d.Hex[:DisplayDigits]
}

// NormalizeOrigin applies NFKC, trims surrounding whitespace and lower-cases.
func NormalizeOrigin(origin string) (string, error) {
	if !utf8.ValidString(origin) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidOrigin)
	}
	normalized := strings.TrimSpace(norm.NFKC.String(origin))
	if normalized == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOrigin)
	}
	for _, r := range normalized {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: control character %U", ErrInvalidOrigin, r)
		}
	}
	// Casers carry state, so one is built per call.
	return cases.Lower(language.Und).String(normalized), nil
}

// Derive computes the draw number of an origin. Equal origins (after
// normalization) always yield equal draw numbers.
func Derive(origin string) (DrawNumber, error) {
	normalized, err := NormalizeOrigin(origin)
	if err != nil {
		return DrawNumber{}, err
	}
	sum := sha256.Sum256([]byte(normalized))
	return DrawNumber{
		Origin: normalized,
		Hex:    hex.EncodeToString(sum[:]),
		Value:  unitInterval(sum[:8]),
	}, nil
}

func unitInterval(prefix []byte) float64 {
	return float64(binary.BigEndian.Uint64(prefix)) / float64(math.MaxUint64)
}
