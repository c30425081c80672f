package scoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const abcDigest = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func TestDeriveNormalizesBeforeHashing(t *testing.T) {
	a, err := Derive("  ABC\t")
	require.NoError(t, err)
	b, err := Derive("abc")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, "abc", a.Origin)
	assert.Equal(t, abcDigest, a.Hex)
	assert.Equal(t, "ba7816bf8f", a.TopDigits())
	assert.GreaterOrEqual(t, a.Value, 0.0)
	assert.LessOrEqual(t, a.Value, 1.0)
}

func TestDeriveFoldsCompatibilityForms(t *testing.T) {
	// Full-width letters collapse to ASCII under NFKC.
	a, err := Derive("ＡＢＣ")
	require.NoError(t, err)
	assert.Equal(t, abcDigest, a.Hex)
}

func TestDeriveRejectsMalformedOrigins(t *testing.T) {
	for _, origin := range []string{"", "   ", "\n\t", "ab\x00c", string([]byte{0xff, 0xfe})} {
		_, err := Derive(origin)
		assert.ErrorIs(t, err, ErrInvalidOrigin, "origin %q", origin)
	}
}

func TestDrawValueStaysInUnitInterval(t *testing.T) {
	for _, origin := range []string{"a", "event-2024-tokyo", "0", "zzzzzzzzzzzzzzzzzzzz", "ünïcödé"} {
		d, err := Derive(origin)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d.Value, 0.0)
		assert.LessOrEqual(t, d.Value, 1.0)
	}
	assert.Equal(t, 1.0, unitInterval([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}))
	assert.Equal(t, 0.0, unitInterval(make([]byte, 8)))
}

func TestParseAlgorithm(t *testing.T) {
	for _, a := range Algorithms() {
		got, err := ParseAlgorithm(string(a))
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}

	_, err := ParseAlgorithm("levenshtein")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAlgorithm))
	var unknown *UnknownAlgorithmError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "levenshtein", unknown.Key)
}

func TestScoresAreBoundedSymmetricAndReflexive(t *testing.T) {
	inputs := []string{"abc", "abd", "Tokyo-Meetup-2024", "x", "a much longer origin string"}
	for _, algo := range Algorithms() {
		for _, a := range inputs {
			da, err := Derive(a)
			require.NoError(t, err)

			self, err := algo.Score(da, a)
			require.NoError(t, err)
			assert.Equal(t, 1.0, self, "%s(%q,%q)", algo, a, a)

			for _, b := range inputs {
				db, err := Derive(b)
				require.NoError(t, err)

				ab, err := algo.Score(da, b)
				require.NoError(t, err)
				ba, err := algo.Score(db, a)
				require.NoError(t, err)

				assert.Equal(t, ab, ba, "%s symmetry for %q/%q", algo, a, b)
				assert.GreaterOrEqual(t, ab, 0.0)
				assert.LessOrEqual(t, ab, 1.0)
			}
		}
	}
}

func TestHammingMatchesBitCounts(t *testing.T) {
	cases := []struct {
		draw, winning string
		want          float64
	}{
		{"abcd", "abce", 0.96875},
		{"A", "B", 0.75},
		{"ABC", "abd", 0.875},
		{"abc", "abc", 1.0},
	}
	for _, tc := range cases {
		d, err := Derive(tc.draw)
		require.NoError(t, err)
		got, err := Hamming.Score(d, tc.winning)
		require.NoError(t, err)
		assert.InDelta(t, tc.want, got, 1e-12, "%q vs %q", tc.draw, tc.winning)
	}
}

func TestHexProximity(t *testing.T) {
	assert.Equal(t, 1.0, hexProximity("00ff", "00ff"))
	assert.Equal(t, 0.0, hexProximity("0000", "ffff"))
	assert.InDelta(t, 1-15.0/60.0, hexProximity("0000", "000f"), 1e-12)
	assert.Equal(t, 0.0, hexProximity("00", "000"))
}

func TestEvaluateDecidesAgainstThreshold(t *testing.T) {
	d, err := Derive("abc")
	require.NoError(t, err)

	ev, err := SHA256HexProximity.Evaluate(d, "ABC", ptr(1.0))
	require.NoError(t, err)
	require.NotNil(t, ev.Passed)
	assert.True(t, *ev.Passed)

	ev, err = Hamming.Evaluate(d, "abd", ptr(0.9))
	require.NoError(t, err)
	require.NotNil(t, ev.Passed)
	assert.False(t, *ev.Passed)
	assert.InDelta(t, 0.875, ev.Score, 1e-12)

	ev, err = Hamming.Evaluate(d, "abd", nil)
	require.NoError(t, err)
	assert.Nil(t, ev.Passed)

	_, err = Hamming.Evaluate(d, "abd", ptr(1.5))
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = Hamming.Evaluate(d, "   ", nil)
	assert.ErrorIs(t, err, ErrInvalidOrigin)

	_, err = Algorithm("nope").Evaluate(d, "abc", nil)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestWinningTopDigits(t *testing.T) {
	assert.Equal(t, "ba7816bf8f", WinningTopDigits(" ABC "))
	assert.Equal(t, "", WinningTopDigits(""))
}

func ptr(v float64) *float64 { return &v }
