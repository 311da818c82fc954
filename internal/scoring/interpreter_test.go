package scoring

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/testutils"
)

func TestToLinearProbability(t *testing.T) {
	for _, lp := range []float64{0, -0.001, -0.105, -1, -2.5, -50, -700} {
		p := ToLinearProbability(domain.TokenCandidate{Text: "4", LogProbability: lp})
		assert.InDelta(t, math.Exp(lp), p, 1e-12)
		assert.Greater(t, p, 0.0, "lp=%v", lp)
		assert.LessOrEqual(t, p, 1.0, "lp=%v", lp)
	}
}

func TestParseIntToken(t *testing.T) {
	tests := []struct {
		in    string
		want  int
		valid bool
	}{
		{in: "4", want: 4, valid: true},
		{in: " 4", want: 4, valid: true},
		{in: "10\n", want: 10, valid: true},
		{in: "-2", want: -2, valid: true},
		{in: "+3", want: 3, valid: true},
		{in: "0", want: 0, valid: true},
		{in: "4.5"},
		{in: "."},
		{in: ","},
		{in: ""},
		{in: "four"},
		{in: "4,"},
	}

	for _, tt := range tests {
		t.Run(strconv.Quote(tt.in), func(t *testing.T) {
			got, ok := ParseIntToken(tt.in)
			assert.Equal(t, tt.valid, ok)
			if tt.valid {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRestrictToNumericCandidates(t *testing.T) {
	pos := testutils.Position("4",
		testutils.Candidate("4", 0.6),
		testutils.Candidate(".", 0.2),
		testutils.Candidate(" 3", 0.1),
		testutils.Candidate("five", 0.05),
		testutils.Candidate("5", 0.05),
	)

	got := RestrictToNumericCandidates(pos)

	require.Len(t, got, 3)
	assert.Equal(t, "4", got[0].Text)
	assert.Equal(t, " 3", got[1].Text)
	assert.Equal(t, "5", got[2].Text)
	assert.InDelta(t, 0.6, got[0].Probability, 1e-9)
	assert.InDelta(t, 0.1, got[1].Probability, 1e-9)
}

func TestNormalize(t *testing.T) {
	t.Run("sums to one", func(t *testing.T) {
		inputs := [][]domain.WeightedToken{
			{{Text: "1", Probability: 0.3}},
			{{Text: "1", Probability: 0.3}, {Text: "2", Probability: 0.1}},
			{{Text: "5", Probability: 1e-9}, {Text: "4", Probability: 3e-9}, {Text: "3", Probability: 2e-12}},
			{{Text: "1", Probability: 0.2}, {Text: "2", Probability: 0.2}, {Text: "3", Probability: 0.2}, {Text: "4", Probability: 0.2}},
		}
		for _, in := range inputs {
			dist, err := Normalize(in)
			require.NoError(t, err)
			assert.InDelta(t, 1.0, dist.Total(), 1e-9)
			assert.Len(t, dist.Entries, len(in))
		}
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := Normalize(nil)
		assert.ErrorIs(t, err, domain.ErrEmptyDistribution)
	})

	t.Run("zero sum", func(t *testing.T) {
		_, err := Normalize([]domain.WeightedToken{{Text: "1", Probability: 0}, {Text: "2", Probability: 0}})
		assert.ErrorIs(t, err, domain.ErrEmptyDistribution)
	})
}

func TestWeightedScore_ExcludesNonNumericNoise(t *testing.T) {
	pos := testutils.Position("4",
		testutils.Candidate("4", 0.7),
		testutils.Candidate("3", 0.2),
		testutils.Candidate(".", 0.1),
	)

	dist, err := NumericDistribution(pos)
	require.NoError(t, err)

	p4, ok := dist.Probability("4")
	require.True(t, ok)
	p3, ok := dist.Probability("3")
	require.True(t, ok)
	_, ok = dist.Probability(".")
	assert.False(t, ok)

	assert.InDelta(t, 0.778, p4, 1e-3)
	assert.InDelta(t, 0.222, p3, 1e-3)
	assert.InDelta(t, 3.778, WeightedScore(dist), 1e-3)
}

func TestWeightedScore_ScaleInvariant(t *testing.T) {
	base := []domain.WeightedToken{
		{Text: "1", Probability: 0.05},
		{Text: "2", Probability: 0.15},
		{Text: "3", Probability: 0.4},
		{Text: "5", Probability: 0.1},
	}

	ref, err := Normalize(base)
	require.NoError(t, err)
	want := WeightedScore(ref)

	for _, c := range []float64{1e-6, 0.01, 0.5, 2, 1000} {
		scaled := make([]domain.WeightedToken, len(base))
		for i, e := range base {
			scaled[i] = domain.WeightedToken{Text: e.Text, Probability: e.Probability * c}
		}
		dist, err := Normalize(scaled)
		require.NoError(t, err)
		assert.InDelta(t, want, WeightedScore(dist), 1e-9, "scale %v", c)
	}
}

func TestNumericDistribution_AllNonNumeric(t *testing.T) {
	pos := testutils.Position(",",
		testutils.Candidate(",", 0.9),
		testutils.Candidate(`"`, 0.1),
	)

	_, err := NumericDistribution(pos)
	assert.ErrorIs(t, err, domain.ErrEmptyDistribution)
}

func TestLocateScoreToken(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   string
		found  bool
	}{
		{
			name:   "numeral in token after marker",
			tokens: []string{`{"score":`, ` 4`, `,`, ` "explanation": "ok"}`},
			want:   ` 4`,
			found:  true,
		},
		{
			name:   "marker ends exactly at token boundary",
			tokens: []string{`{"`, `score`, `":`, ` `, `4`, `,`, ` "explanation": "ok"}`},
			want:   `4`,
			found:  true,
		},
		{
			name:   "marker and numeral in the same token",
			tokens: []string{`{"score": 4,`, ` "explanation": "ok"}`},
			want:   `{"score": 4,`,
			found:  true,
		},
		{
			name:   "several characters follow marker in the same token",
			tokens: []string{`{"`, `score": 4, "e`, `xplanation": "ok"}`},
			want:   `score": 4, "e`,
			found:  true,
		},
		{
			name:   "empty token after marker is skipped",
			tokens: []string{`{"score": `, ``, `2`, `}`},
			want:   `2`,
			found:  true,
		},
		{
			name:   "marker is last content",
			tokens: []string{`{"score": `},
		},
		{
			name:   "marker absent",
			tokens: []string{`{"rating": 4,`, ` "explanation": "ok"}`},
		},
		{
			name:   "marker without trailing space",
			tokens: []string{`{"score":4}`},
		},
		{
			name: "no tokens",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos, ok := LocateScoreToken(testutils.TokenStream(tt.tokens...))
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, pos.Chosen.Text)
			}
		})
	}
}

func TestLocateScoreTokenWithMarker(t *testing.T) {
	tokens := testutils.TokenStream(`{"qualityScore": `, `3`, `, "qualityScoreReasoning": "fine"}`)

	pos, ok := LocateScoreTokenWithMarker(tokens, `"qualityScore": `)
	require.True(t, ok)
	assert.Equal(t, "3", pos.Chosen.Text)

	_, ok = LocateScoreTokenWithMarker(tokens, "")
	assert.False(t, ok)

	_, ok = LocateScoreToken(tokens)
	assert.False(t, ok, "default marker must not match inside qualityScore")
}

func TestLocatePropertyToken_CaseInsensitive(t *testing.T) {
	tokens := testutils.TokenStream(`{"Rating":`, ` 7`, `, "why": "clear"}`)

	pos, ok := LocatePropertyToken(tokens, "rating")
	require.True(t, ok)
	assert.Equal(t, " 7", pos.Chosen.Text)

	_, ok = LocateScoreTokenWithMarker(tokens, PropertyMarker("rating"))
	assert.False(t, ok)
}

func FuzzLocateScoreToken(f *testing.F) {
	f.Add(4, "ok", int64(1))
	f.Add(10, `nested {"score": 1} text`, int64(7))
	f.Add(-1, "", int64(42))
	f.Add(123, "ünïcødé", int64(99))

	f.Fuzz(func(t *testing.T, score int, explanation string, seed int64) {
		text := `{"score": ` + strconv.Itoa(score) + `, "explanation": ` + strconv.Quote(explanation) + `}`
		target := strings.Index(text, DefaultScoreMarker) + len(DefaultScoreMarker)

		rng := rand.New(rand.NewSource(seed))
		var chunks []string
		owner := -1
		for offset := 0; offset < len(text); {
			size := 1 + rng.Intn(8)
			end := min(offset+size, len(text))
			if offset <= target && target < end {
				owner = len(chunks)
			}
			chunks = append(chunks, text[offset:end])
			offset = end
		}
		require.NotEqual(t, -1, owner)

		idx, ok := locateScoreIndex(testutils.TokenStream(chunks...), DefaultScoreMarker, strings.Index)
		require.True(t, ok)
		assert.Equal(t, owner, idx)
	})
}
