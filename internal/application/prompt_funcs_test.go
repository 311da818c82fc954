package application

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/softscore/internal/domain"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{name: "fits", input: "hello", n: 5, want: "hello"},
		{name: "cut with ellipsis", input: "hello world", n: 8, want: "hello..."},
		{name: "short limit", input: "hello", n: 3, want: "hel"},
		{name: "zero", input: "hello", n: 0, want: ""},
		{name: "negative", input: "hello", n: -1, want: ""},
		{name: "multibyte", input: "héllo wørld", n: 6, want: "hél..."},
		{name: "emoji", input: "🚀🌟💫🚀🌟", n: 4, want: "🚀..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateRunes(tt.input, tt.n))
		})
	}
}

func TestDefaultString(t *testing.T) {
	assert.Equal(t, "none", defaultString("none", ""))
	assert.Equal(t, "none", defaultString("none", "  \n"))
	assert.Equal(t, "ctx", defaultString("none", "ctx"))
}

func TestQuoteBlock(t *testing.T) {
	assert.Equal(t, "", quoteBlock(""))
	assert.Equal(t, "> one\n> two", quoteBlock("one\ntwo"))
}

func TestPromptFuncs_InRubric(t *testing.T) {
	reg, err := NewRubricRegistry([]domain.Rubric{{
		Name: "Groundedness",
		Prompt: `CONTEXT: {{.Context | default "none"}}
RESPONSE:
{{quote (trim .Answer)}}
{{if contains (lower .Answer) "i don't know"}}The response declines to answer.{{end}}
SHORT: {{truncate .Answer 10}}`,
	}})
	require.NoError(t, err)

	got, err := reg.Render("Groundedness", PromptData{Answer: " I don't know.\nSorry. "})
	require.NoError(t, err)

	want := "CONTEXT: none\nRESPONSE:\n> I don't know.\n> Sorry.\nThe response declines to answer.\nSHORT:  I don'..."
	assert.Equal(t, want, got)
}

func TestPromptFuncs_UnknownFunction(t *testing.T) {
	_, err := NewRubricRegistry([]domain.Rubric{{Name: "Odd", Prompt: "{{shout .Answer}}"}})
	assert.ErrorContains(t, err, `function "shout" not defined`)
}

func FuzzTruncateRunes(f *testing.F) {
	f.Add("hello world", 5)
	f.Add("", 10)
	f.Add("a", 0)
	f.Add("héllo wørld", 8)
	f.Add(strings.Repeat("x", 1000), 100)
	f.Add("🚀🌟💫", 2)
	f.Add("​hello​", 5)

	f.Fuzz(func(t *testing.T, input string, n int) {
		if !utf8.ValidString(input) {
			t.Skip()
		}
		got := truncateRunes(input, n)

		if n <= 0 {
			if got != "" {
				t.Errorf("truncateRunes(%q, %d) = %q, want empty", input, n, got)
			}
			return
		}
		if c := utf8.RuneCountInString(got); c > n {
			t.Errorf("truncateRunes(%q, %d) = %q has %d runes", input, n, got, c)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncateRunes(%q, %d) = %q is not valid UTF-8", input, n, got)
		}
		if utf8.RuneCountInString(input) <= n && got != input {
			t.Errorf("truncateRunes(%q, %d) = %q, want input unchanged", input, n, got)
		}
	})
}
