package application

import (
	"strings"
	"text/template"
	"unicode/utf8"
)

// PromptFuncs returns the functions available to rubric prompt templates.
// The functions are pure and never panic, so templates can be executed
// concurrently.
//
//	{{truncate .Context 2000}}
//	{{default "No context was provided." .Context}}
//	{{if contains (lower .Answer) "i don't know"}}...{{end}}
func PromptFuncs() template.FuncMap {
	return template.FuncMap{
		"truncate":  truncateRunes,
		"default":   defaultString,
		"contains":  strings.Contains,
		"hasPrefix": strings.HasPrefix,
		"hasSuffix": strings.HasSuffix,
		"lower":     strings.ToLower,
		"upper":     strings.ToUpper,
		"trim":      strings.TrimSpace,
		"replace":   strings.ReplaceAll,
		"join":      strings.Join,
		"split":     strings.Split,
		"quote":     quoteBlock,
	}
}

// truncateRunes limits s to n runes, ending in "..." when cut and n > 3.
// Non-positive n yields the empty string.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	runes := []rune(s)
	if n > 3 {
		return string(runes[:n-3]) + "..."
	}
	return string(runes[:n])
}

// defaultString returns value, or fallback when value is blank.
// The argument order lets it sit at the end of a pipeline:
// {{.Context | default "none"}}.
func defaultString(fallback, value string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// quoteBlock prefixes every line of s with "> ".
func quoteBlock(s string) string {
	if s == "" {
		return ""
	}
	return "> " + strings.ReplaceAll(s, "\n", "\n> ")
}

func parsePrompt(name, prompt string) (*template.Template, error) {
	return template.New(name).Funcs(PromptFuncs()).Option("missingkey=error").Parse(prompt)
}
