package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/scoring"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
)

const maxDetailWidth = 60

var (
	headerColor = color.New(color.Bold)
	scoreColor  = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed)
)

// reportRow is one scored (or failed) item.
type reportRow struct {
	ID     string
	Name   string
	Result domain.ResultScore
	Err    error
}

func failedRows(rows []reportRow) int {
	n := 0
	for _, r := range rows {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func rowResults(rows []reportRow) []domain.ResultScore {
	out := make([]domain.ResultScore, 0, len(rows))
	for _, r := range rows {
		if r.Err == nil {
			out = append(out, r.Result)
		}
	}
	return out
}

func validateFormat(format string) error {
	if format != formatTable && format != formatJSON {
		return fmt.Errorf("unsupported format %q: must be table or json", format)
	}
	return nil
}

func printResults(w io.Writer, rows []reportRow) {
	fmt.Fprintln(w, headerColor.Sprintf("%-10s %-28s %6s %9s  %s", "ID", "RUBRIC", "SCORE", "WEIGHTED", "DETAIL"))

	for _, r := range rows {
		id := fmt.Sprintf("%-10s", prefix(r.ID, 10))
		name := fmt.Sprintf("%-28s", truncate(r.Name, 28))

		if r.Err != nil {
			fmt.Fprintf(w, "%s %s %6s %9s  %s\n", id, name, "-", "-", errColor.Sprint(truncate(r.Err.Error(), maxDetailWidth)))
			continue
		}

		score := fmt.Sprintf("%6d", r.Result.Score)
		if r.Result.IsSentinel() {
			score = warnColor.Sprint(score)
		} else {
			score = scoreColor.Sprint(score)
		}

		weighted := fmt.Sprintf("%9s", "-")
		if r.Result.HasProbScore {
			weighted = fmt.Sprintf("%9.3f", r.Result.ProbScore)
		}

		fmt.Fprintf(w, "%s %s %s %s  %s\n", id, name, score, weighted, detail(r.Result))
	}
}

// detail summarizes what the judge said beyond the score.
func detail(r domain.ResultScore) string {
	switch {
	case r.IsSentinel():
		return warnColor.Sprint("unparsed: " + strconv.Quote(truncate(r.OutputText(), maxDetailWidth)))
	case r.Reasoning != nil:
		return truncate(*r.Reasoning, maxDetailWidth)
	default:
		return ""
	}
}

func printAggregate(w io.Writer, agg domain.AggregateResult, weighted bool) {
	kind := "discrete"
	if weighted {
		kind = "weighted"
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerColor.Sprintf("%-28s %9s", "RUBRIC", "MEAN ("+kind+")"))
	if len(agg) == 0 {
		fmt.Fprintln(w, warnColor.Sprint("no results to aggregate"))
		return
	}
	for _, name := range scoring.RubricNames(agg) {
		fmt.Fprintf(w, "%-28s %s\n", truncate(name, 28), scoreColor.Sprintf("%9.3f", agg[name]))
	}
}

type jsonItem struct {
	ID     string              `json:"id"`
	Rubric string              `json:"rubric"`
	Result *domain.ResultScore `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

type jsonReport struct {
	Items     []jsonItem             `json:"items"`
	Aggregate domain.AggregateResult `json:"aggregate"`
	Weighted  bool                   `json:"weighted"`
	Failed    int                    `json:"failed"`
}

func writeJSONReport(w io.Writer, rows []reportRow, agg domain.AggregateResult, weighted bool) error {
	report := jsonReport{
		Items:     make([]jsonItem, 0, len(rows)),
		Aggregate: agg,
		Weighted:  weighted,
		Failed:    failedRows(rows),
	}
	for _, r := range rows {
		item := jsonItem{ID: r.ID, Rubric: r.Name}
		if r.Err != nil {
			item.Error = r.Err.Error()
		} else {
			res := r.Result
			item.Result = &res
		}
		report.Items = append(report.Items, item)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// prefix returns the first n runes of s. Request IDs stay matchable
// against the JSON report.
func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
