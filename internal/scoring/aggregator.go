package scoring

import (
	"sort"

	"github.com/ahrav/softscore/internal/domain"
)

// AggregateOptions controls how results are averaged.
type AggregateOptions struct {
	// UseWeighted averages ProbScore instead of Score.
	UseWeighted bool

	// ExcludeSentinels drops results whose Score is SentinelScore, or in
	// weighted mode results without a ProbScore. When false, sentinels count
	// as -1 and unset ProbScores count as 0.
	ExcludeSentinels bool
}

// Aggregate groups results by EvalName and returns the mean per rubric.
// Rubrics without any counted result are absent from the map.
func Aggregate(results []domain.ResultScore, opts AggregateOptions) domain.AggregateResult {
	type acc struct {
		sum   float64
		count int
	}
	groups := make(map[string]*acc)

	for _, r := range results {
		var v float64
		if opts.UseWeighted {
			if opts.ExcludeSentinels && !r.HasProbScore {
				continue
			}
			v = r.ProbScore
		} else {
			if opts.ExcludeSentinels && r.IsSentinel() {
				continue
			}
			v = float64(r.Score)
		}

		g, ok := groups[r.EvalName]
		if !ok {
			g = &acc{}
			groups[r.EvalName] = g
		}
		g.sum += v
		g.count++
	}

	out := make(domain.AggregateResult, len(groups))
	for name, g := range groups {
		out[name] = g.sum / float64(g.count)
	}
	return out
}

// RubricNames returns the keys of agg in sorted order.
func RubricNames(agg domain.AggregateResult) []string {
	names := make([]string, 0, len(agg))
	for name := range agg {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
