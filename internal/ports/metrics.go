package ports

// Metric names recorded by the evaluation service. Judge transport metrics
// are named by the llm package.
const (
	// MetricScoreValue is a histogram of resolved scores, labelled by
	// eval_name and kind (discrete or weighted).
	MetricScoreValue = "score_value"

	// MetricSentinelScores counts results that fell back to the sentinel.
	MetricSentinelScores = "sentinel_scores_total"

	// MetricOutOfScaleScores counts discrete scores outside the rubric's
	// score_scale.
	MetricOutOfScaleScores = "out_of_scale_scores_total"

	// MetricEmptyDistributions counts replies whose score position had no
	// numeric candidates.
	MetricEmptyDistributions = "empty_distributions_total"

	// MetricEvaluations counts evaluations by eval_name and status.
	MetricEvaluations = "evaluations_total"

	// MetricEvaluationLatency is the end-to-end time of one evaluation.
	MetricEvaluationLatency = "evaluation_duration_seconds"

	// MetricAggregateScore is the latest aggregate per eval_name and kind.
	MetricAggregateScore = "aggregate_score"
)
