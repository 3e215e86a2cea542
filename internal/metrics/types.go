// internal/metrics/types.go
package metrics

import "time"

// Kinds of provider call that are tracked.
const (
	KindEmbedding  = "embedding"
	KindGeneration = "generation"
)

// ModelMetrics is the aggregated data for a single model and call kind.
type ModelMetrics struct {
	ModelName      string                 `json:"model_name"`
	Kind           string                 `json:"kind"`
	LastUpdatedUTC time.Time              `json:"last_updated_utc"`
	Stats          RunningAggregatedStats `json:"stats"`
}

// RunningAggregatedStats stores the running statistical values for a set of metrics.
// It uses Welford's online algorithm for calculating mean and standard deviation.
type RunningAggregatedStats struct {
	TotalRequests int64 `json:"total_requests"`
	Failures      int64 `json:"failures"`
	// Texts counts embedded inputs; zero for generation.
	Texts int64 `json:"texts"`

	TTFTMillis          RunningStat `json:"ttft_ms"`
	InputTokens         RunningStat `json:"input_tokens"`
	OutputTokens        RunningStat `json:"output_tokens"`
	TotalDurationMillis RunningStat `json:"total_duration_ms"`
}

// RunningStat holds the necessary values for online calculation of mean, variance, and stddev.
type RunningStat struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"` // Sum of squares of differences from the current mean
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}
