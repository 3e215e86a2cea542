// internal/metrics/aggregator.go
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mwiater/docqa/internal/logging"
)

// Aggregator collects and manages performance metrics for models.
type Aggregator struct {
	mutex    sync.Mutex
	metrics  map[string]*ModelMetrics
	filePath string
}

// NewAggregator creates an Aggregator. When filePath is set, previously saved metrics are
// loaded from it and Close writes the updated metrics back.
func NewAggregator(filePath string) *Aggregator {
	agg := &Aggregator{
		metrics:  make(map[string]*ModelMetrics),
		filePath: filePath,
	}
	agg.load()
	return agg
}

func key(kind, model string) string {
	return kind + "/" + model
}

// load reads metrics from the JSON file into memory.
func (a *Aggregator) load() {
	if a.filePath == "" {
		return
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()

	data, err := os.ReadFile(a.filePath)
	if err != nil {
		return
	}

	var metricsSlice []*ModelMetrics
	if err := json.Unmarshal(data, &metricsSlice); err != nil {
		logging.LogEvent("[METRICS] Ignoring unreadable metrics file %s: %v", a.filePath, err)
		return
	}

	for _, m := range metricsSlice {
		a.metrics[key(m.Kind, m.ModelName)] = m
	}
}

// save writes the current metrics from memory to the JSON file.
func (a *Aggregator) save() error {
	if a.filePath == "" {
		return nil
	}
	logging.LogEvent("[METRICS] Saving metrics to %s", a.filePath)
	data, err := json.MarshalIndent(a.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(a.filePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(a.filePath, data, 0o644)
}

// Call describes one completed provider call.
type Call struct {
	Kind         string
	Model        string
	Texts        int
	InputTokens  int
	OutputTokens int
	TTFT         time.Duration
	Duration     time.Duration
	Err          error
}

// Record updates the metrics for the call's model.
func (a *Aggregator) Record(call Call) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	k := key(call.Kind, call.Model)
	modelMetrics, exists := a.metrics[k]
	if !exists {
		modelMetrics = &ModelMetrics{
			ModelName: call.Model,
			Kind:      call.Kind,
		}
		a.metrics[k] = modelMetrics
	}

	modelMetrics.LastUpdatedUTC = time.Now().UTC()
	updateStats(&modelMetrics.Stats, call)
}

// updateStats updates the running statistics with a new call.
func updateStats(stats *RunningAggregatedStats, call Call) {
	stats.TotalRequests++
	if call.Err != nil {
		stats.Failures++
		return
	}
	stats.Texts += int64(call.Texts)
	if call.Kind == KindGeneration {
		updateRunningStat(&stats.TTFTMillis, float64(call.TTFT.Milliseconds()))
		updateRunningStat(&stats.InputTokens, float64(call.InputTokens))
		updateRunningStat(&stats.OutputTokens, float64(call.OutputTokens))
	}
	updateRunningStat(&stats.TotalDurationMillis, float64(call.Duration.Milliseconds()))
}

// updateRunningStat updates a single running statistic using Welford's online algorithm.
func updateRunningStat(rs *RunningStat, value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min = value
		rs.Max = value
	} else {
		if value < rs.Min {
			rs.Min = value
		}
		if value > rs.Max {
			rs.Max = value
		}
	}

	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	delta2 := value - rs.Mean
	rs.M2 += delta * delta2
}

// Snapshot returns a copy of the collected metrics ordered by kind and model.
func (a *Aggregator) Snapshot() []ModelMetrics {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	out := make([]ModelMetrics, 0, len(a.metrics))
	for _, m := range a.metrics {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ModelName < out[j].ModelName
	})
	return out
}

// Requests returns the number of calls recorded for kind and model.
func (a *Aggregator) Requests(kind, model string) int64 {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if m, ok := a.metrics[key(kind, model)]; ok {
		return m.Stats.TotalRequests
	}
	return 0
}

// WriteSummary prints one line per model.
func (a *Aggregator) WriteSummary(w io.Writer) {
	for _, m := range a.Snapshot() {
		s := m.Stats
		switch m.Kind {
		case KindEmbedding:
			fmt.Fprintf(w, "%-10s %-24s requests=%d failures=%d texts=%d mean=%.0fms\n",
				m.Kind, m.ModelName, s.TotalRequests, s.Failures, s.Texts, s.TotalDurationMillis.Mean)
		default:
			fmt.Fprintf(w, "%-10s %-24s requests=%d failures=%d ttft=%.0fms mean=%.0fms tokens_in=%.0f tokens_out=%.0f\n",
				m.Kind, m.ModelName, s.TotalRequests, s.Failures, s.TTFTMillis.Mean, s.TotalDurationMillis.Mean, s.InputTokens.Mean, s.OutputTokens.Mean)
		}
	}
}

// Close saves the metrics when a file path is configured.
func (a *Aggregator) Close() error {
	return a.save()
}
